package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashwaghule/joitex-IVM/internal/inventory/repository"
	"github.com/suyashwaghule/joitex-IVM/internal/inventory/service"
	"github.com/suyashwaghule/joitex-IVM/pkg/actor"
	"github.com/suyashwaghule/joitex-IVM/pkg/errors"
	"github.com/suyashwaghule/joitex-IVM/pkg/testutil"
)

type stack struct {
	engine    *service.StockAllocationEngine
	workflow  *service.RequestWorkflow
	inventory *service.InventoryService
}

func newStack(t *testing.T) (*stack, *testutil.IntegrationSuite) {
	t.Helper()
	testutil.SkipIfShort(t)
	suite := testutil.RequireIntegrationSuite(t)
	suite.Truncate(t)
	t.Cleanup(func() { suite.Close() })

	items := repository.NewItemRepository(suite.DB)
	txs := repository.NewTransactionRepository(suite.DB)
	requests := repository.NewRequestRepository(suite.DB)
	users := repository.NewUserCacheRepository(suite.DB)

	return &stack{
		engine:    service.NewStockAllocationEngine(suite.DB, items, txs, requests, nil, nil, suite.Logger),
		workflow:  service.NewRequestWorkflow(requests, nil, nil, suite.Logger),
		inventory: service.NewInventoryService(suite.DB, items, txs, requests, users, suite.Logger),
	}, suite
}

var approver = &actor.Actor{ID: "approver-1", Name: "Store Keeper", Role: "inventory"}

func TestApprove_ConcurrentRequestsNeverOversell(t *testing.T) {
	s, _ := newStack(t)
	ctx := context.Background()

	item, err := s.inventory.CreateItem(ctx, service.CreateItemInput{
		SKU: "FC-100M", Name: "Fiber Cable", Quantity: 10,
	}, approver)
	require.NoError(t, err)

	const n = 5
	ids := make([]string, n)
	for i := range ids {
		req, err := s.workflow.Create(ctx, service.CreateRequestInput{
			EngineerName: "Ravi",
			Items:        []repository.LineItem{{Name: "Fiber Cable", Quantity: 3}},
		}, approver)
		require.NoError(t, err)
		ids[i] = req.ID
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		approved  int
		shortages int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := s.engine.Approve(ctx, id, approver)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				approved++
			case errors.Is(err, errors.ErrInsufficientStock):
				shortages++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 3, approved)
	assert.Equal(t, 2, shortages)

	report, err := s.inventory.Ledger(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Item.Quantity)
	assert.Equal(t, int64(10), report.TotalIn)
	assert.Equal(t, int64(9), report.TotalOut)
	assert.True(t, report.Balanced)
}

func TestApprove_SecondApprovalIsRejected(t *testing.T) {
	s, _ := newStack(t)
	ctx := context.Background()

	_, err := s.inventory.CreateItem(ctx, service.CreateItemInput{SKU: "ONT-01", Name: "ONT", Quantity: 4}, approver)
	require.NoError(t, err)
	req, err := s.workflow.Create(ctx, service.CreateRequestInput{
		Items: []repository.LineItem{{SKU: "ONT-01", Quantity: 1}},
	}, approver)
	require.NoError(t, err)
	assert.Equal(t, "REQ-", req.RequestNumber[:4])

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.engine.Approve(ctx, req.ID, approver)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.True(t, errors.Is(err, errors.ErrAlreadyProcessed), "got %v", err)
	}
	assert.Equal(t, 1, successes)

	txs, err := s.inventory.ListTransactions(ctx, "", 10)
	require.NoError(t, err)
	outs := 0
	for _, tx := range txs {
		if tx.TransactionType == repository.TransactionOut {
			outs++
			assert.Equal(t, req.RequestNumber, tx.Reference)
			assert.Equal(t, approver.ID, tx.PerformedBy)
		}
	}
	assert.Equal(t, 1, outs)
}

func TestAccountingIdentity_AfterMixedMovements(t *testing.T) {
	s, suite := newStack(t)
	ctx := context.Background()

	cable, err := s.inventory.CreateItem(ctx, service.CreateItemInput{SKU: "FC-100M", Name: "Fiber Cable", Quantity: 20}, approver)
	require.NoError(t, err)
	router, err := s.inventory.CreateItem(ctx, service.CreateItemInput{SKU: "RT-AX", Name: "Router", Quantity: 0}, approver)
	require.NoError(t, err)

	_, err = s.engine.Receive(ctx, service.ReceiveInput{
		Reference: "PO-77",
		Items: []service.ReceiveLine{
			{SKU: "RT-AX", Quantity: 6},
			{ItemID: cable.ID, Quantity: 5},
		},
	}, approver)
	require.NoError(t, err)

	_, err = s.engine.Issue(ctx, service.IssueInput{
		EngineerName: "Asha",
		Items: []service.MovementLine{
			{SKU: "RT-AX", Quantity: 2},
			{SKU: "FC-100M", Quantity: 7},
		},
	}, approver)
	require.NoError(t, err)

	// Fails as a whole: no partial deduction of the cable line
	_, err = s.engine.Issue(ctx, service.IssueInput{
		Items: []service.MovementLine{
			{SKU: "FC-100M", Quantity: 1},
			{SKU: "RT-AX", Quantity: 50},
		},
	}, approver)
	require.True(t, errors.Is(err, errors.ErrInsufficientStock))

	for _, id := range []string{cable.ID, router.ID} {
		report, err := s.inventory.Ledger(ctx, id)
		require.NoError(t, err)
		assert.True(t, report.Balanced, "item %s: quantity=%d in=%d out=%d",
			report.Item.SKU, report.Item.Quantity, report.TotalIn, report.TotalOut)
	}

	var cableQty int
	require.NoError(t, suite.RawDB.Get(&cableQty, `SELECT quantity FROM inventory_items WHERE id = $1`, cable.ID))
	assert.Equal(t, 18, cableQty)
}
