package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashwaghule/joitex-IVM/internal/network/repository"
	"github.com/suyashwaghule/joitex-IVM/internal/network/service"
	"github.com/suyashwaghule/joitex-IVM/pkg/actor"
	"github.com/suyashwaghule/joitex-IVM/pkg/errors"
	"github.com/suyashwaghule/joitex-IVM/pkg/testutil"
)

var noc = &actor.Actor{ID: "noc-1", Name: "NOC", Role: "network"}

func newEngine(t *testing.T) (*service.AddressAllocationEngine, *testutil.IntegrationSuite) {
	t.Helper()
	testutil.SkipIfShort(t)
	suite := testutil.RequireIntegrationSuite(t)
	suite.Truncate(t)
	t.Cleanup(func() { suite.Close() })

	engine := service.NewAddressAllocationEngine(
		suite.DB,
		repository.NewPoolRepository(suite.DB),
		repository.NewAllocationRepository(suite.DB),
		nil,
		nil,
		suite.Logger,
	)
	return engine, suite
}

func TestAllocate_ConcurrentCallersGetDistinctAddresses(t *testing.T) {
	engine, suite := newEngine(t)
	ctx := context.Background()

	pool, err := engine.CreatePool(ctx, service.CreatePoolInput{Name: "edge-29", CIDR: "10.9.0.0/29", Gateway: "10.9.0.1"}, noc)
	require.NoError(t, err)
	require.Equal(t, 5, pool.TotalIPs)

	const callers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		addresses = map[string]bool{}
		exhausted int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			alloc, err := engine.Allocate(ctx, service.AllocateInput{PoolID: pool.ID, CustomerName: "Acme Corp"}, noc)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				assert.False(t, addresses[alloc.IPAddress], "address %s handed out twice", alloc.IPAddress)
				addresses[alloc.IPAddress] = true
			case errors.Is(err, errors.ErrPoolExhausted):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, addresses, 5)
	assert.Equal(t, callers-5, exhausted)
	assert.False(t, addresses["10.9.0.1"], "gateway must never be allocated")

	var used, rows int
	require.NoError(t, suite.RawDB.Get(&used, `SELECT used_ips FROM ip_pools WHERE id = $1`, pool.ID))
	require.NoError(t, suite.RawDB.Get(&rows, `SELECT COUNT(*) FROM ip_allocations WHERE pool_id = $1`, pool.ID))
	assert.Equal(t, 5, used)
	assert.Equal(t, used, rows)
}

func TestRelease_ConcurrentDoubleRelease(t *testing.T) {
	engine, suite := newEngine(t)
	ctx := context.Background()

	pool, err := engine.CreatePool(ctx, service.CreatePoolInput{Name: "p2p", CIDR: "10.9.1.0/31"}, noc)
	require.NoError(t, err)
	alloc, err := engine.Allocate(ctx, service.AllocateInput{PoolID: pool.ID, CustomerName: "Acme Corp"}, noc)
	require.NoError(t, err)
	assert.Equal(t, "10.9.1.0", alloc.IPAddress)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = engine.Release(ctx, alloc.ID, noc)
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			assert.True(t, errors.Is(err, errors.ErrAllocationNotFound), "got %v", err)
		}
	}
	assert.Equal(t, 1, failures)

	var used int
	require.NoError(t, suite.RawDB.Get(&used, `SELECT used_ips FROM ip_pools WHERE id = $1`, pool.ID))
	assert.Equal(t, 0, used)
}

func TestDeletePool_RestrictedByAllocations(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	pool, err := engine.CreatePool(ctx, service.CreatePoolInput{Name: "mgmt", CIDR: "10.9.2.0/30", PoolType: "management"}, noc)
	require.NoError(t, err)
	alloc, err := engine.Allocate(ctx, service.AllocateInput{PoolID: pool.ID, IPAddress: "10.9.2.2", CustomerName: "Switch 1"}, noc)
	require.NoError(t, err)

	err = engine.DeletePool(ctx, pool.ID, noc)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	require.NoError(t, engine.Release(ctx, alloc.ID, noc))
	require.NoError(t, engine.DeletePool(ctx, pool.ID, noc))

	_, err = engine.GetPool(ctx, pool.ID)
	assert.True(t, errors.Is(err, errors.ErrPoolNotFound))
}
