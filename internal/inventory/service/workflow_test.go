package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashwaghule/joitex-IVM/internal/inventory/events"
	"github.com/suyashwaghule/joitex-IVM/internal/inventory/repository"
	"github.com/suyashwaghule/joitex-IVM/pkg/actor"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
	"github.com/suyashwaghule/joitex-IVM/pkg/messaging"
	"github.com/suyashwaghule/joitex-IVM/pkg/testutil"
)

type fakeCounter struct {
	next int64
	err  error
	keys []string
	ttls []time.Duration
}

func (c *fakeCounter) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	c.keys = append(c.keys, key)
	c.ttls = append(c.ttls, ttl)
	if c.err != nil {
		return 0, c.err
	}
	c.next++
	return c.next, nil
}

func (c *fakeCounter) CounterKey(parts ...string) string {
	key := "joitex:counter"
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

func newWorkflow(t *testing.T, counter Counter) (*RequestWorkflow, *testutil.MockDB, *testutil.MockPublisher) {
	t.Helper()
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })

	pub := testutil.NewMockPublisher()
	w := NewRequestWorkflow(
		repository.NewRequestRepository(mockDB.Database()),
		counter,
		events.NewWithPublisher(pub, logger.Nop()),
		logger.Nop(),
	)
	w.now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }
	return w, mockDB, pub
}

func engineer() *actor.Actor {
	return &actor.Actor{ID: "engineer-1", Name: "Ravi", Role: "engineer"}
}

func TestCreate_UsesRedisCounter(t *testing.T) {
	counter := &fakeCounter{next: 6}
	w, mockDB, pub := newWorkflow(t, counter)

	mockDB.ExpectQuery("INSERT INTO stock_requests").
		WithArgs(testutil.AnyUUID{}, "REQ-20260314-0007", "Ravi", "JOB-7", `[{"name":"Fiber Cable","quantity":4}]`, "urgent", "pending", "engineer-1").
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(time.Now(), time.Now()))

	req, err := w.Create(context.Background(), CreateRequestInput{
		EngineerName: "Ravi",
		JobID:        "JOB-7",
		Priority:     "urgent",
		Items:        []repository.LineItem{{Name: "Fiber Cable", Quantity: 4}},
	}, engineer())
	require.NoError(t, err)
	assert.Equal(t, "REQ-20260314-0007", req.RequestNumber)
	assert.Equal(t, "pending", req.Status)
	assert.Equal(t, []string{"joitex:counter:stock_request:20260314"}, counter.keys)
	assert.Equal(t, 48*time.Hour, counter.ttls[0])
	mockDB.ExpectationsWereMet(t)
	pub.AssertEventPublished(t, messaging.EventRequestCreated)
}

func TestCreate_Defaults(t *testing.T) {
	w, mockDB, _ := newWorkflow(t, nil)

	mockDB.ExpectQuery("SELECT nextval('stock_request_number_seq')").
		WillReturnRows(testutil.MockRows("nextval").AddRow(int64(3)))
	mockDB.ExpectQuery("INSERT INTO stock_requests").
		WithArgs(testutil.AnyUUID{}, "REQ-20260314-0003", DefaultEngineerName, "", `[{"name":"Fiber Cable","quantity":1}]`, "normal", "pending", "engineer-1").
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(time.Now(), time.Now()))

	req, err := w.Create(context.Background(), CreateRequestInput{
		Items: []repository.LineItem{{Name: "Fiber Cable", Quantity: 1}},
	}, engineer())
	require.NoError(t, err)
	assert.Equal(t, DefaultEngineerName, req.EngineerName)
	assert.Equal(t, repository.PriorityNormal, req.Priority)
	mockDB.ExpectationsWereMet(t)
}

func TestCreate_FallsBackToSequenceWhenRedisFails(t *testing.T) {
	counter := &fakeCounter{err: fmt.Errorf("connection refused")}
	w, mockDB, _ := newWorkflow(t, counter)

	mockDB.ExpectQuery("SELECT nextval('stock_request_number_seq')").
		WillReturnRows(testutil.MockRows("nextval").AddRow(int64(12)))
	mockDB.ExpectQuery("INSERT INTO stock_requests").
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(time.Now(), time.Now()))

	req, err := w.Create(context.Background(), CreateRequestInput{
		Items: []repository.LineItem{{SKU: "FC-100M", Quantity: 1}},
	}, engineer())
	require.NoError(t, err)
	assert.Equal(t, "REQ-20260314-0012", req.RequestNumber)
	mockDB.ExpectationsWereMet(t)
}

func TestCreate_RetriesOnDuplicateNumber(t *testing.T) {
	counter := &fakeCounter{}
	w, mockDB, _ := newWorkflow(t, counter)

	mockDB.ExpectQuery("INSERT INTO stock_requests").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "stock_requests_request_number_key"})
	mockDB.ExpectQuery("SELECT nextval('stock_request_number_seq')").
		WillReturnRows(testutil.MockRows("nextval").AddRow(int64(40)))
	mockDB.ExpectQuery("INSERT INTO stock_requests").
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(time.Now(), time.Now()))

	req, err := w.Create(context.Background(), CreateRequestInput{
		Items: []repository.LineItem{{Name: "Fiber Cable", Quantity: 1}},
	}, engineer())
	require.NoError(t, err)
	assert.Equal(t, "REQ-20260314-0040", req.RequestNumber)
	mockDB.ExpectationsWereMet(t)
}

func TestFormatRequestNumber(t *testing.T) {
	assert.Equal(t, "REQ-20260314-0001", formatRequestNumber("20260314", 1))
	assert.Equal(t, "REQ-20260314-12345", formatRequestNumber("20260314", 12345))
}

func TestMine_MatchesNameOrRequester(t *testing.T) {
	w, mockDB, _ := newWorkflow(t, nil)

	mockDB.ExpectQuery("SELECT COUNT(*) FROM stock_requests").
		WithArgs("Ravi", "engineer-1").
		WillReturnRows(testutil.MockRows("count").AddRow(int64(0)))
	mockDB.ExpectQuery("ORDER BY created_at DESC").
		WithArgs("Ravi", "engineer-1", 20, 0).
		WillReturnRows(testutil.MockRows(requestCols...))

	reqs, total, err := w.Mine(context.Background(), engineer(), 1, 20)
	require.NoError(t, err)
	assert.Empty(t, reqs)
	assert.Equal(t, int64(0), total)
	mockDB.ExpectationsWereMet(t)
}
