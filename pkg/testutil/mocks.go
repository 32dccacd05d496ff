package testutil

import (
	"context"
	"database/sql/driver"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/suyashwaghule/joitex-IVM/pkg/database"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
)

// MockDB is a sqlmock connection whose ExpectQuery and ExpectExec take
// literal SQL fragments rather than regular expressions. Expectations are
// matched in order.
//
//	mockDB := testutil.NewMockDB(t)
//	defer mockDB.Close()
//
//	mockDB.ExpectBegin()
//	mockDB.ExpectQuery("FROM ip_pools WHERE id = $1 FOR UPDATE").WithArgs(poolID).WillReturnRows(rows)
//
//	engine := service.NewAddressAllocationEngine(mockDB.Database(), ...)
type MockDB struct {
	sqlmock.Sqlmock
	DB *sqlx.DB
}

// NewMockDB creates a new mock database for unit testing.
func NewMockDB(t *testing.T) *MockDB {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	return &MockDB{Sqlmock: mock, DB: sqlx.NewDb(db, "postgres")}
}

// Database wraps the mock in the application's DB type.
func (m *MockDB) Database() *database.DB {
	return database.Wrap(m.DB, logger.Nop())
}

func (m *MockDB) Close() error {
	return m.DB.Close()
}

// ExpectQuery expects a query containing the literal fragment
func (m *MockDB) ExpectQuery(fragment string) *sqlmock.ExpectedQuery {
	return m.Sqlmock.ExpectQuery(regexp.QuoteMeta(fragment))
}

// ExpectExec expects a statement containing the literal fragment
func (m *MockDB) ExpectExec(fragment string) *sqlmock.ExpectedExec {
	return m.Sqlmock.ExpectExec(regexp.QuoteMeta(fragment))
}

// ExpectationsWereMet fails t when an expectation went unused
func (m *MockDB) ExpectationsWereMet(t *testing.T) {
	t.Helper()
	if err := m.Sqlmock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}

// MockRows creates a new mock rows object
func MockRows(columns ...string) *sqlmock.Rows {
	return sqlmock.NewRows(columns)
}

// AnyTime matches any time.Time argument
type AnyTime struct{}

func (AnyTime) Match(v driver.Value) bool {
	_, ok := v.(time.Time)
	return ok
}

// AnyUUID matches any lower-case UUID string argument
type AnyUUID struct{}

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func (AnyUUID) Match(v driver.Value) bool {
	s, ok := v.(string)
	return ok && uuidPattern.MatchString(s)
}

// PublishedEvent is one recorded Publish call
type PublishedEvent struct {
	Type    string
	Payload interface{}
}

// MockPublisher records published events and returns Err from every
// Publish. Safe for concurrent use.
type MockPublisher struct {
	Err error

	mu     sync.Mutex
	events []PublishedEvent
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, PublishedEvent{Type: eventType, Payload: payload})
	return m.Err
}

// Events returns a snapshot of the recorded events in publish order
func (m *MockPublisher) Events() []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedEvent(nil), m.events...)
}

// RequireEvent returns the first event of the given type, failing t now if
// none was published.
func (m *MockPublisher) RequireEvent(t *testing.T, eventType string) PublishedEvent {
	t.Helper()
	for _, e := range m.Events() {
		if e.Type == eventType {
			return e
		}
	}
	t.Fatalf("expected event %q to be published, got %+v", eventType, m.Events())
	return PublishedEvent{}
}

// AssertEventPublished checks that an event of the given type was published
func (m *MockPublisher) AssertEventPublished(t *testing.T, eventType string) {
	t.Helper()
	for _, e := range m.Events() {
		if e.Type == eventType {
			return
		}
	}
	t.Errorf("expected event %q to be published, but it wasn't", eventType)
}

// AssertNoEventsPublished checks that no events were published
func (m *MockPublisher) AssertNoEventsPublished(t *testing.T) {
	t.Helper()
	if events := m.Events(); len(events) > 0 {
		t.Errorf("expected no events, but got %d: %+v", len(events), events)
	}
}
