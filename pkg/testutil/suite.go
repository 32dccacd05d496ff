package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/suyashwaghule/joitex-IVM/pkg/database"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
	"github.com/suyashwaghule/joitex-IVM/pkg/migrate"
)

// One database is shared by every integration test in the process.
var (
	sharedDatabase *TestDatabase
	sharedDB       *sqlx.DB
	sharedOnce     sync.Once
	sharedErr      error
)

// Tables holds every table the migrations create, children first.
var Tables = []string{
	"stock_transactions",
	"stock_requests",
	"inventory_items",
	"user_cache",
	"ip_allocations",
	"ip_pools",
}

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Database  *TestDatabase
	RawDB     *sqlx.DB
	DB        *database.DB
	Fixtures  *FixtureFactory
	Logger    *logger.Logger
}

// NewIntegrationSuite starts (or reuses) the shared database and applies
// the goose migrations.
//
// Usage:
//
//	func TestApprove_Concurrent(t *testing.T) {
//	    testutil.SkipIfShort(t)
//	    suite := testutil.RequireIntegrationSuite(t)
//	    suite.Truncate(t)
//	    ...
//	}
func NewIntegrationSuite(ctx context.Context) (*IntegrationSuite, error) {
	testDB, db, err := sharedDatabaseFor(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.Nop()
	wrappedDB, err := database.NewWithDSN(testDB.DSN, log)
	if err != nil {
		return nil, err
	}

	return &IntegrationSuite{
		Database:  testDB,
		RawDB:     db,
		DB:        wrappedDB,
		Fixtures:  NewFixtureFactory(db),
		Logger:    log,
	}, nil
}

// RequireIntegrationSuite builds the suite or fails the test.
func RequireIntegrationSuite(t *testing.T) *IntegrationSuite {
	t.Helper()
	suite, err := NewIntegrationSuite(DefaultTestContext(t))
	if err != nil {
		t.Fatalf("failed to set up integration suite: %v", err)
	}
	return suite
}

func sharedDatabaseFor(ctx context.Context) (*TestDatabase, *sqlx.DB, error) {
	sharedOnce.Do(func() {
		sharedDatabase, sharedErr = StartTestDatabase(ctx)
		if sharedErr != nil {
			return
		}
		sharedDB, sharedErr = sqlx.ConnectContext(ctx, "postgres", sharedDatabase.DSN)
		if sharedErr != nil {
			sharedErr = fmt.Errorf("failed to connect to test database: %w", sharedErr)
			return
		}
		if err := migrate.Up(ctx, sharedDB.DB); err != nil {
			sharedErr = fmt.Errorf("failed to migrate test database: %w", err)
		}
	})

	return sharedDatabase, sharedDB, sharedErr
}

// Truncate empties every table and restarts the request number sequence.
func (s *IntegrationSuite) Truncate(t *testing.T) {
	t.Helper()
	query := "TRUNCATE " + strings.Join(Tables, ", ") + " RESTART IDENTITY CASCADE"
	if _, err := s.RawDB.Exec(query); err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
	if _, err := s.RawDB.Exec("ALTER SEQUENCE stock_request_number_seq RESTART"); err != nil {
		t.Fatalf("failed to reset request sequence: %v", err)
	}
}

// Close releases the suite's pooled connection.
func (s *IntegrationSuite) Close() error {
	return s.DB.Close()
}

// TerminateContainer removes the shared container, if one was started.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if sharedDB != nil {
		sharedDB.Close()
	}
	sharedDatabase.Terminate(ctx)
}
