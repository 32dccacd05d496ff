// Package testutil provides testing utilities for the inventory and network
// services: a migrated PostgreSQL database, sqlmock helpers, signed tokens
// for handler tests, and row fixtures.
package testutil

import (
	"context"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/suyashwaghule/joitex-IVM/pkg/config"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// EnvTestDatabaseURL points integration tests at an existing database
	// instead of starting a container. The database is migrated and truncated.
	EnvTestDatabaseURL = "JOITEX_TEST_DATABASE_URL"
	// EnvTestPostgresImage overrides the container image.
	EnvTestPostgresImage = "JOITEX_TEST_POSTGRES_IMAGE"

	defaultPostgresImage = "postgres:16-alpine"
)

// TestDatabase is the PostgreSQL instance behind the integration suite.
// container is nil when the DSN came from the environment.
type TestDatabase struct {
	DSN       string
	container *postgres.PostgresContainer
}

// StartTestDatabase returns the database named by JOITEX_TEST_DATABASE_URL,
// or starts a throwaway PostgreSQL container.
func StartTestDatabase(ctx context.Context) (*TestDatabase, error) {
	if dsn := config.GetEnv(EnvTestDatabaseURL, ""); dsn != "" {
		return &TestDatabase{DSN: dsn}, nil
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(config.GetEnv(EnvTestPostgresImage, defaultPostgresImage)),
		postgres.WithDatabase("joitex_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &TestDatabase{DSN: dsn, container: container}, nil
}

// Terminate removes the container, if one was started.
func (d *TestDatabase) Terminate(ctx context.Context) error {
	if d == nil || d.container == nil {
		return nil
	}
	return d.container.Terminate(ctx)
}
