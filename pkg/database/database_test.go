package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/suyashwaghule/joitex-IVM/pkg/errors"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return Wrap(sqlx.NewDb(sqlDB, "postgres"), logger.New("test", "test")), mock
}

func TestTransaction_CommitsAndRoutesQueriesToTx(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE inventory_items SET quantity = 1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.Transaction(context.Background(), func(ctx context.Context) error {
		assert.True(t, InTransaction(ctx))
		_, err := db.ExecContext(ctx, "UPDATE inventory_items SET quantity = 1")
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := db.Transaction(context.Background(), func(ctx context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_RollsBackOnPanic(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = db.Transaction(context.Background(), func(ctx context.Context) error {
			panic("kaboom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_NestedCallJoinsOuter(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := db.Transaction(context.Background(), func(ctx context.Context) error {
		return db.Transaction(ctx, func(inner context.Context) error {
			assert.Equal(t, db.Querier(ctx), db.Querier(inner))
			return nil
		})
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuerier_OutsideTransactionUsesPool(t *testing.T) {
	db, _ := newMockDB(t)
	assert.False(t, InTransaction(context.Background()))
	assert.Equal(t, db.DB, db.Querier(context.Background()))
}

func TestMapPQError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantNil    bool
		wantStatus int
		wantMsg    string
	}{
		{name: "not a pq error", err: errors.New("plain"), wantNil: true},
		{
			name:       "negative stock",
			err:        &pq.Error{Code: "23514", Constraint: "inventory_items_quantity_nonnegative"},
			wantStatus: 409,
			wantMsg:    "stock quantity cannot go below zero",
		},
		{
			name:       "duplicate sku",
			err:        &pq.Error{Code: "23505", Constraint: "inventory_items_sku_key"},
			wantStatus: 409,
			wantMsg:    "an item with this SKU already exists",
		},
		{
			name:       "wrapped duplicate address",
			err:        fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: "ip_allocations_pool_address_key"}),
			wantStatus: 409,
			wantMsg:    "this address is already allocated in the pool",
		},
		{
			name:       "restrict on delete",
			err:        &pq.Error{Code: "23503", Message: `update or delete on table "ip_pools" violates foreign key constraint`, Detail: `Key (id)=(x) is still referenced from table "ip_allocations".`},
			wantStatus: 409,
		},
		{
			name:       "missing reference",
			err:        &pq.Error{Code: "23503", Detail: `Key (item_id)=(x) is not present in table "inventory_items".`},
			wantStatus: 400,
		},
		{name: "unknown code", err: &pq.Error{Code: "40001"}, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapPQError(tt.err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantStatus, got.StatusCode)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, got.Message)
			}
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := &pq.Error{Code: "23505", Constraint: "ip_allocations_pool_address_key"}
	assert.True(t, IsUniqueViolation(err, "pool_address"))
	assert.False(t, IsUniqueViolation(err, "sku"))
	assert.False(t, IsUniqueViolation(apperrors.Internal("x"), "pool_address"))
}

func TestConstraintClassifiers(t *testing.T) {
	fk := &pq.Error{Code: "23503", Constraint: "ip_allocations_pool_id_fkey"}
	check := &pq.Error{Code: "23514", Constraint: "ip_pools_used_ips_bounds"}

	assert.True(t, IsForeignKeyViolation(fk))
	assert.False(t, IsForeignKeyViolation(check))
	assert.True(t, IsCheckViolation(check))
	assert.False(t, IsCheckViolation(fk))
	assert.False(t, IsCheckViolation(nil))
}
