package repository_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashwaghule/joitex-IVM/internal/inventory/repository"
	"github.com/suyashwaghule/joitex-IVM/pkg/errors"
	"github.com/suyashwaghule/joitex-IVM/pkg/testutil"
)

var itemCols = []string{"id", "sku", "name", "category", "description", "unit_price", "quantity", "min_stock_level", "created_at", "updated_at"}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		quantity int
		min      int
		want     string
	}{
		{0, 10, repository.StatusOutOfStock},
		{1, 10, repository.StatusLowStock},
		{10, 10, repository.StatusLowStock},
		{11, 10, repository.StatusInStock},
		{0, 0, repository.StatusOutOfStock},
		{1, 0, repository.StatusInStock},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, repository.StatusFor(tt.quantity, tt.min), "quantity=%d min=%d", tt.quantity, tt.min)
	}
}

func TestLineItem_AcceptsLegacyQty(t *testing.T) {
	var items repository.LineItems
	err := json.Unmarshal([]byte(`[{"name":"Fiber Cable","qty":3},{"sku":"ONT-01","quantity":2,"qty":9}]`), &items)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, "Fiber Cable", items[0].Ref())
	assert.Equal(t, 2, items[1].Quantity)
	assert.Equal(t, "ONT-01", items[1].Ref())
}

func TestLineItems_ScanAndValue(t *testing.T) {
	var items repository.LineItems
	require.NoError(t, items.Scan([]byte(`[{"name":"Router","quantity":1}]`)))
	require.Len(t, items, 1)

	v, err := items.Value()
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"Router","quantity":1}]`, v)

	var empty repository.LineItems
	require.NoError(t, empty.Scan(nil))
	assert.Empty(t, empty)
	assert.Error(t, empty.Scan(42))
}

func TestResolve_PassesSKUThenName(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	repo := repository.NewItemRepository(mockDB.Database())

	now := time.Now()
	mockDB.ExpectQuery("ORDER BY (sku = $1) DESC, created_at ASC, id ASC").
		WithArgs("FC-100M", "Fiber Cable").
		WillReturnRows(testutil.MockRows(itemCols...).
			AddRow("9b1f4d7c-0000-4000-8000-000000000001", "FC-100M", "Fiber Cable", "Cable", nil, "12.50", 4, 5, now, now))

	item, err := repo.Resolve(context.Background(), " Fiber Cable ", "FC-100M")
	require.NoError(t, err)
	assert.Equal(t, "FC-100M", item.SKU)
	assert.True(t, decimal.RequireFromString("12.5").Equal(item.UnitPrice))
	assert.Equal(t, repository.StatusLowStock, item.Status)
	mockDB.ExpectationsWereMet(t)
}

func TestResolve_NotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	repo := repository.NewItemRepository(mockDB.Database())

	mockDB.ExpectQuery("FROM inventory_items").
		WithArgs("", "Splice Tray").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Resolve(context.Background(), "Splice Tray", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrItemNotFound))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "Splice Tray", appErr.Details["item"])
}

func TestResolve_EmptyReference(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	repo := repository.NewItemRepository(mockDB.Database())

	_, err := repo.Resolve(context.Background(), " ", "")
	assert.True(t, errors.Is(err, errors.ErrItemNotFound))
	mockDB.ExpectationsWereMet(t)
}

func TestGetByID_MalformedID(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	repo := repository.NewItemRepository(mockDB.Database())

	_, err := repo.GetByID(context.Background(), "not-a-uuid")
	assert.True(t, errors.Is(err, errors.ErrItemNotFound))
	mockDB.ExpectationsWereMet(t)
}

func TestDeduct_GuardRefusesNegative(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	repo := repository.NewItemRepository(mockDB.Database())

	mockDB.ExpectQuery("WHERE id = $1 AND quantity >= $2").
		WithArgs("item-1", 7).
		WillReturnError(sql.ErrNoRows)

	item := &repository.StockItem{ID: "item-1", SKU: "FC-100M", Name: "Fiber Cable", Quantity: 5}
	err := repo.Deduct(context.Background(), item, 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))
	assert.Equal(t, 5, item.Quantity)
	mockDB.ExpectationsWereMet(t)
}

func TestResolve_TieBreak(t *testing.T) {
	testutil.SkipIfShort(t)
	suite := testutil.RequireIntegrationSuite(t)
	suite.Truncate(t)
	ctx := context.Background()
	repo := repository.NewItemRepository(suite.DB)

	older := suite.Fixtures.Item(t, testutil.ItemFixture{SKU: "FC-OLD", Name: "Fiber Cable", Quantity: 5})
	// created_at defaults to NOW(); make the ordering explicit
	_, err := suite.RawDB.Exec(`UPDATE inventory_items SET created_at = NOW() - INTERVAL '1 day' WHERE id = $1`, older.ID)
	require.NoError(t, err)
	newer := suite.Fixtures.Item(t, testutil.ItemFixture{SKU: "FC-NEW", Name: "Fiber Cable", Quantity: 5})

	byName, err := repo.Resolve(ctx, "Fiber Cable", "")
	require.NoError(t, err)
	assert.Equal(t, older.ID, byName.ID)

	bySKU, err := repo.Resolve(ctx, "Fiber Cable", "FC-NEW")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, bySKU.ID)

	_, err = repo.Resolve(ctx, "Copper Cable", "")
	assert.True(t, errors.Is(err, errors.ErrItemNotFound))
}
