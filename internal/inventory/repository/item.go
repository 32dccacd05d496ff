package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/suyashwaghule/joitex-IVM/pkg/database"
	"github.com/suyashwaghule/joitex-IVM/pkg/errors"
)

// Derived stock status values.
const (
	StatusInStock    = "in_stock"
	StatusLowStock   = "low_stock"
	StatusOutOfStock = "out_of_stock"
)

// StockItem represents a countable inventory item
type StockItem struct {
	ID            string          `db:"id" json:"id"`
	SKU           string          `db:"sku" json:"sku"`
	Name          string          `db:"name" json:"name"`
	Category      string          `db:"category" json:"category"`
	Description   *string         `db:"description" json:"description,omitempty"`
	UnitPrice     decimal.Decimal `db:"unit_price" json:"unit_price"`
	Quantity      int             `db:"quantity" json:"quantity"`
	MinStockLevel int             `db:"min_stock_level" json:"min_stock_level"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`

	// Computed from quantity and min_stock_level
	Status string `db:"-" json:"status"`
}

// StatusFor derives the stock status for a quantity against its threshold.
func StatusFor(quantity, minStockLevel int) string {
	switch {
	case quantity <= 0:
		return StatusOutOfStock
	case quantity <= minStockLevel:
		return StatusLowStock
	default:
		return StatusInStock
	}
}

func (i *StockItem) derive() *StockItem {
	i.Status = StatusFor(i.Quantity, i.MinStockLevel)
	return i
}

var statusAliases = map[string]string{
	StatusInStock:    StatusInStock,
	"instock":        StatusInStock,
	StatusLowStock:   StatusLowStock,
	"low":            StatusLowStock,
	StatusOutOfStock: StatusOutOfStock,
	"out":            StatusOutOfStock,
}

// ParseStatus maps a status filter to its derived status. The short forms
// low, out and instock are accepted too.
func ParseStatus(s string) (string, bool) {
	status, ok := statusAliases[s]
	return status, ok
}

// ItemFilter narrows item listings. Status is one of the derived statuses.
type ItemFilter struct {
	Category string
	Status   string
	Search   string
	Page     int
	PerPage  int
}

// ItemStats aggregates the catalog for the dashboard
type ItemStats struct {
	TotalUnits int64 `db:"total_units" json:"total_units"`
	SKUCount   int64 `db:"sku_count" json:"sku_count"`
	LowStock   int64 `db:"low_stock" json:"low_stock"`
	OutOfStock int64 `db:"out_of_stock" json:"out_of_stock"`
}

// CategoryTotal is the stock held in one category
type CategoryTotal struct {
	Category string          `db:"category" json:"category"`
	Quantity int64           `db:"quantity" json:"quantity"`
	Value    decimal.Decimal `db:"value" json:"value"`
}

const itemColumns = `id, sku, name, category, description, unit_price, quantity, min_stock_level, created_at, updated_at`

// ItemRepository handles stock item persistence
type ItemRepository struct {
	db *database.DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *database.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// Create inserts a new item
func (r *ItemRepository) Create(ctx context.Context, item *StockItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Category == "" {
		item.Category = "General"
	}

	query := `
		INSERT INTO inventory_items (id, sku, name, category, description, unit_price, quantity, min_stock_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		item.ID, item.SKU, item.Name, item.Category, item.Description,
		item.UnitPrice, item.Quantity, item.MinStockLevel,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to create item: %w", err)
	}

	item.derive()
	return nil
}

// GetByID gets an item by ID
func (r *ItemRepository) GetByID(ctx context.Context, id string) (*StockItem, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.ItemNotFound(id)
	}

	var item StockItem
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE id = $1`
	err := r.db.GetContext(ctx, &item, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ItemNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	return item.derive(), nil
}

// GetBySKU gets an item by its exact SKU
func (r *ItemRepository) GetBySKU(ctx context.Context, sku string) (*StockItem, error) {
	var item StockItem
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE sku = $1`
	err := r.db.GetContext(ctx, &item, query, sku)
	if err == sql.ErrNoRows {
		return nil, errors.ItemNotFound(sku)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item by sku: %w", err)
	}

	return item.derive(), nil
}

// Resolve finds the item a request line refers to. A line may name the item,
// give its SKU, or both. An exact SKU match wins over a name match; among
// several items sharing a name the oldest wins, then the lowest id.
func (r *ItemRepository) Resolve(ctx context.Context, name, sku string) (*StockItem, error) {
	name = strings.TrimSpace(name)
	sku = strings.TrimSpace(sku)
	if name == "" && sku == "" {
		return nil, errors.ItemNotFound("")
	}

	var item StockItem
	query := `
		SELECT ` + itemColumns + `
		FROM inventory_items
		WHERE ($1 <> '' AND sku = $1) OR ($2 <> '' AND name = $2)
		ORDER BY (sku = $1) DESC, created_at ASC, id ASC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &item, query, sku, name)
	if err == sql.ErrNoRows {
		ref := name
		if ref == "" {
			ref = sku
		}
		return nil, errors.ItemNotFound(ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve item: %w", err)
	}

	return item.derive(), nil
}

// LockByIDs locks the given items for update in ascending id order and returns
// them keyed by id. Must run inside a transaction.
func (r *ItemRepository) LockByIDs(ctx context.Context, ids []string) (map[string]*StockItem, error) {
	var items []*StockItem
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	if err := r.db.SelectContext(ctx, &items, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to lock items: %w", err)
	}

	locked := make(map[string]*StockItem, len(items))
	for _, item := range items {
		locked[item.ID] = item.derive()
	}
	return locked, nil
}

// Deduct removes quantity from a locked item. The guarded update refuses to
// take the counter below zero.
func (r *ItemRepository) Deduct(ctx context.Context, item *StockItem, quantity int) error {
	query := `
		UPDATE inventory_items
		SET quantity = quantity - $2, updated_at = NOW()
		WHERE id = $1 AND quantity >= $2
		RETURNING quantity, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query, item.ID, quantity).Scan(&item.Quantity, &item.UpdatedAt)
	if err == sql.ErrNoRows {
		return errors.InsufficientStock(item.ID, item.SKU, item.Name, item.Quantity, quantity)
	}
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to deduct stock: %w", err)
	}

	item.derive()
	return nil
}

// Increment adds quantity to a locked item and optionally replaces its unit price.
func (r *ItemRepository) Increment(ctx context.Context, item *StockItem, quantity int, unitPrice *decimal.Decimal) error {
	query := `
		UPDATE inventory_items
		SET quantity = quantity + $2,
		    unit_price = COALESCE($3, unit_price),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING quantity, unit_price, updated_at
	`
	var price decimal.NullDecimal
	if unitPrice != nil {
		price = decimal.NewNullDecimal(*unitPrice)
	}

	err := r.db.QueryRowxContext(ctx, query, item.ID, quantity, price).
		Scan(&item.Quantity, &item.UnitPrice, &item.UpdatedAt)
	if err == sql.ErrNoRows {
		return errors.ItemNotFound(item.ID)
	}
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to increment stock: %w", err)
	}

	item.derive()
	return nil
}

// List lists items with optional filters
func (r *ItemRepository) List(ctx context.Context, filter ItemFilter) ([]*StockItem, int64, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Category != "" {
		where += fmt.Sprintf(` AND category = $%d`, argIdx)
		args = append(args, filter.Category)
		argIdx++
	}

	switch filter.Status {
	case StatusInStock:
		where += ` AND quantity > min_stock_level`
	case StatusLowStock:
		where += ` AND quantity > 0 AND quantity <= min_stock_level`
	case StatusOutOfStock:
		where += ` AND quantity <= 0`
	}

	if filter.Search != "" {
		where += fmt.Sprintf(` AND (name ILIKE $%d OR sku ILIKE $%d)`, argIdx, argIdx)
		args = append(args, "%"+filter.Search+"%")
		argIdx++
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM inventory_items`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count items: %w", err)
	}

	if filter.PerPage < 1 {
		filter.PerPage = 20
	}
	if filter.Page < 1 {
		filter.Page = 1
	}

	query := `SELECT ` + itemColumns + ` FROM inventory_items` + where +
		fmt.Sprintf(` ORDER BY name, created_at LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)

	var items []*StockItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list items: %w", err)
	}

	for _, item := range items {
		item.derive()
	}
	return items, total, nil
}

// Update updates the descriptive fields of an item. Quantity is owned by the
// allocation engine and never written here.
func (r *ItemRepository) Update(ctx context.Context, item *StockItem) error {
	query := `
		UPDATE inventory_items
		SET name = $2, category = $3, description = $4, unit_price = $5, min_stock_level = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING sku, quantity, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		item.ID, item.Name, item.Category, item.Description, item.UnitPrice, item.MinStockLevel,
	).Scan(&item.SKU, &item.Quantity, &item.CreatedAt, &item.UpdatedAt)
	if err == sql.ErrNoRows {
		return errors.ItemNotFound(item.ID)
	}
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to update item: %w", err)
	}

	item.derive()
	return nil
}

// Stats returns catalog-wide counters
func (r *ItemRepository) Stats(ctx context.Context) (*ItemStats, error) {
	var stats ItemStats
	query := `
		SELECT COALESCE(SUM(quantity), 0) AS total_units,
		       COUNT(*) AS sku_count,
		       COUNT(*) FILTER (WHERE quantity > 0 AND quantity <= min_stock_level) AS low_stock,
		       COUNT(*) FILTER (WHERE quantity = 0) AS out_of_stock
		FROM inventory_items
	`
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("failed to get item stats: %w", err)
	}
	return &stats, nil
}

// CategoryTotals returns quantity and stock value per category
func (r *ItemRepository) CategoryTotals(ctx context.Context) ([]*CategoryTotal, error) {
	var totals []*CategoryTotal
	query := `
		SELECT category,
		       COALESCE(SUM(quantity), 0) AS quantity,
		       COALESCE(SUM(quantity * unit_price), 0) AS value
		FROM inventory_items
		GROUP BY category
		ORDER BY category
	`
	if err := r.db.SelectContext(ctx, &totals, query); err != nil {
		return nil, fmt.Errorf("failed to get category totals: %w", err)
	}
	return totals, nil
}
