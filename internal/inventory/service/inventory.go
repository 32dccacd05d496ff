package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/suyashwaghule/joitex-IVM/internal/inventory/repository"
	"github.com/suyashwaghule/joitex-IVM/pkg/actor"
	"github.com/suyashwaghule/joitex-IVM/pkg/database"
	"github.com/suyashwaghule/joitex-IVM/pkg/errors"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
	"github.com/suyashwaghule/joitex-IVM/pkg/permissions"
)

// OpeningBalanceNote marks the IN transaction written for an item's initial quantity
const OpeningBalanceNote = "Opening balance"

// DefaultMinStockLevel applies when an item is created without a threshold
const DefaultMinStockLevel = 10

// CreateItemInput is a new catalog entry
type CreateItemInput struct {
	SKU           string          `json:"sku" validate:"required,max=64"`
	Name          string          `json:"name" validate:"required,max=255"`
	Category      string          `json:"category" validate:"max=100"`
	Description   *string         `json:"description,omitempty"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Quantity      int             `json:"quantity" validate:"gte=0"`
	MinStockLevel *int            `json:"min_stock_level,omitempty" validate:"omitempty,gte=0"`
}

// UpdateItemInput patches the descriptive fields of an item
type UpdateItemInput struct {
	Name          *string          `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Category      *string          `json:"category,omitempty" validate:"omitempty,min=1,max=100"`
	Description   *string          `json:"description,omitempty"`
	UnitPrice     *decimal.Decimal `json:"unit_price,omitempty"`
	MinStockLevel *int             `json:"min_stock_level,omitempty" validate:"omitempty,gte=0"`
}

// LedgerReport reconciles an item's counter against its ledger
type LedgerReport struct {
	Item         *repository.StockItem          `json:"item"`
	TotalIn      int64                          `json:"total_in"`
	TotalOut     int64                          `json:"total_out"`
	Balanced     bool                           `json:"balanced"`
	Transactions []*repository.StockTransaction `json:"transactions"`
}

// InventoryStats represents dashboard statistics
type InventoryStats struct {
	TotalUnits      int64                       `json:"total_units"`
	SKUCount        int64                       `json:"sku_count"`
	LowStockCount   int64                       `json:"low_stock_count"`
	OutOfStockCount int64                       `json:"out_of_stock_count"`
	PendingRequests int64                       `json:"pending_requests"`
	MovementsToday  int64                       `json:"movements_today"`
	TotalValue      decimal.Decimal             `json:"total_value"`
	Categories      []*repository.CategoryTotal `json:"categories"`
}

// InventoryService handles the item catalog and the read side of the ledger
type InventoryService struct {
	db           *database.DB
	items        *repository.ItemRepository
	transactions *repository.TransactionRepository
	requests     *repository.RequestRepository
	users        *repository.UserCacheRepository
	logger       *logger.Logger
	now          func() time.Time
}

// NewInventoryService creates a new inventory service
func NewInventoryService(
	db *database.DB,
	items *repository.ItemRepository,
	transactions *repository.TransactionRepository,
	requests *repository.RequestRepository,
	users *repository.UserCacheRepository,
	log *logger.Logger,
) *InventoryService {
	return &InventoryService{
		db:           db,
		items:        items,
		transactions: transactions,
		requests:     requests,
		users:        users,
		logger:       log,
		now:          time.Now,
	}
}

// Item operations

// CreateItem adds an item to the catalog. An opening quantity is booked as an
// IN transaction so the ledger balances from the start.
func (s *InventoryService) CreateItem(ctx context.Context, input CreateItemInput, by *actor.Actor) (*repository.StockItem, error) {
	by = orSystem(by)
	if input.UnitPrice.IsNegative() {
		return nil, errors.Validation(map[string]string{"unit_price": "must be greater than or equal to 0"})
	}

	item := &repository.StockItem{
		SKU:           input.SKU,
		Name:          input.Name,
		Category:      input.Category,
		Description:   input.Description,
		UnitPrice:     input.UnitPrice,
		Quantity:      input.Quantity,
		MinStockLevel: DefaultMinStockLevel,
	}
	if input.MinStockLevel != nil {
		item.MinStockLevel = *input.MinStockLevel
	}

	err := s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.items.Create(ctx, item); err != nil {
			return err
		}
		if item.Quantity == 0 {
			return nil
		}
		return s.transactions.Insert(ctx, &repository.StockTransaction{
			ItemID:          item.ID,
			TransactionType: repository.TransactionIn,
			Quantity:        item.Quantity,
			Reference:       item.SKU,
			PerformedBy:     by.ID,
			Notes:           OpeningBalanceNote,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.For(ctx).Info().Str("item_id", item.ID).Str("sku", item.SKU).Msg("item created")
	return item, nil
}

// GetItem gets an item by ID
func (s *InventoryService) GetItem(ctx context.Context, id string) (*repository.StockItem, error) {
	return s.items.GetByID(ctx, id)
}

// ListItems lists items
func (s *InventoryService) ListItems(ctx context.Context, filter repository.ItemFilter) ([]*repository.StockItem, int64, error) {
	return s.items.List(ctx, filter)
}

// UpdateItem applies a patch to an item's descriptive fields
func (s *InventoryService) UpdateItem(ctx context.Context, id string, input UpdateItemInput) (*repository.StockItem, error) {
	if input.UnitPrice != nil && input.UnitPrice.IsNegative() {
		return nil, errors.Validation(map[string]string{"unit_price": "must be greater than or equal to 0"})
	}

	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		item.Name = *input.Name
	}
	if input.Category != nil {
		item.Category = *input.Category
	}
	if input.Description != nil {
		item.Description = input.Description
	}
	if input.UnitPrice != nil {
		item.UnitPrice = *input.UnitPrice
	}
	if input.MinStockLevel != nil {
		item.MinStockLevel = *input.MinStockLevel
	}

	if err := s.items.Update(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// Ledger operations

// Ledger reconciles an item: the counter must equal IN minus OUT.
func (s *InventoryService) Ledger(ctx context.Context, id string) (*LedgerReport, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	sums, err := s.transactions.Sums(ctx, item.ID)
	if err != nil {
		return nil, err
	}

	txs, err := s.transactions.List(ctx, item.ID, repository.DefaultTransactionLimit)
	if err != nil {
		return nil, err
	}

	report := &LedgerReport{
		Item:         item,
		TotalIn:      sums.TotalIn,
		TotalOut:     sums.TotalOut,
		Balanced:     sums.TotalIn-sums.TotalOut == int64(item.Quantity),
		Transactions: txs,
	}
	if !report.Balanced {
		s.logger.For(ctx).Warn().
			Str("item_id", item.ID).
			Int("quantity", item.Quantity).
			Int64("total_in", sums.TotalIn).
			Int64("total_out", sums.TotalOut).
			Msg("ledger does not reconcile with stock counter")
	}
	return report, nil
}

// ListTransactions returns the latest ledger rows, optionally for one item
func (s *InventoryService) ListTransactions(ctx context.Context, itemID string, limit int) ([]*repository.StockTransaction, error) {
	return s.transactions.List(ctx, itemID, limit)
}

// Dashboard

// Stats returns dashboard statistics
func (s *InventoryService) Stats(ctx context.Context) (*InventoryStats, error) {
	itemStats, err := s.items.Stats(ctx)
	if err != nil {
		return nil, err
	}

	categories, err := s.items.CategoryTotals(ctx)
	if err != nil {
		return nil, err
	}

	pending, err := s.requests.CountByStatus(ctx, repository.RequestPending)
	if err != nil {
		return nil, err
	}

	now := s.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	movements, err := s.transactions.CountSince(ctx, startOfDay)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, c := range categories {
		total = total.Add(c.Value)
	}

	return &InventoryStats{
		TotalUnits:      itemStats.TotalUnits,
		SKUCount:        itemStats.SKUCount,
		LowStockCount:   itemStats.LowStock,
		OutOfStockCount: itemStats.OutOfStock,
		PendingRequests: pending,
		MovementsToday:  movements,
		TotalValue:      total,
		Categories:      categories,
	}, nil
}

// Engineers lists the field engineers known from user events
func (s *InventoryService) Engineers(ctx context.Context) ([]*repository.Engineer, error) {
	return s.users.ListByRole(ctx, permissions.RoleEngineer)
}
