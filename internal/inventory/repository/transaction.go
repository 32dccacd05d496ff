package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/suyashwaghule/joitex-IVM/pkg/database"
)

// Ledger directions
const (
	TransactionIn  = "IN"
	TransactionOut = "OUT"
)

// DefaultTransactionLimit caps the transactions feed
const DefaultTransactionLimit = 50

// StockTransaction is an append-only ledger row recording one stock movement.
type StockTransaction struct {
	ID              string    `db:"id" json:"id"`
	ItemID          string    `db:"item_id" json:"item_id"`
	TransactionType string    `db:"transaction_type" json:"transaction_type"`
	Quantity        int       `db:"quantity" json:"quantity"`
	Reference       string    `db:"reference" json:"reference"`
	PerformedBy     string    `db:"performed_by" json:"performed_by"`
	Notes           string    `db:"notes" json:"notes"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`

	// Joined from inventory_items for display
	ItemName string `db:"item_name" json:"item_name,omitempty"`
	ItemSKU  string `db:"item_sku" json:"item_sku,omitempty"`
}

// LedgerSums totals the ledger rows of one item
type LedgerSums struct {
	TotalIn  int64 `db:"total_in" json:"total_in"`
	TotalOut int64 `db:"total_out" json:"total_out"`
}

// TransactionRepository handles stock ledger persistence
type TransactionRepository struct {
	db *database.DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *database.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Insert appends a ledger row
func (r *TransactionRepository) Insert(ctx context.Context, tx *StockTransaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stock_transactions (id, item_id, transaction_type, quantity, reference, performed_by, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		tx.ID, tx.ItemID, tx.TransactionType, tx.Quantity, tx.Reference, tx.PerformedBy, tx.Notes,
	).Scan(&tx.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to insert stock transaction: %w", err)
	}

	return nil
}

// List returns the most recent ledger rows, newest first. itemID is optional.
func (r *TransactionRepository) List(ctx context.Context, itemID string, limit int) ([]*StockTransaction, error) {
	if limit < 1 {
		limit = DefaultTransactionLimit
	}

	query := `
		SELECT t.id, t.item_id, t.transaction_type, t.quantity, t.reference, t.performed_by, t.notes, t.created_at,
		       i.name AS item_name, i.sku AS item_sku
		FROM stock_transactions t
		JOIN inventory_items i ON i.id = t.item_id
	`
	args := []interface{}{}
	if itemID != "" {
		query += ` WHERE t.item_id = $1`
		args = append(args, itemID)
	}
	query += fmt.Sprintf(` ORDER BY t.created_at DESC, t.id LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	var txs []*StockTransaction
	if err := r.db.SelectContext(ctx, &txs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list stock transactions: %w", err)
	}
	return txs, nil
}

// Sums totals the IN and OUT rows recorded against an item
func (r *TransactionRepository) Sums(ctx context.Context, itemID string) (*LedgerSums, error) {
	var sums LedgerSums
	query := `
		SELECT COALESCE(SUM(quantity) FILTER (WHERE transaction_type = 'IN'), 0) AS total_in,
		       COALESCE(SUM(quantity) FILTER (WHERE transaction_type = 'OUT'), 0) AS total_out
		FROM stock_transactions
		WHERE item_id = $1
	`
	if err := r.db.GetContext(ctx, &sums, query, itemID); err != nil {
		return nil, fmt.Errorf("failed to sum stock transactions: %w", err)
	}
	return &sums, nil
}

// CountSince counts ledger rows written at or after since
func (r *TransactionRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM stock_transactions WHERE created_at >= $1`
	if err := r.db.GetContext(ctx, &count, query, since); err != nil {
		return 0, fmt.Errorf("failed to count stock transactions: %w", err)
	}
	return count, nil
}
