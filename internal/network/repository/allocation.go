package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/suyashwaghule/joitex-IVM/pkg/database"
	"github.com/suyashwaghule/joitex-IVM/pkg/errors"
)

// AllocationActive is the only stored state; releasing deletes the row.
const AllocationActive = "active"

// DefaultAllocationLimit caps allocation listings
const DefaultAllocationLimit = 50

// Allocation is one address handed to a customer
type Allocation struct {
	ID           string    `db:"id" json:"id"`
	PoolID       string    `db:"pool_id" json:"pool_id"`
	IPAddress    string    `db:"ip_address" json:"ip_address"`
	CustomerName string    `db:"customer_name" json:"customer_name"`
	MACAddress   string    `db:"mac_address" json:"mac_address"`
	Status       string    `db:"status" json:"status"`
	AssignedAt   time.Time `db:"assigned_at" json:"assigned_at"`
	AssignedBy   string    `db:"assigned_by" json:"assigned_by"`

	// Joined from ip_pools
	PoolName string `db:"pool_name" json:"pool_name"`
}

// AllocationFilter narrows allocation listings
type AllocationFilter struct {
	PoolID   string
	Customer string
	Limit    int
}

const allocationSelect = `
	SELECT a.id, a.pool_id, a.ip_address, a.customer_name, a.mac_address, a.status, a.assigned_at, a.assigned_by,
	       p.name AS pool_name
	FROM ip_allocations a
	JOIN ip_pools p ON p.id = a.pool_id
`

// AllocationRepository handles allocation persistence
type AllocationRepository struct {
	db *database.DB
}

// NewAllocationRepository creates a new allocation repository
func NewAllocationRepository(db *database.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

// Insert records an active allocation. A second active row for the same
// address in the pool violates the unique key and surfaces as AddressInUse.
func (r *AllocationRepository) Insert(ctx context.Context, a *Allocation) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.Status = AllocationActive

	query := `
		INSERT INTO ip_allocations (id, pool_id, ip_address, customer_name, mac_address, status, assigned_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING assigned_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		a.ID, a.PoolID, a.IPAddress, a.CustomerName, a.MACAddress, a.Status, a.AssignedBy,
	).Scan(&a.AssignedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "pool_address") {
			return errors.AddressInUse(a.IPAddress)
		}
		if database.IsForeignKeyViolation(err) {
			return errors.PoolNotFound(a.PoolID)
		}
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to create allocation: %w", err)
	}
	return nil
}

// GetByID gets an allocation by ID
func (r *AllocationRepository) GetByID(ctx context.Context, id string) (*Allocation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.AllocationNotFound(id)
	}

	var a Allocation
	err := r.db.GetContext(ctx, &a, allocationSelect+` WHERE a.id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.AllocationNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get allocation: %w", err)
	}
	return &a, nil
}

// Delete removes an allocation. Zero affected rows means someone else
// released it first.
func (r *AllocationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM ip_allocations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete allocation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete allocation: %w", err)
	}
	if rows == 0 {
		return errors.AllocationNotFound(id)
	}
	return nil
}

// ActiveAddresses returns every address currently held in a pool
func (r *AllocationRepository) ActiveAddresses(ctx context.Context, poolID string) ([]string, error) {
	var addrs []string
	query := `SELECT ip_address FROM ip_allocations WHERE pool_id = $1 AND status = 'active'`
	if err := r.db.SelectContext(ctx, &addrs, query, poolID); err != nil {
		return nil, fmt.Errorf("failed to list active addresses: %w", err)
	}
	return addrs, nil
}

// IsActive reports whether an address is currently held in a pool
func (r *AllocationRepository) IsActive(ctx context.Context, poolID, address string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM ip_allocations WHERE pool_id = $1 AND ip_address = $2 AND status = 'active')`
	if err := r.db.GetContext(ctx, &exists, query, poolID, address); err != nil {
		return false, fmt.Errorf("failed to check address: %w", err)
	}
	return exists, nil
}

// CountByPool counts the allocation rows of a pool regardless of status
func (r *AllocationRepository) CountByPool(ctx context.Context, poolID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM ip_allocations WHERE pool_id = $1`, poolID); err != nil {
		return 0, fmt.Errorf("failed to count allocations: %w", err)
	}
	return count, nil
}

// List lists allocations, newest first
func (r *AllocationRepository) List(ctx context.Context, filter AllocationFilter) ([]*Allocation, error) {
	query := allocationSelect + ` WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.PoolID != "" {
		if _, err := uuid.Parse(filter.PoolID); err != nil {
			return nil, errors.PoolNotFound(filter.PoolID)
		}
		query += fmt.Sprintf(` AND a.pool_id = $%d`, argIdx)
		args = append(args, filter.PoolID)
		argIdx++
	}
	if filter.Customer != "" {
		query += fmt.Sprintf(` AND a.customer_name ILIKE $%d`, argIdx)
		args = append(args, "%"+filter.Customer+"%")
		argIdx++
	}

	if filter.Limit < 1 {
		filter.Limit = DefaultAllocationLimit
	}
	query += fmt.Sprintf(` ORDER BY a.assigned_at DESC, a.id LIMIT $%d`, argIdx)
	args = append(args, filter.Limit)

	allocs := []*Allocation{}
	if err := r.db.SelectContext(ctx, &allocs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}
	return allocs, nil
}
