package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/suyashwaghule/joitex-IVM/pkg/database"
	"github.com/suyashwaghule/joitex-IVM/pkg/errors"
)

// Pool types
const (
	PoolTypePublic     = "public"
	PoolTypePrivate    = "private"
	PoolTypeManagement = "management"
)

// Pool is an IPv4 address range handed out to customers
type Pool struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	CIDR        string    `db:"cidr" json:"cidr"`
	Gateway     string    `db:"gateway" json:"gateway"`
	PoolType    string    `db:"pool_type" json:"pool_type"`
	TotalIPs    int       `db:"total_ips" json:"total_ips"`
	UsedIPs     int       `db:"used_ips" json:"used_ips"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	// Percentage of capacity in use, rounded to one decimal
	Utilization float64 `db:"-" json:"utilization"`
}

// Free returns the remaining capacity
func (p *Pool) Free() int {
	return p.TotalIPs - p.UsedIPs
}

func (p *Pool) derive() *Pool {
	p.Utilization = Utilization(p.UsedIPs, p.TotalIPs)
	return p
}

// Utilization returns used/total as a percentage rounded to one decimal.
func Utilization(used, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(used)/float64(total)*1000) / 10
}

// PoolTotals aggregates every pool
type PoolTotals struct {
	PoolCount int64 `db:"pool_count" json:"pool_count"`
	TotalIPs  int64 `db:"total_ips" json:"total_ips"`
	UsedIPs   int64 `db:"used_ips" json:"used_ips"`
}

const poolColumns = `id, name, cidr, gateway, pool_type, total_ips, used_ips, description, created_at, updated_at`

// PoolRepository handles pool persistence
type PoolRepository struct {
	db *database.DB
}

// NewPoolRepository creates a new pool repository
func NewPoolRepository(db *database.DB) *PoolRepository {
	return &PoolRepository{db: db}
}

// Create inserts a new pool
func (r *PoolRepository) Create(ctx context.Context, pool *Pool) error {
	if pool.ID == "" {
		pool.ID = uuid.New().String()
	}

	query := `
		INSERT INTO ip_pools (id, name, cidr, gateway, pool_type, total_ips, used_ips, description)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7)
		RETURNING used_ips, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		pool.ID, pool.Name, pool.CIDR, pool.Gateway, pool.PoolType, pool.TotalIPs, pool.Description,
	).Scan(&pool.UsedIPs, &pool.CreatedAt, &pool.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to create pool: %w", err)
	}

	pool.derive()
	return nil
}

// GetByID gets a pool by ID
func (r *PoolRepository) GetByID(ctx context.Context, id string) (*Pool, error) {
	return r.get(ctx, id, `SELECT `+poolColumns+` FROM ip_pools WHERE id = $1`)
}

// LockByID gets a pool and holds its row lock until the transaction ends.
// Every change to used_ips goes through this lock.
func (r *PoolRepository) LockByID(ctx context.Context, id string) (*Pool, error) {
	return r.get(ctx, id, `SELECT `+poolColumns+` FROM ip_pools WHERE id = $1 FOR UPDATE`)
}

func (r *PoolRepository) get(ctx context.Context, id, query string) (*Pool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.PoolNotFound(id)
	}

	var pool Pool
	err := r.db.GetContext(ctx, &pool, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.PoolNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pool: %w", err)
	}
	return pool.derive(), nil
}

// List lists every pool ordered by name
func (r *PoolRepository) List(ctx context.Context, poolType string) ([]*Pool, error) {
	query := `SELECT ` + poolColumns + ` FROM ip_pools`
	args := []interface{}{}
	if poolType != "" {
		query += ` WHERE pool_type = $1`
		args = append(args, poolType)
	}
	query += ` ORDER BY name`

	pools := []*Pool{}
	if err := r.db.SelectContext(ctx, &pools, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}
	for _, p := range pools {
		p.derive()
	}
	return pools, nil
}

// Update writes the editable pool fields. used_ips is never written here.
func (r *PoolRepository) Update(ctx context.Context, pool *Pool) error {
	query := `
		UPDATE ip_pools
		SET name = $2, cidr = $3, gateway = $4, pool_type = $5, total_ips = $6, description = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING used_ips, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		pool.ID, pool.Name, pool.CIDR, pool.Gateway, pool.PoolType, pool.TotalIPs, pool.Description,
	).Scan(&pool.UsedIPs, &pool.UpdatedAt)
	if err == sql.ErrNoRows {
		return errors.PoolNotFound(pool.ID)
	}
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to update pool: %w", err)
	}

	pool.derive()
	return nil
}

// Delete removes a pool. The allocation foreign key refuses the delete while
// any allocation row still points at the pool.
func (r *PoolRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM ip_pools WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return errors.PoolInUse(id, 0)
		}
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to delete pool: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete pool: %w", err)
	}
	if rows == 0 {
		return errors.PoolNotFound(id)
	}
	return nil
}

// IncrementUsed bumps the counter of a locked pool. The check constraint
// refuses to go past total_ips.
func (r *PoolRepository) IncrementUsed(ctx context.Context, pool *Pool) error {
	return r.adjustUsed(ctx, pool, `used_ips + 1`)
}

// DecrementUsed lowers the counter of a locked pool, never below zero.
func (r *PoolRepository) DecrementUsed(ctx context.Context, pool *Pool) error {
	return r.adjustUsed(ctx, pool, `GREATEST(used_ips - 1, 0)`)
}

func (r *PoolRepository) adjustUsed(ctx context.Context, pool *Pool, expr string) error {
	query := `UPDATE ip_pools SET used_ips = ` + expr + `, updated_at = NOW() WHERE id = $1 RETURNING used_ips, updated_at`
	err := r.db.QueryRowxContext(ctx, query, pool.ID).Scan(&pool.UsedIPs, &pool.UpdatedAt)
	if err == sql.ErrNoRows {
		return errors.PoolNotFound(pool.ID)
	}
	if err != nil {
		if database.IsCheckViolation(err) {
			return errors.PoolExhausted(pool.ID, pool.UsedIPs, pool.TotalIPs)
		}
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to update pool usage: %w", err)
	}

	pool.derive()
	return nil
}

// Totals sums capacity and usage over every pool
func (r *PoolRepository) Totals(ctx context.Context) (*PoolTotals, error) {
	var totals PoolTotals
	query := `
		SELECT COUNT(*) AS pool_count,
		       COALESCE(SUM(total_ips), 0) AS total_ips,
		       COALESCE(SUM(used_ips), 0) AS used_ips
		FROM ip_pools
	`
	if err := r.db.GetContext(ctx, &totals, query); err != nil {
		return nil, fmt.Errorf("failed to get pool totals: %w", err)
	}
	return &totals, nil
}
