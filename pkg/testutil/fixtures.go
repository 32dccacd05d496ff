package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ItemFixture is a stock item row to seed.
type ItemFixture struct {
	ID            string
	SKU           string
	Name          string
	Category      string
	UnitPrice     string
	Quantity      int
	MinStockLevel int
}

// PoolFixture is an address pool row to seed.
type PoolFixture struct {
	ID       string
	Name     string
	CIDR     string
	Gateway  string
	PoolType string
	TotalIPs int
	UsedIPs  int
}

// FixtureFactory inserts rows with sensible defaults straight through SQL,
// bypassing the services so tests can set up states the engines would refuse.
type FixtureFactory struct {
	db       *sqlx.DB
	mu       sync.Mutex
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory(db *sqlx.DB) *FixtureFactory {
	return &FixtureFactory{db: db}
}

func (f *FixtureFactory) next() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sequence++
	return f.sequence
}

// Item inserts a stock item. Zero fields get defaults; the returned fixture
// carries the generated ID.
func (f *FixtureFactory) Item(t *testing.T, item ItemFixture) ItemFixture {
	t.Helper()
	n := f.next()
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.SKU == "" {
		item.SKU = fmt.Sprintf("SKU-%04d", n)
	}
	if item.Name == "" {
		item.Name = fmt.Sprintf("Test Item %d", n)
	}
	if item.Category == "" {
		item.Category = "General"
	}
	if item.UnitPrice == "" {
		item.UnitPrice = "0"
	}

	_, err := f.db.ExecContext(context.Background(), `
		INSERT INTO inventory_items (id, sku, name, category, unit_price, quantity, min_stock_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		item.ID, item.SKU, item.Name, item.Category, item.UnitPrice, item.Quantity, item.MinStockLevel,
	)
	if err != nil {
		t.Fatalf("failed to insert item fixture: %v", err)
	}
	return item
}

// Pool inserts an address pool.
func (f *FixtureFactory) Pool(t *testing.T, pool PoolFixture) PoolFixture {
	t.Helper()
	n := f.next()
	if pool.ID == "" {
		pool.ID = uuid.New().String()
	}
	if pool.Name == "" {
		pool.Name = fmt.Sprintf("pool-%d", n)
	}
	if pool.PoolType == "" {
		pool.PoolType = "public"
	}

	_, err := f.db.ExecContext(context.Background(), `
		INSERT INTO ip_pools (id, name, cidr, gateway, pool_type, total_ips, used_ips)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		pool.ID, pool.Name, pool.CIDR, pool.Gateway, pool.PoolType, pool.TotalIPs, pool.UsedIPs,
	)
	if err != nil {
		t.Fatalf("failed to insert pool fixture: %v", err)
	}
	return pool
}

// Allocation inserts an active allocation without touching the pool counter.
func (f *FixtureFactory) Allocation(t *testing.T, poolID, address, customer string) string {
	t.Helper()
	id := uuid.New().String()
	_, err := f.db.ExecContext(context.Background(), `
		INSERT INTO ip_allocations (id, pool_id, ip_address, customer_name, status, assigned_by)
		VALUES ($1, $2, $3, $4, 'active', 'fixture')`,
		id, poolID, address, customer,
	)
	if err != nil {
		t.Fatalf("failed to insert allocation fixture: %v", err)
	}
	return id
}
