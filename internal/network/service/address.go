package service

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/suyashwaghule/joitex-IVM/internal/network/events"
	"github.com/suyashwaghule/joitex-IVM/internal/network/repository"
	"github.com/suyashwaghule/joitex-IVM/pkg/actor"
	"github.com/suyashwaghule/joitex-IVM/pkg/database"
	"github.com/suyashwaghule/joitex-IVM/pkg/errors"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
	"github.com/suyashwaghule/joitex-IVM/pkg/metrics"
)

// Operation names used in logs and metrics
const (
	OpAllocate   = "ip_allocate"
	OpRelease    = "ip_release"
	OpCreatePool = "pool_create"
	OpUpdatePool = "pool_update"
	OpDeletePool = "pool_delete"
)

// AllocateInput asks for an address from a pool. Without IPAddress the
// lowest free host is assigned.
type AllocateInput struct {
	PoolID       string `json:"pool_id" validate:"required,uuid"`
	IPAddress    string `json:"ip_address" validate:"omitempty,ipv4"`
	CustomerName string `json:"customer_name" validate:"required,max=255"`
	MACAddress   string `json:"mac_address" validate:"omitempty,mac"`
}

// CreatePoolInput defines a new pool. TotalIPs may only lower the capacity
// derived from the CIDR.
type CreatePoolInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	CIDR        string `json:"cidr" validate:"required,cidrv4"`
	Gateway     string `json:"gateway" validate:"omitempty,ipv4"`
	PoolType    string `json:"pool_type" validate:"omitempty,oneof=public private management"`
	Description string `json:"description"`
	TotalIPs    *int   `json:"total_ips,omitempty" validate:"omitempty,min=1"`
}

// UpdatePoolInput patches a pool
type UpdatePoolInput struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	CIDR        *string `json:"cidr,omitempty" validate:"omitempty,cidrv4"`
	Gateway     *string `json:"gateway,omitempty" validate:"omitempty,ipv4"`
	PoolType    *string `json:"pool_type,omitempty" validate:"omitempty,oneof=public private management"`
	Description *string `json:"description,omitempty"`
	TotalIPs    *int    `json:"total_ips,omitempty" validate:"omitempty,min=1"`
}

// NetworkStats summarises address usage across pools
type NetworkStats struct {
	PoolCount   int64   `json:"pool_count"`
	TotalIPs    int64   `json:"total_ips"`
	UsedIPs     int64   `json:"used_ips"`
	FreeIPs     int64   `json:"free_ips"`
	Utilization float64 `json:"utilization"`
}

// AddressAllocationEngine hands out and reclaims pool addresses. The pool
// row lock serialises every change to a pool's counter and allocations.
type AddressAllocationEngine struct {
	db          *database.DB
	pools       *repository.PoolRepository
	allocations *repository.AllocationRepository
	publisher   *events.NetworkEventPublisher
	metrics     *metrics.AllocationMetrics
	logger      *logger.Logger
}

// NewAddressAllocationEngine creates a new address allocation engine
func NewAddressAllocationEngine(
	db *database.DB,
	pools *repository.PoolRepository,
	allocations *repository.AllocationRepository,
	publisher *events.NetworkEventPublisher,
	m *metrics.AllocationMetrics,
	log *logger.Logger,
) *AddressAllocationEngine {
	return &AddressAllocationEngine{
		db:          db,
		pools:       pools,
		allocations: allocations,
		publisher:   publisher,
		metrics:     m,
		logger:      log.WithComponent("address_engine"),
	}
}

// Allocate assigns an address to a customer and bumps the pool counter in
// the same transaction.
func (e *AddressAllocationEngine) Allocate(ctx context.Context, input AllocateInput, by *actor.Actor) (alloc *repository.Allocation, err error) {
	defer e.observe(OpAllocate, time.Now(), &err)
	by = orSystem(by)

	var pool *repository.Pool
	err = e.db.Transaction(ctx, func(ctx context.Context) error {
		var err error
		pool, err = e.pools.LockByID(ctx, input.PoolID)
		if err != nil {
			return err
		}
		if pool.UsedIPs >= pool.TotalIPs {
			return errors.PoolExhausted(pool.ID, pool.UsedIPs, pool.TotalIPs)
		}

		subnet, err := ParseSubnet(pool.CIDR)
		if err != nil {
			return fmt.Errorf("pool %s has unusable cidr %q: %w", pool.ID, pool.CIDR, err)
		}
		gateway, _ := netip.ParseAddr(pool.Gateway)

		var addr netip.Addr
		if input.IPAddress != "" {
			addr, err = e.explicitAddress(ctx, pool, subnet, gateway, input.IPAddress)
		} else {
			addr, err = e.lowestFree(ctx, pool, subnet, gateway)
		}
		if err != nil {
			return err
		}

		alloc = &repository.Allocation{
			PoolID:       pool.ID,
			IPAddress:    addr.String(),
			CustomerName: strings.TrimSpace(input.CustomerName),
			MACAddress:   strings.ToLower(strings.TrimSpace(input.MACAddress)),
			AssignedBy:   by.ID,
			PoolName:     pool.Name,
		}
		if err := e.allocations.Insert(ctx, alloc); err != nil {
			return err
		}
		return e.pools.IncrementUsed(ctx, pool)
	})
	if err != nil {
		return nil, err
	}

	e.logger.For(ctx).Info().
		Str("pool_id", pool.ID).
		Str("ip_address", alloc.IPAddress).
		Str("customer", alloc.CustomerName).
		Str("actor_id", by.ID).
		Int("used_ips", pool.UsedIPs).
		Int("total_ips", pool.TotalIPs).
		Msg("address allocated")

	e.metrics.SetPoolUtilisation(pool.Name, pool.UsedIPs, pool.TotalIPs)
	e.publisher.PublishIPAllocated(ctx, alloc, pool)
	if pool.Free() == 0 {
		e.logger.For(ctx).Warn().Str("pool_id", pool.ID).Str("pool", pool.Name).Msg("pool exhausted")
		e.publisher.PublishPoolExhausted(ctx, pool, by.ID)
	}
	return alloc, nil
}

func (e *AddressAllocationEngine) explicitAddress(ctx context.Context, pool *repository.Pool, subnet Subnet, gateway netip.Addr, raw string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil || !subnet.IsUsable(addr) {
		return netip.Addr{}, errors.Validation(map[string]string{
			"ip_address": "must be a usable host address of " + subnet.String(),
		})
	}
	if gateway.IsValid() && addr == gateway {
		return netip.Addr{}, errors.Validation(map[string]string{"ip_address": "is the pool gateway"})
	}

	active, err := e.allocations.IsActive(ctx, pool.ID, addr.String())
	if err != nil {
		return netip.Addr{}, err
	}
	if active {
		return netip.Addr{}, errors.AddressInUse(addr.String())
	}
	return addr, nil
}

func (e *AddressAllocationEngine) lowestFree(ctx context.Context, pool *repository.Pool, subnet Subnet, gateway netip.Addr) (netip.Addr, error) {
	active, err := e.allocations.ActiveAddresses(ctx, pool.ID)
	if err != nil {
		return netip.Addr{}, err
	}

	taken := make(map[netip.Addr]struct{}, len(active))
	for _, s := range active {
		if a, err := netip.ParseAddr(s); err == nil {
			taken[a] = struct{}{}
		}
	}

	addr, ok := subnet.LowestFree(taken, gateway)
	if !ok {
		return netip.Addr{}, errors.SubnetFragmented(pool.ID, pool.UsedIPs, pool.TotalIPs)
	}
	return addr, nil
}

// Release returns an address to its pool. A concurrent release of the same
// allocation loses with AllocationNotFound.
func (e *AddressAllocationEngine) Release(ctx context.Context, allocationID string, by *actor.Actor) (err error) {
	defer e.observe(OpRelease, time.Now(), &err)
	by = orSystem(by)

	var (
		alloc *repository.Allocation
		pool  *repository.Pool
	)
	err = e.db.Transaction(ctx, func(ctx context.Context) error {
		var err error
		alloc, err = e.allocations.GetByID(ctx, allocationID)
		if err != nil {
			return err
		}
		pool, err = e.pools.LockByID(ctx, alloc.PoolID)
		if err != nil {
			return err
		}
		if err := e.allocations.Delete(ctx, alloc.ID); err != nil {
			return err
		}
		return e.pools.DecrementUsed(ctx, pool)
	})
	if err != nil {
		return err
	}

	e.logger.For(ctx).Info().
		Str("pool_id", pool.ID).
		Str("ip_address", alloc.IPAddress).
		Str("actor_id", by.ID).
		Int("used_ips", pool.UsedIPs).
		Msg("address released")

	e.metrics.SetPoolUtilisation(pool.Name, pool.UsedIPs, pool.TotalIPs)
	e.publisher.PublishIPReleased(ctx, alloc, by.ID)
	return nil
}

// CreatePool validates the range and derives its capacity
func (e *AddressAllocationEngine) CreatePool(ctx context.Context, input CreatePoolInput, by *actor.Actor) (pool *repository.Pool, err error) {
	defer e.observe(OpCreatePool, time.Now(), &err)
	by = orSystem(by)

	subnet, err := ParseSubnet(input.CIDR)
	if err != nil {
		return nil, err
	}
	gateway, err := ParseGateway(subnet, input.Gateway)
	if err != nil {
		return nil, err
	}
	total, err := capacityFor(subnet, gateway, input.TotalIPs, 0)
	if err != nil {
		return nil, err
	}

	pool = &repository.Pool{
		Name:        strings.TrimSpace(input.Name),
		CIDR:        subnet.String(),
		Gateway:     addrString(gateway),
		PoolType:    input.PoolType,
		TotalIPs:    total,
		Description: input.Description,
	}
	if pool.PoolType == "" {
		pool.PoolType = repository.PoolTypePublic
	}

	if err := e.pools.Create(ctx, pool); err != nil {
		return nil, err
	}

	e.logger.For(ctx).Info().
		Str("pool_id", pool.ID).
		Str("cidr", pool.CIDR).
		Int("total_ips", pool.TotalIPs).
		Str("actor_id", by.ID).
		Msg("pool created")

	e.metrics.SetPoolUtilisation(pool.Name, 0, pool.TotalIPs)
	e.publisher.PublishPoolCreated(ctx, pool, by.ID)
	return pool, nil
}

// UpdatePool applies a patch. The range and gateway are frozen while the
// pool holds allocations, and capacity never drops below current usage.
func (e *AddressAllocationEngine) UpdatePool(ctx context.Context, id string, input UpdatePoolInput, by *actor.Actor) (pool *repository.Pool, err error) {
	defer e.observe(OpUpdatePool, time.Now(), &err)
	by = orSystem(by)

	var oldName string
	err = e.db.Transaction(ctx, func(ctx context.Context) error {
		var err error
		pool, err = e.pools.LockByID(ctx, id)
		if err != nil {
			return err
		}
		oldName = pool.Name

		cidr, gw := pool.CIDR, pool.Gateway
		if input.CIDR != nil {
			cidr = *input.CIDR
		}
		if input.Gateway != nil {
			gw = *input.Gateway
		}

		subnet, err := ParseSubnet(cidr)
		if err != nil {
			return err
		}
		gateway, err := ParseGateway(subnet, gw)
		if err != nil {
			return err
		}

		rangeChanged := subnet.String() != pool.CIDR || addrString(gateway) != pool.Gateway
		if rangeChanged {
			count, err := e.allocations.CountByPool(ctx, pool.ID)
			if err != nil {
				return err
			}
			if pool.UsedIPs > 0 || count > 0 {
				return errors.PoolInUse(pool.ID, max(pool.UsedIPs, count))
			}
		}

		if input.TotalIPs != nil || rangeChanged {
			total, err := capacityFor(subnet, gateway, input.TotalIPs, pool.UsedIPs)
			if err != nil {
				return err
			}
			pool.TotalIPs = total
		}

		pool.CIDR = subnet.String()
		pool.Gateway = addrString(gateway)
		if input.Name != nil {
			pool.Name = strings.TrimSpace(*input.Name)
		}
		if input.PoolType != nil {
			pool.PoolType = *input.PoolType
		}
		if input.Description != nil {
			pool.Description = *input.Description
		}

		return e.pools.Update(ctx, pool)
	})
	if err != nil {
		return nil, err
	}

	e.logger.For(ctx).Info().Str("pool_id", pool.ID).Str("actor_id", by.ID).Msg("pool updated")

	if oldName != pool.Name {
		e.metrics.ForgetPool(oldName)
	}
	e.metrics.SetPoolUtilisation(pool.Name, pool.UsedIPs, pool.TotalIPs)
	return pool, nil
}

// DeletePool removes an empty pool. Pools with allocations are never
// deleted; release the addresses first.
func (e *AddressAllocationEngine) DeletePool(ctx context.Context, id string, by *actor.Actor) (err error) {
	defer e.observe(OpDeletePool, time.Now(), &err)
	by = orSystem(by)

	var pool *repository.Pool
	err = e.db.Transaction(ctx, func(ctx context.Context) error {
		var err error
		pool, err = e.pools.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if pool.UsedIPs > 0 {
			return errors.PoolInUse(pool.ID, pool.UsedIPs)
		}
		count, err := e.allocations.CountByPool(ctx, pool.ID)
		if err != nil {
			return err
		}
		if count > 0 {
			return errors.PoolInUse(pool.ID, count)
		}
		return e.pools.Delete(ctx, pool.ID)
	})
	if err != nil {
		return err
	}

	e.logger.For(ctx).Info().Str("pool_id", pool.ID).Str("cidr", pool.CIDR).Str("actor_id", by.ID).Msg("pool deleted")

	e.metrics.ForgetPool(pool.Name)
	e.publisher.PublishPoolDeleted(ctx, pool, by.ID)
	return nil
}

// GetPool gets a pool by ID
func (e *AddressAllocationEngine) GetPool(ctx context.Context, id string) (*repository.Pool, error) {
	return e.pools.GetByID(ctx, id)
}

// ListPools lists pools, optionally of one type
func (e *AddressAllocationEngine) ListPools(ctx context.Context, poolType string) ([]*repository.Pool, error) {
	return e.pools.List(ctx, poolType)
}

// SyncUtilisation sets the utilisation gauge of every pool from the database.
// Gauges otherwise only move when a pool changes.
func (e *AddressAllocationEngine) SyncUtilisation(ctx context.Context) error {
	pools, err := e.pools.List(ctx, "")
	if err != nil {
		return err
	}
	for _, p := range pools {
		e.metrics.SetPoolUtilisation(p.Name, p.UsedIPs, p.TotalIPs)
	}
	return nil
}

// GetAllocation gets an allocation by ID
func (e *AddressAllocationEngine) GetAllocation(ctx context.Context, id string) (*repository.Allocation, error) {
	return e.allocations.GetByID(ctx, id)
}

// ListAllocations lists allocations, newest first
func (e *AddressAllocationEngine) ListAllocations(ctx context.Context, filter repository.AllocationFilter) ([]*repository.Allocation, error) {
	return e.allocations.List(ctx, filter)
}

// Stats aggregates capacity and usage over every pool
func (e *AddressAllocationEngine) Stats(ctx context.Context) (*NetworkStats, error) {
	totals, err := e.pools.Totals(ctx)
	if err != nil {
		return nil, err
	}
	return &NetworkStats{
		PoolCount:   totals.PoolCount,
		TotalIPs:    totals.TotalIPs,
		UsedIPs:     totals.UsedIPs,
		FreeIPs:     totals.TotalIPs - totals.UsedIPs,
		Utilization: repository.Utilization(int(totals.UsedIPs), int(totals.TotalIPs)),
	}, nil
}

// capacityFor derives the pool capacity and applies an optional lower
// override. used is the current allocation count the result must cover.
func capacityFor(subnet Subnet, gateway netip.Addr, requested *int, used int) (int, error) {
	derived := subnet.Capacity(gateway)
	if derived < 1 {
		return 0, errors.Validation(map[string]string{"cidr": "leaves no assignable address besides the gateway"})
	}

	total := derived
	if requested != nil {
		if *requested > derived {
			return 0, errors.Validation(map[string]string{
				"total_ips": "must not exceed " + strconv.Itoa(derived) + " usable addresses in " + subnet.String(),
			})
		}
		total = *requested
	}
	if total < used {
		return 0, errors.Validation(map[string]string{
			"total_ips": "must not be below the " + strconv.Itoa(used) + " addresses in use",
		})
	}
	return total, nil
}

// observe records the outcome of an operation. Business rejections are
// logged at debug, anything else that failed at error.
func (e *AddressAllocationEngine) observe(op string, start time.Time, errp *error) {
	elapsed := time.Since(start)
	err := *errp
	switch {
	case err == nil:
		e.metrics.Observe(op, metrics.ResultSuccess, "", elapsed)
	case isRejection(err):
		e.metrics.Observe(op, metrics.ResultRejected, errors.Code(err), elapsed)
		e.logger.Debug().Err(err).Str("operation", op).Str("code", errors.Code(err)).Msg("operation rejected")
	default:
		e.metrics.Observe(op, metrics.ResultError, errors.Code(err), elapsed)
		e.logger.Error().Err(err).Str("operation", op).Msg("operation failed")
	}
}

func isRejection(err error) bool {
	var appErr *errors.AppError
	return errors.As(err, &appErr) && appErr.StatusCode < 500
}

func orSystem(a *actor.Actor) *actor.Actor {
	if a == nil {
		return actor.SystemActor()
	}
	return a
}

func addrString(a netip.Addr) string {
	if !a.IsValid() {
		return ""
	}
	return a.String()
}
