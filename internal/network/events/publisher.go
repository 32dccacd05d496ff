package events

import (
	"context"

	"github.com/suyashwaghule/joitex-IVM/internal/network/repository"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
	"github.com/suyashwaghule/joitex-IVM/pkg/messaging"
)

// NetworkEventPublisher publishes address management events. Like the
// inventory publisher it is nil-safe and never fails the caller.
type NetworkEventPublisher struct {
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewNetworkEventPublisher creates a publisher on the network exchange
func NewNetworkEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*NetworkEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeNetworkEvents, "network-service", log)
	if err != nil {
		return nil, err
	}
	return NewWithPublisher(publisher, log), nil
}

// NewWithPublisher wraps an arbitrary EventPublisher
func NewWithPublisher(publisher messaging.EventPublisher, log *logger.Logger) *NetworkEventPublisher {
	return &NetworkEventPublisher{publisher: publisher, logger: log}
}

func (p *NetworkEventPublisher) publish(ctx context.Context, eventType string, data interface{}) {
	if p == nil || p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

// PublishIPAllocated publishes an allocation together with the pool's new usage
func (p *NetworkEventPublisher) PublishIPAllocated(ctx context.Context, a *repository.Allocation, pool *repository.Pool) {
	p.publish(ctx, messaging.EventIPAllocated, messaging.IPAllocatedEvent{
		AllocationID: a.ID,
		PoolID:       pool.ID,
		PoolName:     pool.Name,
		IPAddress:    a.IPAddress,
		CustomerName: a.CustomerName,
		AssignedBy:   a.AssignedBy,
		UsedIPs:      pool.UsedIPs,
		TotalIPs:     pool.TotalIPs,
	})
}

// PublishIPReleased publishes a release
func (p *NetworkEventPublisher) PublishIPReleased(ctx context.Context, a *repository.Allocation, releasedBy string) {
	p.publish(ctx, messaging.EventIPReleased, messaging.IPReleasedEvent{
		AllocationID: a.ID,
		PoolID:       a.PoolID,
		IPAddress:    a.IPAddress,
		ReleasedBy:   releasedBy,
	})
}

// PublishPoolCreated publishes a new pool
func (p *NetworkEventPublisher) PublishPoolCreated(ctx context.Context, pool *repository.Pool, by string) {
	p.publish(ctx, messaging.EventPoolCreated, poolEvent(pool, by))
}

// PublishPoolDeleted publishes a pool removal
func (p *NetworkEventPublisher) PublishPoolDeleted(ctx context.Context, pool *repository.Pool, by string) {
	p.publish(ctx, messaging.EventPoolDeleted, poolEvent(pool, by))
}

// PublishPoolExhausted fires when an allocation takes the last free address
func (p *NetworkEventPublisher) PublishPoolExhausted(ctx context.Context, pool *repository.Pool, by string) {
	p.publish(ctx, messaging.EventPoolExhausted, poolEvent(pool, by))
}

func poolEvent(pool *repository.Pool, by string) messaging.PoolEvent {
	return messaging.PoolEvent{
		PoolID:   pool.ID,
		Name:     pool.Name,
		CIDR:     pool.CIDR,
		PoolType: pool.PoolType,
		UsedIPs:  pool.UsedIPs,
		TotalIPs: pool.TotalIPs,
		Actor:    by,
	}
}
