package events

import (
	"context"

	"github.com/suyashwaghule/joitex-IVM/internal/inventory/repository"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
	"github.com/suyashwaghule/joitex-IVM/pkg/messaging"
)

// InventoryEventPublisher publishes inventory-related events. A nil publisher
// drops every event, so the service runs without a broker.
type InventoryEventPublisher struct {
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewInventoryEventPublisher creates a new inventory event publisher
func NewInventoryEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*InventoryEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeInventoryEvents, "inventory-service", log)
	if err != nil {
		return nil, err
	}

	return NewWithPublisher(publisher, log), nil
}

// NewWithPublisher wraps an arbitrary EventPublisher
func NewWithPublisher(publisher messaging.EventPublisher, log *logger.Logger) *InventoryEventPublisher {
	return &InventoryEventPublisher{
		publisher: publisher,
		logger:    log,
	}
}

func (p *InventoryEventPublisher) publish(ctx context.Context, eventType, key string, data interface{}) {
	if p == nil || p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("event", eventType).Str("key", key).Msg("failed to publish event")
	}
}

// PublishRequestCreated publishes a request created event
func (p *InventoryEventPublisher) PublishRequestCreated(ctx context.Context, req *repository.StockRequest) {
	p.publish(ctx, messaging.EventRequestCreated, req.RequestNumber, messaging.RequestCreatedEvent{
		RequestID:     req.ID,
		RequestNumber: req.RequestNumber,
		EngineerName:  req.EngineerName,
		JobID:         req.JobID,
		Priority:      req.Priority,
		LineCount:     len(req.Items),
	})
}

// PublishRequestApproved publishes a request approved event with the stock it moved
func (p *InventoryEventPublisher) PublishRequestApproved(ctx context.Context, req *repository.StockRequest, lines []messaging.StockLine) {
	processedBy := ""
	if req.ProcessedBy != nil {
		processedBy = *req.ProcessedBy
	}

	p.publish(ctx, messaging.EventRequestApproved, req.RequestNumber, messaging.RequestApprovedEvent{
		RequestID:     req.ID,
		RequestNumber: req.RequestNumber,
		EngineerName:  req.EngineerName,
		ProcessedBy:   processedBy,
		Lines:         lines,
	})
}

// PublishRequestRejected publishes a request rejected event
func (p *InventoryEventPublisher) PublishRequestRejected(ctx context.Context, req *repository.StockRequest) {
	data := messaging.RequestRejectedEvent{
		RequestID:     req.ID,
		RequestNumber: req.RequestNumber,
	}
	if req.ProcessedBy != nil {
		data.ProcessedBy = *req.ProcessedBy
	}
	if req.RejectionReason != nil {
		data.Reason = *req.RejectionReason
	}

	p.publish(ctx, messaging.EventRequestRejected, req.RequestNumber, data)
}

// PublishStockReceived publishes a stock received event
func (p *InventoryEventPublisher) PublishStockReceived(ctx context.Context, reference, performedBy string, lines []messaging.StockLine) {
	p.publish(ctx, messaging.EventStockReceived, reference, messaging.StockMovedEvent{
		Reference:   reference,
		PerformedBy: performedBy,
		Lines:       lines,
	})
}

// PublishStockIssued publishes a stock issued event
func (p *InventoryEventPublisher) PublishStockIssued(ctx context.Context, reference, performedBy string, lines []messaging.StockLine) {
	p.publish(ctx, messaging.EventStockIssued, reference, messaging.StockMovedEvent{
		Reference:   reference,
		PerformedBy: performedBy,
		Lines:       lines,
	})
}

// PublishStockLow publishes a low stock alert for an item
func (p *InventoryEventPublisher) PublishStockLow(ctx context.Context, item *repository.StockItem) {
	p.publish(ctx, messaging.EventStockLow, item.ID, messaging.StockLowEvent{
		ItemID:        item.ID,
		SKU:           item.SKU,
		Name:          item.Name,
		Quantity:      item.Quantity,
		MinStockLevel: item.MinStockLevel,
		Status:        item.Status,
	})
}
