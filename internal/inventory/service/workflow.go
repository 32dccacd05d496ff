package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/suyashwaghule/joitex-IVM/internal/inventory/events"
	"github.com/suyashwaghule/joitex-IVM/internal/inventory/repository"
	"github.com/suyashwaghule/joitex-IVM/pkg/actor"
	"github.com/suyashwaghule/joitex-IVM/pkg/database"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
)

// DefaultEngineerName is recorded when a request or issue names nobody
const DefaultEngineerName = "Unknown"

const (
	requestNumberTTL   = 48 * time.Hour
	createAttempts     = 3
	requestNumberStamp = "20060102"
)

// Counter hands out per-day request counters. The Redis client satisfies it.
type Counter interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	CounterKey(parts ...string) string
}

// CreateRequestInput is an engineer's stock request
type CreateRequestInput struct {
	EngineerName string                `json:"engineer_name" validate:"max=255"`
	JobID        string                `json:"job_id" validate:"max=100"`
	Priority     string                `json:"priority" validate:"omitempty,oneof=normal urgent"`
	Items        []repository.LineItem `json:"items" validate:"required,min=1,dive"`
}

// RequestWorkflow files and lists stock requests. Approval and rejection
// belong to the StockAllocationEngine.
type RequestWorkflow struct {
	requests  *repository.RequestRepository
	counter   Counter
	publisher *events.InventoryEventPublisher
	logger    *logger.Logger
	now       func() time.Time
}

// NewRequestWorkflow creates a new request workflow. counter may be nil, in
// which case request numbers come from the database sequence.
func NewRequestWorkflow(
	requests *repository.RequestRepository,
	counter Counter,
	publisher *events.InventoryEventPublisher,
	log *logger.Logger,
) *RequestWorkflow {
	return &RequestWorkflow{
		requests:  requests,
		counter:   counter,
		publisher: publisher,
		logger:    log.WithComponent("request_workflow"),
		now:       time.Now,
	}
}

// Create files a new pending request
func (w *RequestWorkflow) Create(ctx context.Context, input CreateRequestInput, by *actor.Actor) (*repository.StockRequest, error) {
	by = orSystem(by)

	req := &repository.StockRequest{
		EngineerName: strings.TrimSpace(input.EngineerName),
		JobID:        strings.TrimSpace(input.JobID),
		Items:        input.Items,
		Priority:     input.Priority,
		Status:       repository.RequestPending,
		RequestedBy:  by.ID,
	}
	if req.EngineerName == "" {
		req.EngineerName = DefaultEngineerName
	}
	if req.Priority == "" {
		req.Priority = repository.PriorityNormal
	}

	var err error
	for attempt := 1; attempt <= createAttempts; attempt++ {
		req.ID = ""
		req.RequestNumber, err = w.nextNumber(ctx, attempt > 1)
		if err != nil {
			return nil, err
		}

		err = w.requests.Create(ctx, req)
		if err == nil {
			break
		}
		if !database.IsUniqueViolation(err, "request_number") {
			return nil, err
		}
		w.logger.For(ctx).Warn().
			Str("request_number", req.RequestNumber).
			Int("attempt", attempt).
			Msg("request number already taken, drawing another")
	}
	if err != nil {
		return nil, err
	}

	w.logger.For(ctx).Info().
		Str("request_number", req.RequestNumber).
		Str("engineer", req.EngineerName).
		Str("priority", req.Priority).
		Msg("stock request created")

	w.publisher.PublishRequestCreated(ctx, req)
	return req, nil
}

// nextNumber builds REQ-YYYYMMDD-NNNN. The counter comes from Redis when
// available; the database sequence covers outages and retries.
func (w *RequestWorkflow) nextNumber(ctx context.Context, useSequence bool) (string, error) {
	day := w.now().UTC().Format(requestNumberStamp)

	if w.counter != nil && !useSequence {
		n, err := w.counter.IncrWithTTL(ctx, w.counter.CounterKey("stock_request", day), requestNumberTTL)
		if err == nil {
			return formatRequestNumber(day, n), nil
		}
		w.logger.For(ctx).Warn().Err(err).Msg("request counter unavailable, using database sequence")
	}

	n, err := w.requests.NextSequence(ctx)
	if err != nil {
		return "", err
	}
	return formatRequestNumber(day, n), nil
}

func formatRequestNumber(day string, n int64) string {
	return fmt.Sprintf("REQ-%s-%04d", day, n)
}

// Get gets a request by ID
func (w *RequestWorkflow) Get(ctx context.Context, id string) (*repository.StockRequest, error) {
	return w.requests.GetByID(ctx, id)
}

// List lists requests matching the filter
func (w *RequestWorkflow) List(ctx context.Context, filter repository.RequestFilter) ([]*repository.StockRequest, int64, error) {
	return w.requests.List(ctx, filter)
}

// Mine lists the requests filed by or for the caller
func (w *RequestWorkflow) Mine(ctx context.Context, by *actor.Actor, page, perPage int) ([]*repository.StockRequest, int64, error) {
	by = orSystem(by)
	return w.requests.List(ctx, repository.RequestFilter{
		OwnerName: by.Name,
		OwnerID:   by.ID,
		Page:      page,
		PerPage:   perPage,
	})
}
