package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/suyashwaghule/joitex-IVM/internal/inventory/events"
	"github.com/suyashwaghule/joitex-IVM/internal/inventory/repository"
	"github.com/suyashwaghule/joitex-IVM/pkg/actor"
	"github.com/suyashwaghule/joitex-IVM/pkg/database"
	"github.com/suyashwaghule/joitex-IVM/pkg/errors"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
	"github.com/suyashwaghule/joitex-IVM/pkg/messaging"
	"github.com/suyashwaghule/joitex-IVM/pkg/metrics"
)

// Operation names used in logs and metrics
const (
	OpValidate = "stock_validate"
	OpApprove  = "stock_approve"
	OpReject   = "stock_reject"
	OpReceive  = "stock_receive"
	OpIssue    = "stock_issue"
)

// DirectIssueReference is the ledger reference for issues without a job
const DirectIssueReference = "Direct Issue"

// MovementLine identifies a stock item by id or SKU for a direct movement
type MovementLine struct {
	ItemID   string `json:"item_id" validate:"required_without=SKU,omitempty,uuid"`
	SKU      string `json:"sku" validate:"max=64"`
	Quantity int    `json:"quantity" validate:"min=1"`
}

// ReceiveLine is one line of a goods receipt
type ReceiveLine struct {
	ItemID    string           `json:"item_id" validate:"required_without=SKU,omitempty,uuid"`
	SKU       string           `json:"sku" validate:"max=64"`
	Quantity  int              `json:"quantity" validate:"min=1"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

// ReceiveInput is a goods receipt
type ReceiveInput struct {
	Items     []ReceiveLine `json:"items" validate:"required,min=1,dive"`
	Reference string        `json:"reference" validate:"max=100"`
	Notes     string        `json:"notes"`
}

// IssueInput is a direct issue of stock to an engineer
type IssueInput struct {
	Items        []MovementLine `json:"items" validate:"required,min=1,dive"`
	EngineerName string         `json:"engineer_name" validate:"max=255"`
	JobID        string         `json:"job_id" validate:"max=100"`
}

// ResolvedLine pairs a request line with the item it resolved to
type ResolvedLine struct {
	Name      string `json:"name"`
	SKU       string `json:"sku,omitempty"`
	Quantity  int    `json:"quantity"`
	ItemID    string `json:"item_id"`
	ItemName  string `json:"item_name"`
	ItemSKU   string `json:"item_sku"`
	Available int    `json:"available"`
}

// ValidationResult is the outcome of a successful dry run
type ValidationResult struct {
	Valid bool            `json:"valid"`
	Lines []*ResolvedLine `json:"lines"`
}

// MovementResult describes a committed receipt or issue
type MovementResult struct {
	Reference    string                         `json:"reference"`
	Transactions []*repository.StockTransaction `json:"transactions"`
	Items        []*repository.StockItem        `json:"items"`
}

// StockAllocationEngine moves stock between the shelf and engineers. Every
// mutating operation locks the affected item rows, checks the whole request
// and only then writes, so a request is applied entirely or not at all.
type StockAllocationEngine struct {
	db           *database.DB
	items        *repository.ItemRepository
	transactions *repository.TransactionRepository
	requests     *repository.RequestRepository
	publisher    *events.InventoryEventPublisher
	metrics      *metrics.AllocationMetrics
	logger       *logger.Logger
}

// NewStockAllocationEngine creates a new stock allocation engine
func NewStockAllocationEngine(
	db *database.DB,
	items *repository.ItemRepository,
	transactions *repository.TransactionRepository,
	requests *repository.RequestRepository,
	publisher *events.InventoryEventPublisher,
	m *metrics.AllocationMetrics,
	log *logger.Logger,
) *StockAllocationEngine {
	return &StockAllocationEngine{
		db:           db,
		items:        items,
		transactions: transactions,
		requests:     requests,
		publisher:    publisher,
		metrics:      m,
		logger:       log.WithComponent("stock_engine"),
	}
}

// resolved is one line mapped to an item. err is set when the line itself
// is unusable; it is reported in document order by checkAvailability.
type resolved struct {
	line   repository.LineItem
	itemID string
	err    error
}

// Validate resolves every line and checks that stock covers the request.
// Nothing is written.
func (e *StockAllocationEngine) Validate(ctx context.Context, lines []repository.LineItem) (result *ValidationResult, err error) {
	defer e.observe(OpValidate, time.Now(), &err)

	if len(lines) == 0 {
		return nil, errors.Validation(map[string]string{"items": "must have at least 1 entries"})
	}

	resolvedLines, items, err := e.resolveLines(ctx, lines)
	if err != nil {
		return nil, err
	}
	if err := checkAvailability(resolvedLines, items); err != nil {
		return nil, err
	}

	result = &ValidationResult{Valid: true, Lines: make([]*ResolvedLine, 0, len(resolvedLines))}
	for _, rl := range resolvedLines {
		item := items[rl.itemID]
		result.Lines = append(result.Lines, &ResolvedLine{
			Name:      rl.line.Name,
			SKU:       rl.line.SKU,
			Quantity:  rl.line.Quantity,
			ItemID:    item.ID,
			ItemName:  item.Name,
			ItemSKU:   item.SKU,
			Available: item.Quantity,
		})
	}
	return result, nil
}

// Approve fulfils a pending request: every line is deducted and recorded as
// an OUT transaction referencing the request number, or nothing changes.
func (e *StockAllocationEngine) Approve(ctx context.Context, requestID string, by *actor.Actor) (req *repository.StockRequest, err error) {
	defer e.observe(OpApprove, time.Now(), &err)
	by = orSystem(by)

	var (
		moved   []messaging.StockLine
		lowered []*repository.StockItem
	)

	err = e.db.Transaction(ctx, func(ctx context.Context) error {
		var err error
		req, err = e.requests.LockByID(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != repository.RequestPending {
			return errors.AlreadyProcessed(req.RequestNumber, req.Status)
		}

		resolvedLines, _, err := e.resolveLines(ctx, req.Items)
		if err != nil {
			return err
		}

		locked, before, err := e.lockItems(ctx, itemIDs(resolvedLines))
		if err != nil {
			return err
		}
		if err := checkAvailability(resolvedLines, locked); err != nil {
			return err
		}

		notes := fmt.Sprintf("Approved request from %s for Job %s", req.EngineerName, req.JobID)
		for _, rl := range resolvedLines {
			item := locked[rl.itemID]
			if err := e.items.Deduct(ctx, item, rl.line.Quantity); err != nil {
				return err
			}
			if err := e.transactions.Insert(ctx, &repository.StockTransaction{
				ItemID:          item.ID,
				TransactionType: repository.TransactionOut,
				Quantity:        rl.line.Quantity,
				Reference:       req.RequestNumber,
				PerformedBy:     by.ID,
				Notes:           notes,
			}); err != nil {
				return err
			}
			moved = append(moved, stockLine(item, rl.line.Quantity))
		}

		processedBy := by.ID
		req.Status = repository.RequestApproved
		req.ProcessedBy = &processedBy
		req.RejectionReason = nil
		if err := e.requests.SetStatus(ctx, req); err != nil {
			return err
		}

		lowered = newlyLow(locked, before)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.For(ctx).Info().
		Str("request_number", req.RequestNumber).
		Str("actor_id", by.ID).
		Int("lines", len(moved)).
		Msg("stock request approved")

	e.publisher.PublishRequestApproved(ctx, req, moved)
	e.publishLow(ctx, lowered)
	return req, nil
}

// Reject closes a pending request without touching stock.
func (e *StockAllocationEngine) Reject(ctx context.Context, requestID string, by *actor.Actor, reason string) (req *repository.StockRequest, err error) {
	defer e.observe(OpReject, time.Now(), &err)
	by = orSystem(by)

	err = e.db.Transaction(ctx, func(ctx context.Context) error {
		var err error
		req, err = e.requests.LockByID(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != repository.RequestPending {
			return errors.AlreadyProcessed(req.RequestNumber, req.Status)
		}

		processedBy := by.ID
		req.Status = repository.RequestRejected
		req.ProcessedBy = &processedBy
		req.RejectionReason = nil
		if reason != "" {
			req.RejectionReason = &reason
		}
		return e.requests.SetStatus(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	e.logger.For(ctx).Info().
		Str("request_number", req.RequestNumber).
		Str("actor_id", by.ID).
		Msg("stock request rejected")

	e.publisher.PublishRequestRejected(ctx, req)
	return req, nil
}

// Receive books incoming stock. Every line must identify an existing item;
// otherwise nothing is booked.
func (e *StockAllocationEngine) Receive(ctx context.Context, input ReceiveInput, by *actor.Actor) (result *MovementResult, err error) {
	defer e.observe(OpReceive, time.Now(), &err)
	by = orSystem(by)

	for i, line := range input.Items {
		if line.UnitPrice != nil && line.UnitPrice.IsNegative() {
			return nil, errors.Validation(map[string]string{
				fmt.Sprintf("items[%d].unit_price", i): "must be greater than or equal to 0",
			})
		}
	}

	result = &MovementResult{Reference: input.Reference}
	var moved []messaging.StockLine

	err = e.db.Transaction(ctx, func(ctx context.Context) error {
		ids := make([]string, len(input.Items))
		for i, line := range input.Items {
			id, err := e.lookupItemID(ctx, line.ItemID, line.SKU)
			if err != nil {
				return err
			}
			ids[i] = id
		}

		locked, _, err := e.lockItems(ctx, uniqueSorted(ids))
		if err != nil {
			return err
		}

		for i, line := range input.Items {
			item := locked[ids[i]]
			if err := e.items.Increment(ctx, item, line.Quantity, line.UnitPrice); err != nil {
				return err
			}
			tx := &repository.StockTransaction{
				ItemID:          item.ID,
				TransactionType: repository.TransactionIn,
				Quantity:        line.Quantity,
				Reference:       input.Reference,
				PerformedBy:     by.ID,
				Notes:           input.Notes,
			}
			if err := e.transactions.Insert(ctx, tx); err != nil {
				return err
			}
			result.Transactions = append(result.Transactions, tx)
			moved = append(moved, stockLine(item, line.Quantity))
		}

		result.Items = sortedItems(locked)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.For(ctx).Info().
		Str("reference", input.Reference).
		Str("actor_id", by.ID).
		Int("lines", len(moved)).
		Msg("stock received")

	e.publisher.PublishStockReceived(ctx, input.Reference, by.ID, moved)
	return result, nil
}

// Issue hands stock to an engineer without a request. The same availability
// rule as Approve applies to the request as a whole.
func (e *StockAllocationEngine) Issue(ctx context.Context, input IssueInput, by *actor.Actor) (result *MovementResult, err error) {
	defer e.observe(OpIssue, time.Now(), &err)
	by = orSystem(by)

	reference := input.JobID
	if reference == "" {
		reference = DirectIssueReference
	}
	engineer := input.EngineerName
	if engineer == "" {
		engineer = DefaultEngineerName
	}

	result = &MovementResult{Reference: reference}
	var (
		moved   []messaging.StockLine
		lowered []*repository.StockItem
	)

	err = e.db.Transaction(ctx, func(ctx context.Context) error {
		resolvedLines := make([]resolved, len(input.Items))
		for i, line := range input.Items {
			resolvedLines[i].line = repository.LineItem{SKU: line.SKU, Quantity: line.Quantity}
			id, err := e.lookupItemID(ctx, line.ItemID, line.SKU)
			switch {
			case errors.Is(err, errors.ErrItemNotFound):
				resolvedLines[i].err = err
			case err != nil:
				return err
			default:
				resolvedLines[i].itemID = id
			}
		}

		locked, before, err := e.lockItems(ctx, itemIDs(resolvedLines))
		if err != nil {
			return err
		}
		if err := checkAvailability(resolvedLines, locked); err != nil {
			return err
		}

		notes := "Issued to " + engineer
		for _, rl := range resolvedLines {
			item := locked[rl.itemID]
			if err := e.items.Deduct(ctx, item, rl.line.Quantity); err != nil {
				return err
			}
			tx := &repository.StockTransaction{
				ItemID:          item.ID,
				TransactionType: repository.TransactionOut,
				Quantity:        rl.line.Quantity,
				Reference:       reference,
				PerformedBy:     by.ID,
				Notes:           notes,
			}
			if err := e.transactions.Insert(ctx, tx); err != nil {
				return err
			}
			result.Transactions = append(result.Transactions, tx)
			moved = append(moved, stockLine(item, rl.line.Quantity))
		}

		result.Items = sortedItems(locked)
		lowered = newlyLow(locked, before)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.For(ctx).Info().
		Str("reference", reference).
		Str("actor_id", by.ID).
		Int("lines", len(moved)).
		Msg("stock issued")

	e.publisher.PublishStockIssued(ctx, reference, by.ID, moved)
	e.publishLow(ctx, lowered)
	return result, nil
}

// resolveLines maps each request line to an item. Lines that match nothing
// or ask for no stock carry their error; lookup failures abort.
func (e *StockAllocationEngine) resolveLines(ctx context.Context, lines []repository.LineItem) ([]resolved, map[string]*repository.StockItem, error) {
	out := make([]resolved, 0, len(lines))
	items := make(map[string]*repository.StockItem, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			out = append(out, resolved{line: line, err: errors.Validation(map[string]string{
				"quantity": fmt.Sprintf("must be at least 1 for %s", line.Ref()),
			})})
			continue
		}
		item, err := e.items.Resolve(ctx, line.Name, line.SKU)
		if err != nil {
			if errors.Is(err, errors.ErrItemNotFound) {
				out = append(out, resolved{line: line, err: errors.ItemNotFound(line.Ref())})
				continue
			}
			return nil, nil, err
		}
		out = append(out, resolved{line: line, itemID: item.ID})
		items[item.ID] = item
	}
	return out, items, nil
}

func (e *StockAllocationEngine) lookupItemID(ctx context.Context, itemID, sku string) (string, error) {
	if itemID != "" {
		item, err := e.items.GetByID(ctx, itemID)
		if err != nil {
			return "", err
		}
		return item.ID, nil
	}
	item, err := e.items.GetBySKU(ctx, sku)
	if err != nil {
		return "", err
	}
	return item.ID, nil
}

// lockItems locks the rows and remembers each item's status before the change.
func (e *StockAllocationEngine) lockItems(ctx context.Context, ids []string) (map[string]*repository.StockItem, map[string]string, error) {
	if len(ids) == 0 {
		return map[string]*repository.StockItem{}, map[string]string{}, nil
	}
	locked, err := e.items.LockByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	before := make(map[string]string, len(locked))
	for _, id := range ids {
		item, ok := locked[id]
		if !ok {
			return nil, nil, errors.ItemNotFound(id)
		}
		before[id] = item.Status
	}
	return locked, before, nil
}

func (e *StockAllocationEngine) publishLow(ctx context.Context, items []*repository.StockItem) {
	for _, item := range items {
		e.logger.For(ctx).Warn().
			Str("item_id", item.ID).
			Str("sku", item.SKU).
			Int("quantity", item.Quantity).
			Str("status", item.Status).
			Msg("item dropped to low stock")
		e.publisher.PublishStockLow(ctx, item)
	}
}

// observe records the outcome of an operation. Business rejections are
// logged at debug, anything else that failed at error.
func (e *StockAllocationEngine) observe(op string, start time.Time, errp *error) {
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

// isRejection reports whether err is a client-facing business error
func isRejection(err error) bool {
	var appErr *errors.AppError
	return errors.As(err, &appErr) && appErr.StatusCode < 500
}

// checkAvailability compares each item's quantity with the total demanded by
// all lines resolving to it. The first failing line in document order is
// reported, whether it is short or could not be resolved.
func checkAvailability(lines []resolved, items map[string]*repository.StockItem) error {
	demand := make(map[string]int, len(items))
	for _, rl := range lines {
		if rl.err == nil {
			demand[rl.itemID] += rl.line.Quantity
		}
	}
	for _, rl := range lines {
		if rl.err != nil {
			return rl.err
		}
		item := items[rl.itemID]
		if item.Quantity < demand[rl.itemID] {
			return errors.InsufficientStock(item.ID, item.SKU, item.Name, item.Quantity, demand[rl.itemID])
		}
	}
	return nil
}

func orSystem(a *actor.Actor) *actor.Actor {
	if a == nil {
		return actor.SystemActor()
	}
	return a
}

func itemIDs(lines []resolved) []string {
	ids := make([]string, 0, len(lines))
	for _, rl := range lines {
		if rl.err == nil {
			ids = append(ids, rl.itemID)
		}
	}
	return uniqueSorted(ids)
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func sortedItems(items map[string]*repository.StockItem) []*repository.StockItem {
	out := make([]*repository.StockItem, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// newlyLow returns the items whose status worsened during the operation
func newlyLow(items map[string]*repository.StockItem, before map[string]string) []*repository.StockItem {
	var out []*repository.StockItem
	for _, item := range sortedItems(items) {
		if item.Status != repository.StatusInStock && item.Status != before[item.ID] {
			out = append(out, item)
		}
	}
	return out
}

func stockLine(item *repository.StockItem, quantity int) messaging.StockLine {
	return messaging.StockLine{
		ItemID:      item.ID,
		SKU:         item.SKU,
		Name:        item.Name,
		Quantity:    quantity,
		NewQuantity: item.Quantity,
	}
}
