package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/suyashwaghule/joitex-IVM/pkg/database"
	"github.com/suyashwaghule/joitex-IVM/pkg/errors"
)

// Request lifecycle states
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// Request priorities
const (
	PriorityNormal = "normal"
	PriorityUrgent = "urgent"
)

// LineItem is one entry of a stock request. The item is referenced by name,
// by SKU, or both.
type LineItem struct {
	Name     string `json:"name" validate:"required_without=SKU,max=255"`
	SKU      string `json:"sku,omitempty" validate:"max=64"`
	Quantity int    `json:"quantity" validate:"min=1"`
}

// UnmarshalJSON accepts the legacy "qty" key as an alias for quantity.
func (l *LineItem) UnmarshalJSON(data []byte) error {
	type plain LineItem
	aux := struct {
		*plain
		Qty *int `json:"qty"`
	}{plain: (*plain)(l)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if l.Quantity == 0 && aux.Qty != nil {
		l.Quantity = *aux.Qty
	}
	return nil
}

// Ref returns the reference shown in errors: the name, or the SKU when unnamed.
func (l LineItem) Ref() string {
	if l.Name != "" {
		return l.Name
	}
	return l.SKU
}

// LineItems is stored as a JSONB array
type LineItems []LineItem

// Value implements driver.Valuer. The JSON is sent as text so lib/pq does
// not encode it as bytea.
func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (l *LineItems) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = LineItems{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into LineItems", src)
	}
	return json.Unmarshal(data, l)
}

// StockRequest is an engineer's request for stock, approved or rejected by
// the inventory team.
type StockRequest struct {
	ID              string     `db:"id" json:"id"`
	RequestNumber   string     `db:"request_number" json:"request_number"`
	EngineerName    string     `db:"engineer_name" json:"engineer_name"`
	JobID           string     `db:"job_id" json:"job_id"`
	Items           LineItems  `db:"items_requested" json:"items"`
	Priority        string     `db:"priority" json:"priority"`
	Status          string     `db:"status" json:"status"`
	RequestedBy     string     `db:"requested_by" json:"requested_by"`
	ProcessedBy     *string    `db:"processed_by" json:"processed_by,omitempty"`
	ProcessedAt     *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	RejectionReason *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// RequestFilter narrows request listings. OwnerName and OwnerID select the
// requests belonging to one engineer, matched on either column.
type RequestFilter struct {
	Status       string
	Priority     string
	EngineerName string
	OwnerName    string
	OwnerID      string
	Page         int
	PerPage      int
}

const requestColumns = `id, request_number, engineer_name, job_id, items_requested, priority, status,
	requested_by, processed_by, processed_at, rejection_reason, created_at, updated_at`

// RequestRepository handles stock request persistence
type RequestRepository struct {
	db *database.DB
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *database.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// NextSequence draws the fallback request counter from Postgres
func (r *RequestRepository) NextSequence(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT nextval('stock_request_number_seq')`); err != nil {
		return 0, fmt.Errorf("failed to draw request sequence: %w", err)
	}
	return n, nil
}

// Create inserts a new request
func (r *RequestRepository) Create(ctx context.Context, req *StockRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stock_requests (id, request_number, engineer_name, job_id, items_requested, priority, status, requested_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		req.ID, req.RequestNumber, req.EngineerName, req.JobID, req.Items, req.Priority, req.Status, req.RequestedBy,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "request_number") {
			// Keep the driver error reachable so callers can retry with a new number
			return errors.Wrap(err, "CONFLICT", "a request with this number already exists", http.StatusConflict)
		}
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to create stock request: %w", err)
	}

	return nil
}

// GetByID gets a request by ID
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*StockRequest, error) {
	return r.get(ctx, id, `SELECT `+requestColumns+` FROM stock_requests WHERE id = $1`)
}

// LockByID gets a request and locks its row until the surrounding
// transaction ends.
func (r *RequestRepository) LockByID(ctx context.Context, id string) (*StockRequest, error) {
	return r.get(ctx, id, `SELECT `+requestColumns+` FROM stock_requests WHERE id = $1 FOR UPDATE`)
}

func (r *RequestRepository) get(ctx context.Context, id, query string) (*StockRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("stock request")
	}

	var req StockRequest
	err := r.db.GetContext(ctx, &req, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("stock request")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock request: %w", err)
	}
	return &req, nil
}

// SetStatus records the outcome of processing a request. Only a pending
// request can move.
func (r *RequestRepository) SetStatus(ctx context.Context, req *StockRequest) error {
	query := `
		UPDATE stock_requests
		SET status = $2, processed_by = $3, processed_at = NOW(), rejection_reason = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING processed_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query, req.ID, req.Status, req.ProcessedBy, req.RejectionReason).
		Scan(&req.ProcessedAt, &req.UpdatedAt)
	if err == sql.ErrNoRows {
		return errors.AlreadyProcessed(req.RequestNumber, "not pending")
	}
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to update stock request: %w", err)
	}
	return nil
}

// List lists requests. A status filter returns the work queue: urgent first,
// then oldest first. Without one the newest requests come first.
func (r *RequestRepository) List(ctx context.Context, filter RequestFilter) ([]*StockRequest, int64, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.Priority != "" {
		where += fmt.Sprintf(` AND priority = $%d`, argIdx)
		args = append(args, filter.Priority)
		argIdx++
	}
	if filter.EngineerName != "" {
		where += fmt.Sprintf(` AND engineer_name = $%d`, argIdx)
		args = append(args, filter.EngineerName)
		argIdx++
	}
	if filter.OwnerName != "" || filter.OwnerID != "" {
		where += fmt.Sprintf(` AND (($%d <> '' AND engineer_name = $%d) OR ($%d <> '' AND requested_by = $%d))`,
			argIdx, argIdx, argIdx+1, argIdx+1)
		args = append(args, filter.OwnerName, filter.OwnerID)
		argIdx += 2
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM stock_requests`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count stock requests: %w", err)
	}

	if filter.PerPage < 1 {
		filter.PerPage = 20
	}
	if filter.Page < 1 {
		filter.Page = 1
	}

	order := ` ORDER BY created_at DESC`
	if filter.Status != "" {
		order = ` ORDER BY priority = 'urgent' DESC, created_at ASC`
	}

	query := `SELECT ` + requestColumns + ` FROM stock_requests` + where + order +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)

	var reqs []*StockRequest
	if err := r.db.SelectContext(ctx, &reqs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list stock requests: %w", err)
	}
	return reqs, total, nil
}

// CountByStatus counts requests in one state
func (r *RequestRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM stock_requests WHERE status = $1`, status); err != nil {
		return 0, fmt.Errorf("failed to count stock requests: %w", err)
	}
	return count, nil
}
