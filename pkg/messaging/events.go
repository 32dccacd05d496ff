package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// User events, consumed to keep the engineer roster in sync
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"

	// Stock events
	EventRequestCreated  = "inventory.request.created"
	EventRequestApproved = "inventory.request.approved"
	EventRequestRejected = "inventory.request.rejected"
	EventStockReceived   = "inventory.stock.received"
	EventStockIssued     = "inventory.stock.issued"
	EventStockLow        = "inventory.stock.low"

	// Address events
	EventIPAllocated   = "network.ip.allocated"
	EventIPReleased    = "network.ip.released"
	EventPoolCreated   = "network.pool.created"
	EventPoolDeleted   = "network.pool.deleted"
	EventPoolExhausted = "network.pool.exhausted"
)

// Exchange names
const (
	ExchangeUserEvents      = "user.events"
	ExchangeInventoryEvents = "inventory.events"
	ExchangeNetworkEvents   = "network.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// User Events

// UserCreatedEvent is published by the user service when a user is created
type UserCreatedEvent struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	RoleName string `json:"role_name"`
}

// UserUpdatedEvent carries only the changed fields (name, email, role_name)
type UserUpdatedEvent struct {
	UserID string         `json:"user_id"`
	Fields map[string]any `json:"fields"`
}

// UserDeletedEvent is published when a user is deleted
type UserDeletedEvent struct {
	UserID string `json:"user_id"`
}

// Stock Events

// StockLine is one item movement inside a stock event
type StockLine struct {
	ItemID      string `json:"item_id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	NewQuantity int    `json:"new_quantity"`
}

// RequestCreatedEvent is published when an engineer files a stock request
type RequestCreatedEvent struct {
	RequestID     string `json:"request_id"`
	RequestNumber string `json:"request_number"`
	EngineerName  string `json:"engineer_name"`
	JobID         string `json:"job_id,omitempty"`
	Priority      string `json:"priority"`
	LineCount     int    `json:"line_count"`
}

// RequestApprovedEvent is published after the approval transaction commits
type RequestApprovedEvent struct {
	RequestID     string      `json:"request_id"`
	RequestNumber string      `json:"request_number"`
	EngineerName  string      `json:"engineer_name"`
	ProcessedBy   string      `json:"processed_by"`
	Lines         []StockLine `json:"lines"`
}

// RequestRejectedEvent is published when a pending request is rejected
type RequestRejectedEvent struct {
	RequestID     string `json:"request_id"`
	RequestNumber string `json:"request_number"`
	ProcessedBy   string `json:"processed_by"`
	Reason        string `json:"reason,omitempty"`
}

// StockMovedEvent is published for direct receipts and issues
type StockMovedEvent struct {
	Reference   string      `json:"reference"`
	PerformedBy string      `json:"performed_by"`
	Lines       []StockLine `json:"lines"`
}

// StockLowEvent fires when a movement leaves an item at or below its minimum level
type StockLowEvent struct {
	ItemID        string `json:"item_id"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	Quantity      int    `json:"quantity"`
	MinStockLevel int    `json:"min_stock_level"`
	Status        string `json:"status"`
}

// Address Events

// IPAllocatedEvent is published after an allocation commits
type IPAllocatedEvent struct {
	AllocationID string `json:"allocation_id"`
	PoolID       string `json:"pool_id"`
	PoolName     string `json:"pool_name"`
	IPAddress    string `json:"ip_address"`
	CustomerName string `json:"customer_name"`
	AssignedBy   string `json:"assigned_by"`
	UsedIPs      int    `json:"used_ips"`
	TotalIPs     int    `json:"total_ips"`
}

// IPReleasedEvent is published after a release commits
type IPReleasedEvent struct {
	AllocationID string `json:"allocation_id"`
	PoolID       string `json:"pool_id"`
	IPAddress    string `json:"ip_address"`
	ReleasedBy   string `json:"released_by"`
}

// PoolEvent is published on pool lifecycle changes and exhaustion
type PoolEvent struct {
	PoolID   string `json:"pool_id"`
	Name     string `json:"name"`
	CIDR     string `json:"cidr"`
	PoolType string `json:"pool_type"`
	UsedIPs  int    `json:"used_ips"`
	TotalIPs int    `json:"total_ips"`
	Actor    string `json:"actor"`
}
