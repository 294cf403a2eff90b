package models

import "time"

// Event types
const (
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent published after a checkout commits
type OrderPlacedEvent struct {
	BaseEvent
	OrderID string          `json:"order_id"`
	UserID  int64           `json:"user_id"`
	Total   int64           `json:"total"`
	Lines   []OrderLineData `json:"lines"`
}

// OrderCancelledEvent published when an order is cancelled. Restocked reports
// whether inventory was returned, so projections know which products changed.
type OrderCancelledEvent struct {
	BaseEvent
	OrderID   string          `json:"order_id"`
	UserID    int64           `json:"user_id"`
	Restocked bool            `json:"restocked"`
	Lines     []OrderLineData `json:"lines"`
}

// OrderStatusChangedEvent published on any admin status transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
}

// OrderLineData represents line data in events
type OrderLineData struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}
