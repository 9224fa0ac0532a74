package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced            = "ORDER_PLACED"
	EventTypeOrderStatusChanged     = "ORDER_STATUS_CHANGED"
	EventTypePaymentConfirmed       = "PAYMENT_CONFIRMED"
	EventTypePaymentIntentSucceeded = "PAYMENT_INTENT_SUCCEEDED"
	EventTypePaymentIntentFailed    = "PAYMENT_INTENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent published when checkout or reorder commits
type OrderPlacedEvent struct {
	BaseEvent
	OrderID         int64           `json:"order_id"`
	OrderNumber     string          `json:"order_number"`
	UserID          int64           `json:"user_id"`
	Total           decimal.Decimal `json:"total"`
	OriginalOrderID *int64          `json:"original_order_id,omitempty"`
	Items           []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published after an admin status update
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID        int64  `json:"order_id"`
	OrderNumber    string `json:"order_number"`
	PreviousStatus string `json:"previous_status"`
	Status         string `json:"status"`
}

// PaymentConfirmedEvent published when a payment settles
type PaymentConfirmedEvent struct {
	BaseEvent
	OrderID       int64           `json:"order_id"`
	PaymentID     int64           `json:"payment_id"`
	UserID        int64           `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id"`
}

// PaymentIntentEvent carries an out-of-band gateway result
type PaymentIntentEvent struct {
	BaseEvent
	GatewayEventID string `json:"gateway_event_id"`
	IntentID       string `json:"intent_id"`
	Reason         string `json:"reason,omitempty"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
