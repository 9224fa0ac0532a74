package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog product as seen by checkout
type Product struct {
	ID           int64           `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	RegularPrice decimal.Decimal `db:"regular_price" json:"regular_price"`
	PromoPrice   decimal.Decimal `db:"promo_price" json:"promo_price"`
	Image        *string         `db:"image" json:"image"`
	DeletedAt    *time.Time      `db:"deleted_at" json:"-"`
}

// EffectivePrice returns the promotional price when one is active.
// A promo price of exactly zero means no promotion, not a free product.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.PromoPrice.IsZero() {
		return p.RegularPrice
	}
	return p.PromoPrice
}

// CartLine is a user's cart entry joined with its product.
// Product is nil when the referenced product no longer exists.
type CartLine struct {
	ID        int64    `db:"id" json:"id"`
	UserID    int64    `db:"user_id" json:"user_id"`
	ProductID int64    `db:"product_id" json:"product_id"`
	Quantity  int      `db:"quantity" json:"quantity"`
	Product   *Product `db:"-" json:"product,omitempty"`
}

// Order represents a customer order
type Order struct {
	ID               int64           `db:"id" json:"id"`
	UserID           int64           `db:"user_id" json:"user_id"`
	OrderNumber      string          `db:"order_number" json:"order_number"`
	Status           string          `db:"status" json:"status"`
	DeliveryDate     time.Time       `db:"delivery_date" json:"delivery_date"`
	DeliveryTime     string          `db:"delivery_time" json:"delivery_time"`
	DeliveryNotes    *string         `db:"delivery_notes" json:"delivery_notes"`
	ShopperID        string          `db:"shopper_id" json:"shopper_id"`
	Tax              decimal.Decimal `db:"tax" json:"tax"`
	DeliveryCharges  decimal.Decimal `db:"delivery_charges" json:"delivery_charges"`
	Total            decimal.Decimal `db:"total" json:"total"`
	ConfirmedAt      *time.Time      `db:"confirmed_at" json:"confirmed_at"`
	PickedUpAt       *time.Time      `db:"picked_up_at" json:"picked_up_at"`
	OutForDeliveryAt *time.Time      `db:"out_for_delivery_at" json:"out_for_delivery_at"`
	DeliveredAt      *time.Time      `db:"delivered_at" json:"delivered_at"`
	OriginalOrderID  *int64          `db:"original_order_id" json:"original_order_id"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem is an immutable price/name snapshot of a product at order time
type OrderItem struct {
	ID           int64           `db:"id" json:"id"`
	OrderID      int64           `db:"order_id" json:"order_id"`
	ProductID    int64           `db:"product_id" json:"product_id"`
	ProductName  string          `db:"product_name" json:"product_name"`
	UnitPrice    decimal.Decimal `db:"unit_price" json:"unit_price"`
	Quantity     int             `db:"quantity" json:"quantity"`
	TotalPrice   decimal.Decimal `db:"total_price" json:"total_price"`
	ProductNotes *string         `db:"product_notes" json:"product_notes"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// Payment represents a payment transaction
type Payment struct {
	ID            int64           `db:"id" json:"id"`
	OrderID       int64           `db:"order_id" json:"order_id"`
	PaymentMethod string          `db:"payment_method" json:"payment_method"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	TransactionID string          `db:"transaction_id" json:"transaction_id"`
	PaymentStatus string          `db:"payment_status" json:"payment_status"`
	Currency      string          `db:"currency" json:"currency"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
	DeletedAt     *time.Time      `db:"deleted_at" json:"-"`
}

// Transaction is a completed payment joined with its order.
type Transaction struct {
	PaymentID      int64           `db:"payment_id"`
	OrderNumber    string          `db:"order_number"`
	Amount         decimal.Decimal `db:"amount"`
	PaymentMethod  string          `db:"payment_method"`
	PaymentStatus  string          `db:"payment_status"`
	TransactionID  string          `db:"transaction_id"`
	OrderStatus    string          `db:"order_status"`
	OrderTotal     decimal.Decimal `db:"order_total"`
	CreatedAt      time.Time       `db:"created_at"`
	OrderCreatedAt time.Time       `db:"order_created_at"`
}

// Order statuses
const (
	OrderStatusPlaced         = "order_placed"
	OrderStatusConfirmed      = "order_confirmed"
	OrderStatusPickedUp       = "order_pickedup"
	OrderStatusOutForDelivery = "out_for_delivery"
	OrderStatusDelivered      = "order_delivered"
	OrderStatusCancelled      = "order_cancelled"
)

// OrderStatuses lists every accepted order status.
var OrderStatuses = []string{
	OrderStatusPlaced,
	OrderStatusConfirmed,
	OrderStatusPickedUp,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// IsValidOrderStatus reports whether status is a known order status.
func IsValidOrderStatus(status string) bool {
	for _, s := range OrderStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

const PaymentMethodCard = "card"

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
