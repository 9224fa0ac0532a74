package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"grocery-orders/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const orderColumns = `id, user_id, order_number, status, delivery_date, delivery_time, delivery_notes,
	shopper_id, tax, delivery_charges, total, confirmed_at, picked_up_at, out_for_delivery_at,
	delivered_at, original_order_id, created_at, updated_at`

const paymentColumns = `id, order_id, payment_method, amount, transaction_id, payment_status,
	currency, created_at, updated_at, deleted_at`

// CreateOrder creates a new order
func (s queries) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, order_number, status, delivery_date, delivery_time, delivery_notes,
			shopper_id, tax, delivery_charges, total, original_order_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`

	return sqlx.GetContext(ctx, s.q, order, query,
		order.UserID, order.OrderNumber, order.Status, order.DeliveryDate, order.DeliveryTime,
		order.DeliveryNotes, order.ShopperID, order.Tax, order.DeliveryCharges, order.Total,
		order.OriginalOrderID)
}

// GetOrderByID retrieves an order by ID
func (s queries) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return s.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
}

// GetOrderForUser retrieves an order only when it belongs to userID
func (s queries) GetOrderForUser(ctx context.Context, id, userID int64) (*models.Order, error) {
	return s.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 AND user_id = $2", id, userID)
}

// LockOrder reads an order and holds a row lock until the transaction ends
func (s queries) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	return s.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id)
}

func (s queries) getOrder(ctx context.Context, query string, args ...interface{}) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, s.q, &order, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %v: %w", args[0], ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus persists status and the pipeline timestamps of order
func (s queries) UpdateOrderStatus(ctx context.Context, order *models.Order) error {
	query := `
		UPDATE orders
		SET status = $1, confirmed_at = $2, picked_up_at = $3, out_for_delivery_at = $4,
			delivered_at = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at`

	err := sqlx.GetContext(ctx, s.q, &order.UpdatedAt, query,
		order.Status, order.ConfirmedAt, order.PickedUpAt, order.OutForDeliveryAt,
		order.DeliveredAt, order.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("order %d: %w", order.ID, ErrNotFound)
	}
	return err
}

// GetOrdersByUserID retrieves orders for a user, newest first
func (s queries) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := sqlx.SelectContext(ctx, s.q, &orders,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC", userID)
	return orders, err
}

// CreateOrderItem creates a new order item
func (s queries) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, product_name, unit_price, quantity, total_price, product_notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	return sqlx.GetContext(ctx, s.q, item, query,
		item.OrderID, item.ProductID, item.ProductName, item.UnitPrice, item.Quantity,
		item.TotalPrice, item.ProductNotes)
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s queries) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := sqlx.SelectContext(ctx, s.q, &items, `
		SELECT id, order_id, product_id, product_name, unit_price, quantity, total_price, product_notes, created_at
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	return items, err
}

// CountOrderItems returns the number of item rows per order
func (s queries) CountOrderItems(ctx context.Context, orderIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(orderIDs))
	if len(orderIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		OrderID int64 `db:"order_id"`
		Count   int   `db:"count"`
	}
	err := sqlx.SelectContext(ctx, s.q, &rows, `
		SELECT order_id, COUNT(*) AS count FROM order_items
		WHERE order_id = ANY($1) GROUP BY order_id`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		counts[r.OrderID] = r.Count
	}
	return counts, nil
}

// CreatePayment creates a new payment record
func (s queries) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, payment_method, amount, transaction_id, payment_status, currency)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	return sqlx.GetContext(ctx, s.q, payment, query,
		payment.OrderID, payment.PaymentMethod, payment.Amount, payment.TransactionID,
		payment.PaymentStatus, payment.Currency)
}

// GetPaymentByID retrieves a live payment
func (s queries) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	return s.getPayment(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE id = $1 AND deleted_at IS NULL", id)
}

// LockPayment reads a payment and holds a row lock until the transaction ends
func (s queries) LockPayment(ctx context.Context, id int64) (*models.Payment, error) {
	return s.getPayment(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE id = $1 AND deleted_at IS NULL FOR UPDATE", id)
}

// GetPaymentByTransactionID finds the payment created for a gateway intent
func (s queries) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return s.getPayment(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE transaction_id = $1 AND deleted_at IS NULL
		ORDER BY id LIMIT 1`, transactionID)
}

func (s queries) getPayment(ctx context.Context, query string, args ...interface{}) (*models.Payment, error) {
	var payment models.Payment
	err := sqlx.GetContext(ctx, s.q, &payment, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment %v: %w", args[0], ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetFirstPayments returns the earliest live payment of each order
func (s queries) GetFirstPayments(ctx context.Context, orderIDs []int64) (map[int64]models.Payment, error) {
	result := make(map[int64]models.Payment, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}

	var payments []models.Payment
	err := sqlx.SelectContext(ctx, s.q, &payments, `
		SELECT DISTINCT ON (order_id) `+paymentColumns+`
		FROM payments
		WHERE order_id = ANY($1) AND deleted_at IS NULL
		ORDER BY order_id, id`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	for _, p := range payments {
		result[p.OrderID] = p
	}
	return result, nil
}

// UpdatePaymentStatus updates payment status and gateway reference
func (s queries) UpdatePaymentStatus(ctx context.Context, paymentID int64, status, transactionID string) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE payments SET payment_status = $1, transaction_id = $2, updated_at = NOW() WHERE id = $3",
		status, transactionID, paymentID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("payment %d: %w", paymentID, ErrNotFound)
	}
	return nil
}

// GetCompletedTransactions lists the user's completed payments joined with their order
func (s queries) GetCompletedTransactions(ctx context.Context, userID int64) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := sqlx.SelectContext(ctx, s.q, &txs, `
		SELECT p.id AS payment_id, o.order_number, p.amount, p.payment_method, p.payment_status,
		       p.transaction_id, o.status AS order_status, o.total AS order_total,
		       p.created_at, o.created_at AS order_created_at
		FROM payments p
		JOIN orders o ON o.id = p.order_id
		WHERE o.user_id = $1 AND p.payment_status = $2 AND p.deleted_at IS NULL
		ORDER BY p.created_at DESC, p.id DESC`, userID, models.PaymentStatusCompleted)
	return txs, err
}

// IsEventProcessed checks if an event has been processed
func (s queries) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, s.q, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s queries) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
