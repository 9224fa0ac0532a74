package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"grocery-orders/internal/models"

	"github.com/shopspring/decimal"
)

// Memory is an in-process Repository used for local runs and tests.
// A transaction works on a copy of the state that replaces the live state on commit.
type Memory struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

var (
	_ Repository = (*Memory)(nil)
	_ Tx         = (*memState)(nil)
)

type memState struct {
	products map[int64]models.Product
	cart     []models.CartLine
	orders   map[int64]models.Order
	items    []models.OrderItem
	payments map[int64]models.Payment
	events   map[string]models.ProcessedEvent

	nextProductID int64
	nextCartID    int64
	nextOrderID   int64
	nextItemID    int64
	nextPaymentID int64

	now func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	m := &Memory{now: time.Now}
	m.state = &memState{
		products: make(map[int64]models.Product),
		orders:   make(map[int64]models.Order),
		payments: make(map[int64]models.Payment),
		events:   make(map[string]models.ProcessedEvent),
		now:      m.clock,
	}
	return m
}

// SetClock replaces the time source used for created_at/updated_at.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) clock() time.Time {
	return m.now().UTC()
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// WithTx runs fn against a copy of the state. The copy is kept only when fn succeeds.
func (m *Memory) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	working := m.state.clone()
	if err := fn(working); err != nil {
		return err
	}
	m.state = working
	return nil
}

func (s *memState) clone() *memState {
	c := *s
	c.products = make(map[int64]models.Product, len(s.products))
	for k, v := range s.products {
		c.products[k] = v
	}
	c.cart = append([]models.CartLine(nil), s.cart...)
	c.orders = make(map[int64]models.Order, len(s.orders))
	for k, v := range s.orders {
		c.orders[k] = v
	}
	c.items = append([]models.OrderItem(nil), s.items...)
	c.payments = make(map[int64]models.Payment, len(s.payments))
	for k, v := range s.payments {
		c.payments[k] = v
	}
	c.events = make(map[string]models.ProcessedEvent, len(s.events))
	for k, v := range s.events {
		c.events[k] = v
	}
	return &c
}

// Seeding helpers

// AddProduct inserts a catalog product and returns its id.
func (m *Memory) AddProduct(name string, regular, promo decimal.Decimal) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.nextProductID++
	id := m.state.nextProductID
	m.state.products[id] = models.Product{ID: id, Name: name, RegularPrice: regular, PromoPrice: promo}
	return id
}

// SetProductPrices changes the current prices of a product.
func (m *Memory) SetProductPrices(id int64, regular, promo decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.state.products[id]; ok {
		p.RegularPrice = regular
		p.PromoPrice = promo
		m.state.products[id] = p
	}
}

// DeleteProduct soft-deletes a product.
func (m *Memory) DeleteProduct(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.state.products[id]; ok {
		now := m.clock()
		p.DeletedAt = &now
		m.state.products[id] = p
	}
}

// AddCartLine puts a product into the user's cart.
func (m *Memory) AddCartLine(userID, productID int64, quantity int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.nextCartID++
	m.state.cart = append(m.state.cart, models.CartLine{
		ID:        m.state.nextCartID,
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
	})
}

// Counts reports the number of orders, payments and cart lines currently stored.
func (m *Memory) Counts() (orders, payments, cartLines int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.orders), len(m.state.payments), len(m.state.cart)
}

// Reads outside a transaction see the last committed state.

func (m *Memory) GetCartLines(ctx context.Context, userID int64) ([]models.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetCartLines(ctx, userID)
}

func (m *Memory) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetProductsByIDs(ctx, ids)
}

func (m *Memory) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetOrderByID(ctx, id)
}

func (m *Memory) GetOrderForUser(ctx context.Context, id, userID int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetOrderForUser(ctx, id, userID)
}

func (m *Memory) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetOrdersByUserID(ctx, userID)
}

func (m *Memory) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetOrderItemsByOrderID(ctx, orderID)
}

func (m *Memory) CountOrderItems(ctx context.Context, orderIDs []int64) (map[int64]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CountOrderItems(ctx, orderIDs)
}

func (m *Memory) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetPaymentByID(ctx, id)
}

func (m *Memory) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetPaymentByTransactionID(ctx, transactionID)
}

func (m *Memory) GetFirstPayments(ctx context.Context, orderIDs []int64) (map[int64]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetFirstPayments(ctx, orderIDs)
}

func (m *Memory) GetCompletedTransactions(ctx context.Context, userID int64) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetCompletedTransactions(ctx, userID)
}

func (m *Memory) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.IsEventProcessed(ctx, eventID)
}

// memState implements Tx.

func (s *memState) GetCartLines(ctx context.Context, userID int64) ([]models.CartLine, error) {
	lines := make([]models.CartLine, 0)
	for _, l := range s.cart {
		if l.UserID != userID {
			continue
		}
		if p, ok := s.products[l.ProductID]; ok && p.DeletedAt == nil {
			product := p
			l.Product = &product
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func (s *memState) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	products := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok && p.DeletedAt == nil {
			products = append(products, p)
		}
	}
	return products, nil
}

func (s *memState) ClearCart(ctx context.Context, userID int64) (int64, error) {
	kept := s.cart[:0:0]
	var removed int64
	for _, l := range s.cart {
		if l.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	s.cart = kept
	return removed, nil
}

func (s *memState) CreateOrder(ctx context.Context, order *models.Order) error {
	for _, o := range s.orders {
		if o.OrderNumber == order.OrderNumber {
			return fmt.Errorf("duplicate order number %s", order.OrderNumber)
		}
	}
	if order.OriginalOrderID != nil {
		if _, ok := s.orders[*order.OriginalOrderID]; !ok {
			return fmt.Errorf("original order %d: %w", *order.OriginalOrderID, ErrNotFound)
		}
	}

	s.nextOrderID++
	now := s.now()
	order.ID = s.nextOrderID
	order.CreatedAt = now
	order.UpdatedAt = now
	s.orders[order.ID] = *order
	return nil
}

func (s *memState) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return &o, nil
}

func (s *memState) GetOrderForUser(ctx context.Context, id, userID int64) (*models.Order, error) {
	o, ok := s.orders[id]
	if !ok || o.UserID != userID {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return &o, nil
}

func (s *memState) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	return s.GetOrderByID(ctx, id)
}

func (s *memState) UpdateOrderStatus(ctx context.Context, order *models.Order) error {
	o, ok := s.orders[order.ID]
	if !ok {
		return fmt.Errorf("order %d: %w", order.ID, ErrNotFound)
	}
	o.Status = order.Status
	o.ConfirmedAt = order.ConfirmedAt
	o.PickedUpAt = order.PickedUpAt
	o.OutForDeliveryAt = order.OutForDeliveryAt
	o.DeliveredAt = order.DeliveredAt
	o.UpdatedAt = s.now()
	s.orders[o.ID] = o
	order.UpdatedAt = o.UpdatedAt
	return nil
}

func (s *memState) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	orders := make([]models.Order, 0)
	for _, o := range s.orders {
		if o.UserID == userID {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
	return orders, nil
}

func (s *memState) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	if _, ok := s.orders[item.OrderID]; !ok {
		return fmt.Errorf("order %d: %w", item.OrderID, ErrNotFound)
	}
	s.nextItemID++
	item.ID = s.nextItemID
	item.CreatedAt = s.now()
	s.items = append(s.items, *item)
	return nil
}

func (s *memState) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, 0)
	for _, it := range s.items {
		if it.OrderID == orderID {
			items = append(items, it)
		}
	}
	return items, nil
}

func (s *memState) CountOrderItems(ctx context.Context, orderIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(orderIDs))
	wanted := make(map[int64]bool, len(orderIDs))
	for _, id := range orderIDs {
		wanted[id] = true
	}
	for _, it := range s.items {
		if wanted[it.OrderID] {
			counts[it.OrderID]++
		}
	}
	return counts, nil
}

func (s *memState) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if _, ok := s.orders[payment.OrderID]; !ok {
		return fmt.Errorf("order %d: %w", payment.OrderID, ErrNotFound)
	}
	s.nextPaymentID++
	now := s.now()
	payment.ID = s.nextPaymentID
	payment.CreatedAt = now
	payment.UpdatedAt = now
	s.payments[payment.ID] = *payment
	return nil
}

func (s *memState) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	p, ok := s.payments[id]
	if !ok || p.DeletedAt != nil {
		return nil, fmt.Errorf("payment %d: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (s *memState) LockPayment(ctx context.Context, id int64) (*models.Payment, error) {
	return s.GetPaymentByID(ctx, id)
}

func (s *memState) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	var found *models.Payment
	for _, p := range s.payments {
		if p.TransactionID != transactionID || p.DeletedAt != nil {
			continue
		}
		if found == nil || p.ID < found.ID {
			payment := p
			found = &payment
		}
	}
	if found == nil {
		return nil, fmt.Errorf("payment %s: %w", transactionID, ErrNotFound)
	}
	return found, nil
}

func (s *memState) GetFirstPayments(ctx context.Context, orderIDs []int64) (map[int64]models.Payment, error) {
	wanted := make(map[int64]bool, len(orderIDs))
	for _, id := range orderIDs {
		wanted[id] = true
	}
	result := make(map[int64]models.Payment, len(orderIDs))
	for _, p := range s.payments {
		if !wanted[p.OrderID] || p.DeletedAt != nil {
			continue
		}
		if cur, ok := result[p.OrderID]; !ok || p.ID < cur.ID {
			result[p.OrderID] = p
		}
	}
	return result, nil
}

func (s *memState) UpdatePaymentStatus(ctx context.Context, paymentID int64, status, transactionID string) error {
	p, ok := s.payments[paymentID]
	if !ok {
		return fmt.Errorf("payment %d: %w", paymentID, ErrNotFound)
	}
	p.PaymentStatus = status
	p.TransactionID = transactionID
	p.UpdatedAt = s.now()
	s.payments[paymentID] = p
	return nil
}

func (s *memState) GetCompletedTransactions(ctx context.Context, userID int64) ([]models.Transaction, error) {
	txs := make([]models.Transaction, 0)
	for _, p := range s.payments {
		if p.PaymentStatus != models.PaymentStatusCompleted || p.DeletedAt != nil {
			continue
		}
		o, ok := s.orders[p.OrderID]
		if !ok || o.UserID != userID {
			continue
		}
		txs = append(txs, models.Transaction{
			PaymentID:      p.ID,
			OrderNumber:    o.OrderNumber,
			Amount:         p.Amount,
			PaymentMethod:  p.PaymentMethod,
			PaymentStatus:  p.PaymentStatus,
			TransactionID:  p.TransactionID,
			OrderStatus:    o.Status,
			OrderTotal:     o.Total,
			CreatedAt:      p.CreatedAt,
			OrderCreatedAt: o.CreatedAt,
		})
	}
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].CreatedAt.After(txs[j].CreatedAt)
		}
		return txs[i].PaymentID > txs[j].PaymentID
	})
	return txs, nil
}

func (s *memState) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	_, ok := s.events[eventID]
	return ok, nil
}

func (s *memState) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	if _, ok := s.events[eventID]; ok {
		return nil
	}
	s.events[eventID] = models.ProcessedEvent{EventID: eventID, EventType: eventType, ProcessedAt: s.now()}
	return nil
}
