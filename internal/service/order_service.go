package service

import (
	"context"
	"time"

	"grocery-orders/internal/apperrors"
	"grocery-orders/internal/models"
	"grocery-orders/internal/store"
	"grocery-orders/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService handles order queries and the back-office status pipeline
type OrderService struct {
	repo   store.Repository
	events EventPublisher
	logger *zap.Logger
	now    func() time.Time
}

// NewOrderService creates a new order service. events may be nil.
func NewOrderService(repo store.Repository, events EventPublisher) *OrderService {
	return &OrderService{
		repo:   repo,
		events: events,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// OrderSummary is one row of the order history
type OrderSummary struct {
	ID              int64          `json:"id"`
	OrderNumber     string         `json:"order_number"`
	Status          string         `json:"status"`
	Price           string         `json:"price"`
	Tax             string         `json:"tax"`
	DeliveryCharges string         `json:"delivery_charges"`
	DeliveryDate    string         `json:"delivery_date"`
	DeliveryTime    string         `json:"delivery_time"`
	ShopperID       string         `json:"shopper_id"`
	CreatedAt       time.Time      `json:"created_at"`
	Items           int            `json:"items"`
	PaymentStatus   string         `json:"payment_status"`
	StatusTimeline  StatusTimeline `json:"status_timeline"`
}

type ProductRef struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Image *string `json:"image"`
}

type OrderItemView struct {
	ID           int64       `json:"id"`
	ProductID    int64       `json:"product_id"`
	ProductName  string      `json:"product_name"`
	UnitPrice    string      `json:"unit_price"`
	Quantity     int         `json:"quantity"`
	TotalPrice   string      `json:"total_price"`
	ProductNotes *string     `json:"product_notes"`
	Product      *ProductRef `json:"product"`
}

type PaymentSummary struct {
	ID            int64  `json:"id"`
	PaymentStatus string `json:"payment_status"`
	PaymentMethod string `json:"payment_method"`
	TransactionID string `json:"transaction_id"`
	Amount        string `json:"amount"`
}

// OrderDetail is a single order with its items and first payment
type OrderDetail struct {
	ID              int64           `json:"id"`
	OrderNumber     string          `json:"order_number"`
	Status          string          `json:"status"`
	Price           string          `json:"price"`
	Tax             string          `json:"tax"`
	DeliveryCharges string          `json:"delivery_charges"`
	DeliveryDate    string          `json:"delivery_date"`
	DeliveryTime    string          `json:"delivery_time"`
	DeliveryNotes   *string         `json:"delivery_notes"`
	ShopperID       string          `json:"shopper_id"`
	OriginalOrderID *int64          `json:"original_order_id"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Items           []OrderItemView `json:"items"`
	Payment         *PaymentSummary `json:"payment"`
}

// TrackingView is the delivery tracking projection
type TrackingView struct {
	OrderID           int64          `json:"order_id"`
	OrderNumber       string         `json:"order_number"`
	CurrentStatus     string         `json:"current_status"`
	StatusLabel       string         `json:"status_label"`
	EstimatedDelivery *string        `json:"estimated_delivery"`
	DeliveryDate      string         `json:"delivery_date"`
	DeliveryTime      string         `json:"delivery_time"`
	ShopperID         string         `json:"shopper_id"`
	Total             string         `json:"total"`
	PaymentStatus     string         `json:"payment_status"`
	Timeline          StatusTimeline `json:"timeline"`
	IsCancelled       bool           `json:"is_cancelled"`
	Items             int            `json:"items"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// StatusUpdateResult is returned after a status change
type StatusUpdateResult struct {
	ID          int64     `json:"id"`
	OrderNumber string    `json:"order_number"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GetOrders lists the user's orders, newest first
func (s *OrderService) GetOrders(ctx context.Context, userID int64) ([]OrderSummary, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrders")
	defer span.End()

	orders, err := s.repo.GetOrdersByUserID(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "failed to retrieve orders")
	}

	ids := make([]int64, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}

	counts, err := s.repo.CountOrderItems(ctx, ids)
	if err != nil {
		return nil, storeErr(err, "failed to retrieve orders")
	}
	payments, err := s.repo.GetFirstPayments(ctx, ids)
	if err != nil {
		return nil, storeErr(err, "failed to retrieve orders")
	}

	summaries := make([]OrderSummary, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		summaries = append(summaries, OrderSummary{
			ID:              o.ID,
			OrderNumber:     o.OrderNumber,
			Status:          o.Status,
			Price:           money(o.Total),
			Tax:             money(o.Tax),
			DeliveryCharges: money(o.DeliveryCharges),
			DeliveryDate:    formatDate(o.DeliveryDate),
			DeliveryTime:    o.DeliveryTime,
			ShopperID:       o.ShopperID,
			CreatedAt:       o.CreatedAt,
			Items:           counts[o.ID],
			PaymentStatus:   paymentStatusOf(payments, o.ID),
			StatusTimeline:  BuildTimeline(o),
		})
	}
	return summaries, nil
}

// GetOrder returns one of the user's orders with items and payment
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID int64) (*OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, storeErr(err, "failed to retrieve order details")
	}

	productIDs := make([]int64, 0, len(items))
	for _, it := range items {
		productIDs = append(productIDs, it.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, storeErr(err, "failed to retrieve order details")
	}
	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	views := make([]OrderItemView, 0, len(items))
	for _, it := range items {
		v := OrderItemView{
			ID:           it.ID,
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			UnitPrice:    money(it.UnitPrice),
			Quantity:     it.Quantity,
			TotalPrice:   money(it.TotalPrice),
			ProductNotes: it.ProductNotes,
		}
		if p, ok := byID[it.ProductID]; ok {
			v.Product = &ProductRef{ID: p.ID, Name: p.Name, Image: p.Image}
		}
		views = append(views, v)
	}

	payments, err := s.repo.GetFirstPayments(ctx, []int64{order.ID})
	if err != nil {
		return nil, storeErr(err, "failed to retrieve order details")
	}

	detail := &OrderDetail{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          order.Status,
		Price:           money(order.Total),
		Tax:             money(order.Tax),
		DeliveryCharges: money(order.DeliveryCharges),
		DeliveryDate:    formatDate(order.DeliveryDate),
		DeliveryTime:    order.DeliveryTime,
		DeliveryNotes:   order.DeliveryNotes,
		ShopperID:       order.ShopperID,
		OriginalOrderID: order.OriginalOrderID,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
		Items:           views,
	}
	if p, ok := payments[order.ID]; ok {
		detail.Payment = &PaymentSummary{
			ID:            p.ID,
			PaymentStatus: p.PaymentStatus,
			PaymentMethod: p.PaymentMethod,
			TransactionID: p.TransactionID,
			Amount:        money(p.Amount),
		}
	}
	return detail, nil
}

// TrackOrder returns the tracking projection of one of the user's orders
func (s *OrderService) TrackOrder(ctx context.Context, userID, orderID int64) (*TrackingView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.TrackOrder")
	defer span.End()

	order, err := s.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	counts, err := s.repo.CountOrderItems(ctx, []int64{order.ID})
	if err != nil {
		return nil, storeErr(err, "failed to retrieve order status")
	}
	payments, err := s.repo.GetFirstPayments(ctx, []int64{order.ID})
	if err != nil {
		return nil, storeErr(err, "failed to retrieve order status")
	}

	return &TrackingView{
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		CurrentStatus:     order.Status,
		StatusLabel:       StatusLabel(order.Status),
		EstimatedDelivery: EstimatedDelivery(order),
		DeliveryDate:      formatDate(order.DeliveryDate),
		DeliveryTime:      order.DeliveryTime,
		ShopperID:         order.ShopperID,
		Total:             money(order.Total),
		PaymentStatus:     paymentStatusOf(payments, order.ID),
		Timeline:          BuildTimeline(order),
		IsCancelled:       order.Status == models.OrderStatusCancelled,
		Items:             counts[order.ID],
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}, nil
}

// UpdateStatus moves an order through the delivery pipeline
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, status string) (*StatusUpdateResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	if !models.IsValidOrderStatus(status) {
		return nil, apperrors.ErrInvalidStatus
	}

	var previous string
	var updated models.Order
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if isNotFound(err) {
			return apperrors.ErrOrderNotFound
		}
		if err != nil {
			return err
		}

		previous = order.Status
		updated, err = ApplyStatus(*order, status, s.now().UTC())
		if err != nil {
			return err
		}
		return tx.UpdateOrderStatus(ctx, &updated)
	})
	if err != nil {
		if apperrors.As(err) == nil {
			s.logger.Error("Failed to update order status", zap.Int64("order_id", orderID), zap.Error(err))
		}
		return nil, storeErr(err, "failed to update order status")
	}

	util.OrderStatusChangesTotal.WithLabelValues(status).Inc()
	s.logger.Info("Order status updated",
		zap.Int64("order_id", orderID),
		zap.String("from", previous),
		zap.String("to", status))

	if s.events != nil {
		event := &models.OrderStatusChangedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderStatusChanged,
				Timestamp: time.Now(),
			},
			OrderID:        updated.ID,
			OrderNumber:    updated.OrderNumber,
			PreviousStatus: previous,
			Status:         updated.Status,
		}
		if err := s.events.PublishOrderStatusChanged(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
		}
	}

	return &StatusUpdateResult{
		ID:          updated.ID,
		OrderNumber: updated.OrderNumber,
		Status:      updated.Status,
		UpdatedAt:   updated.UpdatedAt,
	}, nil
}

func (s *OrderService) ownedOrder(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	order, err := s.repo.GetOrderForUser(ctx, orderID, userID)
	if isNotFound(err) {
		return nil, apperrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, storeErr(err, "failed to retrieve order")
	}
	return order, nil
}

func paymentStatusOf(payments map[int64]models.Payment, orderID int64) string {
	if p, ok := payments[orderID]; ok {
		return p.PaymentStatus
	}
	return models.PaymentStatusPending
}
