package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"grocery-orders/internal/apperrors"
	"grocery-orders/internal/gateway"
	"grocery-orders/internal/models"
	"grocery-orders/internal/store"
	"grocery-orders/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentConfig holds the business settings of checkout
type PaymentConfig struct {
	Rates              Rates
	Currency           string
	CheckoutLockTTL    time.Duration
	IdempotencyTTL     time.Duration
	ShopperIDMaxLength int
}

// PaymentService handles checkout, reorder and payment settlement
type PaymentService struct {
	repo           store.Repository
	gateway        gateway.Gateway
	guard          CheckoutGuard
	events         EventPublisher
	cfg            PaymentConfig
	logger         *zap.Logger
	now            func() time.Time
	newOrderNumber func() string
}

// NewPaymentService creates a new payment service. guard and events may be nil.
func NewPaymentService(
	repo store.Repository,
	gw gateway.Gateway,
	guard CheckoutGuard,
	events EventPublisher,
	cfg PaymentConfig,
) *PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.ShopperIDMaxLength <= 0 {
		cfg.ShopperIDMaxLength = 500
	}
	return &PaymentService{
		repo:           repo,
		gateway:        gw,
		guard:          guard,
		events:         events,
		cfg:            cfg,
		logger:         util.GetLogger(),
		now:            time.Now,
		newOrderNumber: newOrderNumber,
	}
}

// CheckoutRequest carries the delivery details of a checkout or reorder
type CheckoutRequest struct {
	DeliveryDate time.Time
	DeliveryTime string
	ShopperID    string
}

// PaymentIntentResult is returned by checkout and reorder
type PaymentIntentResult struct {
	ClientSecret    string        `json:"client_secret"`
	PaymentIntentID string        `json:"payment_intent_id"`
	PaymentID       int64         `json:"payment_id"`
	OrderID         int64         `json:"order_id"`
	OrderNumber     string        `json:"order_number"`
	PaymentStatus   string        `json:"payment_status"`
	Amount          string        `json:"amount"`
	OriginalOrderID *int64        `json:"original_order_id,omitempty"`
	Breakdown       BreakdownView `json:"breakdown"`
}

// ConfirmResult is returned after a payment is confirmed
type ConfirmResult struct {
	OrderID       int64  `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	PaymentStatus string `json:"payment_status"`
	OrderStatus   string `json:"order_status"`
}

type PaymentOrderSummary struct {
	ID           int64  `json:"id"`
	OrderNumber  string `json:"order_number"`
	Status       string `json:"status"`
	Total        string `json:"total"`
	DeliveryDate string `json:"delivery_date"`
	DeliveryTime string `json:"delivery_time"`
}

// PaymentStatusView is a payment with its order summary
type PaymentStatusView struct {
	PaymentID     int64               `json:"payment_id"`
	PaymentStatus string              `json:"payment_status"`
	PaymentMethod string              `json:"payment_method"`
	Amount        string              `json:"amount"`
	TransactionID string              `json:"transaction_id"`
	CreatedAt     time.Time           `json:"created_at"`
	Order         PaymentOrderSummary `json:"order"`
}

// TransactionView is one completed payment in the user's history
type TransactionView struct {
	ID             int64     `json:"id"`
	OrderNumber    string    `json:"order_number"`
	Amount         string    `json:"amount"`
	PaymentMethod  string    `json:"payment_method"`
	PaymentStatus  string    `json:"payment_status"`
	TransactionID  string    `json:"transaction_id"`
	OrderStatus    string    `json:"order_status"`
	OrderTotal     string    `json:"order_total"`
	CreatedAt      time.Time `json:"created_at"`
	OrderCreatedAt time.Time `json:"order_created_at"`
}

type idempotentRecord struct {
	Fingerprint string               `json:"fingerprint"`
	Result      *PaymentIntentResult `json:"result"`
}

// InitiatePayment turns the user's cart into an order with a pending card payment
func (s *PaymentService) InitiatePayment(ctx context.Context, userID int64, req CheckoutRequest, idempotencyKey string) (*PaymentIntentResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.InitiatePayment")
	defer span.End()

	if err := s.validate(req); err != nil {
		return nil, err
	}

	fingerprint := "checkout|" + req.fingerprint()
	return s.guarded(ctx, userID, idempotencyKey, fingerprint, "checkout", func() (*PaymentIntentResult, *models.Order, []LineItem, error) {
		var (
			result *PaymentIntentResult
			order  *models.Order
			lines  []LineItem
		)
		err := s.repo.WithTx(ctx, func(tx store.Tx) error {
			var bd Breakdown
			var err error
			lines, bd, err = ResolveCart(ctx, tx, userID, s.cfg.Rates)
			if err != nil {
				return err
			}
			order, result, err = s.placeOrder(ctx, tx, userID, req, lines, bd, nil)
			return err
		})
		return result, order, lines, err
	})
}

// Reorder clones a previous order at its original prices into a new pending order.
// The cart is neither read nor cleared.
func (s *PaymentService) Reorder(ctx context.Context, userID, originalOrderID int64, req CheckoutRequest, idempotencyKey string) (*PaymentIntentResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Reorder")
	defer span.End()

	if err := s.validate(req); err != nil {
		return nil, err
	}

	fingerprint := "reorder|" + strconv.FormatInt(originalOrderID, 10) + "|" + req.fingerprint()
	return s.guarded(ctx, userID, idempotencyKey, fingerprint, "reorder", func() (*PaymentIntentResult, *models.Order, []LineItem, error) {
		var (
			result *PaymentIntentResult
			order  *models.Order
			lines  []LineItem
		)
		err := s.repo.WithTx(ctx, func(tx store.Tx) error {
			original, err := tx.GetOrderForUser(ctx, originalOrderID, userID)
			if isNotFound(err) {
				return apperrors.New(apperrors.CodeNotFound, "Original order not found")
			}
			if err != nil {
				return err
			}

			items, err := tx.GetOrderItemsByOrderID(ctx, original.ID)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return apperrors.Validation("Original order has no items")
			}

			lines = linesFromItems(items)
			bd := ComputeBreakdown(lines, s.cfg.Rates)
			order, result, err = s.placeOrder(ctx, tx, userID, req, lines, bd, &original.ID)
			return err
		})
		return result, order, lines, err
	})
}

// guarded runs a checkout under the user's lock and records the result for idempotent replay.
func (s *PaymentService) guarded(
	ctx context.Context,
	userID int64,
	idempotencyKey, fingerprint, kind string,
	run func() (*PaymentIntentResult, *models.Order, []LineItem, error),
) (*PaymentIntentResult, error) {
	if s.guard != nil && idempotencyKey != "" {
		replay, err := s.replay(ctx, userID, idempotencyKey, fingerprint)
		if err != nil || replay != nil {
			return replay, err
		}
	}

	if s.guard != nil {
		token, ok, err := s.guard.AcquireCheckoutLock(ctx, userID, s.cfg.CheckoutLockTTL)
		if err != nil {
			s.logger.Error("Failed to acquire checkout lock", zap.Int64("user_id", userID), zap.Error(err))
			return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to acquire checkout lock")
		}
		if !ok {
			util.CheckoutRejectedTotal.WithLabelValues("in_progress").Inc()
			return nil, apperrors.ErrCheckoutInProgress
		}
		defer func() {
			if err := s.guard.ReleaseCheckoutLock(context.WithoutCancel(ctx), userID, token); err != nil {
				s.logger.Warn("Failed to release checkout lock", zap.Int64("user_id", userID), zap.Error(err))
			}
		}()
	}

	result, order, lines, err := run()
	if err != nil {
		util.CheckoutRejectedTotal.WithLabelValues(string(apperrors.CodeOf(err))).Inc()
		if apperrors.As(err) == nil || apperrors.CodeOf(err) == apperrors.CodeGateway {
			s.logger.Error("Checkout failed", zap.String("kind", kind), zap.Int64("user_id", userID), zap.Error(err))
		}
		return nil, storeErr(err, "Failed to create payment intent")
	}

	util.OrdersCreatedTotal.WithLabelValues(kind).Inc()
	s.logger.Info("Order placed",
		zap.String("kind", kind),
		zap.Int64("order_id", order.ID),
		zap.Int64("payment_id", result.PaymentID),
		zap.Int64("user_id", userID))

	s.publishOrderPlaced(ctx, order, lines)

	if s.guard != nil && idempotencyKey != "" {
		s.remember(ctx, userID, idempotencyKey, fingerprint, result)
	}
	return result, nil
}

// placeOrder writes the order, its item snapshot and a pending payment inside tx.
func (s *PaymentService) placeOrder(
	ctx context.Context,
	tx store.Tx,
	userID int64,
	req CheckoutRequest,
	lines []LineItem,
	bd Breakdown,
	originalOrderID *int64,
) (*models.Order, *PaymentIntentResult, error) {
	order := &models.Order{
		UserID:          userID,
		OrderNumber:     s.newOrderNumber(),
		Status:          models.OrderStatusPlaced,
		DeliveryDate:    req.DeliveryDate,
		DeliveryTime:    req.DeliveryTime,
		ShopperID:       req.ShopperID,
		Tax:             bd.Tax,
		DeliveryCharges: bd.DeliveryCharges,
		Total:           bd.Total,
		OriginalOrderID: originalOrderID,
	}
	if err := tx.CreateOrder(ctx, order); err != nil {
		return nil, nil, fmt.Errorf("create order: %w", err)
	}

	for _, l := range lines {
		item := &models.OrderItem{
			OrderID:      order.ID,
			ProductID:    l.ProductID,
			ProductName:  l.ProductName,
			UnitPrice:    l.UnitPrice,
			Quantity:     l.Quantity,
			TotalPrice:   l.Total(),
			ProductNotes: l.Notes,
		}
		if err := tx.CreateOrderItem(ctx, item); err != nil {
			return nil, nil, fmt.Errorf("create order item: %w", err)
		}
	}

	metadata := map[string]string{
		"order_id":     strconv.FormatInt(order.ID, 10),
		"user_id":      strconv.FormatInt(userID, 10),
		"order_number": order.OrderNumber,
	}
	if originalOrderID != nil {
		metadata["original_order_id"] = strconv.FormatInt(*originalOrderID, 10)
	}

	start := time.Now()
	intent, err := s.gateway.CreateIntent(ctx, bd.AmountMinor(), s.cfg.Currency, metadata)
	util.GatewayLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.PaymentIntentsTotal.WithLabelValues("error").Inc()
		return nil, nil, apperrors.Gateway(err)
	}
	util.PaymentIntentsTotal.WithLabelValues("created").Inc()

	payment := &models.Payment{
		OrderID:       order.ID,
		PaymentMethod: models.PaymentMethodCard,
		Amount:        bd.Total,
		TransactionID: intent.ID,
		PaymentStatus: models.PaymentStatusPending,
		Currency:      s.cfg.Currency,
	}
	if err := tx.CreatePayment(ctx, payment); err != nil {
		return nil, nil, fmt.Errorf("create payment: %w", err)
	}

	return order, &PaymentIntentResult{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		PaymentID:       payment.ID,
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		PaymentStatus:   payment.PaymentStatus,
		Amount:          money(bd.Total),
		OriginalOrderID: originalOrderID,
		Breakdown:       bd.View(),
	}, nil
}

// ConfirmPayment settles a payment for its owner
func (s *PaymentService) ConfirmPayment(ctx context.Context, userID, paymentID int64, intentID string) (*ConfirmResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.ConfirmPayment")
	defer span.End()

	if paymentID <= 0 {
		return nil, apperrors.Validation("payment_id must be a positive integer")
	}
	if strings.TrimSpace(intentID) == "" {
		return nil, apperrors.Validation("payment_intent_id is required")
	}

	var (
		result  *ConfirmResult
		settled *settlement
	)
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		payment, err := tx.LockPayment(ctx, paymentID)
		if isNotFound(err) {
			return apperrors.ErrPaymentNotFound
		}
		if err != nil {
			return err
		}

		order, err := tx.LockOrder(ctx, payment.OrderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return apperrors.ErrUnauthorized
		}
		if payment.TransactionID != intentID {
			return apperrors.ErrIntentMismatch
		}
		if payment.PaymentStatus == models.PaymentStatusFailed {
			return apperrors.ErrPaymentFailed
		}

		result, settled, err = s.settle(ctx, tx, payment, order)
		return err
	})
	if err != nil {
		if apperrors.As(err) == nil {
			s.logger.Error("Payment confirmation failed", zap.Int64("payment_id", paymentID), zap.Error(err))
		}
		return nil, storeErr(err, "Failed to confirm payment")
	}

	if settled != nil {
		util.PaymentConfirmationsTotal.WithLabelValues("client").Inc()
		s.afterSettle(ctx, settled)
	}
	return result, nil
}

// settlement records what a confirmation changed, for post-commit side effects.
type settlement struct {
	payment models.Payment
	order   models.Order
}

// settle completes a payment, confirms its order and consumes the owner's cart.
// A payment that is already completed is left untouched.
func (s *PaymentService) settle(ctx context.Context, tx store.Tx, payment *models.Payment, order *models.Order) (*ConfirmResult, *settlement, error) {
	if payment.PaymentStatus == models.PaymentStatusCompleted {
		return &ConfirmResult{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			PaymentStatus: payment.PaymentStatus,
			OrderStatus:   order.Status,
		}, nil, nil
	}

	if err := tx.UpdatePaymentStatus(ctx, payment.ID, models.PaymentStatusCompleted, payment.TransactionID); err != nil {
		return nil, nil, fmt.Errorf("complete payment: %w", err)
	}
	payment.PaymentStatus = models.PaymentStatusCompleted

	confirmed := *order
	if order.Status == models.OrderStatusPlaced {
		var err error
		confirmed, err = ApplyStatus(*order, models.OrderStatusConfirmed, s.now().UTC())
		if err != nil {
			return nil, nil, err
		}
		if err := tx.UpdateOrderStatus(ctx, &confirmed); err != nil {
			return nil, nil, fmt.Errorf("confirm order: %w", err)
		}
	}

	if _, err := tx.ClearCart(ctx, order.UserID); err != nil {
		return nil, nil, fmt.Errorf("clear cart: %w", err)
	}

	return &ConfirmResult{
		OrderID:       confirmed.ID,
		OrderNumber:   confirmed.OrderNumber,
		PaymentStatus: payment.PaymentStatus,
		OrderStatus:   confirmed.Status,
	}, &settlement{payment: *payment, order: confirmed}, nil
}

func (s *PaymentService) afterSettle(ctx context.Context, st *settlement) {
	s.logger.Info("Payment confirmed",
		zap.Int64("order_id", st.order.ID),
		zap.Int64("payment_id", st.payment.ID),
		zap.String("transaction_id", st.payment.TransactionID))

	if s.events == nil {
		return
	}
	event := &models.PaymentConfirmedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentConfirmed,
			Timestamp: time.Now(),
		},
		OrderID:       st.order.ID,
		PaymentID:     st.payment.ID,
		UserID:        st.order.UserID,
		Amount:        st.payment.Amount,
		TransactionID: st.payment.TransactionID,
	}
	if err := s.events.PublishPaymentConfirmed(ctx, event); err != nil {
		s.logger.Error("Failed to publish PaymentConfirmed event", zap.Error(err))
	}
}

// GetPaymentStatus returns a payment of the user with its order summary
func (s *PaymentService) GetPaymentStatus(ctx context.Context, userID, paymentID int64) (*PaymentStatusView, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.GetPaymentStatus")
	defer span.End()

	payment, err := s.repo.GetPaymentByID(ctx, paymentID)
	if isNotFound(err) {
		return nil, apperrors.ErrPaymentNotFound
	}
	if err != nil {
		return nil, storeErr(err, "Failed to get payment status")
	}

	order, err := s.repo.GetOrderByID(ctx, payment.OrderID)
	if err != nil {
		return nil, storeErr(err, "Failed to get payment status")
	}
	if order.UserID != userID {
		return nil, apperrors.ErrUnauthorized
	}

	return &PaymentStatusView{
		PaymentID:     payment.ID,
		PaymentStatus: payment.PaymentStatus,
		PaymentMethod: payment.PaymentMethod,
		Amount:        money(payment.Amount),
		TransactionID: payment.TransactionID,
		CreatedAt:     payment.CreatedAt,
		Order: PaymentOrderSummary{
			ID:           order.ID,
			OrderNumber:  order.OrderNumber,
			Status:       order.Status,
			Total:        money(order.Total),
			DeliveryDate: formatDate(order.DeliveryDate),
			DeliveryTime: order.DeliveryTime,
		},
	}, nil
}

// ListTransactions returns the user's completed payments, newest first
func (s *PaymentService) ListTransactions(ctx context.Context, userID int64) ([]TransactionView, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.ListTransactions")
	defer span.End()

	txs, err := s.repo.GetCompletedTransactions(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to list transactions", zap.Int64("user_id", userID), zap.Error(err))
		return nil, apperrors.Persistence(err, "Failed to retrieve transactions")
	}

	views := make([]TransactionView, 0, len(txs))
	for _, t := range txs {
		views = append(views, TransactionView{
			ID:             t.PaymentID,
			OrderNumber:    t.OrderNumber,
			Amount:         money(t.Amount),
			PaymentMethod:  t.PaymentMethod,
			PaymentStatus:  t.PaymentStatus,
			TransactionID:  t.TransactionID,
			OrderStatus:    t.OrderStatus,
			OrderTotal:     money(t.OrderTotal),
			CreatedAt:      t.CreatedAt,
			OrderCreatedAt: t.OrderCreatedAt,
		})
	}
	return views, nil
}

func (s *PaymentService) validate(req CheckoutRequest) error {
	if req.DeliveryDate.IsZero() {
		return apperrors.Validation("delivery_date is required")
	}
	today := s.now().UTC().Format(dateLayout)
	if req.DeliveryDate.Format(dateLayout) <= today {
		return apperrors.Validation("delivery_date must be a date after today")
	}
	if strings.TrimSpace(req.DeliveryTime) == "" {
		return apperrors.Validation("delivery_time is required")
	}
	if strings.TrimSpace(req.ShopperID) == "" {
		return apperrors.Validation("shopper_id is required")
	}
	if len(req.ShopperID) > s.cfg.ShopperIDMaxLength {
		return apperrors.Validation(fmt.Sprintf("shopper_id may not be greater than %d characters", s.cfg.ShopperIDMaxLength))
	}
	return nil
}

func (r CheckoutRequest) fingerprint() string {
	return r.DeliveryDate.Format(dateLayout) + "|" + r.DeliveryTime + "|" + r.ShopperID
}

func (s *PaymentService) replay(ctx context.Context, userID int64, key, fingerprint string) (*PaymentIntentResult, error) {
	raw, found, err := s.guard.GetIdempotentResponse(ctx, userID, key)
	if err != nil {
		s.logger.Warn("Idempotency lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, nil
	}
	if !found {
		return nil, nil
	}

	var rec idempotentRecord
	if err := json.Unmarshal(raw, &rec); err != nil || rec.Result == nil {
		s.logger.Warn("Discarding unreadable idempotency record", zap.String("key", key))
		return nil, nil
	}
	if rec.Fingerprint != fingerprint {
		return nil, apperrors.New(apperrors.CodeConflict, "Idempotency-Key was already used for a different request")
	}

	s.logger.Info("Duplicate checkout request detected",
		zap.String("idempotency_key", key),
		zap.Int64("order_id", rec.Result.OrderID))
	return rec.Result, nil
}

func (s *PaymentService) remember(ctx context.Context, userID int64, key, fingerprint string, result *PaymentIntentResult) {
	raw, err := json.Marshal(idempotentRecord{Fingerprint: fingerprint, Result: result})
	if err != nil {
		s.logger.Error("Failed to encode idempotency record", zap.Error(err))
		return
	}
	if err := s.guard.SaveIdempotentResponse(ctx, userID, key, raw, s.cfg.IdempotencyTTL); err != nil {
		s.logger.Warn("Failed to store idempotency record", zap.String("key", key), zap.Error(err))
	}
}

func (s *PaymentService) publishOrderPlaced(ctx context.Context, order *models.Order, lines []LineItem) {
	if s.events == nil {
		return
	}

	items := make([]models.OrderItemData, 0, len(lines))
	for _, l := range lines {
		items = append(items, models.OrderItemData{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}

	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now(),
		},
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		UserID:          order.UserID,
		Total:           order.Total,
		OriginalOrderID: order.OriginalOrderID,
		Items:           items,
	}
	if err := s.events.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
	}
}

// newOrderNumber returns "ORD-" followed by 13 upper-case hex digits.
func newOrderNumber() string {
	id := uuid.New()
	h := strings.ToUpper(hex.EncodeToString(id[:]))
	return "ORD-" + h[len(h)-13:]
}
