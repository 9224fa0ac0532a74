package service

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"grocery-orders/internal/apperrors"
	"grocery-orders/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fillCart puts 2 apples and 2 bananas in the cart: 25.00 + 2.00 tax + 5.00 delivery.
func (f *fixture) fillCart(userID int64) {
	f.mem.AddCartLine(userID, f.apples, 2)
	f.mem.AddCartLine(userID, f.bananas, 2)
}

func TestInitiatePaymentCreatesPendingOrder(t *testing.T) {
	f := newFixture(t)
	f.fillCart(1)
	ctx := context.Background()

	res := f.placeOrder(t, 1)

	assert.Equal(t, models.PaymentStatusPending, res.PaymentStatus)
	assert.Equal(t, "32.00", res.Amount)
	assert.Equal(t, BreakdownView{Subtotal: "25.00", Tax: "2.00", DeliveryCharges: "5.00", Total: "32.00"}, res.Breakdown)
	assert.Equal(t, "pi_test_1", res.PaymentIntentID)
	assert.Equal(t, "pi_test_1_secret", res.ClientSecret)
	assert.Nil(t, res.OriginalOrderID)

	require.Equal(t, []int64{3200}, f.gw.amounts)
	assert.Equal(t, res.OrderNumber, f.gw.metadata[0]["order_number"])
	assert.Equal(t, "1", f.gw.metadata[0]["user_id"])

	order, err := f.mem.GetOrderByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPlaced, order.Status)
	assert.Equal(t, "32.00", money(order.Total))
	assert.Equal(t, "2.00", money(order.Tax))
	assert.Equal(t, "shopper-7", order.ShopperID)
	assert.Nil(t, order.ConfirmedAt)

	items, err := f.mem.GetOrderItemsByOrderID(ctx, res.OrderID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "2.50", money(items[1].UnitPrice))
	assert.Equal(t, "5.00", money(items[1].TotalPrice))

	payment, err := f.mem.GetPaymentByID(ctx, res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentMethodCard, payment.PaymentMethod)
	assert.Equal(t, "pi_test_1", payment.TransactionID)

	// the cart is consumed on confirmation, not at checkout
	_, _, cartLines := f.mem.Counts()
	assert.Equal(t, 2, cartLines)

	assert.Len(t, f.events.placed, 1)
	assert.Empty(t, f.guard.locks)
}

func TestInitiatePaymentEmptyCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.payments.InitiatePayment(context.Background(), 1, f.checkout, "")
	assert.ErrorIs(t, err, apperrors.ErrEmptyCart)

	orders, payments, _ := f.mem.Counts()
	assert.Zero(t, orders)
	assert.Zero(t, payments)
	assert.Zero(t, f.gw.calls)
	assert.Empty(t, f.guard.locks)
}

func TestInitiatePaymentUnavailableProduct(t *testing.T) {
	f := newFixture(t)
	f.fillCart(1)
	f.mem.DeleteProduct(f.bananas)

	_, err := f.payments.InitiatePayment(context.Background(), 1, f.checkout, "")
	assert.ErrorIs(t, err, apperrors.ErrProductUnavailable)
	assert.Zero(t, f.gw.calls)
}

func TestInitiatePaymentGatewayFailureLeavesNoOrder(t *testing.T) {
	f := newFixture(t)
	f.fillCart(1)
	f.gw.err = errors.New("card network down")

	_, err := f.payments.InitiatePayment(context.Background(), 1, f.checkout, "")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeGateway, apperrors.CodeOf(err))

	orders, payments, cartLines := f.mem.Counts()
	assert.Zero(t, orders)
	assert.Zero(t, payments)
	assert.Equal(t, 2, cartLines)
	assert.Empty(t, f.events.placed)
	assert.Empty(t, f.guard.locks)
}

func TestInitiatePaymentItemFailureRollsBackOrder(t *testing.T) {
	f := newFixture(t)
	f.fillCart(1)
	ctx := context.Background()

	svc := f.newPaymentService(&failingRepo{Repository: f.mem, itemErr: errors.New("constraint violation"), itemsOK: 1})
	_, err := svc.InitiatePayment(ctx, 1, f.checkout, "")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodePersistence, apperrors.CodeOf(err))

	orders, payments, cartLines := f.mem.Counts()
	assert.Zero(t, orders)
	assert.Zero(t, payments)
	assert.Equal(t, 2, cartLines)
	assert.Zero(t, f.gw.calls)
	assert.Empty(t, f.events.placed)
	assert.Empty(t, f.guard.locks)

	mine, err := f.orders.GetOrders(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, mine)

	_, err = f.payments.InitiatePayment(ctx, 1, f.checkout, "")
	require.NoError(t, err)
}

func TestInitiatePaymentValidation(t *testing.T) {
	f := newFixture(t)
	f.fillCart(1)

	tests := []struct {
		name   string
		mutate func(r *CheckoutRequest)
	}{
		{"missing date", func(r *CheckoutRequest) { r.DeliveryDate = time.Time{} }},
		{"today", func(r *CheckoutRequest) { r.DeliveryDate = testNow }},
		{"past", func(r *CheckoutRequest) { r.DeliveryDate = testNow.AddDate(0, 0, -3) }},
		{"missing time", func(r *CheckoutRequest) { r.DeliveryTime = "  " }},
		{"missing shopper", func(r *CheckoutRequest) { r.ShopperID = "" }},
		{"shopper too long", func(r *CheckoutRequest) { r.ShopperID = strings.Repeat("s", 501) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.checkout
			tt.mutate(&req)

			_, err := f.payments.InitiatePayment(context.Background(), 1, req, "")
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
		})
	}

	assert.Zero(t, f.gw.calls)
}

func TestInitiatePaymentRejectsConcurrentCheckout(t *testing.T) {
	f := newFixture(t)
	f.fillCart(1)
	f.guard.locks[1] = "held-by-another-request"

	_, err := f.payments.InitiatePayment(context.Background(), 1, f.checkout, "")
	assert.ErrorIs(t, err, apperrors.ErrCheckoutInProgress)
	assert.Equal(t, apperrors.CodeConflict, apperrors.CodeOf(err))

	orders, _, _ := f.mem.Counts()
	assert.Zero(t, orders)
	assert.Equal(t, "held-by-another-request", f.guard.locks[1])
}

func TestInitiatePaymentIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	f.fillCart(1)
	ctx := context.Background()

	first, err := f.payments.InitiatePayment(ctx, 1, f.checkout, "key-1")
	require.NoError(t, err)
	second, err := f.payments.InitiatePayment(ctx, 1, f.checkout, "key-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.gw.calls)
	orders, _, _ := f.mem.Counts()
	assert.Equal(t, 1, orders)

	other := f.checkout
	other.ShopperID = "shopper-8"
	_, err = f.payments.InitiatePayment(ctx, 1, other, "key-1")
	assert.Equal(t, apperrors.CodeConflict, apperrors.CodeOf(err))

	// a fresh key places a new order
	_, err = f.payments.InitiatePayment(ctx, 1, f.checkout, "key-2")
	require.NoError(t, err)
	orders, _, _ = f.mem.Counts()
	assert.Equal(t, 2, orders)
}

func TestConfirmPaymentSettlesOrder(t *testing.T) {
	f := newFixture(t)
	f.fillCart(1)
	f.mem.AddCartLine(2, f.apples, 1)
	ctx := context.Background()
	res := f.placeOrder(t, 1)

	got, err := f.payments.ConfirmPayment(ctx, 1, res.PaymentID, res.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, &ConfirmResult{
		OrderID:       res.OrderID,
		OrderNumber:   res.OrderNumber,
		PaymentStatus: models.PaymentStatusCompleted,
		OrderStatus:   models.OrderStatusConfirmed,
	}, got)

	payment, err := f.mem.GetPaymentByID(ctx, res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, payment.PaymentStatus)
	assert.Equal(t, res.PaymentIntentID, payment.TransactionID)

	order, err := f.mem.GetOrderByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, order.Status)
	require.NotNil(t, order.ConfirmedAt)
	assert.Equal(t, testNow, *order.ConfirmedAt)

	mine, err := f.mem.GetCartLines(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, mine)
	theirs, err := f.mem.GetCartLines(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, theirs, 1)

	require.Len(t, f.events.confirmed, 1)
	assert.Equal(t, res.PaymentID, f.events.confirmed[0].PaymentID)
	assert.Equal(t, "32.00", money(f.events.confirmed[0].Amount))
}

func TestConfirmPaymentRejectsOtherUser(t *testing.T) {
	f := newFixture(t)
	f.fillCart(1)
	ctx := context.Background()
	res := f.placeOrder(t, 1)

	_, err := f.payments.ConfirmPayment(ctx, 2, res.PaymentID, res.PaymentIntentID)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Equal(t, apperrors.CodeForbidden, apperrors.CodeOf(err))

	payment, err := f.mem.GetPaymentByID(ctx, res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.PaymentStatus)
	_, _, cartLines := f.mem.Counts()
	assert.Equal(t, 2, cartLines)
	assert.Empty(t, f.events.confirmed)
}

func TestConfirmPaymentInputErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.payments.ConfirmPayment(ctx, 1, 999, "pi_x")
	assert.ErrorIs(t, err, apperrors.ErrPaymentNotFound)

	_, err = f.payments.ConfirmPayment(ctx, 1, 0, "pi_x")
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))

	_, err = f.payments.ConfirmPayment(ctx, 1, 1, " ")
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestConfirmPaymentRejectsForeignIntent(t *testing.T) {
	f := newFixture(t)
	f.fillCart(1)
	ctx := context.Background()
	res := f.placeOrder(t, 1)

	_, err := f.payments.ConfirmPayment(ctx, 1, res.PaymentID, "pi_forged")
	assert.ErrorIs(t, err, apperrors.ErrIntentMismatch)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))

	payment, err := f.mem.GetPaymentByID(ctx, res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.PaymentStatus)
	assert.Equal(t, res.PaymentIntentID, payment.TransactionID)

	found, err := f.mem.GetPaymentByTransactionID(ctx, res.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, res.PaymentID, found.ID)

	_, _, cartLines := f.mem.Counts()
	assert.Equal(t, 2, cartLines)
	assert.Empty(t, f.events.confirmed)
}

func TestConfirmPaymentIsAtomic(t *testing.T) {
	f := newFixture(t)
	f.fillCart(1)
	ctx := context.Background()
	res := f.placeOrder(t, 1)

	svc := f.newPaymentService(&failingRepo{Repository: f.mem, err: errors.New("disk full")})
	_, err := svc.ConfirmPayment(ctx, 1, res.PaymentID, res.PaymentIntentID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodePersistence, apperrors.CodeOf(err))

	payment, err := f.mem.GetPaymentByID(ctx, res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.PaymentStatus)
	assert.Equal(t, res.PaymentIntentID, payment.TransactionID)

	order, err := f.mem.GetOrderByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPlaced, order.Status)
	assert.Nil(t, order.ConfirmedAt)
	assert.Empty(t, f.events.confirmed)
}

func TestConfirmPaymentTwiceHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	f.fillCart(1)
	ctx := context.Background()
	res := f.placeOrder(t, 1)

	_, err := f.payments.ConfirmPayment(ctx, 1, res.PaymentID, res.PaymentIntentID)
	require.NoError(t, err)
	_, err = f.orders.UpdateStatus(ctx, res.OrderID, models.OrderStatusPickedUp)
	require.NoError(t, err)
	f.mem.AddCartLine(1, f.apples, 1)

	got, err := f.payments.ConfirmPayment(ctx, 1, res.PaymentID, res.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, got.PaymentStatus)
	assert.Equal(t, models.OrderStatusPickedUp, got.OrderStatus)

	payment, err := f.mem.GetPaymentByID(ctx, res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, res.PaymentIntentID, payment.TransactionID)

	_, _, cartLines := f.mem.Counts()
	assert.Equal(t, 1, cartLines)
	assert.Len(t, f.events.confirmed, 1)
}

func TestReorderKeepsOriginalPrices(t *testing.T) {
	f := newFixture(t)
	f.fillCart(1)
	ctx := context.Background()
	first := f.placeOrder(t, 1)
	_, err := f.payments.ConfirmPayment(ctx, 1, first.PaymentID, first.PaymentIntentID)
	require.NoError(t, err)

	f.mem.SetProductPrices(f.apples, dec("12.00"), dec("11.00"))
	f.mem.AddCartLine(1, f.bananas, 5)

	res, err := f.payments.Reorder(ctx, 1, first.OrderID, f.checkout, "")
	require.NoError(t, err)
	require.NotNil(t, res.OriginalOrderID)
	assert.Equal(t, first.OrderID, *res.OriginalOrderID)
	assert.Equal(t, "32.00", res.Amount)
	assert.NotEqual(t, first.OrderNumber, res.OrderNumber)
	assert.Equal(t, models.PaymentStatusPending, res.PaymentStatus)
	assert.Equal(t, strconv.FormatInt(first.OrderID, 10), f.gw.metadata[1]["original_order_id"])

	items, err := f.mem.GetOrderItemsByOrderID(ctx, res.OrderID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "10.00", money(items[0].UnitPrice))
	assert.Equal(t, "Apples", items[0].ProductName)

	// reorder itself never reads or clears the cart
	cart, err := f.mem.GetCartLines(ctx, 1)
	require.NoError(t, err)
	require.Len(t, cart, 1)
	assert.Equal(t, 5, cart[0].Quantity)

	_, err = f.payments.ConfirmPayment(ctx, 1, res.PaymentID, res.PaymentIntentID)
	require.NoError(t, err)

	cart, err = f.mem.GetCartLines(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, cart)

	order, err := f.mem.GetOrderByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, order.Status)
}

func TestReorderUnknownOrForeignOrder(t *testing.T) {
	f := newFixture(t)
	f.fillCart(1)
	ctx := context.Background()
	first := f.placeOrder(t, 1)

	for _, id := range []int64{first.OrderID, 999} {
		_, err := f.payments.Reorder(ctx, 2, id, f.checkout, "")
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
		assert.Equal(t, "Original order not found", apperrors.As(err).Message())
	}

	orders, _, _ := f.mem.Counts()
	assert.Equal(t, 1, orders)
}

func TestGetPaymentStatus(t *testing.T) {
	f := newFixture(t)
	f.fillCart(1)
	ctx := context.Background()
	res := f.placeOrder(t, 1)

	view, err := f.payments.GetPaymentStatus(ctx, 1, res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, res.PaymentID, view.PaymentID)
	assert.Equal(t, models.PaymentStatusPending, view.PaymentStatus)
	assert.Equal(t, "32.00", view.Amount)
	assert.Equal(t, res.OrderNumber, view.Order.OrderNumber)
	assert.Equal(t, "2024-03-03", view.Order.DeliveryDate)
	assert.Equal(t, models.OrderStatusPlaced, view.Order.Status)

	_, err = f.payments.GetPaymentStatus(ctx, 2, res.PaymentID)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = f.payments.GetPaymentStatus(ctx, 1, 999)
	assert.ErrorIs(t, err, apperrors.ErrPaymentNotFound)
}

func TestListTransactionsOnlyCompleted(t *testing.T) {
	f := newFixture(t)
	f.fillCart(1)
	ctx := context.Background()
	pending := f.placeOrder(t, 1)
	paid := f.placeOrder(t, 1)
	_, err := f.payments.ConfirmPayment(ctx, 1, paid.PaymentID, paid.PaymentIntentID)
	require.NoError(t, err)

	txs, err := f.payments.ListTransactions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, paid.PaymentID, txs[0].ID)
	assert.Equal(t, paid.OrderNumber, txs[0].OrderNumber)
	assert.Equal(t, paid.PaymentIntentID, txs[0].TransactionID)
	assert.Equal(t, models.OrderStatusConfirmed, txs[0].OrderStatus)
	assert.Equal(t, "32.00", txs[0].OrderTotal)
	assert.NotEqual(t, pending.PaymentID, txs[0].ID)

	none, err := f.payments.ListTransactions(ctx, 2)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestNewOrderNumberFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^ORD-[0-9A-F]{13}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		n := newOrderNumber()
		assert.Regexp(t, pattern, n)
		assert.False(t, seen[n])
		seen[n] = true
	}
}
