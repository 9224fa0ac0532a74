package service

import (
	"context"
	"errors"
	"testing"

	"grocery-orders/internal/apperrors"
	"grocery-orders/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intentEvent(eventType, gatewayEventID, intentID string) *models.PaymentIntentEvent {
	return &models.PaymentIntentEvent{
		BaseEvent:      models.BaseEvent{EventID: "msg-" + gatewayEventID, EventType: eventType, Timestamp: testNow},
		GatewayEventID: gatewayEventID,
		IntentID:       intentID,
	}
}

func TestHandleIntentSucceededSettlesPayment(t *testing.T) {
	f := newFixture(t)
	f.fillCart(1)
	ctx := context.Background()
	res := f.placeOrder(t, 1)

	err := f.reconcile.HandleIntentSucceeded(ctx, intentEvent(models.EventTypePaymentIntentSucceeded, "evt_1", res.PaymentIntentID))
	require.NoError(t, err)

	payment, err := f.mem.GetPaymentByID(ctx, res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, payment.PaymentStatus)

	order, err := f.mem.GetOrderByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, order.Status)

	_, _, cartLines := f.mem.Counts()
	assert.Zero(t, cartLines)

	processed, err := f.mem.IsEventProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Len(t, f.events.confirmed, 1)

	// the client confirming afterwards sees the settled state without a second event
	got, err := f.payments.ConfirmPayment(ctx, 1, res.PaymentID, res.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, got.OrderStatus)
	assert.Len(t, f.events.confirmed, 1)
}

func TestHandleIntentSucceededIgnoresRedelivery(t *testing.T) {
	f := newFixture(t)
	f.fillCart(1)
	ctx := context.Background()
	res := f.placeOrder(t, 1)
	event := intentEvent(models.EventTypePaymentIntentSucceeded, "evt_1", res.PaymentIntentID)

	require.NoError(t, f.reconcile.HandleIntentSucceeded(ctx, event))
	_, err := f.orders.UpdateStatus(ctx, res.OrderID, models.OrderStatusDelivered)
	require.NoError(t, err)

	require.NoError(t, f.reconcile.HandleIntentSucceeded(ctx, event))

	order, err := f.mem.GetOrderByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, order.Status)
	assert.Len(t, f.events.confirmed, 1)
}

func TestHandleIntentSucceededUnknownIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.reconcile.HandleIntentSucceeded(ctx, intentEvent(models.EventTypePaymentIntentSucceeded, "evt_9", "pi_nobody"))
	require.NoError(t, err)

	processed, err := f.mem.IsEventProcessed(ctx, "evt_9")
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Empty(t, f.events.confirmed)
}

func TestHandleIntentSucceededRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	f.fillCart(1)
	ctx := context.Background()
	res := f.placeOrder(t, 1)

	repo := &failingRepo{Repository: f.mem, err: errors.New("connection reset")}
	rec := NewPaymentReconciler(repo, f.newPaymentService(repo))

	err := rec.HandleIntentSucceeded(ctx, intentEvent(models.EventTypePaymentIntentSucceeded, "evt_1", res.PaymentIntentID))
	require.Error(t, err)

	payment, err := f.mem.GetPaymentByID(ctx, res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.PaymentStatus)

	processed, err := f.mem.IsEventProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, processed, "a failed event must stay eligible for redelivery")
}

func TestHandleIntentFailed(t *testing.T) {
	f := newFixture(t)
	f.fillCart(1)
	ctx := context.Background()
	res := f.placeOrder(t, 1)

	event := intentEvent(models.EventTypePaymentIntentFailed, "evt_2", res.PaymentIntentID)
	event.Reason = "card_declined"
	require.NoError(t, f.reconcile.HandleIntentFailed(ctx, event))

	payment, err := f.mem.GetPaymentByID(ctx, res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, payment.PaymentStatus)

	order, err := f.mem.GetOrderByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPlaced, order.Status)

	_, _, cartLines := f.mem.Counts()
	assert.Equal(t, 2, cartLines)

	_, err = f.payments.ConfirmPayment(ctx, 1, res.PaymentID, res.PaymentIntentID)
	assert.ErrorIs(t, err, apperrors.ErrPaymentFailed)
	payment, err = f.mem.GetPaymentByID(ctx, res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, payment.PaymentStatus)
}

func TestHandleIntentFailedLeavesCompletedPayment(t *testing.T) {
	f := newFixture(t)
	f.fillCart(1)
	ctx := context.Background()
	res := f.placeOrder(t, 1)
	_, err := f.payments.ConfirmPayment(ctx, 1, res.PaymentID, res.PaymentIntentID)
	require.NoError(t, err)

	require.NoError(t, f.reconcile.HandleIntentFailed(ctx,
		intentEvent(models.EventTypePaymentIntentFailed, "evt_3", res.PaymentIntentID)))

	payment, err := f.mem.GetPaymentByID(ctx, res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, payment.PaymentStatus)
}

func TestApplyRoutesByType(t *testing.T) {
	f := newFixture(t)
	f.fillCart(1)
	ctx := context.Background()
	res := f.placeOrder(t, 1)

	require.NoError(t, f.reconcile.Apply(ctx, intentEvent("SOMETHING_ELSE", "evt_0", res.PaymentIntentID)))
	processed, err := f.mem.IsEventProcessed(ctx, "evt_0")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, f.reconcile.Apply(ctx, intentEvent(models.EventTypePaymentIntentFailed, "evt_1", res.PaymentIntentID)))
	payment, err := f.mem.GetPaymentByID(ctx, res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, payment.PaymentStatus)

	// a retried card succeeds on the same intent
	require.NoError(t, f.reconcile.Apply(ctx, intentEvent(models.EventTypePaymentIntentSucceeded, "evt_2", res.PaymentIntentID)))
	payment, err = f.mem.GetPaymentByID(ctx, res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, payment.PaymentStatus)
}
