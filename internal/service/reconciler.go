package service

import (
	"context"
	"fmt"

	"grocery-orders/internal/models"
	"grocery-orders/internal/store"
	"grocery-orders/internal/util"

	"go.uber.org/zap"
)

// PaymentReconciler applies out-of-band payment intent results pushed by the gateway
type PaymentReconciler struct {
	repo     store.Repository
	payments *PaymentService
	logger   *zap.Logger
}

// NewPaymentReconciler creates a new reconciler
func NewPaymentReconciler(repo store.Repository, payments *PaymentService) *PaymentReconciler {
	return &PaymentReconciler{
		repo:     repo,
		payments: payments,
		logger:   util.GetLogger(),
	}
}

// HandleIntentSucceeded settles the payment on behalf of its order's owner
func (r *PaymentReconciler) HandleIntentSucceeded(ctx context.Context, event *models.PaymentIntentEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentReconciler.HandleIntentSucceeded")
	defer span.End()

	if done, err := r.alreadyProcessed(ctx, event); done || err != nil {
		return err
	}

	r.logger.Info("Handling payment intent success",
		zap.String("intent_id", event.IntentID),
		zap.String("gateway_event_id", event.GatewayEventID))

	var settled *settlement
	err := r.repo.WithTx(ctx, func(tx store.Tx) error {
		payment, order, err := r.lockByIntent(ctx, tx, event.IntentID)
		if err != nil {
			return err
		}
		if payment != nil {
			if _, settled, err = r.payments.settle(ctx, tx, payment, order); err != nil {
				return err
			}
		}
		return tx.MarkEventProcessed(ctx, event.GatewayEventID, event.EventType)
	})
	if err != nil {
		return fmt.Errorf("failed to settle payment intent %s: %w", event.IntentID, err)
	}

	if settled != nil {
		util.PaymentConfirmationsTotal.WithLabelValues("webhook").Inc()
		r.payments.afterSettle(ctx, settled)
	}
	return nil
}

// HandleIntentFailed marks a pending payment as failed. The order stays placed so the
// customer can retry the payment.
func (r *PaymentReconciler) HandleIntentFailed(ctx context.Context, event *models.PaymentIntentEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentReconciler.HandleIntentFailed")
	defer span.End()

	if done, err := r.alreadyProcessed(ctx, event); done || err != nil {
		return err
	}

	r.logger.Warn("Handling payment intent failure",
		zap.String("intent_id", event.IntentID),
		zap.String("reason", event.Reason))

	failed := false
	err := r.repo.WithTx(ctx, func(tx store.Tx) error {
		payment, _, err := r.lockByIntent(ctx, tx, event.IntentID)
		if err != nil {
			return err
		}
		if payment != nil && payment.PaymentStatus == models.PaymentStatusPending {
			if err := tx.UpdatePaymentStatus(ctx, payment.ID, models.PaymentStatusFailed, event.IntentID); err != nil {
				return err
			}
			failed = true
		}
		return tx.MarkEventProcessed(ctx, event.GatewayEventID, event.EventType)
	})
	if err != nil {
		return fmt.Errorf("failed to record payment failure %s: %w", event.IntentID, err)
	}

	if failed {
		util.PaymentFailedTotal.Inc()
	}
	return nil
}

// Apply routes a gateway event by type. Unknown types are ignored.
func (r *PaymentReconciler) Apply(ctx context.Context, event *models.PaymentIntentEvent) error {
	switch event.EventType {
	case models.EventTypePaymentIntentSucceeded:
		return r.HandleIntentSucceeded(ctx, event)
	case models.EventTypePaymentIntentFailed:
		return r.HandleIntentFailed(ctx, event)
	default:
		r.logger.Info("Unhandled gateway event type", zap.String("event_type", event.EventType))
		return nil
	}
}

func (r *PaymentReconciler) alreadyProcessed(ctx context.Context, event *models.PaymentIntentEvent) (bool, error) {
	processed, err := r.repo.IsEventProcessed(ctx, event.GatewayEventID)
	if err != nil {
		return false, fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		r.logger.Info("Event already processed", zap.String("gateway_event_id", event.GatewayEventID))
	}
	return processed, nil
}

// lockByIntent returns nil, nil, nil when no payment references the intent.
func (r *PaymentReconciler) lockByIntent(ctx context.Context, tx store.Tx, intentID string) (*models.Payment, *models.Order, error) {
	found, err := tx.GetPaymentByTransactionID(ctx, intentID)
	if isNotFound(err) {
		r.logger.Warn("No payment for intent", zap.String("intent_id", intentID))
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	payment, err := tx.LockPayment(ctx, found.ID)
	if err != nil {
		return nil, nil, err
	}
	order, err := tx.LockOrder(ctx, payment.OrderID)
	if err != nil {
		return nil, nil, err
	}
	return payment, order, nil
}
