package worker

import (
	"context"

	"grocery-orders/internal/broker"
	"grocery-orders/internal/models"
	"grocery-orders/internal/util"

	"github.com/segmentio/kafka-go"
)

// IntentReconciler applies gateway payment intent results
type IntentReconciler interface {
	HandleIntentSucceeded(ctx context.Context, event *models.PaymentIntentEvent) error
	HandleIntentFailed(ctx context.Context, event *models.PaymentIntentEvent) error
}

// messageSource is the part of broker.Consumer the worker needs.
type messageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// PaymentWorker consumes gateway events and settles payments out of band
type PaymentWorker struct {
	consumer     messageSource
	eventHandler *broker.EventHandler
}

// NewPaymentWorker creates a new payment worker
func NewPaymentWorker(consumer *broker.Consumer, reconciler IntentReconciler) *PaymentWorker {
	return newPaymentWorker(consumer, reconciler)
}

func newPaymentWorker(consumer messageSource, reconciler IntentReconciler) *PaymentWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnPaymentIntentSucceeded(reconciler.HandleIntentSucceeded)
	eventHandler.OnPaymentIntentFailed(reconciler.HandleIntentFailed)

	return &PaymentWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start blocks until ctx is cancelled
func (w *PaymentWorker) Start(ctx context.Context) error {
	util.GetLogger().Info("Starting payment worker...")
	return w.consumer.StartConsuming(ctx, w.handle)
}

func (w *PaymentWorker) handle(ctx context.Context, msg kafka.Message) error {
	ctx, span := util.StartSpan(ctx, "PaymentWorker.handle")
	defer span.End()

	err := w.eventHandler.HandleMessage(ctx, msg)
	util.RecordError(ctx, err)
	return err
}

// Stop stops the worker
func (w *PaymentWorker) Stop() error {
	util.GetLogger().Info("Stopping payment worker...")
	return w.consumer.Close()
}
