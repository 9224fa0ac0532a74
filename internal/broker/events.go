package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"grocery-orders/internal/models"
	"grocery-orders/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

// PublishOrderPlaced publishes OrderPlaced event
func (ep *EventPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishPaymentConfirmed publishes PaymentConfirmed event
func (ep *EventPublisher) PublishPaymentConfirmed(ctx context.Context, event *models.PaymentConfirmedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// GatewayEventPublisher forwards verified gateway webhooks to the payment worker
type GatewayEventPublisher struct {
	producer *Producer
}

func NewGatewayEventPublisher(producer *Producer) *GatewayEventPublisher {
	return &GatewayEventPublisher{producer: producer}
}

// PublishPaymentIntentEvent publishes a PaymentIntent event keyed by intent so
// every result of one intent lands on the same partition
func (gp *GatewayEventPublisher) PublishPaymentIntentEvent(ctx context.Context, event *models.PaymentIntentEvent) error {
	return gp.producer.PublishEvent(ctx, "intent-"+event.IntentID, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onIntentSucceeded func(context.Context, *models.PaymentIntentEvent) error
	onIntentFailed    func(context.Context, *models.PaymentIntentEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnPaymentIntentSucceeded registers a handler for PaymentIntentSucceeded events
func (eh *EventHandler) OnPaymentIntentSucceeded(handler func(context.Context, *models.PaymentIntentEvent) error) {
	eh.onIntentSucceeded = handler
}

// OnPaymentIntentFailed registers a handler for PaymentIntentFailed events
func (eh *EventHandler) OnPaymentIntentFailed(handler func(context.Context, *models.PaymentIntentEvent) error) {
	eh.onIntentFailed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	logger := util.GetLogger()
	logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	var handler func(context.Context, *models.PaymentIntentEvent) error
	switch baseEvent.EventType {
	case models.EventTypePaymentIntentSucceeded:
		handler = eh.onIntentSucceeded
	case models.EventTypePaymentIntentFailed:
		handler = eh.onIntentFailed
	default:
		logger.Info("Unhandled event type", zap.String("event_type", baseEvent.EventType))
		return nil
	}
	if handler == nil {
		return nil
	}

	var event models.PaymentIntentEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal %s event: %w", baseEvent.EventType, err)
	}
	return handler(ctx, &event)
}
