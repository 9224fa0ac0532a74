package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"grocery-orders/internal/apperrors"
	"grocery-orders/internal/gateway"
	"grocery-orders/internal/models"
	"grocery-orders/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	signatureHeader = "Stripe-Signature"
	maxWebhookBody  = 64 << 10
)

// IntentApplier applies a gateway event synchronously.
type IntentApplier interface {
	Apply(ctx context.Context, event *models.PaymentIntentEvent) error
}

// DirectSink settles webhook events in the request instead of queueing them.
func DirectSink(a IntentApplier) PaymentEventSink {
	return directSink{a}
}

type directSink struct {
	applier IntentApplier
}

func (d directSink) PublishPaymentIntentEvent(ctx context.Context, event *models.PaymentIntentEvent) error {
	return d.applier.Apply(ctx, event)
}

var gatewayEventTypes = map[string]string{
	gateway.EventIntentSucceeded: models.EventTypePaymentIntentSucceeded,
	gateway.EventIntentFailed:    models.EventTypePaymentIntentFailed,
}

// paymentWebhook verifies a gateway delivery and hands it to the sink. A non-2xx
// answer makes the gateway redeliver, so only sink failures return 500.
func (h *Handler) paymentWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	logger := util.LoggerFrom(ctx)

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		respondError(c, apperrors.Validation("Invalid webhook payload"))
		return
	}

	event, err := h.gateway.ParseEvent(payload, c.GetHeader(signatureHeader))
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		if errors.Is(err, gateway.ErrInvalidSignature) {
			logger.Warn("Webhook signature rejected", zap.Error(err))
			respondError(c, apperrors.Validation("Invalid signature"))
			return
		}
		respondError(c, apperrors.Validation("Invalid webhook payload"))
		return
	}

	eventType, ok := gatewayEventTypes[event.Type]
	if !ok {
		util.WebhookEventsTotal.WithLabelValues(event.Type, "ignored").Inc()
		logger.Debug("Ignoring gateway event", zap.String("type", event.Type), zap.String("event_id", event.ID))
		respondOK(c, "", nil)
		return
	}

	msg := &models.PaymentIntentEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now(),
		},
		GatewayEventID: event.ID,
		IntentID:       event.IntentID,
		Reason:         event.Reason,
	}
	if err := h.sink.PublishPaymentIntentEvent(ctx, msg); err != nil {
		util.WebhookEventsTotal.WithLabelValues(event.Type, "error").Inc()
		respondError(c, apperrors.Wrap(apperrors.CodeInternal, err, "failed to process webhook"))
		return
	}

	util.WebhookEventsTotal.WithLabelValues(event.Type, "accepted").Inc()
	logger.Info("Gateway event accepted",
		zap.String("type", event.Type),
		zap.String("event_id", event.ID),
		zap.String("intent_id", event.IntentID))
	respondOK(c, "", nil)
}
