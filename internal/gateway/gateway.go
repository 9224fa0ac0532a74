package gateway

import (
	"context"
	"errors"
)

// Gateway event types that drive payment reconciliation.
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
)

// ErrInvalidSignature is returned when a webhook payload cannot be verified.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Intent is a created payment intent.
type Intent struct {
	ID           string
	ClientSecret string
}

// Event is a verified out-of-band result pushed by the processor.
type Event struct {
	ID       string
	Type     string
	IntentID string
	Reason   string
}

// Gateway is the payment processor seen by the payment service.
type Gateway interface {
	// CreateIntent creates a card payment intent for amountMinor (cents).
	CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*Intent, error)
	// ParseEvent verifies and decodes a webhook payload.
	ParseEvent(payload []byte, signature string) (*Event, error)
}
