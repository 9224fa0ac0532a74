package service

import (
	"context"
	"errors"
	"time"

	"grocery-orders/internal/apperrors"
	"grocery-orders/internal/models"
	"grocery-orders/internal/store"
)

// EventPublisher emits domain events after a unit of work commits.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishPaymentConfirmed(ctx context.Context, event *models.PaymentConfirmedEvent) error
}

// CheckoutGuard serializes checkouts per user and remembers finished ones.
type CheckoutGuard interface {
	AcquireCheckoutLock(ctx context.Context, userID int64, ttl time.Duration) (string, bool, error)
	ReleaseCheckoutLock(ctx context.Context, userID int64, token string) error
	GetIdempotentResponse(ctx context.Context, userID int64, key string) ([]byte, bool, error)
	SaveIdempotentResponse(ctx context.Context, userID int64, key string, payload []byte, ttl time.Duration) error
}

// storeErr keeps typed errors and hides everything else behind a persistence error.
func storeErr(err error, message string) error {
	if apperrors.As(err) != nil {
		return err
	}
	return apperrors.Persistence(err, message)
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
