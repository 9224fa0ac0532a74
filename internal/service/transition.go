package service

import (
	"time"

	"grocery-orders/internal/apperrors"
	"grocery-orders/internal/models"
)

// ApplyStatus moves order to target and returns the updated copy.
// Advancing past a stage backfills any earlier stage timestamp that is missing,
// so a later timestamp is never set without the earlier ones.
func ApplyStatus(order models.Order, target string, now time.Time) (models.Order, error) {
	if !models.IsValidOrderStatus(target) {
		return order, apperrors.ErrInvalidStatus
	}

	at := func() *time.Time {
		t := now
		return &t
	}
	backfill := func(ts *time.Time) *time.Time {
		if ts != nil {
			return ts
		}
		return at()
	}

	switch target {
	case models.OrderStatusPlaced:
		order.ConfirmedAt = nil
		order.PickedUpAt = nil
		order.OutForDeliveryAt = nil
		order.DeliveredAt = nil
	case models.OrderStatusConfirmed:
		order.ConfirmedAt = at()
	case models.OrderStatusPickedUp:
		order.ConfirmedAt = backfill(order.ConfirmedAt)
		order.PickedUpAt = at()
	case models.OrderStatusOutForDelivery:
		order.ConfirmedAt = backfill(order.ConfirmedAt)
		order.PickedUpAt = backfill(order.PickedUpAt)
		order.OutForDeliveryAt = at()
	case models.OrderStatusDelivered:
		order.ConfirmedAt = backfill(order.ConfirmedAt)
		order.PickedUpAt = backfill(order.PickedUpAt)
		order.OutForDeliveryAt = backfill(order.OutForDeliveryAt)
		order.DeliveredAt = at()
	case models.OrderStatusCancelled:
		// status only
	}

	order.Status = target
	return order, nil
}
