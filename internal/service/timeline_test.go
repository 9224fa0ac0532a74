package service

import (
	"testing"
	"time"

	"grocery-orders/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTimeline(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 30, 15, 0, time.UTC)
	confirmed := time.Date(2024, 3, 1, 9, 45, 0, 0, time.FixedZone("X", 2*3600))
	order := &models.Order{CreatedAt: created, ConfirmedAt: &confirmed}

	tl := BuildTimeline(order)

	assert.Equal(t, "Order Placed", tl.OrderPlaced.Label)
	assert.True(t, tl.OrderPlaced.Completed)
	require.NotNil(t, tl.OrderPlaced.Timestamp)
	assert.Equal(t, "2024-03-01T09:30:15", *tl.OrderPlaced.Timestamp)

	assert.True(t, tl.OrderConfirmed.Completed)
	assert.Equal(t, "2024-03-01T07:45:00", *tl.OrderConfirmed.Timestamp)

	assert.Equal(t, "Order Picked Up", tl.OrderPickedUp.Label)
	assert.False(t, tl.OrderPickedUp.Completed)
	assert.Nil(t, tl.OrderPickedUp.Timestamp)
	assert.Equal(t, "Out for Delivery", tl.OutForDelivery.Label)
	assert.Equal(t, "Delivered", tl.OrderDelivered.Label)
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "Out for delivery", StatusLabel("out_for_delivery"))
	assert.Equal(t, "Order pickedup", StatusLabel("order_pickedup"))
	assert.Equal(t, "", StatusLabel(""))
}

func TestEstimatedDelivery(t *testing.T) {
	order := &models.Order{DeliveryDate: testDate, DeliveryTime: "10:00 AM - 12:00 PM"}
	got := EstimatedDelivery(order)
	require.NotNil(t, got)
	assert.Equal(t, "2024-03-03 10:00 AM - 12:00 PM", *got)

	order.DeliveryTime = ""
	assert.Nil(t, EstimatedDelivery(order))
}
