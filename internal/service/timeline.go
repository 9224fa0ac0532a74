package service

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"grocery-orders/internal/models"
)

const (
	timestampLayout = "2006-01-02T15:04:05"
	dateLayout      = "2006-01-02"
)

type TimelineStage struct {
	Label     string  `json:"label"`
	Completed bool    `json:"completed"`
	Timestamp *string `json:"timestamp"`
}

// StatusTimeline lists the delivery stages in pipeline order.
type StatusTimeline struct {
	OrderPlaced    TimelineStage `json:"order_placed"`
	OrderConfirmed TimelineStage `json:"order_confirmed"`
	OrderPickedUp  TimelineStage `json:"order_pickedup"`
	OutForDelivery TimelineStage `json:"out_for_delivery"`
	OrderDelivered TimelineStage `json:"order_delivered"`
}

// BuildTimeline projects the order's stage timestamps.
func BuildTimeline(o *models.Order) StatusTimeline {
	placed := o.CreatedAt
	return StatusTimeline{
		OrderPlaced:    stage("Order Placed", &placed),
		OrderConfirmed: stage("Order Confirmed", o.ConfirmedAt),
		OrderPickedUp:  stage("Order Picked Up", o.PickedUpAt),
		OutForDelivery: stage("Out for Delivery", o.OutForDeliveryAt),
		OrderDelivered: stage("Delivered", o.DeliveredAt),
	}
}

func stage(label string, ts *time.Time) TimelineStage {
	return TimelineStage{Label: label, Completed: ts != nil, Timestamp: formatTimestamp(ts)}
}

func formatTimestamp(ts *time.Time) *string {
	if ts == nil {
		return nil
	}
	s := ts.UTC().Format(timestampLayout)
	return &s
}

// StatusLabel renders a status for display: "out_for_delivery" -> "Out for delivery".
func StatusLabel(status string) string {
	s := strings.ReplaceAll(status, "_", " ")
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// EstimatedDelivery is "<date> <time>" when both are known.
func EstimatedDelivery(o *models.Order) *string {
	if o.DeliveryDate.IsZero() || o.DeliveryTime == "" {
		return nil
	}
	s := formatDate(o.DeliveryDate) + " " + o.DeliveryTime
	return &s
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
