package service

import (
	"context"

	"grocery-orders/internal/apperrors"
	"grocery-orders/internal/models"
	"grocery-orders/internal/store"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Rates are the charges applied on top of the item subtotal.
type Rates struct {
	TaxRate        decimal.Decimal
	DeliveryCharge decimal.Decimal
}

// LineItem is a priced line ready to become an order item.
type LineItem struct {
	ProductID   int64
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int
	Notes       *string
}

// Total is the rounded line amount.
func (l LineItem) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2)
}

// Breakdown is the priced summary of a set of lines.
type Breakdown struct {
	Subtotal        decimal.Decimal
	Tax             decimal.Decimal
	DeliveryCharges decimal.Decimal
	Total           decimal.Decimal
}

// AmountMinor returns the total in cents.
func (b Breakdown) AmountMinor() int64 {
	return b.Total.Mul(hundred).IntPart()
}

// BreakdownView is the client representation of a Breakdown.
type BreakdownView struct {
	Subtotal        string `json:"subtotal"`
	Tax             string `json:"tax"`
	DeliveryCharges string `json:"delivery_charges"`
	Total           string `json:"total"`
}

func (b Breakdown) View() BreakdownView {
	return BreakdownView{
		Subtotal:        money(b.Subtotal),
		Tax:             money(b.Tax),
		DeliveryCharges: money(b.DeliveryCharges),
		Total:           money(b.Total),
	}
}

// ComputeBreakdown prices lines. Every intermediate amount is rounded half away from zero to cents.
func ComputeBreakdown(lines []LineItem, rates Rates) Breakdown {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Total())
	}

	tax := subtotal.Mul(rates.TaxRate).Round(2)
	delivery := rates.DeliveryCharge.Round(2)

	return Breakdown{
		Subtotal:        subtotal,
		Tax:             tax,
		DeliveryCharges: delivery,
		Total:           subtotal.Add(tax).Add(delivery).Round(2),
	}
}

// ResolveCart turns the user's cart into priced lines.
func ResolveCart(ctx context.Context, r store.Reader, userID int64, rates Rates) ([]LineItem, Breakdown, error) {
	cart, err := r.GetCartLines(ctx, userID)
	if err != nil {
		return nil, Breakdown{}, apperrors.Persistence(err, "failed to read cart")
	}
	if len(cart) == 0 {
		return nil, Breakdown{}, apperrors.ErrEmptyCart
	}

	lines := make([]LineItem, 0, len(cart))
	for _, c := range cart {
		if c.Product == nil {
			return nil, Breakdown{}, apperrors.ErrProductUnavailable
		}
		lines = append(lines, LineItem{
			ProductID:   c.ProductID,
			ProductName: c.Product.Name,
			UnitPrice:   c.Product.EffectivePrice().Round(2),
			Quantity:    c.Quantity,
		})
	}

	return lines, ComputeBreakdown(lines, rates), nil
}

// linesFromItems rebuilds priced lines from an order's item snapshot.
func linesFromItems(items []models.OrderItem) []LineItem {
	lines := make([]LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, LineItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			Notes:       it.ProductNotes,
		})
	}
	return lines
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
