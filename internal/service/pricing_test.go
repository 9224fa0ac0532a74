package service

import (
	"context"
	"testing"

	"grocery-orders/internal/apperrors"
	"grocery-orders/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultRates = Rates{TaxRate: dec("0.08"), DeliveryCharge: dec("5.00")}

func TestComputeBreakdown(t *testing.T) {
	bd := ComputeBreakdown([]LineItem{{UnitPrice: dec("10.00"), Quantity: 2}}, defaultRates)

	assert.Equal(t, "20.00", money(bd.Subtotal))
	assert.Equal(t, "1.60", money(bd.Tax))
	assert.Equal(t, "5.00", money(bd.DeliveryCharges))
	assert.Equal(t, "26.60", money(bd.Total))
	assert.Equal(t, int64(2660), bd.AmountMinor())
}

func TestComputeBreakdownRounding(t *testing.T) {
	tests := []struct {
		name     string
		lines    []LineItem
		subtotal string
		tax      string
		total    string
	}{
		{
			name:     "line total rounds to cents",
			lines:    []LineItem{{UnitPrice: dec("0.335"), Quantity: 1}, {UnitPrice: dec("1.115"), Quantity: 3}},
			subtotal: "3.69",
			tax:      "0.30",
			total:    "8.99",
		},
		{
			name:     "tax rounds down",
			lines:    []LineItem{{UnitPrice: dec("10.05"), Quantity: 1}},
			subtotal: "10.05",
			tax:      "0.80",
			total:    "15.85",
		},
		{
			name:     "tax rounds up",
			lines:    []LineItem{{UnitPrice: dec("10.07"), Quantity: 1}},
			subtotal: "10.07",
			tax:      "0.81",
			total:    "15.88",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bd := ComputeBreakdown(tt.lines, defaultRates)
			assert.Equal(t, tt.subtotal, money(bd.Subtotal))
			assert.Equal(t, tt.tax, money(bd.Tax))
			assert.Equal(t, tt.total, money(bd.Total))
		})
	}
}

func TestResolveCartUsesPromoPrice(t *testing.T) {
	mem := store.NewMemory()
	regular := mem.AddProduct("Regular", dec("10.00"), decimal.Zero)
	promo := mem.AddProduct("Promo", dec("4.00"), dec("3.25"))
	mem.AddCartLine(1, regular, 2)
	mem.AddCartLine(1, promo, 2)

	lines, bd, err := ResolveCart(context.Background(), mem, 1, defaultRates)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, "10.00", money(lines[0].UnitPrice))
	assert.Equal(t, "3.25", money(lines[1].UnitPrice))
	assert.Equal(t, "Promo", lines[1].ProductName)
	assert.Equal(t, "26.50", money(bd.Subtotal))
}

func TestResolveCartErrors(t *testing.T) {
	mem := store.NewMemory()
	p := mem.AddProduct("Gone", dec("1.00"), decimal.Zero)
	mem.AddCartLine(2, p, 1)
	mem.DeleteProduct(p)

	_, _, err := ResolveCart(context.Background(), mem, 1, defaultRates)
	assert.ErrorIs(t, err, apperrors.ErrEmptyCart)

	_, _, err = ResolveCart(context.Background(), mem, 2, defaultRates)
	assert.ErrorIs(t, err, apperrors.ErrProductUnavailable)
}
