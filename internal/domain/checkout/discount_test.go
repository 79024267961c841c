package checkout

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/counter-checkout/internal/domain/product"
)

func TestResolveDiscount_RetailBrackets(t *testing.T) {
	tests := []struct {
		name     string
		subtotal string
		cap      int64
		first    int64
	}{
		{name: "below lowest bracket", subtotal: "2999.99", cap: 50, first: 25},
		{name: "lower edge 3000", subtotal: "3000", cap: 100, first: 50},
		{name: "just below 5000", subtotal: "4999.99", cap: 100, first: 50},
		{name: "lower edge 5000", subtotal: "5000", cap: 500, first: 200},
		{name: "just below 10000", subtotal: "9999.99", cap: 500, first: 200},
		{name: "lower edge 10000", subtotal: "10000", cap: 1000, first: 500},
		{name: "upper edge 30000 inclusive", subtotal: "30000", cap: 1000, first: 500},
		{name: "above 30000 falls back", subtotal: "30000.01", cap: 50, first: 25},
		{name: "empty cart", subtotal: "0", cap: 50, first: 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offer := ResolveDiscount(product.SegmentRetailer, decimal.RequireFromString(tt.subtotal))

			assert.Equal(t, DiscountAbsolute, offer.Mode)
			assert.True(t, decimal.NewFromInt(tt.cap).Equal(offer.Cap))
			require.Len(t, offer.AllowedValues, 5)
			assert.True(t, decimal.NewFromInt(tt.first).Equal(offer.AllowedValues[0]))
		})
	}
}

func TestResolveDiscount_Wholesaler(t *testing.T) {
	offer := ResolveDiscount(product.SegmentWholesaler, decimal.NewFromInt(123456))

	assert.Equal(t, DiscountPercentage, offer.Mode)
	assert.True(t, decimal.NewFromInt(15).Equal(offer.Cap))
	assert.Equal(t, decimals([]int64{1, 2, 3, 4, 5}), offer.AllowedValues)
}

func TestDiscountOffer_AcceptAbsolute(t *testing.T) {
	offer := ResolveDiscount(product.SegmentRetailer, decimal.NewFromInt(20000))
	current := decimal.NewFromInt(600)

	tests := []struct {
		name    string
		typed   string
		want    string
		changed bool
	}{
		{name: "member accepted", typed: "800", want: "800", changed: true},
		{name: "same member", typed: "600", want: "600", changed: false},
		{name: "non member is no-op", typed: "999", want: "600", changed: false},
		{name: "below smallest is no-op", typed: "100", want: "600", changed: false},
		{name: "zero is no-op", typed: "0", want: "600", changed: false},
		{name: "above cap clamps", typed: "1500", want: "1000", changed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := offer.Accept(current, decimal.RequireFromString(tt.typed))
			assertDecimal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestDiscountOffer_AcceptPercentage(t *testing.T) {
	offer := ResolveDiscount(product.SegmentWholesaler, decimal.NewFromInt(10000))
	current := decimal.NewFromInt(3)

	tests := []struct {
		name  string
		typed string
		want  string
	}{
		{name: "quick select", typed: "5", want: "5"},
		{name: "free typed within cap", typed: "7.5", want: "7.5"},
		{name: "cap itself", typed: "15", want: "15"},
		{name: "zero", typed: "0", want: "0"},
		{name: "above cap rejected", typed: "16", want: "3"},
		{name: "negative rejected", typed: "-1", want: "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := offer.Accept(current, decimal.RequireFromString(tt.typed))
			assertDecimal(t, tt.want, got)
		})
	}
}
