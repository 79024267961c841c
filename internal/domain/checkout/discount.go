package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/counter-checkout/internal/domain/product"
)

// DiscountMode enumerates how a discount value is interpreted.
type DiscountMode string

const (
	// DiscountPercentage treats the value as a percentage of the subtotal.
	DiscountPercentage DiscountMode = "percentage"
	// DiscountAbsolute treats the value as a currency amount.
	DiscountAbsolute DiscountMode = "absolute"
)

// DiscountOffer is the discount menu available for a cart.
type DiscountOffer struct {
	Mode          DiscountMode
	AllowedValues []decimal.Decimal
	Cap           decimal.Decimal
}

// retailBracket maps a subtotal range to a discount menu. The range is
// [min, max) unless closed, in which case max is inclusive.
type retailBracket struct {
	min, max decimal.Decimal
	values   []int64
	cap      int64
	closed   bool
}

var (
	wholesaleValues = []int64{1, 2, 3, 4, 5}
	wholesaleCap    = decimal.NewFromInt(15)

	retailBrackets = []retailBracket{
		{min: decimal.NewFromInt(10000), max: decimal.NewFromInt(30000), values: []int64{500, 600, 700, 800, 1000}, cap: 1000, closed: true},
		{min: decimal.NewFromInt(5000), max: decimal.NewFromInt(10000), values: []int64{200, 300, 350, 400, 500}, cap: 500},
		{min: decimal.NewFromInt(3000), max: decimal.NewFromInt(5000), values: []int64{50, 60, 75, 85, 100}, cap: 100},
	}
	retailFallback = retailBracket{values: []int64{25, 35, 40, 45, 50}, cap: 50}
)

func (b retailBracket) contains(subtotal decimal.Decimal) bool {
	if subtotal.LessThan(b.min) {
		return false
	}
	if b.closed {
		return subtotal.LessThanOrEqual(b.max)
	}
	return subtotal.LessThan(b.max)
}

// ResolveDiscount returns the allowed discount values and cap for a
// customer segment and tax-exclusive subtotal.
func ResolveDiscount(segment product.Segment, subtotal decimal.Decimal) DiscountOffer {
	if segment == product.SegmentWholesaler {
		return DiscountOffer{
			Mode:          DiscountPercentage,
			AllowedValues: decimals(wholesaleValues),
			Cap:           wholesaleCap,
		}
	}

	bracket := retailFallback
	for _, b := range retailBrackets {
		if b.contains(subtotal) {
			bracket = b
			break
		}
	}
	return DiscountOffer{
		Mode:          DiscountAbsolute,
		AllowedValues: decimals(bracket.values),
		Cap:           decimal.NewFromInt(bracket.cap),
	}
}

// Accept applies a typed discount value against the offer and returns the
// resulting value and whether it changed.
//
// Percentage offers accept any value in [0, Cap] and keep current otherwise.
// Absolute offers accept exact members, clamp values above Cap to Cap, and
// ignore any other value.
func (o DiscountOffer) Accept(current, typed decimal.Decimal) (decimal.Decimal, bool) {
	if o.Mode == DiscountPercentage {
		if typed.IsNegative() || typed.GreaterThan(o.Cap) {
			return current, false
		}
		return typed, !typed.Equal(current)
	}

	if typed.GreaterThan(o.Cap) {
		return o.Cap, !o.Cap.Equal(current)
	}
	if o.Allows(typed) {
		return typed, !typed.Equal(current)
	}
	return current, false
}

// Allows reports whether v is one of the quick-select values.
func (o DiscountOffer) Allows(v decimal.Decimal) bool {
	for _, a := range o.AllowedValues {
		if a.Equal(v) {
			return true
		}
	}
	return false
}

func decimals(vs []int64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vs))
	for i, v := range vs {
		out[i] = decimal.NewFromInt(v)
	}
	return out
}
