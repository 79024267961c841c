package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/counter-checkout/internal/domain/product"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Totals is the computed money breakdown of a cart. Values are unrounded;
// call Rounded at persistence or display boundaries.
type Totals struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
	TaxAmount      decimal.Decimal
	FinalTotal     decimal.Decimal
}

// Rounded returns a copy with amounts rounded to 2 decimal places. Total
// and FinalTotal are derived from the rounded components so that
// Subtotal - DiscountAmount + TaxAmount == FinalTotal holds exactly.
func (t Totals) Rounded() Totals {
	subtotal := t.Subtotal.Round(2)
	discount := t.DiscountAmount.Round(2)
	tax := t.TaxAmount.Round(2)
	total := subtotal.Sub(discount)
	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		Total:          total,
		TaxAmount:      tax,
		FinalTotal:     total.Add(tax),
	}
}

// ComputeTotals derives subtotal, discount, tax and final total from the
// line items. It is pure: no I/O and no rounding of intermediate values.
//
// For retailers discountValue is an absolute amount capped at the subtotal;
// for wholesalers it is a percentage of the subtotal.
func ComputeTotals(
	items []LineItem,
	discountValue decimal.Decimal,
	segment product.Segment,
	taxEnabled bool,
	taxRate decimal.Decimal,
) Totals {
	subtotal := zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}

	value := floorAtZero(discountValue)
	var discount decimal.Decimal
	if segment == product.SegmentRetailer {
		discount = decimal.Min(value, subtotal)
	} else {
		discount = decimal.Min(subtotal.Mul(value).Div(hundred), subtotal)
	}

	total := subtotal.Sub(discount)

	tax := zero
	if taxEnabled {
		tax = floorAtZero(total.Mul(taxRate).Div(hundred))
	}

	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		Total:          total,
		TaxAmount:      tax,
		FinalTotal:     total.Add(tax),
	}
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
