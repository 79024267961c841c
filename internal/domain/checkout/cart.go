package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/counter-checkout/internal/domain/product"
)

// LineItem is one product row in the cart.
type LineItem struct {
	Product  product.Product
	Quantity int
	// UnitPrice is the segment price captured when the item was added.
	UnitPrice decimal.Decimal
	// OriginalPrice is the wholesale price captured for display only.
	OriginalPrice decimal.Decimal
}

// LineTotal returns UnitPrice * Quantity.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Cart is the in-memory sale being assembled at the register.
type Cart struct {
	Items         []LineItem
	Segment       product.Segment
	DiscountValue decimal.Decimal
	TaxEnabled    bool
	TaxRate       decimal.Decimal
}

// NewCart returns an empty retailer cart with the given default tax rate.
func NewCart(taxRate decimal.Decimal) Cart {
	return Cart{
		Segment: product.SegmentRetailer,
		TaxRate: taxRate,
	}
}

// IsEmpty reports whether the cart has no line items.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Totals computes the cart totals.
func (c *Cart) Totals() Totals {
	return ComputeTotals(c.Items, c.DiscountValue, c.Segment, c.TaxEnabled, c.TaxRate)
}

// DiscountOffer returns the discount menu for the current cart.
func (c *Cart) DiscountOffer() DiscountOffer {
	return ResolveDiscount(c.Segment, c.Totals().Subtotal)
}

func (c *Cart) indexOf(sku string) int {
	for i := range c.Items {
		if c.Items[i].Product.SKU == sku {
			return i
		}
	}
	return -1
}

// Add puts one unit of p in the cart. A product already present is treated
// as a +1 quantity edit; a new product with no stock is rejected.
func (c *Cart) Add(p product.Product) (Outcome, error) {
	return c.AddQuantity(p, 1)
}

// AddQuantity puts n units of p in the cart. The resulting quantity is
// checked against stock before anything changes, so a rejected add leaves
// the cart as it was.
func (c *Cart) AddQuantity(p product.Product, n int) (Outcome, error) {
	if n < 1 {
		n = 1
	}
	if i := c.indexOf(p.SKU); i >= 0 {
		item := c.Items[i]
		// Checks run against the latest lookup unless it would strand the
		// current quantity above stock.
		if p.StockLevel >= item.Quantity {
			item.Product.StockLevel = p.StockLevel
		}
		out, err := ApplyDelta(item, n)
		if err != nil {
			return out, err
		}
		item.Quantity = out.Quantity
		c.Items[i] = item
		return out, nil
	}

	item := LineItem{
		Product:       p,
		Quantity:      0,
		UnitPrice:     p.PriceFor(c.Segment),
		OriginalPrice: p.WholesalePrice,
	}
	out, err := ApplyDelta(item, n)
	if err != nil {
		return out, err
	}
	item.Quantity = out.Quantity
	c.Items = append(c.Items, item)
	return out, nil
}

// ChangeQuantity applies delta to the line item for sku.
func (c *Cart) ChangeQuantity(sku string, delta int) (Outcome, error) {
	i := c.indexOf(sku)
	if i < 0 {
		return Outcome{}, ErrItemNotInCart
	}

	out, err := ApplyDelta(c.Items[i], delta)
	if err != nil {
		return out, err
	}
	switch out.Kind {
	case OutcomeRemoved:
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	case OutcomeUpdated:
		c.Items[i].Quantity = out.Quantity
	}
	return out, nil
}

// SetQuantity sets the line item for sku to qty through the stock guard.
func (c *Cart) SetQuantity(sku string, qty int) (Outcome, error) {
	i := c.indexOf(sku)
	if i < 0 {
		return Outcome{}, ErrItemNotInCart
	}
	return c.ChangeQuantity(sku, qty-c.Items[i].Quantity)
}

// Remove drops the line item for sku.
func (c *Cart) Remove(sku string) error {
	i := c.indexOf(sku)
	if i < 0 {
		return ErrItemNotInCart
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return nil
}

// SetDiscount applies a typed discount value through the discount policy
// and reports whether the stored value changed.
func (c *Cart) SetDiscount(typed decimal.Decimal) bool {
	v, changed := c.DiscountOffer().Accept(c.DiscountValue, typed)
	c.DiscountValue = v
	return changed
}

// ClearDiscount removes any discount.
func (c *Cart) ClearDiscount() {
	c.DiscountValue = decimal.Zero
}

// SetTax enables or disables tax at the given rate. A negative rate is
// ignored and the previous rate kept.
func (c *Cart) SetTax(enabled bool, rate decimal.Decimal) {
	c.TaxEnabled = enabled
	if !rate.IsNegative() {
		c.TaxRate = rate
	}
}

// SetSegment switches pricing to segment s. Existing line items are
// re-priced and the discount is cleared because its mode changes.
func (c *Cart) SetSegment(s product.Segment) {
	if s == c.Segment {
		return
	}
	c.Segment = s
	for i := range c.Items {
		c.Items[i].UnitPrice = c.Items[i].Product.PriceFor(s)
	}
	c.DiscountValue = decimal.Zero
}
