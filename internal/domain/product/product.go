package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// DefaultSearchLimit bounds catalog search results when the caller passes
// a non-positive limit.
const DefaultSearchLimit = 10

// Segment is the customer category that drives pricing and discount mode.
type Segment string

const (
	// SegmentRetailer buys at retail price with absolute-amount discounts.
	SegmentRetailer Segment = "retailer"
	// SegmentWholesaler buys at wholesale price with percentage discounts.
	SegmentWholesaler Segment = "wholesaler"
)

// Valid reports whether s is a known segment.
func (s Segment) Valid() bool {
	return s == SegmentRetailer || s == SegmentWholesaler
}

// Product represents a catalog item available for sale at the counter.
type Product struct {
	ID             string
	SKU            string
	Name           string
	Description    string
	Category       string
	Manufacturer   string
	StockLevel     int
	WholesalePrice decimal.Decimal
	RetailPrice    decimal.Decimal
}

// PriceFor returns the unit price charged to the given segment.
func (p *Product) PriceFor(s Segment) decimal.Decimal {
	if s == SegmentWholesaler {
		return p.WholesalePrice
	}
	return p.RetailPrice
}

// Catalog defines read operations against the product catalog.
type Catalog interface {
	Lookup(ctx context.Context, sku string) (*Product, error)
	Search(ctx context.Context, term string, limit int) ([]Product, error)
}
