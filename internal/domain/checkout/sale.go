package checkout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/counter-checkout/internal/domain/product"
)

// SaleType distinguishes walk-in counter sales from remote orders.
type SaleType string

const (
	SaleCounter SaleType = "counter"
	SaleRemote  SaleType = "remote"
)

// SaleItem is a line item frozen at sale time. Product descriptors are
// copied, not referenced, so later catalog edits do not alter the sale.
type SaleItem struct {
	ProductID     string          `json:"product_id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Manufacturer  string          `json:"manufacturer"`
	Category      string          `json:"category"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	LineTotal     decimal.Decimal `json:"line_total"`
}

// Sale is the immutable snapshot handed to the sale store.
type Sale struct {
	ID              string
	Type            SaleType
	CustomerID      string
	QuotationNumber string
	Segment         product.Segment
	Items           []SaleItem
	DiscountValue   decimal.Decimal
	TaxEnabled      bool
	TaxRate         decimal.Decimal
	Totals          Totals
	Payment         Payment
	Buyer           BuyerDetails
	OperatorID      string
	RegisterID      string
	CreatedAt       time.Time
}

// SaleStore persists completed sales. CreateSale is a single atomic write;
// re-submitting the same snapshot must not create a second sale.
type SaleStore interface {
	CreateSale(ctx context.Context, sale *Sale) (string, error)
}

// Summary aggregates the sales of a period.
type Summary struct {
	Sales   int
	Revenue decimal.Decimal
	Paid    decimal.Decimal
	Pending decimal.Decimal
}

// SalesReporter provides dashboard aggregates over persisted sales.
type SalesReporter interface {
	DailySummary(ctx context.Context, day time.Time) (*Summary, error)
}

// Channel is a receipt delivery channel.
type Channel string

const (
	ChannelPrint Channel = "print"
	ChannelEmail Channel = "email"
)

// ReceiptDispatcher delivers a receipt for a persisted sale.
type ReceiptDispatcher interface {
	SendReceipt(ctx context.Context, channel Channel, target string, sale *Sale) error
}

// ReceiptChoice is the operator's receipt selection.
type ReceiptChoice string

const (
	ReceiptPrint ReceiptChoice = "print"
	ReceiptEmail ReceiptChoice = "email"
	ReceiptBoth  ReceiptChoice = "both"
	ReceiptNone  ReceiptChoice = "none"
)

func (c ReceiptChoice) channels() []Channel {
	switch c {
	case ReceiptPrint:
		return []Channel{ChannelPrint}
	case ReceiptEmail:
		return []Channel{ChannelEmail}
	case ReceiptBoth:
		return []Channel{ChannelPrint, ChannelEmail}
	default:
		return nil
	}
}

func (c ReceiptChoice) valid() bool {
	switch c {
	case ReceiptPrint, ReceiptEmail, ReceiptBoth, ReceiptNone:
		return true
	}
	return false
}

func snapshotItems(items []LineItem) []SaleItem {
	out := make([]SaleItem, len(items))
	for i, it := range items {
		out[i] = SaleItem{
			ProductID:     it.Product.ID,
			SKU:           it.Product.SKU,
			Name:          it.Product.Name,
			Description:   it.Product.Description,
			Manufacturer:  it.Product.Manufacturer,
			Category:      it.Product.Category,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
			OriginalPrice: it.OriginalPrice,
			LineTotal:     it.LineTotal().Round(2),
		}
	}
	return out
}
