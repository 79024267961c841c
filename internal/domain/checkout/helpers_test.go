package checkout

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/xenking/counter-checkout/internal/domain/product"
)

// --- Mock implementations ---

type mockSaleStore struct {
	mu    sync.Mutex
	calls []*Sale
	errs  []error
}

func (m *mockSaleStore) CreateSale(_ context.Context, s *Sale) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, s)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return s.ID, nil
}

type sentReceipt struct {
	channel Channel
	target  string
	sale    *Sale
}

type mockDispatcher struct {
	sent []sentReceipt
	fail map[Channel]error
}

func (m *mockDispatcher) SendReceipt(_ context.Context, ch Channel, target string, s *Sale) error {
	if err := m.fail[ch]; err != nil {
		return err
	}
	m.sent = append(m.sent, sentReceipt{channel: ch, target: target, sale: s})
	return nil
}

// --- Helpers ---

func newTestProduct(sku string, retail, wholesale int64, stock int) product.Product {
	return product.Product{
		ID:             "id-" + sku,
		SKU:            sku,
		Name:           "Product " + sku,
		Description:    "desc " + sku,
		Category:       "tools",
		Manufacturer:   "Acme",
		StockLevel:     stock,
		RetailPrice:    decimal.NewFromInt(retail),
		WholesalePrice: decimal.NewFromInt(wholesale),
	}
}

func lineItem(p product.Product, qty int, seg product.Segment) LineItem {
	return LineItem{
		Product:       p,
		Quantity:      qty,
		UnitPrice:     p.PriceFor(seg),
		OriginalPrice: p.WholesalePrice,
	}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got.String())
}
