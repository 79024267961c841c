package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/counter-checkout/internal/domain/checkout"
)

const (
	insertSaleSQL = `INSERT INTO sales (
			id, sale_type, customer_id, quotation_number, segment, items,
			discount_value, tax_enabled, tax_rate,
			subtotal, discount_amount, total, tax_amount, final_total,
			paid_amount, pending_amount, payment_status, payments, buyer,
			operator_id, register_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19,
			$20, $21, $22
		)
		ON CONFLICT (quotation_number) DO NOTHING
		RETURNING id`

	saleIDByQuotationSQL = `SELECT id FROM sales WHERE quotation_number = $1`

	decrementStockSQL = `UPDATE products
		SET stock_level = GREATEST(stock_level - $2, 0), updated_at = NOW()
		WHERE id = $1`

	dailySummarySQL = `SELECT
			COUNT(*),
			COALESCE(SUM(final_total), 0),
			COALESCE(SUM(paid_amount), 0),
			COALESCE(SUM(pending_amount), 0)
		FROM sales
		WHERE created_at >= $1 AND created_at < $2`
)

// ErrQuotationTaken is returned when a different sale already holds the
// quotation number.
var ErrQuotationTaken = errors.New("quotation number already used by another sale")

var (
	_ checkout.SaleStore     = (*SaleRepository)(nil)
	_ checkout.SalesReporter = (*SaleRepository)(nil)
)

// SaleRepository implements checkout.SaleStore backed by PostgreSQL.
type SaleRepository struct {
	pool *pgxpool.Pool
}

// NewSaleRepository returns a SaleRepository that uses the given pool.
func NewSaleRepository(pool *pgxpool.Pool) *SaleRepository {
	return &SaleRepository{pool: pool}
}

// buyerRecord is the JSONB form of checkout.BuyerDetails.
type buyerRecord struct {
	Name           string          `json:"name,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	Email          string          `json:"email,omitempty"`
	Country        string          `json:"country,omitempty"`
	DeliveryMethod string          `json:"delivery_method,omitempty"`
	PaymentStatus  string          `json:"payment_status,omitempty"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Categories     []string        `json:"categories,omitempty"`
	PaymentMethod  string          `json:"payment_method,omitempty"`
}

func newBuyerRecord(b checkout.BuyerDetails) buyerRecord {
	return buyerRecord{
		Name:           b.Name,
		Phone:          b.Phone,
		Email:          b.Email,
		Country:        b.Country,
		DeliveryMethod: string(b.DeliveryMethod),
		PaymentStatus:  string(b.PaymentStatus),
		PaidAmount:     b.PaidAmount,
		Categories:     b.Categories,
		PaymentMethod:  string(b.PaymentMethod),
	}
}

// CreateSale writes the sale snapshot and decrements stock for its items in
// one transaction. Re-submitting a snapshot whose quotation number is
// already stored returns the stored id without writing anything, so an
// operator retry after an ambiguous failure never duplicates a sale.
func (r *SaleRepository) CreateSale(ctx context.Context, s *checkout.Sale) (string, error) {
	itemsJSON, err := json.Marshal(s.Items)
	if err != nil {
		return "", fmt.Errorf("marshaling sale items: %w", err)
	}
	paymentsJSON, err := json.Marshal(s.Payment.Payments)
	if err != nil {
		return "", fmt.Errorf("marshaling payments: %w", err)
	}
	buyerJSON, err := json.Marshal(newBuyerRecord(s.Buyer))
	if err != nil {
		return "", fmt.Errorf("marshaling buyer: %w", err)
	}

	var customerID *string
	if s.CustomerID != "" {
		customerID = &s.CustomerID
	}

	var id string
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insertSaleSQL,
			s.ID, string(s.Type), customerID, s.QuotationNumber, string(s.Segment), itemsJSON,
			s.DiscountValue, s.TaxEnabled, s.TaxRate,
			s.Totals.Subtotal, s.Totals.DiscountAmount, s.Totals.Total, s.Totals.TaxAmount, s.Totals.FinalTotal,
			s.Payment.PaidAmount, s.Payment.PendingAmount, string(s.Payment.Status), paymentsJSON, buyerJSON,
			s.OperatorID, s.RegisterID, s.CreatedAt,
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return r.existing(ctx, tx, s, &id)
		}
		if err != nil {
			return fmt.Errorf("inserting sale %q: %w", s.QuotationNumber, err)
		}

		for _, item := range s.Items {
			if _, err := tx.Exec(ctx, decrementStockSQL, item.ProductID, item.Quantity); err != nil {
				return fmt.Errorf("decrementing stock of %q: %w", item.SKU, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// existing resolves a quotation number conflict.
func (r *SaleRepository) existing(ctx context.Context, tx pgx.Tx, s *checkout.Sale, id *string) error {
	if err := tx.QueryRow(ctx, saleIDByQuotationSQL, s.QuotationNumber).Scan(id); err != nil {
		return fmt.Errorf("loading sale %q: %w", s.QuotationNumber, err)
	}
	if *id != s.ID {
		return fmt.Errorf("sale %q: %w", s.QuotationNumber, ErrQuotationTaken)
	}
	return nil
}

// DailySummary aggregates sales created on the UTC day containing day.
func (r *SaleRepository) DailySummary(ctx context.Context, day time.Time) (*checkout.Summary, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	var (
		sum   checkout.Summary
		count int64
	)
	err := r.pool.QueryRow(ctx, dailySummarySQL, start, end).Scan(&count, &sum.Revenue, &sum.Paid, &sum.Pending)
	if err != nil {
		return nil, fmt.Errorf("summarising sales for %s: %w", start.Format(time.DateOnly), err)
	}
	sum.Sales = int(count)
	return &sum, nil
}
