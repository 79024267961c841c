package checkout

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/counter-checkout/internal/domain/product"
)

// PaymentType tags a payment record as settling the whole sale or part of it.
type PaymentType string

const (
	PaymentFull    PaymentType = "full"
	PaymentPartial PaymentType = "partial"
)

// PaymentRecord is one entry of a sale's payment history.
type PaymentRecord struct {
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
	Type      PaymentType     `json:"type"`
	Method    PaymentMethod   `json:"method"`
}

// Payment is the resolved settlement of a sale.
type Payment struct {
	PaidAmount    decimal.Decimal
	PendingAmount decimal.Decimal
	Status        PaymentStatus
	Payments      []PaymentRecord
}

// ResolvePayment derives the paid and pending amounts for a sale. Retailers
// always pay in full; wholesalers may declare a partial or unpaid (credit)
// sale. Any amount taken at the counter needs a known payment method.
// Amounts are rounded half-up to 2 decimal places.
func ResolvePayment(
	segment product.Segment,
	buyer BuyerDetails,
	finalTotal decimal.Decimal,
	now time.Time,
) (Payment, error) {
	total := finalTotal.Round(2)

	status := buyer.PaymentStatus
	if segment == product.SegmentRetailer || status == "" {
		status = PaymentPaid
	}

	var paid decimal.Decimal
	switch status {
	case PaymentPaid:
		paid = total
	case PaymentPartiallyPaid:
		declared := buyer.PaidAmount.Round(2)
		if !declared.IsPositive() || !declared.LessThan(total) {
			return Payment{}, newValidationError("paid_amount",
				"partial payment must be greater than 0 and less than "+total.StringFixed(2))
		}
		paid = declared
	case PaymentUnpaid:
		paid = zero
	case PaymentCancelled:
		return Payment{}, newValidationError("payment_status", "a cancelled sale cannot be completed")
	default:
		return Payment{}, newValidationError("payment_status", "unknown payment status "+string(status))
	}

	p := Payment{
		PaidAmount:    paid,
		PendingAmount: total.Sub(paid),
		Status:        status,
		Payments:      []PaymentRecord{},
	}
	if paid.IsZero() {
		return p, nil
	}
	if !buyer.PaymentMethod.Valid() {
		return Payment{}, newValidationError("payment_method", "select a payment method for the amount paid")
	}

	typ := PaymentFull
	if status == PaymentPartiallyPaid {
		typ = PaymentPartial
	}
	p.Payments = append(p.Payments, PaymentRecord{
		Amount:    paid,
		Timestamp: now,
		Type:      typ,
		Method:    buyer.PaymentMethod,
	})
	return p, nil
}
