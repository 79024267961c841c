package checkout

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

// DefaultCountry is the region assumed when a buyer has no country set.
const DefaultCountry = "IN"

// DeliveryMethod is how the goods leave the counter.
type DeliveryMethod string

const (
	DeliveryHandCarry DeliveryMethod = "hand_carry"
	DeliveryDispatch  DeliveryMethod = "dispatch"
)

// PaymentStatus is the declared settlement state of a sale.
type PaymentStatus string

const (
	PaymentPaid          PaymentStatus = "paid"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentUnpaid        PaymentStatus = "unpaid"
	PaymentCancelled     PaymentStatus = "cancelled"
)

// PaymentMethod is the tender used for the paid portion.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodUPI          PaymentMethod = "upi"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCard         PaymentMethod = "card"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodUPI, MethodBankTransfer, MethodCard:
		return true
	}
	return false
}

// BuyerDetails is collected inline for counter sales that need it.
type BuyerDetails struct {
	Name           string
	Phone          string
	Email          string
	Country        string
	DeliveryMethod DeliveryMethod
	PaymentStatus  PaymentStatus
	PaidAmount     decimal.Decimal
	Categories     []string
	PaymentMethod  PaymentMethod
}

// DefaultBuyerDetails returns the state a fresh session starts with.
func DefaultBuyerDetails() BuyerDetails {
	return BuyerDetails{
		Country:        DefaultCountry,
		DeliveryMethod: DeliveryHandCarry,
		PaymentStatus:  PaymentPaid,
	}
}

// countryRule is the dialing code and accepted national digit count of a
// region.
type countryRule struct {
	DialCode  int
	MinDigits int
	MaxDigits int
}

var countries = map[string]countryRule{
	"IN": {DialCode: 91, MinDigits: 10, MaxDigits: 10},
	"AE": {DialCode: 971, MinDigits: 8, MaxDigits: 12},
	"AU": {DialCode: 61, MinDigits: 8, MaxDigits: 12},
	"BD": {DialCode: 880, MinDigits: 8, MaxDigits: 12},
	"GB": {DialCode: 44, MinDigits: 8, MaxDigits: 12},
	"LK": {DialCode: 94, MinDigits: 8, MaxDigits: 12},
	"MY": {DialCode: 60, MinDigits: 8, MaxDigits: 12},
	"NP": {DialCode: 977, MinDigits: 8, MaxDigits: 12},
	"QA": {DialCode: 974, MinDigits: 8, MaxDigits: 12},
	"SA": {DialCode: 966, MinDigits: 8, MaxDigits: 12},
	"SG": {DialCode: 65, MinDigits: 8, MaxDigits: 12},
	"US": {DialCode: 1, MinDigits: 8, MaxDigits: 12},
}

// Countries returns the supported region codes.
func Countries() []string {
	out := make([]string, 0, len(countries))
	for code := range countries {
		out = append(out, code)
	}
	return out
}

var validate = validator.New()

// NormalizePhone checks the national digit count for the region and returns
// the number in E.164 form.
func NormalizePhone(raw, country string) (string, error) {
	if country == "" {
		country = DefaultCountry
	}
	rule, ok := countries[strings.ToUpper(country)]
	if !ok {
		return "", newValidationError("country", "unsupported country "+country)
	}

	digits := nationalDigits(raw, rule.DialCode)
	if n := len(digits); n < rule.MinDigits || n > rule.MaxDigits {
		msg := "must have " + strconv.Itoa(rule.MinDigits) + " digits"
		if rule.MinDigits != rule.MaxDigits {
			msg = "must have " + strconv.Itoa(rule.MinDigits) + "-" + strconv.Itoa(rule.MaxDigits) + " digits"
		}
		return "", newValidationError("phone", msg)
	}

	if num, err := libphonenumber.Parse(digits, strings.ToUpper(country)); err == nil {
		return libphonenumber.Format(num, libphonenumber.E164), nil
	}
	return "+" + strconv.Itoa(rule.DialCode) + digits, nil
}

// nationalDigits strips formatting and a leading international prefix.
func nationalDigits(raw string, dialCode int) string {
	trimmed := strings.TrimSpace(raw)
	international := strings.HasPrefix(trimmed, "+")

	var b strings.Builder
	for _, r := range trimmed {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if international {
		digits = strings.TrimPrefix(digits, strconv.Itoa(dialCode))
	}
	return digits
}

// buyerRequirements carries the sale context the buyer form is checked
// against. A draft is checked for well-formed values only: missing contact
// fields, categories and payment method are left to later steps.
type buyerRequirements struct {
	wholesaler bool
	finalTotal decimal.Decimal
	draft      bool
}

// settlesNow reports whether status takes money at the counter and so
// needs a payment method.
func settlesNow(status PaymentStatus) bool {
	return status == PaymentPaid || status == PaymentPartiallyPaid
}

// validateBuyer checks every field of the buyer form and reports all
// offending fields at once. On success the phone is returned normalized.
func validateBuyer(d BuyerDetails, req buyerRequirements) (BuyerDetails, error) {
	verr := &ValidationError{}

	if strings.TrimSpace(d.Name) == "" && !req.draft {
		verr.Add("name", "buyer name is required")
	}

	switch phone := strings.TrimSpace(d.Phone); {
	case phone == "":
		if !req.draft {
			verr.Add("phone", "buyer phone is required")
		}
	default:
		normalized, err := NormalizePhone(phone, d.Country)
		if err != nil {
			var perr *ValidationError
			if errors.As(err, &perr) {
				verr.Fields = append(verr.Fields, perr.Fields...)
			} else {
				verr.Add("phone", "invalid phone number")
			}
			break
		}
		d.Phone = normalized
	}

	if d.Email != "" {
		if err := validate.Var(d.Email, "email"); err != nil {
			verr.Add("email", "invalid email address")
		}
	}

	switch d.DeliveryMethod {
	case "", DeliveryHandCarry, DeliveryDispatch:
	default:
		verr.Add("delivery_method", "unknown delivery method")
	}

	status := d.PaymentStatus
	if !req.wholesaler || (req.draft && status == "") {
		status = PaymentPaid
	}
	if req.wholesaler {
		if len(d.Categories) == 0 && !req.draft {
			verr.Add("categories", "select at least one product category")
		}
		switch status {
		case PaymentPaid, PaymentUnpaid:
		case PaymentPartiallyPaid:
			if !d.PaidAmount.IsPositive() || !d.PaidAmount.LessThan(req.finalTotal) {
				verr.Add("paid_amount", "partial payment must be greater than 0 and less than the total")
			}
		case PaymentCancelled:
			verr.Add("payment_status", "a cancelled sale cannot be completed")
		default:
			verr.Add("payment_status", "unknown payment status")
		}
	}

	switch {
	case d.PaymentMethod != "" && !d.PaymentMethod.Valid():
		verr.Add("payment_method", "unknown payment method")
	case settlesNow(status) && d.PaymentMethod == "" && !req.draft:
		verr.Add("payment_method", "select a payment method")
	}

	if err := verr.Err(); err != nil {
		return BuyerDetails{}, err
	}
	if d.Country == "" {
		d.Country = DefaultCountry
	}
	return d, nil
}
