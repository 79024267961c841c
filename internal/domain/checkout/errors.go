package checkout

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// Sentinel errors for checkout flow control.
var (
	// ErrEmptyCart is returned when completing a sale with no line items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrItemNotInCart is returned when editing a SKU that has no line item.
	ErrItemNotInCart = errors.New("item not in cart")
	// ErrCheckoutInProgress is returned when the cart is edited after sale
	// completion has started.
	ErrCheckoutInProgress = errors.New("sale completion in progress")
	// ErrNotCancellable is returned when cancelling once persistence began.
	ErrNotCancellable = errors.New("sale can no longer be cancelled")
	// ErrInvalidState is returned when an operation does not apply to the
	// current workflow state.
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrForbidden is returned when the operator lacks a capability.
	ErrForbidden = errors.New("operator is not allowed to perform this action")
	// ErrRegisterBusy is returned when another operator or API instance
	// holds the register's session.
	ErrRegisterBusy = errors.New("register is in use by another session")
)

// FieldError describes one offending input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError blocks a state transition. The cart is left untouched.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a field failure.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Err returns e when any field failed, nil otherwise.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// StockLimitExceededError indicates a quantity edit would exceed the
// product's available stock.
type StockLimitExceededError struct {
	SKU       string
	Product   string
	Available int
}

func (e *StockLimitExceededError) Error() string {
	return fmt.Sprintf("only %d of %s in stock", e.Available, e.Product)
}

// PersistenceError is surfaced when the sale store rejects or times out the
// snapshot. The sale is not complete and may be retried by the operator.
type PersistenceError struct {
	Reason string
	Err    error
}

func (e *PersistenceError) Error() string {
	return "persist sale: " + e.Reason
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NotificationError is a non-fatal receipt dispatch failure.
type NotificationError struct {
	Channel Channel
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("send %s receipt: %v", e.Channel, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }
