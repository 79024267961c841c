// Package staff models counter operators and the typed capabilities granted
// to them.
package staff

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no operator matches the presented credentials.
var ErrNotFound = errors.New("staff member not found")

// Capability is a single named permission.
type Capability uint32

const (
	// CapCheckout allows ringing up sales at a register.
	CapCheckout Capability = 1 << iota
	// CapApplyDiscount allows setting a discount on the cart.
	CapApplyDiscount
	// CapCreditSale allows completing partially paid or unpaid sales.
	CapCreditSale
	// CapCancelSale allows abandoning an in-progress completion.
	CapCancelSale
	// CapViewReports allows reading dashboard aggregates.
	CapViewReports
)

var capabilityNames = map[string]Capability{
	"checkout":       CapCheckout,
	"apply_discount": CapApplyDiscount,
	"credit_sale":    CapCreditSale,
	"cancel_sale":    CapCancelSale,
	"view_reports":   CapViewReports,
}

// String returns the scope name of c.
func (c Capability) String() string {
	for name, v := range capabilityNames {
		if v == c {
			return name
		}
	}
	return "unknown"
}

// Set is a bit set of capabilities.
type Set uint32

// NewSet returns a Set holding caps.
func NewSet(caps ...Capability) Set {
	var s Set
	for _, c := range caps {
		s |= Set(c)
	}
	return s
}

// ParseSet converts stored scope names into a Set. Unknown names are
// returned as an error so a typo in the staff table never silently grants
// or drops a permission.
func ParseSet(scopes []string) (Set, error) {
	var s Set
	for _, raw := range scopes {
		c, ok := capabilityNames[strings.ToLower(strings.TrimSpace(raw))]
		if !ok {
			return 0, errors.Errorf("unknown capability %q", raw)
		}
		s |= Set(c)
	}
	return s, nil
}

// Has reports whether c is in the set.
func (s Set) Has(c Capability) bool {
	return s&Set(c) != 0
}

// Member is an authenticated counter operator.
type Member struct {
	ID   string
	Name string
	// KeyHash is the stored HMAC of the key the member authenticated with.
	KeyHash      string
	Capabilities Set
}

// Can reports whether the member holds capability c.
func (m *Member) Can(c Capability) bool {
	if m == nil {
		return false
	}
	return m.Capabilities.Has(c)
}

// Repository looks up operators by the HMAC hash of their API key.
type Repository interface {
	FindByKeyHash(ctx context.Context, hash string) (*Member, error)
}
