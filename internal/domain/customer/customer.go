package customer

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/counter-checkout/internal/domain/product"
)

// ErrNotFound is returned when a requested customer does not exist.
var ErrNotFound = errors.New("customer not found")

// Customer is a pre-registered buyer from the customer directory.
type Customer struct {
	ID      string
	Name    string
	Phone   string
	Email   string
	Segment product.Segment
}

// Directory provides customer lookups.
type Directory interface {
	Search(ctx context.Context, term string, limit int) ([]Customer, error)
	Get(ctx context.Context, id string) (*Customer, error)
}
