package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/counter-checkout/internal/domain/customer"
	"github.com/xenking/counter-checkout/internal/domain/product"
)

const (
	getCustomerSQL = `SELECT id, name, phone, email, segment FROM customers WHERE id = $1`

	searchCustomersSQL = `SELECT id, name, phone, email, segment
		FROM customers
		WHERE name ILIKE $1 OR phone ILIKE $1 OR email ILIKE $1
		ORDER BY name
		LIMIT $2`

	upsertCustomerSQL = `INSERT INTO customers (id, name, phone, email, segment)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			segment = EXCLUDED.segment`
)

var _ customer.Directory = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Directory backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// Get returns a customer by identifier.
func (r *CustomerRepository) Get(ctx context.Context, id string) (*customer.Customer, error) {
	rows, err := r.pool.Query(ctx, getCustomerSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	return &c, nil
}

// Search returns up to limit customers whose name, phone or email contains
// term.
func (r *CustomerRepository) Search(ctx context.Context, term string, limit int) ([]customer.Customer, error) {
	limit = clampLimit(limit, product.DefaultSearchLimit)
	rows, err := r.pool.Query(ctx, searchCustomersSQL, containsPattern(term), limit)
	if err != nil {
		return nil, fmt.Errorf("searching customers %q: %w", term, err)
	}
	return pgx.CollectRows(rows, scanCustomer)
}

// Upsert inserts or replaces customers by id.
func (r *CustomerRepository) Upsert(ctx context.Context, customers []customer.Customer) error {
	batch := &pgx.Batch{}
	for _, c := range customers {
		batch.Queue(upsertCustomerSQL, c.ID, c.Name, c.Phone, c.Email, string(c.Segment))
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d customers: %w", len(customers), err)
	}
	return nil
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var (
		c       customer.Customer
		segment string
	)
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &segment)
	c.Segment = product.Segment(segment)
	return c, err
}
