package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/counter-checkout/internal/domain/product"
)

const (
	productColumns = `id, sku, name, description, category, manufacturer,
		stock_level, wholesale_price, retail_price`

	lookupProductSQL = `SELECT ` + productColumns + `
		FROM products WHERE UPPER(sku) = UPPER($1)`

	searchProductsSQL = `SELECT ` + productColumns + `
		FROM products
		WHERE name ILIKE $1 OR sku ILIKE $1 OR manufacturer ILIKE $1
		ORDER BY (UPPER(sku) = UPPER($2)) DESC, name
		LIMIT $3`

	upsertProductSQL = `INSERT INTO products (` + productColumns + `, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (sku) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			manufacturer = EXCLUDED.manufacturer,
			stock_level = EXCLUDED.stock_level,
			wholesale_price = EXCLUDED.wholesale_price,
			retail_price = EXCLUDED.retail_price,
			updated_at = NOW()`
)

var _ product.Catalog = (*ProductRepository)(nil)

// ProductRepository implements product.Catalog backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// Lookup returns the product with the given SKU (case-insensitive). It
// returns product.ErrNotFound when no product matches.
func (r *ProductRepository) Lookup(ctx context.Context, sku string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, lookupProductSQL, sku)
	if err != nil {
		return nil, fmt.Errorf("looking up product %q: %w", sku, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("looking up product %q: %w", sku, err)
	}
	return &p, nil
}

// Search returns up to limit products whose name, SKU or manufacturer
// contains term. An exact SKU match sorts first.
func (r *ProductRepository) Search(ctx context.Context, term string, limit int) ([]product.Product, error) {
	limit = clampLimit(limit, product.DefaultSearchLimit)
	rows, err := r.pool.Query(ctx, searchProductsSQL, containsPattern(term), term, limit)
	if err != nil {
		return nil, fmt.Errorf("searching products %q: %w", term, err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Upsert inserts products or updates them by SKU in a single batch.
func (r *ProductRepository) Upsert(ctx context.Context, products []product.Product) error {
	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(upsertProductSQL,
			p.ID, p.SKU, p.Name, p.Description, p.Category, p.Manufacturer,
			p.StockLevel, p.WholesalePrice, p.RetailPrice,
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d products: %w", len(products), err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		stock int32
	)
	err := row.Scan(
		&p.ID, &p.SKU, &p.Name, &p.Description, &p.Category, &p.Manufacturer,
		&stock, &p.WholesalePrice, &p.RetailPrice,
	)
	p.StockLevel = int(stock)
	return p, err
}
