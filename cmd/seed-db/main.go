package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/counter-checkout/internal/domain/customer"
	"github.com/xenking/counter-checkout/internal/domain/product"
	"github.com/xenking/counter-checkout/internal/domain/staff"
	"github.com/xenking/counter-checkout/internal/handler"
	"github.com/xenking/counter-checkout/internal/storage/postgres"
)

type productJSON struct {
	ID             string          `json:"id"`
	SKU            string          `json:"sku" validate:"required"`
	Name           string          `json:"name" validate:"required"`
	Description    string          `json:"description"`
	Category       string          `json:"category"`
	Manufacturer   string          `json:"manufacturer"`
	Stock          int             `json:"stock" validate:"gte=0"`
	WholesalePrice decimal.Decimal `json:"wholesale_price"`
	RetailPrice    decimal.Decimal `json:"retail_price"`
}

type customerJSON struct {
	ID      string `json:"id" validate:"required"`
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone"`
	Email   string `json:"email" validate:"omitempty,email"`
	Segment string `json:"segment" validate:"oneof=retailer wholesaler"`
}

type options struct {
	databaseURL   string
	productsFile  string
	customersFile string
	staffID       string
	staffName     string
	staffScopes   string
	apiKey        string
	apiKeyPepper  string
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&opts.customersFile, "customers-file", "db/seed/customers.json", "path to customers JSON file")
	flag.StringVar(&opts.staffID, "staff-id", "manager", "staff member ID of the seeded key")
	flag.StringVar(&opts.staffName, "staff-name", "Store manager", "display name of the seeded staff member")
	flag.StringVar(&opts.staffScopes, "staff-scopes", "checkout,apply_discount,credit_sale,cancel_sale,view_reports", "comma-separated capabilities")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to seed (or POS_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or POS_API_KEY_PEPPER env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("POS_SEED_API_KEY")
	}
	if opts.apiKey == "" {
		lg.Fatal("API key is required: set --api-key or POS_SEED_API_KEY")
	}
	if opts.apiKeyPepper == "" {
		opts.apiKeyPepper = os.Getenv("POS_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}

	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	scopes := strings.Split(opts.staffScopes, ",")
	if _, err := staff.ParseSet(scopes); err != nil {
		return errors.Wrap(err, "parse staff scopes")
	}

	lg.Info("Connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	validate := validator.New()

	products, err := loadProducts(opts.productsFile, validate)
	if err != nil {
		return errors.Wrap(err, "load products")
	}
	if err := postgres.NewProductRepository(pool).Upsert(ctx, products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	lg.Info("Upserted products", zap.Int("count", len(products)))

	customers, err := loadCustomers(opts.customersFile, validate)
	if err != nil {
		return errors.Wrap(err, "load customers")
	}
	if err := postgres.NewCustomerRepository(pool).Upsert(ctx, customers); err != nil {
		return errors.Wrap(err, "seed customers")
	}
	lg.Info("Upserted customers", zap.Int("count", len(customers)))

	hash := handler.HashAPIKey([]byte(opts.apiKeyPepper), opts.apiKey)
	if err := postgres.NewStaffRepository(pool).SaveKey(ctx, opts.staffID, hash, opts.staffName, scopes); err != nil {
		return errors.Wrap(err, "seed staff key")
	}
	lg.Info("Upserted staff key",
		zap.String("id", opts.staffID),
		zap.Strings("scopes", scopes),
	)

	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read file")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}
	return nil
}

func loadProducts(path string, validate *validator.Validate) ([]product.Product, error) {
	var raw []productJSON
	if err := readJSON(path, &raw); err != nil {
		return nil, err
	}

	products := make([]product.Product, 0, len(raw))
	for _, p := range raw {
		if err := validate.Struct(p); err != nil {
			return nil, errors.Wrapf(err, "product %q", p.SKU)
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		products = append(products, product.Product{
			ID:             p.ID,
			SKU:            p.SKU,
			Name:           p.Name,
			Description:    p.Description,
			Category:       p.Category,
			Manufacturer:   p.Manufacturer,
			StockLevel:     p.Stock,
			WholesalePrice: p.WholesalePrice,
			RetailPrice:    p.RetailPrice,
		})
	}
	return products, nil
}

func loadCustomers(path string, validate *validator.Validate) ([]customer.Customer, error) {
	var raw []customerJSON
	if err := readJSON(path, &raw); err != nil {
		return nil, err
	}

	customers := make([]customer.Customer, 0, len(raw))
	for _, c := range raw {
		if err := validate.Struct(c); err != nil {
			return nil, errors.Wrapf(err, "customer %q", c.ID)
		}
		customers = append(customers, customer.Customer{
			ID:      c.ID,
			Name:    c.Name,
			Phone:   c.Phone,
			Email:   c.Email,
			Segment: product.Segment(c.Segment),
		})
	}
	return customers, nil
}
