package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/counter-checkout/internal/domain/product"
	"github.com/xenking/counter-checkout/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	batchSize     = 500
	progressEvery = 100_000
	maxLineBytes  = 1 << 20
)

// record is one NDJSON line of a catalog export.
type record struct {
	ID             string          `json:"id"`
	SKU            string          `json:"sku" validate:"required,max=64"`
	Name           string          `json:"name" validate:"required"`
	Description    string          `json:"description"`
	Category       string          `json:"category"`
	Manufacturer   string          `json:"manufacturer"`
	Stock          int             `json:"stock" validate:"gte=0"`
	WholesalePrice decimal.Decimal `json:"wholesale_price"`
	RetailPrice    decimal.Decimal `json:"retail_price"`
}

func (r record) product() product.Product {
	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	return product.Product{
		ID:             id,
		SKU:            r.SKU,
		Name:           r.Name,
		Description:    r.Description,
		Category:       r.Category,
		Manufacturer:   r.Manufacturer,
		StockLevel:     r.Stock,
		WholesalePrice: r.WholesalePrice,
		RetailPrice:    r.RetailPrice,
	}
}

// upserter writes product batches.
type upserter interface {
	Upsert(ctx context.Context, products []product.Product) error
}

// version is a record of a SKU seen in more than one export, with the
// export it came from.
type version struct {
	file    int
	rec     record
	written bool
}

// ingest merges catalog exports into the product table. Exports are ordered
// oldest first and a later export wins for a SKU present in several.
type ingest struct {
	lg       *zap.Logger
	files    []string
	expected uint
	store    upserter
	validate *validator.Validate

	mu       sync.Mutex
	versions map[string]version
}

func main() {
	var (
		dataDir     string
		databaseURL string
		expected    uint
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing catalog exports (*.ndjson.gz), merged in name order")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&expected, "expected-skus", 1_000_000, "expected SKUs per export, sizes the bloom filters")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, dataDir, databaseURL, expected); err != nil {
		lg.Fatal("Catalog ingest failed", zap.Error(err))
	}

	lg.Info("Catalog ingest completed")
}

func run(ctx context.Context, lg *zap.Logger, dataDir, databaseURL string, expected uint) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.ndjson.gz"))
	if err != nil {
		return errors.Wrap(err, "list exports")
	}
	if len(files) == 0 {
		lg.Info("No catalog exports found", zap.String("dir", dataDir))
		return nil
	}
	sort.Strings(files)

	lg.Info("Connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	in := &ingest{
		lg:       lg,
		files:    files,
		expected: expected,
		store:    postgres.NewProductRepository(pool),
		validate: validator.New(),
		versions: make(map[string]version),
	}
	return in.run(ctx)
}

func (in *ingest) run(ctx context.Context) error {
	// Pass 1: one bloom filter of SKUs per export.
	in.lg.Info("Pass 1: building bloom filters", zap.Int("files", len(in.files)))

	filters, err := in.buildFilters(ctx)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: write SKUs no other export can contain, hold the rest back.
	in.lg.Info("Pass 2: writing unique SKUs")

	if err := in.writeUnique(ctx, filters); err != nil {
		return errors.Wrap(err, "write unique skus")
	}

	// Pass 3: write the latest version of every held-back SKU.
	if err := in.writeLatest(ctx); err != nil {
		return errors.Wrap(err, "write latest versions")
	}
	return nil
}

func (in *ingest) buildFilters(ctx context.Context) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(in.files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range in.files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(in.expected, bloomFPR)
			var count int
			err := streamExport(ctx, path, func(r record) error {
				filter.AddString(r.SKU)
				count++
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "export %d", i+1)
			}
			in.lg.Info("Pass 1 complete", zap.String("file", path), zap.Int("records", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// writeUnique streams every export again. A SKU that no later export's
// filter matches is final and written right away. A SKU that a later filter
// matches is held back, and a written SKU that an earlier filter matches is
// remembered so the held-back versions do not overwrite it.
func (in *ingest) writeUnique(ctx context.Context, filters []*bloom.BloomFilter) error {
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range in.files {
		g.Go(func() error {
			var (
				batch   []product.Product
				written int
				held    int
			)
			flush := func() error {
				if len(batch) == 0 {
					return nil
				}
				if err := in.store.Upsert(ctx, batch); err != nil {
					return err
				}
				written += len(batch)
				batch = batch[:0]
				return nil
			}

			err := streamExport(ctx, path, func(r record) error {
				if err := in.validate.Struct(r); err != nil {
					in.lg.Warn("Skipping invalid record", zap.String("file", path), zap.Error(err))
					return nil
				}
				if matchesAny(filters[i+1:], r.SKU) {
					in.hold(version{file: i, rec: r})
					held++
					return nil
				}
				if matchesAny(filters[:i], r.SKU) {
					in.hold(version{file: i, rec: r, written: true})
				}
				batch = append(batch, r.product())
				if len(batch) < batchSize {
					return nil
				}
				if err := flush(); err != nil {
					return err
				}
				if written%progressEvery < batchSize {
					in.lg.Info("Pass 2 progress", zap.String("file", path), zap.Int("written", written))
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "export %d", i+1)
			}
			if err := flush(); err != nil {
				return errors.Wrapf(err, "export %d", i+1)
			}

			in.lg.Info("Pass 2 complete",
				zap.String("file", path),
				zap.Int("written", written),
				zap.Int("held", held),
			)
			return nil
		})
	}
	return g.Wait()
}

// hold keeps the latest version of a SKU; within one export the last line wins.
func (in *ingest) hold(v version) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if cur, ok := in.versions[v.rec.SKU]; ok && cur.file > v.file {
		return
	}
	in.versions[v.rec.SKU] = v
}

func (in *ingest) writeLatest(ctx context.Context) error {
	var batch []product.Product
	for _, v := range in.versions {
		if v.written {
			continue
		}
		batch = append(batch, v.rec.product())
	}

	in.lg.Info("Pass 3: writing held-back SKUs",
		zap.Int("held", len(in.versions)),
		zap.Int("to_write", len(batch)),
	)
	for start := 0; start < len(batch); start += batchSize {
		end := min(start+batchSize, len(batch))
		if err := in.store.Upsert(ctx, batch[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func matchesAny(filters []*bloom.BloomFilter, sku string) bool {
	for _, f := range filters {
		if f.TestString(sku) {
			return true
		}
	}
	return false
}

// streamExport decodes a gzip-compressed NDJSON export and calls fn for
// each record.
func streamExport(ctx context.Context, path string, fn func(r record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var r record
		if err := json.Unmarshal(raw, &r); err != nil {
			return errors.Wrapf(err, "%s:%d", path, line)
		}
		if err := fn(r); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
