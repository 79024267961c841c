package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/counter-checkout/internal/domain/product"
)

type memoryStore struct {
	mu       sync.Mutex
	products map[string]product.Product
	writes   int
}

func (m *memoryStore) Upsert(_ context.Context, products []product.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range products {
		m.products[p.SKU] = p
		m.writes++
	}
	return nil
}

func writeExport(t *testing.T, dir, name string, records []record) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	enc := json.NewEncoder(gz)
	for _, r := range records {
		require.NoError(t, enc.Encode(r))
	}
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func rec(sku, name string, stock int) record {
	return record{
		SKU:            sku,
		Name:           name,
		Stock:          stock,
		WholesalePrice: decimal.NewFromInt(80),
		RetailPrice:    decimal.NewFromInt(100),
	}
}

func newIngest(store upserter, files ...string) *ingest {
	return &ingest{
		lg:       zap.NewNop(),
		files:    files,
		expected: 1000,
		store:    store,
		validate: validator.New(),
		versions: make(map[string]version),
	}
}

func TestIngest_LaterExportWins(t *testing.T) {
	dir := t.TempDir()
	older := writeExport(t, dir, "01.ndjson.gz", []record{
		rec("SKU-1", "Rice 5kg", 10),
		rec("SKU-2", "Oil 1L", 20),
	})
	newer := writeExport(t, dir, "02.ndjson.gz", []record{
		rec("SKU-2", "Oil 1L (new pack)", 35),
		rec("SKU-3", "Bulb 9W", 5),
	})

	store := &memoryStore{products: make(map[string]product.Product)}
	require.NoError(t, newIngest(store, older, newer).run(t.Context()))

	require.Len(t, store.products, 3)
	assert.Equal(t, "Oil 1L (new pack)", store.products["SKU-2"].Name)
	assert.Equal(t, 35, store.products["SKU-2"].StockLevel)
	assert.Equal(t, 10, store.products["SKU-1"].StockLevel)
	assert.Equal(t, 3, store.writes, "stale versions are never written")
	for _, p := range store.products {
		assert.NotEmpty(t, p.ID)
	}
}

func TestIngest_SkipsInvalidRecords(t *testing.T) {
	dir := t.TempDir()
	path := writeExport(t, dir, "01.ndjson.gz", []record{
		rec("SKU-1", "Rice 5kg", 10),
		rec("", "No SKU", 1),
		rec("SKU-2", "Negative", -4),
	})

	store := &memoryStore{products: make(map[string]product.Product)}
	require.NoError(t, newIngest(store, path).run(t.Context()))

	assert.Len(t, store.products, 1)
	assert.Contains(t, store.products, "SKU-1")
}

func TestIngest_InvalidLaterVersionKeepsEarlier(t *testing.T) {
	dir := t.TempDir()
	older := writeExport(t, dir, "01.ndjson.gz", []record{rec("SKU-1", "Rice 5kg", 10)})
	newer := writeExport(t, dir, "02.ndjson.gz", []record{rec("SKU-1", "", 12)})

	store := &memoryStore{products: make(map[string]product.Product)}
	require.NoError(t, newIngest(store, older, newer).run(t.Context()))

	require.Contains(t, store.products, "SKU-1")
	assert.Equal(t, "Rice 5kg", store.products["SKU-1"].Name)
}

func TestIngest_ManyFiles(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for i := range 4 {
		var records []record
		for j := range 300 {
			// Every export repeats SKUs 0..99 and adds its own range.
			sku := fmt.Sprintf("SKU-%d-%d", i, j)
			if j < 100 {
				sku = fmt.Sprintf("SKU-shared-%d", j)
			}
			records = append(records, rec(sku, fmt.Sprintf("export %d", i), j))
		}
		files = append(files, writeExport(t, dir, fmt.Sprintf("%02d.ndjson.gz", i), records))
	}

	store := &memoryStore{products: make(map[string]product.Product)}
	require.NoError(t, newIngest(store, files...).run(t.Context()))

	assert.Len(t, store.products, 100+4*200)
	for j := range 100 {
		assert.Equal(t, "export 3", store.products[fmt.Sprintf("SKU-shared-%d", j)].Name)
	}
}

func TestStreamExport_BadLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.ndjson.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte("{\"sku\":\"A\",\"name\":\"x\"}\nnot json\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	err = streamExport(t.Context(), path, func(record) error { return nil })
	assert.ErrorContains(t, err, "bad.ndjson.gz:2")
}
