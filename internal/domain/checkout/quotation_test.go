package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceGenerator_Format(t *testing.T) {
	g := NewSequenceGenerator()
	g.now = func() time.Time { return time.Date(2026, 3, 14, 9, 5, 7, 0, time.UTC) }

	first, err := g.Next(context.Background())
	require.NoError(t, err)
	second, err := g.Next(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "QTN-20260314-090507-000001", first)
	assert.Equal(t, "QTN-20260314-090507-000002", second)
}

func TestSequenceGenerator_UniqueUnderConcurrency(t *testing.T) {
	g := NewSequenceGenerator()
	frozen := time.Now()
	g.now = func() time.Time { return frozen }

	const n = 200
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q, err := g.Next(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			seen[q] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
}

func TestFormatQuotation(t *testing.T) {
	day := time.Date(2026, 1, 2, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "QTN-20260102-000042", FormatQuotation(day, 42))
}
