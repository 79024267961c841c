package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// QuotationGenerator issues quotation numbers. Every value returned within a
// process is distinct from all previous ones.
type QuotationGenerator interface {
	Next(ctx context.Context) (string, error)
}

// FormatQuotation renders a quotation number from its issue date and
// sequence.
func FormatQuotation(day time.Time, seq int64) string {
	return fmt.Sprintf("QTN-%s-%06d", day.Format("20060102"), seq)
}

// SequenceGenerator is an in-process QuotationGenerator that composes the
// issue timestamp with a monotonic counter.
type SequenceGenerator struct {
	mu  sync.Mutex
	seq int64
	now func() time.Time
}

// NewSequenceGenerator returns a generator starting at sequence 1.
func NewSequenceGenerator() *SequenceGenerator {
	return &SequenceGenerator{now: time.Now}
}

// Next returns QTN-<yyyymmdd>-<hhmmss>-<seq>. The counter never resets, so
// values stay unique even if the clock goes backwards.
func (g *SequenceGenerator) Next(_ context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	now := g.now().UTC()
	return fmt.Sprintf("QTN-%s-%s-%06d", now.Format("20060102"), now.Format("150405"), g.seq), nil
}
