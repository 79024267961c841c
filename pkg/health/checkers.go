package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// Pinger is a dependency that can be probed: *pgxpool.Pool, a receipt
// printer, or a Redis client adapted with PingFunc.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// PingCheck probes p and prefixes failures with what.
func PingCheck(what string, p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrapf(err, "ping %s", what)
		}
		return nil
	}
}

// GoroutineCountCheck fails when more than threshold goroutines are running.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("%d goroutines, limit %d", n, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when a recent stop-the-world GC pause exceeded
// threshold.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		for _, p := range stats.Pause {
			if p > threshold {
				return errors.Errorf("GC pause %s, limit %s", p, threshold)
			}
		}
		return nil
	}
}
