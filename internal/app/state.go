package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/counter-checkout/internal/domain/checkout"
	"github.com/xenking/counter-checkout/internal/handler"
	"github.com/xenking/counter-checkout/internal/storage/redis"
	"github.com/xenking/counter-checkout/pkg/health"
)

// registerState is where quotation numbers and register locks live: Redis
// when configured so several instances can share registers, process memory
// otherwise.
type registerState struct {
	quotations checkout.QuotationGenerator
	locker     handler.Locker
	ping       health.Pinger
	close      func()
}

func newRegisterState(ctx context.Context, lg *zap.Logger, cfg *Config) (*registerState, error) {
	if cfg.RedisURL == "" {
		lg.Warn("Redis not configured, quotation numbers and register locks are local to this instance")
		return &registerState{
			quotations: checkout.NewSequenceGenerator(),
			locker:     handler.NewLocalLocker(),
			close:      func() {},
		}, nil
	}

	rdb, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect redis")
	}
	return &registerState{
		quotations: redis.NewQuotationCounter(rdb),
		locker:     redisLocker{locks: redis.NewRegisterLocks(rdb, cfg.Checkout.LockTTL)},
		ping: health.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}),
		close: func() {
			if err := rdb.Close(); err != nil {
				lg.Warn("Close redis", zap.Error(err))
			}
		},
	}, nil
}

// redisLocker adapts Redis register locks to handler.Locker.
type redisLocker struct {
	locks *redis.RegisterLocks
}

func (l redisLocker) Acquire(ctx context.Context, registerID string) (handler.Lock, error) {
	lock, err := l.locks.Acquire(ctx, registerID)
	if err != nil {
		return nil, err
	}
	return lock, nil
}
