// Package redis keeps cross-instance register state in Redis: the daily
// quotation sequence and the lock that pins a register to one session.
package redis

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xenking/counter-checkout/internal/domain/checkout"
)

// NewClient parses a redis:// URL and verifies the connection.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return rdb, nil
}

const (
	quotationKeyPrefix = "pos:quotation:"
	quotationKeyTTL    = 48 * time.Hour
)

var _ checkout.QuotationGenerator = (*QuotationCounter)(nil)

// QuotationCounter issues quotation numbers from a per-day Redis counter so
// that numbers stay unique across every API instance sharing the server.
type QuotationCounter struct {
	rdb goredis.Cmdable
	now func() time.Time
}

// NewQuotationCounter returns a counter backed by rdb.
func NewQuotationCounter(rdb goredis.Cmdable) *QuotationCounter {
	return &QuotationCounter{rdb: rdb, now: time.Now}
}

// Next increments the counter of the current UTC day and formats it as
// QTN-<yyyymmdd>-<seq>.
func (q *QuotationCounter) Next(ctx context.Context) (string, error) {
	day := q.now().UTC()
	key := quotationKeyPrefix + day.Format("20060102")

	var incr *goredis.IntCmd
	_, err := q.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, quotationKeyTTL)
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "increment quotation counter")
	}
	return checkout.FormatQuotation(day, incr.Val()), nil
}

// ErrRegisterBusy is returned when another session holds the register.
var ErrRegisterBusy = checkout.ErrRegisterBusy

const registerKeyPrefix = "pos:register:"

// RegisterLocks pins registers to a single session across API instances.
type RegisterLocks struct {
	locker *redislock.Client
	ttl    time.Duration
}

// NewRegisterLocks returns a lock manager whose locks expire after ttl
// unless refreshed.
func NewRegisterLocks(rdb goredis.UniversalClient, ttl time.Duration) *RegisterLocks {
	return &RegisterLocks{locker: redislock.New(rdb), ttl: ttl}
}

// RegisterLock is a held register lock.
type RegisterLock struct {
	lock *redislock.Lock
	ttl  time.Duration
}

// Acquire takes the lock for registerID or fails with ErrRegisterBusy.
func (l *RegisterLocks) Acquire(ctx context.Context, registerID string) (*RegisterLock, error) {
	lock, err := l.locker.Obtain(ctx, registerKeyPrefix+registerID, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrRegisterBusy
	}
	if err != nil {
		return nil, errors.Wrapf(err, "obtain register %q lock", registerID)
	}
	return &RegisterLock{lock: lock, ttl: l.ttl}, nil
}

// Refresh extends the lock by its ttl.
func (r *RegisterLock) Refresh(ctx context.Context) error {
	if err := r.lock.Refresh(ctx, r.ttl, nil); err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return ErrRegisterBusy
		}
		return errors.Wrap(err, "refresh register lock")
	}
	return nil
}

// Release frees the register. Releasing an expired lock is not an error.
func (r *RegisterLock) Release(ctx context.Context) error {
	err := r.lock.Release(ctx)
	if err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
		return errors.Wrap(err, "release register lock")
	}
	return nil
}
