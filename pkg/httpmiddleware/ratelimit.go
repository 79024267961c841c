package httpmiddleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// APIKeyHeader is the header carrying an operator's API key.
const APIKeyHeader = "X-API-Key"

// RateLimitConfig configures the sliding window limiter.
type RateLimitConfig struct {
	// Max requests allowed per Window and key.
	Max    int
	Window time.Duration
	// KeyFunc picks the limiting key. Defaults to CredentialKey.
	KeyFunc func(*http.Request) string
}

// window tracks request counts of the current and previous fixed windows.
type window struct {
	start time.Time
	curr  float64
	prev  float64
}

type limiter struct {
	max  int
	size time.Duration
	key  func(*http.Request) string

	mu      sync.Mutex
	windows map[string]*window
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = CredentialKey
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &limiter{
		max:     cfg.Max,
		size:    cfg.Window,
		key:     cfg.KeyFunc,
		windows: make(map[string]*window),
	}
}

// take records a hit for key if the weighted count of the sliding window is
// under the limit.
func (l *limiter) take(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, found := l.windows[key]
	if !found {
		w = &window{start: now.Truncate(l.size)}
		l.windows[key] = w
	}
	if elapsed := now.Sub(w.start); elapsed >= l.size {
		if elapsed >= 2*l.size {
			w.prev = 0
		} else {
			w.prev = w.curr
		}
		w.curr = 0
		w.start = now.Truncate(l.size)
	}

	weight := 1 - float64(now.Sub(w.start))/float64(l.size)
	count := w.prev*math.Max(weight, 0) + w.curr
	reset = w.start.Add(l.size)
	if count >= float64(l.max) {
		return 0, reset, false
	}
	w.curr++
	return max(int(float64(l.max)-count-1), 0), reset, true
}

func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if now.Sub(w.start) >= 2*l.size {
			delete(l.windows, key)
		}
	}
}

// RateLimit limits requests per key with a sliding window. Rejected requests
// get 429 with Retry-After; every response carries X-RateLimit-* headers.
// Stale keys are evicted until ctx is cancelled.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		t := time.NewTicker(2 * l.size)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				l.evict(now)
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			remaining, reset, ok := l.take(l.key(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				retry := math.Ceil(max(reset.Sub(now), 0).Seconds())
				h.Set("Retry-After", strconv.Itoa(int(retry)))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CredentialKey limits per API key when one is presented and per client IP
// otherwise. Keys are hashed so raw credentials are never held in memory.
func CredentialKey(r *http.Request) string {
	if k := r.Header.Get(APIKeyHeader); k != "" {
		sum := sha256.Sum256([]byte(k))
		return "key:" + hex.EncodeToString(sum[:8])
	}
	return "ip:" + ClientIP(r)
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
// address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
