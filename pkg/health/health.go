// Package health serves liveness and readiness probes for the API server.
//
// Every check runs on its own ticker. A check turns unhealthy only after
// FailureThreshold consecutive failures and healthy again after
// SuccessThreshold consecutive passes, so a single slow ping does not pull
// a register backend out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc returns nil when the checked dependency is usable.
type CheckFunc func(ctx context.Context) error

// Option tunes a single check.
type Option func(c *check)

// WithThresholds sets the consecutive failure and success counts needed to
// flip a check's state.
func WithThresholds(failures, successes int) Option {
	return func(c *check) {
		c.failureThreshold = max(failures, 1)
		c.successThreshold = max(successes, 1)
	}
}

// Advisory marks a check as informational: its failures are reported but do
// not fail the probe. Used for peripherals such as receipt printers.
func Advisory() Option {
	return func(c *check) {
		c.advisory = true
	}
}

type check struct {
	name             string
	timeout          time.Duration
	fn               CheckFunc
	failureThreshold int
	successThreshold int
	advisory         bool

	// Written by the check goroutine, read by probe handlers.
	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	// Owned by the check goroutine.
	fails  int
	passes int
}

func newCheck(name string, timeout time.Duration, fn CheckFunc, opts []Option) *check {
	c := &check{
		name:             name,
		timeout:          timeout,
		fn:               fn,
		failureThreshold: 3,
		successThreshold: 1,
	}
	for _, o := range opts {
		o(c)
	}
	c.healthy.Store(true)
	return c
}

func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(ctx)
	c.lastErr.Store(&err)
	if err != nil {
		c.passes = 0
		c.fails++
		if c.fails >= c.failureThreshold {
			c.healthy.Store(false)
		}
		return
	}
	c.fails = 0
	c.passes++
	if c.passes >= c.successThreshold {
		c.healthy.Store(true)
	}
}

func (c *check) failure() string {
	if c.healthy.Load() {
		return ""
	}
	if p := c.lastErr.Load(); p != nil && *p != nil {
		return (*p).Error()
	}
	return "unhealthy"
}

// Health aggregates liveness and readiness checks.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	live   []*check
	readyz []*check
	cancel context.CancelFunc
}

// New returns a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check that gates /livez.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...Option) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.live = append(h.live, newCheck(name, timeout, fn, opts))
}

// AddReadinessCheck registers a check that gates /readyz.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...Option) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readyz = append(h.readyz, newCheck(name, timeout, fn, opts))
}

// Start runs every registered check now and then once per interval until
// Stop is called or ctx is done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := append(append([]*check(nil), h.live...), h.readyz...)
	h.mu.Unlock()

	for _, c := range checks {
		go func() {
			t := time.NewTicker(interval)
			defer t.Stop()
			for {
				c.run(ctx)
				select {
				case <-ctx.Done():
					return
				case <-t.C:
				}
			}
		}()
	}
}

// Stop halts the check goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness gate, closed during start-up and
// graceful shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the gate is open and every blocking readiness
// check passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	failed, _ := h.snapshot(&h.readyz)
	return len(failed) == 0
}

// snapshot returns failing blocking checks and failing advisory checks.
func (h *Health) snapshot(list *[]*check) (failed, advisory map[string]string) {
	h.mu.RLock()
	checks := *list
	h.mu.RUnlock()

	failed = make(map[string]string)
	advisory = make(map[string]string)
	for _, c := range checks {
		msg := c.failure()
		switch {
		case msg == "":
		case c.advisory:
			advisory[c.name] = msg
		default:
			failed[c.name] = msg
		}
	}
	return failed, advisory
}

type statusResponse struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks,omitempty"`
	Warnings map[string]string `json:"warnings,omitempty"`
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	failed, advisory := h.snapshot(&h.live)
	writeStatus(w, failed, advisory)
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failed, advisory := h.snapshot(&h.readyz)
	if !h.ready.Load() {
		failed["_readiness"] = "service is not ready"
	}
	writeStatus(w, failed, advisory)
}

func writeStatus(w http.ResponseWriter, failed, advisory map[string]string) {
	resp := statusResponse{Status: "ok"}
	code := http.StatusOK
	if len(failed) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failed
		code = http.StatusServiceUnavailable
	}
	if len(advisory) > 0 {
		resp.Warnings = advisory
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
