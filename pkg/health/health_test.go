package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pass(context.Context) error { return nil }

func fail(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func runN(c *check, n int) {
	for range n {
		c.run(context.Background())
	}
}

func probe(t *testing.T, endpoint http.HandlerFunc) (int, statusResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	endpoint(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

func TestLiveEndpoint(t *testing.T) {
	for _, tt := range []struct {
		name       string
		runs       int
		opts       []Option
		wantCode   int
		wantStatus string
	}{
		{name: "never run", runs: 0, wantCode: http.StatusOK, wantStatus: "ok"},
		{name: "below threshold", runs: 2, wantCode: http.StatusOK, wantStatus: "ok"},
		{name: "at threshold", runs: 3, wantCode: http.StatusServiceUnavailable, wantStatus: "unhealthy"},
		{name: "custom threshold", runs: 1, opts: []Option{WithThresholds(1, 1)}, wantCode: http.StatusServiceUnavailable, wantStatus: "unhealthy"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			h.AddLivenessCheck("postgres", time.Second, fail("connection refused"), tt.opts...)
			runN(h.live[0], tt.runs)

			code, body := probe(t, h.LiveEndpoint)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, body.Status)
			if tt.wantCode != http.StatusOK {
				assert.Equal(t, "connection refused", body.Checks["postgres"])
			}
		})
	}
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("gate closed", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("postgres", time.Second, pass)

		code, body := probe(t, h.ReadyEndpoint)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Contains(t, body.Checks, "_readiness")
	})

	t.Run("open and passing", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("postgres", time.Second, pass)
		h.SetReady(true)

		code, body := probe(t, h.ReadyEndpoint)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body.Status)

		h.SetReady(false)
		code, _ = probe(t, h.ReadyEndpoint)
		assert.Equal(t, http.StatusServiceUnavailable, code)
	})

	t.Run("one failing", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("postgres", time.Second, pass)
		h.AddReadinessCheck("redis", time.Second, fail("dial tcp: refused"))
		h.SetReady(true)
		runN(h.readyz[1], 3)

		code, body := probe(t, h.ReadyEndpoint)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Contains(t, body.Checks, "redis")
		assert.NotContains(t, body.Checks, "postgres")
	})

	t.Run("advisory failure only warns", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("postgres", time.Second, pass)
		h.AddReadinessCheck("printer", time.Second, fail("paper out"), Advisory())
		h.SetReady(true)
		runN(h.readyz[1], 3)

		code, body := probe(t, h.ReadyEndpoint)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "paper out", body.Warnings["printer"])
		assert.True(t, h.IsReady())
	})
}

func TestCheck_Recovers(t *testing.T) {
	down := true
	h := New()
	h.AddLivenessCheck("flaky", time.Second, func(context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	}, WithThresholds(3, 2))
	c := h.live[0]

	runN(c, 3)
	assert.Equal(t, "down", c.failure())

	down = false
	runN(c, 1)
	assert.NotEmpty(t, c.failure(), "one pass is below the success threshold")
	runN(c, 1)
	assert.Empty(t, c.failure())
}

func TestCheck_Timeout(t *testing.T) {
	h := New()
	h.AddReadinessCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithThresholds(1, 1))

	runN(h.readyz[0], 1)
	assert.Contains(t, h.readyz[0].failure(), "deadline exceeded")
}

func TestStartStop(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	h := New()
	h.AddLivenessCheck("counter", time.Second, func(context.Context) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})
	h.AddReadinessCheck("postgres", time.Second, pass)
	h.SetReady(true)

	h.Start(context.Background(), 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				h.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
				h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()

	h.Stop()
	h.Stop()
}

func TestPingCheck(t *testing.T) {
	ok := PingCheck("redis", PingFunc(pass))
	assert.NoError(t, ok(context.Background()))

	broken := PingCheck("printer", PingFunc(fail("no such device")))
	err := broken(context.Background())
	require.Error(t, err)
	assert.Equal(t, "ping printer: no such device", err.Error())
}

func TestRuntimeChecks(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))
	assert.ErrorContains(t, GoroutineCountCheck(0)(context.Background()), "limit 0")
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}
