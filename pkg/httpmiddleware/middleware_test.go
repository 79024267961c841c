package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrap_Order(t *testing.T) {
	var trail []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				trail = append(trail, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		trail = append(trail, "handler")
	}), mark("outer"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, trail)
}

func TestRequestID(t *testing.T) {
	for _, tt := range []struct {
		name     string
		incoming string
		reuse    bool
	}{
		{name: "missing", incoming: "", reuse: false},
		{name: "valid", incoming: "till-7-req-42", reuse: true},
		{name: "control characters", incoming: "bad\x01id", reuse: false},
		{name: "too long", incoming: strings.Repeat("a", 129), reuse: false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			require.NotEmpty(t, seen)
			assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
			if tt.reuse {
				assert.Equal(t, tt.incoming, seen)
			} else {
				assert.NotEqual(t, tt.incoming, seen)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("printer on fire")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/registers/r1/complete", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "close", w.Header().Get("Connection"))
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "internal error", body["message"])
}

func TestRecovery_AbortHandler(t *testing.T) {
	h := Recovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestCORS(t *testing.T) {
	for _, tt := range []struct {
		name       string
		cfg        CORSConfig
		method     string
		origin     string
		preflight  bool
		wantOrigin string
		wantStatus int
	}{
		{
			name:       "any origin",
			cfg:        CORSConfig{},
			method:     http.MethodGet,
			origin:     "http://till.local",
			wantOrigin: "*",
			wantStatus: http.StatusOK,
		},
		{
			name:       "listed origin echoed in configured case",
			cfg:        CORSConfig{AllowOrigins: []string{"http://Till.local"}},
			method:     http.MethodGet,
			origin:     "http://till.local",
			wantOrigin: "http://Till.local",
			wantStatus: http.StatusOK,
		},
		{
			name:       "unlisted origin",
			cfg:        CORSConfig{AllowOrigins: []string{"http://till.local"}},
			method:     http.MethodGet,
			origin:     "http://evil.example",
			wantOrigin: "",
			wantStatus: http.StatusOK,
		},
		{
			name:       "credentials echo origin",
			cfg:        CORSConfig{AllowCredentials: true},
			method:     http.MethodGet,
			origin:     "http://till.local",
			wantOrigin: "http://till.local",
			wantStatus: http.StatusOK,
		},
		{
			name:       "preflight",
			cfg:        CORSConfig{MaxAge: 600},
			method:     http.MethodOptions,
			origin:     "http://till.local",
			preflight:  true,
			wantOrigin: "*",
			wantStatus: http.StatusNoContent,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := CORS(tt.cfg)(okHandler())
			req := httptest.NewRequest(tt.method, "/api/products", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.preflight {
				assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
				assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), APIKeyHeader)
				assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
			}
		})
	}
}

func TestLogRequests_RoutePattern(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	r := chi.NewRouter()
	r.Get("/api/registers/{registerID}/session", func(w http.ResponseWriter, r *http.Request) {
		zctx.From(r.Context()).Info("Inside")
		w.WriteHeader(http.StatusConflict)
	})
	h := Wrap(r,
		RouteContext(),
		RequestID(),
		InjectLogger(zap.New(core)),
		LogRequests(),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/registers/till-1/session", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusConflict, w.Code)

	inside := logs.FilterMessage("Inside").All()
	require.Len(t, inside, 1)
	assert.Equal(t, "req-1", inside[0].ContextMap()["request_id"])

	entries := logs.FilterMessage("Request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "/api/registers/{registerID}/session", fields["route"])
	assert.Equal(t, int64(http.StatusConflict), fields["status"])
}

func TestRoutePattern_Unmatched(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	assert.Equal(t, "unmatched", RoutePattern(req))
}
