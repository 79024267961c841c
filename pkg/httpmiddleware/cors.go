package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures cross-origin access for the register UI.
type CORSConfig struct {
	// AllowOrigins lists permitted origins. Empty or "*" allows any origin.
	AllowOrigins []string
	// AllowCredentials echoes the concrete origin instead of "*".
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds; 0 omits the header.
	MaxAge int
}

const (
	corsMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsHeaders = "Content-Type, " + APIKeyHeader + ", " + RequestIDHeader
)

// CORS answers preflight requests and decorates cross-origin responses.
// Origins match case-insensitively and are echoed in their configured case.
func CORS(cfg CORSConfig) Middleware {
	origins := make(map[string]string, len(cfg.AllowOrigins))
	anyOrigin := len(cfg.AllowOrigins) == 0
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			anyOrigin = true
			continue
		}
		origins[strings.ToLower(o)] = o
	}

	allowOrigin := func(origin string) string {
		if anyOrigin && !cfg.AllowCredentials {
			return "*"
		}
		if anyOrigin {
			return origin
		}
		return origins[strings.ToLower(origin)]
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			origin := r.Header.Get("Origin")
			h.Add("Vary", "Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed := allowOrigin(origin)
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if allowed != "" {
					h.Set("Access-Control-Allow-Origin", allowed)
					h.Set("Access-Control-Allow-Methods", corsMethods)
					h.Set("Access-Control-Allow-Headers", corsHeaders)
					if cfg.AllowCredentials {
						h.Set("Access-Control-Allow-Credentials", "true")
					}
					if cfg.MaxAge > 0 {
						h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allowed != "" {
				h.Set("Access-Control-Allow-Origin", allowed)
				h.Set("Access-Control-Expose-Headers", RequestIDHeader)
				if cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
