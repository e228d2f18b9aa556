// Package middleware provides the HTTP middleware shared by the ingress API
// and the websocket server: CORS enforcement and optional token auth.
package middleware

import "net/http"

// CorsConfig holds the parsed cross-origin allow-list. A single "*" entry
// permits any origin.
type CorsConfig struct {
	AllowedOrigins []string
}

// OriginAllowed reports whether the given Origin header value is permitted.
// An empty origin (same-origin or non-browser caller) is always allowed.
func (c CorsConfig) OriginAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Cors returns middleware that applies the allow-list to every request and
// answers preflight requests.
func Cors(cfg CorsConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if !cfg.OriginAllowed(origin) {
				http.Error(w, "origin not allowed", http.StatusForbidden)
				return
			}
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
