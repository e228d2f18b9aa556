package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

type contextKey string

const userIDKey contextKey = "authedUserID"

// ContextWithUser returns a context carrying an authenticated user identity.
func ContextWithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserIDFromContext returns the authenticated user identity, if any.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// NewJWTAuthMiddleware returns middleware that validates an HS256 bearer
// token and places its subject in the request context. The token is read
// from the Authorization header or, because browser websocket clients
// cannot set headers, from a "token" query parameter.
func NewJWTAuthMiddleware(secret string) (func(http.Handler) http.Handler, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret cannot be empty")
	}
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == r.Header.Get("Authorization") {
				raw = r.URL.Query().Get("token")
			}
			if raw == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			tok, err := jwt.Parse([]byte(raw), jwt.WithKey(jwa.HS256, key), jwt.WithValidate(true))
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), tok.Subject())))
		})
	}, nil
}

// NoopAuth returns pass-through middleware that injects a fixed identity.
// It is used when no secret is configured and in tests.
func NoopAuth(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID != "" {
				r = r.WithContext(ContextWithUser(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}
