package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCors_AllowsListedOrigin(t *testing.T) {
	handler := Cors(CorsConfig{AllowedOrigins: []string{"https://app.example.com"}})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCors_RejectsUnlistedOrigin(t *testing.T) {
	handler := Cors(CorsConfig{AllowedOrigins: []string{"https://app.example.com"}})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCors_WildcardAndPreflight(t *testing.T) {
	handler := Cors(CorsConfig{AllowedOrigins: []string{"*"}})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/emit-notification", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://anywhere.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func signedToken(t *testing.T, secret, subject string) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Subject(subject).
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour)).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(secret)))
	require.NoError(t, err)
	return string(signed)
}

func TestJWTAuth_ValidTokenInjectsSubject(t *testing.T) {
	auth, err := NewJWTAuthMiddleware("test-secret")
	require.NoError(t, err)

	var gotUser string
	handler := auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = GetUserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/connect", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "test-secret", "user-42"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "user-42", gotUser)
}

func TestJWTAuth_TokenFromQueryParam(t *testing.T) {
	auth, err := NewJWTAuthMiddleware("test-secret")
	require.NoError(t, err)

	handler := auth(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/connect?token="+signedToken(t, "test-secret", "user-42"), nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestJWTAuth_RejectsMissingAndInvalidTokens(t *testing.T) {
	auth, err := NewJWTAuthMiddleware("test-secret")
	require.NoError(t, err)
	handler := auth(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/connect", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/connect", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "wrong-secret", "user-42"))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestNewJWTAuthMiddleware_EmptySecret(t *testing.T) {
	_, err := NewJWTAuthMiddleware("")
	assert.Error(t, err)
}

func TestNoopAuth(t *testing.T) {
	var gotUser string
	handler := NoopAuth("fixed-user")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = GetUserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/connect", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "fixed-user", gotUser)
}
