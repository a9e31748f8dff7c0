package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func run(t *testing.T, mw echo.MiddlewareFunc, path, header string) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath(path)

	var seen echo.Context
	err := mw(func(c echo.Context) error {
		seen = c
		return c.String(http.StatusOK, "ok")
	})(c)
	return seen, err
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := run(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "/", "")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "/", tt.header)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "medxwalk", Audience: "api"}
	token, err := IssueToken(cfg, "loader-svc", []string{ScopeCodesRead}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	c, err := run(t, JWTMiddleware(cfg), "/api/v1/codes/RXNORM/161", "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := c.Get(SubjectKey); got != "loader-svc" {
		t.Errorf("expected subject loader-svc, got %v", got)
	}
	ctx := c.Request().Context()
	if UserIDFromContext(ctx) != "loader-svc" {
		t.Errorf("expected user id on request context")
	}
	if s := ScopesFromContext(ctx); len(s) != 1 || s[0] != ScopeCodesRead {
		t.Errorf("unexpected scopes %v", s)
	}
}

func TestJWTMiddleware_Rejects(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "medxwalk"}
	past := time.Now().Add(-2 * time.Hour)

	tests := []struct {
		name   string
		claims Claims
		key    []byte
	}{
		{"wrong key", Claims{RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "medxwalk", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}, []byte("another-key")},
		{"expired", Claims{RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "medxwalk", ExpiresAt: jwt.NewNumericDate(past),
		}}, testSigningKey},
		{"no expiry", Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "medxwalk"}}, testSigningKey},
		{"wrong issuer", Claims{RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "someone-else", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}, testSigningKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := createTestToken(t, tt.claims, tt.key)
			_, err := run(t, JWTMiddleware(cfg), "/", "Bearer "+token)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper}
	if _, err := run(t, JWTMiddleware(cfg), "/health", ""); err != nil {
		t.Errorf("expected /health to skip auth, got %v", err)
	}
	_, err := run(t, JWTMiddleware(cfg), "/api/v1/crosswalks", "")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestIssueToken_NoKey(t *testing.T) {
	if _, err := IssueToken(JWTConfig{}, "x", nil, time.Minute); err == nil {
		t.Error("expected error without signing key")
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	c, err := run(t, DevAuthMiddleware(), "/", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if UserIDFromContext(c.Request().Context()) != "dev-user" {
		t.Error("expected dev-user")
	}
}

func TestRequireScope(t *testing.T) {
	tests := []struct {
		granted []string
		need    string
		allowed bool
	}{
		{[]string{ScopeCodesRead}, ScopeCodesRead, true},
		{[]string{ScopeAll}, ScopeCrosswalksRun, true},
		{[]string{"crosswalks:*"}, ScopeCrosswalksRun, true},
		{[]string{"codes:*"}, ScopeCrosswalksRun, false},
		{[]string{ScopeCodesRead}, ScopeCrosswalksRun, false},
		{nil, ScopeCodesRead, false},
	}
	for _, tt := range tests {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		setIdentity(c, "u", tt.granted)

		err := RequireScope(tt.need)(func(c echo.Context) error { return nil })(c)
		if tt.allowed && err != nil {
			t.Errorf("%v -> %s: expected allowed, got %v", tt.granted, tt.need, err)
		}
		if !tt.allowed {
			expectStatus(t, err, http.StatusForbidden)
		}
	}
}

func TestIsPublicPath(t *testing.T) {
	if !IsPublicPath("/metrics") {
		t.Error("expected /metrics to be public")
	}
	if IsPublicPath("/api/v1/registry/RXNORM") {
		t.Error("expected registry to require auth")
	}
}
