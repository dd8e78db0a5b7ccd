package auth

import (
	"bytes"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestHandler(secret []byte, seen *string, opts ...MiddlewareOption) http.Handler {
	verifier, err := NewVerifier(secret)
	if err != nil {
		panic(err)
	}
	mw, err := NewMiddleware(verifier, NewDefaultPolicy([]string{"/healthz"}, nil), opts...)
	if err != nil {
		panic(err)
	}
	return mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen = SubjectFromContext(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	handler := newTestHandler([]byte("test-secret"), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ExemptPath(t *testing.T) {
	handler := newTestHandler([]byte("test-secret"), nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ViewerReadsDashboard(t *testing.T) {
	secret := []byte("test-secret")
	var subject string
	handler := newTestHandler(secret, &subject)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, "viewer"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if subject != "user-1" {
		t.Fatalf("expected subject user-1, got %q", subject)
	}
}

func TestAuthMiddleware_ViewerForbiddenEntryPost(t *testing.T) {
	secret := []byte("test-secret")
	handler := newTestHandler(secret, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/entries/monte_income", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, "viewer"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_OperatorForbiddenCacheClear(t *testing.T) {
	secret := []byte("test-secret")
	handler := newTestHandler(secret, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cache", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, "operator"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ViewerDismissesAlert(t *testing.T) {
	secret := []byte("test-secret")
	handler := newTestHandler(secret, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/alert-1/dismiss", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, "viewer"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestAuthMiddleware_StreamQueryToken(t *testing.T) {
	secret := []byte("test-secret")
	handler := newTestHandler(secret, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/stream?access_token="+mustToken(t, secret, "viewer"), nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestAuthMiddleware_MalformedHeaderIsLogged(t *testing.T) {
	var logs bytes.Buffer
	handler := newTestHandler([]byte("test-secret"), nil, WithDenyLogger(log.New(&logs, "", 0)))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
	req.Header.Set("Authorization", "Token abc")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if resp.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header")
	}
	if !strings.Contains(resp.Body.String(), `"error":"unauthorized"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
	if !strings.Contains(logs.String(), "status=401") {
		t.Fatalf("expected deny log, got %q", logs.String())
	}
}

func TestVerifier_RejectsWrongSecret(t *testing.T) {
	token := mustToken(t, []byte("test-secret"), "admin")
	verifier, err := NewVerifier([]byte("other-secret"))
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifier_RejectsUnknownRole(t *testing.T) {
	secret := []byte("test-secret")
	verifier, err := NewVerifier(secret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if _, err := verifier.Verify(mustToken(t, secret, "root")); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if _, err := verifier.Verify(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	if _, err := NewVerifier(nil); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestVerifier_IssuerAndLeeway(t *testing.T) {
	secret := []byte("test-secret")
	expired := signClaims(t, secret, Claims{
		Role: "viewer",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "flow",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-10 * time.Second)),
		},
	})

	strict, err := NewVerifier(secret, WithIssuer("flow"))
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if _, err := strict.Verify(expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}

	lenient, err := NewVerifier(secret, WithIssuer("flow"), WithLeeway(time.Minute))
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	identity, err := lenient.Verify(expired)
	if err != nil {
		t.Fatalf("expected token within leeway, got %v", err)
	}
	if identity.Role != RoleViewer || identity.Subject != "user-1" {
		t.Fatalf("unexpected identity %+v", identity)
	}

	other, err := NewVerifier(secret, WithIssuer("someone-else"), WithLeeway(time.Minute))
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if _, err := other.Verify(expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected issuer mismatch, got %v", err)
	}
}

func mustToken(t *testing.T, secret []byte, role string) string {
	t.Helper()
	return signClaims(t, secret, Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
}

func signClaims(t *testing.T, secret []byte, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
