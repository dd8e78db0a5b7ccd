package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
)

// Middleware verifies bearer tokens and enforces the route policy.
type Middleware struct {
	verifier *Verifier
	policy   Policy
	logger   *log.Logger
}

// MiddlewareOption customizes the middleware.
type MiddlewareOption func(*Middleware)

// WithDenyLogger logs every rejected request.
func WithDenyLogger(logger *log.Logger) MiddlewareOption {
	return func(m *Middleware) {
		m.logger = logger
	}
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(verifier *Verifier, policy Policy, opts ...MiddlewareOption) (*Middleware, error) {
	if verifier == nil {
		return nil, errors.New("auth: nil verifier")
	}
	m := &Middleware{verifier: verifier, policy: policy}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Wrap applies authentication and RBAC to the handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		required, ok := m.policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		token, err := bearerToken(r)
		if err == nil {
			var identity Identity
			identity, err = m.verifier.Verify(token)
			if err == nil {
				if !RoleAtLeast(identity.Role, required) {
					m.deny(w, r, http.StatusForbidden, fmt.Errorf("role %s below %s", identity.Role, required))
					return
				}
				ctx := WithIdentity(r.Context(), identity.Role, identity.Subject)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="flowdistributor"`)
		m.deny(w, r, http.StatusUnauthorized, err)
	})
}

func (m *Middleware) deny(w http.ResponseWriter, r *http.Request, status int, cause error) {
	if m.logger != nil {
		m.logger.Printf("auth: deny method=%s path=%s status=%d: %v", r.Method, r.URL.Path, status, cause)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": strings.ToLower(http.StatusText(status))})
}

// bearerToken reads the Authorization header. EventSource clients cannot set
// headers, so stream paths also accept an access_token query value.
func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		if strings.HasSuffix(r.URL.Path, "/stream") {
			if token := r.URL.Query().Get("access_token"); token != "" {
				return token, nil
			}
		}
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", fmt.Errorf("%w: malformed authorization header", ErrInvalidToken)
	}
	return token, nil
}
