package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("auth: missing token")
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrInvalidRole  = errors.New("auth: invalid role")
)

// Claims represents JWT claims accepted by the dashboard API.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the verified caller of a request.
type Identity struct {
	Subject string
	Role    Role
}

// Verifier checks HS256 tokens issued for the dashboard.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
	clock  func() time.Time
}

// VerifierOption customizes token verification.
type VerifierOption func(*Verifier)

// WithIssuer requires the iss claim to match issuer.
func WithIssuer(issuer string) VerifierOption {
	return func(v *Verifier) {
		v.issuer = issuer
	}
}

// WithLeeway tolerates clock skew on exp, nbf and iat.
func WithLeeway(leeway time.Duration) VerifierOption {
	return func(v *Verifier) {
		if leeway > 0 {
			v.leeway = leeway
		}
	}
}

// WithVerifierClock overrides the time used for expiry checks.
func WithVerifierClock(clock func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if clock != nil {
			v.clock = clock
		}
	}
}

// NewVerifier constructs a verifier for secret.
func NewVerifier(secret []byte, opts ...VerifierOption) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}
	v := &Verifier{
		secret: append([]byte(nil), secret...),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify validates the token and returns the caller identity. Every failure
// wraps ErrMissingToken, ErrInvalidToken or ErrInvalidRole.
func (v *Verifier) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingToken
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.clock),
		jwt.WithIssuedAt(),
	}
	if v.leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(v.leeway))
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	claims := &Claims{}
	_, err := jwt.NewParser(parserOpts...).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	role, ok := NormalizeRole(claims.Role)
	if !ok {
		return Identity{}, fmt.Errorf("%w: %q", ErrInvalidRole, claims.Role)
	}
	return Identity{Subject: claims.Subject, Role: role}, nil
}
