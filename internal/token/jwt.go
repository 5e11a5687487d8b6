// Package token issues and validates the service's access and refresh tokens.
//
// Tokens are stateless HMAC-signed JWTs: there is no revocation list, so a leaked
// token stays valid until it expires. Keep the access lifetime short.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kirill483/auth-notify/internal/model"
)

// RefreshTTL is fixed; only the access token lifetime is configurable.
const RefreshTTL = 7 * 24 * time.Hour

type JwtIssuer struct {
	secret    secretProvider
	method    jwt.SigningMethod
	issuer    string
	accessTTL time.Duration
	now       func() time.Time
}

type JwtConfig struct {
	Secret    secretProvider
	Algorithm string
	Issuer    string
	AccessTTL time.Duration
	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

// NewJWTIssuer builds the process-wide issuer. Only HMAC algorithms are accepted
// since the secret is shared.
func NewJWTIssuer(cfg JwtConfig) (*JwtIssuer, error) {
	if cfg.Secret == nil || len(cfg.Secret.Get()) == 0 {
		return nil, errors.New("signing secret is required")
	}

	method := jwt.GetSigningMethod(cfg.Algorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}

	if cfg.AccessTTL <= 0 {
		return nil, fmt.Errorf("access token ttl must be positive, got %s", cfg.AccessTTL)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &JwtIssuer{
		secret:    cfg.Secret,
		method:    method,
		issuer:    cfg.Issuer,
		accessTTL: cfg.AccessTTL,
		now:       now,
	}, nil
}

// IssuePair signs a fresh access and refresh token for the subject.
func (ti *JwtIssuer) IssuePair(subject string, role model.Role) (Pair, error) {
	at, err := ti.IssueAccess(subject, role)
	if err != nil {
		return Pair{}, err
	}

	rt, err := ti.sign(subject, "", TypeRefresh, RefreshTTL)
	if err != nil {
		return Pair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return Pair{AccessToken: at, RefreshToken: rt}, nil
}

func (ti *JwtIssuer) IssueAccess(subject string, role model.Role) (string, error) {
	at, err := ti.sign(subject, role, TypeAccess, ti.accessTTL)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return at, nil
}

// ValidateAccess checks signature and expiry. Expired tokens fail with ErrExpired so
// callers can retry with a refresh token; anything else is ErrMalformed or
// ErrInvalidSignature.
func (ti *JwtIssuer) ValidateAccess(raw string) (Claims, error) {
	c, err := ti.parse(raw, TypeAccess)
	if err != nil {
		return Claims{}, err
	}

	if !c.Role.Valid() {
		return Claims{}, fmt.Errorf("%w: unknown role %q", ErrMalformed, c.Role)
	}

	return Claims{
		Subject:   c.Subject,
		Role:      c.Role,
		IssuedAt:  timeOf(c.IssuedAt),
		ExpiresAt: timeOf(c.ExpiresAt),
	}, nil
}

func (ti *JwtIssuer) ValidateRefresh(raw string) (RefreshClaims, error) {
	c, err := ti.parse(raw, TypeRefresh)
	if err != nil {
		return RefreshClaims{}, err
	}

	return RefreshClaims{
		Subject:   c.Subject,
		IssuedAt:  timeOf(c.IssuedAt),
		ExpiresAt: timeOf(c.ExpiresAt),
	}, nil
}

func (ti *JwtIssuer) sign(subject string, role model.Role, typ Type, ttl time.Duration) (string, error) {
	now := ti.now()
	return jwt.NewWithClaims(ti.method, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    ti.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: typ,
		Role: role,
	}).SignedString(ti.secret.Get())
}

func (ti *JwtIssuer) parse(raw string, want Type) (jwtClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{ti.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	}
	if ti.issuer != "" {
		opts = append(opts, jwt.WithIssuer(ti.issuer))
	}

	var c jwtClaims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return ti.secret.Get(), nil
	}, opts...)
	if err != nil {
		return jwtClaims{}, classify(err)
	}

	if c.Type != want {
		return jwtClaims{}, fmt.Errorf("%w: expected %s token, got %q", ErrMalformed, want, c.Type)
	}
	if c.Subject == "" {
		return jwtClaims{}, fmt.Errorf("%w: missing subject", ErrMalformed)
	}

	return c, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

func timeOf(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}
