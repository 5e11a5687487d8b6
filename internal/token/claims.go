package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kirill483/auth-notify/internal/model"
)

type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

var (
	ErrExpired          = errors.New("token expired")
	ErrMalformed        = errors.New("token malformed")
	ErrInvalidSignature = errors.New("token signature invalid")
)

// Pair is what a successful authentication hands out.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// Claims are the validated contents of an access token.
type Claims struct {
	Subject   string
	Role      model.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshClaims carry no role: it is re-read from the identity on every refresh.
type RefreshClaims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Type Type       `json:"typ"`
	Role model.Role `json:"role,omitempty"`
}
