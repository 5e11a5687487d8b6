package service

import (
	"errors"
	"net/http"

	"github.com/kirill483/auth-notify/internal/pkg/serr"
	"github.com/kirill483/auth-notify/internal/token"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrIdentityExists     = errors.New("identity already exists")
	ErrHandleTaken        = errors.New("telegram username already linked")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrBadRequest         = errors.New("bad request")
)

const (
	bearerChallenge        = "Bearer"
	invalidTokenChallenge = `Bearer error="invalid_token"`
)

func unauthorized(err error, msg string) *serr.ServiceError {
	se := serr.NewServiceError(err, http.StatusUnauthorized, "%s", msg)
	se.Header.Set("WWW-Authenticate", bearerChallenge)
	return se
}

// tokenError maps a token validation failure to a 401. Expired tokens get their own
// message and challenge so clients know to refresh.
func tokenError(err error, msg string) *serr.ServiceError {
	if errors.Is(err, token.ErrExpired) {
		se := serr.NewServiceError(err, http.StatusUnauthorized, "token expired")
		se.Header.Set("WWW-Authenticate", invalidTokenChallenge)
		return se
	}

	return unauthorized(err, msg)
}
