package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/kirill483/auth-notify/internal/pkg/httpx"
	"github.com/kirill483/auth-notify/internal/pkg/router"
	"github.com/kirill483/auth-notify/internal/pkg/serr"
)

type ctxKey struct{}

var claimsKey ctxKey

var ErrNoBearer = errors.New("missing bearer token")

// Validator turns a raw bearer token into claims. Errors should be ServiceErrors;
// anything else is answered with 500.
type Validator[C any] func(raw string) (C, error)

// Auth requires an "Authorization: Bearer <token>" header and stores the
// validated claims in the request context.
func Auth[C any](validate Validator[C]) router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearer(r.Header.Get("Authorization"))
			if !ok {
				se := serr.NewServiceError(ErrNoBearer, http.StatusUnauthorized, "not authenticated")
				se.Header.Set("WWW-Authenticate", "Bearer")
				httpx.HandleErr(w, r, se)
				return
			}

			claims, err := validate(raw)
			if err != nil {
				httpx.HandleErr(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the claims stored by Auth.
func ClaimsFromContext[C any](ctx context.Context) (C, bool) {
	c, ok := ctx.Value(claimsKey).(C)
	return c, ok
}

func bearer(header string) (string, bool) {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}
