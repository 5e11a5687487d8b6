package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/kirill483/auth-notify/internal/pkg/httpx"
	"github.com/kirill483/auth-notify/internal/pkg/router"
)

func Recover() router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					httpx.HandleErr(w, r, fmt.Errorf("panic: %v\n%s", rec, debug.Stack()))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
