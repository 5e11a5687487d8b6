package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kirill483/auth-notify/internal/pkg/logger"
	"github.com/kirill483/auth-notify/internal/pkg/router"
)

const RequestIDHeader = "X-Request-ID"

type httpStatusWriter struct {
	Status int
	inner  http.ResponseWriter
}

func (sw *httpStatusWriter) Header() http.Header {
	return sw.inner.Header()
}

func (sw *httpStatusWriter) WriteHeader(status int) {
	sw.Status = status
	sw.inner.WriteHeader(status)
}

func (sw *httpStatusWriter) Write(b []byte) (int, error) {
	if sw.Status == 0 {
		sw.Status = http.StatusOK
	}
	return sw.inner.Write(b)
}

func Log() router.Middleware {
	return LogWith(slog.Default())
}

// LogWith tags every request with an id, stores a request-scoped logger in the
// context and logs the outcome once the handler returns.
func LogWith(l *slog.Logger) router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			rl := l.With("request_id", id)
			statusWriter := &httpStatusWriter{inner: w}
			t := time.Now()

			next.ServeHTTP(statusWriter, r.WithContext(logger.WithContext(r.Context(), rl)))
			rl.Info("request received",
				"method", r.Method,
				"url", r.URL.Path,
				"ip", r.RemoteAddr,
				"status", statusWriter.Status,
				"duration", time.Since(t),
				"agent", r.UserAgent())
		})
	}
}
