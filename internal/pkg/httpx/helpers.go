package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kirill483/auth-notify/internal/pkg/logger"
	"github.com/kirill483/auth-notify/internal/pkg/serr"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

func ReadJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(out)
}

func WriteJSON(w http.ResponseWriter, status int, resp any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	return enc.Encode(resp)
}

// HandleErr logs err with the request and answers with the ServiceError message, if
// any. Everything else becomes a bare 500 so internal causes never reach clients.
func HandleErr(w http.ResponseWriter, r *http.Request, err error) {
	l := logger.FromContext(r.Context())

	var se *serr.ServiceError
	if errors.As(err, &se) {
		level := slog.LevelInfo
		if se.StatusCode >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		l.Log(r.Context(), level, "request failed",
			"error", err,
			"status", se.StatusCode,
			"env", se.Env,
			"method", r.Method,
			"url", r.URL.Path,
		)

		for k, vals := range se.Header {
			for _, v := range vals {
				w.Header().Add(k, v)
			}
		}
		_ = WriteJSON(w, se.StatusCode, errorResponse{Detail: se.Msg})
		return
	}

	l.Error("request error",
		"error", err,
		"method", r.Method,
		"url", r.URL.Path,
		"remote_addr", r.RemoteAddr,
	)
	_ = WriteJSON(w, http.StatusInternalServerError, errorResponse{Detail: "Internal Server Error"})
}
