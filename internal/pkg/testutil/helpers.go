package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// SendRequest encodes body as JSON. Headers come in key/value pairs.
func SendRequest(t testing.TB, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var bodyRW strings.Builder
	if body != nil {
		enc := json.NewEncoder(&bodyRW)
		err := enc.Encode(body)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, path, strings.NewReader(bodyRW.String()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	setHeaders(t, req, headers)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func SendForm(t testing.TB, h http.Handler, method, path string, form url.Values, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	req, err := http.NewRequest(method, path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	setHeaders(t, req, headers)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func ParseResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	dec := json.NewDecoder(rec.Body)
	var resp T
	err := dec.Decode(&resp)
	require.NoError(t, err)

	return resp
}

func WaitFor(t testing.TB, ctx context.Context, interval time.Duration, condition func() bool) bool {
	t.Helper()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if condition() {
				return true
			}
		}
	}
}

func setHeaders(t testing.TB, req *http.Request, headers []string) {
	t.Helper()

	require.True(t, len(headers)%2 == 0, "headers must come in pairs")
	for i := 0; i < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
}
