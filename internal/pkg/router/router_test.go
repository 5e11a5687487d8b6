package router_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kirill483/auth-notify/internal/pkg/router"
)

func TestHandle(t *testing.T) {
	tbl := []struct {
		pattern string
		method  string
		path    string
		status  int
	}{
		{"hello", "GET", "/hello", http.StatusOK},
		{"/hello", "POST", "/hello", http.StatusOK},
		{"GET /hello", "GET", "/hello", http.StatusOK},
		{"GET /hello", "POST", "/hello", http.StatusMethodNotAllowed},
		{"POST login", "POST", "/login", http.StatusOK},
		{"/yandex/", "GET", "/yandex/", http.StatusOK},
		{"GET /hello", "GET", "/missing", http.StatusNotFound},
	}

	for i, c := range tbl {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			r := router.New()
			r.HandleFunc(c.pattern, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "ok")
			})

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(c.method, c.path, nil))

			assert.Equal(t, c.status, rec.Code)
		})
	}
}

func header(name, value string) router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add(name, value)
			next.ServeHTTP(w, r)
		})
	}
}

func TestMiddleware_Order(t *testing.T) {
	r := router.New()
	r.Use(header("X-Order", "1"), header("X-Order", "2"))
	r.Use(header("X-Order", "3"))

	r.HandleFunc("/test", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "testing middleware order")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"1", "2", "3"}, rec.Header().Values("X-Order"))
}

func TestWith(t *testing.T) {
	r := router.New()
	r.Use(header("X-Order", "global"))

	deny := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	}

	r.HandleFunc("GET /public", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "public")
	})
	protected := r.With(deny)
	protected.HandleFunc("GET /private", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "private")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/public", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public", rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/private", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "global", rec.Header().Get("X-Order"))
}
