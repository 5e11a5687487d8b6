package router

import (
	"net/http"
	"strings"
)

type Middleware func(http.Handler) http.Handler

// Router is a ServeMux with middleware applied to every request, plus optional
// per-route middleware registered through With.
type Router struct {
	mux        *http.ServeMux
	middleware []Middleware
}

func New() *Router {
	return &Router{
		mux: http.NewServeMux(),
	}
}

// Use appends router-wide middleware. The first one added runs first.
func (rt *Router) Use(mw ...Middleware) {
	rt.middleware = append(rt.middleware, mw...)
}

func (rt *Router) Handle(pattern string, handler http.Handler) {
	rt.mux.Handle(normalize(pattern), handler)
}

func (rt *Router) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	rt.Handle(pattern, http.HandlerFunc(handler))
}

// With returns a group of routes that share the router's mux but run mw after the
// router-wide middleware.
func (rt *Router) With(mw ...Middleware) *Group {
	return &Group{rt: rt, middleware: mw}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	Chain(rt.mux, rt.middleware...).ServeHTTP(w, r)
}

type Group struct {
	rt         *Router
	middleware []Middleware
}

func (g *Group) Handle(pattern string, handler http.Handler) {
	g.rt.Handle(pattern, Chain(handler, g.middleware...))
}

func (g *Group) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	g.Handle(pattern, http.HandlerFunc(handler))
}

// Chain wraps h so that mw[0] is the outermost handler.
func Chain(h http.Handler, mw ...Middleware) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// normalize adds the leading slash to bare paths; "GET /x" style patterns pass through.
func normalize(pattern string) string {
	method, path, ok := strings.Cut(pattern, " ")
	if !ok {
		path, method = pattern, ""
	}

	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	if method == "" {
		return path
	}
	return method + " " + path
}
