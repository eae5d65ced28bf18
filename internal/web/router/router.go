// Package router wraps chi and records registered routes for introspection
package router

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/conduit-lang/admin/internal/web/middleware"
	"github.com/conduit-lang/admin/internal/web/response"
)

// Router manages HTTP routing using chi
type Router struct {
	mux    chi.Router
	routes []RouteInfo
}

// RouteInfo describes a registered route
type RouteInfo struct {
	Method     string   `json:"method"`
	Pattern    string   `json:"pattern"`
	Name       string   `json:"name"`
	Parameters []string `json:"parameters,omitempty"`
}

// NewRouter creates a router answering unknown routes and methods with JSON
// errors
func NewRouter() *Router {
	mux := chi.NewRouter()
	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.RenderNotFound(w, "")
	})
	mux.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.RenderMethodNotAllowed(w)
	})
	return &Router{mux: mux}
}

// ServeHTTP implements http.Handler interface
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Use adds middleware to every route. It must be called before routes are
// registered.
func (r *Router) Use(middlewares ...middleware.Middleware) {
	for _, m := range middlewares {
		r.mux.Use(m)
	}
}

// Get registers a named GET route
func (r *Router) Get(name, pattern string, handler http.HandlerFunc) {
	r.addRoute(http.MethodGet, name, pattern, handler)
}

// Post registers a named POST route
func (r *Router) Post(name, pattern string, handler http.HandlerFunc) {
	r.addRoute(http.MethodPost, name, pattern, handler)
}

// Patch registers a named PATCH route
func (r *Router) Patch(name, pattern string, handler http.HandlerFunc) {
	r.addRoute(http.MethodPatch, name, pattern, handler)
}

// Delete registers a named DELETE route
func (r *Router) Delete(name, pattern string, handler http.HandlerFunc) {
	r.addRoute(http.MethodDelete, name, pattern, handler)
}

func (r *Router) addRoute(method, name, pattern string, handler http.HandlerFunc) {
	r.mux.Method(method, pattern, handler)
	r.routes = append(r.routes, RouteInfo{
		Method:     method,
		Pattern:    pattern,
		Name:       name,
		Parameters: extractParameters(pattern),
	})
}

// Routes returns the registered routes ordered by pattern, then method
func (r *Router) Routes() []RouteInfo {
	out := make([]RouteInfo, len(r.routes))
	copy(out, r.routes)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pattern != out[j].Pattern {
			return out[i].Pattern < out[j].Pattern
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// URL builds the path of a named route
func (r *Router) URL(name string, params map[string]string) (string, error) {
	for _, route := range r.routes {
		if route.Name != name {
			continue
		}
		path := route.Pattern
		for _, p := range route.Parameters {
			v, ok := params[p]
			if !ok {
				return "", fmt.Errorf("route %s: missing parameter %s", name, p)
			}
			path = strings.Replace(path, "{"+p+"}", v, 1)
		}
		return path, nil
	}
	return "", fmt.Errorf("route not found: %s", name)
}

// extractParameters lists the path parameters of a route pattern
func extractParameters(pattern string) []string {
	var params []string
	for _, part := range strings.Split(pattern, "/") {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			name := strings.Trim(part, "{}")
			if i := strings.IndexByte(name, ':'); i >= 0 {
				name = name[:i]
			}
			params = append(params, name)
		}
	}
	return params
}
