package api

import (
	"net/http"
	"sort"
	"strings"
)

// Route binds a method and a path pattern to a handler.
// Pattern segments wrapped in braces, like {id}, capture one path segment.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}

type compiledRoute struct {
	Route
	segments []string
}

// Router dispatches requests through a route table fixed at construction
type Router struct {
	routes []compiledRoute
}

// NewRouter compiles the route table
func NewRouter(routes []Route) *Router {
	rt := &Router{routes: make([]compiledRoute, 0, len(routes))}
	for _, route := range routes {
		rt.routes = append(rt.routes, compiledRoute{
			Route:    route,
			segments: splitPath(route.Pattern),
		})
	}
	return rt
}

// ServeHTTP implements http.Handler. A trailing slash is ignored.
// Unknown paths get 404 and known paths with another method get 405 with an Allow header.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	segments := splitPath(r.URL.Path)

	var allowed []string
	for _, route := range rt.routes {
		params, ok := match(route.segments, segments)
		if !ok {
			continue
		}
		if route.Method != r.Method {
			allowed = append(allowed, route.Method)
			continue
		}
		for name, value := range params {
			r.SetPathValue(name, value)
		}
		r.Pattern = route.Pattern
		route.Handler(w, r)
		return
	}

	if len(allowed) > 0 {
		sort.Strings(allowed)
		w.Header().Set("Allow", strings.Join(append(allowed, http.MethodOptions), ", "))
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method Not Allowed"})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not Found"})
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func match(pattern, path []string) (map[string]string, bool) {
	if len(pattern) != len(path) || len(pattern) == 0 {
		return nil, false
	}
	var params map[string]string
	for i, seg := range pattern {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if path[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[seg[1:len(seg)-1]] = path[i]
			continue
		}
		if seg != path[i] {
			return nil, false
		}
	}
	return params, true
}
