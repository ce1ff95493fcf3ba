package server

import (
	"net/http"
	"sort"

	"github.com/ternarybob/docpipe/internal/handlers"
)

// methodRoutes maps HTTP methods to the handler serving them
type methodRoutes map[string]http.HandlerFunc

// allowed lists the methods in a stable order for the Allow header
func (m methodRoutes) allowed() []string {
	methods := make([]string, 0, len(m))
	for method := range m {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return methods
}

// routeByMethod dispatches on r.Method. Unknown methods get the JSON 405
// body every other API error uses.
func routeByMethod(w http.ResponseWriter, r *http.Request, routes methodRoutes) {
	handler, ok := routes[r.Method]
	if !ok {
		handlers.WriteMethodNotAllowed(w, routes.allowed()...)
		return
	}
	handler(w, r)
}

// bindID adapts a handler that takes a path id into a plain handler
func bindID(id string, fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) { fn(w, r, id) }
}
