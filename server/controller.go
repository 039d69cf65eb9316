package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Controller exposes a route table that the App mounts under the API prefix.
type Controller interface {
	// Path is the sub-path below the prefix; empty mounts at the prefix itself.
	Path() string
	// Routes registers the controller's handlers on r.
	Routes(r chi.Router)
}

// HandlerFunc is a handler that may fail. A returned error, or a panic, is
// forwarded to the App's error stage.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

func (h HandlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			Forward(w, r, fmt.Errorf("panic: %v", rec))
		}
	}()
	if err := h(w, r); err != nil {
		Forward(w, r, err)
	}
}

// Handle adapts h for chi's method helpers.
func Handle(h HandlerFunc) http.HandlerFunc { return h.ServeHTTP }

// controllerRouter builds the standalone route table of one controller.
// Requests it has no route for are reported as a miss instead of answered.
func controllerRouter(c Controller) chi.Router {
	r := chi.NewRouter()
	if p := c.Path(); p != "" && p != "/" {
		r.Route(p, c.Routes)
	} else {
		c.Routes(r)
	}
	// Set after the routes so the handlers reach every nested subrouter.
	r.NotFound(markMiss)
	r.MethodNotAllowed(markMiss)
	return r
}

type routeMissKey struct{}

type routeMiss struct{ missed bool }

func markMiss(w http.ResponseWriter, r *http.Request) {
	if m, ok := r.Context().Value(routeMissKey{}).(*routeMiss); ok {
		m.missed = true
		return
	}
	Forward(w, r, cannotRoute(r))
}

func cannotRoute(r *http.Request) *HTTPError {
	return NotFound(fmt.Sprintf("Cannot %s %s", r.Method, r.URL.Path))
}

// dispatcher serves the API prefix. Controllers are tried in mount order and
// the first one with a route for the method and path handles the request;
// a method mismatch falls through to the next controller. HEAD falls back to
// a controller's GET route.
type dispatcher struct {
	routers []chi.Router
}

func (d *dispatcher) add(r chi.Router) { d.routers = append(d.routers, r) }

func (d *dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parent := chi.RouteContext(r.Context())
	for _, sub := range d.routers {
		if d.try(sub, w, r, parent, r.Method) {
			return
		}
		if r.Method == http.MethodHead && d.try(sub, w, r, parent, http.MethodGet) {
			return
		}
	}
	Forward(w, r, cannotRoute(r))
}

// try routes r through sub with a fresh routing context, so a miss leaves no
// state behind for the next controller.
func (d *dispatcher) try(sub chi.Router, w http.ResponseWriter, r *http.Request, parent *chi.Context, method string) bool {
	rctx := chi.NewRouteContext()
	rctx.RoutePath = "/"
	if parent != nil {
		rctx.Routes = parent.Routes
		if parent.RoutePath != "" {
			rctx.RoutePath = parent.RoutePath
		}
		rctx.RoutePatterns = append(rctx.RoutePatterns, parent.RoutePatterns...)
		rctx.URLParams.Keys = append(rctx.URLParams.Keys, parent.URLParams.Keys...)
		rctx.URLParams.Values = append(rctx.URLParams.Values, parent.URLParams.Values...)
	}
	rctx.RouteMethod = method

	miss := &routeMiss{}
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, routeMissKey{}, miss)
	sub.ServeHTTP(w, r.WithContext(ctx))
	return !miss.missed
}
