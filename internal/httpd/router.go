package httpd

import (
	"context"
	"fmt"
	"io"
	"sort"
)

// Handler is one of the closed set of route handlers: Body or Stream.
type Handler interface {
	serve(ctx context.Context, w io.Writer, args []string) error
}

// Body renders a complete response body.
type Body func(args []string) []byte

func (h Body) serve(_ context.Context, w io.Writer, args []string) error {
	_, err := w.Write(h(args))
	return err
}

// Stream writes an open-ended body. It returns when the source is exhausted,
// a write fails, or ctx is done.
type Stream func(ctx context.Context, w io.Writer, args []string) error

func (h Stream) serve(ctx context.Context, w io.Writer, args []string) error {
	return h(ctx, w, args)
}

// Route binds a path to its response headers and handler. Headers are full
// header lines without the trailing CRLF.
type Route struct {
	Path    string
	Headers []string
	Handler Handler
}

// Router is an immutable path table. Lookups need no synchronization.
type Router struct {
	routes map[string]Route
}

// NewRouter builds the table. Paths must be unique.
func NewRouter(routes ...Route) (*Router, error) {
	table := make(map[string]Route, len(routes))
	for _, rt := range routes {
		if rt.Handler == nil {
			return nil, fmt.Errorf("route %s has no handler", rt.Path)
		}
		if _, dup := table[rt.Path]; dup {
			return nil, fmt.Errorf("duplicate route %s", rt.Path)
		}
		table[rt.Path] = rt
	}
	return &Router{routes: table}, nil
}

// Lookup finds the route for an exact path.
func (r *Router) Lookup(path string) (Route, bool) {
	rt, ok := r.routes[path]
	return rt, ok
}

// Paths lists the registered paths in sorted order.
func (r *Router) Paths() []string {
	paths := make([]string, 0, len(r.routes))
	for p := range r.routes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
