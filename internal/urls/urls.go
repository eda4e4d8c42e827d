// Package urls maps request paths to handlers with a two level table: an
// outer table of path prefixes, each including a sub-table, and inner tables
// mapping the rest of the path exactly to a handler.
//
// Routes are written without a leading slash ("", "admin/", "login/"), as
// they are in URL configuration files. A table's exact routes are tried
// before its includes. The longest matching include wins and commits the
// request to its sub-table; inside a table only exact matches count. An
// unmatched GET or HEAD request whose path plus a trailing slash resolves is
// redirected there.
package urls

import (
	"context"
	"errors"
	"fmt"
	"hello/pkg/controller"
	"hello/pkg/serrors"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/gorilla/mux"
)

// Pattern is one entry of a URL table, built with Path, Include or Fallback.
type Pattern struct {
	route    string
	name     string
	handler  http.Handler
	children []Pattern
	include  bool
	fallback bool
}

// Path maps route exactly to handler. name may be empty; non-empty names are
// used by Reverse and must be unique across the whole table.
func Path(route string, handler http.Handler, name string) Pattern {
	return Pattern{route: route, handler: handler, name: name}
}

// Include maps every path starting with prefix to the sub-table patterns.
// prefix must be empty or end with a slash.
func Include(prefix string, patterns ...Pattern) Pattern {
	return Pattern{route: prefix, children: patterns, include: true}
}

// Fallback sets the handler for paths under the enclosing include that match
// no route of its table. Without one those paths get 404.
func Fallback(handler http.Handler) Pattern {
	return Pattern{handler: handler, fallback: true}
}

// Match describes how a path resolved.
type Match struct {
	// Route is the full route pattern, or the include prefix for a fallback.
	Route string
	// Name is the route name, empty for unnamed routes and fallbacks.
	Name    string
	Handler http.Handler
	// Fallback is set when Handler is a sub-table fallback.
	Fallback bool
}

// Label is the value recorded as the route of a request in logs and metrics.
func (m Match) Label() string {
	if m.Name != "" {
		return m.Name
	}
	if m.Fallback {
		return m.Route + "*"
	}

	return m.Route
}

// tableEnd terminates a sub-table so an unmatched path never escapes to a
// shorter include. handler is the table's fallback, if any.
type tableEnd struct {
	prefix  string
	handler http.Handler
}

func (t *tableEnd) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.handler.ServeHTTP(w, r)
}

// Resolver dispatches requests through a URL table.
type Resolver struct {
	// Debug lists the known routes in 404 responses.
	Debug bool

	router *mux.Router
	names  map[string]string
	routes []string
}

// New validates patterns and builds a Resolver. Duplicate routes, duplicate
// names and malformed prefixes are rejected.
func New(patterns ...Pattern) (*Resolver, error) {
	r := &Resolver{
		router: mux.NewRouter(),
		names:  map[string]string{},
	}
	seen := map[string]bool{}
	if err := r.build(r.router, "", patterns, seen, true); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Resolver) build(router *mux.Router, base string, patterns []Pattern, seen map[string]bool, top bool) error {
	var (
		includes []Pattern
		paths    []Pattern
		fallback http.Handler
		prefixes = map[string]bool{}
	)

	for _, p := range patterns {
		if strings.HasPrefix(p.route, "/") || strings.ContainsAny(p.route, "{}") {
			return fmt.Errorf("invalid route %q: routes have no leading slash and no variables", base+p.route)
		}

		switch {
		case p.fallback:
			if top {
				return errors.New("fallback is only allowed inside an include")
			}
			if fallback != nil {
				return fmt.Errorf("include %q declares more than one fallback", base)
			}
			if p.handler == nil {
				return fmt.Errorf("include %q has a nil fallback handler", base)
			}
			fallback = p.handler
		case p.include:
			if p.route != "" && !strings.HasSuffix(p.route, "/") {
				return fmt.Errorf("include prefix %q must end with a slash", base+p.route)
			}
			if prefixes[p.route] {
				return fmt.Errorf("duplicate include prefix %q", base+p.route)
			}
			prefixes[p.route] = true
			includes = append(includes, p)
		default:
			full := base + p.route
			if p.handler == nil {
				return fmt.Errorf("route %q has a nil handler", full)
			}
			if seen[full] {
				return fmt.Errorf("duplicate route %q", full)
			}
			seen[full] = true
			if p.name != "" {
				if _, dup := r.names[p.name]; dup {
					return fmt.Errorf("duplicate route name %q", p.name)
				}
				r.names[p.name] = "/" + full
			}
			r.routes = append(r.routes, full)
			paths = append(paths, p)
		}
	}

	// mux tries routes in registration order: exact paths of this table come
	// first so an include, even an empty one, cannot shadow them
	for _, p := range paths {
		route := router.Path("/" + p.route).Handler(p.handler)
		if p.name != "" {
			route.Name(p.name)
		}
	}

	// then includes, longest prefix first
	sort.SliceStable(includes, func(i, j int) bool {
		return len(includes[i].route) > len(includes[j].route)
	})
	for _, inc := range includes {
		// mux joins subrouter templates onto the parent prefix
		sub := router.PathPrefix("/" + inc.route).Subrouter()
		if err := r.build(sub, base+inc.route, inc.children, seen, false); err != nil {
			return err
		}
	}

	if !top {
		router.NotFoundHandler = &tableEnd{prefix: base, handler: fallback}
	}

	return nil
}

// Routes returns every exact route in registration order.
func (r *Resolver) Routes() []string {
	return append([]string(nil), r.routes...)
}

// Resolve finds the handler for path.
func (r *Resolver) Resolve(path string) (Match, bool) {
	req := &http.Request{Method: http.MethodGet, URL: &url.URL{Path: path}}

	var rm mux.RouteMatch
	if !r.router.Match(req, &rm) {
		return Match{}, false
	}

	if end, ok := rm.Handler.(*tableEnd); ok {
		if end.handler == nil {
			return Match{}, false
		}

		return Match{Route: end.prefix, Handler: end.handler, Fallback: true}, true
	}
	if rm.MatchErr != nil || rm.Route == nil {
		return Match{}, false
	}

	tpl, _ := rm.Route.GetPathTemplate()

	return Match{
		Route:   strings.TrimPrefix(tpl, "/"),
		Name:    rm.Route.GetName(),
		Handler: rm.Handler,
	}, true
}

// Reverse returns the path of the route called name.
func (r *Resolver) Reverse(name string) (string, error) {
	p, ok := r.names[name]
	if !ok {
		return "", serrors.With(serrors.ErrNotFound, "no route named %q", name)
	}

	return p, nil
}

type ctxKey struct{}

// FromContext returns the Resolver dispatching the current request.
func FromContext(ctx context.Context) (*Resolver, bool) {
	r, ok := ctx.Value(ctxKey{}).(*Resolver)

	return r, ok
}

// ServeHTTP dispatches req to the handler its path resolves to, records the
// route for logs and metrics, and answers 404 when nothing matches.
func (r *Resolver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctx := context.WithValue(req.Context(), ctxKey{}, r)
	req = req.WithContext(ctx)

	m, ok := r.Resolve(req.URL.Path)
	if ok {
		controller.SetRoute(ctx, m.Label())
		m.Handler.ServeHTTP(w, req)

		return
	}

	if r.AppendSlash(w, req) {
		return
	}
	r.NotFound(w, req)
}

// AppendSlash redirects GET and HEAD requests to path + "/" when that path
// resolves to a route. It reports whether it answered the request.
func (r *Resolver) AppendSlash(w http.ResponseWriter, req *http.Request) bool {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return false
	}
	if strings.HasSuffix(req.URL.Path, "/") {
		return false
	}

	m, ok := r.Resolve(req.URL.Path + "/")
	if !ok || m.Fallback {
		return false
	}

	target := req.URL.Path + "/"
	if req.URL.RawQuery != "" {
		target += "?" + req.URL.RawQuery
	}
	http.Redirect(w, req, target, http.StatusMovedPermanently)

	return true
}

// NotFound answers 404. In debug mode the body lists the known routes.
func (r *Resolver) NotFound(w http.ResponseWriter, req *http.Request) {
	err := serrors.With(serrors.ErrNotFound, "no route matches %q; known routes: %s",
		req.URL.Path, strings.Join(r.quotedRoutes(), ", "))
	controller.WriteError(w, req, err, r.Debug)
}

func (r *Resolver) quotedRoutes() []string {
	out := make([]string, len(r.routes))
	for i, route := range r.routes {
		out[i] = fmt.Sprintf("%q", "/"+route)
	}

	return out
}

// AppendSlash is Resolver.AppendSlash for the resolver serving req.
func AppendSlash(w http.ResponseWriter, req *http.Request) bool {
	r, ok := FromContext(req.Context())

	return ok && r.AppendSlash(w, req)
}

// NotFound is Resolver.NotFound for the resolver serving req, or a plain 404
// outside of one.
func NotFound(w http.ResponseWriter, req *http.Request) {
	if r, ok := FromContext(req.Context()); ok {
		r.NotFound(w, req)

		return
	}
	controller.WriteError(w, req, serrors.KindOnly(serrors.ErrNotFound), false)
}

// Reverse is Resolver.Reverse for the resolver serving ctx's request.
func Reverse(ctx context.Context, name string) (string, error) {
	r, ok := FromContext(ctx)
	if !ok {
		return "", errors.New("no url resolver in context")
	}

	return r.Reverse(name)
}
