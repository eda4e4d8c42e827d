// Package app assembles the application server: the URL table, the
// middleware chain and the worker pool in front of them.
package app

import (
	"errors"
	"fmt"
	"hello"
	"hello/internal/admin"
	"hello/internal/config"
	"hello/internal/site"
	"hello/internal/urls"
	"hello/internal/workerpool"
	"hello/pkg/controller"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// IndexName is the route name of the greeting.
const IndexName = "index"

// Options holds the application server settings.
type Options struct {
	// Addr is the TCP address the server listens on, e.g. ":8000".
	Addr string
	// ReadTimeout is the maximum duration for reading the entire request, including the body.
	ReadTimeout time.Duration
	// ReadHeaderTimeout is the amount of time allowed to read request headers.
	ReadHeaderTimeout time.Duration
	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration
	// IdleTimeout is the maximum amount of time to wait for the next request when keep-alives are enabled.
	IdleTimeout time.Duration
	// MaxHeaderBytes controls the maximum number of bytes the server
	// will read parsing the request header's keys and values, including the request line.
	MaxHeaderBytes int

	// AllowedHosts are the Host header values answered.
	AllowedHosts []string
	Debug        bool

	// StaticURL is where embedded static files are served when ServeStatic is set.
	StaticURL   string
	ServeStatic bool
}

// NewOptions constructs Options from the application configuration.
func NewOptions(cfg *config.Config) Options {
	return Options{
		Addr:              cfg.HTTP.Addr,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		MaxHeaderBytes:    cfg.HTTP.MaxHeaderBytes,

		AllowedHosts: cfg.AllowedHosts,
		Debug:        cfg.Debug,
		StaticURL:    cfg.Static.URL,
	}
}

// Deps are the application server dependencies.
type Deps struct {
	Admin *admin.Site
	Pool  *workerpool.Pool
	// Meter records request durations. Nil disables them.
	Meter metric.Meter
}

// URLPatterns is the application's URL table.
func URLPatterns(adminSite *admin.Site) []urls.Pattern {
	return []urls.Pattern{
		urls.Path("", http.HandlerFunc(site.Index), IndexName),
		adminSite.URLs(),
	}
}

// NewHandler returns the full handler chain:
// access log, metrics, worker pool, panic recovery, host check, security
// headers and the URL dispatcher.
func NewHandler(deps Deps, opts Options) (http.Handler, error) {
	if deps.Admin == nil || deps.Pool == nil {
		return nil, errors.New("app needs an admin site and a worker pool")
	}

	resolver, err := urls.New(URLPatterns(deps.Admin)...)
	if err != nil {
		return nil, fmt.Errorf("could not build url table: %w", err)
	}
	resolver.Debug = opts.Debug

	var handler http.Handler = resolver
	if opts.ServeStatic {
		handler, err = withStatic(opts.StaticURL, handler)
		if err != nil {
			return nil, err
		}
	}
	handler = controller.WithSecurityHeaders(handler)
	handler = controller.WithAllowedHosts(opts.AllowedHosts, opts.Debug)(handler)
	handler = controller.WithRecover(opts.Debug)(handler)
	handler = deps.Pool.Handler(handler)

	meter := deps.Meter
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("hello")
	}
	withMetrics, err := controller.WithMetrics(meter)
	if err != nil {
		return nil, err //nolint: wrapcheck
	}
	handler = withMetrics(handler)

	return controller.WithLogger(handler), nil
}

// withStatic serves the embedded static files under prefix, the way the
// development server does without a proxy in front.
func withStatic(prefix string, next http.Handler) (http.Handler, error) {
	if !strings.HasPrefix(prefix, "/") || !strings.HasSuffix(prefix, "/") {
		return nil, fmt.Errorf("static url %q must start and end with a slash", prefix)
	}

	static, err := fs.Sub(hello.Static, "static")
	if err != nil {
		return nil, fmt.Errorf("could not open embedded static files: %w", err)
	}
	files := http.StripPrefix(prefix, http.FileServer(http.FS(static)))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, prefix) && !strings.HasSuffix(r.URL.Path, "/") {
			controller.SetRoute(r.Context(), "static")
			files.ServeHTTP(w, r)

			return
		}
		next.ServeHTTP(w, r)
	}), nil
}

// NewServer wires up the application http.Server.
func NewServer(deps Deps, opts Options) (*http.Server, error) {
	handler, err := NewHandler(deps, opts)
	if err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
		MaxHeaderBytes:    opts.MaxHeaderBytes,
	}, nil
}
