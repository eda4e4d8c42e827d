// Package ops serves the operator listener: liveness and readiness probes,
// prometheus metrics, the public API docs and, in debug mode, pprof. It runs
// on its own address so the public URL table keeps exactly its routes.
package ops

import (
	"context"
	_ "embed"
	"errors"
	"hello/internal/config"
	"hello/pkg/controller"
	"hello/pkg/logger"
	"net/http"
	"net/http/pprof"
	"sort"
	"time"

	"github.com/go-faster/jx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggest/swgui/v5emb"
	"go.uber.org/zap"
)

//go:embed openapi.yaml
var openAPISpec []byte

const (
	specPath = "/specs/openapi.yaml"
	docsPath = "/docs/"
)

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the ops server.
type Options struct {
	Addr string
	// Debug mounts pprof under /debug/pprof/.
	Debug bool
	// CheckTimeout bounds each readiness check.
	CheckTimeout time.Duration
}

// NewOptions reads Options from cfg.
func NewOptions(cfg *config.Config) Options {
	return Options{
		Addr:         cfg.Ops.Addr,
		Debug:        cfg.Debug,
		CheckTimeout: 2 * time.Second,
	}
}

// Deps are the ops server dependencies.
type Deps struct {
	// Gatherer is scraped by /metrics.
	Gatherer prometheus.Gatherer
	// Checks are pinged by /readyz, keyed by name.
	Checks map[string]Pinger
}

// NewServer returns the ops http.Server.
func NewServer(deps Deps, opts Options) (*http.Server, error) {
	if deps.Gatherer == nil {
		return nil, errors.New("ops server needs a metrics gatherer")
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 2 * time.Second
	}

	return &http.Server{
		Addr:              opts.Addr,
		Handler:           controller.WithLogger(Handler(deps, opts)),
		ReadHeaderTimeout: 5 * time.Second,
	}, nil
}

// Handler returns the ops routes.
func Handler(deps Deps, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, http.StatusOK, nil)
	})
	mux.Handle("/readyz", readiness(deps.Checks, opts.CheckTimeout))

	mux.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc(specPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(openAPISpec)
	})
	mux.Handle(docsPath, v5emb.New("hello", specPath, docsPath))

	if opts.Debug {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	return mux
}

func readiness(checks map[string]Pinger, timeout time.Duration) http.Handler {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results := make([]checkResult, 0, len(names))
		status := http.StatusOK
		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			err := checks[name].Ping(ctx)
			cancel()

			if err != nil {
				logger.Warn(r.Context(), "readiness check failed", zap.String("check", name), zap.Error(err))
				status = http.StatusServiceUnavailable
			}
			results = append(results, checkResult{name: name, err: err})
		}

		writeHealth(w, status, results)
	})
}

type checkResult struct {
	name string
	err  error
}

func writeHealth(w http.ResponseWriter, status int, checks []checkResult) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) {
			if status == http.StatusOK {
				e.Str("ok")
			} else {
				e.Str("unavailable")
			}
		})
		if checks == nil {
			return
		}
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, c := range checks {
					e.Field(c.name, func(e *jx.Encoder) {
						if c.err == nil {
							e.Str("ok")
						} else {
							e.Str(c.err.Error())
						}
					})
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
