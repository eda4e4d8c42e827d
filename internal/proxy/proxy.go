// Package proxy is the front tier: it serves collected static files from disk
// and forwards everything else to the application server.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"hello/pkg/controller"
	"hello/pkg/logger"
	"hello/pkg/serrors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

var (
	// ErrBadGateway is answered when the upstream cannot be reached.
	ErrBadGateway = serrors.NewKind("BAD_GATEWAY", http.StatusBadGateway)
	// ErrGatewayTimeout is answered when the upstream is too slow to respond.
	ErrGatewayTimeout = serrors.NewKind("GATEWAY_TIMEOUT", http.StatusGatewayTimeout)
	// ErrTooLarge is answered for request bodies above the limit.
	ErrTooLarge = serrors.NewKind("REQUEST_ENTITY_TOO_LARGE", http.StatusRequestEntityTooLarge)
)

// staticMaxAge is how long clients may cache static files.
const staticMaxAge = 30 * 24 * time.Hour

// Options configures the proxy.
type Options struct {
	// Upstream is the application server base URL.
	Upstream string
	// UpstreamTimeout bounds the wait for upstream response headers.
	UpstreamTimeout time.Duration
	// MaxBodyBytes caps request bodies. Zero means no limit.
	MaxBodyBytes int64
	// StaticURL is the path prefix served from StaticRoot. Empty disables static serving.
	StaticURL  string
	StaticRoot string
	// Transport overrides the upstream transport.
	Transport http.RoundTripper
}

// New returns the proxy handler, access log included.
func New(opts Options) (http.Handler, error) {
	upstream, err := url.Parse(opts.Upstream)
	if err != nil {
		return nil, fmt.Errorf("could not parse upstream url: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("upstream url %q needs a scheme and a host", opts.Upstream)
	}

	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: opts.UpstreamTimeout,
		}
	}

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.Out.Host = pr.In.Host
			pr.SetXForwarded()
			pr.Out.Header.Set("X-Real-IP", remoteIP(pr.In))
			if id := controller.RequestID(pr.In.Context()); id != "" {
				pr.Out.Header.Set(controller.RequestIDHeader, id)
			}
		},
		Transport:    transport,
		ErrorHandler: upstreamError,
	}

	router := mux.NewRouter()
	if opts.StaticURL != "" {
		if !strings.HasPrefix(opts.StaticURL, "/") || !strings.HasSuffix(opts.StaticURL, "/") {
			return nil, fmt.Errorf("static url %q must start and end with a slash", opts.StaticURL)
		}
		if err := statRoot(opts.StaticRoot); err != nil {
			return nil, fmt.Errorf("could not serve static files: %w", err)
		}
		router.PathPrefix(opts.StaticURL).Handler(named("static", Static(opts.StaticURL, opts.StaticRoot)))
	}
	router.PathPrefix("/").Handler(named("upstream", limitBody(rp, opts.MaxBodyBytes)))

	return controller.WithLogger(controller.WithRecover(false)(router)), nil
}

func named(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		controller.SetRoute(r.Context(), route)
		next.ServeHTTP(w, r)
	})
}

func remoteIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}

// limitBody rejects requests announcing a body above limit and caps the rest.
func limitBody(next http.Handler, limit int64) http.Handler {
	if limit <= 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > limit {
			controller.WriteError(w, r, serrors.With(ErrTooLarge, "request body of %d bytes exceeds %d", r.ContentLength, limit), false)

			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}

func upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		tooLarge *http.MaxBytesError
		netErr   net.Error
	)
	switch {
	case errors.As(err, &tooLarge):
		err = serrors.Wrap(ErrTooLarge, err, "request body too large")
	case errors.Is(err, context.Canceled):
		// client went away, nothing to answer
		logger.Debug(r.Context(), "client canceled proxied request", zap.Error(err))
		w.WriteHeader(499) //nolint: mnd

		return
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		err = serrors.Wrap(ErrGatewayTimeout, err, "upstream timed out")
	default:
		err = serrors.Wrap(ErrBadGateway, err, "upstream unreachable")
	}

	logger.Warn(r.Context(), "proxy error", zap.Error(err))
	controller.WriteError(w, r, err, false)
}
