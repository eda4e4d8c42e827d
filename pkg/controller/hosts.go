package controller

import (
	"hello/pkg/serrors"
	"net"
	"net/http"
	"strings"
)

// debugHosts are accepted when debug is on and no hosts are configured.
var debugHosts = []string{".localhost", "127.0.0.1", "[::1]"} //nolint: gochecknoglobals

// HostAllowed reports whether host (optionally with a port) matches one of
// patterns. A pattern is an exact host name, "*" for any host, or a name with a
// leading dot which matches the domain and all of its subdomains.
func HostAllowed(host string, patterns []string) bool {
	host = strings.ToLower(strings.TrimSuffix(stripPort(host), "."))
	if host == "" {
		return false
	}

	for _, pattern := range patterns {
		pattern = strings.ToLower(pattern)
		switch {
		case pattern == "*":
			return true
		case strings.HasPrefix(pattern, "."):
			if host == pattern[1:] || strings.HasSuffix(host, pattern) {
				return true
			}
		case host == pattern:
			return true
		}
	}

	return false
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		if strings.Contains(h, ":") {
			return "[" + h + "]"
		}

		return h
	}

	return host
}

// WithAllowedHosts rejects requests whose Host header does not match hosts
// with 400 Bad Request. With an empty list and debug on, local hosts are
// accepted.
func WithAllowedHosts(hosts []string, debugMode bool) func(http.Handler) http.Handler {
	patterns := hosts
	if len(patterns) == 0 && debugMode {
		patterns = debugHosts
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HostAllowed(r.Host, patterns) {
				WriteError(w, r, serrors.With(serrors.ErrDisallowedHost, "invalid HTTP_HOST header: %q", r.Host), debugMode)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
