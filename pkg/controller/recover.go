package controller

import (
	"errors"
	"fmt"
	"hello/pkg/logger"
	"hello/pkg/serrors"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"
)

// WithRecover converts a panic in next into a 500 response. The panic value is
// only exposed to the client when debug is true. http.ErrAbortHandler is
// honoured by dropping the response silently.
func WithRecover(debugMode bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					return
				}

				ctx := r.Context()
				logger.Error(ctx, "captured panic while serving request",
					zap.Any("panic", p),
					zap.ByteString("stack", debug.Stack()))

				WriteError(w, r, serrors.With(serrors.ErrInternal, "panic: %v", p), debugMode)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// WriteError answers with the status mapped from err's semantic kind. The
// error text is included in the body only in debug mode; otherwise the body is
// the generic "<Reason> (<code>)" text.
func WriteError(w http.ResponseWriter, r *http.Request, err error, debugMode bool) {
	status := serrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error(r.Context(), "request failed", zap.Error(err), zap.Int("status_code", status))
	}

	body := fmt.Sprintf("%s (%d)", http.StatusText(status), status)
	if debugMode {
		body += "\n\n" + err.Error()
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body + "\n"))
}
