// Package controller contains the HTTP middlewares shared by the application
// server and the reverse proxy.
//
// Provided middlewares:
//   - WithLogger: request ID, trace ID and route name in a request-scoped logger, plus an access log.
//   - WithMetrics: request count and latency through an OpenTelemetry meter.
//   - WithRecover: turns handler panics into 500 responses.
//   - WithAllowedHosts: rejects requests whose Host header is not allowed.
//   - WithSecurityHeaders: nosniff, frame denial and referrer policy headers.
//
// Provided helpers:
//   - GetClientIP, SetRoute/Route, WriteError.
package controller
