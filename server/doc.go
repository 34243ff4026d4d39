// Package server provides the podflow HTTP server: Gin behind an h2c
// handler so REST, SSE and HTTP/2 cleartext share one port.
//
// # Middleware
//
// Built-in middleware (server/middleware) wraps the whole handler, so it
// also covers anything mounted with Handle:
//
//   - Recovery: panic recovery with structured logging
//   - RequestID: X-Request-Id generation and propagation
//   - CORS: cross-origin headers and preflight
//   - BodySizeLimit: request body size limits
//   - RequestLogger: request logging with duration
//
// RateLimit is a Gin middleware for route groups.
//
// # Endpoints
//
// Built-in endpoints (server/endpoint):
//
//   - /health: component health aggregation
//   - /ready: readiness probe
//   - /alive: liveness probe
//   - /info: service and build information
//   - /metrics: runtime memory and goroutine figures
//   - /version: build version information
package server
