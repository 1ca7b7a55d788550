package middleware

import (
	"github.com/deppfellow/osmcha-backend/internal/server"
	"github.com/newrelic/go-agent/v3/newrelic"
)

// Middlewares is a lightweight container that groups all middleware
// components used by the HTTP server, so shared dependencies
// (*server.Server, the New Relic application) are wired in one place.
type Middlewares struct {
	// Global holds common middleware used across the whole API:
	// CORS, request logging, recovery, secure headers, and the global error handler.
	Global *GlobalMiddlewares

	// Auth resolves API tokens into user accounts and attaches them to
	// the request context.
	Auth *AuthMiddleware

	// ContextEnhancer enriches each request with a request-scoped logger
	// (request_id, method, path, ip, optional user & trace metadata).
	ContextEnhancer *ContextEnhancer

	// Tracing provides New Relic middleware and helpers to attach custom attributes
	// and notice errors on transactions.
	Tracing *TracingMiddleware

	// Throttle enforces the per-reviewer limit on check operations.
	Throttle *ThrottleMiddleware
}

// NewMiddlewares constructs all middleware components using the
// application container. The users store backs token authentication.
//
// When New Relic is not configured nrApp is nil and the tracing
// middleware degrades into a no-op.
func NewMiddlewares(s *server.Server, users UserStore) *Middlewares {
	var nrApp *newrelic.Application
	if s.LoggerService != nil {
		nrApp = s.LoggerService.GetApplication()
	}

	return &Middlewares{
		Global:          NewGlobalMiddlewares(s),
		Auth:            NewAuthMiddleware(s, users),
		ContextEnhancer: NewContextEnhancer(s),
		Tracing:         NewTracingMiddleware(s, nrApp),
		Throttle:        NewThrottleMiddleware(s),
	}
}
