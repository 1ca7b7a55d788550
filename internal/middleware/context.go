package middleware

import (
	"context"

	"github.com/deppfellow/osmcha-backend/internal/logger"
	"github.com/deppfellow/osmcha-backend/internal/models"
	"github.com/deppfellow/osmcha-backend/internal/server"
	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"
)

const (
	// UserKey is the Echo context key under which the auth middleware
	// stores the resolved *models.User.
	UserKey = "user"

	// LoggerKey is used as the key for storing the request-scoped logger.
	LoggerKey = "logger"
)

// ContextEnhancer enriches each request with a request-scoped logger
// carrying request_id, method, path, ip, trace.id/span.id when a New
// Relic transaction exists, and the username when auth already ran. The
// logger is stored in both the Echo context and the Go request context.
type ContextEnhancer struct {
	server *server.Server
}

// NewContextEnhancer creates a new ContextEnhancer using the app Server container.
func NewContextEnhancer(s *server.Server) *ContextEnhancer {
	return &ContextEnhancer{server: s}
}

// EnhanceContext returns the Echo middleware performing the enrichment.
func (ce *ContextEnhancer) EnhanceContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := GetRequestID(c)

			contextLogger := ce.server.Logger.With().
				Str("request_id", requestID).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Str("ip", c.RealIP()).
				Logger()

			if txn := newrelic.FromContext(c.Request().Context()); txn != nil {
				contextLogger = logger.WithTraceContext(contextLogger, txn)
			}

			if user := GetUser(c); user != nil {
				contextLogger = contextLogger.With().
					Int64("user_id", user.ID).
					Str("username", user.Username).
					Logger()
			}

			c.Set(LoggerKey, &contextLogger)

			// Also store the logger in the Go request context so code
			// that only sees context.Context (repositories, jobs) can
			// fetch it.
			ctx := context.WithValue(c.Request().Context(), LoggerKey, &contextLogger)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// GetUser retrieves the authenticated user from Echo context, or nil for
// an anonymous request.
func GetUser(c echo.Context) *models.User {
	if user, ok := c.Get(UserKey).(*models.User); ok {
		return user
	}
	return nil
}

// IsStaff reports whether the request is authenticated as a staff user.
func IsStaff(c echo.Context) bool {
	user := GetUser(c)
	return user != nil && user.IsStaff
}

// GetLogger retrieves the request-scoped logger from Echo context.
// If EnhanceContext did not run, it returns a no-op logger.
func GetLogger(c echo.Context) *zerolog.Logger {
	if logger, ok := c.Get(LoggerKey).(*zerolog.Logger); ok {
		return logger
	}

	logger := zerolog.Nop()
	return &logger
}
