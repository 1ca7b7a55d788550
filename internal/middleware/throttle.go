package middleware

import (
	"fmt"
	"time"

	"github.com/deppfellow/osmcha-backend/internal/errs"
	"github.com/deppfellow/osmcha-backend/internal/server"
	"github.com/labstack/echo/v4"
)

// ThrottleMiddleware enforces the per-reviewer limit on check operations
// (set-harmful, set-good) using a Redis counter per user and minute.
// Staff accounts are exempt.
type ThrottleMiddleware struct {
	server *server.Server
}

// NewThrottleMiddleware constructs a ThrottleMiddleware.
func NewThrottleMiddleware(s *server.Server) *ThrottleMiddleware {
	return &ThrottleMiddleware{
		server: s,
	}
}

// LimitChecks returns middleware that counts a gate pass for the
// authenticated user and rejects with 429 once the per-minute budget is
// exceeded. The counter is shared across all check endpoints. Passes are
// counted before the handler runs, so rejected downstream requests still
// consume budget.
func (t *ThrottleMiddleware) LimitChecks() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := GetUser(c)
			if user == nil {
				// RequireAuth runs before this; nothing to count.
				return next(c)
			}
			if user.IsStaff {
				return next(c)
			}

			limit := t.server.Config.Review.ChecksPerMinute
			if limit <= 0 {
				return next(c)
			}

			ctx := c.Request().Context()
			key := fmt.Sprintf("throttle:check:%d:%d", user.ID, time.Now().Unix()/60)

			count, err := t.server.Redis.Incr(ctx, key).Result()
			if err != nil {
				// Redis down: let the request through rather than
				// blocking all reviews.
				GetLogger(c).Warn().Err(err).Msg("throttle counter unavailable")
				return next(c)
			}
			if count == 1 {
				t.server.Redis.Expire(ctx, key, 2*time.Minute)
			}

			if count > int64(limit) {
				t.RecordThrottleHit(c.Path())
				return errs.NewTooManyRequestsError(
					fmt.Sprintf("Request was throttled. Maximum %d checks per minute", limit),
				)
			}

			return next(c)
		}
	}
}

// RecordThrottleHit emits a New Relic custom event for a throttled
// request, when the agent is configured.
func (t *ThrottleMiddleware) RecordThrottleHit(endpoint string) {
	if t.server.LoggerService != nil && t.server.LoggerService.GetApplication() != nil {
		t.server.LoggerService.GetApplication().RecordCustomEvent("ThrottleHit", map[string]interface{}{
			"endpoint": endpoint,
		})
	}
}
