package router

import (
	"github.com/deppfellow/osmcha-backend/internal/handler"
	"github.com/labstack/echo/v4"
)

// registerSystemRoutes registers endpoints that are not business logic:
// the health check used by load balancers and uptime monitors.
func registerSystemRoutes(r *echo.Echo, h *handler.Handlers) {
	r.GET("/status", h.Health.CheckHealth)
}
