// Package router initializes the HTTP router (using Echo).
//
// It registers the middlewares and defines the API route groups,
// mapping specific paths to their corresponding handlers.
package router

import (
	"github.com/deppfellow/osmcha-backend/internal/handler"
	"github.com/deppfellow/osmcha-backend/internal/middleware"
	"github.com/labstack/echo/v4"
)

// New builds the Echo instance with the full middleware chain and all
// route groups registered.
func New(h *handler.Handlers, m *middleware.Middlewares) *echo.Echo {
	r := echo.New()
	r.HideBanner = true
	r.HidePort = true

	r.HTTPErrorHandler = m.Global.GlobalErrorHandler

	r.Use(
		middleware.RequestID(),
		m.Tracing.NewRelicMiddleware(),
		m.ContextEnhancer.EnhanceContext(),
		m.Tracing.EnhanceTracing(),
		m.Global.CORS(),
		m.Global.RequestLogger(),
		m.Global.Recover(),
		m.Global.Secure(),
	)

	registerSystemRoutes(r, h)
	registerAPIRoutes(r, h, m)

	return r
}
