package handler

import (
	"github.com/deppfellow/osmcha-backend/internal/middleware"
	"github.com/deppfellow/osmcha-backend/internal/models"
	"github.com/deppfellow/osmcha-backend/internal/server"
	"github.com/deppfellow/osmcha-backend/internal/service"
	"github.com/labstack/echo/v4"
)

// LabelHandler serves the suspicion reason and tag listings.
type LabelHandler struct {
	Handler
	service *service.LabelService
}

// NewLabelHandler constructs a LabelHandler.
func NewLabelHandler(s *server.Server, svc *service.LabelService) *LabelHandler {
	return &LabelHandler{
		Handler: NewHandler(s),
		service: svc,
	}
}

// EmptyRequest is the payload for endpoints without parameters.
type EmptyRequest struct{}

func (r *EmptyRequest) Validate() error {
	return nil
}

// ListReasons serves the suspicion reason catalog. Hidden reasons are
// only included for staff.
func (h *LabelHandler) ListReasons(c echo.Context, _ *EmptyRequest) ([]models.Label, error) {
	return h.service.ListReasons(c.Request().Context(), middleware.IsStaff(c))
}

// ListTags serves the review tag catalog. Hidden tags are only included
// for staff.
func (h *LabelHandler) ListTags(c echo.Context, _ *EmptyRequest) ([]models.Label, error) {
	return h.service.ListTags(c.Request().Context(), middleware.IsStaff(c))
}
