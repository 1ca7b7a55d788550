package handler

import (
	"github.com/deppfellow/osmcha-backend/internal/middleware"
	"github.com/deppfellow/osmcha-backend/internal/models"
	"github.com/deppfellow/osmcha-backend/internal/server"
	"github.com/deppfellow/osmcha-backend/internal/service"
	"github.com/labstack/echo/v4"
)

// WhitelistHandler serves the per-reviewer trusted editor list.
type WhitelistHandler struct {
	Handler
	service *service.WhitelistService
}

// NewWhitelistHandler constructs a WhitelistHandler.
func NewWhitelistHandler(s *server.Server, svc *service.WhitelistService) *WhitelistHandler {
	return &WhitelistHandler{
		Handler: NewHandler(s),
		service: svc,
	}
}

// List serves the calling reviewer's whitelist entries.
func (h *WhitelistHandler) List(c echo.Context, _ *EmptyRequest) ([]models.UserWhitelist, error) {
	user := middleware.GetUser(c)
	return h.service.List(c.Request().Context(), user)
}

// AddWhitelistRequest names the editor to trust.
type AddWhitelistRequest struct {
	WhitelistUser string `json:"whitelist_user" validate:"required,max=1000"`
}

func (r *AddWhitelistRequest) Validate() error {
	return validate.Struct(r)
}

// Add records an editor as trusted by the calling reviewer.
func (h *WhitelistHandler) Add(c echo.Context, req *AddWhitelistRequest) (*models.UserWhitelist, error) {
	user := middleware.GetUser(c)
	return h.service.Add(c.Request().Context(), user, req.WhitelistUser)
}

// RemoveWhitelistRequest names the editor to remove.
type RemoveWhitelistRequest struct {
	WhitelistUser string `param:"username" validate:"required"`
}

func (r *RemoveWhitelistRequest) Validate() error {
	return validate.Struct(r)
}

// Remove deletes one whitelist entry.
func (h *WhitelistHandler) Remove(c echo.Context, req *RemoveWhitelistRequest) error {
	user := middleware.GetUser(c)
	return h.service.Remove(c.Request().Context(), user, req.WhitelistUser)
}
