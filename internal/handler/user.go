package handler

import (
	"github.com/deppfellow/osmcha-backend/internal/middleware"
	"github.com/deppfellow/osmcha-backend/internal/models"
	"github.com/deppfellow/osmcha-backend/internal/server"
	"github.com/deppfellow/osmcha-backend/internal/service"
	"github.com/labstack/echo/v4"
)

// UserHandler serves account provisioning and self-service endpoints.
type UserHandler struct {
	Handler
	service *service.UserService
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(s *server.Server, svc *service.UserService) *UserHandler {
	return &UserHandler{
		Handler: NewHandler(s),
		service: svc,
	}
}

// ProvisionUserRequest describes the account to create.
type ProvisionUserRequest struct {
	Username string `json:"username" validate:"required,max=1000"`
	UID      string `json:"uid"`
	Email    string `json:"email" validate:"omitempty,email"`
	IsStaff  bool   `json:"is_staff"`
}

func (r *ProvisionUserRequest) Validate() error {
	return validate.Struct(r)
}

// Provision creates a reviewer account and mints its API token. The raw
// token is only returned here; the database stores its hash.
func (h *UserHandler) Provision(c echo.Context, req *ProvisionUserRequest) (map[string]any, error) {
	user := &models.User{
		Username: req.Username,
		OSMUID:   req.UID,
		Email:    req.Email,
		IsStaff:  req.IsStaff,
		IsActive: true,
	}

	created, token, err := h.service.Provision(c.Request().Context(), user)
	if err != nil {
		return nil, err
	}

	response := serializeUser(created)
	response["token"] = token
	return response, nil
}

// CurrentUser serves the authenticated account.
func (h *UserHandler) CurrentUser(c echo.Context, _ *EmptyRequest) (map[string]any, error) {
	return serializeUser(middleware.GetUser(c)), nil
}

// UpdateEmailRequest carries the new notification address.
type UpdateEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (r *UpdateEmailRequest) Validate() error {
	return validate.Struct(r)
}

// UpdateEmail changes the authenticated account's email address.
func (h *UserHandler) UpdateEmail(c echo.Context, req *UpdateEmailRequest) (map[string]any, error) {
	user := middleware.GetUser(c)
	if err := h.service.UpdateEmail(c.Request().Context(), user, req.Email); err != nil {
		return nil, err
	}
	user.Email = req.Email
	return serializeUser(user), nil
}
