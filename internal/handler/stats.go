package handler

import (
	"github.com/deppfellow/osmcha-backend/internal/middleware"
	"github.com/deppfellow/osmcha-backend/internal/repository"
	"github.com/deppfellow/osmcha-backend/internal/server"
	"github.com/deppfellow/osmcha-backend/internal/service"
	"github.com/labstack/echo/v4"
)

// StatsHandler serves the aggregated review statistics.
type StatsHandler struct {
	Handler
	service *service.StatsService
}

// NewStatsHandler constructs a StatsHandler.
func NewStatsHandler(s *server.Server, svc *service.StatsService) *StatsHandler {
	return &StatsHandler{
		Handler: NewHandler(s),
		service: svc,
	}
}

// ChangesetStats serves review counts plus per-reason and per-tag
// breakdowns, restricted by the same filters as the changeset feed.
// Hidden labels are stripped for non-staff callers.
func (h *StatsHandler) ChangesetStats(c echo.Context, req *ListChangesetsRequest) (*repository.ChangesetStats, error) {
	user := middleware.GetUser(c)

	filter, err := req.toFilter(user)
	if err != nil {
		return nil, err
	}

	return h.service.ChangesetStats(c.Request().Context(), filter, middleware.IsStaff(c))
}

// UserStatsRequest identifies a mapper by OSM uid.
type UserStatsRequest struct {
	UID string `param:"uid" validate:"required"`
}

func (r *UserStatsRequest) Validate() error {
	return validate.Struct(r)
}

// UserStats serves the review history summary of one mapper.
func (h *StatsHandler) UserStats(c echo.Context, req *UserStatsRequest) (*repository.UserStats, error) {
	return h.service.UserStats(c.Request().Context(), req.UID)
}
