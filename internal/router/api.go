package router

import (
	"net/http"

	"github.com/deppfellow/osmcha-backend/internal/handler"
	"github.com/deppfellow/osmcha-backend/internal/middleware"
	"github.com/labstack/echo/v4"
)

// registerAPIRoutes wires the /api/v1 route groups. Read endpoints take
// optional authentication so identity-dependent fields and filters light
// up when a token is present; mutations require it; ingestion and
// account provisioning are staff-only.
func registerAPIRoutes(r *echo.Echo, h *handler.Handlers, m *middleware.Middlewares) {
	api := r.Group("/api/v1")

	listRequest := func() *handler.ListChangesetsRequest { return &handler.ListChangesetsRequest{} }
	changesetRequest := func() *handler.GetChangesetRequest { return &handler.GetChangesetRequest{} }
	checkRequest := func() *handler.CheckChangesetRequest { return &handler.CheckChangesetRequest{} }
	tagRequest := func() *handler.ChangesetTagRequest { return &handler.ChangesetTagRequest{} }
	emptyRequest := func() *handler.EmptyRequest { return &handler.EmptyRequest{} }

	changesets := api.Group("/changesets", m.Auth.OptionalAuth)
	changesets.GET("", handler.Handle(h.Changesets.Handler, h.Changesets.List, http.StatusOK, listRequest))
	changesets.GET("/suspect", handler.Handle(h.Changesets.Handler, h.Changesets.ListSuspect, http.StatusOK, listRequest))
	changesets.GET("/no-suspect", handler.Handle(h.Changesets.Handler, h.Changesets.ListNoSuspect, http.StatusOK, listRequest))
	changesets.GET("/harmful", handler.Handle(h.Changesets.Handler, h.Changesets.ListHarmful, http.StatusOK, listRequest))
	changesets.GET("/no-harmful", handler.Handle(h.Changesets.Handler, h.Changesets.ListNoHarmful, http.StatusOK, listRequest))
	changesets.GET("/checked", handler.Handle(h.Changesets.Handler, h.Changesets.ListChecked, http.StatusOK, listRequest))
	changesets.GET("/unchecked", handler.Handle(h.Changesets.Handler, h.Changesets.ListUnchecked, http.StatusOK, listRequest))
	changesets.GET("/csv", handler.HandleFile(h.Changesets.Handler, h.Changesets.ExportCSV, http.StatusOK, listRequest, "changesets.csv", "text/csv"))
	changesets.GET("/stats", handler.Handle(h.Stats.Handler, h.Stats.ChangesetStats, http.StatusOK, listRequest))
	changesets.GET("/user-stats/:uid", handler.Handle(h.Stats.Handler, h.Stats.UserStats, http.StatusOK,
		func() *handler.UserStatsRequest { return &handler.UserStatsRequest{} }))
	changesets.GET("/:id", handler.Handle(h.Changesets.Handler, h.Changesets.Get, http.StatusOK, changesetRequest))

	changesets.PUT("/:id/set-harmful", handler.Handle(h.Changesets.Handler, h.Changesets.SetHarmful, http.StatusOK, checkRequest),
		m.Auth.RequireAuth, m.Throttle.LimitChecks())
	changesets.PUT("/:id/set-good", handler.Handle(h.Changesets.Handler, h.Changesets.SetGood, http.StatusOK, checkRequest),
		m.Auth.RequireAuth, m.Throttle.LimitChecks())
	changesets.PUT("/:id/uncheck", handler.Handle(h.Changesets.Handler, h.Changesets.Uncheck, http.StatusOK, changesetRequest),
		m.Auth.RequireAuth)
	changesets.POST("/:id/tags/:tag_id", handler.Handle(h.Changesets.Handler, h.Changesets.AddTag, http.StatusOK, tagRequest),
		m.Auth.RequireAuth)
	changesets.DELETE("/:id/tags/:tag_id", handler.Handle(h.Changesets.Handler, h.Changesets.RemoveTag, http.StatusOK, tagRequest),
		m.Auth.RequireAuth)

	changesets.POST("/add-feature", handler.Handle(h.Ingest.Handler, h.Ingest.AddSuspicion, http.StatusCreated,
		func() *handler.AddSuspicionRequest { return &handler.AddSuspicionRequest{} }),
		m.Auth.RequireStaff)

	featureListRequest := func() *handler.ListFeaturesRequest { return &handler.ListFeaturesRequest{} }
	featureRequest := func() *handler.GetFeatureRequest { return &handler.GetFeatureRequest{} }

	features := api.Group("/features", m.Auth.OptionalAuth)
	features.GET("", handler.Handle(h.Features.Handler, h.Features.List, http.StatusOK, featureListRequest))
	features.POST("", h.Ingest.CreateFeature, m.Auth.RequireStaff)
	features.GET("/:changeset/:slug", handler.Handle(h.Features.Handler, h.Features.Get, http.StatusOK, featureRequest))
	features.PUT("/:changeset/:slug/set-harmful", handler.Handle(h.Features.Handler, h.Features.SetHarmful, http.StatusOK, featureRequest),
		m.Auth.RequireAuth, m.Throttle.LimitChecks())
	features.PUT("/:changeset/:slug/set-good", handler.Handle(h.Features.Handler, h.Features.SetGood, http.StatusOK, featureRequest),
		m.Auth.RequireAuth, m.Throttle.LimitChecks())
	features.PUT("/:changeset/:slug/uncheck", handler.Handle(h.Features.Handler, h.Features.Uncheck, http.StatusOK, featureRequest),
		m.Auth.RequireAuth)

	api.GET("/suspicion-reasons", handler.Handle(h.Labels.Handler, h.Labels.ListReasons, http.StatusOK, emptyRequest),
		m.Auth.OptionalAuth)
	api.GET("/tags", handler.Handle(h.Labels.Handler, h.Labels.ListTags, http.StatusOK, emptyRequest),
		m.Auth.OptionalAuth)

	whitelist := api.Group("/whitelist-user", m.Auth.RequireAuth)
	whitelist.GET("", handler.Handle(h.Whitelists.Handler, h.Whitelists.List, http.StatusOK, emptyRequest))
	whitelist.POST("", handler.Handle(h.Whitelists.Handler, h.Whitelists.Add, http.StatusCreated,
		func() *handler.AddWhitelistRequest { return &handler.AddWhitelistRequest{} }))
	whitelist.DELETE("/:username", handler.HandleNoContent(h.Whitelists.Handler, h.Whitelists.Remove, http.StatusNoContent,
		func() *handler.RemoveWhitelistRequest { return &handler.RemoveWhitelistRequest{} }))

	api.POST("/users", handler.Handle(h.Users.Handler, h.Users.Provision, http.StatusCreated,
		func() *handler.ProvisionUserRequest { return &handler.ProvisionUserRequest{} }),
		m.Auth.RequireStaff)
	api.GET("/users/me", handler.Handle(h.Users.Handler, h.Users.CurrentUser, http.StatusOK, emptyRequest),
		m.Auth.RequireAuth)
	api.PATCH("/users/me", handler.Handle(h.Users.Handler, h.Users.UpdateEmail, http.StatusOK,
		func() *handler.UpdateEmailRequest { return &handler.UpdateEmailRequest{} }),
		m.Auth.RequireAuth)
}
