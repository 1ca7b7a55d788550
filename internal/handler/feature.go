package handler

import (
	"fmt"

	"github.com/deppfellow/osmcha-backend/internal/middleware"
	"github.com/deppfellow/osmcha-backend/internal/models"
	"github.com/deppfellow/osmcha-backend/internal/repository"
	"github.com/deppfellow/osmcha-backend/internal/server"
	"github.com/deppfellow/osmcha-backend/internal/service"
	"github.com/deppfellow/osmcha-backend/internal/validation"
	"github.com/labstack/echo/v4"
)

// FeatureHandler serves the suspicious feature listing and review
// endpoints. Features are addressed by changeset id plus the
// "{osm_type}-{osm_id}" slug.
type FeatureHandler struct {
	Handler
	service *service.FeatureService
}

// NewFeatureHandler constructs a FeatureHandler.
func NewFeatureHandler(s *server.Server, svc *service.FeatureService) *FeatureHandler {
	return &FeatureHandler{
		Handler: NewHandler(s),
		service: svc,
	}
}

// ListFeaturesRequest carries the feature feed query parameters.
type ListFeaturesRequest struct {
	Changesets string `query:"changesets"`
	OSMType    string `query:"osm_type"`
	Checked    string `query:"checked"`
	Harmful    string `query:"harmful"`
	Reasons    string `query:"reasons"`
	CheckedBy  string `query:"checked_by"`
	InBBox     string `query:"in_bbox"`

	OrderBy  string `query:"order_by"`
	Page     int    `query:"page"`
	PageSize int    `query:"page_size"`
}

func (r *ListFeaturesRequest) Validate() error {
	if r.OSMType != "" && !models.ValidOSMType(r.OSMType) {
		return validation.CustomValidationErrors{{
			Field:   "osm_type",
			Message: "must be one of: node way relation",
		}}
	}
	return nil
}

func (r *ListFeaturesRequest) toFilter(anonymous bool) (*repository.FeatureFilter, error) {
	filter := &repository.FeatureFilter{
		OSMType:  r.OSMType,
		OrderBy:  r.OrderBy,
		Page:     r.Page,
		PageSize: r.PageSize,
	}

	var err error
	if filter.ChangesetIDs, err = parseIDListParam("changesets", r.Changesets); err != nil {
		return nil, err
	}
	if r.Reasons == "None" {
		filter.NoReasons = true
	} else if filter.Reasons, err = parseIDListParam("reasons", r.Reasons); err != nil {
		return nil, err
	}
	if filter.Checked, err = parseBoolParam("checked", r.Checked); err != nil {
		return nil, err
	}
	if filter.Harmful, err = parseBoolParam("harmful", r.Harmful); err != nil {
		return nil, err
	}
	if filter.BBox, err = parseBBoxParam("in_bbox", r.InBBox); err != nil {
		return nil, err
	}
	if !anonymous {
		filter.CheckedBy = validation.ParseStringList(r.CheckedBy)
	}
	return filter, nil
}

// List serves the filterable feature feed, newest changesets first.
func (h *FeatureHandler) List(c echo.Context, req *ListFeaturesRequest) (*FeatureCollection, error) {
	user := middleware.GetUser(c)

	filter, err := req.toFilter(user == nil)
	if err != nil {
		return nil, err
	}
	filter.Normalize()

	features, total, err := h.service.List(c.Request().Context(), filter)
	if err != nil {
		return nil, err
	}

	opts := serializerOptions{anonymous: user == nil, staff: middleware.IsStaff(c)}
	out := make([]GeoJSONFeature, 0, len(features))
	for i := range features {
		out = append(out, serializeFeature(&features[i], opts))
	}

	next, previous := paginationLinks(c, filter.Page, filter.PageSize, total)
	return newFeatureCollection(out, total, next, previous), nil
}

// GetFeatureRequest identifies one feature inside a changeset.
type GetFeatureRequest struct {
	ChangesetID int64  `param:"changeset" validate:"required"`
	URL         string `param:"slug" validate:"required"`
}

func (r *GetFeatureRequest) Validate() error {
	return validate.Struct(r)
}

// Get serves one feature with its reasons and geometry.
func (h *FeatureHandler) Get(c echo.Context, req *GetFeatureRequest) (*GeoJSONFeature, error) {
	feature, err := h.service.Get(c.Request().Context(), req.ChangesetID, req.URL)
	if err != nil {
		return nil, err
	}

	user := middleware.GetUser(c)
	out := serializeFeature(feature, serializerOptions{
		anonymous: user == nil,
		staff:     middleware.IsStaff(c),
	})
	return &out, nil
}

// SetHarmful marks the feature reviewed and harmful.
func (h *FeatureHandler) SetHarmful(c echo.Context, req *GetFeatureRequest) (map[string]string, error) {
	return h.setCheck(c, req, true)
}

// SetGood marks the feature reviewed and not harmful.
func (h *FeatureHandler) SetGood(c echo.Context, req *GetFeatureRequest) (map[string]string, error) {
	return h.setCheck(c, req, false)
}

func (h *FeatureHandler) setCheck(c echo.Context, req *GetFeatureRequest, harmful bool) (map[string]string, error) {
	user := middleware.GetUser(c)
	if err := h.service.SetCheck(c.Request().Context(), user, req.ChangesetID, req.URL, harmful); err != nil {
		return nil, err
	}
	return map[string]string{"detail": fmt.Sprintf("Feature %s checked", req.URL)}, nil
}

// Uncheck clears the feature review verdict.
func (h *FeatureHandler) Uncheck(c echo.Context, req *GetFeatureRequest) (map[string]string, error) {
	user := middleware.GetUser(c)
	if err := h.service.Uncheck(c.Request().Context(), user, req.ChangesetID, req.URL); err != nil {
		return nil, err
	}
	return map[string]string{"detail": fmt.Sprintf("Feature %s unchecked", req.URL)}, nil
}
