package handler

import (
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/deppfellow/osmcha-backend/internal/models"
	"github.com/labstack/echo/v4"
)

// GeoJSONFeature is one serialized changeset or feature.
type GeoJSONFeature struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// FeatureCollection is the paginated GeoJSON list envelope.
type FeatureCollection struct {
	Type     string           `json:"type"`
	Count    int64            `json:"count"`
	Next     *string          `json:"next"`
	Previous *string          `json:"previous"`
	Features []GeoJSONFeature `json:"features"`
}

// serializerOptions control field visibility. Anonymous requests never
// see mapper or reviewer identities; hidden labels are staff-only.
type serializerOptions struct {
	anonymous bool
	staff     bool
}

func serializeLabels(labels []models.Label, staff bool) []map[string]any {
	out := make([]map[string]any, 0, len(labels))
	for _, label := range labels {
		if !label.IsVisible && !staff {
			continue
		}
		out = append(out, map[string]any{
			"id":   label.ID,
			"name": label.Name,
		})
	}
	return out
}

func serializeChangeset(cs *models.Changeset, opts serializerOptions) GeoJSONFeature {
	properties := map[string]any{
		"editor":       cs.Editor,
		"comment":      cs.Comment,
		"source":       cs.Source,
		"imagery_used": cs.ImageryUsed,
		"date":         cs.Date,
		"create":       cs.Created,
		"modify":       cs.Modified,
		"delete":       cs.Deleted,
		"is_suspect":   cs.IsSuspect,
		"checked":      cs.Checked,
		"harmful":      cs.Harmful,
		"check_date":   cs.CheckDate,
		"features":     cs.NewFeatures,
		"reasons":      serializeLabels(cs.Reasons, opts.staff),
		"tags":         serializeLabels(cs.Tags, opts.staff),
	}

	if !opts.anonymous {
		properties["user"] = cs.Username
		properties["uid"] = cs.UID
		properties["check_user"] = cs.CheckUser
	}

	geometry := cs.BBox
	if geometry == nil {
		geometry = json.RawMessage("null")
	}

	return GeoJSONFeature{
		ID:         cs.ID,
		Type:       "Feature",
		Geometry:   geometry,
		Properties: properties,
	}
}

func serializeFeature(f *models.Feature, opts serializerOptions) GeoJSONFeature {
	properties := map[string]any{
		"osm_id":      f.OSMID,
		"osm_type":    f.OSMType,
		"url":         f.URL,
		"osm_version": f.OSMVersion,
		"changeset":   f.ChangesetID,
		"name":        f.Name(),
		"checked":     f.Checked,
		"harmful":     f.Harmful,
		"check_date":  f.CheckDate,
		"reasons":     serializeLabels(f.Reasons, opts.staff),
	}
	if f.ComparatorVersion != "" {
		properties["comparator_version"] = f.ComparatorVersion
	}
	if len(f.OldGeoJSON) > 0 {
		properties["old_geojson"] = f.OldGeoJSON
	}

	if !opts.anonymous {
		properties["check_user"] = f.CheckUser
	}

	geometry := f.Geometry
	if geometry == nil {
		geometry = json.RawMessage("null")
	}

	return GeoJSONFeature{
		ID:         f.ID,
		Type:       "Feature",
		Geometry:   geometry,
		Properties: properties,
	}
}

// paginationLinks renders the next/previous page URLs for the current
// request, or nil when the page does not exist.
func paginationLinks(c echo.Context, page, pageSize int, total int64) (next, previous *string) {
	buildLink := func(target int) *string {
		u := *c.Request().URL
		q, _ := url.ParseQuery(u.RawQuery)
		q.Set("page", strconv.Itoa(target))
		u.RawQuery = q.Encode()
		link := u.String()
		return &link
	}

	if int64(page*pageSize) < total {
		next = buildLink(page + 1)
	}
	if page > 1 {
		previous = buildLink(page - 1)
	}
	return next, previous
}

func newFeatureCollection(features []GeoJSONFeature, total int64, next, previous *string) *FeatureCollection {
	if features == nil {
		features = []GeoJSONFeature{}
	}
	return &FeatureCollection{
		Type:     "FeatureCollection",
		Count:    total,
		Next:     next,
		Previous: previous,
		Features: features,
	}
}

// serializeUser renders an account without its token.
func serializeUser(user *models.User) map[string]any {
	return map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"uid":      user.OSMUID,
		"email":    user.Email,
		"is_staff": user.IsStaff,
	}
}
