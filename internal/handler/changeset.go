package handler

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/deppfellow/osmcha-backend/internal/middleware"
	"github.com/deppfellow/osmcha-backend/internal/models"
	"github.com/deppfellow/osmcha-backend/internal/repository"
	"github.com/deppfellow/osmcha-backend/internal/server"
	"github.com/deppfellow/osmcha-backend/internal/service"
	"github.com/deppfellow/osmcha-backend/internal/validation"
	"github.com/labstack/echo/v4"
)

// ChangesetHandler serves the changeset listing, review and tagging
// endpoints.
type ChangesetHandler struct {
	Handler
	service *service.ChangesetService
}

// NewChangesetHandler constructs a ChangesetHandler.
func NewChangesetHandler(s *server.Server, svc *service.ChangesetService) *ChangesetHandler {
	return &ChangesetHandler{
		Handler: NewHandler(s),
		service: svc,
	}
}

// ListChangesetsRequest carries the raw query parameters of the list
// endpoints. Comma-separated lists and ranges are parsed in toFilter so
// malformed values produce field-level 400s instead of bind errors.
type ListChangesetsRequest struct {
	IDs       string `query:"ids"`
	UIDs      string `query:"uids"`
	Users     string `query:"users"`
	CheckedBy string `query:"checked_by"`

	Checked   string `query:"checked"`
	Harmful   string `query:"harmful"`
	IsSuspect string `query:"is_suspect"`

	Reasons string `query:"reasons"`
	Tags    string `query:"tags"`

	Editor  string `query:"editor"`
	Comment string `query:"comment"`
	Source  string `query:"source"`

	DateGTE      string `query:"date__gte"`
	DateLTE      string `query:"date__lte"`
	CheckDateGTE string `query:"check_date__gte"`
	CheckDateLTE string `query:"check_date__lte"`

	CreateGTE string `query:"create__gte"`
	CreateLTE string `query:"create__lte"`
	ModifyGTE string `query:"modify__gte"`
	ModifyLTE string `query:"modify__lte"`
	DeleteGTE string `query:"delete__gte"`
	DeleteLTE string `query:"delete__lte"`

	InBBox        string `query:"in_bbox"`
	AreaLT        string `query:"area_lt"`
	HideWhitelist bool   `query:"hide_whitelist"`

	OrderBy  string `query:"order_by"`
	Page     int    `query:"page"`
	PageSize int    `query:"page_size"`
}

func (r *ListChangesetsRequest) Validate() error {
	return nil
}

// toFilter translates the raw parameters into a repository filter.
// Identity-based filters (uids, users, checked_by, hide_whitelist) are
// ignored for anonymous requests.
func (r *ListChangesetsRequest) toFilter(user *models.User) (*repository.ChangesetFilter, error) {
	filter := &repository.ChangesetFilter{
		Editor:   r.Editor,
		Comment:  r.Comment,
		Source:   r.Source,
		OrderBy:  r.OrderBy,
		Page:     r.Page,
		PageSize: r.PageSize,
	}

	var err error
	if filter.IDs, err = parseIDListParam("ids", r.IDs); err != nil {
		return nil, err
	}
	// "None" selects changesets with no label of that kind.
	if r.Reasons == "None" {
		filter.NoReasons = true
	} else if filter.Reasons, err = parseIDListParam("reasons", r.Reasons); err != nil {
		return nil, err
	}
	if r.Tags == "None" {
		filter.NoTags = true
	} else if filter.Tags, err = parseIDListParam("tags", r.Tags); err != nil {
		return nil, err
	}

	if filter.Checked, err = parseBoolParam("checked", r.Checked); err != nil {
		return nil, err
	}
	if filter.Harmful, err = parseBoolParam("harmful", r.Harmful); err != nil {
		return nil, err
	}
	if filter.IsSuspect, err = parseBoolParam("is_suspect", r.IsSuspect); err != nil {
		return nil, err
	}

	if filter.DateGTE, err = parseTimeParam("date__gte", r.DateGTE); err != nil {
		return nil, err
	}
	if filter.DateLTE, err = parseTimeParam("date__lte", r.DateLTE); err != nil {
		return nil, err
	}
	if filter.CheckDateGTE, err = parseTimeParam("check_date__gte", r.CheckDateGTE); err != nil {
		return nil, err
	}
	if filter.CheckDateLTE, err = parseTimeParam("check_date__lte", r.CheckDateLTE); err != nil {
		return nil, err
	}

	if filter.CreateGTE, err = parseIntParam("create__gte", r.CreateGTE); err != nil {
		return nil, err
	}
	if filter.CreateLTE, err = parseIntParam("create__lte", r.CreateLTE); err != nil {
		return nil, err
	}
	if filter.ModifyGTE, err = parseIntParam("modify__gte", r.ModifyGTE); err != nil {
		return nil, err
	}
	if filter.ModifyLTE, err = parseIntParam("modify__lte", r.ModifyLTE); err != nil {
		return nil, err
	}
	if filter.DeleteGTE, err = parseIntParam("delete__gte", r.DeleteGTE); err != nil {
		return nil, err
	}
	if filter.DeleteLTE, err = parseIntParam("delete__lte", r.DeleteLTE); err != nil {
		return nil, err
	}

	if filter.BBox, err = parseBBoxParam("in_bbox", r.InBBox); err != nil {
		return nil, err
	}
	if filter.AreaLT, err = parseFloatParam("area_lt", r.AreaLT); err != nil {
		return nil, err
	}

	if user != nil {
		filter.UIDs = validation.ParseStringList(r.UIDs)
		filter.Usernames = validation.ParseStringList(r.Users)
		filter.CheckedBy = validation.ParseStringList(r.CheckedBy)
		if r.HideWhitelist {
			filter.HideWhitelistOf = &user.ID
		}
	}

	return filter, nil
}

func parseIDListParam(name, raw string) ([]int64, error) {
	ids, err := validation.ParseIDList(raw)
	if err != nil {
		return nil, badParam(name, "must be a comma-separated list of numbers")
	}
	return ids, nil
}

func (h *ChangesetHandler) list(c echo.Context, req *ListChangesetsRequest, preset func(*repository.ChangesetFilter)) (*FeatureCollection, error) {
	user := middleware.GetUser(c)

	filter, err := req.toFilter(user)
	if err != nil {
		return nil, err
	}
	if preset != nil {
		preset(filter)
	}
	filter.Normalize()

	changesets, total, err := h.service.List(c.Request().Context(), filter)
	if err != nil {
		return nil, err
	}

	opts := serializerOptions{anonymous: user == nil, staff: middleware.IsStaff(c)}
	features := make([]GeoJSONFeature, 0, len(changesets))
	for i := range changesets {
		features = append(features, serializeChangeset(&changesets[i], opts))
	}

	next, previous := paginationLinks(c, filter.Page, filter.PageSize, total)
	return newFeatureCollection(features, total, next, previous), nil
}

// List serves the main filterable changeset feed.
func (h *ChangesetHandler) List(c echo.Context, req *ListChangesetsRequest) (*FeatureCollection, error) {
	return h.list(c, req, nil)
}

// ListSuspect serves changesets flagged by at least one detector.
func (h *ChangesetHandler) ListSuspect(c echo.Context, req *ListChangesetsRequest) (*FeatureCollection, error) {
	return h.list(c, req, func(f *repository.ChangesetFilter) {
		f.IsSuspect = boolPtr(true)
	})
}

// ListNoSuspect serves changesets no detector has flagged.
func (h *ChangesetHandler) ListNoSuspect(c echo.Context, req *ListChangesetsRequest) (*FeatureCollection, error) {
	return h.list(c, req, func(f *repository.ChangesetFilter) {
		f.IsSuspect = boolPtr(false)
	})
}

// ListHarmful serves changesets reviewed as harmful.
func (h *ChangesetHandler) ListHarmful(c echo.Context, req *ListChangesetsRequest) (*FeatureCollection, error) {
	return h.list(c, req, func(f *repository.ChangesetFilter) {
		f.Checked = boolPtr(true)
		f.Harmful = boolPtr(true)
	})
}

// ListNoHarmful serves changesets reviewed as good.
func (h *ChangesetHandler) ListNoHarmful(c echo.Context, req *ListChangesetsRequest) (*FeatureCollection, error) {
	return h.list(c, req, func(f *repository.ChangesetFilter) {
		f.Checked = boolPtr(true)
		f.Harmful = boolPtr(false)
	})
}

// ListChecked serves reviewed changesets.
func (h *ChangesetHandler) ListChecked(c echo.Context, req *ListChangesetsRequest) (*FeatureCollection, error) {
	return h.list(c, req, func(f *repository.ChangesetFilter) {
		f.Checked = boolPtr(true)
	})
}

// ListUnchecked serves changesets still waiting for review.
func (h *ChangesetHandler) ListUnchecked(c echo.Context, req *ListChangesetsRequest) (*FeatureCollection, error) {
	return h.list(c, req, func(f *repository.ChangesetFilter) {
		f.Checked = boolPtr(false)
	})
}

// ExportCSV renders the filtered feed as a CSV download.
func (h *ChangesetHandler) ExportCSV(c echo.Context, req *ListChangesetsRequest) ([]byte, error) {
	user := middleware.GetUser(c)

	filter, err := req.toFilter(user)
	if err != nil {
		return nil, err
	}
	filter.Normalize()

	changesets, _, err := h.service.List(c.Request().Context(), filter)
	if err != nil {
		return nil, err
	}

	opts := serializerOptions{anonymous: user == nil, staff: middleware.IsStaff(c)}
	return buildChangesetCSV(changesets, opts)
}

// buildChangesetCSV renders one row per changeset, applying the same
// identity and label visibility rules as the JSON serializer.
func buildChangesetCSV(changesets []models.Changeset, opts serializerOptions) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"id", "user", "uid", "date", "editor", "comment", "source",
		"create", "modify", "delete", "is_suspect",
		"checked", "harmful", "check_user", "check_date",
		"reasons", "tags",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for i := range changesets {
		cs := &changesets[i]

		username, uid, checkUser := cs.Username, cs.UID, cs.CheckUser
		if opts.anonymous {
			username, uid, checkUser = "", "", ""
		}

		harmful := ""
		if cs.Harmful != nil {
			harmful = strconv.FormatBool(*cs.Harmful)
		}
		checkDate := ""
		if cs.CheckDate != nil {
			checkDate = cs.CheckDate.Format(time.RFC3339)
		}

		record := []string{
			strconv.FormatInt(cs.ID, 10),
			username,
			uid,
			cs.Date.Format(time.RFC3339),
			cs.Editor,
			cs.Comment,
			cs.Source,
			strconv.Itoa(cs.Created),
			strconv.Itoa(cs.Modified),
			strconv.Itoa(cs.Deleted),
			strconv.FormatBool(cs.IsSuspect),
			strconv.FormatBool(cs.Checked),
			harmful,
			checkUser,
			checkDate,
			labelNames(cs.Reasons, opts.staff),
			labelNames(cs.Tags, opts.staff),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func labelNames(labels []models.Label, staff bool) string {
	names := make([]string, 0, len(labels))
	for _, label := range labels {
		if !label.IsVisible && !staff {
			continue
		}
		names = append(names, label.Name)
	}
	return strings.Join(names, ";")
}

// GetChangesetRequest identifies one changeset by path parameter.
type GetChangesetRequest struct {
	ID int64 `param:"id" validate:"required"`
}

func (r *GetChangesetRequest) Validate() error {
	return validate.Struct(r)
}

// Get serves one changeset with its reasons, tags and feature cache.
func (h *ChangesetHandler) Get(c echo.Context, req *GetChangesetRequest) (*GeoJSONFeature, error) {
	changeset, err := h.service.Get(c.Request().Context(), req.ID)
	if err != nil {
		return nil, err
	}

	user := middleware.GetUser(c)
	feature := serializeChangeset(changeset, serializerOptions{
		anonymous: user == nil,
		staff:     middleware.IsStaff(c),
	})
	return &feature, nil
}

// CheckChangesetRequest marks a changeset reviewed. Tags, when present,
// replaces the changeset's tag set in the same transaction; when the
// field is omitted existing tags are kept.
type CheckChangesetRequest struct {
	ID   int64    `param:"id" validate:"required"`
	Tags *[]int64 `json:"tags"`
}

func (r *CheckChangesetRequest) Validate() error {
	return validate.Struct(r)
}

func (r *CheckChangesetRequest) tagIDs() []int64 {
	if r.Tags == nil {
		return nil
	}
	tags := *r.Tags
	if tags == nil {
		tags = []int64{}
	}
	return tags
}

// SetHarmful marks the changeset reviewed and harmful.
func (h *ChangesetHandler) SetHarmful(c echo.Context, req *CheckChangesetRequest) (map[string]string, error) {
	return h.setCheck(c, req, true)
}

// SetGood marks the changeset reviewed and not harmful.
func (h *ChangesetHandler) SetGood(c echo.Context, req *CheckChangesetRequest) (map[string]string, error) {
	return h.setCheck(c, req, false)
}

func (h *ChangesetHandler) setCheck(c echo.Context, req *CheckChangesetRequest, harmful bool) (map[string]string, error) {
	user := middleware.GetUser(c)
	if err := h.service.SetCheck(c.Request().Context(), user, req.ID, harmful, req.tagIDs()); err != nil {
		return nil, err
	}
	return map[string]string{"detail": fmt.Sprintf("Changeset %d checked", req.ID)}, nil
}

// Uncheck clears the review verdict, keeping tags in place.
func (h *ChangesetHandler) Uncheck(c echo.Context, req *GetChangesetRequest) (map[string]string, error) {
	user := middleware.GetUser(c)
	if err := h.service.Uncheck(c.Request().Context(), user, req.ID); err != nil {
		return nil, err
	}
	return map[string]string{"detail": fmt.Sprintf("Changeset %d unchecked", req.ID)}, nil
}

// ChangesetTagRequest identifies a changeset/tag pair.
type ChangesetTagRequest struct {
	ID    int64 `param:"id" validate:"required"`
	TagID int64 `param:"tag_id" validate:"required"`
}

func (r *ChangesetTagRequest) Validate() error {
	return validate.Struct(r)
}

// AddTag attaches a tag to the changeset and returns the updated record.
func (h *ChangesetHandler) AddTag(c echo.Context, req *ChangesetTagRequest) (*GeoJSONFeature, error) {
	user := middleware.GetUser(c)
	changeset, err := h.service.AddTag(c.Request().Context(), user, req.ID, req.TagID)
	if err != nil {
		return nil, err
	}
	feature := serializeChangeset(changeset, serializerOptions{staff: middleware.IsStaff(c)})
	return &feature, nil
}

// RemoveTag detaches a tag from the changeset and returns the updated record.
func (h *ChangesetHandler) RemoveTag(c echo.Context, req *ChangesetTagRequest) (*GeoJSONFeature, error) {
	user := middleware.GetUser(c)
	changeset, err := h.service.RemoveTag(c.Request().Context(), user, req.ID, req.TagID)
	if err != nil {
		return nil, err
	}
	feature := serializeChangeset(changeset, serializerOptions{staff: middleware.IsStaff(c)})
	return &feature, nil
}

func boolPtr(v bool) *bool {
	return &v
}
