// Package models holds the database row types shared by the repository,
// service and handler layers.
package models

import (
	"encoding/json"
	"time"
)

// OSM element types accepted by the ingestion endpoints.
const (
	OSMTypeNode     = "node"
	OSMTypeWay      = "way"
	OSMTypeRelation = "relation"
)

// ValidOSMType reports whether t is one of node/way/relation.
func ValidOSMType(t string) bool {
	return t == OSMTypeNode || t == OSMTypeWay || t == OSMTypeRelation
}

// User is a reviewer account. Tokens are opaque API keys minted when the
// account is provisioned; IsStaff gates moderation-only endpoints and
// exempts the account from the review throttle.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	OSMUID    string    `json:"uid"`
	Email     string    `json:"email"`
	IsStaff   bool      `json:"is_staff"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Label is a named marker attached to changesets and features: either a
// suspicion reason or a tag. Hidden labels (IsVisible=false) are only
// serialized for staff users.
type Label struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	IsVisible bool   `json:"-"`
}

// Changeset represents one OpenStreetMap changeset under review.
//
// The four check fields (Checked, Harmful, CheckUserID, CheckDate) are set
// together when a reviewer marks the changeset and cleared together on
// uncheck; no other combination is valid.
type Changeset struct {
	ID          int64  `json:"id"`
	UID         string `json:"uid"`
	Username    string `json:"user"`
	Editor      string `json:"editor"`
	Comment     string `json:"comment"`
	Source      string `json:"source"`
	ImageryUsed string `json:"imagery_used"`

	Date     time.Time `json:"date"`
	Created  int       `json:"create"`
	Modified int       `json:"modify"`
	Deleted  int       `json:"delete"`

	// BBox is the changeset bounding polygon as GeoJSON, produced by
	// ST_AsGeoJSON. Nil when the changeset has no geometry yet.
	BBox json.RawMessage `json:"bbox,omitempty"`

	IsSuspect   bool       `json:"is_suspect"`
	Checked     bool       `json:"checked"`
	Harmful     *bool      `json:"harmful"`
	CheckUserID *int64     `json:"-"`
	CheckUser   string     `json:"check_user,omitempty"`
	CheckDate   *time.Time `json:"check_date"`

	// NewFeatures is the denormalized cache of suspicious features
	// reported against this changeset, kept to avoid joining the
	// features table on every list request.
	NewFeatures []NewFeature `json:"features"`

	Reasons []Label `json:"reasons"`
	Tags    []Label `json:"tags"`
}

// Feature is one suspicious OSM element inside a changeset. URL is the
// derived "{osm_type}-{osm_id}" slug used in routes.
type Feature struct {
	ID                int64  `json:"id"`
	ChangesetID       int64  `json:"changeset"`
	OSMID             int64  `json:"osm_id"`
	OSMType           string `json:"osm_type"`
	URL               string `json:"url"`
	OSMVersion        int    `json:"osm_version"`
	ComparatorVersion string `json:"comparator_version,omitempty"`

	Geometry    json.RawMessage `json:"geometry,omitempty"`
	OldGeometry json.RawMessage `json:"old_geometry,omitempty"`
	GeoJSON     json.RawMessage `json:"geojson,omitempty"`
	OldGeoJSON  json.RawMessage `json:"old_geojson,omitempty"`

	Checked     bool       `json:"checked"`
	Harmful     *bool      `json:"harmful"`
	CheckUserID *int64     `json:"-"`
	CheckUser   string     `json:"check_user,omitempty"`
	CheckDate   *time.Time `json:"check_date"`

	// ChangesetUID/ChangesetDate are joined from the parent changeset
	// for the ownership check and default ordering.
	ChangesetUID  string    `json:"-"`
	ChangesetDate time.Time `json:"-"`

	Reasons []Label `json:"reasons"`
}

// Name extracts the "name" property of the stored GeoJSON, or "" when the
// feature carries no name tag.
func (f *Feature) Name() string {
	if len(f.GeoJSON) == 0 {
		return ""
	}
	var doc struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(f.GeoJSON, &doc); err != nil {
		return ""
	}
	raw, ok := doc.Properties["name"]
	if !ok {
		return ""
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return ""
	}
	return name
}

// UserWhitelist is one trusted-editor entry in a reviewer's whitelist.
type UserWhitelist struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"-"`
	WhitelistUser string    `json:"whitelist_user"`
	CreatedAt     time.Time `json:"created_at"`
}
