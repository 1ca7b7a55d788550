package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deppfellow/osmcha-backend/internal/errs"
	"github.com/deppfellow/osmcha-backend/internal/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// IngestChangesetStore is the changeset surface the ingestion service
// needs.
type IngestChangesetStore interface {
	GetOrCreate(ctx context.Context, cs *models.Changeset) (bool, error)
	SetSuspect(ctx context.Context, id int64, reasonIDs []int64) error
	MergeNewFeatures(ctx context.Context, id int64, incoming []models.NewFeature) error
}

// IngestFeatureStore is the feature surface the ingestion service needs.
type IngestFeatureStore interface {
	GetOrCreate(ctx context.Context, f *models.Feature) (int64, bool, error)
	AddReasons(ctx context.Context, featureID int64, reasonIDs []int64) error
}

// ReasonStore resolves suspicion reason names, creating them on first
// sight.
type ReasonStore interface {
	GetOrCreateByName(ctx context.Context, name string) (*models.Label, error)
}

// Enricher enqueues a background fetch of changeset metadata from the
// OSM API.
type Enricher interface {
	EnqueueChangesetEnrich(changesetID int64) error
}

// ReasonRef identifies a suspicion reason either by the id of an
// existing row or by name, in which case the reason is created on first
// sight. Detectors send both shapes mixed in one array.
type ReasonRef struct {
	ID   int64
	Name string
}

func (r *ReasonRef) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.Name)
	}
	return json.Unmarshal(data, &r.ID)
}

// SuspicionPayload is one detector report against a single OSM element.
// UID and User seed the changeset row when the report arrives before the
// changeset itself.
type SuspicionPayload struct {
	ChangesetID int64       `json:"changeset" validate:"required"`
	OSMID       int64       `json:"osm_id" validate:"required"`
	OSMType     string      `json:"osm_type" validate:"required,oneof=node way relation"`
	Version     int         `json:"version"`
	Name        string      `json:"name"`
	Note        string      `json:"note"`
	UID         string      `json:"uid"`
	User        string      `json:"user"`
	Reasons     []ReasonRef `json:"reasons" validate:"required,min=1"`
}

// IngestService accepts detector submissions: suspicion reports and full
// GeoJSON feature documents. Both flag the parent changeset as suspect
// and keep the denormalized new_features cache in sync.
type IngestService struct {
	changesets IngestChangesetStore
	features   IngestFeatureStore
	reasons    ReasonStore
	enricher   Enricher
	logger     *zerolog.Logger
}

// NewIngestService constructs an IngestService. enricher may be nil when
// background jobs are disabled.
func NewIngestService(changesets IngestChangesetStore, features IngestFeatureStore, reasons ReasonStore, enricher Enricher, logger *zerolog.Logger) *IngestService {
	return &IngestService{
		changesets: changesets,
		features:   features,
		reasons:    reasons,
		enricher:   enricher,
		logger:     logger,
	}
}

// AddSuspicion records a detector report: reasons and the changeset are
// created when missing, the changeset is flagged suspect, and the report
// is merged into the new_features cache keyed by the element URL.
func (svc *IngestService) AddSuspicion(ctx context.Context, p *SuspicionPayload) error {
	reasonIDs, err := svc.resolveReasonRefs(ctx, p.Reasons)
	if err != nil {
		return err
	}

	created, err := svc.changesets.GetOrCreate(ctx, &models.Changeset{
		ID:        p.ChangesetID,
		UID:       p.UID,
		Username:  p.User,
		Date:      time.Now().UTC(),
		IsSuspect: true,
	})
	if err != nil {
		return err
	}

	if err := svc.changesets.SetSuspect(ctx, p.ChangesetID, reasonIDs); err != nil {
		return err
	}

	entry := models.NewFeature{
		OSMID:   p.OSMID,
		URL:     fmt.Sprintf("%s-%d", p.OSMType, p.OSMID),
		Version: p.Version,
		Name:    p.Name,
		Note:    p.Note,
		Reasons: reasonIDs,
	}
	if err := svc.changesets.MergeNewFeatures(ctx, p.ChangesetID, []models.NewFeature{entry}); err != nil {
		return err
	}

	if created && svc.enricher != nil {
		if err := svc.enricher.EnqueueChangesetEnrich(p.ChangesetID); err != nil {
			return errors.Wrap(err, "enqueueing changeset enrichment")
		}
	}
	return nil
}

// geoJSONFeature is the wire shape of a detector feature submission. OSM
// element metadata rides in namespaced properties; comparator_version
// sits at the top level next to the GeoJSON members.
type geoJSONFeature struct {
	Type              string          `json:"type"`
	Geometry          json.RawMessage `json:"geometry"`
	ComparatorVersion string          `json:"comparator_version"`
	Properties        struct {
		OSMID      int64  `json:"osm:id"`
		OSMType    string `json:"osm:type"`
		OSMVersion int    `json:"osm:version"`
		Changeset  int64  `json:"osm:changeset"`
		OSMUID     string `json:"osm:uid"`
		OSMUser    string `json:"osm:user"`
		// OSMTimestamp is the element timestamp in epoch milliseconds.
		OSMTimestamp int64           `json:"osm:timestamp"`
		Name         string          `json:"name"`
		OldVersion   json.RawMessage `json:"oldVersion"`
		Suspicions   []struct {
			Reason string `json:"reason"`
		} `json:"suspicions"`
	} `json:"properties"`
}

// geometryTypes are the GeoJSON geometry type names.
var geometryTypes = map[string]struct{}{
	"Point": {}, "MultiPoint": {}, "LineString": {}, "MultiLineString": {},
	"Polygon": {}, "MultiPolygon": {}, "GeometryCollection": {},
}

// validGeometry is a structural check of a GeoJSON geometry so parse
// failures surface as client errors instead of reaching
// ST_GeomFromGeoJSON.
func validGeometry(doc json.RawMessage) bool {
	var g struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
		Geometries  json.RawMessage `json:"geometries"`
	}
	if len(doc) == 0 || json.Unmarshal(doc, &g) != nil {
		return false
	}
	if _, ok := geometryTypes[g.Type]; !ok {
		return false
	}
	if g.Type == "GeometryCollection" {
		return len(g.Geometries) > 0 && g.Geometries[0] == '['
	}
	return len(g.Coordinates) > 0 && g.Coordinates[0] == '['
}

// oldVersionGeometry extracts the geometry of an oldVersion feature, or
// nil when absent or unparseable.
func oldVersionGeometry(old json.RawMessage) json.RawMessage {
	if len(old) == 0 {
		return nil
	}
	var v struct {
		Geometry json.RawMessage `json:"geometry"`
	}
	if err := json.Unmarshal(old, &v); err != nil {
		return nil
	}
	if !validGeometry(v.Geometry) {
		return nil
	}
	return v.Geometry
}

// strippedDocument removes the suspicions and oldVersion members from
// the document's properties; the result is what the geojson column
// stores, with the suspicion data living in its own tables.
func strippedDocument(doc json.RawMessage) (json.RawMessage, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(doc, &top); err != nil {
		return nil, err
	}
	raw, ok := top["properties"]
	if !ok {
		return doc, nil
	}
	var props map[string]json.RawMessage
	if err := json.Unmarshal(raw, &props); err != nil {
		return nil, err
	}
	delete(props, "suspicions")
	delete(props, "oldVersion")
	rendered, err := json.Marshal(props)
	if err != nil {
		return nil, err
	}
	top["properties"] = rendered
	return json.Marshal(top)
}

// CreateFeature ingests a full GeoJSON feature document, storing the
// feature row alongside the suspicion report.
func (svc *IngestService) CreateFeature(ctx context.Context, doc json.RawMessage) error {
	var feature geoJSONFeature
	if err := json.Unmarshal(doc, &feature); err != nil {
		return errs.NewBadRequestError("Invalid GeoJSON document", false, nil, nil, nil)
	}

	props := feature.Properties
	if feature.Type != "Feature" || props.Changeset == 0 || props.OSMID == 0 || !models.ValidOSMType(props.OSMType) {
		return errs.NewBadRequestError("Feature is missing osm:id, osm:type or osm:changeset", false, nil, nil, nil)
	}
	if string(props.OldVersion) == "null" {
		props.OldVersion = nil
	}

	if !validGeometry(feature.Geometry) {
		return errs.NewBadRequestError(
			fmt.Sprintf("Invalid geometry in feature %d", props.OSMID), false, nil, nil, nil)
	}

	// A broken old geometry only costs the before/after diff, not the
	// whole submission.
	oldGeometry := oldVersionGeometry(props.OldVersion)
	if len(props.OldVersion) > 0 && oldGeometry == nil {
		svc.logger.Warn().
			Int64("osm_id", props.OSMID).
			Int64("changeset", props.Changeset).
			Msg("Skipping unparseable oldVersion geometry")
	}

	stored, err := strippedDocument(doc)
	if err != nil {
		return errs.NewBadRequestError("Invalid GeoJSON document", false, nil, nil, nil)
	}

	reasonNames := make([]string, 0, len(props.Suspicions))
	for _, s := range props.Suspicions {
		if s.Reason != "" {
			reasonNames = append(reasonNames, s.Reason)
		}
	}
	reasonIDs, err := svc.resolveReasons(ctx, reasonNames)
	if err != nil {
		return err
	}

	date := time.Now().UTC()
	if props.OSMTimestamp > 0 {
		date = time.UnixMilli(props.OSMTimestamp).UTC()
	}

	created, err := svc.changesets.GetOrCreate(ctx, &models.Changeset{
		ID:        props.Changeset,
		UID:       props.OSMUID,
		Username:  props.OSMUser,
		Date:      date,
		IsSuspect: true,
	})
	if err != nil {
		return err
	}

	if err := svc.changesets.SetSuspect(ctx, props.Changeset, reasonIDs); err != nil {
		return err
	}

	featureID, _, err := svc.features.GetOrCreate(ctx, &models.Feature{
		ChangesetID:       props.Changeset,
		OSMID:             props.OSMID,
		OSMType:           props.OSMType,
		URL:               fmt.Sprintf("%s-%d", props.OSMType, props.OSMID),
		OSMVersion:        props.OSMVersion,
		ComparatorVersion: feature.ComparatorVersion,
		Geometry:          feature.Geometry,
		OldGeometry:       oldGeometry,
		GeoJSON:           stored,
		OldGeoJSON:        props.OldVersion,
	})
	if err != nil {
		return err
	}
	if err := svc.features.AddReasons(ctx, featureID, reasonIDs); err != nil {
		return err
	}

	entry := models.NewFeature{
		OSMID:   props.OSMID,
		URL:     fmt.Sprintf("%s-%d", props.OSMType, props.OSMID),
		Version: props.OSMVersion,
		Name:    props.Name,
		Reasons: reasonIDs,
	}
	if err := svc.changesets.MergeNewFeatures(ctx, props.Changeset, []models.NewFeature{entry}); err != nil {
		return err
	}

	if created && svc.enricher != nil {
		if err := svc.enricher.EnqueueChangesetEnrich(props.Changeset); err != nil {
			return errors.Wrap(err, "enqueueing changeset enrichment")
		}
	}
	return nil
}

// resolveReasonRefs turns mixed id/name reason references into a
// deduplicated id list, creating named reasons as needed.
func (svc *IngestService) resolveReasonRefs(ctx context.Context, refs []ReasonRef) ([]int64, error) {
	ids := make([]int64, 0, len(refs))
	seen := make(map[int64]struct{}, len(refs))
	for _, ref := range refs {
		id := ref.ID
		if ref.Name != "" {
			reason, err := svc.reasons.GetOrCreateByName(ctx, ref.Name)
			if err != nil {
				return nil, err
			}
			id = reason.ID
		}
		if id == 0 {
			return nil, errs.NewBadRequestError("Reasons must be ids or non-empty names", false, nil, nil, nil)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func (svc *IngestService) resolveReasons(ctx context.Context, names []string) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	seen := make(map[int64]struct{}, len(names))
	for _, name := range names {
		reason, err := svc.reasons.GetOrCreateByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[reason.ID]; ok {
			continue
		}
		seen[reason.ID] = struct{}{}
		ids = append(ids, reason.ID)
	}
	return ids, nil
}
