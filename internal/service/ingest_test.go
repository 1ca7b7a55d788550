package service

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/deppfellow/osmcha-backend/internal/errs"
	"github.com/deppfellow/osmcha-backend/internal/models"
	"github.com/pkg/errors"
)

type fakeIngestChangesetStore struct {
	existing map[int64]bool
	suspects map[int64][]int64
	merged   map[int64][]models.NewFeature
}

func newFakeIngestChangesetStore(existingIDs ...int64) *fakeIngestChangesetStore {
	s := &fakeIngestChangesetStore{
		existing: map[int64]bool{},
		suspects: map[int64][]int64{},
		merged:   map[int64][]models.NewFeature{},
	}
	for _, id := range existingIDs {
		s.existing[id] = true
	}
	return s
}

func (s *fakeIngestChangesetStore) GetOrCreate(ctx context.Context, cs *models.Changeset) (bool, error) {
	if s.existing[cs.ID] {
		return false, nil
	}
	s.existing[cs.ID] = true
	return true, nil
}

func (s *fakeIngestChangesetStore) SetSuspect(ctx context.Context, id int64, reasonIDs []int64) error {
	s.suspects[id] = append(s.suspects[id], reasonIDs...)
	return nil
}

func (s *fakeIngestChangesetStore) MergeNewFeatures(ctx context.Context, id int64, incoming []models.NewFeature) error {
	s.merged[id] = models.MergeNewFeatures(s.merged[id], incoming)
	return nil
}

type fakeIngestFeatureStore struct {
	nextID  int64
	reasons map[int64][]int64
	last    *models.Feature
}

func (s *fakeIngestFeatureStore) GetOrCreate(ctx context.Context, f *models.Feature) (int64, bool, error) {
	s.nextID++
	s.last = f
	return s.nextID, true, nil
}

func (s *fakeIngestFeatureStore) AddReasons(ctx context.Context, featureID int64, reasonIDs []int64) error {
	if s.reasons == nil {
		s.reasons = map[int64][]int64{}
	}
	s.reasons[featureID] = append(s.reasons[featureID], reasonIDs...)
	return nil
}

type fakeReasonStore struct {
	nextID int64
	byName map[string]*models.Label
}

func (s *fakeReasonStore) GetOrCreateByName(ctx context.Context, name string) (*models.Label, error) {
	if s.byName == nil {
		s.byName = map[string]*models.Label{}
	}
	if reason, ok := s.byName[name]; ok {
		return reason, nil
	}
	s.nextID++
	reason := &models.Label{ID: s.nextID, Name: name, IsVisible: true}
	s.byName[name] = reason
	return reason, nil
}

type fakeEnricher struct {
	enqueued []int64
}

func (e *fakeEnricher) EnqueueChangesetEnrich(changesetID int64) error {
	e.enqueued = append(e.enqueued, changesetID)
	return nil
}

func TestAddSuspicionCreatesChangesetAndEnqueuesEnrichment(t *testing.T) {
	changesets := newFakeIngestChangesetStore()
	enricher := &fakeEnricher{}
	svc := NewIngestService(changesets, &fakeIngestFeatureStore{}, &fakeReasonStore{}, enricher, &testLogger)

	err := svc.AddSuspicion(context.Background(), &SuspicionPayload{
		ChangesetID: 31982803,
		OSMID:       87765444,
		OSMType:     "node",
		Version:     44,
		Name:        "Salt Lake City",
		Reasons: []ReasonRef{
			{Name: "new mapper edits"},
			{Name: "new mapper edits"},
			{Name: "vandalism"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(enricher.enqueued, []int64{31982803}) {
		t.Errorf("expected enrichment enqueued once, got %v", enricher.enqueued)
	}

	merged := changesets.merged[31982803]
	if len(merged) != 1 {
		t.Fatalf("expected one new_features entry, got %d", len(merged))
	}
	if merged[0].URL != "node-87765444" {
		t.Errorf("unexpected url: %q", merged[0].URL)
	}
	// duplicate reason names collapse to a single id
	if !reflect.DeepEqual(merged[0].Reasons, []int64{1, 2}) {
		t.Errorf("unexpected reason ids: %v", merged[0].Reasons)
	}
}

func TestAddSuspicionExistingChangesetSkipsEnrichment(t *testing.T) {
	changesets := newFakeIngestChangesetStore(31982803)
	enricher := &fakeEnricher{}
	svc := NewIngestService(changesets, &fakeIngestFeatureStore{}, &fakeReasonStore{}, enricher, &testLogger)

	err := svc.AddSuspicion(context.Background(), &SuspicionPayload{
		ChangesetID: 31982803,
		OSMID:       1,
		OSMType:     "way",
		Reasons:     []ReasonRef{{Name: "vandalism"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(enricher.enqueued) != 0 {
		t.Errorf("expected no enrichment for existing changeset, got %v", enricher.enqueued)
	}
}

func TestAddSuspicionMergesRepeatedReports(t *testing.T) {
	changesets := newFakeIngestChangesetStore()
	svc := NewIngestService(changesets, &fakeIngestFeatureStore{}, &fakeReasonStore{}, nil, &testLogger)

	first := &SuspicionPayload{ChangesetID: 1, OSMID: 10, OSMType: "node", Reasons: []ReasonRef{{Name: "a"}}}
	second := &SuspicionPayload{ChangesetID: 1, OSMID: 10, OSMType: "node", Reasons: []ReasonRef{{Name: "b"}}}
	if err := svc.AddSuspicion(context.Background(), first); err != nil {
		t.Fatal(err)
	}
	if err := svc.AddSuspicion(context.Background(), second); err != nil {
		t.Fatal(err)
	}

	merged := changesets.merged[1]
	if len(merged) != 1 {
		t.Fatalf("expected single merged entry, got %d", len(merged))
	}
	if !reflect.DeepEqual(merged[0].Reasons, []int64{1, 2}) {
		t.Errorf("expected reason union, got %v", merged[0].Reasons)
	}
}

func TestAddSuspicionAcceptsMixedReasonRefs(t *testing.T) {
	changesets := newFakeIngestChangesetStore()
	svc := NewIngestService(changesets, &fakeIngestFeatureStore{}, &fakeReasonStore{}, nil, &testLogger)

	var p SuspicionPayload
	payload := `{"changeset": 1, "osm_id": 10, "osm_type": "node", "uid": "1234", "user": "mapper",
		"reasons": [7, "vandalism", 7]}`
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.UID != "1234" || p.User != "mapper" {
		t.Fatalf("unexpected identity fields: %+v", p)
	}

	if err := svc.AddSuspicion(context.Background(), &p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// id 7 passes through once, the named reason is created as id 1
	if !reflect.DeepEqual(changesets.merged[1][0].Reasons, []int64{7, 1}) {
		t.Errorf("unexpected reason ids: %v", changesets.merged[1][0].Reasons)
	}
}

func TestAddSuspicionRejectsEmptyReasonRef(t *testing.T) {
	svc := NewIngestService(newFakeIngestChangesetStore(), &fakeIngestFeatureStore{}, &fakeReasonStore{}, nil, &testLogger)

	err := svc.AddSuspicion(context.Background(), &SuspicionPayload{
		ChangesetID: 1,
		OSMID:       10,
		OSMType:     "node",
		Reasons:     []ReasonRef{{}},
	})
	var httpErr *errs.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != 400 {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestCreateFeatureStoresFeatureWithReasons(t *testing.T) {
	changesets := newFakeIngestChangesetStore()
	features := &fakeIngestFeatureStore{}
	svc := NewIngestService(changesets, features, &fakeReasonStore{}, nil, &testLogger)

	doc := json.RawMessage(`{
		"type": "Feature",
		"geometry": {"type": "Point", "coordinates": [1, 2]},
		"properties": {
			"osm:id": 87765444,
			"osm:type": "node",
			"osm:version": 44,
			"osm:changeset": 31982803,
			"name": "Salt Lake City",
			"suspicions": [{"reason": "vandalism"}]
		}
	}`)

	if err := svc.CreateFeature(context.Background(), doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(features.reasons[1], []int64{1}) {
		t.Errorf("expected reason attached to feature, got %v", features.reasons)
	}
	if len(changesets.merged[31982803]) != 1 {
		t.Errorf("expected new_features cache updated")
	}
	if len(changesets.suspects[31982803]) != 1 {
		t.Errorf("expected changeset flagged suspect")
	}
}

func TestCreateFeatureRejectsInvalidDocuments(t *testing.T) {
	svc := NewIngestService(newFakeIngestChangesetStore(), &fakeIngestFeatureStore{}, &fakeReasonStore{}, nil, &testLogger)

	cases := []string{
		`not json`,
		`{"type": "Feature", "properties": {}}`,
		`{"type": "FeatureCollection", "properties": {"osm:id": 1, "osm:type": "node", "osm:changeset": 2}}`,
		`{"type": "Feature", "properties": {"osm:id": 1, "osm:type": "point", "osm:changeset": 2}}`,
	}
	for _, doc := range cases {
		err := svc.CreateFeature(context.Background(), json.RawMessage(doc))
		var httpErr *errs.HTTPError
		if !errors.As(err, &httpErr) || httpErr.Status != 400 {
			t.Errorf("expected 400 for %s, got %v", doc, err)
		}
	}
}

func TestCreateFeatureRejectsInvalidGeometry(t *testing.T) {
	svc := NewIngestService(newFakeIngestChangesetStore(), &fakeIngestFeatureStore{}, &fakeReasonStore{}, nil, &testLogger)

	cases := []string{
		`{"type": "Feature", "geometry": {"type": "Bogus", "coordinates": 1},
			"properties": {"osm:id": 1, "osm:type": "node", "osm:changeset": 2}}`,
		`{"type": "Feature", "geometry": {"type": "Point"},
			"properties": {"osm:id": 1, "osm:type": "node", "osm:changeset": 2}}`,
		`{"type": "Feature", "geometry": {"type": "Point", "coordinates": 1},
			"properties": {"osm:id": 1, "osm:type": "node", "osm:changeset": 2}}`,
		`{"type": "Feature", "geometry": "not an object",
			"properties": {"osm:id": 1, "osm:type": "node", "osm:changeset": 2}}`,
	}
	for _, doc := range cases {
		err := svc.CreateFeature(context.Background(), json.RawMessage(doc))
		var httpErr *errs.HTTPError
		if !errors.As(err, &httpErr) || httpErr.Status != 400 {
			t.Errorf("expected 400 for %s, got %v", doc, err)
		}
	}
}

func TestCreateFeatureStoresComparatorVersionAndStrippedDocument(t *testing.T) {
	features := &fakeIngestFeatureStore{}
	svc := NewIngestService(newFakeIngestChangesetStore(), features, &fakeReasonStore{}, nil, &testLogger)

	doc := json.RawMessage(`{
		"type": "Feature",
		"comparator_version": "compare-1.2.0",
		"geometry": {"type": "Point", "coordinates": [1, 2]},
		"properties": {
			"osm:id": 87765444,
			"osm:type": "node",
			"osm:changeset": 31982803,
			"name": "Salt Lake City",
			"suspicions": [{"reason": "vandalism"}],
			"oldVersion": {
				"type": "Feature",
				"geometry": {"type": "Point", "coordinates": [3, 4]},
				"properties": {"name": "Salt Lake"}
			}
		}
	}`)

	if err := svc.CreateFeature(context.Background(), doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := features.last
	if stored == nil {
		t.Fatal("expected feature stored")
	}
	if stored.ComparatorVersion != "compare-1.2.0" {
		t.Errorf("unexpected comparator_version: %q", stored.ComparatorVersion)
	}
	if string(stored.OldGeometry) != `{"type": "Point", "coordinates": [3, 4]}` {
		t.Errorf("unexpected old geometry: %s", stored.OldGeometry)
	}
	if !strings.Contains(string(stored.OldGeoJSON), `"Salt Lake"`) {
		t.Errorf("expected full oldVersion feature stored, got %s", stored.OldGeoJSON)
	}

	// suspicions and oldVersion live in their own tables, not the
	// stored document
	var kept struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(stored.GeoJSON, &kept); err != nil {
		t.Fatalf("stored document is not valid JSON: %v", err)
	}
	if _, ok := kept.Properties["suspicions"]; ok {
		t.Error("expected suspicions stripped from stored document")
	}
	if _, ok := kept.Properties["oldVersion"]; ok {
		t.Error("expected oldVersion stripped from stored document")
	}
	if _, ok := kept.Properties["name"]; !ok {
		t.Error("expected remaining properties preserved")
	}
}

func TestCreateFeatureSkipsUnparseableOldGeometry(t *testing.T) {
	features := &fakeIngestFeatureStore{}
	svc := NewIngestService(newFakeIngestChangesetStore(), features, &fakeReasonStore{}, nil, &testLogger)

	doc := json.RawMessage(`{
		"type": "Feature",
		"geometry": {"type": "Point", "coordinates": [1, 2]},
		"properties": {
			"osm:id": 1,
			"osm:type": "node",
			"osm:changeset": 2,
			"oldVersion": {"type": "Feature", "geometry": {"type": "Bogus", "coordinates": 1}}
		}
	}`)

	if err := svc.CreateFeature(context.Background(), doc); err != nil {
		t.Fatalf("expected bad old geometry to be non-fatal, got %v", err)
	}
	if features.last == nil {
		t.Fatal("expected feature stored")
	}
	if features.last.OldGeometry != nil {
		t.Errorf("expected old geometry dropped, got %s", features.last.OldGeometry)
	}
	if !strings.Contains(string(features.last.OldGeoJSON), `"Bogus"`) {
		t.Errorf("expected oldVersion document kept, got %s", features.last.OldGeoJSON)
	}
}
