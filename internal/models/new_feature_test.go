package models

import (
	"reflect"
	"testing"
)

func TestMergeNewFeaturesAppendsUnknownURLs(t *testing.T) {
	existing := []NewFeature{
		{OSMID: 10, URL: "node-10", Version: 2, Reasons: []int64{1}},
	}
	incoming := []NewFeature{
		{OSMID: 20, URL: "way-20", Version: 1, Reasons: []int64{2}},
	}

	got := MergeNewFeatures(existing, incoming)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[1].URL != "way-20" || !reflect.DeepEqual(got[1].Reasons, []int64{2}) {
		t.Errorf("unexpected appended entry: %+v", got[1])
	}
}

func TestMergeNewFeaturesUnionsReasonsByURL(t *testing.T) {
	existing := []NewFeature{
		{OSMID: 10, URL: "node-10", Version: 2, Reasons: []int64{1, 3}},
	}
	incoming := []NewFeature{
		{OSMID: 10, URL: "node-10", Version: 2, Reasons: []int64{3, 5}},
	}

	got := MergeNewFeatures(existing, incoming)
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if !reflect.DeepEqual(got[0].Reasons, []int64{1, 3, 5}) {
		t.Errorf("expected reason union [1 3 5], got %v", got[0].Reasons)
	}
}

func TestMergeNewFeaturesPrefersNewerMetadata(t *testing.T) {
	existing := []NewFeature{
		{OSMID: 10, URL: "node-10", Version: 1, Name: "old name", Reasons: []int64{1}},
	}
	incoming := []NewFeature{
		{OSMID: 10, URL: "node-10", Version: 3, Name: "new name", Note: "vandalism", Reasons: nil},
	}

	got := MergeNewFeatures(existing, incoming)
	if got[0].Name != "new name" {
		t.Errorf("expected incoming name to win, got %q", got[0].Name)
	}
	if got[0].Note != "vandalism" {
		t.Errorf("expected incoming note to win, got %q", got[0].Note)
	}
	if got[0].Version != 3 {
		t.Errorf("expected version 3, got %d", got[0].Version)
	}
	if !reflect.DeepEqual(got[0].Reasons, []int64{1}) {
		t.Errorf("expected reasons preserved, got %v", got[0].Reasons)
	}
}

func TestMergeNewFeaturesDoesNotMutateExisting(t *testing.T) {
	existing := []NewFeature{
		{OSMID: 10, URL: "node-10", Reasons: []int64{1}},
	}
	incoming := []NewFeature{
		{OSMID: 10, URL: "node-10", Reasons: []int64{2}},
	}

	_ = MergeNewFeatures(existing, incoming)
	if !reflect.DeepEqual(existing[0].Reasons, []int64{1}) {
		t.Errorf("existing slice mutated: %v", existing[0].Reasons)
	}
}

func TestFeatureNameFromGeoJSON(t *testing.T) {
	f := &Feature{GeoJSON: []byte(`{"type":"Feature","properties":{"name":"Main Street"}}`)}
	if got := f.Name(); got != "Main Street" {
		t.Errorf("expected name from geojson, got %q", got)
	}

	f = &Feature{GeoJSON: []byte(`{"type":"Feature","properties":{}}`)}
	if got := f.Name(); got != "" {
		t.Errorf("expected empty name, got %q", got)
	}

	f = &Feature{}
	if got := f.Name(); got != "" {
		t.Errorf("expected empty name for nil geojson, got %q", got)
	}
}

func TestValidOSMType(t *testing.T) {
	for _, ok := range []string{"node", "way", "relation"} {
		if !ValidOSMType(ok) {
			t.Errorf("expected %q to be valid", ok)
		}
	}
	for _, bad := range []string{"", "Node", "point", "changeset"} {
		if ValidOSMType(bad) {
			t.Errorf("expected %q to be invalid", bad)
		}
	}
}
