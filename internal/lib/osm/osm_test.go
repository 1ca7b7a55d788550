package osm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const changesetXML = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="OpenStreetMap server">
 <changeset id="31982803" created_at="2015-06-15T12:00:00Z" open="false"
	user="test_user" uid="9857"
	min_lat="40.0" min_lon="-111.0" max_lat="41.0" max_lon="-110.0">
  <tag k="comment" v="add new city"/>
  <tag k="created_by" v="JOSM/1.5 (8339)"/>
  <tag k="source" v="Bing"/>
  <tag k="imagery_used" v="Bing aerial"/>
 </changeset>
</osm>`

func TestGetChangeset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/changeset/31982803" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if ua := r.Header.Get("User-Agent"); ua != "osmcha-backend" {
			t.Errorf("unexpected user agent: %q", ua)
		}
		w.Write([]byte(changesetXML))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "osmcha-backend")
	cs, err := client.GetChangeset(context.Background(), 31982803)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cs.ID != 31982803 || cs.User != "test_user" || cs.UID != "9857" {
		t.Errorf("unexpected changeset: %+v", cs)
	}
	if cs.Editor() != "JOSM/1.5 (8339)" {
		t.Errorf("unexpected editor: %q", cs.Editor())
	}
	if cs.Comment() != "add new city" {
		t.Errorf("unexpected comment: %q", cs.Comment())
	}
	if cs.Source() != "Bing" || cs.ImageryUsed() != "Bing aerial" {
		t.Errorf("unexpected source metadata: %q, %q", cs.Source(), cs.ImageryUsed())
	}
	if !cs.HasBBox() {
		t.Error("expected bbox coordinates")
	}

	bbox := string(cs.BBoxGeoJSON())
	if !strings.HasPrefix(bbox, `{"type":"Polygon"`) {
		t.Errorf("unexpected bbox geojson: %s", bbox)
	}
	if !strings.Contains(bbox, "[-111,40]") {
		t.Errorf("expected southwest corner in ring: %s", bbox)
	}
}

func TestGetChangesetErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "osmcha-backend")
	if _, err := client.GetChangeset(context.Background(), 1); err == nil {
		t.Fatal("expected error for 404 response")
	}
}
