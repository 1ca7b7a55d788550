// Package osm is a minimal client for the OpenStreetMap API v0.6,
// covering the changeset metadata endpoint used to enrich harvested
// changesets.
package osm

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Changeset is the parsed metadata of one OSM changeset.
type Changeset struct {
	ID        int64     `xml:"id,attr"`
	UID       string    `xml:"uid,attr"`
	User      string    `xml:"user,attr"`
	CreatedAt time.Time `xml:"created_at,attr"`
	MinLon    float64   `xml:"min_lon,attr"`
	MinLat    float64   `xml:"min_lat,attr"`
	MaxLon    float64   `xml:"max_lon,attr"`
	MaxLat    float64   `xml:"max_lat,attr"`

	Tags []Tag `xml:"tag"`
}

// Tag is one k/v metadata tag on a changeset.
type Tag struct {
	Key   string `xml:"k,attr"`
	Value string `xml:"v,attr"`
}

type apiResponse struct {
	XMLName   xml.Name  `xml:"osm"`
	Changeset Changeset `xml:"changeset"`
}

// Tag returns the value of the named metadata tag, or "".
func (cs *Changeset) Tag(key string) string {
	for _, tag := range cs.Tags {
		if tag.Key == key {
			return tag.Value
		}
	}
	return ""
}

// Editor returns the created_by tag, the editor that uploaded the
// changeset.
func (cs *Changeset) Editor() string { return cs.Tag("created_by") }

// Comment returns the changeset comment.
func (cs *Changeset) Comment() string { return cs.Tag("comment") }

// Source returns the source tag.
func (cs *Changeset) Source() string { return cs.Tag("source") }

// ImageryUsed returns the imagery_used tag written by some editors.
func (cs *Changeset) ImageryUsed() string { return cs.Tag("imagery_used") }

// HasBBox reports whether the changeset carries bounding coordinates.
// Empty changesets come back without them.
func (cs *Changeset) HasBBox() bool {
	return cs.MinLon != 0 || cs.MinLat != 0 || cs.MaxLon != 0 || cs.MaxLat != 0
}

// BBoxGeoJSON renders the bounding box as a GeoJSON Polygon document.
func (cs *Changeset) BBoxGeoJSON() []byte {
	return []byte(fmt.Sprintf(
		`{"type":"Polygon","coordinates":[[[%g,%g],[%g,%g],[%g,%g],[%g,%g],[%g,%g]]]}`,
		cs.MinLon, cs.MinLat,
		cs.MaxLon, cs.MinLat,
		cs.MaxLon, cs.MaxLat,
		cs.MinLon, cs.MaxLat,
		cs.MinLon, cs.MinLat,
	))
}

// Client calls the OSM API.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient constructs a Client. baseURL is the API root, e.g.
// https://www.openstreetmap.org/api/0.6.
func NewClient(baseURL, userAgent string) *Client {
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetChangeset fetches the metadata of one changeset.
func (c *Client) GetChangeset(ctx context.Context, id int64) (*Changeset, error) {
	url := fmt.Sprintf("%s/changeset/%d", c.baseURL, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building OSM API request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "calling OSM API")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("OSM API returned status %d for changeset %d", resp.StatusCode, id)
	}

	var parsed apiResponse
	if err := xml.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, "decoding OSM API response")
	}
	if parsed.Changeset.ID == 0 {
		return nil, errors.Errorf("OSM API response has no changeset element for %d", id)
	}

	return &parsed.Changeset, nil
}
