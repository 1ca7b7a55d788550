package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deppfellow/osmcha-backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const featureColumns = `f.id, f.changeset_id, f.osm_id, f.osm_type, f.url, f.osm_version,
	f.comparator_version, ST_AsGeoJSON(f.geometry), ST_AsGeoJSON(f.old_geometry),
	f.geojson, f.old_geojson, f.checked, f.harmful,
	f.check_user_id, COALESCE(u.username, ''), f.check_date,
	c.osm_uid, c.date`

const featureFrom = ` FROM features f
	JOIN changesets c ON c.id = f.changeset_id
	LEFT JOIN users u ON u.id = f.check_user_id`

// FeatureFilter collects the query parameters of the feature list
// endpoint.
type FeatureFilter struct {
	ChangesetIDs []int64
	OSMType      string
	Checked      *bool
	Harmful      *bool
	Reasons      []int64
	NoReasons    bool
	CheckedBy    []string
	BBox         []float64

	OrderBy  string
	Page     int
	PageSize int
}

// featureOrderings whitelists the order_by values of the feature feed.
var featureOrderings = map[string]string{
	"id":         "f.id",
	"date":       "c.date",
	"check_date": "f.check_date",
}

// orderClause resolves the order_by value, defaulting to newest
// changesets first. Unknown values fall back silently.
func (f *FeatureFilter) orderClause() string {
	orderBy := f.OrderBy
	direction := "ASC"
	if strings.HasPrefix(orderBy, "-") {
		orderBy = orderBy[1:]
		direction = "DESC"
	}

	expr, ok := featureOrderings[orderBy]
	if !ok {
		return "c.date DESC, f.id DESC"
	}
	return expr + " " + direction + ", f.id DESC"
}

// Normalize applies pagination defaults and bounds.
func (f *FeatureFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
}

func buildFeatureListQuery(f *FeatureFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	clauses = append(clauses, "c.username <> ''")

	if len(f.ChangesetIDs) > 0 {
		clauses = append(clauses, "f.changeset_id = ANY("+arg(f.ChangesetIDs)+")")
	}
	if f.OSMType != "" {
		clauses = append(clauses, "f.osm_type = "+arg(f.OSMType))
	}
	if f.Checked != nil {
		clauses = append(clauses, "f.checked = "+arg(*f.Checked))
	}
	if f.Harmful != nil {
		clauses = append(clauses, "f.harmful = "+arg(*f.Harmful))
	}
	if len(f.Reasons) > 0 {
		clauses = append(clauses,
			"EXISTS (SELECT 1 FROM feature_reasons fr WHERE fr.feature_id = f.id AND fr.reason_id = ANY("+arg(f.Reasons)+"))")
	}
	if f.NoReasons {
		clauses = append(clauses,
			"NOT EXISTS (SELECT 1 FROM feature_reasons fr WHERE fr.feature_id = f.id)")
	}
	if len(f.CheckedBy) > 0 {
		clauses = append(clauses, "u.username = ANY("+arg(f.CheckedBy)+")")
	}
	if len(f.BBox) == 4 {
		clauses = append(clauses, fmt.Sprintf(
			"f.geometry && ST_MakeEnvelope(%s, %s, %s, %s, 4326)",
			arg(f.BBox[0]), arg(f.BBox[1]), arg(f.BBox[2]), arg(f.BBox[3])))
	}

	query := "SELECT " + featureColumns + ", COUNT(*) OVER() AS total" + featureFrom +
		" WHERE " + strings.Join(clauses, " AND ") +
		" ORDER BY " + f.orderClause() +
		" LIMIT " + arg(f.PageSize) +
		" OFFSET " + arg((f.Page-1)*f.PageSize)

	return query, args
}

// FeatureRepository runs the feature SQL.
type FeatureRepository struct {
	pool *pgxpool.Pool
}

// NewFeatureRepository constructs a FeatureRepository.
func NewFeatureRepository(pool *pgxpool.Pool) *FeatureRepository {
	return &FeatureRepository{pool: pool}
}

func scanFeature(row pgx.Row, extra ...any) (*models.Feature, error) {
	var (
		f           models.Feature
		geometry    *string
		oldGeometry *string
		geojson     []byte
		oldGeojson  []byte
	)

	dest := []any{
		&f.ID, &f.ChangesetID, &f.OSMID, &f.OSMType, &f.URL, &f.OSMVersion,
		&f.ComparatorVersion, &geometry, &oldGeometry,
		&geojson, &oldGeojson, &f.Checked, &f.Harmful,
		&f.CheckUserID, &f.CheckUser, &f.CheckDate,
		&f.ChangesetUID, &f.ChangesetDate,
	}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if geometry != nil {
		f.Geometry = json.RawMessage(*geometry)
	}
	if oldGeometry != nil {
		f.OldGeometry = json.RawMessage(*oldGeometry)
	}
	f.GeoJSON = geojson
	f.OldGeoJSON = oldGeojson

	return &f, nil
}

// List returns one page of features matching the filter and the
// unpaginated total count.
func (r *FeatureRepository) List(ctx context.Context, filter *FeatureFilter) ([]models.Feature, int64, error) {
	filter.Normalize()
	query, args := buildFeatureListQuery(filter)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing features")
	}
	defer rows.Close()

	var (
		features []models.Feature
		total    int64
	)
	for rows.Next() {
		f, err := scanFeature(rows, &total)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scanning feature")
		}
		features = append(features, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := r.loadReasons(ctx, features); err != nil {
		return nil, 0, err
	}

	return features, total, nil
}

// Get returns one feature addressed by changeset id and URL slug
// ("{osm_type}-{osm_id}").
func (r *FeatureRepository) Get(ctx context.Context, changesetID int64, url string) (*models.Feature, error) {
	query := "SELECT " + featureColumns + featureFrom + " WHERE f.changeset_id = $1 AND f.url = $2"

	f, err := scanFeature(r.pool.QueryRow(ctx, query, changesetID, url))
	if err != nil {
		return nil, errors.Wrap(err, "table:features:")
	}

	page := []models.Feature{*f}
	if err := r.loadReasons(ctx, page); err != nil {
		return nil, err
	}
	return &page[0], nil
}

func (r *FeatureRepository) loadReasons(ctx context.Context, features []models.Feature) error {
	if len(features) == 0 {
		return nil
	}

	ids := make([]int64, len(features))
	index := make(map[int64]*models.Feature, len(features))
	for i := range features {
		ids[i] = features[i].ID
		index[features[i].ID] = &features[i]
		features[i].Reasons = []models.Label{}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT fr.feature_id, sr.id, sr.name, sr.is_visible
		FROM feature_reasons fr
		JOIN suspicion_reasons sr ON sr.id = fr.reason_id
		WHERE fr.feature_id = ANY($1) ORDER BY sr.id`, ids)
	if err != nil {
		return errors.Wrap(err, "loading feature reasons")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			featureID int64
			label     models.Label
		)
		if err := rows.Scan(&featureID, &label.ID, &label.Name, &label.IsVisible); err != nil {
			return err
		}
		if f, ok := index[featureID]; ok {
			f.Reasons = append(f.Reasons, label)
		}
	}
	return rows.Err()
}

// GetOrCreate inserts the feature if the (changeset, osm_id) pair does
// not exist yet and returns the stored row id. The Geometry/OldGeometry
// raw members feed the PostGIS columns; the geojson columns keep the
// documents as submitted.
func (r *FeatureRepository) GetOrCreate(ctx context.Context, f *models.Feature) (int64, bool, error) {
	var geometry, oldGeometry *string
	if len(f.Geometry) > 0 {
		s := string(f.Geometry)
		geometry = &s
	}
	if len(f.OldGeometry) > 0 {
		s := string(f.OldGeometry)
		oldGeometry = &s
	}

	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO features (changeset_id, osm_id, osm_type, url, osm_version, comparator_version,
			geometry, old_geometry, geojson, old_geojson)
		VALUES ($1, $2, $3, $4, $5, $6,
			ST_SetSRID(ST_GeomFromGeoJSON($7), 4326), ST_SetSRID(ST_GeomFromGeoJSON($8), 4326), $9, $10)
		ON CONFLICT (changeset_id, osm_id) DO NOTHING
		RETURNING id`,
		f.ChangesetID, f.OSMID, f.OSMType, f.URL, f.OSMVersion, f.ComparatorVersion,
		geometry, oldGeometry, f.GeoJSON, f.OldGeoJSON,
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, errors.Wrap(err, "creating feature")
	}

	// Conflict: another submission won the insert, fetch the winner.
	err = r.pool.QueryRow(ctx,
		`SELECT id FROM features WHERE changeset_id = $1 AND osm_id = $2`,
		f.ChangesetID, f.OSMID).Scan(&id)
	if err != nil {
		return 0, false, errors.Wrap(err, "table:features:")
	}
	return id, false, nil
}

// AddReasons links suspicion reasons to the feature, ignoring links that
// already exist.
func (r *FeatureRepository) AddReasons(ctx context.Context, featureID int64, reasonIDs []int64) error {
	for _, reasonID := range reasonIDs {
		if _, err := r.pool.Exec(ctx, `
			INSERT INTO feature_reasons (feature_id, reason_id)
			VALUES ($1, $2) ON CONFLICT DO NOTHING`, featureID, reasonID); err != nil {
			return errors.Wrap(err, "attaching feature reason")
		}
	}
	return nil
}

// Check marks an unchecked feature as reviewed, setting the four check
// fields together. It reports false when the feature was already checked.
func (r *FeatureRepository) Check(ctx context.Context, featureID, userID int64, harmful bool) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE features
		SET checked = TRUE, harmful = $2, check_user_id = $3, check_date = NOW()
		WHERE id = $1 AND checked = FALSE`,
		featureID, harmful, userID)
	if err != nil {
		return false, errors.Wrap(err, "checking feature")
	}
	return tag.RowsAffected() > 0, nil
}

// Uncheck clears the four check fields of a checked feature. It reports
// false when the feature was not checked.
func (r *FeatureRepository) Uncheck(ctx context.Context, featureID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE features
		SET checked = FALSE, harmful = NULL, check_user_id = NULL, check_date = NULL
		WHERE id = $1 AND checked = TRUE`, featureID)
	if err != nil {
		return false, errors.Wrap(err, "unchecking feature")
	}
	return tag.RowsAffected() > 0, nil
}
