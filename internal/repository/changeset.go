package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/deppfellow/osmcha-backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// DefaultPageSize and MaxPageSize bound the paginated list endpoints.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// changesetColumns is the shared select list. The check_user username is
// joined in so serialization never needs a second lookup, and bbox comes
// back as GeoJSON text.
const changesetColumns = `c.id, c.osm_uid, c.username, c.editor, c.comment, c.source,
	c.imagery_used, c.date, c.created, c.modified, c.deleted,
	ST_AsGeoJSON(c.bbox), c.is_suspect, c.checked, c.harmful,
	c.check_user_id, COALESCE(u.username, ''), c.check_date, c.new_features`

const changesetFrom = ` FROM changesets c LEFT JOIN users u ON u.id = c.check_user_id`

// changesetOrderings whitelists the order_by values accepted by the list
// endpoint. Anything else silently falls back to the default -id.
var changesetOrderings = map[string]string{
	"id":             "c.id",
	"date":           "c.date",
	"check_date":     "c.check_date",
	"create":         "c.created",
	"modify":         "c.modified",
	"delete":         "c.deleted",
	"number_reasons": "(SELECT COUNT(*) FROM changeset_reasons cr WHERE cr.changeset_id = c.id)",
}

// ChangesetFilter collects the query parameters of the changeset list
// endpoint. Zero values mean "not filtered".
type ChangesetFilter struct {
	IDs       []int64
	UIDs      []string
	Usernames []string
	CheckedBy []string

	Checked   *bool
	Harmful   *bool
	IsSuspect *bool

	Reasons []int64
	Tags    []int64

	// NoReasons/NoTags match changesets with no label of that kind,
	// from the "None" filter value.
	NoReasons bool
	NoTags    bool

	Editor  string
	Comment string
	Source  string

	DateGTE      *time.Time
	DateLTE      *time.Time
	CheckDateGTE *time.Time
	CheckDateLTE *time.Time

	CreateGTE *int
	CreateLTE *int
	ModifyGTE *int
	ModifyLTE *int
	DeleteGTE *int
	DeleteLTE *int

	// BBox is [west, south, east, north]; matches changesets whose
	// bounding polygon intersects it.
	BBox []float64

	// AreaLT keeps changesets whose bbox area is below the given value
	// in square degrees.
	AreaLT *float64

	// HideWhitelistOf excludes changesets by editors whitelisted by the
	// given reviewer.
	HideWhitelistOf *int64

	OrderBy  string
	Page     int
	PageSize int
}

// Normalize applies pagination defaults and bounds.
func (f *ChangesetFilter) Normalize() {
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

// orderClause resolves the order_by value against the whitelist. A "-"
// prefix means descending.
func (f *ChangesetFilter) orderClause() string {
	orderBy := f.OrderBy
	direction := "ASC"
	if strings.HasPrefix(orderBy, "-") {
		orderBy = orderBy[1:]
		direction = "DESC"
	}

	expr, ok := changesetOrderings[orderBy]
	if !ok {
		return "c.id DESC"
	}
	return expr + " " + direction
}

// buildChangesetListQuery renders the filter into SQL with positional
// args. A COUNT(*) OVER() window carries the unpaginated total so the
// list needs a single round trip.
func buildChangesetListQuery(f *ChangesetFilter) (string, []any) {
	var args []any
	clauses := changesetConditions(f, &args)

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	query := "SELECT " + changesetColumns + ", COUNT(*) OVER() AS total" + changesetFrom +
		" WHERE " + strings.Join(clauses, " AND ") +
		" ORDER BY " + f.orderClause() +
		" LIMIT " + arg(f.PageSize) +
		" OFFSET " + arg((f.Page-1)*f.PageSize)

	return query, args
}

// changesetConditions renders the filter into WHERE clauses against the
// c (changesets) and u (check user) aliases, appending positional args
// to args. Shared by the list query and the stats aggregates.
func changesetConditions(f *ChangesetFilter, args *[]any) []string {
	var clauses []string

	arg := func(v any) string {
		*args = append(*args, v)
		return fmt.Sprintf("$%d", len(*args))
	}

	// Changesets harvested without user metadata never show up in
	// listings.
	clauses = append(clauses, "c.username <> ''")

	if len(f.IDs) > 0 {
		clauses = append(clauses, "c.id = ANY("+arg(f.IDs)+")")
	}
	if len(f.UIDs) > 0 {
		clauses = append(clauses, "c.osm_uid = ANY("+arg(f.UIDs)+")")
	}
	if len(f.Usernames) > 0 {
		clauses = append(clauses, "c.username = ANY("+arg(f.Usernames)+")")
	}
	if len(f.CheckedBy) > 0 {
		clauses = append(clauses, "u.username = ANY("+arg(f.CheckedBy)+")")
	}

	if f.Checked != nil {
		clauses = append(clauses, "c.checked = "+arg(*f.Checked))
	}
	if f.Harmful != nil {
		clauses = append(clauses, "c.harmful = "+arg(*f.Harmful))
	}
	if f.IsSuspect != nil {
		clauses = append(clauses, "c.is_suspect = "+arg(*f.IsSuspect))
	}

	if len(f.Reasons) > 0 {
		clauses = append(clauses,
			"EXISTS (SELECT 1 FROM changeset_reasons cr WHERE cr.changeset_id = c.id AND cr.reason_id = ANY("+arg(f.Reasons)+"))")
	}
	if f.NoReasons {
		clauses = append(clauses,
			"NOT EXISTS (SELECT 1 FROM changeset_reasons cr WHERE cr.changeset_id = c.id)")
	}
	if len(f.Tags) > 0 {
		clauses = append(clauses,
			"EXISTS (SELECT 1 FROM changeset_tags ct WHERE ct.changeset_id = c.id AND ct.tag_id = ANY("+arg(f.Tags)+"))")
	}
	if f.NoTags {
		clauses = append(clauses,
			"NOT EXISTS (SELECT 1 FROM changeset_tags ct WHERE ct.changeset_id = c.id)")
	}

	if f.Editor != "" {
		clauses = append(clauses, "c.editor ILIKE "+arg("%"+f.Editor+"%"))
	}
	if f.Comment != "" {
		clauses = append(clauses, "c.comment ILIKE "+arg("%"+f.Comment+"%"))
	}
	if f.Source != "" {
		clauses = append(clauses, "c.source ILIKE "+arg("%"+f.Source+"%"))
	}

	if f.DateGTE != nil {
		clauses = append(clauses, "c.date >= "+arg(*f.DateGTE))
	}
	if f.DateLTE != nil {
		clauses = append(clauses, "c.date <= "+arg(*f.DateLTE))
	}
	if f.CheckDateGTE != nil {
		clauses = append(clauses, "c.check_date >= "+arg(*f.CheckDateGTE))
	}
	if f.CheckDateLTE != nil {
		clauses = append(clauses, "c.check_date <= "+arg(*f.CheckDateLTE))
	}

	if f.CreateGTE != nil {
		clauses = append(clauses, "c.created >= "+arg(*f.CreateGTE))
	}
	if f.CreateLTE != nil {
		clauses = append(clauses, "c.created <= "+arg(*f.CreateLTE))
	}
	if f.ModifyGTE != nil {
		clauses = append(clauses, "c.modified >= "+arg(*f.ModifyGTE))
	}
	if f.ModifyLTE != nil {
		clauses = append(clauses, "c.modified <= "+arg(*f.ModifyLTE))
	}
	if f.DeleteGTE != nil {
		clauses = append(clauses, "c.deleted >= "+arg(*f.DeleteGTE))
	}
	if f.DeleteLTE != nil {
		clauses = append(clauses, "c.deleted <= "+arg(*f.DeleteLTE))
	}

	if len(f.BBox) == 4 {
		clauses = append(clauses, fmt.Sprintf(
			"c.bbox && ST_MakeEnvelope(%s, %s, %s, %s, 4326)",
			arg(f.BBox[0]), arg(f.BBox[1]), arg(f.BBox[2]), arg(f.BBox[3])))
	}
	if f.AreaLT != nil {
		clauses = append(clauses, "ST_Area(c.bbox) < "+arg(*f.AreaLT))
	}

	if f.HideWhitelistOf != nil {
		clauses = append(clauses,
			"NOT EXISTS (SELECT 1 FROM user_whitelists w WHERE w.user_id = "+arg(*f.HideWhitelistOf)+" AND w.whitelist_user = c.username)")
	}

	return clauses
}

// ChangesetRepository runs the changeset SQL.
type ChangesetRepository struct {
	pool *pgxpool.Pool
}

// NewChangesetRepository constructs a ChangesetRepository.
func NewChangesetRepository(pool *pgxpool.Pool) *ChangesetRepository {
	return &ChangesetRepository{pool: pool}
}

func scanChangeset(row pgx.Row, extra ...any) (*models.Changeset, error) {
	var (
		cs          models.Changeset
		bbox        *string
		newFeatures []byte
	)

	dest := []any{
		&cs.ID, &cs.UID, &cs.Username, &cs.Editor, &cs.Comment, &cs.Source,
		&cs.ImageryUsed, &cs.Date, &cs.Created, &cs.Modified, &cs.Deleted,
		&bbox, &cs.IsSuspect, &cs.Checked, &cs.Harmful,
		&cs.CheckUserID, &cs.CheckUser, &cs.CheckDate, &newFeatures,
	}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if bbox != nil {
		cs.BBox = json.RawMessage(*bbox)
	}
	cs.NewFeatures = []models.NewFeature{}
	if len(newFeatures) > 0 {
		if err := json.Unmarshal(newFeatures, &cs.NewFeatures); err != nil {
			return nil, errors.Wrap(err, "decoding new_features")
		}
	}

	return &cs, nil
}

// List returns one page of changesets matching the filter and the
// unpaginated total count.
func (r *ChangesetRepository) List(ctx context.Context, filter *ChangesetFilter) ([]models.Changeset, int64, error) {
	filter.Normalize()
	query, args := buildChangesetListQuery(filter)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing changesets")
	}
	defer rows.Close()

	var (
		changesets []models.Changeset
		total      int64
	)
	for rows.Next() {
		cs, err := scanChangeset(rows, &total)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scanning changeset")
		}
		changesets = append(changesets, *cs)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := r.loadLabels(ctx, changesets); err != nil {
		return nil, 0, err
	}

	return changesets, total, nil
}

// Get returns a single changeset with its reasons and tags.
func (r *ChangesetRepository) Get(ctx context.Context, id int64) (*models.Changeset, error) {
	query := "SELECT " + changesetColumns + changesetFrom + " WHERE c.id = $1"

	cs, err := scanChangeset(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, errors.Wrap(err, "table:changesets:")
	}

	page := []models.Changeset{*cs}
	if err := r.loadLabels(ctx, page); err != nil {
		return nil, err
	}
	return &page[0], nil
}

// loadLabels batch-loads reasons and tags for a page of changesets.
func (r *ChangesetRepository) loadLabels(ctx context.Context, changesets []models.Changeset) error {
	if len(changesets) == 0 {
		return nil
	}

	ids := make([]int64, len(changesets))
	index := make(map[int64]*models.Changeset, len(changesets))
	for i := range changesets {
		ids[i] = changesets[i].ID
		index[changesets[i].ID] = &changesets[i]
		changesets[i].Reasons = []models.Label{}
		changesets[i].Tags = []models.Label{}
	}

	load := func(query string, assign func(cs *models.Changeset, label models.Label)) error {
		rows, err := r.pool.Query(ctx, query, ids)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				changesetID int64
				label       models.Label
			)
			if err := rows.Scan(&changesetID, &label.ID, &label.Name, &label.IsVisible); err != nil {
				return err
			}
			if cs, ok := index[changesetID]; ok {
				assign(cs, label)
			}
		}
		return rows.Err()
	}

	reasonQuery := `SELECT cr.changeset_id, sr.id, sr.name, sr.is_visible
		FROM changeset_reasons cr
		JOIN suspicion_reasons sr ON sr.id = cr.reason_id
		WHERE cr.changeset_id = ANY($1) ORDER BY sr.id`
	if err := load(reasonQuery, func(cs *models.Changeset, label models.Label) {
		cs.Reasons = append(cs.Reasons, label)
	}); err != nil {
		return errors.Wrap(err, "loading changeset reasons")
	}

	tagQuery := `SELECT ct.changeset_id, t.id, t.name, t.is_visible
		FROM changeset_tags ct
		JOIN tags t ON t.id = ct.tag_id
		WHERE ct.changeset_id = ANY($1) ORDER BY t.id`
	if err := load(tagQuery, func(cs *models.Changeset, label models.Label) {
		cs.Tags = append(cs.Tags, label)
	}); err != nil {
		return errors.Wrap(err, "loading changeset tags")
	}

	return nil
}

// GetOrCreate inserts the changeset if it does not exist yet and reports
// whether a row was created. Concurrent inserts of the same id are
// tolerated via ON CONFLICT DO NOTHING.
func (r *ChangesetRepository) GetOrCreate(ctx context.Context, cs *models.Changeset) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO changesets (id, osm_uid, username, editor, comment, source, imagery_used,
			date, created, modified, deleted, is_suspect)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`,
		cs.ID, cs.UID, cs.Username, cs.Editor, cs.Comment, cs.Source, cs.ImageryUsed,
		cs.Date, cs.Created, cs.Modified, cs.Deleted, cs.IsSuspect,
	)
	if err != nil {
		return false, errors.Wrap(err, "creating changeset")
	}
	return tag.RowsAffected() > 0, nil
}

// SetBBox stores the bounding polygon from a GeoJSON geometry document.
func (r *ChangesetRepository) SetBBox(ctx context.Context, id int64, geojson json.RawMessage) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE changesets SET bbox = ST_SetSRID(ST_GeomFromGeoJSON($2), 4326) WHERE id = $1`,
		id, string(geojson))
	return errors.Wrap(err, "setting changeset bbox")
}

// UpdateMetadata refreshes the OSM-derived fields after an enrichment
// fetch from the OSM API.
func (r *ChangesetRepository) UpdateMetadata(ctx context.Context, cs *models.Changeset) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE changesets
		SET osm_uid = $2, username = $3, editor = $4, comment = $5, source = $6,
			imagery_used = $7, date = $8, created = $9, modified = $10, deleted = $11
		WHERE id = $1`,
		cs.ID, cs.UID, cs.Username, cs.Editor, cs.Comment, cs.Source,
		cs.ImageryUsed, cs.Date, cs.Created, cs.Modified, cs.Deleted,
	)
	return errors.Wrap(err, "updating changeset metadata")
}

// SetSuspect flags the changeset and attaches the given suspicion
// reasons, ignoring links that already exist.
func (r *ChangesetRepository) SetSuspect(ctx context.Context, id int64, reasonIDs []int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE changesets SET is_suspect = TRUE WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "flagging changeset suspect")
	}

	for _, reasonID := range reasonIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO changeset_reasons (changeset_id, reason_id)
			VALUES ($1, $2) ON CONFLICT DO NOTHING`, id, reasonID); err != nil {
			return errors.Wrap(err, "attaching suspicion reason")
		}
	}

	return tx.Commit(ctx)
}

// MergeNewFeatures folds the incoming entries into the stored
// new_features document. The row is locked for the read-modify-write so
// concurrent detector submissions cannot lose entries.
func (r *ChangesetRepository) MergeNewFeatures(ctx context.Context, id int64, incoming []models.NewFeature) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var stored []byte
	if err := tx.QueryRow(ctx,
		`SELECT new_features FROM changesets WHERE id = $1 FOR UPDATE`, id).Scan(&stored); err != nil {
		return errors.Wrap(err, "table:changesets:")
	}

	var existing []models.NewFeature
	if len(stored) > 0 {
		if err := json.Unmarshal(stored, &existing); err != nil {
			return errors.Wrap(err, "decoding new_features")
		}
	}

	merged, err := json.Marshal(models.MergeNewFeatures(existing, incoming))
	if err != nil {
		return errors.Wrap(err, "encoding new_features")
	}

	if _, err := tx.Exec(ctx,
		`UPDATE changesets SET new_features = $2 WHERE id = $1`, id, merged); err != nil {
		return errors.Wrap(err, "storing new_features")
	}

	return tx.Commit(ctx)
}

// Check marks an unchecked changeset as reviewed, setting the four check
// fields together and optionally replacing its tags in the same
// transaction. It reports false when the changeset was already checked.
// A tag id that does not exist fails the whole transaction with a
// foreign key violation.
func (r *ChangesetRepository) Check(ctx context.Context, id, userID int64, harmful bool, tagIDs []int64) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE changesets
		SET checked = TRUE, harmful = $2, check_user_id = $3, check_date = NOW()
		WHERE id = $1 AND checked = FALSE`,
		id, harmful, userID,
	)
	if err != nil {
		return false, errors.Wrap(err, "checking changeset")
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if tagIDs != nil {
		if _, err := tx.Exec(ctx,
			`DELETE FROM changeset_tags WHERE changeset_id = $1`, id); err != nil {
			return false, errors.Wrap(err, "clearing changeset tags")
		}
		for _, tagID := range tagIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO changeset_tags (changeset_id, tag_id)
				VALUES ($1, $2) ON CONFLICT DO NOTHING`, id, tagID); err != nil {
				return false, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Uncheck clears the four check fields of a checked changeset, leaving
// tags in place. It reports false when the changeset was not checked.
func (r *ChangesetRepository) Uncheck(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE changesets
		SET checked = FALSE, harmful = NULL, check_user_id = NULL, check_date = NULL
		WHERE id = $1 AND checked = TRUE`, id)
	if err != nil {
		return false, errors.Wrap(err, "unchecking changeset")
	}
	return tag.RowsAffected() > 0, nil
}

// AddTag links a tag to the changeset; adding a tag twice is a no-op. A
// missing tag id surfaces as a foreign key violation.
func (r *ChangesetRepository) AddTag(ctx context.Context, changesetID, tagID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO changeset_tags (changeset_id, tag_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`, changesetID, tagID)
	return err
}

// RemoveTag unlinks a tag from the changeset.
func (r *ChangesetRepository) RemoveTag(ctx context.Context, changesetID, tagID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM changeset_tags WHERE changeset_id = $1 AND tag_id = $2`, changesetID, tagID)
	return errors.Wrap(err, "removing changeset tag")
}
