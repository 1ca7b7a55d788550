package repository

import (
	"context"

	"github.com/deppfellow/osmcha-backend/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// LabelRepository serves both label tables, suspicion_reasons and tags;
// they share the same shape and queries. The table name is fixed at
// construction and never comes from request input.
type LabelRepository struct {
	pool  *pgxpool.Pool
	table string
}

// NewLabelRepository constructs a LabelRepository over the given table.
func NewLabelRepository(pool *pgxpool.Pool, table string) *LabelRepository {
	return &LabelRepository{pool: pool, table: table}
}

// List returns all labels, or only the visible ones when visibleOnly is
// set. Hidden labels are reserved for staff.
func (r *LabelRepository) List(ctx context.Context, visibleOnly bool) ([]models.Label, error) {
	query := `SELECT id, name, is_visible FROM ` + r.table
	if visibleOnly {
		query += ` WHERE is_visible = TRUE`
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", r.table)
	}
	defer rows.Close()

	labels := []models.Label{}
	for rows.Next() {
		var label models.Label
		if err := rows.Scan(&label.ID, &label.Name, &label.IsVisible); err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

// Get returns one label by id.
func (r *LabelRepository) Get(ctx context.Context, id int64) (*models.Label, error) {
	var label models.Label
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, is_visible FROM `+r.table+` WHERE id = $1`, id).
		Scan(&label.ID, &label.Name, &label.IsVisible)
	if err != nil {
		return nil, errors.Wrap(err, "table:"+r.table+":")
	}
	return &label, nil
}

// GetOrCreateByName resolves a label name to its row, inserting it when
// missing. Concurrent inserts of the same name are tolerated via
// ON CONFLICT DO NOTHING plus a re-select.
func (r *LabelRepository) GetOrCreateByName(ctx context.Context, name string) (*models.Label, error) {
	if _, err := r.pool.Exec(ctx,
		`INSERT INTO `+r.table+` (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name); err != nil {
		return nil, errors.Wrapf(err, "creating %s", r.table)
	}

	var label models.Label
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, is_visible FROM `+r.table+` WHERE name = $1`, name).
		Scan(&label.ID, &label.Name, &label.IsVisible)
	if err != nil {
		return nil, errors.Wrap(err, "table:"+r.table+":")
	}
	return &label, nil
}
