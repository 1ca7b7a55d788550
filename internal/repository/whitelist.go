package repository

import (
	"context"

	"github.com/deppfellow/osmcha-backend/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// WhitelistRepository manages per-reviewer trusted-editor entries.
type WhitelistRepository struct {
	pool *pgxpool.Pool
}

// NewWhitelistRepository constructs a WhitelistRepository.
func NewWhitelistRepository(pool *pgxpool.Pool) *WhitelistRepository {
	return &WhitelistRepository{pool: pool}
}

// List returns all whitelist entries of one reviewer.
func (r *WhitelistRepository) List(ctx context.Context, userID int64) ([]models.UserWhitelist, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, whitelist_user, created_at
		FROM user_whitelists WHERE user_id = $1 ORDER BY whitelist_user`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing whitelist")
	}
	defer rows.Close()

	entries := []models.UserWhitelist{}
	for rows.Next() {
		var entry models.UserWhitelist
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.WhitelistUser, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Create adds an editor to the reviewer's whitelist. A duplicate entry
// surfaces as a unique violation.
func (r *WhitelistRepository) Create(ctx context.Context, userID int64, whitelistUser string) (*models.UserWhitelist, error) {
	var entry models.UserWhitelist
	err := r.pool.QueryRow(ctx, `
		INSERT INTO user_whitelists (user_id, whitelist_user)
		VALUES ($1, $2)
		RETURNING id, user_id, whitelist_user, created_at`,
		userID, whitelistUser).
		Scan(&entry.ID, &entry.UserID, &entry.WhitelistUser, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Delete removes an editor from the reviewer's whitelist by username. It
// reports false when no entry matched.
func (r *WhitelistRepository) Delete(ctx context.Context, userID int64, whitelistUser string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM user_whitelists WHERE user_id = $1 AND whitelist_user = $2`,
		userID, whitelistUser)
	if err != nil {
		return false, errors.Wrap(err, "deleting whitelist entry")
	}
	return tag.RowsAffected() > 0, nil
}
