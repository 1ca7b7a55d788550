package repository

import (
	"context"

	"github.com/deppfellow/osmcha-backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// UserRepository manages reviewer accounts.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, username, osm_uid, email, is_staff, is_active, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Username, &user.OSMUID, &user.Email,
		&user.IsStaff, &user.IsActive, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByTokenHash resolves an API token hash into a user account, or
// (nil, nil) when no account matches. Used by the auth middleware.
func (r *UserRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE token_hash = $1`, tokenHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "resolving token")
	}
	return user, nil
}

// Get returns one account by id.
func (r *UserRepository) Get(ctx context.Context, id int64) (*models.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, errors.Wrap(err, "table:users:")
	}
	return user, nil
}

// Create provisions a reviewer account with its token hash. A duplicate
// username surfaces as a unique violation.
func (r *UserRepository) Create(ctx context.Context, user *models.User, tokenHash string) (*models.User, error) {
	created, err := scanUser(r.pool.QueryRow(ctx, `
		INSERT INTO users (username, osm_uid, email, token_hash, is_staff)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		user.Username, user.OSMUID, user.Email, tokenHash, user.IsStaff))
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateEmail changes the account's alert address.
func (r *UserRepository) UpdateEmail(ctx context.Context, id int64, email string) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET email = $2 WHERE id = $1`, id, email)
	return errors.Wrap(err, "updating user email")
}
