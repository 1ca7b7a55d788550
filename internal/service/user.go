package service

import (
	"context"

	"github.com/deppfellow/osmcha-backend/internal/models"
)

// UserAccountStore is the repository surface the user service needs.
type UserAccountStore interface {
	Get(ctx context.Context, id int64) (*models.User, error)
	Create(ctx context.Context, user *models.User, tokenHash string) (*models.User, error)
	UpdateEmail(ctx context.Context, id int64, email string) error
}

// UserService provisions reviewer accounts and manages profile details.
type UserService struct {
	users UserAccountStore
}

// NewUserService constructs a UserService.
func NewUserService(users UserAccountStore) *UserService {
	return &UserService{users: users}
}

// Provision creates a reviewer account and returns it together with the
// raw API token. The token is only available here; the database keeps
// its hash.
func (svc *UserService) Provision(ctx context.Context, user *models.User) (*models.User, string, error) {
	token, err := models.GenerateToken()
	if err != nil {
		return nil, "", err
	}

	created, err := svc.users.Create(ctx, user, models.HashToken(token))
	if err != nil {
		return nil, "", err
	}
	return created, token, nil
}

// Get returns one account by id.
func (svc *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	return svc.users.Get(ctx, id)
}

// UpdateEmail changes the caller's alert address.
func (svc *UserService) UpdateEmail(ctx context.Context, user *models.User, email string) error {
	return svc.users.UpdateEmail(ctx, user.ID, email)
}
