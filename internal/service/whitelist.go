package service

import (
	"context"

	"github.com/deppfellow/osmcha-backend/internal/errs"
	"github.com/deppfellow/osmcha-backend/internal/models"
)

// WhitelistStore is the repository surface the whitelist service needs.
type WhitelistStore interface {
	List(ctx context.Context, userID int64) ([]models.UserWhitelist, error)
	Create(ctx context.Context, userID int64, whitelistUser string) (*models.UserWhitelist, error)
	Delete(ctx context.Context, userID int64, whitelistUser string) (bool, error)
}

// WhitelistService manages a reviewer's trusted-editor list. Every
// operation is scoped to the authenticated account.
type WhitelistService struct {
	whitelists WhitelistStore
}

// NewWhitelistService constructs a WhitelistService.
func NewWhitelistService(whitelists WhitelistStore) *WhitelistService {
	return &WhitelistService{whitelists: whitelists}
}

// List returns the caller's whitelist entries.
func (svc *WhitelistService) List(ctx context.Context, user *models.User) ([]models.UserWhitelist, error) {
	return svc.whitelists.List(ctx, user.ID)
}

// Add puts an editor on the caller's whitelist.
func (svc *WhitelistService) Add(ctx context.Context, user *models.User, whitelistUser string) (*models.UserWhitelist, error) {
	return svc.whitelists.Create(ctx, user.ID, whitelistUser)
}

// Remove deletes an editor from the caller's whitelist by username.
func (svc *WhitelistService) Remove(ctx context.Context, user *models.User, whitelistUser string) error {
	deleted, err := svc.whitelists.Delete(ctx, user.ID, whitelistUser)
	if err != nil {
		return err
	}
	if !deleted {
		return errs.NewNotFoundError("Whitelist entry not found", false, nil)
	}
	return nil
}
