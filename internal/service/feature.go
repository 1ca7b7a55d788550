package service

import (
	"context"

	"github.com/deppfellow/osmcha-backend/internal/errs"
	"github.com/deppfellow/osmcha-backend/internal/models"
	"github.com/deppfellow/osmcha-backend/internal/repository"
)

// FeatureStore is the repository surface the feature service needs.
type FeatureStore interface {
	List(ctx context.Context, filter *repository.FeatureFilter) ([]models.Feature, int64, error)
	Get(ctx context.Context, changesetID int64, url string) (*models.Feature, error)
	Check(ctx context.Context, featureID, userID int64, harmful bool) (bool, error)
	Uncheck(ctx context.Context, featureID int64) (bool, error)
}

// FeatureService implements the review state machine on individual
// features, mirroring the changeset rules.
type FeatureService struct {
	features FeatureStore
}

// NewFeatureService constructs a FeatureService.
func NewFeatureService(features FeatureStore) *FeatureService {
	return &FeatureService{features: features}
}

// List returns one page of features and the unpaginated total.
func (svc *FeatureService) List(ctx context.Context, filter *repository.FeatureFilter) ([]models.Feature, int64, error) {
	return svc.features.List(ctx, filter)
}

// Get returns one feature addressed by changeset id and URL slug.
func (svc *FeatureService) Get(ctx context.Context, changesetID int64, url string) (*models.Feature, error) {
	return svc.features.Get(ctx, changesetID, url)
}

// SetCheck marks a feature as reviewed, good or harmful.
func (svc *FeatureService) SetCheck(ctx context.Context, user *models.User, changesetID int64, url string, harmful bool) error {
	f, err := svc.features.Get(ctx, changesetID, url)
	if err != nil {
		return err
	}

	if user.OSMUID != "" && f.ChangesetUID == user.OSMUID {
		return errs.NewForbiddenError("User can not check his own edit", false)
	}

	updated, err := svc.features.Check(ctx, f.ID, user.ID, harmful)
	if err != nil {
		return err
	}
	if !updated {
		return errs.NewForbiddenError("Feature was already checked", false)
	}
	return nil
}

// Uncheck clears the review of a checked feature. Only the reviewer who
// checked it or a staff user may uncheck.
func (svc *FeatureService) Uncheck(ctx context.Context, user *models.User, changesetID int64, url string) error {
	f, err := svc.features.Get(ctx, changesetID, url)
	if err != nil {
		return err
	}

	if !f.Checked {
		return errs.NewForbiddenError("Feature is not checked", false)
	}
	if !user.IsStaff && (f.CheckUserID == nil || *f.CheckUserID != user.ID) {
		return errs.NewForbiddenError("User does not have permission to uncheck this feature", false)
	}

	updated, err := svc.features.Uncheck(ctx, f.ID)
	if err != nil {
		return err
	}
	if !updated {
		return errs.NewForbiddenError("Feature is not checked", false)
	}
	return nil
}
