package service

import (
	"context"

	"github.com/deppfellow/osmcha-backend/internal/errs"
	"github.com/deppfellow/osmcha-backend/internal/models"
	"github.com/deppfellow/osmcha-backend/internal/repository"
	"github.com/rs/zerolog"
)

// ChangesetStore is the repository surface the changeset service needs.
type ChangesetStore interface {
	List(ctx context.Context, filter *repository.ChangesetFilter) ([]models.Changeset, int64, error)
	Get(ctx context.Context, id int64) (*models.Changeset, error)
	Check(ctx context.Context, id, userID int64, harmful bool, tagIDs []int64) (bool, error)
	Uncheck(ctx context.Context, id int64) (bool, error)
	AddTag(ctx context.Context, changesetID, tagID int64) error
	RemoveTag(ctx context.Context, changesetID, tagID int64) error
}

// TagStore resolves tag ids for the tagging endpoints.
type TagStore interface {
	Get(ctx context.Context, id int64) (*models.Label, error)
}

// HarmfulAlerter enqueues a moderator alert when a changeset is marked
// harmful.
type HarmfulAlerter interface {
	EnqueueHarmfulAlert(changesetID int64, checkUser string) error
}

// ChangesetService implements the review state machine on changesets.
type ChangesetService struct {
	changesets ChangesetStore
	tags       TagStore
	alerter    HarmfulAlerter
	logger     *zerolog.Logger
}

// NewChangesetService constructs a ChangesetService. alerter may be nil
// when background jobs are disabled.
func NewChangesetService(changesets ChangesetStore, tags TagStore, alerter HarmfulAlerter, logger *zerolog.Logger) *ChangesetService {
	return &ChangesetService{
		changesets: changesets,
		tags:       tags,
		alerter:    alerter,
		logger:     logger,
	}
}

// List returns one page of changesets and the unpaginated total.
func (svc *ChangesetService) List(ctx context.Context, filter *repository.ChangesetFilter) ([]models.Changeset, int64, error) {
	return svc.changesets.List(ctx, filter)
}

// Get returns one changeset.
func (svc *ChangesetService) Get(ctx context.Context, id int64) (*models.Changeset, error) {
	return svc.changesets.Get(ctx, id)
}

// SetCheck marks a changeset as reviewed, good or harmful, optionally
// replacing its tags in the same transaction.
//
// Rules:
//   - a reviewer cannot check their own changeset
//   - an already checked changeset cannot be checked again
//   - a tag id that does not exist fails the whole operation
func (svc *ChangesetService) SetCheck(ctx context.Context, user *models.User, id int64, harmful bool, tagIDs []int64) error {
	cs, err := svc.changesets.Get(ctx, id)
	if err != nil {
		return err
	}

	if user.OSMUID != "" && cs.UID == user.OSMUID {
		return errs.NewForbiddenError("User can not check his own changeset", false)
	}

	updated, err := svc.changesets.Check(ctx, id, user.ID, harmful, tagIDs)
	if err != nil {
		return err
	}
	if !updated {
		return errs.NewForbiddenError("Changeset was already checked", false)
	}

	if harmful && svc.alerter != nil {
		if err := svc.alerter.EnqueueHarmfulAlert(id, user.Username); err != nil {
			// The review itself succeeded; a lost alert is not worth a 500.
			svc.logger.Error().
				Err(err).
				Int64("changeset", id).
				Str("check_user", user.Username).
				Msg("Failed to enqueue harmful changeset alert")
		}
	}

	return nil
}

// Uncheck clears the review of a checked changeset. Only the reviewer
// who checked it or a staff user may uncheck; tags are preserved.
func (svc *ChangesetService) Uncheck(ctx context.Context, user *models.User, id int64) error {
	cs, err := svc.changesets.Get(ctx, id)
	if err != nil {
		return err
	}

	if !cs.Checked {
		return errs.NewForbiddenError("Changeset is not checked", false)
	}
	if !user.IsStaff && (cs.CheckUserID == nil || *cs.CheckUserID != user.ID) {
		return errs.NewForbiddenError("User does not have permission to uncheck this changeset", false)
	}

	updated, err := svc.changesets.Uncheck(ctx, id)
	if err != nil {
		return err
	}
	if !updated {
		return errs.NewForbiddenError("Changeset is not checked", false)
	}
	return nil
}

// AddTag attaches a tag to a changeset. Attaching a tag that is already
// present is a no-op.
func (svc *ChangesetService) AddTag(ctx context.Context, user *models.User, changesetID, tagID int64) (*models.Changeset, error) {
	if err := svc.authorizeTagging(ctx, user, changesetID, tagID); err != nil {
		return nil, err
	}
	if err := svc.changesets.AddTag(ctx, changesetID, tagID); err != nil {
		return nil, err
	}
	return svc.changesets.Get(ctx, changesetID)
}

// RemoveTag detaches a tag from a changeset.
func (svc *ChangesetService) RemoveTag(ctx context.Context, user *models.User, changesetID, tagID int64) (*models.Changeset, error) {
	if err := svc.authorizeTagging(ctx, user, changesetID, tagID); err != nil {
		return nil, err
	}
	if err := svc.changesets.RemoveTag(ctx, changesetID, tagID); err != nil {
		return nil, err
	}
	return svc.changesets.Get(ctx, changesetID)
}

// authorizeTagging enforces the tagging rules: the tag must exist, the
// changeset owner may never tag their own work, and a checked changeset
// may only be tagged by its reviewer or staff.
func (svc *ChangesetService) authorizeTagging(ctx context.Context, user *models.User, changesetID, tagID int64) error {
	if _, err := svc.tags.Get(ctx, tagID); err != nil {
		return err
	}

	cs, err := svc.changesets.Get(ctx, changesetID)
	if err != nil {
		return err
	}

	if user.OSMUID != "" && cs.UID == user.OSMUID {
		return errs.NewForbiddenError("User can not tag his own changeset", false)
	}
	if cs.Checked && !user.IsStaff && (cs.CheckUserID == nil || *cs.CheckUserID != user.ID) {
		return errs.NewForbiddenError("Only the user that checked the changeset can tag it", false)
	}
	return nil
}
