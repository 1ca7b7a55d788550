package service

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/deppfellow/osmcha-backend/internal/errs"
	"github.com/deppfellow/osmcha-backend/internal/models"
	"github.com/deppfellow/osmcha-backend/internal/repository"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var testLogger = zerolog.Nop()

type fakeChangesetStore struct {
	changesets map[int64]*models.Changeset

	checkCalls   int
	uncheckCalls int
	addedTags    []int64
	removedTags  []int64
	lastTagIDs   []int64
}

func newFakeChangesetStore(changesets ...*models.Changeset) *fakeChangesetStore {
	store := &fakeChangesetStore{changesets: map[int64]*models.Changeset{}}
	for _, cs := range changesets {
		store.changesets[cs.ID] = cs
	}
	return store
}

func (s *fakeChangesetStore) List(ctx context.Context, filter *repository.ChangesetFilter) ([]models.Changeset, int64, error) {
	return nil, 0, nil
}

func (s *fakeChangesetStore) Get(ctx context.Context, id int64) (*models.Changeset, error) {
	cs, ok := s.changesets[id]
	if !ok {
		return nil, errs.NewNotFoundError("Changeset not found", false, nil)
	}
	return cs, nil
}

func (s *fakeChangesetStore) Check(ctx context.Context, id, userID int64, harmful bool, tagIDs []int64) (bool, error) {
	cs := s.changesets[id]
	if cs.Checked {
		return false, nil
	}
	s.checkCalls++
	s.lastTagIDs = tagIDs
	cs.Checked = true
	cs.Harmful = &harmful
	cs.CheckUserID = &userID
	return true, nil
}

func (s *fakeChangesetStore) Uncheck(ctx context.Context, id int64) (bool, error) {
	cs := s.changesets[id]
	if !cs.Checked {
		return false, nil
	}
	s.uncheckCalls++
	cs.Checked = false
	cs.Harmful = nil
	cs.CheckUserID = nil
	return true, nil
}

func (s *fakeChangesetStore) AddTag(ctx context.Context, changesetID, tagID int64) error {
	s.addedTags = append(s.addedTags, tagID)
	return nil
}

func (s *fakeChangesetStore) RemoveTag(ctx context.Context, changesetID, tagID int64) error {
	s.removedTags = append(s.removedTags, tagID)
	return nil
}

type fakeTagStore struct {
	tags map[int64]*models.Label
}

func (s *fakeTagStore) Get(ctx context.Context, id int64) (*models.Label, error) {
	tag, ok := s.tags[id]
	if !ok {
		return nil, errs.NewNotFoundError("Tag not found", false, nil)
	}
	return tag, nil
}

type fakeAlerter struct {
	alerts []int64
}

func (a *fakeAlerter) EnqueueHarmfulAlert(changesetID int64, checkUser string) error {
	a.alerts = append(a.alerts, changesetID)
	return nil
}

func forbidden(t *testing.T, err error) *errs.HTTPError {
	t.Helper()
	var httpErr *errs.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.Status != 403 {
		t.Fatalf("expected status 403, got %d", httpErr.Status)
	}
	return httpErr
}

func TestSetCheckMarksChangeset(t *testing.T) {
	store := newFakeChangesetStore(&models.Changeset{ID: 1, UID: "999"})
	alerter := &fakeAlerter{}
	svc := NewChangesetService(store, &fakeTagStore{}, alerter, &testLogger)
	reviewer := &models.User{ID: 7, OSMUID: "123", Username: "reviewer"}

	if err := svc.SetCheck(context.Background(), reviewer, 1, true, []int64{2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.checkCalls != 1 {
		t.Errorf("expected one check call, got %d", store.checkCalls)
	}
	if len(store.lastTagIDs) != 1 || store.lastTagIDs[0] != 2 {
		t.Errorf("expected tag ids forwarded, got %v", store.lastTagIDs)
	}
	if len(alerter.alerts) != 1 || alerter.alerts[0] != 1 {
		t.Errorf("expected harmful alert for changeset 1, got %v", alerter.alerts)
	}
}

func TestSetCheckGoodDoesNotAlert(t *testing.T) {
	store := newFakeChangesetStore(&models.Changeset{ID: 1, UID: "999"})
	alerter := &fakeAlerter{}
	svc := NewChangesetService(store, &fakeTagStore{}, alerter, &testLogger)
	reviewer := &models.User{ID: 7, OSMUID: "123"}

	if err := svc.SetCheck(context.Background(), reviewer, 1, false, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerter.alerts) != 0 {
		t.Errorf("expected no alerts for a good changeset, got %v", alerter.alerts)
	}
}

type failingAlerter struct{}

func (failingAlerter) EnqueueHarmfulAlert(changesetID int64, checkUser string) error {
	return errors.New("queue unavailable")
}

func TestSetCheckSucceedsWhenAlertEnqueueFails(t *testing.T) {
	store := newFakeChangesetStore(&models.Changeset{ID: 1, UID: "999"})
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	svc := NewChangesetService(store, &fakeTagStore{}, failingAlerter{}, &logger)
	reviewer := &models.User{ID: 7, OSMUID: "123", Username: "reviewer"}

	if err := svc.SetCheck(context.Background(), reviewer, 1, true, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.checkCalls != 1 {
		t.Errorf("expected the check to be recorded, got %d calls", store.checkCalls)
	}
	if !strings.Contains(buf.String(), "Failed to enqueue harmful changeset alert") {
		t.Errorf("expected dropped alert to be logged, got %q", buf.String())
	}
}

func TestSetCheckRejectsOwnChangeset(t *testing.T) {
	store := newFakeChangesetStore(&models.Changeset{ID: 1, UID: "123"})
	svc := NewChangesetService(store, &fakeTagStore{}, nil, &testLogger)
	owner := &models.User{ID: 7, OSMUID: "123"}

	err := svc.SetCheck(context.Background(), owner, 1, true, nil)
	forbidden(t, err)
	if store.checkCalls != 0 {
		t.Error("check should not run for the changeset owner")
	}
}

func TestSetCheckRejectsAlreadyChecked(t *testing.T) {
	store := newFakeChangesetStore(&models.Changeset{ID: 1, UID: "999", Checked: true})
	svc := NewChangesetService(store, &fakeTagStore{}, nil, &testLogger)
	reviewer := &models.User{ID: 7, OSMUID: "123"}

	err := svc.SetCheck(context.Background(), reviewer, 1, true, nil)
	forbidden(t, err)
}

func TestUncheckByReviewer(t *testing.T) {
	userID := int64(7)
	store := newFakeChangesetStore(&models.Changeset{ID: 1, Checked: true, CheckUserID: &userID})
	svc := NewChangesetService(store, &fakeTagStore{}, nil, &testLogger)
	reviewer := &models.User{ID: 7}

	if err := svc.Uncheck(context.Background(), reviewer, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.uncheckCalls != 1 {
		t.Errorf("expected one uncheck call, got %d", store.uncheckCalls)
	}
}

func TestUncheckByStaff(t *testing.T) {
	userID := int64(7)
	store := newFakeChangesetStore(&models.Changeset{ID: 1, Checked: true, CheckUserID: &userID})
	svc := NewChangesetService(store, &fakeTagStore{}, nil, &testLogger)
	staff := &models.User{ID: 99, IsStaff: true}

	if err := svc.Uncheck(context.Background(), staff, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUncheckRejectsOtherReviewer(t *testing.T) {
	userID := int64(7)
	store := newFakeChangesetStore(&models.Changeset{ID: 1, Checked: true, CheckUserID: &userID})
	svc := NewChangesetService(store, &fakeTagStore{}, nil, &testLogger)
	other := &models.User{ID: 8}

	forbidden(t, svc.Uncheck(context.Background(), other, 1))
	if store.uncheckCalls != 0 {
		t.Error("uncheck should not run for another reviewer")
	}
}

func TestUncheckRejectsUncheckedChangeset(t *testing.T) {
	store := newFakeChangesetStore(&models.Changeset{ID: 1})
	svc := NewChangesetService(store, &fakeTagStore{}, nil, &testLogger)
	reviewer := &models.User{ID: 7}

	forbidden(t, svc.Uncheck(context.Background(), reviewer, 1))
}

func TestAddTagUnknownTagIs404(t *testing.T) {
	store := newFakeChangesetStore(&models.Changeset{ID: 1, UID: "999"})
	svc := NewChangesetService(store, &fakeTagStore{tags: map[int64]*models.Label{}}, nil, &testLogger)
	reviewer := &models.User{ID: 7, OSMUID: "123"}

	_, err := svc.AddTag(context.Background(), reviewer, 1, 5)
	var httpErr *errs.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != 404 {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestAddTagRejectsOwner(t *testing.T) {
	store := newFakeChangesetStore(&models.Changeset{ID: 1, UID: "123"})
	tags := &fakeTagStore{tags: map[int64]*models.Label{5: {ID: 5, Name: "vandalism"}}}
	svc := NewChangesetService(store, tags, nil, &testLogger)
	owner := &models.User{ID: 7, OSMUID: "123"}

	_, err := svc.AddTag(context.Background(), owner, 1, 5)
	forbidden(t, err)
}

func TestAddTagOnCheckedChangesetRestrictedToReviewer(t *testing.T) {
	userID := int64(7)
	store := newFakeChangesetStore(&models.Changeset{ID: 1, UID: "999", Checked: true, CheckUserID: &userID})
	tags := &fakeTagStore{tags: map[int64]*models.Label{5: {ID: 5, Name: "vandalism"}}}
	svc := NewChangesetService(store, tags, nil, &testLogger)

	if _, err := svc.AddTag(context.Background(), &models.User{ID: 7, OSMUID: "123"}, 1, 5); err != nil {
		t.Fatalf("reviewer should be able to tag: %v", err)
	}
	if _, err := svc.AddTag(context.Background(), &models.User{ID: 99, IsStaff: true, OSMUID: "124"}, 1, 5); err != nil {
		t.Fatalf("staff should be able to tag: %v", err)
	}

	_, err := svc.AddTag(context.Background(), &models.User{ID: 8, OSMUID: "125"}, 1, 5)
	forbidden(t, err)
}

func TestRemoveTag(t *testing.T) {
	store := newFakeChangesetStore(&models.Changeset{ID: 1, UID: "999"})
	tags := &fakeTagStore{tags: map[int64]*models.Label{5: {ID: 5, Name: "vandalism"}}}
	svc := NewChangesetService(store, tags, nil, &testLogger)
	reviewer := &models.User{ID: 7, OSMUID: "123"}

	if _, err := svc.RemoveTag(context.Background(), reviewer, 1, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.removedTags) != 1 || store.removedTags[0] != 5 {
		t.Errorf("expected tag 5 removed, got %v", store.removedTags)
	}
}
