package service

import (
	"context"
	"testing"

	"github.com/deppfellow/osmcha-backend/internal/errs"
	"github.com/deppfellow/osmcha-backend/internal/models"
	"github.com/deppfellow/osmcha-backend/internal/repository"
)

type fakeFeatureStore struct {
	features map[string]*models.Feature

	checkCalls   int
	uncheckCalls int
}

func (s *fakeFeatureStore) List(ctx context.Context, filter *repository.FeatureFilter) ([]models.Feature, int64, error) {
	return nil, 0, nil
}

func (s *fakeFeatureStore) Get(ctx context.Context, changesetID int64, url string) (*models.Feature, error) {
	f, ok := s.features[url]
	if !ok {
		return nil, errs.NewNotFoundError("Feature not found", false, nil)
	}
	return f, nil
}

func (s *fakeFeatureStore) Check(ctx context.Context, featureID, userID int64, harmful bool) (bool, error) {
	for _, f := range s.features {
		if f.ID == featureID {
			if f.Checked {
				return false, nil
			}
			s.checkCalls++
			f.Checked = true
			f.Harmful = &harmful
			f.CheckUserID = &userID
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeFeatureStore) Uncheck(ctx context.Context, featureID int64) (bool, error) {
	for _, f := range s.features {
		if f.ID == featureID && f.Checked {
			s.uncheckCalls++
			f.Checked = false
			return true, nil
		}
	}
	return false, nil
}

func TestFeatureSetCheck(t *testing.T) {
	store := &fakeFeatureStore{features: map[string]*models.Feature{
		"node-10": {ID: 1, ChangesetID: 5, URL: "node-10", ChangesetUID: "999"},
	}}
	svc := NewFeatureService(store)
	reviewer := &models.User{ID: 7, OSMUID: "123"}

	if err := svc.SetCheck(context.Background(), reviewer, 5, "node-10", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.checkCalls != 1 {
		t.Errorf("expected one check call, got %d", store.checkCalls)
	}
}

func TestFeatureSetCheckRejectsOwnEdit(t *testing.T) {
	store := &fakeFeatureStore{features: map[string]*models.Feature{
		"node-10": {ID: 1, ChangesetID: 5, URL: "node-10", ChangesetUID: "123"},
	}}
	svc := NewFeatureService(store)
	owner := &models.User{ID: 7, OSMUID: "123"}

	forbidden(t, svc.SetCheck(context.Background(), owner, 5, "node-10", true))
}

func TestFeatureSetCheckRejectsAlreadyChecked(t *testing.T) {
	store := &fakeFeatureStore{features: map[string]*models.Feature{
		"node-10": {ID: 1, ChangesetID: 5, URL: "node-10", ChangesetUID: "999", Checked: true},
	}}
	svc := NewFeatureService(store)
	reviewer := &models.User{ID: 7, OSMUID: "123"}

	forbidden(t, svc.SetCheck(context.Background(), reviewer, 5, "node-10", true))
}

func TestFeatureUncheckPermissions(t *testing.T) {
	userID := int64(7)
	store := &fakeFeatureStore{features: map[string]*models.Feature{
		"node-10": {ID: 1, ChangesetID: 5, URL: "node-10", Checked: true, CheckUserID: &userID},
	}}
	svc := NewFeatureService(store)

	forbidden(t, svc.Uncheck(context.Background(), &models.User{ID: 8}, 5, "node-10"))

	if err := svc.Uncheck(context.Background(), &models.User{ID: 7}, 5, "node-10"); err != nil {
		t.Fatalf("reviewer should be able to uncheck: %v", err)
	}
	if store.uncheckCalls != 1 {
		t.Errorf("expected one uncheck call, got %d", store.uncheckCalls)
	}
}
