package service

import (
	"context"

	"github.com/deppfellow/osmcha-backend/internal/models"
)

// LabelListStore lists the rows of one label table.
type LabelListStore interface {
	List(ctx context.Context, visibleOnly bool) ([]models.Label, error)
}

// LabelService lists suspicion reasons and tags. Hidden labels are only
// returned to staff users.
type LabelService struct {
	reasons LabelListStore
	tags    LabelListStore
}

// NewLabelService constructs a LabelService.
func NewLabelService(reasons, tags LabelListStore) *LabelService {
	return &LabelService{reasons: reasons, tags: tags}
}

func (svc *LabelService) ListReasons(ctx context.Context, staff bool) ([]models.Label, error) {
	return svc.reasons.List(ctx, !staff)
}

func (svc *LabelService) ListTags(ctx context.Context, staff bool) ([]models.Label, error) {
	return svc.tags.List(ctx, !staff)
}
