package service

import (
	"context"

	"github.com/deppfellow/osmcha-backend/internal/repository"
)

// StatsStore is the repository surface the stats service needs.
type StatsStore interface {
	ChangesetStats(ctx context.Context, f *repository.ChangesetFilter) (*repository.ChangesetStats, error)
	UserStats(ctx context.Context, osmUID string) (*repository.UserStats, error)
}

// StatsService serves the aggregate endpoints.
type StatsService struct {
	stats StatsStore
}

// NewStatsService constructs a StatsService.
func NewStatsService(stats StatsStore) *StatsService {
	return &StatsService{stats: stats}
}

// ChangesetStats returns review counters with label breakdowns over the
// changesets matching f. Hidden labels are stripped for non-staff
// callers.
func (svc *StatsService) ChangesetStats(ctx context.Context, f *repository.ChangesetFilter, staff bool) (*repository.ChangesetStats, error) {
	stats, err := svc.stats.ChangesetStats(ctx, f)
	if err != nil {
		return nil, err
	}
	if !staff {
		stats.Reasons = visibleLabelStats(stats.Reasons)
		stats.Tags = visibleLabelStats(stats.Tags)
	}
	return stats, nil
}

func visibleLabelStats(breakdown []repository.LabelStats) []repository.LabelStats {
	visible := make([]repository.LabelStats, 0, len(breakdown))
	for _, ls := range breakdown {
		if ls.IsVisible {
			visible = append(visible, ls)
		}
	}
	return visible
}

// UserStats returns the review counters of one mapper's changesets.
func (svc *StatsService) UserStats(ctx context.Context, osmUID string) (*repository.UserStats, error) {
	return svc.stats.UserStats(ctx, osmUID)
}
