package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// LabelStats is the per-reason or per-tag breakdown of reviewed
// changesets.
type LabelStats struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	IsVisible         bool   `json:"-"`
	Changesets        int64  `json:"changesets"`
	CheckedChangesets int64  `json:"checked_changesets"`
	HarmfulChangesets int64  `json:"harmful_changesets"`
}

// ChangesetStats aggregates the review state of the changesets table.
type ChangesetStats struct {
	Changesets        int64        `json:"changesets"`
	CheckedChangesets int64        `json:"checked_changesets"`
	HarmfulChangesets int64        `json:"harmful_changesets"`
	UsersWithReviews  int64        `json:"users_with_reviews"`
	Reasons           []LabelStats `json:"reasons"`
	Tags              []LabelStats `json:"tags"`
}

// UserStats aggregates the review state of one mapper's changesets,
// addressed by OSM uid.
type UserStats struct {
	ChangesetCount int64 `json:"changeset_count"`
	CheckedCount   int64 `json:"checked_count"`
	HarmfulCount   int64 `json:"harmful_count"`
}

// StatsRepository runs the aggregate queries behind the stats endpoints.
type StatsRepository struct {
	pool *pgxpool.Pool
}

// NewStatsRepository constructs a StatsRepository.
func NewStatsRepository(pool *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{pool: pool}
}

// ChangesetStats returns review counters plus per-reason and per-tag
// breakdowns over the changesets matching f. The filtered set is
// computed once in a CTE shared by all three aggregates.
func (r *StatsRepository) ChangesetStats(ctx context.Context, f *ChangesetFilter) (*ChangesetStats, error) {
	var args []any
	conditions := changesetConditions(f, &args)

	cte := "WITH filtered AS (SELECT c.id, c.checked, c.harmful, c.check_user_id" +
		changesetFrom + " WHERE " + strings.Join(conditions, " AND ") + ")"

	var stats ChangesetStats
	err := r.pool.QueryRow(ctx, cte+`
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE checked),
			COUNT(*) FILTER (WHERE harmful),
			COUNT(DISTINCT check_user_id) FILTER (WHERE check_user_id IS NOT NULL)
		FROM filtered`, args...).
		Scan(&stats.Changesets, &stats.CheckedChangesets, &stats.HarmfulChangesets, &stats.UsersWithReviews)
	if err != nil {
		return nil, errors.Wrap(err, "aggregating changeset stats")
	}

	stats.Reasons, err = r.labelBreakdown(ctx, cte+`
		SELECT sr.id, sr.name, sr.is_visible, COUNT(f.id),
			COUNT(f.id) FILTER (WHERE f.checked),
			COUNT(f.id) FILTER (WHERE f.harmful)
		FROM suspicion_reasons sr
		LEFT JOIN changeset_reasons cr ON cr.reason_id = sr.id
		LEFT JOIN filtered f ON f.id = cr.changeset_id
		GROUP BY sr.id, sr.name, sr.is_visible ORDER BY sr.id`, args)
	if err != nil {
		return nil, errors.Wrap(err, "aggregating reason stats")
	}

	stats.Tags, err = r.labelBreakdown(ctx, cte+`
		SELECT t.id, t.name, t.is_visible, COUNT(f.id),
			COUNT(f.id) FILTER (WHERE f.checked),
			COUNT(f.id) FILTER (WHERE f.harmful)
		FROM tags t
		LEFT JOIN changeset_tags ct ON ct.tag_id = t.id
		LEFT JOIN filtered f ON f.id = ct.changeset_id
		GROUP BY t.id, t.name, t.is_visible ORDER BY t.id`, args)
	if err != nil {
		return nil, errors.Wrap(err, "aggregating tag stats")
	}

	return &stats, nil
}

func (r *StatsRepository) labelBreakdown(ctx context.Context, query string, args []any) ([]LabelStats, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	breakdown := []LabelStats{}
	for rows.Next() {
		var ls LabelStats
		if err := rows.Scan(&ls.ID, &ls.Name, &ls.IsVisible,
			&ls.Changesets, &ls.CheckedChangesets, &ls.HarmfulChangesets); err != nil {
			return nil, err
		}
		breakdown = append(breakdown, ls)
	}
	return breakdown, rows.Err()
}

// UserStats returns the review counters of one mapper's changesets.
func (r *StatsRepository) UserStats(ctx context.Context, osmUID string) (*UserStats, error) {
	var stats UserStats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE checked),
			COUNT(*) FILTER (WHERE harmful)
		FROM changesets WHERE osm_uid = $1`, osmUID).
		Scan(&stats.ChangesetCount, &stats.CheckedCount, &stats.HarmfulCount)
	if err != nil {
		return nil, errors.Wrap(err, "aggregating user stats")
	}
	return &stats, nil
}
