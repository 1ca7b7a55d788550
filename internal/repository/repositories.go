package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repositories is a container for all repository instances, initialized
// once over the shared pgx pool and injected into services.
type Repositories struct {
	Changesets *ChangesetRepository
	Features   *FeatureRepository
	Reasons    *LabelRepository
	Tags       *LabelRepository
	Whitelists *WhitelistRepository
	Users      *UserRepository
	Stats      *StatsRepository
}

// NewRepositories constructs the repository container.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Changesets: NewChangesetRepository(pool),
		Features:   NewFeatureRepository(pool),
		Reasons:    NewLabelRepository(pool, "suspicion_reasons"),
		Tags:       NewLabelRepository(pool, "tags"),
		Whitelists: NewWhitelistRepository(pool),
		Users:      NewUserRepository(pool),
		Stats:      NewStatsRepository(pool),
	}
}
