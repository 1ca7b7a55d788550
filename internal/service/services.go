package service

import (
	"github.com/deppfellow/osmcha-backend/internal/lib/job"
	"github.com/deppfellow/osmcha-backend/internal/repository"
	"github.com/deppfellow/osmcha-backend/internal/server"
)

// Services is the container for all business logic services.
type Services struct {
	Changesets *ChangesetService
	Features   *FeatureService
	Ingest     *IngestService
	Labels     *LabelService
	Whitelists *WhitelistService
	Stats      *StatsService
	Users      *UserService
	Job        *job.JobService
}

// NewServices wires the services with their repositories and shared
// dependencies.
func NewServices(s *server.Server, repos *repository.Repositories) (*Services, error) {
	return &Services{
		Changesets: NewChangesetService(repos.Changesets, repos.Tags, s.Job, s.Logger),
		Features:   NewFeatureService(repos.Features),
		Ingest:     NewIngestService(repos.Changesets, repos.Features, repos.Reasons, s.Job, s.Logger),
		Labels:     NewLabelService(repos.Reasons, repos.Tags),
		Whitelists: NewWhitelistService(repos.Whitelists),
		Stats:      NewStatsService(repos.Stats),
		Users:      NewUserService(repos.Users),
		Job:        s.Job,
	}, nil
}
