package handler

import (
	"github.com/deppfellow/osmcha-backend/internal/server"
	"github.com/deppfellow/osmcha-backend/internal/service"
	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance used by request payload
// Validate methods in this package.
var validate = validator.New()

// Handlers is a container that groups all HTTP handlers so the router
// receives one object instead of many.
type Handlers struct {
	Health     *HealthHandler
	Changesets *ChangesetHandler
	Features   *FeatureHandler
	Labels     *LabelHandler
	Ingest     *IngestHandler
	Whitelists *WhitelistHandler
	Stats      *StatsHandler
	Users      *UserHandler
}

// NewHandlers constructs the handler container.
func NewHandlers(s *server.Server, services *service.Services) *Handlers {
	return &Handlers{
		Health:     NewHealthHandler(s),
		Changesets: NewChangesetHandler(s, services.Changesets),
		Features:   NewFeatureHandler(s, services.Features),
		Labels:     NewLabelHandler(s, services.Labels),
		Ingest:     NewIngestHandler(s, services.Ingest),
		Whitelists: NewWhitelistHandler(s, services.Whitelists),
		Stats:      NewStatsHandler(s, services.Stats),
		Users:      NewUserHandler(s, services.Users),
	}
}
