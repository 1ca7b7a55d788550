package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deppfellow/osmcha-backend/internal/config"
	"github.com/deppfellow/osmcha-backend/internal/lib/email"
	"github.com/deppfellow/osmcha-backend/internal/lib/osm"
	"github.com/deppfellow/osmcha-backend/internal/models"
	"github.com/deppfellow/osmcha-backend/internal/repository"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// handlerDeps bundles everything the task handlers need. Kept on the
// JobService so handlers cannot run against uninitialized clients.
type handlerDeps struct {
	email      *email.Client
	osm        *osm.Client
	changesets *repository.ChangesetRepository
	moderators []string
}

// InitHandlers wires the handler dependencies: the email client, the OSM
// API client and the changeset repository. Must run before Start.
func (j *JobService) InitHandlers(cfg *config.Config, logger *zerolog.Logger, pool *pgxpool.Pool) {
	j.deps = &handlerDeps{
		email:      email.NewClient(cfg, logger),
		osm:        osm.NewClient(cfg.OSM.APIBaseURL, cfg.OSM.UserAgent),
		changesets: repository.NewChangesetRepository(pool),
		moderators: cfg.Email.Moderators,
	}
}

// handleChangesetEnrichTask fetches changeset metadata from the OSM API
// and stores it, including the bounding polygon.
func (j *JobService) handleChangesetEnrichTask(ctx context.Context, t *asynq.Task) error {
	var p ChangesetEnrichPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal enrichment payload: %w", err)
	}

	j.logger.Info().
		Str("type", "enrich").
		Int64("changeset_id", p.ChangesetID).
		Msg("Processing changeset enrichment task")

	remote, err := j.deps.osm.GetChangeset(ctx, p.ChangesetID)
	if err != nil {
		j.logger.Error().
			Str("type", "enrich").
			Int64("changeset_id", p.ChangesetID).
			Err(err).
			Msg("Failed to fetch changeset from OSM API")
		return err
	}

	cs := &models.Changeset{
		ID:          p.ChangesetID,
		UID:         remote.UID,
		Username:    remote.User,
		Editor:      remote.Editor(),
		Comment:     remote.Comment(),
		Source:      remote.Source(),
		ImageryUsed: remote.ImageryUsed(),
		Date:        remote.CreatedAt,
	}
	if err := j.deps.changesets.UpdateMetadata(ctx, cs); err != nil {
		return err
	}

	if remote.HasBBox() {
		if err := j.deps.changesets.SetBBox(ctx, p.ChangesetID, remote.BBoxGeoJSON()); err != nil {
			return err
		}
	}

	j.logger.Info().
		Str("type", "enrich").
		Int64("changeset_id", p.ChangesetID).
		Msg("Successfully enriched changeset")

	return nil
}

// handleHarmfulAlertTask emails the moderator list about a harmful
// changeset. With no moderators configured the task is a no-op.
func (j *JobService) handleHarmfulAlertTask(ctx context.Context, t *asynq.Task) error {
	var p HarmfulAlertPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal alert payload: %w", err)
	}

	if len(j.deps.moderators) == 0 {
		return nil
	}

	j.logger.Info().
		Str("type", "harmful_alert").
		Int64("changeset_id", p.ChangesetID).
		Msg("Processing harmful changeset alert task")

	err := j.deps.email.SendHarmfulChangesetAlert(j.deps.moderators, p.ChangesetID, p.CheckUser)
	if err != nil {
		j.logger.Error().
			Str("type", "harmful_alert").
			Int64("changeset_id", p.ChangesetID).
			Err(err).
			Msg("Failed to send harmful changeset alert")
		return err
	}

	j.logger.Info().
		Str("type", "harmful_alert").
		Int64("changeset_id", p.ChangesetID).
		Msg("Successfully sent harmful changeset alert")

	return nil
}
