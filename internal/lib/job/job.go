// Package job provides background job processing using Asynq.
//
// Asynq is a Redis-backed job queue:
//   - You enqueue tasks (producer) using asynq.Client.
//   - A server runs workers that process those tasks (consumer) using asynq.Server.
package job

import (
	"github.com/deppfellow/osmcha-backend/internal/config"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// JobService holds the Asynq client (enqueue) and server (worker
// execution), plus the handler dependencies set up in InitHandlers.
type JobService struct {
	// Client is used to enqueue tasks into Redis.
	Client *asynq.Client

	// server runs worker processes that pull tasks from Redis and execute handlers.
	server *asynq.Server

	logger *zerolog.Logger

	deps *handlerDeps
}

// NewJobService creates a JobService backed by the Redis instance from
// cfg, with queue weights giving enrichment fetches priority over email.
func NewJobService(logger *zerolog.Logger, cfg *config.Config) *JobService {
	redisAddr := cfg.Redis.Address

	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr: redisAddr,
	})

	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	return &JobService{
		Client: client,
		server: server,
		logger: logger,
	}
}

// Start registers the task handlers and starts the background worker
// server. Asynq's Start runs its workers on background goroutines and
// returns, so this does not block.
func (j *JobService) Start() error {
	mux := asynq.NewServeMux()

	mux.HandleFunc(TaskChangesetEnrich, j.handleChangesetEnrichTask)
	mux.HandleFunc(TaskHarmfulAlert, j.handleHarmfulAlertTask)

	j.logger.Info().Msg("Starting background job server")

	if err := j.server.Start(mux); err != nil {
		return err
	}

	return nil
}

// Stop gracefully stops the job server and closes client resources.
func (j *JobService) Stop() {
	j.logger.Info().Msg("Stopping background job server")
	j.server.Shutdown()
	j.Client.Close()
}
