package job

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
)

const (
	// TaskChangesetEnrich fetches changeset metadata from the OSM API
	// for changesets first seen through a detector submission.
	TaskChangesetEnrich = "changeset:enrich"

	// TaskHarmfulAlert emails the moderator list about a changeset
	// marked harmful.
	TaskHarmfulAlert = "email:harmful_alert"
)

// ChangesetEnrichPayload is the JSON payload of an enrichment task.
type ChangesetEnrichPayload struct {
	ChangesetID int64 `json:"changeset_id"`
}

// HarmfulAlertPayload is the JSON payload of a moderator alert task.
type HarmfulAlertPayload struct {
	ChangesetID int64  `json:"changeset_id"`
	CheckUser   string `json:"check_user"`
}

// NewChangesetEnrichTask constructs the enrichment task. The OSM API can
// be flaky, so it retries generously on the critical queue.
func NewChangesetEnrichTask(changesetID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(ChangesetEnrichPayload{ChangesetID: changesetID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskChangesetEnrich,
		payload,
		asynq.MaxRetry(5),
		asynq.Queue("critical"),
		asynq.Timeout(60*time.Second),
	), nil
}

// NewHarmfulAlertTask constructs the moderator alert task.
func NewHarmfulAlertTask(changesetID int64, checkUser string) (*asynq.Task, error) {
	payload, err := json.Marshal(HarmfulAlertPayload{
		ChangesetID: changesetID,
		CheckUser:   checkUser,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskHarmfulAlert,
		payload,
		asynq.MaxRetry(3),
		asynq.Queue("default"),
		asynq.Timeout(30*time.Second),
	), nil
}

// EnqueueChangesetEnrich pushes an enrichment task for the changeset.
func (j *JobService) EnqueueChangesetEnrich(changesetID int64) error {
	task, err := NewChangesetEnrichTask(changesetID)
	if err != nil {
		return errors.Wrap(err, "building enrichment task")
	}
	if _, err := j.Client.Enqueue(task); err != nil {
		return errors.Wrap(err, "enqueueing enrichment task")
	}
	return nil
}

// EnqueueHarmfulAlert pushes a moderator alert task.
func (j *JobService) EnqueueHarmfulAlert(changesetID int64, checkUser string) error {
	task, err := NewHarmfulAlertTask(changesetID, checkUser)
	if err != nil {
		return errors.Wrap(err, "building alert task")
	}
	if _, err := j.Client.Enqueue(task); err != nil {
		return errors.Wrap(err, "enqueueing alert task")
	}
	return nil
}
