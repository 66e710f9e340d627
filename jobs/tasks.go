package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskElectionsSyncStatus moves elections along their schedule.
	TaskElectionsSyncStatus = "elections:sync-status"
	// TaskVotesReconcile recounts vote rows against stored counters.
	TaskVotesReconcile = "votes:reconcile"
)

// ReconcilePayload selects what a reconcile run recounts. An empty
// ElectionID recounts every active and completed election.
type ReconcilePayload struct {
	ElectionID string `json:"election_id,omitempty"`
	Repair     bool   `json:"repair"`
}

// NewSyncStatusTask constructs the status sync task.
func NewSyncStatusTask() *asynq.Task {
	return asynq.NewTask(TaskElectionsSyncStatus, nil)
}

// NewReconcileTask constructs a reconcile task.
func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskVotesReconcile, data), nil
}
