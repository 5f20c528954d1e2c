package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeTenantCascade flips assignment statuses for a tenant in batches.
	TaskTypeTenantCascade = "tenant:cascade"
	// TaskTypeSessionSweep deletes expired session rows.
	TaskTypeSessionSweep = "sessions:sweep"
)

// TenantCascadePayload describes a deferred assignment cascade.
type TenantCascadePayload struct {
	TenantID   int64  `json:"tenant_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
}

// NewTenantCascadeTask constructs an Asynq task for an assignment cascade.
func NewTenantCascadeTask(payload TenantCascadePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeTenantCascade, data), nil
}

// NewSessionSweepTask constructs the periodic session sweep task.
func NewSessionSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSessionSweep, nil)
}
