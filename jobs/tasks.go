package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskApprovalRequested tells reviewers that a permission change waits for them.
	TaskApprovalRequested = "permissions:approval_requested"
)

// ApprovalRequestedPayload describes a pending approval.
type ApprovalRequestedPayload struct {
	ApprovalID        string    `json:"approval_id"`
	RequesterID       string    `json:"requester_id"`
	TargetPrincipalID string    `json:"target_principal_id"`
	ResourceKeys      []string  `json:"resource_keys"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewApprovalRequestedTask constructs an Asynq task. The approval id doubles
// as the task id so a retried submit never queues two notifications.
func NewApprovalRequestedTask(payload ApprovalRequestedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskApprovalRequested, data,
		asynq.TaskID(TaskApprovalRequested+":"+payload.ApprovalID),
		asynq.MaxRetry(5),
		asynq.Queue(QueueDefault),
	), nil
}
