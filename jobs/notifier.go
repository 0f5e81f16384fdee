package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/orderdesk/authz/internal/permissions"
)

// Enqueuer is the subset of asynq.Client used to submit tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ApprovalNotifier queues approval-requested tasks for the worker.
type ApprovalNotifier struct {
	enqueuer Enqueuer
}

// NewApprovalNotifier constructs an ApprovalNotifier.
func NewApprovalNotifier(enqueuer Enqueuer) *ApprovalNotifier {
	return &ApprovalNotifier{enqueuer: enqueuer}
}

// ApprovalRequested enqueues a notification for req.
func (n *ApprovalNotifier) ApprovalRequested(ctx context.Context, req permissions.ApprovalRequest) error {
	keys := make([]string, 0, len(req.ProposedPermissions))
	for _, row := range req.ProposedPermissions {
		keys = append(keys, row.ResourceKey)
	}
	task, err := NewApprovalRequestedTask(ApprovalRequestedPayload{
		ApprovalID:        req.ID.String(),
		RequesterID:       req.RequesterID,
		TargetPrincipalID: req.TargetPrincipalID,
		ResourceKeys:      keys,
		CreatedAt:         req.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("jobs: build approval task: %w", err)
	}
	if _, err := n.enqueuer.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("jobs: enqueue approval task: %w", err)
	}
	return nil
}
