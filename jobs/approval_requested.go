package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/orderdesk/authz/internal/permissions"
	"github.com/orderdesk/authz/internal/platform/httpx"
)

// ReviewerInboxKey is the Redis list reviewer dashboards poll for new work.
const ReviewerInboxKey = "authz:approvals:inbox"

const inboxLimit = 500

// ApprovalReader loads the current state of an approval.
type ApprovalReader interface {
	Get(ctx context.Context, id uuid.UUID) (permissions.ApprovalRequest, error)
}

// JobObserver records job outcomes.
type JobObserver interface {
	ObserveJob(task string, err error)
}

// ApprovalRequestedJob pushes pending approvals into the reviewer inbox.
type ApprovalRequestedJob struct {
	Approvals ApprovalReader
	Redis     *redis.Client
	Logger    *slog.Logger
	Metrics   JobObserver
	clock     func() time.Time
}

// NewApprovalRequestedJob wires dependencies for the handler.
func NewApprovalRequestedJob(approvals ApprovalReader, client *redis.Client, logger *slog.Logger, metrics JobObserver) *ApprovalRequestedJob {
	return &ApprovalRequestedJob{
		Approvals: approvals,
		Redis:     client,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type inboxEntry struct {
	ApprovalRequestedPayload
	QueuedAt time.Time `json:"queued_at"`
}

// Handle processes approval-requested tasks. Requests decided before the
// worker picks them up are dropped.
func (j *ApprovalRequestedJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil {
		return errors.New("approval requested: handler not configured")
	}
	defer func() {
		if j.Metrics != nil {
			j.Metrics.ObserveJob(TaskApprovalRequested, resultErr)
		}
	}()

	var payload ApprovalRequestedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	id, err := uuid.Parse(payload.ApprovalID)
	if err != nil {
		return fmt.Errorf("approval id: %v: %w", err, asynq.SkipRetry)
	}
	logger := j.logger().With(slog.String("approval_id", payload.ApprovalID))

	req, err := j.Approvals.Get(ctx, id)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			logger.Warn("approval vanished before notification")
			return nil
		}
		return err
	}
	if req.Status != permissions.StatusPending {
		logger.Info("approval already decided, skipping notification", slog.String("status", string(req.Status)))
		return nil
	}

	entry, err := json.Marshal(inboxEntry{ApprovalRequestedPayload: payload, QueuedAt: j.clock()})
	if err != nil {
		return err
	}
	pipe := j.Redis.TxPipeline()
	pipe.LPush(ctx, ReviewerInboxKey, entry)
	pipe.LTrim(ctx, ReviewerInboxKey, 0, inboxLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push reviewer inbox: %w", err)
	}
	logger.Info("reviewers notified", slog.String("target", payload.TargetPrincipalID))
	return nil
}

func (j *ApprovalRequestedJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
