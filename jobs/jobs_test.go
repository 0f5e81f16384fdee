package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderdesk/authz/internal/permissions"
	"github.com/orderdesk/authz/internal/rbac"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "x", Type: task.Type()}, nil
}

type stubReader map[uuid.UUID]permissions.ApprovalRequest

func (s stubReader) Get(_ context.Context, id uuid.UUID) (permissions.ApprovalRequest, error) {
	req, ok := s[id]
	if !ok {
		return permissions.ApprovalRequest{}, permissions.ErrApprovalNotFound
	}
	return req, nil
}

type jobCounter struct{ ok, failed int }

func (c *jobCounter) ObserveJob(_ string, err error) {
	if err != nil {
		c.failed++
		return
	}
	c.ok++
}

func pendingRequest() permissions.ApprovalRequest {
	return permissions.ApprovalRequest{
		ID:                uuid.New(),
		RequesterID:       "mgr-a",
		TargetPrincipalID: "emp-1",
		ProposedPermissions: []rbac.PermissionRow{
			{ResourceKey: "orders.list", CanView: true, DataScope: rbac.ScopeOwn},
		},
		Status:    permissions.StatusPending,
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestApprovalNotifierEnqueuesTask(t *testing.T) {
	enq := &stubEnqueuer{}
	req := pendingRequest()
	require.NoError(t, NewApprovalNotifier(enq).ApprovalRequested(context.Background(), req))
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskApprovalRequested, enq.tasks[0].Type())

	var payload ApprovalRequestedPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, req.ID.String(), payload.ApprovalID)
	assert.Equal(t, []string{"orders.list"}, payload.ResourceKeys)
}

func TestApprovalNotifierTreatsDuplicateAsDone(t *testing.T) {
	enq := &stubEnqueuer{err: asynq.ErrTaskIDConflict}
	assert.NoError(t, NewApprovalNotifier(enq).ApprovalRequested(context.Background(), pendingRequest()))

	enq.err = errors.New("redis down")
	assert.Error(t, NewApprovalNotifier(enq).ApprovalRequested(context.Background(), pendingRequest()))
}

func newJob(t *testing.T, reader ApprovalReader) (*ApprovalRequestedJob, *miniredis.Miniredis, *jobCounter) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	counter := &jobCounter{}
	return NewApprovalRequestedJob(reader, client, nil, counter), mr, counter
}

func taskFor(t *testing.T, req permissions.ApprovalRequest) *asynq.Task {
	t.Helper()
	task, err := NewApprovalRequestedTask(ApprovalRequestedPayload{
		ApprovalID:        req.ID.String(),
		RequesterID:       req.RequesterID,
		TargetPrincipalID: req.TargetPrincipalID,
		CreatedAt:         req.CreatedAt,
	})
	require.NoError(t, err)
	return task
}

func TestApprovalRequestedJobPushesInbox(t *testing.T) {
	req := pendingRequest()
	job, mr, counter := newJob(t, stubReader{req.ID: req})

	require.NoError(t, job.Handle(context.Background(), taskFor(t, req)))

	items, err := mr.List(ReviewerInboxKey)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0], req.ID.String())
	assert.Equal(t, 1, counter.ok)
}

func TestApprovalRequestedJobSkipsDecided(t *testing.T) {
	req := pendingRequest()
	req.Status = permissions.StatusApproved
	job, mr, _ := newJob(t, stubReader{req.ID: req})

	require.NoError(t, job.Handle(context.Background(), taskFor(t, req)))
	assert.False(t, mr.Exists(ReviewerInboxKey))

	require.NoError(t, job.Handle(context.Background(), taskFor(t, pendingRequest())), "unknown approval is dropped")
}

func TestApprovalRequestedJobRejectsBadPayload(t *testing.T) {
	job, _, counter := newJob(t, stubReader{})
	err := job.Handle(context.Background(), asynq.NewTask(TaskApprovalRequested, []byte("{")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, 1, counter.failed)
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	assert.Error(t, err)
}
