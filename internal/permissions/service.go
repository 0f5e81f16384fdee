package permissions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/orderdesk/authz/internal/audit"
	"github.com/orderdesk/authz/internal/platform/httpx"
	"github.com/orderdesk/authz/internal/rbac"
	"github.com/orderdesk/authz/internal/shared"
)

const autoApproveReason = "applied without review by approval policy"

// Notifier is told about requests waiting for a reviewer. Failures are logged
// and never roll back the submission.
type Notifier interface {
	ApprovalRequested(ctx context.Context, req ApprovalRequest) error
}

// Observer receives workflow transition counts.
type Observer interface {
	ObserveApproval(outcome string)
}

// ServiceConfig wires optional collaborators.
type ServiceConfig struct {
	Policy   ApprovalPolicy
	Notifier Notifier
	Observer Observer
	Logger   *slog.Logger
	Now      func() time.Time
}

// Service runs the dual-control permission change workflow.
type Service struct {
	repo     Repository
	policy   ApprovalPolicy
	notifier Notifier
	observer Observer
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs the workflow service.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Policy.ElevatedPrefixes == nil {
		cfg.Policy = DefaultPolicy()
	}
	return &Service{
		repo:     repo,
		policy:   cfg.Policy,
		notifier: cfg.Notifier,
		observer: cfg.Observer,
		logger:   cfg.Logger.With(slog.String("component", "permissions")),
		validate: newValidator(),
		now:      cfg.Now,
	}
}

// Policy returns the active approval policy.
func (s *Service) Policy() ApprovalPolicy {
	return s.policy
}

// Submit records a proposed change for targetID. When the policy allows it
// the change is applied in the same transaction and decided by
// SystemReviewerID; otherwise the request stays pending.
func (s *Service) Submit(ctx context.Context, requester rbac.Principal, targetID string, proposed []rbac.PermissionRow, reason string) (SubmitResult, error) {
	input := submitInput{
		RequesterID:       strings.TrimSpace(requester.ID),
		TargetPrincipalID: strings.TrimSpace(targetID),
		Proposed:          normalizeRows(proposed),
		Reason:            strings.TrimSpace(reason),
	}
	if err := s.validate.Struct(input); err != nil {
		return SubmitResult{}, validationError(err)
	}
	if input.RequesterID == SystemReviewerID {
		return SubmitResult{}, ErrReservedReviewer
	}
	requester.ID = input.RequesterID

	now := s.now().UTC()
	req := ApprovalRequest{
		ID:                  uuid.New(),
		RequesterID:         input.RequesterID,
		TargetPrincipalID:   input.TargetPrincipalID,
		ProposedPermissions: input.Proposed,
		Reason:              input.Reason,
		Status:              StatusPending,
		CreatedAt:           now,
	}
	required := s.policy.RequiresApproval(requester, req.TargetPrincipalID, req.ProposedPermissions)
	if !required {
		decidedBy := SystemReviewerID
		reviewReason := autoApproveReason
		req.Status = StatusApproved
		req.DecidedAt = &now
		req.DecidedBy = &decidedBy
		req.ReviewReason = &reviewReason
	}

	err := s.repo.WithTx(context.WithoutCancel(ctx), func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertApproval(ctx, req); err != nil {
			return err
		}
		if required {
			return tx.AppendAudit(ctx, s.record(req, req.RequesterID, audit.ActionPermissionsSubmit, audit.OutcomeSubmitted, nil))
		}
		if err := tx.UpsertPermissions(ctx, req.TargetPrincipalID, req.ProposedPermissions); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, s.record(req, req.RequesterID, audit.ActionPermissionsSubmit, audit.OutcomeApplied, map[string]any{
			"decidedBy": SystemReviewerID,
		}))
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("permissions: submit: %w", err)
	}

	if required {
		s.observe(string(audit.OutcomeSubmitted))
		s.logger.Info("permission change submitted",
			slog.String("approval_id", req.ID.String()),
			slog.String("requester", req.RequesterID),
			slog.String("target", req.TargetPrincipalID),
			slog.Int("rows", len(req.ProposedPermissions)))
		if s.notifier != nil {
			if err := s.notifier.ApprovalRequested(ctx, req.clone()); err != nil {
				s.logger.Warn("approval notification failed", slog.String("approval_id", req.ID.String()), slog.Any("error", err))
			}
		}
	} else {
		s.observe(string(audit.OutcomeApplied))
		s.logger.Info("permission change applied by policy",
			slog.String("approval_id", req.ID.String()),
			slog.String("requester", req.RequesterID),
			slog.String("target", req.TargetPrincipalID))
	}
	out := req.clone()
	return SubmitResult{ApprovalRequired: required, ApprovalRequest: &out}, nil
}

// Approve applies a pending request on behalf of reviewerID.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, reviewerID, reviewReason string) (ApprovalRequest, error) {
	return s.decide(ctx, id, reviewerID, reviewReason, StatusApproved)
}

// Reject closes a pending request without applying it.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reviewerID, reviewReason string) (ApprovalRequest, error) {
	return s.decide(ctx, id, reviewerID, reviewReason, StatusRejected)
}

func (s *Service) decide(ctx context.Context, id uuid.UUID, reviewerID, reviewReason string, status Status) (ApprovalRequest, error) {
	input := decisionInput{ReviewerID: strings.TrimSpace(reviewerID), ReviewReason: strings.TrimSpace(reviewReason)}
	if err := s.validate.Struct(input); err != nil {
		return ApprovalRequest{}, validationError(err)
	}
	if status == StatusRejected && input.ReviewReason == "" {
		return ApprovalRequest{}, fmt.Errorf("%w: review reason required to reject", httpx.ErrValidation)
	}
	if input.ReviewerID == SystemReviewerID {
		return ApprovalRequest{}, ErrReservedReviewer
	}
	action := audit.ActionPermissionsApprove
	outcome := audit.OutcomeApproved
	if status == StatusRejected {
		action = audit.ActionPermissionsReject
		outcome = audit.OutcomeRejected
	}

	current, err := s.repo.GetApproval(ctx, id)
	if err != nil {
		return ApprovalRequest{}, err
	}
	if current.RequesterID == input.ReviewerID {
		s.appendDetached(ctx, s.record(current, input.ReviewerID, action, audit.OutcomeDenied, map[string]any{"reason": "self-approval"}))
		s.observe(string(audit.OutcomeDenied))
		s.logger.Warn("self approval blocked",
			slog.String("approval_id", id.String()),
			slog.String("reviewer", input.ReviewerID))
		return ApprovalRequest{}, ErrSelfApproval
	}
	if status == StatusApproved && current.TargetPrincipalID == input.ReviewerID && s.elevated(current.ProposedPermissions) {
		s.appendDetached(ctx, s.record(current, input.ReviewerID, action, audit.OutcomeDenied, map[string]any{"reason": "target-approval"}))
		s.observe(string(audit.OutcomeDenied))
		s.logger.Warn("target approval of elevated change blocked",
			slog.String("approval_id", id.String()),
			slog.String("reviewer", input.ReviewerID))
		return ApprovalRequest{}, ErrTargetApproval
	}
	if current.Status.Terminal() {
		return ApprovalRequest{}, s.conflict(ctx, current, input.ReviewerID, action)
	}

	now := s.now().UTC()
	decision := Decision{ID: id, Status: status, DecidedBy: input.ReviewerID, ReviewReason: input.ReviewReason, DecidedAt: now}
	err = s.repo.WithTx(context.WithoutCancel(ctx), func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.DecideApproval(ctx, decision)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyDecided
		}
		if status == StatusApproved {
			if err := tx.UpsertPermissions(ctx, current.TargetPrincipalID, current.ProposedPermissions); err != nil {
				return err
			}
		}
		meta := map[string]any{"target": current.TargetPrincipalID}
		if input.ReviewReason != "" {
			meta["reviewReason"] = input.ReviewReason
		}
		return tx.AppendAudit(ctx, s.record(current, input.ReviewerID, action, outcome, meta))
	})
	if errors.Is(err, httpx.ErrConflict) {
		return ApprovalRequest{}, s.conflict(ctx, current, input.ReviewerID, action)
	}
	if err != nil {
		return ApprovalRequest{}, fmt.Errorf("permissions: decide: %w", err)
	}

	current.Status = status
	current.DecidedAt = &now
	current.DecidedBy = &input.ReviewerID
	if input.ReviewReason != "" {
		current.ReviewReason = &input.ReviewReason
	}
	s.observe(string(outcome))
	s.logger.Info("approval decided",
		slog.String("approval_id", id.String()),
		slog.String("status", string(status)),
		slog.String("reviewer", input.ReviewerID),
		slog.String("target", current.TargetPrincipalID))
	return current, nil
}

// conflict records a decision that lost against a terminal state. It is
// expected under concurrency and logged at info level.
func (s *Service) conflict(ctx context.Context, current ApprovalRequest, reviewerID, action string) error {
	s.appendDetached(ctx, s.record(current, reviewerID, action, audit.OutcomeConflict, nil))
	s.observe(string(audit.OutcomeConflict))
	s.logger.Info("approval already decided",
		slog.String("approval_id", current.ID.String()),
		slog.String("reviewer", reviewerID))
	return ErrAlreadyDecided
}

// Get returns one request.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (ApprovalRequest, error) {
	return s.repo.GetApproval(ctx, id)
}

// ListResult is one page of approval requests.
type ListResult struct {
	Rows   []ApprovalRequest `json:"rows"`
	Paging shared.Pagination `json:"paging"`
}

// List pages through requests newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	switch filter.Status {
	case "", StatusPending, StatusApproved, StatusRejected:
	default:
		return ListResult{}, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, filter.Status)
	}
	page, pageSize := shared.NormalizePage(filter.Page, filter.PageSize)
	rows, err := s.repo.ListApprovals(ctx, filter, (page-1)*pageSize, pageSize+1)
	if err != nil {
		return ListResult{}, fmt.Errorf("permissions: list approvals: %w", err)
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []ApprovalRequest{}
	}
	return ListResult{Rows: rows, Paging: shared.NewPagination(page, pageSize, hasNext)}, nil
}

// Permissions returns the stored rows for principalID.
func (s *Service) Permissions(ctx context.Context, principalID string) ([]rbac.PermissionRow, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return nil, fmt.Errorf("%w: principal id required", httpx.ErrValidation)
	}
	rows, err := s.repo.ListPermissions(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("permissions: list rows: %w", err)
	}
	if rows == nil {
		rows = []rbac.PermissionRow{}
	}
	return rows, nil
}

func (s *Service) record(req ApprovalRequest, actorID, action string, outcome audit.Outcome, meta map[string]any) audit.Record {
	keys := make([]string, 0, len(req.ProposedPermissions))
	for _, row := range req.ProposedPermissions {
		keys = append(keys, row.ResourceKey)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["resourceKeys"] = keys
	meta["target"] = req.TargetPrincipalID
	return audit.Record{
		ActorID:     actorID,
		Action:      action,
		ResourceKey: rbac.KeyPermissionsApprovals,
		ApprovalID:  req.ID.String(),
		Outcome:     outcome,
		Meta:        meta,
		At:          s.now().UTC(),
	}
}

func (s *Service) elevated(rows []rbac.PermissionRow) bool {
	for _, row := range rows {
		if s.policy.Elevated(row.ResourceKey) {
			return true
		}
	}
	return false
}

func (s *Service) appendDetached(ctx context.Context, rec audit.Record) {
	if err := s.repo.AppendAudit(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Error("append audit", slog.String("action", rec.Action), slog.Any("error", err))
	}
}

func (s *Service) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObserveApproval(outcome)
	}
}
