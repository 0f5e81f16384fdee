package permissions

import (
	"context"

	"github.com/google/uuid"

	"github.com/orderdesk/authz/internal/audit"
	"github.com/orderdesk/authz/internal/rbac"
)

// Repository is the persistence port of the approval workflow.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetApproval(ctx context.Context, id uuid.UUID) (ApprovalRequest, error)
	ListApprovals(ctx context.Context, filter ListFilter, offset, limit int) ([]ApprovalRequest, error)
	ListPermissions(ctx context.Context, principalID string) ([]rbac.PermissionRow, error)
	ListAudits(ctx context.Context, filters audit.Filters, offset, limit int) ([]audit.Record, error)
	AppendAudit(ctx context.Context, rec audit.Record) error
}

// TxRepository exposes the writes that must commit together.
type TxRepository interface {
	InsertApproval(ctx context.Context, req ApprovalRequest) error
	// DecideApproval moves a pending request to a terminal status. It returns
	// false when the request was no longer pending.
	DecideApproval(ctx context.Context, d Decision) (bool, error)
	UpsertPermissions(ctx context.Context, principalID string, rows []rbac.PermissionRow) error
	AppendAudit(ctx context.Context, rec audit.Record) error
}
