package permissions

import (
	"time"

	"github.com/google/uuid"

	"github.com/orderdesk/authz/internal/rbac"
)

// Status is the lifecycle state of an approval request.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// SystemReviewerID decides requests the policy lets through without a second
// person. No principal can authenticate with this id.
const SystemReviewerID = "system:policy"

// ApprovalRequest captures a proposed permission change for a target principal.
type ApprovalRequest struct {
	ID                  uuid.UUID            `json:"id"`
	RequesterID         string               `json:"requesterId"`
	TargetPrincipalID   string               `json:"targetPrincipalId"`
	ProposedPermissions []rbac.PermissionRow `json:"proposedPermissions"`
	Reason              string               `json:"reason"`
	Status              Status               `json:"status"`
	CreatedAt           time.Time            `json:"createdAt"`
	DecidedAt           *time.Time           `json:"decidedAt,omitempty"`
	DecidedBy           *string              `json:"decidedBy,omitempty"`
	ReviewReason        *string              `json:"reviewReason,omitempty"`
}

func (a ApprovalRequest) clone() ApprovalRequest {
	out := a
	out.ProposedPermissions = append([]rbac.PermissionRow(nil), a.ProposedPermissions...)
	if a.DecidedAt != nil {
		t := *a.DecidedAt
		out.DecidedAt = &t
	}
	if a.DecidedBy != nil {
		v := *a.DecidedBy
		out.DecidedBy = &v
	}
	if a.ReviewReason != nil {
		v := *a.ReviewReason
		out.ReviewReason = &v
	}
	return out
}

// Decision is the conditional transition applied to a pending request.
type Decision struct {
	ID           uuid.UUID
	Status       Status
	DecidedBy    string
	ReviewReason string
	DecidedAt    time.Time
}

// SubmitResult is returned to the caller of Submit.
type SubmitResult struct {
	ApprovalRequired bool             `json:"approvalRequired"`
	ApprovalRequest  *ApprovalRequest `json:"approvalRequest,omitempty"`
}

// ListFilter narrows approval listings.
type ListFilter struct {
	Status            Status
	TargetPrincipalID string
	RequesterID       string
	Page              int
	PageSize          int
}
