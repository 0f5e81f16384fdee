package audit

import (
	"time"

	"github.com/orderdesk/authz/internal/shared"
)

// Outcome menandai hasil dari aksi yang diaudit.
type Outcome string

const (
	OutcomeAllowed   Outcome = "allowed"
	OutcomeDenied    Outcome = "denied"
	OutcomeSubmitted Outcome = "submitted"
	OutcomeApproved  Outcome = "approved"
	OutcomeRejected  Outcome = "rejected"
	OutcomeApplied   Outcome = "applied"
	OutcomeConflict  Outcome = "conflict"
)

// Nama aksi yang dicatat ke audit trail.
const (
	ActionRouteAccess        = "route.access"
	ActionPermissionsSubmit  = "permissions.submit"
	ActionPermissionsApprove = "permissions.approve"
	ActionPermissionsReject  = "permissions.reject"
)

// Record adalah satu baris audit yang hanya bisa ditambahkan.
type Record struct {
	ID          int64          `json:"id"`
	ActorID     string         `json:"actorId"`
	Action      string         `json:"action"`
	ResourceKey string         `json:"resourceKey,omitempty"`
	ApprovalID  string         `json:"approvalId,omitempty"`
	Outcome     Outcome        `json:"outcome"`
	Meta        map[string]any `json:"meta,omitempty"`
	At          time.Time      `json:"at"`
}

// Filters menampung filter untuk daftar audit.
type Filters struct {
	ActorID  string
	Action   string
	Outcome  Outcome
	Page     int
	PageSize int
}

// Result membungkus hasil daftar audit dengan informasi paging.
type Result struct {
	Rows   []Record          `json:"rows"`
	Paging shared.Pagination `json:"paging"`
}
