package permissions

import (
	"strings"

	"github.com/orderdesk/authz/internal/rbac"
)

// DefaultElevatedPrefixes are resource key prefixes that always need a second
// approver.
var DefaultElevatedPrefixes = []string{"permissions.", "users."}

// ApprovalPolicy decides whether a submission needs dual control.
type ApprovalPolicy struct {
	ElevatedPrefixes []string
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() ApprovalPolicy {
	return ApprovalPolicy{ElevatedPrefixes: append([]string(nil), DefaultElevatedPrefixes...)}
}

// RequiresApproval reports whether requester needs a second approver to apply
// rows to targetID. Only an Admin changing someone else's non-elevated keys
// may apply directly.
func (p ApprovalPolicy) RequiresApproval(requester rbac.Principal, targetID string, rows []rbac.PermissionRow) bool {
	if !requester.IsAdmin() || requester.ID == targetID {
		return true
	}
	for _, row := range rows {
		if p.Elevated(row.ResourceKey) {
			return true
		}
	}
	return false
}

// Elevated reports whether key falls under an elevated prefix.
func (p ApprovalPolicy) Elevated(key string) bool {
	for _, prefix := range p.ElevatedPrefixes {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" && strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
