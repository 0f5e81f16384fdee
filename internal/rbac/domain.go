package rbac

import (
	"fmt"
	"strings"
)

// Role is the coarse classifier carried by every authenticated principal.
type Role string

const (
	// RoleAdmin satisfies every role-gated check.
	RoleAdmin Role = "Admin"
	// RoleManager reviews permission changes.
	RoleManager Role = "Manager"
	// RoleEmployee is the default staff role.
	RoleEmployee Role = "Employee"
)

// ParseRole converts a claim value into a Role.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.TrimSpace(raw)) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleManager:
		return RoleManager, nil
	case RoleEmployee:
		return RoleEmployee, nil
	default:
		return "", fmt.Errorf("rbac: unknown role %q", raw)
	}
}

// Principal describes the authenticated actor for the lifetime of one request.
type Principal struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the principal carries the global override.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// HasAnyRole reports whether the principal matches one of roles. Admin always
// matches; an empty list matches everyone.
func (p Principal) HasAnyRole(roles ...Role) bool {
	if len(roles) == 0 || p.IsAdmin() {
		return true
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// Action enumerates the operations a permission row can grant.
type Action string

const (
	ActionAccess Action = "access"
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// DataScope qualifies how many records a permitted action may touch. It is a
// hint for query builders; the evaluator does not filter data.
type DataScope string

const (
	ScopeOwn    DataScope = "own"
	ScopeBranch DataScope = "branch"
	ScopeAll    DataScope = "all"
)

// Valid reports whether s is one of the known scopes.
func (s DataScope) Valid() bool {
	switch s {
	case ScopeOwn, ScopeBranch, ScopeAll:
		return true
	default:
		return false
	}
}

// PermissionRow holds the flags granted to one principal for one resource key.
type PermissionRow struct {
	ResourceKey string    `json:"resourceKey" yaml:"resourceKey"`
	CanAccess   bool      `json:"canAccess" yaml:"canAccess"`
	CanView     bool      `json:"canView" yaml:"canView"`
	CanCreate   bool      `json:"canCreate" yaml:"canCreate"`
	CanUpdate   bool      `json:"canUpdate" yaml:"canUpdate"`
	CanDelete   bool      `json:"canDelete" yaml:"canDelete"`
	DataScope   DataScope `json:"dataScope" yaml:"dataScope"`
}

// PermissionCheck is a single query against the evaluator.
type PermissionCheck struct {
	ResourceKey string `json:"resourceKey" yaml:"resourceKey"`
	Action      Action `json:"action" yaml:"action"`
}

// Check builds a PermissionCheck.
func Check(resourceKey string, action Action) PermissionCheck {
	return PermissionCheck{ResourceKey: resourceKey, Action: action}
}

// ValidResourceKey reports whether key follows the "<domain>.<resource>"
// convention: at least two non-empty dot separated lowercase segments.
func ValidResourceKey(key string) bool {
	parts := strings.Split(key, ".")
	if len(parts) < 2 {
		return false
	}
	for _, part := range parts {
		if part == "" {
			return false
		}
		for _, r := range part {
			if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' && r != '-' {
				return false
			}
		}
	}
	return true
}
