package permissions

import "github.com/orderdesk/authz/internal/rbac"

// DevPrincipal is a local account used by the seeder and the memory store.
type DevPrincipal struct {
	ID   string
	Role rbac.Role
}

// DevPrincipals lists the local accounts.
func DevPrincipals() []DevPrincipal {
	return []DevPrincipal{
		{ID: "admin", Role: rbac.RoleAdmin},
		{ID: "manager", Role: rbac.RoleManager},
		{ID: "reviewer", Role: rbac.RoleManager},
		{ID: "clerk", Role: rbac.RoleEmployee},
	}
}

// DevSeed returns bootstrap permission rows keyed by principal id. It only
// feeds empty development stores; live changes go through Submit.
func DevSeed() map[string][]rbac.PermissionRow {
	reviewer := []rbac.PermissionRow{
		{ResourceKey: rbac.KeyPermissionsPage, CanAccess: true, DataScope: rbac.ScopeBranch},
		{ResourceKey: rbac.KeyPermissionsUsers, CanAccess: true, CanView: true, CanUpdate: true, DataScope: rbac.ScopeBranch},
		{ResourceKey: rbac.KeyPermissionsApprovals, CanAccess: true, CanView: true, CanUpdate: true, DataScope: rbac.ScopeBranch},
		{ResourceKey: rbac.KeyOrdersList, CanAccess: true, CanView: true, CanCreate: true, CanUpdate: true, DataScope: rbac.ScopeBranch},
		{ResourceKey: rbac.KeyReportsSales, CanAccess: true, CanView: true, DataScope: rbac.ScopeBranch},
	}
	return map[string][]rbac.PermissionRow{
		"admin":    {{ResourceKey: rbac.KeyPermissionsAudits, CanAccess: true, CanView: true, DataScope: rbac.ScopeAll}},
		"manager":  reviewer,
		"reviewer": append([]rbac.PermissionRow(nil), reviewer...),
		"clerk": {
			{ResourceKey: rbac.KeyOrdersList, CanAccess: true, CanView: true, CanCreate: true, DataScope: rbac.ScopeOwn},
			{ResourceKey: rbac.KeyOrdersDetail, CanAccess: true, CanView: true, DataScope: rbac.ScopeOwn},
			{ResourceKey: rbac.KeyCustomersList, CanAccess: true, CanView: true, DataScope: rbac.ScopeOwn},
			{ResourceKey: rbac.KeyProductsCatalog, CanAccess: true, CanView: true, DataScope: rbac.ScopeAll},
		},
	}
}
