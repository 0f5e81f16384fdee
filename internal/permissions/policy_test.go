package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orderdesk/authz/internal/rbac"
)

func TestApprovalPolicy(t *testing.T) {
	policy := DefaultPolicy()
	plain := []rbac.PermissionRow{{ResourceKey: "orders.list", CanView: true, DataScope: rbac.ScopeOwn}}
	elevated := []rbac.PermissionRow{{ResourceKey: "permissions.audits", CanView: true, DataScope: rbac.ScopeAll}}

	tests := []struct {
		name      string
		requester rbac.Principal
		target    string
		rows      []rbac.PermissionRow
		want      bool
	}{
		{name: "admin other plain", requester: admin, target: "x", rows: plain, want: false},
		{name: "admin self", requester: admin, target: admin.ID, rows: plain, want: true},
		{name: "admin elevated", requester: admin, target: "x", rows: elevated, want: true},
		{name: "manager plain", requester: manager, target: "x", rows: plain, want: true},
		{name: "employee plain", requester: employee, target: "x", rows: plain, want: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, policy.RequiresApproval(tc.requester, tc.target, tc.rows))
		})
	}
}

func TestApprovalPolicyCustomPrefixes(t *testing.T) {
	policy := ApprovalPolicy{ElevatedPrefixes: []string{"reports.", " "}}
	assert.True(t, policy.Elevated("reports.sales"))
	assert.False(t, policy.Elevated("permissions.page"))
	assert.False(t, policy.Elevated("orders.list"))
}
