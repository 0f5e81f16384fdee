package rbac

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMenuResolver(t testing.TB) *MenuResolver {
	t.Helper()
	table, err := NewMenuTable([]MenuRule{
		{
			MenuKey:        "menu.admin.permissions",
			ExplicitAnyOf:  []PermissionCheck{Check("permissions.page", ActionAccess)},
			FallbackAnyOf:  []PermissionCheck{Check("permissions.users", ActionView)},
			DefaultVisible: false,
		},
		{
			MenuKey:        "menu.orders.new",
			ExplicitAnyOf:  []PermissionCheck{Check("orders.list", ActionCreate)},
			DefaultVisible: true,
		},
		{
			MenuKey:        "menu.reports.sales",
			DefaultVisible: false,
		},
	})
	require.NoError(t, err)
	return NewMenuResolver(table)
}

func TestCanViewMenuWithoutRuleIsVisible(t *testing.T) {
	r := testMenuResolver(t)
	ev := NewEvaluator(Principal{ID: "u1", Role: RoleEmployee}, nil)
	assert.True(t, r.CanViewMenu(ev, "menu.unknown.item"))
	assert.True(t, NewMenuResolver(nil).CanViewMenu(ev, "menu.orders.new"))
}

func TestCanViewMenuExplicitWinsWhenKeyKnown(t *testing.T) {
	r := testMenuResolver(t)
	// Known but not permitted: the fallback must not be consulted.
	ev := NewEvaluator(Principal{ID: "u1", Role: RoleManager}, []PermissionRow{
		{ResourceKey: "permissions.page", CanAccess: false},
		{ResourceKey: "permissions.users", CanView: true},
	})
	assert.False(t, r.CanViewMenu(ev, "menu.admin.permissions"))

	ev = NewEvaluator(Principal{ID: "u1", Role: RoleManager}, []PermissionRow{
		{ResourceKey: "permissions.page", CanAccess: true},
	})
	assert.True(t, r.CanViewMenu(ev, "menu.admin.permissions"))
}

func TestCanViewMenuFallsBackWhenExplicitUnknown(t *testing.T) {
	r := testMenuResolver(t)
	ev := NewEvaluator(Principal{ID: "u1", Role: RoleManager}, []PermissionRow{
		{ResourceKey: "permissions.users", CanView: true},
	})
	assert.True(t, r.CanViewMenu(ev, "menu.admin.permissions"))

	ev = NewEvaluator(Principal{ID: "u1", Role: RoleManager}, []PermissionRow{
		{ResourceKey: "permissions.users", CanView: false},
	})
	assert.False(t, r.CanViewMenu(ev, "menu.admin.permissions"))
}

func TestCanViewMenuDefaultVisible(t *testing.T) {
	r := testMenuResolver(t)
	ev := NewEvaluator(Principal{ID: "u1", Role: RoleEmployee}, nil)
	assert.True(t, r.CanViewMenu(ev, "menu.orders.new"))
	assert.False(t, r.CanViewMenu(ev, "menu.reports.sales"))
	assert.False(t, r.CanViewMenu(nil, "menu.reports.sales"))
}

func TestCanViewMenuIsPure(t *testing.T) {
	r := testMenuResolver(t)
	ev := NewEvaluator(Principal{ID: "u1", Role: RoleManager}, []PermissionRow{
		{ResourceKey: "permissions.users", CanView: true},
		{ResourceKey: "orders.list", CanCreate: false},
	})
	first := r.VisibleMenus(ev)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, r.VisibleMenus(ev))
	}
	assert.Equal(t, map[string]bool{
		"menu.admin.permissions": true,
		"menu.orders.new":        false,
		"menu.reports.sales":     false,
	}, first)
}

func TestNewMenuTableRejectsInvalidRules(t *testing.T) {
	_, err := NewMenuTable([]MenuRule{{MenuKey: "orders.list"}})
	assert.Error(t, err)
	_, err = NewMenuTable([]MenuRule{{MenuKey: "menu.a.b"}, {MenuKey: "menu.a.b"}})
	assert.Error(t, err)
	_, err = NewMenuTable([]MenuRule{{MenuKey: "menu.a.b", ExplicitAnyOf: []PermissionCheck{Check("bad", ActionView)}}})
	assert.Error(t, err)
	_, err = NewMenuTable([]MenuRule{{MenuKey: "menu.a.b", FallbackAnyOf: []PermissionCheck{Check("orders.list", Action("export"))}}})
	assert.Error(t, err)
}

func TestDefaultMenuTableParses(t *testing.T) {
	table, err := DefaultMenuTable()
	require.NoError(t, err)
	rule, ok := table.Rule("menu.admin.permissions")
	require.True(t, ok)
	assert.Equal(t, []PermissionCheck{Check(KeyPermissionsPage, ActionAccess)}, rule.ExplicitAnyOf)
	assert.Len(t, rule.FallbackAnyOf, 2)
}

func TestParseMenuTableRejectsUnknownFields(t *testing.T) {
	_, err := ParseMenuTable([]byte("menus:\n  - key: menu.a.b\n    visible: true\n"))
	assert.Error(t, err)
}

func TestPublishSwapsWholeTable(t *testing.T) {
	r := testMenuResolver(t)
	old := r.Table()
	next, err := NewMenuTable([]MenuRule{{MenuKey: "menu.reports.sales", DefaultVisible: true}})
	require.NoError(t, err)
	r.Publish(next)

	ev := NewEvaluator(Principal{ID: "u1", Role: RoleEmployee}, nil)
	assert.True(t, r.CanViewMenu(ev, "menu.reports.sales"))
	assert.Greater(t, r.Table().Version, old.Version)
	_, stillThere := old.Rule("menu.orders.new")
	assert.True(t, stillThere)
}

func TestCanViewMenuAdminWithoutRows(t *testing.T) {
	table, err := DefaultMenuTable()
	require.NoError(t, err)
	r := NewMenuResolver(table)
	ev := NewEvaluator(Principal{ID: "root", Role: RoleAdmin}, nil)

	assert.True(t, ev.Can("users.manage", ActionAccess))
	for key, visible := range r.VisibleMenus(ev) {
		assert.True(t, visible, key)
	}
	assert.True(t, r.CanViewMenu(ev, "menu.admin.users"))
	assert.True(t, r.CanViewMenu(ev, "menu.reports.sales"))
}

func TestPublishLeavesInputTableUntouched(t *testing.T) {
	table, err := NewMenuTable([]MenuRule{{MenuKey: "menu.reports.sales", DefaultVisible: true}})
	require.NoError(t, err)
	r := NewMenuResolver(table)
	first := r.Table()

	second := r.Publish(table)
	assert.Zero(t, table.Version)
	assert.NotSame(t, first, second)
	assert.Equal(t, first.Version+1, second.Version)
	assert.Same(t, second, r.Table())
}

func TestWatchMenuRulesReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "menus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("menus:\n  - key: menu.reports.sales\n    defaultVisible: false\n"), 0o600))

	table, err := LoadMenuTable(path)
	require.NoError(t, err)
	r := NewMenuResolver(table)
	ev := NewEvaluator(Principal{ID: "u1", Role: RoleEmployee}, nil)
	require.False(t, r.CanViewMenu(ev, "menu.reports.sales"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- WatchMenuRules(ctx, path, r, nil, nil) }()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("menus:\n  - key: menu.reports.sales\n    defaultVisible: true\n"), 0o600))

	assert.Eventually(t, func() bool { return r.CanViewMenu(ev, "menu.reports.sales") }, 3*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func BenchmarkCanViewMenu(b *testing.B) {
	r := testMenuResolver(b)
	ev := NewEvaluator(Principal{ID: "u1", Role: RoleManager}, []PermissionRow{
		{ResourceKey: "permissions.users", CanView: true},
		{ResourceKey: "orders.list", CanCreate: true},
	})
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.CanViewMenu(ev, "menu.admin.permissions")
		_ = r.CanViewMenu(ev, "menu.orders.new")
	}
}
