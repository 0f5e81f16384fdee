package rbac

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// MenuRule decides whether a navigation entry renders for a principal.
type MenuRule struct {
	MenuKey        string            `yaml:"key"`
	ExplicitAnyOf  []PermissionCheck `yaml:"explicitAnyOf"`
	FallbackAnyOf  []PermissionCheck `yaml:"fallbackAnyOf"`
	DefaultVisible bool              `yaml:"defaultVisible"`
}

// MenuTable is an immutable set of rules keyed by menu key. Build a new table
// to change rules; never mutate one that has been published.
type MenuTable struct {
	Version uint64
	rules   map[string]MenuRule
	keys    []string
}

// NewMenuTable validates rules and builds a table.
func NewMenuTable(rules []MenuRule) (*MenuTable, error) {
	t := &MenuTable{rules: make(map[string]MenuRule, len(rules)), keys: make([]string, 0, len(rules))}
	for _, rule := range rules {
		if !strings.HasPrefix(rule.MenuKey, "menu.") || strings.Count(rule.MenuKey, ".") < 2 {
			return nil, fmt.Errorf("rbac: menu key %q must look like menu.<area>.<item>", rule.MenuKey)
		}
		if _, dup := t.rules[rule.MenuKey]; dup {
			return nil, fmt.Errorf("rbac: duplicate menu rule %q", rule.MenuKey)
		}
		for _, c := range append(append([]PermissionCheck{}, rule.ExplicitAnyOf...), rule.FallbackAnyOf...) {
			if !ValidResourceKey(c.ResourceKey) {
				return nil, fmt.Errorf("rbac: menu %q: invalid resource key %q", rule.MenuKey, c.ResourceKey)
			}
			switch c.Action {
			case ActionAccess, ActionView, ActionCreate, ActionUpdate, ActionDelete:
			default:
				return nil, fmt.Errorf("rbac: menu %q: unknown action %q", rule.MenuKey, c.Action)
			}
		}
		t.rules[rule.MenuKey] = rule
		t.keys = append(t.keys, rule.MenuKey)
	}
	return t, nil
}

// Rule returns the rule for menuKey.
func (t *MenuTable) Rule(menuKey string) (MenuRule, bool) {
	if t == nil {
		return MenuRule{}, false
	}
	rule, ok := t.rules[menuKey]
	return rule, ok
}

// MenuResolver resolves menu visibility against the currently published table.
// Reads are lock free; Publish swaps the whole table.
type MenuResolver struct {
	table   atomic.Pointer[MenuTable]
	version atomic.Uint64
}

// NewMenuResolver publishes table as the initial rule set.
func NewMenuResolver(table *MenuTable) *MenuResolver {
	r := &MenuResolver{}
	if table != nil {
		r.Publish(table)
	}
	return r
}

// Publish makes table the active rule set. The stored table is a copy stamped
// with the next version; table itself is left untouched. Rules are shared
// with the copy and must not be modified afterwards.
func (r *MenuResolver) Publish(table *MenuTable) *MenuTable {
	stamped := &MenuTable{Version: r.version.Add(1), rules: table.rules, keys: table.keys}
	r.table.Store(stamped)
	return stamped
}

// Table returns the active table.
func (r *MenuResolver) Table() *MenuTable {
	return r.table.Load()
}

// CanViewMenu reports whether menuKey renders for the evaluator's principal.
func (r *MenuResolver) CanViewMenu(ev *Evaluator, menuKey string) bool {
	return resolveMenu(r.table.Load(), ev, menuKey)
}

// VisibleMenus resolves every configured menu key against one table version.
func (r *MenuResolver) VisibleMenus(ev *Evaluator) map[string]bool {
	table := r.table.Load()
	if table == nil {
		return map[string]bool{}
	}
	out := make(map[string]bool, len(table.keys))
	for _, key := range table.keys {
		out[key] = resolveMenu(table, ev, key)
	}
	return out
}

func resolveMenu(table *MenuTable, ev *Evaluator, menuKey string) bool {
	rule, ok := table.Rule(menuKey)
	if !ok {
		return true
	}
	// Admin passes every check, so every configured menu renders.
	if ev.Principal().IsAdmin() {
		return true
	}
	if len(rule.ExplicitAnyOf) > 0 && anyKnown(ev, rule.ExplicitAnyOf) {
		return ev.CanAny(rule.ExplicitAnyOf)
	}
	if len(rule.FallbackAnyOf) > 0 {
		return ev.CanAny(rule.FallbackAnyOf)
	}
	return rule.DefaultVisible
}

func anyKnown(ev *Evaluator, checks []PermissionCheck) bool {
	for _, c := range checks {
		if ev.Known(c.ResourceKey) {
			return true
		}
	}
	return false
}
