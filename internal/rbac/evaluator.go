package rbac

// Evaluator answers permission questions for one principal against a snapshot
// of that principal's rows. It never errors: anything unknown is denied.
type Evaluator struct {
	principal Principal
	rows      map[string]PermissionRow
}

// NewEvaluator builds an Evaluator. Later rows win when keys repeat.
func NewEvaluator(principal Principal, rows []PermissionRow) *Evaluator {
	index := make(map[string]PermissionRow, len(rows))
	for _, row := range rows {
		index[row.ResourceKey] = row
	}
	return &Evaluator{principal: principal, rows: index}
}

// Principal returns the principal the evaluator was built for.
func (e *Evaluator) Principal() Principal {
	if e == nil {
		return Principal{}
	}
	return e.principal
}

// Can reports whether action is granted on resourceKey.
func (e *Evaluator) Can(resourceKey string, action Action) bool {
	if e == nil {
		return false
	}
	if e.principal.IsAdmin() {
		return true
	}
	row, ok := e.rows[resourceKey]
	if !ok {
		return false
	}
	switch action {
	case ActionView:
		return row.CanView
	case ActionCreate:
		return row.CanCreate
	case ActionUpdate:
		return row.CanUpdate
	case ActionDelete:
		return row.CanDelete
	case ActionAccess:
		return row.CanAccess
	default:
		return row.CanAccess
	}
}

// CanAny reports whether at least one check passes.
func (e *Evaluator) CanAny(checks []PermissionCheck) bool {
	for _, c := range checks {
		if e.Can(c.ResourceKey, c.Action) {
			return true
		}
	}
	return false
}

// Known reports whether the principal has any row for resourceKey, regardless
// of the flags on it.
func (e *Evaluator) Known(resourceKey string) bool {
	if e == nil {
		return false
	}
	_, ok := e.rows[resourceKey]
	return ok
}

// Scope returns the data scope hint for resourceKey. Admin always gets
// ScopeAll; a missing row yields ok=false.
func (e *Evaluator) Scope(resourceKey string) (DataScope, bool) {
	if e == nil {
		return "", false
	}
	if e.principal.IsAdmin() {
		return ScopeAll, true
	}
	row, ok := e.rows[resourceKey]
	if !ok {
		return "", false
	}
	return row.DataScope, true
}
