package rbac

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

const loadTimeout = 10 * time.Second

// RowSource reads permission rows for a principal.
type RowSource interface {
	ListPermissions(ctx context.Context, principalID string) ([]PermissionRow, error)
}

// Loader builds request scoped evaluators. Concurrent loads for the same
// principal share a single store read; nothing is kept once it returns.
type Loader struct {
	source RowSource
	group  singleflight.Group
}

// NewLoader constructs a Loader backed by source.
func NewLoader(source RowSource) *Loader {
	return &Loader{source: source}
}

// Evaluator loads the principal's rows and wraps them in an Evaluator. The
// shared read is detached from ctx so one caller going away does not fail the
// others waiting on the same load; each caller still stops waiting on its own
// ctx.
func (l *Loader) Evaluator(ctx context.Context, principal Principal) (*Evaluator, error) {
	shared := context.WithoutCancel(ctx)
	ch := l.group.DoChan(principal.ID, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(shared, loadTimeout)
		defer cancel()
		return l.source.ListPermissions(loadCtx, principal.ID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("rbac: load permissions: %w", res.Err)
		}
		rows, _ := res.Val.([]PermissionRow)
		return NewEvaluator(principal, rows), nil
	}
}
