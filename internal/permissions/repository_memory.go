package permissions

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orderdesk/authz/internal/audit"
	"github.com/orderdesk/authz/internal/rbac"
)

// MemoryRepository keeps the workflow state in process. Transactions are
// serialized and rolled back by replaying an undo log.
type MemoryRepository struct {
	mu          sync.Mutex
	approvals   map[uuid.UUID]ApprovalRequest
	permissions map[string]map[string]rbac.PermissionRow
	audits      []audit.Record
	nextAuditID int64
}

// NewMemoryRepository builds a repository seeded with initial permission rows
// keyed by principal id.
func NewMemoryRepository(seed map[string][]rbac.PermissionRow) *MemoryRepository {
	r := &MemoryRepository{
		approvals:   make(map[uuid.UUID]ApprovalRequest),
		permissions: make(map[string]map[string]rbac.PermissionRow),
	}
	for principalID, rows := range seed {
		set := make(map[string]rbac.PermissionRow, len(rows))
		for _, row := range rows {
			set[row.ResourceKey] = row
		}
		r.permissions[principalID] = set
	}
	return r
}

type memTx struct {
	repo *MemoryRepository
	undo []func()
}

// WithTx runs fn while holding the repository lock. fn must only use the
// TxRepository it receives.
func (r *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memTx{repo: r}
	if err := fn(ctx, tx); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

func (t *memTx) InsertApproval(_ context.Context, req ApprovalRequest) error {
	if _, exists := t.repo.approvals[req.ID]; exists {
		return fmt.Errorf("%w %s", ErrDuplicateApproval, req.ID)
	}
	t.repo.approvals[req.ID] = req.clone()
	id := req.ID
	t.undo = append(t.undo, func() { delete(t.repo.approvals, id) })
	return nil
}

func (t *memTx) DecideApproval(_ context.Context, d Decision) (bool, error) {
	current, ok := t.repo.approvals[d.ID]
	if !ok || current.Status != StatusPending || current.RequesterID == d.DecidedBy {
		return false, nil
	}
	prev := current.clone()
	decidedAt := d.DecidedAt
	decidedBy := d.DecidedBy
	current.Status = d.Status
	current.DecidedAt = &decidedAt
	current.DecidedBy = &decidedBy
	if d.ReviewReason != "" {
		reason := d.ReviewReason
		current.ReviewReason = &reason
	}
	t.repo.approvals[d.ID] = current
	t.undo = append(t.undo, func() { t.repo.approvals[d.ID] = prev })
	return true, nil
}

func (t *memTx) UpsertPermissions(_ context.Context, principalID string, rows []rbac.PermissionRow) error {
	set, existed := t.repo.permissions[principalID]
	prev := make(map[string]rbac.PermissionRow, len(set))
	for k, v := range set {
		prev[k] = v
	}
	if !existed {
		set = make(map[string]rbac.PermissionRow, len(rows))
		t.repo.permissions[principalID] = set
	}
	for _, row := range rows {
		set[row.ResourceKey] = row
	}
	t.undo = append(t.undo, func() {
		if !existed {
			delete(t.repo.permissions, principalID)
			return
		}
		t.repo.permissions[principalID] = prev
	})
	return nil
}

func (t *memTx) AppendAudit(_ context.Context, rec audit.Record) error {
	t.repo.appendLocked(rec)
	t.undo = append(t.undo, func() {
		t.repo.audits = t.repo.audits[:len(t.repo.audits)-1]
		t.repo.nextAuditID--
	})
	return nil
}

func (r *MemoryRepository) appendLocked(rec audit.Record) {
	r.nextAuditID++
	rec.ID = r.nextAuditID
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	if rec.Meta != nil {
		meta := make(map[string]any, len(rec.Meta))
		for k, v := range rec.Meta {
			meta[k] = v
		}
		rec.Meta = meta
	}
	r.audits = append(r.audits, rec)
}

// AppendAudit writes one record outside any workflow transaction.
func (r *MemoryRepository) AppendAudit(_ context.Context, rec audit.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(rec)
	return nil
}

// GetApproval loads one request.
func (r *MemoryRepository) GetApproval(_ context.Context, id uuid.UUID) (ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.approvals[id]
	if !ok {
		return ApprovalRequest{}, ErrApprovalNotFound
	}
	return req.clone(), nil
}

// ListApprovals returns requests newest first.
func (r *MemoryRepository) ListApprovals(_ context.Context, filter ListFilter, offset, limit int) ([]ApprovalRequest, error) {
	r.mu.Lock()
	matched := make([]ApprovalRequest, 0, len(r.approvals))
	for _, req := range r.approvals {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.TargetPrincipalID != "" && req.TargetPrincipalID != filter.TargetPrincipalID {
			continue
		}
		if filter.RequesterID != "" && req.RequesterID != filter.RequesterID {
			continue
		}
		matched = append(matched, req.clone())
	}
	r.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return window(matched, offset, limit), nil
}

// ListPermissions returns the rows stored for principalID ordered by key.
func (r *MemoryRepository) ListPermissions(_ context.Context, principalID string) ([]rbac.PermissionRow, error) {
	r.mu.Lock()
	set := r.permissions[principalID]
	out := make([]rbac.PermissionRow, 0, len(set))
	for _, row := range set {
		out = append(out, row)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceKey < out[j].ResourceKey })
	return out, nil
}

// ListAudits returns audit rows newest first.
func (r *MemoryRepository) ListAudits(_ context.Context, filters audit.Filters, offset, limit int) ([]audit.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := make([]audit.Record, 0, len(r.audits))
	for i := len(r.audits) - 1; i >= 0; i-- {
		rec := r.audits[i]
		if filters.ActorID != "" && rec.ActorID != filters.ActorID {
			continue
		}
		if filters.Action != "" && rec.Action != filters.Action {
			continue
		}
		if filters.Outcome != "" && rec.Outcome != filters.Outcome {
			continue
		}
		matched = append(matched, rec)
	}
	return window(matched, offset, limit), nil
}

func window[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
