package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orderdesk/authz/internal/audit"
	"github.com/orderdesk/authz/internal/platform/db"
	"github.com/orderdesk/authz/internal/rbac"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	SendBatch(context.Context, *pgx.Batch) pgx.BatchResults
}

// PGRepository persists the workflow in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
	db   dbtx
}

// NewPGRepository constructs a repository backed by pool.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, db: pool}
}

type pgTx struct {
	db dbtx
}

// WithTx runs fn in a READ COMMITTED transaction. Serialization failures and
// deadlocks surface as ErrAlreadyDecided.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{db: tx})
	})
	if err != nil && db.IsConflict(err) {
		return fmt.Errorf("%w: %v", ErrAlreadyDecided, err)
	}
	return err
}

const approvalColumns = `id, requester_id, target_principal_id, proposed_permissions, reason, status,
	created_at, decided_at, decided_by, review_reason`

func scanApproval(row pgx.Row) (ApprovalRequest, error) {
	var (
		req          ApprovalRequest
		proposed     []byte
		status       string
		decidedAt    pgtype.Timestamptz
		decidedBy    pgtype.Text
		reviewReason pgtype.Text
	)
	if err := row.Scan(&req.ID, &req.RequesterID, &req.TargetPrincipalID, &proposed, &req.Reason, &status,
		&req.CreatedAt, &decidedAt, &decidedBy, &reviewReason); err != nil {
		return ApprovalRequest{}, err
	}
	if err := json.Unmarshal(proposed, &req.ProposedPermissions); err != nil {
		return ApprovalRequest{}, fmt.Errorf("decode proposed permissions: %w", err)
	}
	req.Status = Status(status)
	if decidedAt.Valid {
		t := decidedAt.Time.UTC()
		req.DecidedAt = &t
	}
	if decidedBy.Valid {
		v := decidedBy.String
		req.DecidedBy = &v
	}
	if reviewReason.Valid {
		v := reviewReason.String
		req.ReviewReason = &v
	}
	req.CreatedAt = req.CreatedAt.UTC()
	return req, nil
}

// GetApproval loads one request.
func (r *PGRepository) GetApproval(ctx context.Context, id uuid.UUID) (ApprovalRequest, error) {
	row := r.db.QueryRow(ctx, `SELECT `+approvalColumns+` FROM permission_approvals WHERE id = $1`, id)
	req, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ApprovalRequest{}, ErrApprovalNotFound
		}
		return ApprovalRequest{}, err
	}
	return req, nil
}

// ListApprovals returns requests newest first.
func (r *PGRepository) ListApprovals(ctx context.Context, filter ListFilter, offset, limit int) ([]ApprovalRequest, error) {
	var conditions []string
	var args []interface{}
	argPos := 1
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(filter.Status))
		argPos++
	}
	if filter.TargetPrincipalID != "" {
		conditions = append(conditions, fmt.Sprintf("target_principal_id = $%d", argPos))
		args = append(args, filter.TargetPrincipalID)
		argPos++
	}
	if filter.RequesterID != "" {
		conditions = append(conditions, fmt.Sprintf("requester_id = $%d", argPos))
		args = append(args, filter.RequesterID)
		argPos++
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	query := fmt.Sprintf(`SELECT %s FROM permission_approvals %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		approvalColumns, where, argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ApprovalRequest
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// ListPermissions returns the rows stored for principalID ordered by key.
func (r *PGRepository) ListPermissions(ctx context.Context, principalID string) ([]rbac.PermissionRow, error) {
	rows, err := r.db.Query(ctx, `SELECT resource_key, can_access, can_view, can_create, can_update, can_delete, data_scope
FROM user_permissions WHERE principal_id = $1 ORDER BY resource_key`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []rbac.PermissionRow
	for rows.Next() {
		var (
			row   rbac.PermissionRow
			scope string
		)
		if err := rows.Scan(&row.ResourceKey, &row.CanAccess, &row.CanView, &row.CanCreate, &row.CanUpdate, &row.CanDelete, &scope); err != nil {
			return nil, err
		}
		row.DataScope = rbac.DataScope(scope)
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListAudits returns audit rows newest first.
func (r *PGRepository) ListAudits(ctx context.Context, filters audit.Filters, offset, limit int) ([]audit.Record, error) {
	var conditions []string
	var args []interface{}
	argPos := 1
	if filters.ActorID != "" {
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", argPos))
		args = append(args, filters.ActorID)
		argPos++
	}
	if filters.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action = $%d", argPos))
		args = append(args, filters.Action)
		argPos++
	}
	if filters.Outcome != "" {
		conditions = append(conditions, fmt.Sprintf("outcome = $%d", argPos))
		args = append(args, string(filters.Outcome))
		argPos++
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	query := fmt.Sprintf(`SELECT id, actor_id, action, COALESCE(resource_key, ''), COALESCE(approval_id::text, ''), outcome, meta, occurred_at
FROM permission_audits %s ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`, where, argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []audit.Record
	for rows.Next() {
		var (
			rec     audit.Record
			outcome string
			meta    []byte
		)
		if err := rows.Scan(&rec.ID, &rec.ActorID, &rec.Action, &rec.ResourceKey, &rec.ApprovalID, &outcome, &meta, &rec.At); err != nil {
			return nil, err
		}
		rec.Outcome = audit.Outcome(outcome)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &rec.Meta); err != nil {
				return nil, fmt.Errorf("decode audit meta: %w", err)
			}
		}
		rec.At = rec.At.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AppendAudit writes one record outside any workflow transaction.
func (r *PGRepository) AppendAudit(ctx context.Context, rec audit.Record) error {
	return appendAudit(ctx, r.db, rec)
}

func (t *pgTx) AppendAudit(ctx context.Context, rec audit.Record) error {
	return appendAudit(ctx, t.db, rec)
}

func appendAudit(ctx context.Context, q dbtx, rec audit.Record) error {
	meta := rec.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode audit meta: %w", err)
	}
	at := rec.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var approvalID *uuid.UUID
	if rec.ApprovalID != "" {
		id, err := uuid.Parse(rec.ApprovalID)
		if err != nil {
			return fmt.Errorf("audit approval id: %w", err)
		}
		approvalID = &id
	}
	_, err = q.Exec(ctx, `INSERT INTO permission_audits (actor_id, action, resource_key, approval_id, outcome, meta, occurred_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)`,
		rec.ActorID, rec.Action, rec.ResourceKey, approvalID, string(rec.Outcome), payload, at)
	return err
}

func (t *pgTx) InsertApproval(ctx context.Context, req ApprovalRequest) error {
	proposed, err := json.Marshal(req.ProposedPermissions)
	if err != nil {
		return fmt.Errorf("encode proposed permissions: %w", err)
	}
	_, err = t.db.Exec(ctx, `INSERT INTO permission_approvals
	(id, requester_id, target_principal_id, proposed_permissions, reason, status, created_at, decided_at, decided_by, review_reason)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		req.ID, req.RequesterID, req.TargetPrincipalID, proposed, req.Reason, string(req.Status),
		req.CreatedAt, req.DecidedAt, req.DecidedBy, req.ReviewReason)
	if err != nil && db.IsUniqueViolation(err) {
		return fmt.Errorf("%w %s: %v", ErrDuplicateApproval, req.ID, err)
	}
	return err
}

func (t *pgTx) DecideApproval(ctx context.Context, d Decision) (bool, error) {
	var reviewReason *string
	if d.ReviewReason != "" {
		reviewReason = &d.ReviewReason
	}
	cmdTag, err := t.db.Exec(ctx, `UPDATE permission_approvals
SET status = $2, decided_by = $3, decided_at = $4, review_reason = $5
WHERE id = $1 AND status = 'PENDING' AND requester_id <> $3`,
		d.ID, string(d.Status), d.DecidedBy, d.DecidedAt, reviewReason)
	if err != nil {
		return false, err
	}
	return cmdTag.RowsAffected() == 1, nil
}

func (t *pgTx) UpsertPermissions(ctx context.Context, principalID string, rows []rbac.PermissionRow) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`INSERT INTO user_permissions
	(principal_id, resource_key, can_access, can_view, can_create, can_update, can_delete, data_scope, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
ON CONFLICT (principal_id, resource_key) DO UPDATE SET
	can_access = EXCLUDED.can_access,
	can_view = EXCLUDED.can_view,
	can_create = EXCLUDED.can_create,
	can_update = EXCLUDED.can_update,
	can_delete = EXCLUDED.can_delete,
	data_scope = EXCLUDED.data_scope,
	updated_at = NOW()`,
			principalID, row.ResourceKey, row.CanAccess, row.CanView, row.CanCreate, row.CanUpdate, row.CanDelete, string(row.DataScope))
	}
	br := t.db.SendBatch(ctx, batch)
	for range rows {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("upsert permission: %w", err)
		}
	}
	return br.Close()
}
