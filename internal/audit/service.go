package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/orderdesk/authz/internal/shared"
)

// Repository menyediakan akses baca ke audit trail.
type Repository interface {
	ListAudits(ctx context.Context, filters Filters, offset, limit int) ([]Record, error)
}

// Appender menambahkan record audit di luar transaksi workflow.
type Appender interface {
	AppendAudit(ctx context.Context, rec Record) error
}

// Service mengoordinasikan pengambilan data audit.
type Service struct {
	repo Repository
}

// NewService membuat service audit baru.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List mengambil data audit dengan paging, terbaru lebih dulu.
func (s *Service) List(ctx context.Context, filters Filters) (Result, error) {
	if s == nil || s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	page, pageSize := shared.NormalizePage(filters.Page, filters.PageSize)
	filters.Page, filters.PageSize = page, pageSize
	filters.ActorID = strings.TrimSpace(filters.ActorID)
	filters.Action = strings.TrimSpace(filters.Action)

	rows, err := s.repo.ListAudits(ctx, filters, (page-1)*pageSize, pageSize+1)
	if err != nil {
		return Result{}, fmt.Errorf("audit: list: %w", err)
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []Record{}
	}
	return Result{Rows: rows, Paging: shared.NewPagination(page, pageSize, hasNext)}, nil
}
