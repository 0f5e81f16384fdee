package audithttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/orderdesk/authz/internal/audit"
	"github.com/orderdesk/authz/internal/platform/httpx"
	"github.com/orderdesk/authz/internal/shared"
)

// ListService defines the business contract for audit listing.
type ListService interface {
	List(ctx context.Context, filters audit.Filters) (audit.Result, error)
}

// Handler menangani permintaan audit trail. Akses Admin-only ditegakkan oleh gate.
type Handler struct {
	logger  *slog.Logger
	service ListService
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service ListService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list audits", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func parseFilters(r *http.Request) (audit.Filters, error) {
	q := r.URL.Query()
	page := 1
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.Filters{}, fmt.Errorf("%w: page must be a positive integer", httpx.ErrValidation)
		}
		page = parsed
	}
	pageSize := shared.DefaultPageSize
	if v := strings.TrimSpace(q.Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.Filters{}, fmt.Errorf("%w: page_size must be a positive integer", httpx.ErrValidation)
		}
		pageSize = parsed
	}
	outcome := audit.Outcome(strings.TrimSpace(q.Get("outcome")))
	switch outcome {
	case "", audit.OutcomeAllowed, audit.OutcomeDenied, audit.OutcomeSubmitted, audit.OutcomeApproved,
		audit.OutcomeRejected, audit.OutcomeApplied, audit.OutcomeConflict:
	default:
		return audit.Filters{}, fmt.Errorf("%w: unknown outcome %q", httpx.ErrValidation, outcome)
	}
	return audit.Filters{
		ActorID:  strings.TrimSpace(q.Get("actor")),
		Action:   strings.TrimSpace(q.Get("action")),
		Outcome:  outcome,
		Page:     page,
		PageSize: pageSize,
	}, nil
}
