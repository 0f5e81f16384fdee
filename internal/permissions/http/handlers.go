package permissionshttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/orderdesk/authz/internal/permissions"
	"github.com/orderdesk/authz/internal/platform/httpx"
	"github.com/orderdesk/authz/internal/rbac"
	"github.com/orderdesk/authz/internal/shared"
)

// WorkflowService defines the business contract consumed by the handlers.
type WorkflowService interface {
	Submit(ctx context.Context, requester rbac.Principal, targetID string, proposed []rbac.PermissionRow, reason string) (permissions.SubmitResult, error)
	Approve(ctx context.Context, id uuid.UUID, reviewerID, reviewReason string) (permissions.ApprovalRequest, error)
	Reject(ctx context.Context, id uuid.UUID, reviewerID, reviewReason string) (permissions.ApprovalRequest, error)
	Get(ctx context.Context, id uuid.UUID) (permissions.ApprovalRequest, error)
	List(ctx context.Context, filter permissions.ListFilter) (permissions.ListResult, error)
	Permissions(ctx context.Context, principalID string) ([]rbac.PermissionRow, error)
}

// Handler serves the permission administration API.
type Handler struct {
	logger  *slog.Logger
	service WorkflowService
	menus   *rbac.MenuResolver
	csrf    *shared.CSRFManager
	rbac    rbac.Middleware
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service WorkflowService, menus *rbac.MenuResolver, csrf *shared.CSRFManager, rbacMW rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, menus: menus, csrf: csrf, rbac: rbacMW}
}

type principalView struct {
	ID   string    `json:"id"`
	Role rbac.Role `json:"role"`
}

type meResponse struct {
	Principal   principalView        `json:"principal"`
	Permissions []rbac.PermissionRow `json:"permissions"`
	Menus       map[string]bool      `json:"menus"`
}

type userPermissionsResponse struct {
	PrincipalID string               `json:"principalId"`
	Permissions []rbac.PermissionRow `json:"permissions"`
}

type submitRequest struct {
	Permissions []rbac.PermissionRow `json:"permissions"`
	Reason      string               `json:"reason"`
}

type decisionRequest struct {
	ReviewReason string `json:"reviewReason"`
}

func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.ID == "" {
		httpx.RespondError(w, fmt.Errorf("%w: session required", httpx.ErrUnauthorized))
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, map[string]string{"token": h.csrf.Token(sess.ID)})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ev := rbac.EvaluatorFromContext(r.Context())
	principal := ev.Principal()
	rows, err := h.service.Permissions(r.Context(), principal.ID)
	if err != nil {
		h.fail(w, "load own permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, meResponse{
		Principal:   principalView{ID: principal.ID, Role: principal.Role},
		Permissions: rows,
		Menus:       h.menus.VisibleMenus(ev),
	})
}

func (h *Handler) handleMenus(w http.ResponseWriter, r *http.Request) {
	ev := rbac.EvaluatorFromContext(r.Context())
	if key := strings.TrimSpace(r.URL.Query().Get("key")); key != "" {
		httpx.JSON(w, http.StatusOK, map[string]bool{key: h.menus.CanViewMenu(ev, key)})
		return
	}
	httpx.JSON(w, http.StatusOK, h.menus.VisibleMenus(ev))
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	rows, err := h.service.Permissions(r.Context(), id)
	if err != nil {
		h.fail(w, "load user permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, userPermissionsResponse{PrincipalID: id, Permissions: rows})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal := rbac.EvaluatorFromContext(r.Context()).Principal()
	result, err := h.service.Submit(r.Context(), principal, chi.URLParam(r, "id"), req.Permissions, req.Reason)
	if err != nil {
		h.fail(w, "submit permission change", err)
		return
	}
	status := http.StatusOK
	if result.ApprovalRequired {
		status = http.StatusAccepted
	}
	httpx.JSON(w, status, result)
}

func (h *Handler) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := positiveInt(q.Get("page"), 1, "page")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pageSize, err := positiveInt(q.Get("page_size"), shared.DefaultPageSize, "page_size")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.List(r.Context(), permissions.ListFilter{
		Status:            permissions.Status(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		TargetPrincipalID: strings.TrimSpace(q.Get("target")),
		RequesterID:       strings.TrimSpace(q.Get("requester")),
		Page:              page,
		PageSize:          pageSize,
	})
	if err != nil {
		h.fail(w, "list approvals", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	id, err := approvalID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get approval", err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, h.service.Approve)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, h.service.Reject)
}

type decideFunc func(ctx context.Context, id uuid.UUID, reviewerID, reviewReason string) (permissions.ApprovalRequest, error)

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request, decide decideFunc) {
	id, err := approvalID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var body decisionRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	reviewer := rbac.EvaluatorFromContext(r.Context()).Principal()
	req, err := decide(r.Context(), id, reviewer.ID, body.ReviewReason)
	if err != nil {
		h.fail(w, "decide approval", err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

// fail responds with the mapped error and logs only what maps to 500.
func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func approvalID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: approval id must be a uuid", httpx.ErrValidation)
	}
	return id, nil
}

func positiveInt(raw string, fallback int, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", httpx.ErrValidation, name)
	}
	return v, nil
}
