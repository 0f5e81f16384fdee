package permissionshttp

import (
	"github.com/go-chi/chi/v5"

	"github.com/orderdesk/authz/internal/rbac"
)

// MountRoutes registers the permission endpoints on an /api router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	usersView := h.rbac.RequireAny(rbac.Check(rbac.KeyPermissionsUsers, rbac.ActionView))
	usersUpdate := h.rbac.RequireAny(rbac.Check(rbac.KeyPermissionsUsers, rbac.ActionUpdate))
	approvalsView := h.rbac.RequireAny(rbac.Check(rbac.KeyPermissionsApprovals, rbac.ActionView))
	approvalsUpdate := h.rbac.RequireAny(rbac.Check(rbac.KeyPermissionsApprovals, rbac.ActionUpdate))

	r.Get("/csrf", h.handleCSRF)
	r.Get("/permissions/me", h.handleMe)
	r.Get("/permissions/menus", h.handleMenus)

	r.With(usersView).Get("/permissions/users/{id}", h.handleGetUser)
	r.With(usersUpdate).Put("/permissions/users/{id}", h.handleSubmit)

	r.With(approvalsView).Get("/permissions/approvals", h.handleListApprovals)
	r.With(approvalsView).Get("/permissions/approvals/{id}", h.handleGetApproval)
	r.With(approvalsUpdate).Post("/permissions/approvals/{id}/approve", h.handleApprove)
	r.With(approvalsUpdate).Post("/permissions/approvals/{id}/reject", h.handleReject)
}
