package permissionshttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderdesk/authz/internal/permissions"
	"github.com/orderdesk/authz/internal/rbac"
	"github.com/orderdesk/authz/internal/shared"
)

type fixture struct {
	router http.Handler
	repo   *permissions.MemoryRepository
	csrf   *shared.CSRFManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := permissions.NewMemoryRepository(map[string][]rbac.PermissionRow{
		"mgr-a": {
			{ResourceKey: rbac.KeyPermissionsUsers, CanAccess: true, CanView: true, CanUpdate: true, DataScope: rbac.ScopeBranch},
			{ResourceKey: rbac.KeyPermissionsApprovals, CanAccess: true, CanView: true, CanUpdate: true, DataScope: rbac.ScopeBranch},
		},
		"mgr-b": {
			{ResourceKey: rbac.KeyPermissionsApprovals, CanAccess: true, CanView: true, CanUpdate: true, DataScope: rbac.ScopeBranch},
		},
		"mgr-viewer": {
			{ResourceKey: rbac.KeyPermissionsApprovals, CanAccess: true, CanView: true, DataScope: rbac.ScopeBranch},
		},
	})
	table, err := rbac.DefaultMenuTable()
	require.NoError(t, err)
	csrf := shared.NewCSRFManager("test-secret")
	mw := rbac.Middleware{Loader: rbac.NewLoader(repo)}
	handler := NewHandler(nil, permissions.NewService(repo, permissions.ServiceConfig{}), rbac.NewMenuResolver(table), csrf, mw)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Test-Principal")
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			role, err := rbac.ParseRole(r.Header.Get("X-Test-Role"))
			require.NoError(t, err)
			ctx := rbac.ContextWithPrincipal(r.Context(), rbac.Principal{ID: id, Role: role})
			ctx = shared.ContextWithSession(ctx, &shared.Session{ID: "sess-" + id, UserID: id, Role: string(role)})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	r.Use(mw.Load)
	handler.MountRoutes(r)
	return &fixture{router: r, repo: repo, csrf: csrf}
}

func (f *fixture) do(t *testing.T, method, path, principal, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if principal != "" {
		req.Header.Set("X-Test-Principal", principal)
		req.Header.Set("X-Test-Role", role)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestSubmitAndApproveFlow(t *testing.T) {
	f := newFixture(t)
	body := `{"permissions":[{"resourceKey":"permissions.approvals","canView":true,"dataScope":"all"}],"reason":"review queue"}`

	rr := f.do(t, http.MethodPut, "/permissions/users/target-t", "mgr-a", "Manager", body)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	submitted := decode[permissions.SubmitResult](t, rr)
	require.True(t, submitted.ApprovalRequired)
	id := submitted.ApprovalRequest.ID.String()

	rr = f.do(t, http.MethodPost, "/permissions/approvals/"+id+"/approve", "mgr-a", "Manager", "")
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), `"code":"forbidden"`)

	rr = f.do(t, http.MethodPost, "/permissions/approvals/"+id+"/approve", "mgr-viewer", "Manager", "")
	require.Equal(t, http.StatusForbidden, rr.Code, "view-only reviewer cannot decide")

	rr = f.do(t, http.MethodPost, "/permissions/approvals/"+id+"/approve", "mgr-b", "Manager", `{"reviewReason":"fine"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	approved := decode[permissions.ApprovalRequest](t, rr)
	assert.Equal(t, permissions.StatusApproved, approved.Status)

	rr = f.do(t, http.MethodPost, "/permissions/approvals/"+id+"/reject", "adm-x", "Admin", `{"reviewReason":"late"}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), `"code":"conflict"`)

	rr = f.do(t, http.MethodGet, "/permissions/users/target-t", "adm-x", "Admin", "")
	require.Equal(t, http.StatusOK, rr.Code)
	user := decode[userPermissionsResponse](t, rr)
	require.Len(t, user.Permissions, 1)
	assert.True(t, user.Permissions[0].CanView)
}

func TestSubmitAppliedReturnsOK(t *testing.T) {
	f := newFixture(t)
	body := `{"permissions":[{"resourceKey":"orders.list","canAccess":true,"canView":true,"dataScope":"own"}],"reason":"onboarding"}`
	rr := f.do(t, http.MethodPut, "/permissions/users/emp-1", "adm-x", "Admin", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[permissions.SubmitResult](t, rr)
	assert.False(t, res.ApprovalRequired)
	require.NotNil(t, res.ApprovalRequest.DecidedBy)
	assert.Equal(t, permissions.SystemReviewerID, *res.ApprovalRequest.DecidedBy)
}

func TestSubmitValidationErrors(t *testing.T) {
	f := newFixture(t)
	cases := []string{
		`{"permissions":[],"reason":"x"}`,
		`{"permissions":[{"resourceKey":"orders","dataScope":"own"}],"reason":"x"}`,
		`{"permissions":[{"resourceKey":"orders.list","dataScope":"own"}]}`,
		`{"permissions":[{"resourceKey":"orders.list","dataScope":"own"}],"reason":"x","extra":1}`,
		`not json`,
	}
	for _, body := range cases {
		rr := f.do(t, http.MethodPut, "/permissions/users/emp-1", "mgr-a", "Manager", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
		assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	}
}

func TestHandlerChecksDenyMissingRows(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/permissions/users/emp-1", "mgr-b", "Manager", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, http.MethodGet, "/permissions/approvals", "mgr-unknown", "Manager", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestApprovalLookups(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/permissions/approvals/not-a-uuid", "mgr-b", "Manager", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodGet, "/permissions/approvals/9b2f6c1e-1111-4a4a-9c9c-000000000000", "mgr-b", "Manager", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), `"code":"not-found"`)

	rr = f.do(t, http.MethodGet, "/permissions/approvals?status=pending&page_size=5", "mgr-b", "Manager", "")
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[permissions.ListResult](t, rr)
	assert.NotNil(t, list.Rows)
	assert.Equal(t, 5, list.Paging.PageSize)

	rr = f.do(t, http.MethodGet, "/permissions/approvals?page=zero", "mgr-b", "Manager", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMeMenusAndCSRF(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/permissions/me", "mgr-a", "Manager", "")
	require.Equal(t, http.StatusOK, rr.Code)
	me := decode[meResponse](t, rr)
	assert.Equal(t, "mgr-a", me.Principal.ID)
	assert.Len(t, me.Permissions, 2)
	assert.True(t, me.Menus["menu.admin.permissions"], "fallback grants the permissions page")
	assert.False(t, me.Menus["menu.admin.audits"])

	rr = f.do(t, http.MethodGet, "/permissions/menus?key=menu.admin.approvals", "mgr-b", "Manager", "")
	require.Equal(t, http.StatusOK, rr.Code)
	single := decode[map[string]bool](t, rr)
	assert.Len(t, single, 1)

	rr = f.do(t, http.MethodGet, "/csrf", "mgr-a", "Manager", "")
	require.Equal(t, http.StatusOK, rr.Code)
	token := decode[map[string]string](t, rr)["token"]
	assert.Equal(t, f.csrf.Token("sess-mgr-a"), token)

	rr = f.do(t, http.MethodGet, "/csrf", "", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
