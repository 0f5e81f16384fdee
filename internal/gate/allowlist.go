package gate

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/orderdesk/authz/internal/rbac"
)

// Route is one provisioned API endpoint. Roles restricts who may call it;
// an empty list admits any authenticated principal.
type Route struct {
	Method  string
	Pattern string
	Roles   []rbac.Role
}

// Allowlist matches requests against provisioned routes using chi's tree, so
// patterns mean exactly what they mean on the router.
type Allowlist struct {
	mux    *chi.Mux
	routes map[string]Route
}

var noop = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

// NewAllowlist builds an allowlist. Duplicate method and pattern pairs are
// rejected.
func NewAllowlist(routes []Route) (*Allowlist, error) {
	a := &Allowlist{mux: chi.NewMux(), routes: make(map[string]Route, len(routes))}
	for _, rt := range routes {
		rt.Method = strings.ToUpper(strings.TrimSpace(rt.Method))
		if rt.Method == "" || !strings.HasPrefix(rt.Pattern, "/") {
			return nil, fmt.Errorf("gate: invalid route %q %q", rt.Method, rt.Pattern)
		}
		key := routeKey(rt.Method, rt.Pattern)
		if _, dup := a.routes[key]; dup {
			return nil, fmt.Errorf("gate: duplicate route %s", key)
		}
		a.routes[key] = rt
		a.mux.Method(rt.Method, rt.Pattern, noop)
	}
	return a, nil
}

// Match returns the provisioned route for method and path.
func (a *Allowlist) Match(method, path string) (Route, bool) {
	if a == nil {
		return Route{}, false
	}
	rctx := chi.NewRouteContext()
	if !a.mux.Match(rctx, method, path) {
		return Route{}, false
	}
	rt, ok := a.routes[routeKey(method, rctx.RoutePattern())]
	return rt, ok
}

// Routes lists provisioned routes.
func (a *Allowlist) Routes() []Route {
	if a == nil {
		return nil
	}
	out := make([]Route, 0, len(a.routes))
	for _, rt := range a.routes {
		out = append(out, rt)
	}
	return out
}

func routeKey(method, pattern string) string {
	return method + " " + pattern
}

var reviewers = []rbac.Role{rbac.RoleAdmin, rbac.RoleManager}

// DefaultRoutes is the provisioned API surface.
func DefaultRoutes() []Route {
	return []Route{
		{Method: http.MethodGet, Pattern: "/api/csrf"},
		{Method: http.MethodGet, Pattern: "/api/permissions/me"},
		{Method: http.MethodGet, Pattern: "/api/permissions/menus"},
		{Method: http.MethodGet, Pattern: "/api/permissions/users/{id}", Roles: reviewers},
		{Method: http.MethodPut, Pattern: "/api/permissions/users/{id}", Roles: reviewers},
		{Method: http.MethodGet, Pattern: "/api/permissions/approvals", Roles: reviewers},
		{Method: http.MethodGet, Pattern: "/api/permissions/approvals/{id}", Roles: reviewers},
		{Method: http.MethodPost, Pattern: "/api/permissions/approvals/{id}/approve", Roles: reviewers},
		{Method: http.MethodPost, Pattern: "/api/permissions/approvals/{id}/reject", Roles: reviewers},
		{Method: http.MethodGet, Pattern: "/api/permissions/audits", Roles: []rbac.Role{rbac.RoleAdmin}},
	}
}
