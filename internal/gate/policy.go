// Package gate decides, before any handler runs, whether a request may
// proceed. Anything not explicitly public or provisioned is denied.
package gate

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/orderdesk/authz/internal/platform/httpx"
	"github.com/orderdesk/authz/internal/rbac"
)

// Outcome is the gate verdict.
type Outcome int

const (
	Allow Outcome = iota
	Redirect
	Deny
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// Decision carries the verdict and how to render it.
type Decision struct {
	Outcome      Outcome
	Status       int
	Location     string
	Code         string
	ClearSession bool
}

// Err returns the sentinel matching a Deny decision.
func (d Decision) Err() error {
	switch d.Code {
	case httpx.CodeUnauthenticated:
		return fmt.Errorf("%w: session required", httpx.ErrUnauthorized)
	case httpx.CodeDenyByDefault:
		return fmt.Errorf("%w: route is not provisioned", httpx.ErrDenyByDefault)
	case httpx.CodeForbidden:
		return fmt.Errorf("%w: role not permitted", httpx.ErrForbidden)
	default:
		return nil
	}
}

// PageGuard restricts a page subtree to roles.
type PageGuard struct {
	Prefix string
	Roles  []rbac.Role
}

// Config configures a Policy.
type Config struct {
	PublicPrefixes  []string
	APIPrefix       string
	LoginPath       string
	SafeDefaultPath string
	Routes          []Route
	PageGuards      []PageGuard
}

// DefaultPublicPrefixes are reachable without a session.
func DefaultPublicPrefixes() []string {
	return []string{"/login", "/api/auth/", "/healthz", "/metrics", "/static/", "/favicon.ico", "/manifest.json", "/sw.js"}
}

// DefaultPageGuards restrict the administration pages.
func DefaultPageGuards() []PageGuard {
	return []PageGuard{
		{Prefix: "/users", Roles: []rbac.Role{rbac.RoleAdmin}},
		{Prefix: "/permissions", Roles: []rbac.Role{rbac.RoleAdmin, rbac.RoleManager}},
	}
}

// DefaultConfig returns the stock gate configuration.
func DefaultConfig() Config {
	return Config{
		PublicPrefixes:  DefaultPublicPrefixes(),
		APIPrefix:       "/api/",
		LoginPath:       "/login",
		SafeDefaultPath: "/",
		Routes:          DefaultRoutes(),
		PageGuards:      DefaultPageGuards(),
	}
}

// Policy is the pure decision function of the gate.
type Policy struct {
	public      []string
	apiPrefix   string
	loginPath   string
	safeDefault string
	allowlist   *Allowlist
	guards      []PageGuard
}

// NewPolicy validates cfg and builds a Policy.
func NewPolicy(cfg Config) (*Policy, error) {
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/"
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.SafeDefaultPath == "" {
		cfg.SafeDefaultPath = "/"
	}
	allowlist, err := NewAllowlist(cfg.Routes)
	if err != nil {
		return nil, err
	}
	for _, g := range cfg.PageGuards {
		if underPrefix(cfg.SafeDefaultPath, g.Prefix) {
			return nil, fmt.Errorf("gate: safe default %q is guarded by %q", cfg.SafeDefaultPath, g.Prefix)
		}
	}
	return &Policy{
		public:      append([]string(nil), cfg.PublicPrefixes...),
		apiPrefix:   cfg.APIPrefix,
		loginPath:   cfg.LoginPath,
		safeDefault: cfg.SafeDefaultPath,
		allowlist:   allowlist,
		guards:      append([]PageGuard(nil), cfg.PageGuards...),
	}, nil
}

// Routes lists the provisioned API routes.
func (p *Policy) Routes() []Route {
	return p.allowlist.Routes()
}

// IsPublic reports whether path skips authentication.
func (p *Policy) IsPublic(path string) bool {
	for _, prefix := range p.public {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// IsAPI reports whether path is served as JSON.
func (p *Policy) IsAPI(path string) bool {
	return strings.HasPrefix(path, p.apiPrefix)
}

// Evaluate decides the request. principal is nil when there is no verified
// credential.
func (p *Policy) Evaluate(path, method string, principal *rbac.Principal) Decision {
	if p.IsPublic(path) {
		return Decision{Outcome: Allow}
	}
	api := p.IsAPI(path)
	if principal == nil {
		if api {
			return Decision{Outcome: Deny, Status: http.StatusUnauthorized, Code: httpx.CodeUnauthenticated}
		}
		return Decision{Outcome: Redirect, Status: http.StatusSeeOther, Location: p.LoginURL(path), Code: httpx.CodeUnauthenticated}
	}
	if api {
		route, ok := p.allowlist.Match(method, path)
		if !ok {
			return Decision{Outcome: Deny, Status: http.StatusForbidden, Code: httpx.CodeDenyByDefault}
		}
		if !principal.HasAnyRole(route.Roles...) {
			return Decision{Outcome: Deny, Status: http.StatusForbidden, Code: httpx.CodeForbidden}
		}
		return Decision{Outcome: Allow}
	}
	for _, g := range p.guards {
		if underPrefix(path, g.Prefix) && !principal.HasAnyRole(g.Roles...) {
			return Decision{Outcome: Redirect, Status: http.StatusSeeOther, Location: p.safeDefault, Code: httpx.CodeForbidden}
		}
	}
	return Decision{Outcome: Allow}
}

// LoginURL builds the login redirect carrying the original path.
func (p *Policy) LoginURL(next string) string {
	if next == "" || next == p.loginPath {
		return p.loginPath
	}
	return p.loginPath + "?next=" + url.QueryEscape(next)
}

func underPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/")
}
