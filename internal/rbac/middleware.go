package rbac

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/orderdesk/authz/internal/platform/httpx"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Loader *Loader
	Logger *slog.Logger
}

// Load attaches an Evaluator for the current principal. Requests without a
// principal pass through untouched; the gate has already decided they may.
func (m Middleware) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		ev, err := m.Loader.Evaluator(r.Context(), principal)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("rbac load evaluator", slog.String("principal", principal.ID), slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithEvaluator(r.Context(), ev)))
	})
}

// RequireAny ensures the current principal passes at least one check.
func (m Middleware) RequireAny(checks ...PermissionCheck) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(checks) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			if EvaluatorFromContext(r.Context()).CanAny(checks) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.RespondError(w, fmt.Errorf("%w: missing permission %s", httpx.ErrForbidden, describe(checks)))
		})
	}
}

func describe(checks []PermissionCheck) string {
	out := ""
	for i, c := range checks {
		if i > 0 {
			out += " or "
		}
		out += c.ResourceKey + ":" + string(c.Action)
	}
	return out
}
