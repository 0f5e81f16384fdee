package gate

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/orderdesk/authz/internal/audit"
	"github.com/orderdesk/authz/internal/auth"
	"github.com/orderdesk/authz/internal/platform/httpx"
	"github.com/orderdesk/authz/internal/rbac"
	"github.com/orderdesk/authz/internal/shared"
)

// anonymousActor labels audit rows for requests without a verified principal.
const anonymousActor = "anonymous"

// Cookies reads and clears the session cookie.
type Cookies interface {
	Token(r *http.Request) (string, bool)
	ClearCookie(w http.ResponseWriter)
}

// Observer counts gate verdicts.
type Observer interface {
	ObserveGateDecision(outcome, code string)
}

// Middleware enforces a Policy on every request.
type Middleware struct {
	Policy   *Policy
	Verifier auth.Verifier
	Cookies  Cookies
	CSRF     *shared.CSRFManager
	Audit    audit.Appender
	Observer Observer
	Logger   *slog.Logger
	Now      func() time.Time
}

// Handler wraps next with the gate.
func (m Middleware) Handler(next http.Handler) http.Handler {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var (
			principal *rbac.Principal
			session   *shared.Session
			invalid   bool
		)
		if token, ok := m.Cookies.Token(r); ok {
			p, sess, err := m.Verifier.Verify(ctx, token)
			switch {
			case err == nil:
				principal, session = &p, sess
			case errors.Is(err, httpx.ErrUnauthorized):
				invalid = true
				logger.Debug("credential rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
			default:
				logger.Error("verify credential", slog.String("path", r.URL.Path), slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}
		}

		d := m.Policy.Evaluate(r.URL.Path, r.Method, principal)
		if invalid {
			d.ClearSession = true
		}
		if d.ClearSession {
			m.Cookies.ClearCookie(w)
		}

		if d.Outcome == Allow && principal != nil && isMutating(r.Method) && !m.Policy.IsPublic(r.URL.Path) {
			if err := m.checkCSRF(r, session); err != nil {
				d = Decision{Outcome: Deny, Status: http.StatusForbidden, Code: httpx.CodeForbidden}
				m.deny(r, principal, d, logger, "csrf")
				httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrForbidden, err))
				return
			}
		}

		switch d.Outcome {
		case Allow:
			m.observe(d)
			if principal != nil {
				ctx = rbac.ContextWithPrincipal(ctx, *principal)
				ctx = shared.ContextWithSession(ctx, session)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		case Redirect:
			m.deny(r, principal, d, logger, "")
			http.Redirect(w, r, d.Location, d.Status)
		default:
			m.deny(r, principal, d, logger, "")
			httpx.RespondError(w, d.Err())
		}
	})
}

func (m Middleware) checkCSRF(r *http.Request, session *shared.Session) error {
	if m.CSRF == nil {
		return nil
	}
	if session == nil {
		return shared.ErrCSRFTokenMissing
	}
	return m.CSRF.VerifyToken(session.ID, r.Header.Get(shared.CSRFHeader))
}

func (m Middleware) deny(r *http.Request, principal *rbac.Principal, d Decision, logger *slog.Logger, reason string) {
	m.observe(d)
	actor := anonymousActor
	if principal != nil {
		actor = principal.ID
	}
	meta := map[string]any{
		"code":   d.Code,
		"status": d.Status,
	}
	if reason != "" {
		meta["reason"] = reason
	}
	if d.Location != "" {
		meta["location"] = d.Location
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	if m.Audit == nil {
		return
	}
	rec := audit.Record{
		ActorID:     actor,
		Action:      audit.ActionRouteAccess,
		ResourceKey: r.Method + " " + r.URL.Path,
		Outcome:     audit.OutcomeDenied,
		Meta:        meta,
		At:          now().UTC(),
	}
	if err := m.Audit.AppendAudit(r.Context(), rec); err != nil {
		logger.Error("append gate audit", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
}

func (m Middleware) observe(d Decision) {
	if m.Observer != nil {
		m.Observer.ObserveGateDecision(d.Outcome.String(), d.Code)
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}
