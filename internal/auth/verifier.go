// Package auth verifies session credentials and turns their claims into
// principals. Issuing credentials belongs to the identity provider.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orderdesk/authz/internal/platform/httpx"
	"github.com/orderdesk/authz/internal/rbac"
	"github.com/orderdesk/authz/internal/shared"
)

// Verification failures. All of them wrap httpx.ErrUnauthorized.
var (
	ErrMalformedToken = fmt.Errorf("%w: malformed credential", httpx.ErrUnauthorized)
	ErrInvalidToken   = fmt.Errorf("%w: invalid credential", httpx.ErrUnauthorized)
	ErrExpiredToken   = fmt.Errorf("%w: expired credential", httpx.ErrUnauthorized)
)

// Verifier validates an opaque credential and extracts the identity claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (rbac.Principal, *shared.Session, error)
}

// SessionStore is the subset of shared.SessionManager the verifier needs.
type SessionStore interface {
	Lookup(ctx context.Context, id string) (*shared.Session, error)
}

// SessionVerifier checks credentials against the Redis session store on every
// request; nothing about the principal is cached between requests.
type SessionVerifier struct {
	store SessionStore
	now   func() time.Time
}

// NewSessionVerifier constructs a SessionVerifier.
func NewSessionVerifier(store SessionStore) *SessionVerifier {
	return &SessionVerifier{store: store, now: time.Now}
}

// Verify implements Verifier.
func (v *SessionVerifier) Verify(ctx context.Context, token string) (rbac.Principal, *shared.Session, error) {
	if _, err := uuid.Parse(token); err != nil {
		return rbac.Principal{}, nil, ErrMalformedToken
	}
	sess, err := v.store.Lookup(ctx, token)
	if err != nil {
		if errors.Is(err, shared.ErrSessionNotFound) || errors.Is(err, shared.ErrSessionCorrupt) {
			return rbac.Principal{}, nil, ErrInvalidToken
		}
		return rbac.Principal{}, nil, fmt.Errorf("auth: lookup session: %w", err)
	}
	if sess.Expired(v.now()) {
		return rbac.Principal{}, nil, ErrExpiredToken
	}
	if sess.UserID == "" {
		return rbac.Principal{}, nil, ErrInvalidToken
	}
	role, err := rbac.ParseRole(sess.Role)
	if err != nil {
		return rbac.Principal{}, nil, ErrInvalidToken
	}
	return rbac.Principal{ID: sess.UserID, Role: role}, sess, nil
}

var _ Verifier = (*SessionVerifier)(nil)
