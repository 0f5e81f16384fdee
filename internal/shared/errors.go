package shared

import "errors"

var (
	// ErrSessionNotFound indicates the credential has no stored session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionCorrupt indicates the stored claims could not be decoded.
	ErrSessionCorrupt = errors.New("session payload corrupt")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
