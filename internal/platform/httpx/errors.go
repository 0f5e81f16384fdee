// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrConflict      = errors.New("conflict")
	ErrValidation    = errors.New("validation failed")
	ErrForbidden     = errors.New("forbidden")
	ErrDenyByDefault = errors.New("route not provisioned")
	ErrUnauthorized  = errors.New("unauthorized")
)

// Machine readable codes carried in problem bodies.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeDenyByDefault   = "deny-by-default"
	CodeForbidden       = "forbidden"
	CodeConflict        = "conflict"
	CodeValidation      = "validation"
	CodeNotFound        = "not-found"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", CodeNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", CodeConflict, err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", CodeValidation, err.Error())
	case errors.Is(err, ErrDenyByDefault):
		Problem(w, http.StatusForbidden, "Forbidden", CodeDenyByDefault, err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", CodeForbidden, err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", CodeUnauthenticated, err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "", "")
	}
}

// IsClientError reports whether err maps to a 4xx response.
func IsClientError(err error) bool {
	for _, target := range []error{ErrNotFound, ErrConflict, ErrValidation, ErrDenyByDefault, ErrForbidden, ErrUnauthorized} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
