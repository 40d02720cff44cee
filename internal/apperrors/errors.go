// Package apperrors defines the error kinds shared by the catalog, membership
// and lending services, and their mapping to HTTP status codes.
//
// Services wrap one of the sentinels with context:
//
//	return fmt.Errorf("%w: book %d has no available copies", apperrors.ErrUnavailable, id)
//
// Callers match with errors.Is or the Is* helpers.
package apperrors

import (
	"errors"
	"net/http"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrUnavailable         = errors.New("unavailable")
	ErrInvalidState        = errors.New("invalid state")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

func IsValidation(err error) bool          { return errors.Is(err, ErrValidation) }
func IsConflict(err error) bool            { return errors.Is(err, ErrConflict) }
func IsNotFound(err error) bool            { return errors.Is(err, ErrNotFound) }
func IsUnavailable(err error) bool         { return errors.Is(err, ErrUnavailable) }
func IsInvalidState(err error) bool        { return errors.Is(err, ErrInvalidState) }
func IsInvalidCredentials(err error) bool  { return errors.Is(err, ErrInvalidCredentials) }
func IsConcurrencyConflict(err error) bool { return errors.Is(err, ErrConcurrencyConflict) }

// IsClassified reports whether err already carries one of the sentinels.
func IsClassified(err error) bool {
	for _, kind := range []error{
		ErrValidation, ErrConflict, ErrNotFound, ErrUnavailable,
		ErrInvalidState, ErrInvalidCredentials, ErrConcurrencyConflict,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// HTTPStatus returns the response status for err. Errors outside the
// taxonomy map to 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusBadRequest
	case IsInvalidCredentials(err):
		return http.StatusUnauthorized
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err), IsUnavailable(err), IsInvalidState(err):
		return http.StatusConflict
	case IsConcurrencyConflict(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns a short machine-readable identifier for err, used as the
// "code" field of JSON error bodies.
func Code(err error) string {
	switch {
	case IsValidation(err):
		return "validation_error"
	case IsInvalidCredentials(err):
		return "invalid_credentials"
	case IsNotFound(err):
		return "not_found"
	case IsConflict(err):
		return "conflict"
	case IsUnavailable(err):
		return "unavailable"
	case IsInvalidState(err):
		return "invalid_state"
	case IsConcurrencyConflict(err):
		return "busy"
	default:
		return "internal_error"
	}
}
