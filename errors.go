package authbridge

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by the reconciliation engine and verifiers.
const (
	ErrCodeInvalidCredential      = "invalid_credential"
	ErrCodeAccountDisabled        = "account_disabled"
	ErrCodeAlreadyRegistered      = "already_registered"
	ErrCodeNotFoundNoRegistration = "not_found_no_registration"
	ErrCodeMissingUsername        = "missing_username"
	ErrCodeInvalidRequest         = "invalid_request"
	ErrCodeNotFound               = "not_found"
	ErrCodeAlreadyLinked          = "already_linked"
	ErrCodeNotLinked              = "not_linked"
	ErrCodeLastMethodProtected    = "last_method_protected"
	ErrCodeProviderUnavailable    = "provider_unavailable"
)

// ErrNotFound is returned by IdentityStore.ByID when no identity has the
// given id. Other lookups report absence as (nil, nil).
var ErrNotFound = errors.New("identity not found")

// AuthError is a typed failure from an authentication or reconciliation
// operation. Field names the offending input field when the error is
// field-specific (e.g. a uniqueness conflict on "email").
type AuthError struct {
	Code    string
	Message string
	Field   string
}

func (e *AuthError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is makes errors.Is match two AuthErrors by code, so callers can compare
// against a bare NewAuthError(code, "", "").
func (e *AuthError) Is(target error) bool {
	var ae *AuthError
	if errors.As(target, &ae) {
		return ae.Code == e.Code
	}
	return false
}

// NewAuthError creates a new AuthError.
func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

// ErrorCode extracts the AuthError code from err, or "" if err is not an
// AuthError.
func ErrorCode(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// HTTPStatus maps an error to the HTTP status the boundary should return.
// Unrecognized errors map to 500; the raw error text must not be surfaced
// for those.
func HTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	switch ErrorCode(err) {
	case ErrCodeInvalidCredential, ErrCodeNotFoundNoRegistration:
		return http.StatusUnauthorized
	case ErrCodeAccountDisabled:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeAlreadyRegistered, ErrCodeMissingUsername, ErrCodeInvalidRequest,
		ErrCodeAlreadyLinked, ErrCodeNotLinked, ErrCodeLastMethodProtected:
		return http.StatusBadRequest
	case ErrCodeProviderUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// ConflictError is reported by stores when a write violates a uniqueness
// constraint. The reconciliation engine translates it to an
// already_registered AuthError; it should never reach a caller raw.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("unique constraint violated on %s", e.Field)
}

// alreadyRegistered builds the field-specific conflict error the engine
// returns for duplicate identifiers.
func alreadyRegistered(field string) *AuthError {
	msg := field + " already registered"
	switch field {
	case "username":
		msg = "username already taken"
	case "firebase_uid":
		msg = "phone already linked to another account"
	case "google_subject":
		msg = "google account already linked to another account"
	}
	return NewAuthError(ErrCodeAlreadyRegistered, msg, field)
}

// translateConflict converts a store ConflictError into the semantic
// AuthError; any other error passes through untouched.
func translateConflict(err error) error {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return alreadyRegistered(ce.Field)
	}
	return err
}
