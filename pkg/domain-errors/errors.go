// Package domainerrors defines the coded error type shared by services and
// transports. Stores return sentinel errors (pkg/platform/sentinel); services
// translate them into coded errors so callers can branch on a stable Code
// instead of matching strings.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code is a stable, machine-readable error classification.
type Code string

const (
	// Generic request/validation codes.
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvariantViolation Code = "invariant_violation"
	CodeUnauthenticated    Code = "unauthenticated"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"

	// Registry taxonomy.
	CodeInvalidFingerprint   Code = "invalid_fingerprint_format"
	CodeInvalidOwner         Code = "invalid_owner"
	CodeDuplicateFingerprint Code = "duplicate_fingerprint"
	CodeNotFound             Code = "not_found"
	CodeAlreadyRevoked       Code = "already_revoked"
	CodeInactiveRecord       Code = "inactive_record"
	CodeUnauthorized         Code = "unauthorized"
	CodeContention           Code = "contention"
	CodeStorageUnavailable   Code = "storage_unavailable"
)

// Error is a coded error. Err optionally carries the underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same code. A target with a message must
// also match the message, so require.ErrorIs(err, New(code, msg)) is precise.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// New creates a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost coded error in the chain has code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// Retryable reports whether the caller may retry the same request unchanged.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeContention, CodeStorageUnavailable, CodeTimeout:
		return true
	default:
		return false
	}
}

// ToHTTPStatus maps a code to the HTTP status used by the transport layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation, CodeInvalidFingerprint, CodeInvalidOwner:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicateFingerprint, CodeAlreadyRevoked, CodeInactiveRecord, CodeConflict:
		return http.StatusConflict
	case CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case CodeContention:
		return http.StatusTooManyRequests
	case CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
