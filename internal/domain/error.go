package domain

import (
	"errors"
	"fmt"
)

// Application error codes.
// These map to HTTP status codes in handler.ErrorResponse.
const (
	EINVALID      = "invalid"            // 400 - Bad input or untrusted payload
	EUNAUTHORIZED = "unauthorized"       // 401
	ENOTFOUND     = "not_found"          // 404
	EMETHOD       = "method_not_allowed" // 405
	ECONFLICT     = "conflict"           // 409 - Resource in the wrong state for the request
	ETOOLARGE     = "too_large"          // 413
	EINTERNAL     = "internal"           // 500 - Internal error (hide details)
	EINTEGRITY    = "integrity"          // 500 - Broken uniqueness invariant in storage
	EUNAVAILABLE  = "unavailable"        // 503 - Upstream provider not reachable
)

// Error represents an application error with a code and message.
type Error struct {
	// Code is a machine-readable error code (e.g., EINVALID, ENOTFOUND).
	Code string

	// Message is a human-readable error message safe to return to callers.
	Message string

	// Op is the operation where the error occurred (e.g., "subscription.activate").
	Op string

	// Err is the underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Op != "" {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode extracts the error code from an error.
// Returns EINTERNAL for non-domain errors and "" for nil.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return EINTERNAL
}

// ErrorMessage extracts a caller-facing message from an error.
// Internal and integrity errors never expose their details.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		if e.Code == EINTERNAL || e.Code == EINTEGRITY {
			return "An internal error occurred."
		}
		return e.Message
	}

	return "An internal error occurred."
}

// ErrorOp extracts the operation from an error (for logging).
func ErrorOp(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// Errorf creates a new domain error with formatted message.
// Example: domain.Errorf(domain.EINVALID, "checkout.create", "unknown price: %s", id)
func Errorf(code, op, format string, args ...interface{}) error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError wraps an existing error with a domain error code and operation.
// Returns nil if err is nil.
func WrapError(err error, code, op, message string) error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// IsCode returns true if err has the given error code.
func IsCode(err error, code string) bool {
	return ErrorCode(err) == code
}

// NotFound creates a not found error for a resource.
// Example: domain.NotFound("subscription.get", "tenant", tenantID.String())
func NotFound(op, resource, identifier string) error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s not found: %s", resource, identifier),
	}
}

// Invalid creates a validation error.
func Invalid(op, message string) error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// Internal wraps err as an internal error.
func Internal(err error, op, message string) error {
	return WrapError(err, EINTERNAL, op, message)
}
