package domain

import (
	"errors"
	"fmt"
)

// Application error codes.
//
// Propagation policy: only EINVALID is fatal to the submitting caller. Every
// other code is contained at the stage that produced it and the pipeline
// continues with degraded data.
const (
	EINVALID     = "invalid"     // Missing or malformed submission fields
	EDECODE      = "decode"      // Malformed image input; degrades evidence only
	EUPLOAD      = "upload"      // Object store unavailable; degrades evidence only
	EUNAVAILABLE = "unavailable" // Document store unavailable; triggers local fallback
	ENOTIFY      = "notify"      // Both mail transports failed
	ENOTFOUND    = "not_found"   // Referenced record or client absent
	EINTERNAL    = "internal"    // Unexpected failure
)

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "serve.create")
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code, op, message string) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// ErrorCode returns the code of the root error, or EINTERNAL if none.
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

// ErrorMessage returns the human-readable message of the error.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Code == EINTERNAL {
			return "An internal error occurred. Please try again later."
		}
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// Convenience constructors for common error types

// Invalid creates a validation error.
func Invalid(op, message string) *Error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// NotFound creates a not found error.
func NotFound(op, resource, id string) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s with ID %q not found", resource, id),
	}
}

// Decode creates a media decode error, wrapping the underlying cause.
func Decode(err error, op, message string) *Error {
	return &Error{
		Code:    EDECODE,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// Upload creates an evidence upload error, wrapping the underlying cause.
func Upload(err error, op, message string) *Error {
	return &Error{
		Code:    EUPLOAD,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// Unavailable creates a persistence error, wrapping the underlying cause.
func Unavailable(err error, op, message string) *Error {
	return &Error{
		Code:    EUNAVAILABLE,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// Notify creates a notification error, wrapping the underlying cause.
func Notify(err error, op, message string) *Error {
	return &Error{
		Code:    ENOTIFY,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}
