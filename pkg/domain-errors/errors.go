// Package domainerrors defines coded errors shared across bounded contexts.
// Services attach a Code to every failure they surface; only the HTTP boundary
// (pkg/platform/httputil) translates codes into transport statuses.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for boundary translation.
type Code string

const (
	CodeInvalidInput Code = "invalid_input"
	CodeBadRequest   Code = "bad_request"
	CodeNotFound     Code = "not_found"
	CodeUnauthorized Code = "unauthorized"
	CodeConflict     Code = "conflict"
	CodeTimeout      Code = "timeout"
	CodeInternal     Code = "internal_error"

	// OTP protocol rejection codes. Each maps to one enumerated transition of
	// the passcode state machine; the wire message never carries more detail
	// than the code itself.
	CodeNoActiveOTP     Code = "no_active_otp"
	CodeNotActive       Code = "not_active"
	CodeExpired         Code = "expired"
	CodeTooManyAttempts Code = "too_many_attempts"
	CodeInvalidCode     Code = "invalid_code"
	CodeDeliveryFailed  Code = "delivery_failed"
	CodeRateLimited     Code = "rate_limited"
)

// Error is a coded domain error. The message is safe to log; whether it is
// safe for the wire is the boundary layer's call, keyed off the Code.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause chain for errors.Is/errors.As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			return false
		}
	}
	return false
}

// CodeOf returns the outermost code on err, or CodeInternal when err is not
// a domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Is delegates to errors.Is; kept so call sites can stay on one import.
func Is(err, target error) bool { return errors.Is(err, target) }
