// Package apperr defines the error kinds shared by services, repositories and
// the HTTP layer. Callers classify with errors.Is against the sentinels.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
)

// AppError carries a client-safe message alongside its kind and an optional cause.
type AppError struct {
	Kind    error
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, msg string) *AppError {
	return &AppError{Kind: kind, Message: msg}
}

func Validation(msg string) *AppError   { return newError(ErrValidation, msg) }
func NotFound(msg string) *AppError     { return newError(ErrNotFound, msg) }
func Forbidden(msg string) *AppError    { return newError(ErrForbidden, msg) }
func Unauthorized(msg string) *AppError { return newError(ErrUnauthorized, msg) }
func Conflict(msg string) *AppError     { return newError(ErrConflict, msg) }

// Internal wraps an unexpected failure. The message is never shown to clients.
func Internal(msg string, cause error) *AppError {
	return &AppError{Kind: ErrInternal, Message: msg, Err: cause}
}

// Validationf is Validation with formatting.
func Validationf(format string, args ...any) *AppError {
	return Validation(fmt.Sprintf(format, args...))
}

// Message returns the client-facing message for err, or "" when err is not an AppError.
func Message(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return ""
}
