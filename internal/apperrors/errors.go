// Package apperrors defines the coded error taxonomy shared by the service
// and transport layers.
package apperrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for transport mapping and retry decisions.
type Code string

const (
	ErrCodeNotFound          Code = "not_found"
	ErrCodeForbidden         Code = "forbidden"
	ErrCodeInvalidTransition Code = "invalid_transition"
	ErrCodeConflict          Code = "conflict"
	ErrCodeInvalidInput      Code = "invalid_input"
	ErrCodeInternal          Code = "internal"
)

// Error is a coded error, optionally wrapping a cause.
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

// Is treats two coded errors with the same code as equivalent.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return New(ErrCodeNotFound, fmt.Sprintf("%s %q not found", resource, id))
}

// Forbidden reports an authorization failure.
func Forbidden(message string) *Error {
	return New(ErrCodeForbidden, message)
}

// InvalidTransition reports a decision that the submission's current state
// does not admit.
func InvalidTransition(message string) *Error {
	return New(ErrCodeInvalidTransition, message)
}

// Conflict reports an optimistic-concurrency loss or a guarded mutation
// refused because of in-flight state. Safe to retry from a fresh read.
func Conflict(message string) *Error {
	return New(ErrCodeConflict, message)
}

// InvalidInput reports a malformed field in the request.
func InvalidInput(field, message string) *Error {
	return New(ErrCodeInvalidInput, fmt.Sprintf("%s: %s", field, message))
}

// CodeOf extracts the code from err, or ErrCodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
