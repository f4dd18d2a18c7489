package services

import (
	"errors"

	"github.com/calmspace/apiserver/internal/validation"
)

// Sentinel error kinds. Handlers map them to HTTP status codes with errors.Is;
// the typed errors below wrap them and carry the client-facing message.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrTooManyAttempts = errors.New("too many failed login attempts, please try again later")
)

// ValidationError reports rejected input. Nothing is persisted when it is
// returned.
type ValidationError struct {
	Message string
	Details []validation.FieldError
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(details ...validation.FieldError) *ValidationError {
	return &ValidationError{Message: "Validation failed", Details: details}
}

func invalidField(field, message string) *ValidationError {
	return invalid(validation.FieldError{Field: field, Message: message})
}

// AuthError is an authentication failure with a message safe to show.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }
func (e *AuthError) Unwrap() error { return ErrUnauthorized }

// ConflictError reports a uniqueness clash.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }
func (e *ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError reports a missing resource, or one owned by another user.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }
func (e *NotFoundError) Unwrap() error { return ErrNotFound }
