package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")
)

// ValidationError describes a single invalid field in a submission. It wraps
// one of the domain sentinel errors so callers can classify it with
// errors.Is.
type ValidationError struct {
	// Field is the name of the invalid field.
	Field string
	// Message describes what is wrong with the field.
	Message string
	// Err is the underlying sentinel error.
	Err error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Unwrap returns the wrapped sentinel to support errors.Is.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

// IsValidationError reports whether err is a submission validation failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrEmptyTaskID) ||
		errors.Is(err, ErrEmptyRequesterID) ||
		errors.Is(err, ErrEmptyAccountList) ||
		errors.Is(err, ErrBlankAccountID) ||
		errors.Is(err, ErrInvalidTaskStatus) ||
		errors.Is(err, ErrInvalidTaskKind) ||
		errors.Is(err, ErrCursorOutOfBounds)
}
