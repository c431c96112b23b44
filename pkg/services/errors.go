package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a session does not exist
	ErrNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when a session is past its expiry
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionNotPending is returned when a status transition loses the
	// compare-and-set race or the session already left PENDING
	ErrSessionNotPending = errors.New("session is not pending")

	// ErrUserMismatch is returned when a confirm call names a session that
	// belongs to a different user
	ErrUserMismatch = errors.New("session belongs to a different user")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
