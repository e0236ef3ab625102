package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrNotParticipant = errors.New("not a chat participant")
	ErrBlocked        = errors.New("sender is blocked in this chat")
	ErrNotOwner       = errors.New("not the message owner")
	ErrForbidden      = errors.New("forbidden")
	ErrUsernameTaken  = errors.New("username already taken")
	ErrEmailInUse     = errors.New("email already in use")
	ErrWeakPassword   = errors.New("password too weak")
	ErrConflict       = errors.New("conflicting concurrent update")
	ErrRetryable      = errors.New("storage temporarily unavailable")
	ErrValidation     = errors.New("validation failed")
)

// ValidationError describes a malformed or oversized input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
