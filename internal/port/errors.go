package port

import (
	"errors"
	"fmt"
)

// Sentinel errors used across ports.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrValidation    = errors.New("validation failed")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenInvalid  = errors.New("token invalid")
	ErrNoAccessToken = errors.New("no access token in provider response")

	ErrUserNotFound        = fmt.Errorf("user %w", ErrNotFound)
	ErrIntegrationNotFound = fmt.Errorf("repository integration %w", ErrNotFound)
	ErrEmailTaken          = fmt.Errorf("email already registered: %w", ErrConflict)
	ErrInvalidCredentials  = fmt.Errorf("invalid credentials: %w", ErrUnauthorized)
	ErrUnknownProvider     = fmt.Errorf("unknown auth provider: %w", ErrNotFound)
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
