// Package common defines shared constants and sentinel errors used across
// repositories, services and transports. Callers should use errors.Is to
// match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal   = errors.New("internal error")
	ErrorValidation = errors.New("validation error")

	// Account lifecycle errors.
	ErrEmailTaken            = errors.New("email already registered")
	ErrUsernameTaken         = errors.New("username already taken")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrInvalidCredentials    = errors.New("invalid credentials")

	// Session token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Unique fields reported by UniqueViolationError.
const (
	FieldEmail    = "email"
	FieldUsername = "username"
)

// UniqueViolationError is returned by account stores when an insert hits a
// unique constraint. Field is empty when the constraint could not be tied to
// a known column.
type UniqueViolationError struct {
	Field      string
	Constraint string
	Err        error
}

func (e *UniqueViolationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("unique violation on %q: %v", e.Constraint, e.Err)
	}
	return fmt.Sprintf("unique violation on %s (%s): %v", e.Field, e.Constraint, e.Err)
}

func (e *UniqueViolationError) Unwrap() error { return e.Err }
