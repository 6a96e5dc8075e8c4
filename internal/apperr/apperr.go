// Package apperr defines the error taxonomy shared across stores and handlers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means a referenced tenant or project does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation means required identity fields are missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrConflict means a uniqueness constraint (tenant email, subdomain) would be violated.
	ErrConflict = errors.New("conflict")
	// ErrUpstream means an external service (storage, LLM, billing) failed.
	ErrUpstream = errors.New("upstream service error")
)

// NotFound wraps ErrNotFound with context.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Validation wraps ErrValidation with context.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Conflict wraps ErrConflict with context.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Upstream wraps an external failure so callers can classify it with errors.Is.
func Upstream(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUpstream, op, err)
}
