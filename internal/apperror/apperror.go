package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnavailable  = errors.New("backend unavailable")
	ErrCreateFailed = errors.New("create failed in all backends")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict marks a unique-key clash (duplicate username/email).
// Surfaced to the caller, never retried.
func Conflict(resource, key string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s already exists: %s", resource, key),
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unavailable marks a backend as unreachable. The read resolver and the
// dual-write coordinator treat this as non-fatal: it triggers fallback to
// the other backend rather than failing the logical operation.
func Unavailable(backend string, cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrUnavailable, cause),
		Message: fmt.Sprintf("%s backend unavailable", backend),
	}
}

// CreateFailed is returned only when BOTH backends rejected a creation.
// It joins the two causes so errors.Is still finds either one.
func CreateFailed(primaryErr, secondaryErr error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrCreateFailed, errors.Join(primaryErr, secondaryErr)),
		Message: fmt.Sprintf("user creation failed in both backends: primary: %v; secondary: %v", primaryErr, secondaryErr),
	}
}
