package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation failures.
var (
	ErrQueryTooShort    = errors.New("query too short")
	ErrQueryTooLong     = errors.New("query too long")
	ErrQueryInjection   = errors.New("query contains suspicious content")
	ErrQueryBlocked     = errors.New("query contains disallowed content")
	ErrCulturalMismatch = errors.New("culturally unavailable dish-cuisine combination")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// IsSafetyRejection reports whether err is a content-safety failure, i.e. one
// that must surface to the caller as a 4xx rather than enter the fallback path.
func IsSafetyRejection(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
