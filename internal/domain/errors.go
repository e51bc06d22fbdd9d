package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used across all layers.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrIntegrity  = errors.New("integrity error")
	ErrDecode     = errors.New("decode error")
)

// ConflictError is returned by a conditional document write whose expected
// revision no longer matches the one held by the content store.
type ConflictError struct {
	Language string
	Expected Revision
	Reason   string
}

func (e *ConflictError) Error() string {
	expected := string(e.Expected)
	if expected == "" {
		expected = "<none>"
	}
	if e.Reason != "" {
		return fmt.Sprintf("conflict: document %s at revision %s: %s", e.Language, expected, e.Reason)
	}
	return fmt.Sprintf("conflict: document %s at revision %s is stale", e.Language, expected)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// IntegrityError describes assembled gloss data that does not fit the
// structural verse/word layout of its book.
type IntegrityError struct {
	BookID   int
	WordID   string
	PhraseID int64
	Message  string
}

func (e *IntegrityError) Error() string {
	if e.PhraseID != 0 {
		return fmt.Sprintf("integrity: book %d word %s phrase %d: %s", e.BookID, e.WordID, e.PhraseID, e.Message)
	}
	return fmt.Sprintf("integrity: book %d word %s: %s", e.BookID, e.WordID, e.Message)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// FieldError describes a validation error for a specific field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError contains a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation: %d errors", len(e.Errors))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Errors: []FieldError{{Field: field, Message: message}},
	}
}
