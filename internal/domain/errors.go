package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrConflict         = errors.New("already exists")
	ErrBackpressureDrop = errors.New("outbound queue overflow: oldest event dropped")
	ErrConnectionClosed = errors.New("connection closed")
)

// FieldError names one rejected input field.
type FieldError struct {
	Field  string
	Reason string
}

// ValidationError reports malformed input. It is returned before any state
// is mutated and is never retried automatically.
type ValidationError struct {
	Fields []FieldError
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Reason: reason}}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Reason))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// TransportError is a failure writing to or reading from one consumer
// connection. It is isolated to that connection.
type TransportError struct {
	ConnID string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport conn=%s: %v", e.ConnID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
