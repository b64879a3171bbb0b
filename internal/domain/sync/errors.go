package sync

import (
	"errors"
	"strings"
)

var (
	ErrBatchTooLarge     = errors.New("sync batch too large")
	ErrOperationNotFound = errors.New("sync operation not found")
	ErrNotInConflict     = errors.New("sync operation is not in conflict")
	ErrNotRetryable      = errors.New("sync operation is not eligible for retry")
	ErrMergeUnavailable  = errors.New("merge data unavailable")
	ErrInvalidResolution = errors.New("invalid conflict resolution")

	// ErrSequenceTaken reports that another writer already holds the
	// operation's batch sequence number.
	ErrSequenceTaken = errors.New("batch sequence number already taken")

	// ErrPermanent marks a persistence failure that retrying cannot fix.
	ErrPermanent = errors.New("permanent sync failure")

	// errHeadMoved aborts a transaction whose entity head changed underneath it.
	errHeadMoved = errors.New("entity head moved")
	// errStaleTransition aborts a transaction whose operation left the expected status.
	errStaleTransition = errors.New("operation status changed")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, field := range e.Fields {
		parts = append(parts, field.Field+": "+field.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) empty() bool {
	return len(e.Fields) == 0
}

// IsRetryable classifies an error raised while processing an operation.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return false
	}
	return !errors.Is(err, ErrPermanent)
}
