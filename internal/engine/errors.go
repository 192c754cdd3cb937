package engine

import (
	"errors"
	"fmt"
)

// Runtime failures a caller can act on. Blocked assignment is NOT an error:
// it is a first-class instance state surfaced to administrators.
var (
	// ErrConflict means the caller lost a race for an instance, or the
	// instance was no longer in the expected state. Safe to retry.
	ErrConflict = errors.New("instance state conflict")

	// ErrLimitExceeded means the person's daily claim limit is spent.
	ErrLimitExceeded = errors.New("daily claim limit reached")

	// ErrWindowExpired means an undo or unskip came too late. Terminal.
	ErrWindowExpired = errors.New("window expired")

	// ErrNotFound means the referenced instance, template, completion, or
	// person does not exist.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports bad template configuration. Raised at save time
// only; rules that pass validation never fail at evaluation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func validationErr(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
