package shared

import (
	"fmt"
	"strings"
)

// ErrPrecondition is the sentinel matched by every PreconditionError.
var ErrPrecondition = NewDomainError("PRECONDITION_FAILED", "Required data is missing")

// PreconditionError reports required fields that were absent when an
// operation started. Nothing has been written when it is returned.
type PreconditionError struct {
	Operation string
	Fields    []string
}

// NewPreconditionError creates a precondition error for the given fields
func NewPreconditionError(operation string, fields ...string) *PreconditionError {
	return &PreconditionError{Operation: operation, Fields: fields}
}

func (e *PreconditionError) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("%s: missing required fields: %s", e.Operation, strings.Join(e.Fields, ", "))
}

// Is reports whether target is ErrPrecondition
func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}
