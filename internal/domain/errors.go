package domain

import "strings"

// ValidationError carries every rule failure found for a requested operation.
// Callers collect all failures before returning so a client can fix the whole
// batch in one round trip.
type ValidationError struct {
	Op     string
	Errors []string
}

func (e *ValidationError) Error() string {
	return e.Op + ": " + strings.Join(e.Errors, "; ")
}

// NewValidationError returns nil when errs is empty.
func NewValidationError(op string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Op: op, Errors: errs}
}
