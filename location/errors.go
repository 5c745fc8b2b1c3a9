package location

import "fmt"

// ValidationError is a descriptive, recoverable domain error: the caller
// is expected to re-prompt with a corrected value. It is always detected
// before any store mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ImmutabilityViolation names a protected physical-identity field that a
// replace attempted to change while the location is in active use. Past
// invoices reference the address as it was, so these fields are frozen.
type ImmutabilityViolation struct {
	Field string
}

func (e *ImmutabilityViolation) Error() string {
	return fmt.Sprintf("%s may not be changed on a location in active use", e.Field)
}

// ConflictError reports an ineligible package in a caller-supplied move
// list. The whole move aborts atomically.
type ConflictError struct {
	Pkgnum int64
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("package %d cannot be moved: %s", e.Pkgnum, e.Reason)
}
