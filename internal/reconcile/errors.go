package reconcile

import (
	"errors"
	"fmt"
)

// NotAListError is returned when the reconciled value is not a list.
type NotAListError struct {
	Kind string
}

func (e *NotAListError) Error() string {
	return fmt.Sprintf("reconcile: expected list, got %s", e.Kind)
}

// MissingKeyError is returned when a keyed item lacks the key field.
type MissingKeyError struct {
	Index int
	Field string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("reconcile: item %d has no key field %q", e.Index, e.Field)
}

// IsNotAList reports whether err wraps a *NotAListError.
func IsNotAList(err error) bool {
	var ne *NotAListError
	return errors.As(err, &ne)
}

// IsMissingKey reports whether err wraps a *MissingKeyError.
func IsMissingKey(err error) bool {
	var me *MissingKeyError
	return errors.As(err, &me)
}
