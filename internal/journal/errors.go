package journal

import (
	"errors"
	"fmt"
)

// DivergenceError reports a replayed dispatch that did not reproduce the
// journaled result.
type DivergenceError struct {
	Seq    int64
	Action string
	Field  string
	Want   string
	Got    string
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("replay diverged at seq %d (%s): %s = %s, journal has %s",
		e.Seq, e.Action, e.Field, e.Got, e.Want)
}

// IsDivergence reports whether err is a *DivergenceError.
func IsDivergence(err error) bool {
	var e *DivergenceError
	return errors.As(err, &e)
}

// MismatchError reports a journal written for a different definition.
type MismatchError struct {
	Key  string
	Want string
	Got  string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("journal %s is %q, definition has %q", e.Key, e.Want, e.Got)
}

// IsMismatch reports whether err is a *MismatchError.
func IsMismatch(err error) bool {
	var e *MismatchError
	return errors.As(err, &e)
}
