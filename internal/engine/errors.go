package engine

import (
	"errors"
	"fmt"
)

// ErrAlreadyInitialized is returned by Store.Init on its second call.
var ErrAlreadyInitialized = errors.New("store already initialized")

// ErrLoopClosed is returned by Loop.Enqueue after the loop has stopped.
var ErrLoopClosed = errors.New("dispatch loop closed")

// UnknownActionError is returned when no handler is registered for an
// action. The state is not touched.
type UnknownActionError struct {
	Action string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.Action)
}

// NotSubscribedError is returned when unsubscribing an observer that is not
// registered.
type NotSubscribedError struct {
	// Observer is the observer's type, for diagnostics.
	Observer string
}

func (e *NotSubscribedError) Error() string {
	return fmt.Sprintf("observer %s is not subscribed", e.Observer)
}

// ReentrantDispatchError is returned when Dispatch is called while another
// dispatch is in progress, e.g. from an observer or a handler.
type ReentrantDispatchError struct {
	// Action is the rejected action.
	Action string

	// Running is the action being dispatched at the time.
	Running string
}

func (e *ReentrantDispatchError) Error() string {
	return fmt.Sprintf("dispatch %q while %q is in progress", e.Action, e.Running)
}

// IsUnknownAction reports whether err wraps an *UnknownActionError.
func IsUnknownAction(err error) bool {
	var ue *UnknownActionError
	return errors.As(err, &ue)
}

// IsNotSubscribed reports whether err wraps a *NotSubscribedError.
func IsNotSubscribed(err error) bool {
	var ne *NotSubscribedError
	return errors.As(err, &ne)
}

// IsReentrantDispatch reports whether err wraps a *ReentrantDispatchError.
func IsReentrantDispatch(err error) bool {
	var re *ReentrantDispatchError
	return errors.As(err, &re)
}
