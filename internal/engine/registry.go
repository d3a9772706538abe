package engine

import (
	"fmt"
	"slices"

	"github.com/ESETdropout/kframe/internal/tree"
)

// InitAction is the reserved action name of the initial notification pass.
const InitAction = "@@INIT"

// Update describes one committed dispatch.
type Update struct {
	// Seq is the dispatch sequence number; 0 for the initial pass.
	Seq int64

	// Action is the dispatched action name.
	Action string

	// Payload is the action payload, tree.Null when none was given.
	Payload tree.Value

	// State is the live state tree.
	State *tree.Map

	// LastState is the store snapshot. Observers see the pre-dispatch
	// values; by the time listeners run it has been refreshed.
	LastState *tree.Map

	// Changed lists the top-level keys reported by the diff.
	Changed []string
}

// Observer is notified after dispatches that touch the keys it watches.
// Implementations must be comparable; use pointer receivers.
type Observer interface {
	// WatchKeys returns the top-level state keys the observer depends on.
	WatchKeys() []string

	// OnStateUpdate is called synchronously from Dispatch.
	OnStateUpdate(u Update) error
}

// ListObserver is an Observer bound to a list. It is notified when the list
// at ListPath was mutated in place, instead of through the key diff.
type ListObserver interface {
	Observer

	// ListPath is the dotted path of the watched list.
	ListPath() string
}

// Registry is the insertion-ordered set of observers.
type Registry struct {
	observers []Observer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Subscribe appends o. It reports false when o is already registered.
func (r *Registry) Subscribe(o Observer) bool {
	if r.Contains(o) {
		return false
	}
	r.observers = append(r.observers, o)
	return true
}

// Unsubscribe removes o.
func (r *Registry) Unsubscribe(o Observer) error {
	idx := slices.Index(r.observers, o)
	if idx < 0 {
		return &NotSubscribedError{Observer: fmt.Sprintf("%T", o)}
	}
	r.observers = slices.Delete(r.observers, idx, idx+1)
	return nil
}

// Contains reports whether o is registered.
func (r *Registry) Contains(o Observer) bool {
	return slices.Contains(r.observers, o)
}

// Len returns the number of registered observers.
func (r *Registry) Len() int {
	return len(r.observers)
}

// Observers returns a copy of the registered observers in order. A
// notification pass iterates this copy and re-checks Contains, so removals
// take effect immediately and additions wait for the next pass.
func (r *Registry) Observers() []Observer {
	return slices.Clone(r.observers)
}
