package harness

import (
	"github.com/ESETdropout/kframe/internal/tree"
)

// Write is one effective view mutation.
type Write struct {
	// Target is the observer name, or "<list>[<key>]" for item bindings.
	Target string

	// Op is "set" or "remove" for properties, "append" or "remove" for
	// list nodes.
	Op string

	// Name is the property name or the list item key.
	Name string

	// Value is the written value or rendered node. Nil for removals.
	Value tree.Value
}

// TraceEvent records one dispatch, or the initial pass with Seq 0.
type TraceEvent struct {
	Seq      int64
	Action   string
	Payload  tree.Value
	Changed  []string
	Notified []string
	Writes   []Write
	Error    string
}

// View is the final rendering of one observer.
type View struct {
	// Props holds the current target properties of bind and toggle
	// observers.
	Props *tree.Map

	// Keys and Nodes hold the rendered items of list observers.
	Keys  []string
	Nodes []string
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool

	// Trace holds the initial pass followed by one event per step.
	Trace []TraceEvent

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string

	// State is the final state tree.
	State *tree.Map

	// Views maps observer names to their final rendering.
	Views map[string]View
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Views:  make(map[string]View),
	}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
