package harness

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/ESETdropout/kframe/internal/engine"
	"github.com/ESETdropout/kframe/internal/selector"
	"github.com/ESETdropout/kframe/internal/tree"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			if event.Error != "" {
				fmt.Fprintf(&buf, "  [%d] %s %s (error: %s)\n", event.Seq, event.Action, formatValue(event.Payload), event.Error)
				continue
			}
			fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Action, formatValue(event.Payload))
		}
	}

	return buf.String()
}

// dispatched returns the committed dispatches of a trace, without the
// initial pass and failed steps.
func dispatched(trace []TraceEvent) []TraceEvent {
	var out []TraceEvent
	for _, event := range trace {
		if event.Action == engine.InitAction || event.Error != "" {
			continue
		}
		out = append(out, event)
	}
	return out
}

// assertTraceContains checks that the action was dispatched with a payload
// matching the expected one (subset match for maps).
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	want, err := nodeValue(a.Payload)
	if err != nil {
		return fmt.Errorf("trace_contains: payload: %w", err)
	}
	for _, event := range dispatched(trace) {
		if event.Action == a.Action && matchPayload(event.Payload, want) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with payload %s", a.Action, formatValue(want)),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions appear in the specified order.
// Actions don't need to be consecutive.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, event := range dispatched(trace) {
		if _, seen := positions[event.Action]; !seen && slices.Contains(a.Actions, event.Action) {
			positions[event.Action] = i + 1
		}
	}

	for _, action := range a.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", a.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Actions); i++ {
		prev, curr := a.Actions[i-1], a.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", a.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks the action was dispatched exactly Count times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range dispatched(trace) {
		if event.Action == a.Action {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState evaluates a selector against the final state.
func assertFinalState(state *tree.Map, eval *selector.Evaluator, a Assertion) error {
	want, err := nodeValue(a.Equals)
	if err != nil {
		return fmt.Errorf("final_state: equals: %w", err)
	}
	got, err := eval.Select(state, a.Select, nil)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %s", a.Select, formatValue(want)),
			Actual:   fmt.Sprintf("select error: %v", err),
		}
	}
	if !valuesEqual(want, got) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %s", a.Select, formatValue(want)),
			Actual:   fmt.Sprintf("%s = %s", a.Select, formatValue(got)),
		}
	}
	return nil
}

// assertView checks an observer's final properties or rendered keys.
func assertView(views map[string]View, a Assertion) error {
	v := views[a.Observer]

	if a.Keys != nil && !slices.Equal(a.Keys, v.Keys) {
		return &AssertionError{
			Type:     AssertView,
			Expected: fmt.Sprintf("%s keys %v", a.Observer, a.Keys),
			Actual:   fmt.Sprintf("%s keys %v", a.Observer, v.Keys),
		}
	}

	names := make([]string, 0, len(a.Props))
	for name := range a.Props {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		want, err := nodeValue(a.Props[name])
		if err != nil {
			return fmt.Errorf("view: props[%q]: %w", name, err)
		}
		var got tree.Value
		if v.Props != nil {
			got, _ = v.Props.Get(name)
		}
		if _, isNull := want.(tree.Null); isNull {
			if got != nil {
				return &AssertionError{
					Type:     AssertView,
					Expected: fmt.Sprintf("%s.%s absent", a.Observer, name),
					Actual:   fmt.Sprintf("%s.%s = %s", a.Observer, name, formatValue(got)),
				}
			}
			continue
		}
		if got == nil || !valuesEqual(want, got) {
			actual := "absent"
			if got != nil {
				actual = formatValue(got)
			}
			return &AssertionError{
				Type:     AssertView,
				Expected: fmt.Sprintf("%s.%s = %s", a.Observer, name, formatValue(want)),
				Actual:   fmt.Sprintf("%s.%s = %s", a.Observer, name, actual),
			}
		}
	}
	return nil
}

// matchPayload reports whether actual contains expected. Maps match as
// subsets, recursively; everything else must be equal. A null expectation
// matches any payload.
func matchPayload(actual, expected tree.Value) bool {
	switch exp := expected.(type) {
	case nil, tree.Null:
		return true
	case *tree.Map:
		act, ok := actual.(*tree.Map)
		if !ok {
			return false
		}
		match := true
		exp.Range(func(key string, want tree.Value) bool {
			got, ok := act.Get(key)
			if !ok || !matchPayload(got, want) {
				match = false
			}
			return match
		})
		return match
	default:
		return valuesEqual(expected, actual)
	}
}

// valuesEqual compares two values structurally through their canonical
// encoding. Integers and floats with the same value are equal.
func valuesEqual(a, b tree.Value) bool {
	ca, err := tree.MarshalCanonical(a)
	if err != nil {
		return false
	}
	cb, err := tree.MarshalCanonical(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

func formatValue(v tree.Value) string {
	if v == nil {
		return "null"
	}
	data, err := tree.MarshalValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, eval *selector.Evaluator) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			if result.State == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires the final state", i)
			} else {
				err = assertFinalState(result.State, eval, a)
			}
		case AssertView:
			err = assertView(result.Views, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
