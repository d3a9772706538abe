package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ESETdropout/kframe/internal/tree"
)

// Scenario drives a definition through a sequence of dispatches with view
// observers attached, and checks the resulting trace and state.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Definition is the definition file path, relative to the scenario file.
	Definition string `yaml:"definition"`

	// Observers are attached in order before the initial notification pass.
	Observers []ObserverSpec `yaml:"observers,omitempty"`

	// Steps are dispatched in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace, state and views.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ObserverSpec declares one view observer. Exactly one of Bind, Toggle and
// List is set.
type ObserverSpec struct {
	// Name labels the observer in the trace and in view assertions.
	Name string `yaml:"name"`

	// Bind is a value binding ("score" or "hp: player.hp; name: player.name").
	Bind string `yaml:"bind,omitempty"`

	// Toggle is a selector; the observer's Property is present while it is
	// truthy.
	Toggle string `yaml:"toggle,omitempty"`

	// Property is the toggled property name. Defaults to Name.
	Property string `yaml:"property,omitempty"`

	// List renders a keyed list.
	List *ListSpec `yaml:"list,omitempty"`
}

// ListSpec declares a list observer.
type ListSpec struct {
	// For is the item alias used by Template and Item.
	For string `yaml:"for"`

	// In is the list path.
	In string `yaml:"in"`

	// Key is the item key field. Empty keys items by index.
	Key string `yaml:"key,omitempty"`

	// Template renders each item. Defaults to the item's JSON.
	Template string `yaml:"template,omitempty"`

	// Item is a value binding attached to every rendered item.
	Item string `yaml:"item,omitempty"`
}

// Step dispatches one action.
type Step struct {
	// Dispatch is the action name.
	Dispatch string `yaml:"dispatch"`

	// Payload is the action payload. Absent means null.
	Payload yaml.Node `yaml:"payload,omitempty"`

	// Expect checks the dispatch. Nil checks only that it succeeded.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the outcome of one step.
type Expect struct {
	// Changed is the exact set of changed top-level keys.
	Changed []string `yaml:"changed,omitempty"`

	// Notified is the exact set of notified observer names.
	Notified []string `yaml:"notified,omitempty"`

	// State maps selectors to their expected values after the step.
	State map[string]yaml.Node `yaml:"state,omitempty"`

	// Error is a substring of the expected dispatch error. When set the
	// dispatch must fail.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the finished run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": action appears with a payload (subset match)
	// - "trace_order": actions appear in order
	// - "trace_count": action appears exactly Count times
	// - "final_state": selector Select evaluates to Equals
	// - "view": observer's properties or rendered keys match
	Type string `yaml:"type"`

	// Action is used by trace_contains and trace_count.
	Action string `yaml:"action,omitempty"`

	// Payload is the expected payload subset for trace_contains.
	Payload yaml.Node `yaml:"payload,omitempty"`

	// Count is used by trace_count.
	Count int `yaml:"count,omitempty"`

	// Actions is used by trace_order.
	Actions []string `yaml:"actions,omitempty"`

	// Select and Equals are used by final_state.
	Select string    `yaml:"select,omitempty"`
	Equals yaml.Node `yaml:"equals,omitempty"`

	// Observer, Props and Keys are used by view. Props is a subset match;
	// a null value asserts the property is absent.
	Observer string               `yaml:"observer,omitempty"`
	Props    map[string]yaml.Node `yaml:"props,omitempty"`
	Keys     []string             `yaml:"keys,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertView          = "view"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected. The definition path is resolved against the scenario's
// directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if s.Definition != "" && !filepath.IsAbs(s.Definition) {
		s.Definition = filepath.Join(filepath.Dir(path), s.Definition)
	}
	if _, err := os.Stat(s.Definition); err != nil {
		return nil, fmt.Errorf("%s: definition: %w", path, err)
	}
	return s, nil
}

// ParseScenario decodes and validates scenario YAML. The definition path
// is left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Definition == "" {
		return fmt.Errorf("definition is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	names := make(map[string]bool, len(s.Observers))
	for i, o := range s.Observers {
		if o.Name == "" {
			return fmt.Errorf("observers[%d]: name is required", i)
		}
		if names[o.Name] {
			return fmt.Errorf("observers[%d]: duplicate name %q", i, o.Name)
		}
		names[o.Name] = true

		kinds := 0
		if o.Bind != "" {
			kinds++
		}
		if o.Toggle != "" {
			kinds++
		}
		if o.List != nil {
			kinds++
			if o.List.In == "" {
				return fmt.Errorf("observers[%d]: list.in is required", i)
			}
		}
		if kinds != 1 {
			return fmt.Errorf("observers[%d]: exactly one of bind, toggle or list is required", i)
		}
	}

	for i, step := range s.Steps {
		if step.Dispatch == "" {
			return fmt.Errorf("steps[%d]: dispatch is required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, names); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion, observers map[string]bool) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Select == "" {
			return fmt.Errorf("assertions[%d]: select is required for final_state", index)
		}
	case AssertView:
		if !observers[a.Observer] {
			return fmt.Errorf("assertions[%d]: unknown observer %q", index, a.Observer)
		}
		if len(a.Props) == 0 && a.Keys == nil {
			return fmt.Errorf("assertions[%d]: props or keys is required for view", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// nodeValue converts a decoded YAML node. An absent node is null.
func nodeValue(n yaml.Node) (tree.Value, error) {
	if n.Kind == 0 {
		return tree.Null{}, nil
	}
	return tree.FromYAML(&n)
}
