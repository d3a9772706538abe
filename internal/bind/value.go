package bind

import (
	"fmt"

	"github.com/ESETdropout/kframe/internal/engine"
	"github.com/ESETdropout/kframe/internal/selector"
	"github.com/ESETdropout/kframe/internal/tree"
)

// ValueBinding writes selector results to target properties.
//
// Unchanged scalar results are not rewritten. A null result removes the
// property. Inside a list item, a result that resolves to nothing because
// the item is gone is skipped.
type ValueBinding struct {
	store  Store
	target Target
	props  []Property
	keys   []string
	iter   *selector.Iteration
	last   map[string]tree.Value
}

var _ engine.Observer = (*ValueBinding)(nil)

// NewValueBinding parses spec (see ParseBindings) and creates a binding.
// It does nothing until Attach.
func NewValueBinding(s Store, target Target, spec string) (*ValueBinding, error) {
	props, err := ParseBindings(spec)
	if err != nil {
		return nil, err
	}
	return &ValueBinding{
		store:  s,
		target: target,
		props:  props,
		keys:   watchKeys(props, ""),
		last:   make(map[string]tree.Value, len(props)),
	}, nil
}

// Attach subscribes the binding and writes the current values.
func (b *ValueBinding) Attach() error {
	b.store.Subscribe(b)
	return b.Refresh()
}

// Detach unsubscribes the binding.
func (b *ValueBinding) Detach() error {
	return b.store.Unsubscribe(b)
}

// WatchKeys implements engine.Observer.
func (b *ValueBinding) WatchKeys() []string {
	return b.keys
}

// OnStateUpdate implements engine.Observer.
func (b *ValueBinding) OnStateUpdate(engine.Update) error {
	return b.Refresh()
}

// Properties returns the parsed property bindings.
func (b *ValueBinding) Properties() []Property {
	return b.props
}

// Refresh re-evaluates every property against the current state.
func (b *ValueBinding) Refresh() error {
	state := b.store.State()
	eval := b.store.Evaluator()

	for _, p := range b.props {
		v, err := eval.Select(state, p.Selector, b.iter)
		if err != nil {
			return fmt.Errorf("bind %q: %w", p.Selector, err)
		}
		if _, isNull := v.(tree.Null); isNull && b.iter != nil {
			continue
		}

		if last, ok := b.last[p.Name]; ok && tree.IsScalar(v) && tree.IsScalar(last) && sameScalar(last, v) {
			continue
		}

		if _, isNull := v.(tree.Null); isNull {
			if err := b.target.RemoveProperty(p.Name); err != nil {
				return fmt.Errorf("remove property %q: %w", p.Name, err)
			}
		} else if err := b.target.SetProperty(p.Name, v); err != nil {
			return fmt.Errorf("set property %q: %w", p.Name, err)
		}
		b.last[p.Name] = v
	}
	return nil
}

// sameScalar is strict equality: Int 1 and Float 1 differ, since targets may
// format them differently.
func sameScalar(a, b tree.Value) bool {
	return tree.Kind(a) == tree.Kind(b) && tree.Equal(a, b)
}
