package bind

import (
	"fmt"

	"github.com/ESETdropout/kframe/internal/engine"
	"github.com/ESETdropout/kframe/internal/selector"
	"github.com/ESETdropout/kframe/internal/tree"
)

// ToggleBinding attaches a property while its selector is truthy and
// removes it otherwise.
type ToggleBinding struct {
	store    Store
	target   Target
	name     string
	selector string
	keys     []string
}

var _ engine.Observer = (*ToggleBinding)(nil)

// NewToggleBinding creates a toggle for property name driven by sel.
func NewToggleBinding(s Store, target Target, name, sel string) *ToggleBinding {
	return &ToggleBinding{
		store:    s,
		target:   target,
		name:     name,
		selector: sel,
		keys:     selector.WatchKeys(sel),
	}
}

// Attach subscribes the toggle and applies the current value.
func (b *ToggleBinding) Attach() error {
	b.store.Subscribe(b)
	return b.Refresh()
}

// Detach unsubscribes the toggle.
func (b *ToggleBinding) Detach() error {
	return b.store.Unsubscribe(b)
}

// WatchKeys implements engine.Observer.
func (b *ToggleBinding) WatchKeys() []string {
	return b.keys
}

// OnStateUpdate implements engine.Observer.
func (b *ToggleBinding) OnStateUpdate(engine.Update) error {
	return b.Refresh()
}

// Refresh evaluates the selector and sets or removes the property.
func (b *ToggleBinding) Refresh() error {
	v, err := b.store.Evaluator().Select(b.store.State(), b.selector, nil)
	if err != nil {
		return fmt.Errorf("bind-toggle %q: %w", b.selector, err)
	}
	if tree.Truthy(v) {
		return b.target.SetProperty(b.name, tree.String(""))
	}
	return b.target.RemoveProperty(b.name)
}
