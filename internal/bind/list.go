package bind

import (
	"fmt"
	"maps"
	"slices"

	"github.com/ESETdropout/kframe/internal/engine"
	"github.com/ESETdropout/kframe/internal/reconcile"
	"github.com/ESETdropout/kframe/internal/selector"
)

// ListSpec describes a list binding.
type ListSpec struct {
	// For is the item alias used by item-scoped selectors.
	For string

	// In is the dotted path of the list in the state.
	In string

	// Key is the item field used as the view key. Empty uses the index.
	Key string
}

// ListBinding renders the list at ListSpec.In into a container and keeps it
// reconciled. It is notified through the list's dirty flag, not the diff.
type ListBinding struct {
	store     Store
	spec      ListSpec
	container reconcile.Container
	renderer  reconcile.Renderer

	rendered []string
	items    map[string][]*ValueBinding
	onRender []func(reconcile.Result) error
}

var _ engine.ListObserver = (*ListBinding)(nil)

// NewListBinding creates a list binding. It does nothing until Attach.
func NewListBinding(s Store, spec ListSpec, c reconcile.Container, r reconcile.Renderer) (*ListBinding, error) {
	if spec.In == "" {
		return nil, fmt.Errorf("bind-for: empty list path")
	}
	return &ListBinding{
		store:     s,
		spec:      spec,
		container: c,
		renderer:  r,
		items:     make(map[string][]*ValueBinding),
	}, nil
}

// Attach subscribes the binding and renders the current list.
func (b *ListBinding) Attach() error {
	b.store.Subscribe(b)
	return b.Render()
}

// Detach unsubscribes the binding and every item binding.
func (b *ListBinding) Detach() error {
	for _, key := range slices.Sorted(maps.Keys(b.items)) {
		if err := b.detachItem(key); err != nil {
			return err
		}
	}
	return b.store.Unsubscribe(b)
}

// WatchKeys implements engine.Observer.
func (b *ListBinding) WatchKeys() []string {
	return []string{selector.TopKey(b.spec.In)}
}

// ListPath implements engine.ListObserver.
func (b *ListBinding) ListPath() string {
	return b.spec.In
}

// OnStateUpdate implements engine.Observer.
func (b *ListBinding) OnStateUpdate(engine.Update) error {
	return b.Render()
}

// RenderedKeys returns the keys currently rendered, in container order.
func (b *ListBinding) RenderedKeys() []string {
	return slices.Clone(b.rendered)
}

// OnRender registers fn to run after every render pass. The returned func
// removes it.
func (b *ListBinding) OnRender(fn func(reconcile.Result) error) (cancel func()) {
	b.onRender = append(b.onRender, fn)
	idx := len(b.onRender) - 1
	return func() {
		if idx < len(b.onRender) {
			b.onRender[idx] = nil
		}
	}
}

// Render reconciles the container with the list, detaches the bindings of
// removed items, refreshes the remaining item bindings and then runs the
// render callbacks.
func (b *ListBinding) Render() error {
	items, err := b.store.Evaluator().Select(b.store.State(), b.spec.In, nil)
	if err != nil {
		return fmt.Errorf("bind-for %q: %w", b.spec.In, err)
	}

	res, err := reconcile.Reconcile(items, b.spec.Key, b.rendered, b.container, b.renderer)
	b.rendered = res.Keys
	if err != nil {
		return fmt.Errorf("bind-for %q: %w", b.spec.In, err)
	}

	for _, key := range res.Removed {
		if err := b.detachItem(key); err != nil {
			return err
		}
	}
	for _, key := range b.rendered {
		for _, vb := range b.items[key] {
			if err := vb.Refresh(); err != nil {
				return err
			}
		}
	}
	for _, fn := range b.onRender {
		if fn == nil {
			continue
		}
		if err := fn(res); err != nil {
			return err
		}
	}
	return nil
}

// BindItem creates and attaches a value binding scoped to the rendered item
// with the given key. Its selectors may use the list alias. It also watches
// the list's top-level key and is detached when the item is removed.
func (b *ListBinding) BindItem(key string, target Target, spec string) (*ValueBinding, error) {
	if !slices.Contains(b.rendered, key) {
		return nil, fmt.Errorf("bind-for %q: item %q is not rendered", b.spec.In, key)
	}
	vb, err := NewValueBinding(b.store, target, spec)
	if err != nil {
		return nil, err
	}
	vb.iter = &selector.Iteration{
		For:     b.spec.For,
		In:      b.spec.In,
		Key:     b.spec.Key,
		ItemKey: key,
	}
	vb.keys = watchKeys(vb.props, b.spec.For, selector.TopKey(b.spec.In))

	if err := vb.Attach(); err != nil {
		return nil, err
	}
	b.items[key] = append(b.items[key], vb)
	return vb, nil
}

func (b *ListBinding) detachItem(key string) error {
	for _, vb := range b.items[key] {
		if err := vb.Detach(); err != nil {
			return fmt.Errorf("detach item %q: %w", key, err)
		}
	}
	delete(b.items, key)
	return nil
}
