package engine

import (
	"maps"
	"slices"

	"github.com/ESETdropout/kframe/internal/tree"
)

// Handler mutates state in place in response to an action.
type Handler func(state *tree.Map, payload tree.Value) error

// HandlerTable maps action names to handlers.
type HandlerTable map[string]Handler

// ComputeFunc derives additional state after every handler run.
type ComputeFunc func(state *tree.Map, action string, payload tree.Value) error

// Definition is everything a Store is built from.
type Definition struct {
	// InitialState is deep-cloned into the live tree by New.
	InitialState *tree.Map

	// Handlers is the action handler table.
	Handlers HandlerTable

	// NonTrackedKeys are top-level keys excluded from the diff and the
	// snapshot. Observers watching them are never notified through the diff.
	NonTrackedKeys []string

	// ComputeState runs after every handler. Optional.
	ComputeState ComputeFunc
}

// Merge overlays one definition onto another field by field: every field set
// in overlay replaces the corresponding field of base. Handler tables are
// replaced wholesale; use ComposeHandlers to combine them instead.
func Merge(base, overlay Definition) Definition {
	out := base
	if overlay.InitialState != nil {
		out.InitialState = overlay.InitialState
	}
	if overlay.Handlers != nil {
		out.Handlers = overlay.Handlers
	}
	if overlay.NonTrackedKeys != nil {
		out.NonTrackedKeys = overlay.NonTrackedKeys
	}
	if overlay.ComputeState != nil {
		out.ComputeState = overlay.ComputeState
	}
	return out
}

// Actions returns the handler names in sorted order.
func (t HandlerTable) Actions() []string {
	return slices.Sorted(maps.Keys(t))
}

// ComposeHandlers combines several handler tables. Handlers registered for
// the same action in more than one table run in argument order; the first
// error stops the chain.
func ComposeHandlers(tables ...HandlerTable) HandlerTable {
	chains := make(map[string][]Handler)
	var order []string
	for _, table := range tables {
		for _, name := range table.Actions() {
			if _, ok := chains[name]; !ok {
				order = append(order, name)
			}
			chains[name] = append(chains[name], table[name])
		}
	}

	out := make(HandlerTable, len(chains))
	for _, name := range order {
		chain := chains[name]
		if len(chain) == 1 {
			out[name] = chain[0]
			continue
		}
		out[name] = func(state *tree.Map, payload tree.Value) error {
			for _, h := range chain {
				if err := h(state, payload); err != nil {
					return err
				}
			}
			return nil
		}
	}
	return out
}

// ComposeHooks combines compute hooks into one that runs them in order.
// Nil hooks are skipped.
func ComposeHooks(hooks ...ComputeFunc) ComputeFunc {
	var chain []ComputeFunc
	for _, h := range hooks {
		if h != nil {
			chain = append(chain, h)
		}
	}
	switch len(chain) {
	case 0:
		return nil
	case 1:
		return chain[0]
	}
	return func(state *tree.Map, action string, payload tree.Value) error {
		for _, h := range chain {
			if err := h(state, action, payload); err != nil {
				return err
			}
		}
		return nil
	}
}
