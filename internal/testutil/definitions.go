package testutil

import (
	"fmt"

	"github.com/ESETdropout/kframe/internal/engine"
	"github.com/ESETdropout/kframe/internal/tree"
)

// CounterDefinition returns a small definition over {count, items}:
//
//	increment  count += 1
//	add        count += payload (int)
//	push       items.push(payload)
//	noop       no change
func CounterDefinition() engine.Definition {
	return engine.Definition{
		InitialState: tree.MapOf(
			tree.P("count", tree.Int(0)),
			tree.P("items", tree.NewList()),
		),
		Handlers: engine.HandlerTable{
			"increment": func(state *tree.Map, _ tree.Value) error {
				n, _ := state.Lookup("count").(tree.Int)
				state.Set("count", n+1)
				return nil
			},
			"add": func(state *tree.Map, payload tree.Value) error {
				by, ok := payload.(tree.Int)
				if !ok {
					return fmt.Errorf("add: payload must be int, got %s", tree.Kind(payload))
				}
				n, _ := state.Lookup("count").(tree.Int)
				state.Set("count", n+by)
				return nil
			},
			"push": func(state *tree.Map, payload tree.Value) error {
				state.Lookup("items").(*tree.List).Push(tree.Clone(payload))
				return nil
			},
			"noop": func(*tree.Map, tree.Value) error { return nil },
		},
	}
}
