package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ESETdropout/kframe/internal/tree"
)

func appendTo(key, value string) Handler {
	return func(state *tree.Map, _ tree.Value) error {
		cur := tree.ToString(state.Lookup(key))
		state.Set(key, tree.String(cur+value))
		return nil
	}
}

func TestComposeHandlers_RunsInArgumentOrder(t *testing.T) {
	base := HandlerTable{"log": appendTo("trail", "a"), "only": appendTo("trail", "x")}
	extra := HandlerTable{"log": appendTo("trail", "b")}

	composed := ComposeHandlers(base, extra)
	require.Len(t, composed, 2)

	state := tree.NewMap()
	require.NoError(t, composed["log"](state, tree.Null{}))
	assert.Equal(t, tree.String("ab"), state.Lookup("trail"))
}

func TestComposeHandlers_StopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	composed := ComposeHandlers(
		HandlerTable{"go": func(*tree.Map, tree.Value) error { return boom }},
		HandlerTable{"go": appendTo("trail", "never")},
	)

	state := tree.NewMap()
	assert.ErrorIs(t, composed["go"](state, nil), boom)
	assert.False(t, state.Has("trail"))
}

func TestComposeHooks(t *testing.T) {
	var order []string
	hook := func(name string) ComputeFunc {
		return func(*tree.Map, string, tree.Value) error {
			order = append(order, name)
			return nil
		}
	}

	assert.Nil(t, ComposeHooks(nil, nil))

	composed := ComposeHooks(hook("first"), nil, hook("second"))
	require.NoError(t, composed(tree.NewMap(), "any", tree.Null{}))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestMerge_OverlayReplacesSetFields(t *testing.T) {
	base := Definition{
		InitialState:   tree.MapOf(tree.P("a", tree.Int(1))),
		Handlers:       HandlerTable{"x": appendTo("t", "x")},
		NonTrackedKeys: []string{"cache"},
	}
	overlay := Definition{
		Handlers: HandlerTable{"y": appendTo("t", "y")},
	}

	merged := Merge(base, overlay)
	assert.Same(t, base.InitialState, merged.InitialState)
	assert.Equal(t, []string{"y"}, merged.Handlers.Actions())
	assert.Equal(t, []string{"cache"}, merged.NonTrackedKeys)
	assert.Nil(t, merged.ComputeState)
}

func TestRegistry_Order(t *testing.T) {
	var log []string
	r := NewRegistry()
	a := &recorder{name: "a", log: &log}
	b := &recorder{name: "b", log: &log}

	assert.True(t, r.Subscribe(a))
	assert.True(t, r.Subscribe(b))
	assert.False(t, r.Subscribe(a))
	assert.Equal(t, []Observer{a, b}, r.Observers())

	require.NoError(t, r.Unsubscribe(a))
	assert.Equal(t, 1, r.Len())
	assert.True(t, IsNotSubscribed(r.Unsubscribe(a)))
}
