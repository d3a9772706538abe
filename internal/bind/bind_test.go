package bind

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ESETdropout/kframe/internal/engine"
	"github.com/ESETdropout/kframe/internal/reconcile"
	"github.com/ESETdropout/kframe/internal/template"
	"github.com/ESETdropout/kframe/internal/tree"
)

// fakeTarget records property writes as "set name=value" / "remove name".
type fakeTarget struct {
	ops   []string
	props map[string]tree.Value
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{props: make(map[string]tree.Value)}
}

func (f *fakeTarget) SetProperty(name string, v tree.Value) error {
	f.ops = append(f.ops, fmt.Sprintf("set %s=%s", name, tree.ToString(v)))
	f.props[name] = v
	return nil
}

func (f *fakeTarget) RemoveProperty(name string) error {
	f.ops = append(f.ops, "remove "+name)
	delete(f.props, name)
	return nil
}

func enemy(id string, hp int64) *tree.Map {
	return tree.MapOf(tree.P("id", tree.String(id)), tree.P("hp", tree.Int(hp)))
}

func gameStore() *engine.Store {
	return engine.New(engine.Definition{
		InitialState: tree.MapOf(
			tree.P("player", tree.MapOf(
				tree.P("health", tree.Int(10)),
				tree.P("visible", tree.Bool(true)),
				tree.P("color", tree.String("red")),
			)),
			tree.P("score", tree.Int(0)),
			tree.P("enemies", tree.NewList(enemy("e1", 3), enemy("e2", 5))),
		),
		Handlers: engine.HandlerTable{
			"hurt": func(state *tree.Map, _ tree.Value) error {
				p := state.Lookup("player").(*tree.Map)
				p.Set("health", p.Lookup("health").(tree.Int)-1)
				return nil
			},
			"hide": func(state *tree.Map, _ tree.Value) error {
				state.Lookup("player").(*tree.Map).Set("visible", tree.Bool(false))
				return nil
			},
			"decolor": func(state *tree.Map, _ tree.Value) error {
				state.Lookup("player").(*tree.Map).Delete("color")
				return nil
			},
			"score": func(state *tree.Map, _ tree.Value) error {
				state.Set("score", state.Lookup("score").(tree.Int)+1)
				return nil
			},
			"spawn": func(state *tree.Map, payload tree.Value) error {
				state.Lookup("enemies").(*tree.List).Push(payload)
				return nil
			},
			"kill": func(state *tree.Map, payload tree.Value) error {
				id := tree.ToString(payload)
				state.Lookup("enemies").(*tree.List).RemoveFunc(func(v tree.Value) bool {
					return tree.ToString(v.(*tree.Map).Lookup("id")) == id
				})
				return nil
			},
			"damage": func(state *tree.Map, payload tree.Value) error {
				list := state.Lookup("enemies").(*tree.List)
				list.Range(func(_ int, v tree.Value) bool {
					m := v.(*tree.Map)
					if tree.ToString(m.Lookup("id")) == tree.ToString(payload) {
						m.Set("hp", m.Lookup("hp").(tree.Int)-1)
					}
					return true
				})
				list.Touch()
				return nil
			},
		},
	})
}

func TestParseBindings(t *testing.T) {
	props, err := ParseBindings("player.visible")
	require.NoError(t, err)
	assert.Equal(t, []Property{{Selector: "player.visible"}}, props)

	props, err = ParseBindings(" color: enemy.color ; opacity: enemy.opacity; ")
	require.NoError(t, err)
	assert.Equal(t, []Property{
		{Name: "color", Selector: "enemy.color"},
		{Name: "opacity", Selector: "enemy.opacity"},
	}, props)

	_, err = ParseBindings("color:")
	assert.Error(t, err)
	_, err = ParseBindings("  ")
	assert.Error(t, err)
}

func TestValueBinding_WritesOnAttachAndChange(t *testing.T) {
	s := gameStore()
	target := newFakeTarget()
	vb, err := NewValueBinding(s, target, "health: player.health; alive: player.health && player.visible")
	require.NoError(t, err)
	assert.Equal(t, []string{"player"}, vb.WatchKeys())

	require.NoError(t, vb.Attach())
	assert.Equal(t, []string{"set health=10", "set alive=true"}, target.ops)

	_, err = s.Dispatch("hurt", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"set health=10", "set alive=true", "set health=9"}, target.ops,
		"unchanged scalars are skipped")
}

func TestValueBinding_IgnoresUnrelatedKeys(t *testing.T) {
	s := gameStore()
	target := newFakeTarget()
	vb, err := NewValueBinding(s, target, "player.health")
	require.NoError(t, err)
	require.NoError(t, vb.Attach())

	_, err = s.Dispatch("score", nil)
	require.NoError(t, err)
	assert.Len(t, target.ops, 1)
}

func TestValueBinding_NullRemovesProperty(t *testing.T) {
	s := gameStore()
	target := newFakeTarget()
	vb, err := NewValueBinding(s, target, "material: player.color")
	require.NoError(t, err)
	require.NoError(t, vb.Attach())

	_, err = s.Dispatch("decolor", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"set material=red", "remove material"}, target.ops)
}

func TestValueBinding_Detach(t *testing.T) {
	s := gameStore()
	target := newFakeTarget()
	vb, err := NewValueBinding(s, target, "player.health")
	require.NoError(t, err)
	require.NoError(t, vb.Attach())
	require.NoError(t, vb.Detach())

	_, err = s.Dispatch("hurt", nil)
	require.NoError(t, err)
	assert.Len(t, target.ops, 1)
	assert.True(t, engine.IsNotSubscribed(vb.Detach()))
}

func TestToggleBinding(t *testing.T) {
	s := gameStore()
	target := newFakeTarget()
	tb := NewToggleBinding(s, target, "raycastable", "player.visible")
	require.NoError(t, tb.Attach())
	assert.Equal(t, []string{"set raycastable="}, target.ops)

	_, err := s.Dispatch("hide", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"set raycastable=", "remove raycastable"}, target.ops)
}

func listFixture(t *testing.T, s *engine.Store) (*ListBinding, *reconcile.Memory) {
	t.Helper()
	tmpl, err := template.Parse(`<enemy id="{{ enemy.id }}" hp="{{ enemy.hp }}"/>`, s.Evaluator())
	require.NoError(t, err)

	c := reconcile.NewMemory()
	lb, err := NewListBinding(s, ListSpec{For: "enemy", In: "enemies", Key: "id"}, c, template.Renderer{Template: tmpl})
	require.NoError(t, err)
	require.NoError(t, lb.Attach())
	return lb, c
}

func TestListBinding_RendersAndReconciles(t *testing.T) {
	s := gameStore()
	lb, c := listFixture(t, s)

	assert.Equal(t, []string{"e1", "e2"}, lb.RenderedKeys())
	n, _ := c.Node("e1")
	assert.Equal(t, `<enemy id="e1" hp="3"/>`, n)

	_, err := s.Dispatch("spawn", enemy("e3", 9))
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2", "e3"}, c.Keys())

	_, err = s.Dispatch("kill", tree.String("e1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"e2", "e3"}, lb.RenderedKeys())
	assert.Equal(t, []string{"e2", "e3"}, c.Keys())
}

func TestListBinding_NotNotifiedWhenListClean(t *testing.T) {
	s := gameStore()
	lb, _ := listFixture(t, s)

	var passes int
	lb.OnRender(func(reconcile.Result) error {
		passes++
		return nil
	})

	_, err := s.Dispatch("score", nil)
	require.NoError(t, err)
	assert.Zero(t, passes)

	_, err = s.Dispatch("spawn", enemy("e3", 1))
	require.NoError(t, err)
	assert.Equal(t, 1, passes)
}

func TestListBinding_ItemBindings(t *testing.T) {
	s := gameStore()
	lb, _ := listFixture(t, s)

	target := newFakeTarget()
	vb, err := lb.BindItem("e2", target, "hp: enemy.hp; score: score")
	require.NoError(t, err)
	assert.Equal(t, []string{"score", "enemies"}, vb.WatchKeys())
	assert.Equal(t, []string{"set hp=5", "set score=0"}, target.ops)

	// In-place item mutation reaches the item binding through the render
	// broadcast.
	_, err = s.Dispatch("damage", tree.String("e2"))
	require.NoError(t, err)
	assert.Equal(t, tree.Int(4), target.props["hp"])

	_, err = s.Dispatch("score", nil)
	require.NoError(t, err)
	assert.Equal(t, tree.Int(1), target.props["score"])

	// Removing the item detaches its bindings.
	_, err = s.Dispatch("kill", tree.String("e2"))
	require.NoError(t, err)
	assert.True(t, engine.IsNotSubscribed(vb.Detach()))
}

func TestListBinding_BindItemUnknownKey(t *testing.T) {
	s := gameStore()
	lb, _ := listFixture(t, s)

	_, err := lb.BindItem("zz", newFakeTarget(), "enemy.hp")
	assert.Error(t, err)
}

func TestListBinding_Detach(t *testing.T) {
	s := gameStore()
	lb, _ := listFixture(t, s)
	_, err := lb.BindItem("e1", newFakeTarget(), "enemy.hp")
	require.NoError(t, err)

	require.NoError(t, lb.Detach())
	_, err = s.Dispatch("spawn", enemy("e9", 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2"}, lb.RenderedKeys())
}
