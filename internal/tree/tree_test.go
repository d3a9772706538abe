package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Null{}
	var _ Value = Bool(true)
	var _ Value = Int(1)
	var _ Value = Float(1.5)
	var _ Value = String("s")
	var _ Value = NewMap()
	var _ Value = NewList()
}

func TestMapPreservesInsertionOrder(t *testing.T) {
	m := MapOf(P("zebra", Int(1)), P("apple", Int(2)))
	m.Set("mango", Int(3))
	m.Set("zebra", Int(4)) // existing key keeps its slot

	assert.Equal(t, []string{"zebra", "apple", "mango"}, m.Keys())
	assert.Equal(t, Int(4), m.Lookup("zebra"))

	assert.True(t, m.Delete("apple"))
	assert.False(t, m.Delete("apple"))
	assert.Equal(t, []string{"zebra", "mango"}, m.Keys())
	assert.Equal(t, Null{}, m.Lookup("apple"))
}

func TestMapSetNilStoresNull(t *testing.T) {
	m := NewMap()
	m.Set("k", nil)
	v, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, Null{}, v)
}

func TestListDirtyTracking(t *testing.T) {
	l := NewList(Int(1))
	assert.True(t, l.Dirty(), "new lists start dirty")

	l.MarkClean()
	assert.False(t, l.Dirty())

	// Reads never set the flag.
	_ = l.Len()
	_, _ = l.At(0)
	_ = l.Items()
	l.Range(func(int, Value) bool { return true })
	assert.False(t, l.Dirty())

	mutations := []struct {
		name string
		fn   func(*List)
	}{
		{"push", func(l *List) { l.Push(Int(2)) }},
		{"pop", func(l *List) { l.Pop() }},
		{"shift", func(l *List) { l.Shift() }},
		{"unshift", func(l *List) { l.Unshift(Int(0)) }},
		{"splice", func(l *List) { l.Splice(0, 1) }},
		{"set at", func(l *List) { _ = l.SetAt(0, Int(9)) }},
		{"remove func", func(l *List) { l.RemoveFunc(func(Value) bool { return false }) }},
		{"clear", func(l *List) { l.Clear() }},
		{"reverse", func(l *List) { l.Reverse() }},
		{"sort", func(l *List) { l.Sort(func(a, b Value) bool { return false }) }},
		{"touch", func(l *List) { l.Touch() }},
	}

	for _, tc := range mutations {
		t.Run(tc.name, func(t *testing.T) {
			l := NewList(Int(1), Int(2))
			l.MarkClean()
			tc.fn(l)
			assert.True(t, l.Dirty())
		})
	}
}

func TestListSplice(t *testing.T) {
	l := NewList(Int(1), Int(2), Int(3), Int(4))

	removed := l.Splice(1, 2, String("a"), String("b"), String("c"))

	assert.Equal(t, []Value{Int(2), Int(3)}, removed)
	assert.Equal(t, []Value{Int(1), String("a"), String("b"), String("c"), Int(4)}, l.Items())

	removed = l.Splice(-1, 10)
	assert.Equal(t, []Value{Int(4)}, removed)
	assert.Equal(t, 4, l.Len())
}

func TestListSetAtPads(t *testing.T) {
	l := NewList()
	require.NoError(t, l.SetAt(2, String("x")))
	assert.Equal(t, []Value{Null{}, Null{}, String("x")}, l.Items())
	assert.Error(t, l.SetAt(-1, Int(0)))
}

func TestListRemoveFunc(t *testing.T) {
	l := NewList(Int(1), Int(2), Int(3), Int(2))
	n := l.RemoveFunc(func(v Value) bool { return Equal(v, Int(2)) })
	assert.Equal(t, 2, n)
	assert.Equal(t, []Value{Int(1), Int(3)}, l.Items())
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		v    Value
		want bool
	}{
		{Null{}, false},
		{nil, false},
		{Bool(false), false},
		{Bool(true), true},
		{Int(0), false},
		{Int(-1), true},
		{Float(0), false},
		{Float(0.5), true},
		{String(""), false},
		{String("0"), true},
		{NewMap(), true},
		{NewList(), true},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Truthy(tc.v), "Truthy(%#v)", tc.v)
	}
}

func TestEqual(t *testing.T) {
	m := NewMap()
	l := NewList()

	assert.True(t, Equal(Int(5), Int(5)))
	assert.True(t, Equal(Int(5), Float(5)))
	assert.False(t, Equal(Int(5), String("5")))
	assert.True(t, Equal(Null{}, nil))
	assert.True(t, Equal(m, m))
	assert.False(t, Equal(m, NewMap()), "maps compare by identity")
	assert.True(t, Equal(l, l))
	assert.False(t, Equal(l, NewList()), "lists compare by identity")
}

func TestToString(t *testing.T) {
	assert.Equal(t, "", ToString(Null{}))
	assert.Equal(t, "42", ToString(Int(42)))
	assert.Equal(t, "1.5", ToString(Float(1.5)))
	assert.Equal(t, "3", ToString(Float(3)))
	assert.Equal(t, "true", ToString(Bool(true)))
	assert.Equal(t, "a,1", ToString(NewList(String("a"), Int(1))))
}

func TestCloneIsDeep(t *testing.T) {
	orig := MapOf(
		P("player", MapOf(P("hp", Int(10)))),
		P("items", NewList(MapOf(P("id", Int(1))))),
	)

	c := CloneMap(orig)
	c.Lookup("player").(*Map).Set("hp", Int(0))
	c.Lookup("items").(*List).Push(Int(2))

	assert.Equal(t, Int(10), orig.Lookup("player").(*Map).Lookup("hp"))
	assert.Equal(t, 1, orig.Lookup("items").(*List).Len())
	assert.NotSame(t, orig.Lookup("items"), c.Lookup("items"))
}

func TestWalkListsVisitsNestedMaps(t *testing.T) {
	m := MapOf(
		P("items", NewList()),
		P("game", MapOf(P("enemies", NewList()), P("score", Int(1)))),
	)

	var paths []string
	WalkLists(m, func(path string, _ *List) { paths = append(paths, path) })

	assert.Equal(t, []string{"items", "game.enemies"}, paths)
}

func TestWalkListsVisitsListItems(t *testing.T) {
	m := MapOf(
		P("teams", NewList(
			MapOf(P("members", NewList(String("a")))),
			NewList(NewList()),
			Int(3),
		)),
	)

	var paths []string
	WalkLists(m, func(path string, _ *List) { paths = append(paths, path) })

	assert.Equal(t, []string{"teams", "teams.0.members", "teams.1", "teams.1.0"}, paths)
}

func TestJSONRoundTripKeepsOrder(t *testing.T) {
	in := `{"z":1,"a":{"y":true,"b":null},"list":[1,2.5,"s"]}`

	v, err := UnmarshalValue([]byte(in))
	require.NoError(t, err)

	m, ok := v.(*Map)
	require.True(t, ok)
	assert.Equal(t, []string{"z", "a", "list"}, m.Keys())
	assert.Equal(t, Int(1), m.Lookup("z"))

	out, err := MarshalValue(v)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
	assert.Equal(t, in, string(out))
}

func TestCanonicalSortsKeys(t *testing.T) {
	m := MapOf(P("b", Int(1)), P("a", String("<x>")))

	out, err := MarshalCanonical(m)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<x>","b":1}`, string(out))
}

func TestHashIsOrderIndependent(t *testing.T) {
	a := MapOf(P("x", Int(1)), P("y", Int(2)))
	b := MapOf(P("y", Int(2)), P("x", Int(1)))

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)
}

func TestFromGoSortsPlainMaps(t *testing.T) {
	v, err := FromGo(map[string]any{"b": 1, "a": []any{"x", 2.5}})
	require.NoError(t, err)

	m := v.(*Map)
	assert.Equal(t, []string{"a", "b"}, m.Keys())
	assert.Equal(t, Int(1), m.Lookup("b"))
	assert.Equal(t, []Value{String("x"), Float(2.5)}, m.Lookup("a").(*List).Items())

	_, err = FromGo(struct{}{})
	assert.Error(t, err)
}
