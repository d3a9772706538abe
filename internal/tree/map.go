package tree

// Map is an insertion-ordered mapping from string keys to values.
// The zero value is not usable; construct with NewMap or MapOf.
type Map struct {
	keys    []string
	entries map[string]Value
}

func (*Map) treeValue() {}

// Pair is a key/value pair for ordered Map construction.
type Pair struct {
	Key   string
	Value Value
}

// P is a shorthand for Pair.
// Example: MapOf(P("count", Int(0)), P("items", NewList()))
func P(key string, value Value) Pair {
	return Pair{Key: key, Value: value}
}

// NewMap creates an empty map.
func NewMap() *Map {
	return &Map{entries: make(map[string]Value)}
}

// MapOf creates a map from pairs, preserving their order.
// A repeated key keeps its first position and its last value.
func MapOf(pairs ...Pair) *Map {
	m := &Map{
		keys:    make([]string, 0, len(pairs)),
		entries: make(map[string]Value, len(pairs)),
	}
	for _, p := range pairs {
		m.Set(p.Key, p.Value)
	}
	return m
}

// Get returns the value under key and whether it exists.
func (m *Map) Get(key string) (Value, bool) {
	v, ok := m.entries[key]
	return v, ok
}

// Lookup returns the value under key, or Null when absent.
func (m *Map) Lookup(key string) Value {
	if v, ok := m.entries[key]; ok {
		return v
	}
	return Null{}
}

// Has reports whether key exists.
func (m *Map) Has(key string) bool {
	_, ok := m.entries[key]
	return ok
}

// Set stores v under key. New keys are appended to the key order; existing
// keys keep their position. A nil v is stored as Null.
func (m *Map) Set(key string, v Value) {
	if v == nil {
		v = Null{}
	}
	if _, ok := m.entries[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.entries[key] = v
}

// Delete removes key and reports whether it was present.
func (m *Map) Delete(key string) bool {
	if _, ok := m.entries[key]; !ok {
		return false
	}
	delete(m.entries, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of keys.
func (m *Map) Len() int {
	return len(m.keys)
}

// Keys returns a copy of the keys in insertion order.
func (m *Map) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Range calls fn for each entry in insertion order until fn returns false.
// fn must not add or delete keys.
func (m *Map) Range(fn func(key string, v Value) bool) {
	for _, k := range m.keys {
		if !fn(k, m.entries[k]) {
			return
		}
	}
}
