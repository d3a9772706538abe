package tree

import "strconv"

// Clone returns a deep copy of v. Maps and lists are copied recursively;
// copied lists start dirty like any new list.
func Clone(v Value) Value {
	switch val := v.(type) {
	case nil:
		return Null{}
	case *Map:
		return CloneMap(val)
	case *List:
		out := &List{items: make([]Value, len(val.items)), dirty: true}
		for i, item := range val.items {
			out.items[i] = Clone(item)
		}
		return out
	default:
		return v
	}
}

// CloneMap returns a deep copy of m.
func CloneMap(m *Map) *Map {
	if m == nil {
		return NewMap()
	}
	out := &Map{
		keys:    make([]string, len(m.keys)),
		entries: make(map[string]Value, len(m.entries)),
	}
	copy(out.keys, m.keys)
	for k, v := range m.entries {
		out.entries[k] = Clone(v)
	}
	return out
}

// WalkLists calls fn for every list reachable from m, through nested maps
// and through the items of lists. Item paths use the index as the segment
// ("teams.0.members").
func WalkLists(m *Map, fn func(path string, l *List)) {
	walkMap(m, "", fn)
}

func walkMap(m *Map, prefix string, fn func(path string, l *List)) {
	for _, k := range m.keys {
		walkValue(m.entries[k], joinPath(prefix, k), fn)
	}
}

func walkValue(v Value, path string, fn func(path string, l *List)) {
	switch val := v.(type) {
	case *List:
		fn(path, val)
		for i, item := range val.items {
			walkValue(item, joinPath(path, strconv.Itoa(i)), fn)
		}
	case *Map:
		walkMap(val, path, fn)
	}
}

func joinPath(prefix, seg string) string {
	if prefix == "" {
		return seg
	}
	return prefix + "." + seg
}
