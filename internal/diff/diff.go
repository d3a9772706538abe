// Package diff computes which top-level state keys changed between two
// dispatch cycles and maintains the snapshot those diffs run against.
//
// Comparison rules:
//   - scalars compare by value (tree.Equal)
//   - nested maps compare recursively, leaf by leaf, including added and
//     removed keys
//   - lists compare by reference only; their contents are never scanned
//     (collection changes are signalled by the list's dirty flag instead)
//
// Keys in the non-tracked set are skipped at the top level only.
package diff

import (
	"github.com/ESETdropout/kframe/internal/tree"
)

// KeySet is a set of top-level state keys.
type KeySet map[string]struct{}

// NewKeySet builds a KeySet from keys.
func NewKeySet(keys ...string) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Has reports whether key is in the set. A nil set contains nothing.
func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Changed returns the top-level keys whose value differs between last and
// current, in current's key order followed by keys only present in last.
func Changed(last, current *tree.Map, skip KeySet) []string {
	var changed []string

	current.Range(func(key string, v tree.Value) bool {
		if skip.Has(key) {
			return true
		}
		prev, ok := last.Get(key)
		if !ok || !Equal(prev, v) {
			changed = append(changed, key)
		}
		return true
	})

	last.Range(func(key string, _ tree.Value) bool {
		if skip.Has(key) {
			return true
		}
		if !current.Has(key) {
			changed = append(changed, key)
		}
		return true
	})

	return changed
}

// Equal reports whether a and b are equal under the diff rules: maps
// recursively, lists by reference, scalars by value.
func Equal(a, b tree.Value) bool {
	am, aok := a.(*tree.Map)
	bm, bok := b.(*tree.Map)
	if aok != bok {
		return false
	}
	if !aok {
		return tree.Equal(a, b)
	}
	if am == bm {
		return true
	}
	if am.Len() != bm.Len() {
		return false
	}

	equal := true
	am.Range(func(key string, av tree.Value) bool {
		bv, ok := bm.Get(key)
		if !ok || !Equal(av, bv) {
			equal = false
			return false
		}
		return true
	})
	return equal
}
