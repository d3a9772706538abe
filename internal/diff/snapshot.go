package diff

import (
	"github.com/ESETdropout/kframe/internal/tree"
)

// Snapshot copies src into dst so that afterwards Changed(dst, src, skip)
// is empty.
//
// Nested maps are copied structurally into dst's existing maps (or cloned
// when dst has no map under that key), lists and scalars are copied by
// reference, and keys missing from src are deleted from dst. Keys in skip are
// ignored at the top level only.
func Snapshot(dst, src *tree.Map, skip KeySet) {
	copyMap(dst, src, skip)
}

func copyMap(dst, src *tree.Map, skip KeySet) {
	src.Range(func(key string, v tree.Value) bool {
		if skip.Has(key) {
			return true
		}

		srcMap, ok := v.(*tree.Map)
		if !ok {
			dst.Set(key, v)
			return true
		}

		dstMap, ok := dst.Lookup(key).(*tree.Map)
		if !ok || dstMap == srcMap {
			dst.Set(key, cloneStructure(srcMap))
			return true
		}
		copyMap(dstMap, srcMap, nil)
		return true
	})

	for _, key := range dst.Keys() {
		if skip.Has(key) {
			continue
		}
		if !src.Has(key) {
			dst.Delete(key)
		}
	}
}

// cloneStructure copies the map skeleton of m. Lists and scalars are shared,
// never copied.
func cloneStructure(m *tree.Map) *tree.Map {
	out := tree.NewMap()
	m.Range(func(key string, v tree.Value) bool {
		if nested, ok := v.(*tree.Map); ok {
			out.Set(key, cloneStructure(nested))
			return true
		}
		out.Set(key, v)
		return true
	})
	return out
}

// NewSnapshot returns a fresh snapshot of src.
func NewSnapshot(src *tree.Map, skip KeySet) *tree.Map {
	dst := tree.NewMap()
	Snapshot(dst, src, skip)
	return dst
}
