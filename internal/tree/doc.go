// Package tree provides the tagged value types that make up a kframe state tree.
//
// Every value in the tree is one of a closed set of variants:
//
//   - Scalars: Null, Bool, Int, Float, String
//   - Mappings: *Map, an insertion-ordered string-keyed map
//   - Ordered collections: *List, a slice wrapper with a dirty flag
//
// The store, the diff engine and the selector evaluator switch on these
// variants instead of inspecting arbitrary Go values. tree imports nothing
// internal; every other internal package builds on it.
//
// # Dirty Tracking
//
// Lists are never diffed by value. Every mutating List method sets a private
// dirty flag instead, and the store reads and clears that flag once per
// dispatch cycle. A freshly constructed list starts dirty so that replacing a
// collection wholesale is observed the same way as mutating it in place.
//
// # Ordering
//
// Map keeps keys in insertion order. Diffs, snapshot copies and JSON output
// all follow that order. Canonical JSON (used for hashing) sorts keys by
// UTF-16 code units instead.
package tree
