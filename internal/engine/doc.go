// Package engine implements the kframe store: a single mutable state tree,
// a table of named action handlers and an ordered set of observers.
//
// DISPATCH:
//
// Every state change goes through Store.Dispatch. One dispatch is one
// atomic, synchronous step:
//
//  1. the handler for the action mutates the live tree in place
//  2. the optional compute hook derives additional state
//  3. diff.Changed reports which top-level keys differ from the snapshot
//  4. observers are notified in registration order when relevant
//  5. list dirty flags are cleared
//  6. the snapshot is refreshed from the live tree
//  7. listeners receive the Update
//
// An observer is relevant when one of its watched keys changed. A
// ListObserver is relevant when the list at its path was mutated in place
// (tree.List.Dirty), since lists are compared by reference in the diff.
//
// The Store is not safe for concurrent use. Asynchronous action sources go
// through Loop, which drains a FIFO queue on a single goroutine.
//
// SEQUENCING:
//
// Each successful dispatch is stamped with a strictly increasing seq from
// Clock. The initial notification pass (Init) uses seq 0 and the reserved
// action name InitAction.
package engine
