package tree

import (
	"fmt"
	"sort"
)

// List is an ordered collection that records mutation in a dirty flag.
//
// Reads (Len, At, Items, Range) never touch the flag. Every mutating method
// sets it, including no-op mutations such as popping an empty list, because
// the flag means "a mutating operation ran", not "the contents differ".
//
// INVARIANT: the only way to clear the flag is MarkClean, which the store
// calls once per dispatch after notifying observers.
type List struct {
	items []Value
	dirty bool
}

func (*List) treeValue() {}

// NewList creates a list holding items. New lists start dirty.
func NewList(items ...Value) *List {
	l := &List{items: make([]Value, 0, len(items)), dirty: true}
	for _, v := range items {
		l.items = append(l.items, orNull(v))
	}
	return l
}

// Dirty reports whether a mutating operation ran since the last MarkClean.
func (l *List) Dirty() bool {
	return l.dirty
}

// MarkClean clears the dirty flag.
func (l *List) MarkClean() {
	l.dirty = false
}

// Touch marks the list dirty without changing it. Use it after mutating an
// item in place (e.g. a field of a map stored in the list).
func (l *List) Touch() {
	l.dirty = true
}

// Len returns the number of items.
func (l *List) Len() int {
	return len(l.items)
}

// At returns the item at index i.
func (l *List) At(i int) (Value, bool) {
	if i < 0 || i >= len(l.items) {
		return Null{}, false
	}
	return l.items[i], true
}

// Items returns a copy of the items.
func (l *List) Items() []Value {
	out := make([]Value, len(l.items))
	copy(out, l.items)
	return out
}

// Range calls fn for each item in order until fn returns false.
func (l *List) Range(fn func(i int, v Value) bool) {
	for i, v := range l.items {
		if !fn(i, v) {
			return
		}
	}
}

// IndexFunc returns the index of the first item satisfying fn, or -1.
func (l *List) IndexFunc(fn func(v Value) bool) int {
	for i, v := range l.items {
		if fn(v) {
			return i
		}
	}
	return -1
}

// Push appends items.
func (l *List) Push(items ...Value) {
	l.dirty = true
	for _, v := range items {
		l.items = append(l.items, orNull(v))
	}
}

// Pop removes and returns the last item.
func (l *List) Pop() (Value, bool) {
	l.dirty = true
	if len(l.items) == 0 {
		return Null{}, false
	}
	last := l.items[len(l.items)-1]
	l.items[len(l.items)-1] = nil
	l.items = l.items[:len(l.items)-1]
	return last, true
}

// Shift removes and returns the first item.
func (l *List) Shift() (Value, bool) {
	l.dirty = true
	if len(l.items) == 0 {
		return Null{}, false
	}
	first := l.items[0]
	l.items = append(l.items[:0], l.items[1:]...)
	return first, true
}

// Unshift prepends items, keeping their order.
func (l *List) Unshift(items ...Value) {
	l.dirty = true
	head := make([]Value, 0, len(items)+len(l.items))
	for _, v := range items {
		head = append(head, orNull(v))
	}
	l.items = append(head, l.items...)
}

// Splice removes deleteCount items starting at start, inserts items in their
// place and returns the removed items. start and deleteCount are clamped to
// the list bounds; a negative start counts from the end.
func (l *List) Splice(start, deleteCount int, items ...Value) []Value {
	l.dirty = true
	n := len(l.items)
	if start < 0 {
		start += n
		if start < 0 {
			start = 0
		}
	}
	if start > n {
		start = n
	}
	if deleteCount < 0 {
		deleteCount = 0
	}
	if start+deleteCount > n {
		deleteCount = n - start
	}

	removed := make([]Value, deleteCount)
	copy(removed, l.items[start:start+deleteCount])

	tail := append([]Value(nil), l.items[start+deleteCount:]...)
	l.items = l.items[:start]
	for _, v := range items {
		l.items = append(l.items, orNull(v))
	}
	l.items = append(l.items, tail...)
	return removed
}

// SetAt assigns v at index i. Assigning past the end pads with Null.
func (l *List) SetAt(i int, v Value) error {
	if i < 0 {
		return fmt.Errorf("list index %d out of range", i)
	}
	l.dirty = true
	for len(l.items) <= i {
		l.items = append(l.items, Null{})
	}
	l.items[i] = orNull(v)
	return nil
}

// RemoveFunc deletes every item satisfying fn and returns how many were
// removed.
func (l *List) RemoveFunc(fn func(v Value) bool) int {
	l.dirty = true
	kept := l.items[:0]
	removed := 0
	for _, v := range l.items {
		if fn(v) {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	for i := len(kept); i < len(l.items); i++ {
		l.items[i] = nil
	}
	l.items = kept
	return removed
}

// Clear removes every item.
func (l *List) Clear() {
	l.dirty = true
	for i := range l.items {
		l.items[i] = nil
	}
	l.items = l.items[:0]
}

// Reverse reverses the items in place.
func (l *List) Reverse() {
	l.dirty = true
	for i, j := 0, len(l.items)-1; i < j; i, j = i+1, j-1 {
		l.items[i], l.items[j] = l.items[j], l.items[i]
	}
}

// Sort sorts the items in place with a stable sort.
func (l *List) Sort(less func(a, b Value) bool) {
	l.dirty = true
	sort.SliceStable(l.items, func(i, j int) bool {
		return less(l.items[i], l.items[j])
	})
}

func orNull(v Value) Value {
	if v == nil {
		return Null{}
	}
	return v
}
