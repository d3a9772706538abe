// Package reconcile keeps a container of rendered views in step with a keyed
// list in the state tree.
//
// Reconciliation is insertion-preserving: new keys are rendered and appended
// at the end, vanished keys are removed, and surviving views keep their
// position and identity. A pure permutation of the list produces no edits.
package reconcile

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/ESETdropout/kframe/internal/tree"
)

// ViewNode is an opaque rendered view owned by the host.
type ViewNode any

// Renderer produces a view for one list item.
type Renderer interface {
	Render(item tree.Value) (ViewNode, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(item tree.Value) (ViewNode, error)

// Render calls f(item).
func (f RendererFunc) Render(item tree.Value) (ViewNode, error) {
	return f(item)
}

// Container holds the rendered views of one list, addressed by key.
type Container interface {
	Append(key string, node ViewNode) error
	Remove(key string) error
}

// Result reports one reconciliation pass.
type Result struct {
	// Keys is the rendered key sequence after the pass.
	Keys []string

	// Added are the keys rendered in this pass, in list order.
	Added []string

	// Removed are the keys removed in this pass, in rendered order.
	Removed []string
}

// Changed reports whether the pass edited the container.
func (r Result) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// Keys returns the key of every item: the stringified keyField of each item,
// or its index when keyField is empty.
func Keys(items tree.Value, keyField string) ([]string, error) {
	list, ok := items.(*tree.List)
	if !ok {
		return nil, &NotAListError{Kind: tree.Kind(items)}
	}

	keys := make([]string, 0, list.Len())
	var err error
	list.Range(func(i int, item tree.Value) bool {
		if keyField == "" {
			keys = append(keys, strconv.Itoa(i))
			return true
		}
		m, isMap := item.(*tree.Map)
		if !isMap {
			err = &MissingKeyError{Index: i, Field: keyField}
			return false
		}
		v, found := m.Get(keyField)
		if !found {
			err = &MissingKeyError{Index: i, Field: keyField}
			return false
		}
		keys = append(keys, tree.ToString(v))
		return true
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Reconcile brings c in line with items. rendered is the key sequence from
// the previous pass and is not modified.
//
// All keys are computed before the container is touched, so a key error
// leaves c unchanged. A Renderer or Container error stops the pass; the
// returned Result then describes the edits applied so far.
func Reconcile(items tree.Value, keyField string, rendered []string, c Container, r Renderer) (Result, error) {
	keys, err := Keys(items, keyField)
	if err != nil {
		return Result{Keys: slices.Clone(rendered)}, err
	}
	list := items.(*tree.List)

	res := Result{Keys: slices.Clone(rendered)}
	have := make(map[string]bool, len(rendered)+len(keys))
	for _, k := range rendered {
		have[k] = true
	}

	for i, key := range keys {
		if have[key] {
			continue
		}
		item, _ := list.At(i)
		node, err := r.Render(item)
		if err != nil {
			return res, fmt.Errorf("render item %q: %w", key, err)
		}
		if err := c.Append(key, node); err != nil {
			return res, fmt.Errorf("append item %q: %w", key, err)
		}
		have[key] = true
		res.Keys = append(res.Keys, key)
		res.Added = append(res.Added, key)
	}

	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	kept := res.Keys[:0:0]
	for i, key := range res.Keys {
		if want[key] {
			kept = append(kept, key)
			continue
		}
		if err := c.Remove(key); err != nil {
			res.Keys = append(kept, res.Keys[i:]...)
			return res, fmt.Errorf("remove item %q: %w", key, err)
		}
		res.Removed = append(res.Removed, key)
	}
	res.Keys = kept

	return res, nil
}
