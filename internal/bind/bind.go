// Package bind connects store state to view targets.
//
// Three observers are provided:
//
//   - ValueBinding writes selected values to named target properties
//   - ToggleBinding sets or removes a property from a selector's truthiness
//   - ListBinding renders a keyed list into a container via reconcile
//
// Bindings created through ListBinding.BindItem are scoped to one list item:
// their selectors resolve the item alias through a selector.Iteration and
// they refresh after every list render.
package bind

import (
	"fmt"
	"strings"

	"github.com/ESETdropout/kframe/internal/engine"
	"github.com/ESETdropout/kframe/internal/selector"
	"github.com/ESETdropout/kframe/internal/tree"
)

// Store is the part of *engine.Store bindings use.
type Store interface {
	State() *tree.Map
	Evaluator() *selector.Evaluator
	Subscribe(o engine.Observer)
	Unsubscribe(o engine.Observer) error
}

// Target is a view element whose properties bindings write.
type Target interface {
	SetProperty(name string, value tree.Value) error
	RemoveProperty(name string) error
}

// Property pairs a target property with the selector that feeds it. An
// empty Name means the binding's own property.
type Property struct {
	Name     string
	Selector string
}

// ParseBindings parses a style-like binding string:
//
//	"player.visible"                      one unnamed property
//	"color: enemy.color; opacity: enemy.opacity"
//
// Empty declarations are ignored. A declaration without a selector is an
// error.
func ParseBindings(spec string) ([]Property, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("bind: empty binding")
	}
	if !strings.Contains(spec, ":") {
		return []Property{{Selector: spec}}, nil
	}

	var props []Property
	for _, decl := range strings.Split(spec, ";") {
		decl = strings.TrimSpace(decl)
		if decl == "" {
			continue
		}
		name, sel, ok := strings.Cut(decl, ":")
		name, sel = strings.TrimSpace(name), strings.TrimSpace(sel)
		if !ok || name == "" || sel == "" {
			return nil, fmt.Errorf("bind: malformed declaration %q", decl)
		}
		props = append(props, Property{Name: name, Selector: sel})
	}
	return props, nil
}

// watchKeys collects the top-level keys of every selector, first seen first.
// The item alias of an enclosing list is not a state key and is skipped.
func watchKeys(props []Property, alias string, extra ...string) []string {
	var keys []string
	seen := make(map[string]bool)
	add := func(k string) {
		if k != "" && k != alias && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, p := range props {
		for _, k := range selector.WatchKeys(p.Selector) {
			add(k)
		}
	}
	for _, k := range extra {
		add(k)
	}
	return keys
}
