// Package template stamps list item views from a text template with
// `{{ path }}` interpolation.
//
// A placeholder is `{{ path }}` or `{{ alias.path }}`; the optional leading
// alias segment is dropped, so `{{ enemy.name }}` and `{{ name }}` read the
// same field of the item. Paths are resolved with the selector evaluator
// against the item. A scalar item replaces every placeholder with itself.
package template

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ESETdropout/kframe/internal/reconcile"
	"github.com/ESETdropout/kframe/internal/selector"
	"github.com/ESETdropout/kframe/internal/tree"
)

// placeholder matches braces, an optional alias segment and a dotted path.
var placeholder = regexp.MustCompile(`{{\s*(\w*\.)?([\w.]+)\s*}}`)

// Template is a parsed item template.
type Template struct {
	source string
	eval   *selector.Evaluator
}

// Parse prepares source for rendering. It fails on an unterminated
// placeholder.
func Parse(source string, eval *selector.Evaluator) (*Template, error) {
	open := strings.Count(source, "{{")
	if open != strings.Count(source, "}}") {
		return nil, fmt.Errorf("template: unbalanced braces in %q", source)
	}
	if eval == nil {
		eval = selector.MustNew()
	}
	return &Template{source: strings.TrimSpace(source), eval: eval}, nil
}

// Execute renders the template for item. Missing paths, including paths
// through a missing intermediate segment, render as the empty string.
func (t *Template) Execute(item tree.Value) (string, error) {
	var execErr error
	out := placeholder.ReplaceAllStringFunc(t.source, func(match string) string {
		if execErr != nil {
			return ""
		}
		if tree.IsScalar(item) {
			return tree.ToString(item)
		}
		path := placeholder.FindStringSubmatch(match)[2]
		v, err := t.eval.Select(item, path, nil)
		if selector.IsPathResolutionError(err) {
			slog.Debug("template path unresolved", "path", path, "error", err)
			return ""
		}
		if err != nil {
			execErr = fmt.Errorf("template: %w", err)
			return ""
		}
		return tree.ToString(v)
	})
	if execErr != nil {
		return "", execErr
	}
	return out, nil
}

// Placeholders returns the item paths the template reads, alias stripped.
func (t *Template) Placeholders() []string {
	var paths []string
	for _, m := range placeholder.FindAllStringSubmatch(t.source, -1) {
		paths = append(paths, m[2])
	}
	return paths
}

// Renderer adapts a Template to reconcile.Renderer. Views are the rendered
// strings.
type Renderer struct {
	Template *Template
}

var _ reconcile.Renderer = Renderer{}

// Render implements reconcile.Renderer.
func (r Renderer) Render(item tree.Value) (reconcile.ViewNode, error) {
	return r.Template.Execute(item)
}
