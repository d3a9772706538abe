package selector

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ESETdropout/kframe/internal/tree"
)

// Iteration is the per-item scope of a selector evaluated inside a rendered
// list item.
type Iteration struct {
	// For is the item alias used in selectors, e.g. "item" in "item.name".
	For string

	// In is the dotted path of the source collection, e.g. "game.enemies".
	In string

	// Key is the item field used as the list key. Empty means the item's
	// positional index is the key.
	Key string

	// ItemKey is the key of the item this scope belongs to.
	ItemKey string
}

// matches reports whether path addresses the iteration item.
func (it *Iteration) matches(path string) bool {
	if it == nil || it.For == "" {
		return false
	}
	return path == it.For || strings.HasPrefix(path, it.For+".")
}

// resolveItem redirects path to the item of the iteration source and walks
// the remaining suffix on that item. A missing item resolves to null.
func (e *Evaluator) resolveItem(state tree.Value, path string, it *Iteration) (tree.Value, error) {
	source, err := e.walk(state, it.In)
	if err != nil {
		return nil, err
	}
	list, ok := source.(*tree.List)
	if !ok {
		return nil, &PathResolutionError{Path: it.In, Message: "iteration source is " + tree.Kind(source) + ", not a list"}
	}

	var item tree.Value
	if it.Key == "" {
		idx, err := strconv.Atoi(it.ItemKey)
		if err != nil {
			return tree.Null{}, nil
		}
		v, ok := list.At(idx)
		if !ok {
			return tree.Null{}, nil
		}
		item = v
	} else {
		idx := list.IndexFunc(func(v tree.Value) bool {
			m, ok := v.(*tree.Map)
			return ok && tree.ToString(m.Lookup(it.Key)) == it.ItemKey
		})
		if idx < 0 {
			return tree.Null{}, nil
		}
		item, _ = list.At(idx)
	}

	suffix := strings.TrimPrefix(strings.TrimPrefix(path, it.For), ".")
	if suffix == "" {
		return item, nil
	}
	return e.walk(item, suffix)
}

// child reads one path segment off v.
func child(v tree.Value, seg string) (tree.Value, bool) {
	switch val := v.(type) {
	case *tree.Map:
		return val.Get(seg)
	case *tree.List:
		if seg == "length" {
			return tree.Int(val.Len()), true
		}
		idx, err := strconv.Atoi(seg)
		if err != nil {
			return nil, false
		}
		return val.At(idx)
	case tree.String:
		if seg == "length" {
			return tree.Int(utf8.RuneCountInString(string(val))), true
		}
	}
	return nil, false
}

// ParseLiteral converts the right-hand token of a comparison into a value.
// Quoted tokens are strings with the quotes stripped; true, false, null and
// numbers are typed; anything else is a bare string.
func ParseLiteral(tok string) tree.Value {
	if tok == "" {
		return tree.String("")
	}
	if q := tok[0]; q == '\'' || q == '"' {
		return tree.String(strings.ReplaceAll(tok, string(q), ""))
	}
	switch tok {
	case "true":
		return tree.Bool(true)
	case "false":
		return tree.Bool(false)
	case "null", "undefined":
		return tree.Null{}
	}
	if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return tree.Int(i)
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return tree.Float(f)
	}
	return tree.String(tok)
}

// WatchKeys returns the top-level state keys an expression reads, in first
// appearance order. Operators, comparison literals and quoted tokens are
// skipped; negation prefixes are stripped.
func WatchKeys(expr string) []string {
	tokens := strings.Fields(expr)
	keys := make([]string, 0, len(tokens))
	seen := make(map[string]bool, len(tokens))

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if isComparison(tok) {
			i++ // skip the literal
			continue
		}
		if isOperator(tok) || strings.HasPrefix(tok, "'") || strings.HasPrefix(tok, `"`) {
			continue
		}
		key := TopKey(tok)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}

// TopKey returns the first path segment of a token, negation stripped.
func TopKey(token string) string {
	path, _ := stripNegation(strings.TrimSpace(token))
	if idx := strings.IndexByte(path, '.'); idx >= 0 {
		return path[:idx]
	}
	return path
}
