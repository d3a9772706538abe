package compiler

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ESETdropout/kframe/internal/engine"
	"github.com/ESETdropout/kframe/internal/selector"
	"github.com/ESETdropout/kframe/internal/tree"
)

// Top-level definition fields.
const (
	FieldInitialState = "initialState"
	FieldNonTracked   = "nonBindedStateKeys"
	FieldActions      = "actions"
	FieldComputed     = "computed"
)

// Action is a named, ordered list of operations.
type Action struct {
	Name string
	Ops  []Op
	Pos  Position
}

// Computed is a state key derived from a selector after every action.
type Computed struct {
	Key      string
	Selector string
	Pos      Position
}

// Program is a compiled definition file.
type Program struct {
	// Name is the file name without extension.
	Name string

	// Path is the file the program was loaded from.
	Path string

	InitialState *tree.Map
	NonTracked   []string
	Actions      []Action
	Computed     []Computed

	eval *selector.Evaluator
}

// Load reads and compiles a definition file.
func Load(path string) (*Program, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	return Parse(path, data, format)
}

// Parse compiles definition source. filename is used for positions.
func Parse(filename string, data []byte, format Format) (*Program, error) {
	doc, err := decode(filename, data, format)
	if err != nil {
		return nil, err
	}
	return compile(doc)
}

func compile(doc *document) (*Program, error) {
	allowed := []string{FieldInitialState, FieldNonTracked, FieldActions, FieldComputed}
	for _, k := range doc.root.Keys() {
		if !slices.Contains(allowed, k) {
			return nil, doc.errorf(k, "unknown field (want one of %s)", strings.Join(allowed, ", "))
		}
	}

	name := filepath.Base(doc.filename)
	p := &Program{
		Name:         strings.TrimSuffix(name, filepath.Ext(name)),
		Path:         doc.filename,
		InitialState: tree.NewMap(),
		eval:         selector.MustNew(),
	}

	if v, ok := doc.root.Get(FieldInitialState); ok {
		m, isMap := v.(*tree.Map)
		if !isMap {
			return nil, doc.errorf(FieldInitialState, "must be a mapping, got %s", tree.Kind(v))
		}
		p.InitialState = m
	}

	if v, ok := doc.root.Get(FieldNonTracked); ok {
		keys, err := stringList(doc, FieldNonTracked, v)
		if err != nil {
			return nil, err
		}
		p.NonTracked = keys
	}

	if v, ok := doc.root.Get(FieldActions); ok {
		actions, isMap := v.(*tree.Map)
		if !isMap {
			return nil, doc.errorf(FieldActions, "must be a mapping, got %s", tree.Kind(v))
		}
		for _, name := range actions.Keys() {
			a, err := compileAction(doc, name, actions.Lookup(name))
			if err != nil {
				return nil, err
			}
			p.Actions = append(p.Actions, a)
		}
	}

	if v, ok := doc.root.Get(FieldComputed); ok {
		computed, isMap := v.(*tree.Map)
		if !isMap {
			return nil, doc.errorf(FieldComputed, "must be a mapping, got %s", tree.Kind(v))
		}
		for _, key := range computed.Keys() {
			path := join(FieldComputed, key)
			sel, isString := computed.Lookup(key).(tree.String)
			if !isString {
				return nil, doc.errorf(path, "must be a selector string")
			}
			if err := checkSelector(string(sel)); err != nil {
				return nil, doc.errorf(path, "%v", err)
			}
			p.Computed = append(p.Computed, Computed{Key: key, Selector: string(sel), Pos: doc.at(path)})
		}
	}

	// Computed keys exist from the start so observers can bind to them.
	if err := p.computeState(p.InitialState); err != nil {
		return nil, doc.errorf(FieldComputed, "%v", err)
	}

	return p, nil
}

func compileAction(doc *document, name string, v tree.Value) (Action, error) {
	path := join(FieldActions, name)
	a := Action{Name: name, Pos: doc.at(path)}

	list, ok := v.(*tree.List)
	if !ok {
		return a, doc.errorf(path, "must be a list of operations, got %s", tree.Kind(v))
	}

	var err error
	list.Range(func(i int, item tree.Value) bool {
		var op Op
		op, err = compileOp(doc, join(path, fmt.Sprint(i)), item)
		if err != nil {
			return false
		}
		a.Ops = append(a.Ops, op)
		return true
	})
	return a, err
}

func compileOp(doc *document, path string, v tree.Value) (Op, error) {
	m, ok := v.(*tree.Map)
	if !ok {
		return Op{}, doc.errorf(path, "operation must be a mapping, got %s", tree.Kind(v))
	}

	op := Op{Pos: doc.at(path)}
	for _, verb := range verbs {
		target, found := m.Get(string(verb))
		if !found {
			continue
		}
		if op.Verb != "" {
			return op, doc.errorf(path, "operation has both %q and %q", op.Verb, verb)
		}
		s, isString := target.(tree.String)
		if !isString || strings.TrimSpace(string(s)) == "" {
			return op, doc.errorf(join(path, string(verb)), "path must be a non-empty string")
		}
		op.Verb = verb
		op.Path = strings.TrimSpace(string(s))
	}
	if op.Verb == "" {
		return op, doc.errorf(path, "operation needs one of %v", verbs)
	}

	accepted := verbFields[op.Verb]
	for _, k := range m.Keys() {
		if k == string(op.Verb) {
			continue
		}
		if !slices.Contains(accepted, k) {
			return op, doc.errorf(join(path, k), "field not allowed for %s", op.Verb)
		}
	}

	if v, ok := m.Get("value"); ok {
		op.Value = v
	}
	if v, ok := m.Get("by"); ok {
		if _, isInt := v.(tree.Int); !isInt {
			if _, isFloat := v.(tree.Float); !isFloat {
				return op, doc.errorf(join(path, "by"), "must be a number, got %s", tree.Kind(v))
			}
		}
		op.By = v
	}
	if v, ok := m.Get("from"); ok {
		s, isString := v.(tree.String)
		if !isString {
			return op, doc.errorf(join(path, "from"), "must be a selector string")
		}
		if err := checkSelector(string(s)); err != nil {
			return op, doc.errorf(join(path, "from"), "%v", err)
		}
		op.From = string(s)
	}
	if v, ok := m.Get("where"); ok {
		s, isString := v.(tree.String)
		if !isString || s == "" {
			return op, doc.errorf(join(path, "where"), "must be a field name")
		}
		op.Where = string(s)
	}

	if op.Value != nil && op.From != "" {
		return op, doc.errorf(path, "value and from are mutually exclusive")
	}
	if (op.Verb == VerbSet || op.Verb == VerbPush || op.Verb == VerbRemove) && op.Value == nil && op.From == "" {
		return op, doc.errorf(path, "%s needs value or from", op.Verb)
	}
	return op, nil
}

// checkSelector rejects malformed selector syntax. Path errors are runtime
// matters and are ignored here.
func checkSelector(expr string) error {
	eval := selector.MustNew(selector.WithCacheSize(0), selector.WithLogger(slog.New(slog.DiscardHandler)))
	_, err := eval.Select(tree.NewMap(), expr, nil)
	if selector.IsSyntaxError(err) {
		return err
	}
	return nil
}

func stringList(doc *document, path string, v tree.Value) ([]string, error) {
	list, ok := v.(*tree.List)
	if !ok {
		return nil, doc.errorf(path, "must be a list of strings, got %s", tree.Kind(v))
	}
	out := make([]string, 0, list.Len())
	for i, item := range list.Items() {
		s, isString := item.(tree.String)
		if !isString {
			return nil, doc.errorf(join(path, fmt.Sprint(i)), "must be a string, got %s", tree.Kind(item))
		}
		out = append(out, string(s))
	}
	return out, nil
}

// Definition builds the store definition. Each call returns fresh handlers
// bound to the program's operations.
func (p *Program) Definition() engine.Definition {
	handlers := make(engine.HandlerTable, len(p.Actions))
	for _, a := range p.Actions {
		handlers[a.Name] = p.handler(a)
	}

	def := engine.Definition{
		InitialState:   p.InitialState,
		Handlers:       handlers,
		NonTrackedKeys: p.NonTracked,
	}
	if len(p.Computed) > 0 {
		def.ComputeState = func(state *tree.Map, _ string, _ tree.Value) error {
			return p.computeState(state)
		}
	}
	return def
}

// ActionNames returns the action names in file order.
func (p *Program) ActionNames() []string {
	names := make([]string, len(p.Actions))
	for i, a := range p.Actions {
		names[i] = a.Name
	}
	return names
}

func (p *Program) handler(a Action) engine.Handler {
	return func(state *tree.Map, payload tree.Value) error {
		for i, op := range a.Ops {
			if err := op.apply(p.eval, state, payload); err != nil {
				return fmt.Errorf("%s[%d] %s: %w", a.Name, i, op.Verb, err)
			}
		}
		return nil
	}
}

func (p *Program) computeState(state *tree.Map) error {
	for _, c := range p.Computed {
		v, err := p.eval.Select(state, c.Selector, nil)
		if err != nil {
			return fmt.Errorf("computed %q: %w", c.Key, err)
		}
		// Shared, not cloned: a fresh list every pass would always diff.
		state.Set(c.Key, v)
	}
	return nil
}
