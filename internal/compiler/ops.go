package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ESETdropout/kframe/internal/selector"
	"github.com/ESETdropout/kframe/internal/tree"
)

// Verb is a declarative state operation.
type Verb string

const (
	VerbSet    Verb = "set"
	VerbInc    Verb = "inc"
	VerbToggle Verb = "toggle"
	VerbPush   Verb = "push"
	VerbRemove Verb = "remove"
	VerbClear  Verb = "clear"
	VerbDelete Verb = "delete"
)

var verbs = []Verb{VerbSet, VerbInc, VerbToggle, VerbPush, VerbRemove, VerbClear, VerbDelete}

// operand fields each verb accepts besides its path.
var verbFields = map[Verb][]string{
	VerbSet:    {"value", "from"},
	VerbInc:    {"by", "from"},
	VerbToggle: nil,
	VerbPush:   {"value", "from"},
	VerbRemove: {"where", "value", "from"},
	VerbClear:  nil,
	VerbDelete: nil,
}

// Op is one compiled operation.
type Op struct {
	Verb  Verb
	Path  string
	Value tree.Value
	From  string
	By    tree.Value
	Where string
	Pos   Position
}

func (op Op) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", op.Verb, op.Path)
	if op.From != "" {
		fmt.Fprintf(&b, " from %q", op.From)
	}
	if op.Value != nil {
		fmt.Fprintf(&b, " value %s", tree.ToString(op.Value))
	}
	if op.By != nil {
		fmt.Fprintf(&b, " by %s", tree.ToString(op.By))
	}
	if op.Where != "" {
		fmt.Fprintf(&b, " where %s", op.Where)
	}
	return b.String()
}

// apply runs op against state. scope is {payload, state} for `from`.
// Lists the path passes through are touched when the op changed something
// below them, so list observers see in-place item edits.
func (op Op) apply(eval *selector.Evaluator, state *tree.Map, payload tree.Value) error {
	segs := strings.Split(op.Path, ".")
	mutated, err := op.mutate(eval, state, payload, segs)
	if err != nil {
		return err
	}
	if mutated {
		touchEnclosingLists(state, segs)
	}
	return nil
}

func (op Op) mutate(eval *selector.Evaluator, state *tree.Map, payload tree.Value, segs []string) (bool, error) {
	switch op.Verb {
	case VerbSet:
		v, err := op.operand(eval, state, payload)
		if err != nil {
			return false, err
		}
		return true, setPath(state, segs, v)

	case VerbInc:
		by := op.By
		if op.From != "" {
			v, err := op.operand(eval, state, payload)
			if err != nil {
				return false, err
			}
			by = v
		}
		if by == nil {
			by = tree.Int(1)
		}
		cur, _ := getPath(state, segs)
		sum, err := add(cur, by)
		if err != nil {
			return false, err
		}
		return true, setPath(state, segs, sum)

	case VerbToggle:
		cur, _ := getPath(state, segs)
		return true, setPath(state, segs, tree.Bool(!tree.Truthy(cur)))

	case VerbPush:
		v, err := op.operand(eval, state, payload)
		if err != nil {
			return false, err
		}
		l, err := listAt(state, segs, true)
		if err != nil {
			return false, err
		}
		l.Push(v)
		return true, nil

	case VerbRemove:
		v, err := op.operand(eval, state, payload)
		if err != nil {
			return false, err
		}
		l, err := listAt(state, segs, false)
		if err != nil {
			return false, err
		}
		removed := l.RemoveFunc(func(item tree.Value) bool {
			if op.Where == "" {
				return tree.Equal(item, v)
			}
			m, ok := item.(*tree.Map)
			return ok && tree.Equal(m.Lookup(op.Where), v)
		})
		return removed > 0, nil

	case VerbClear:
		cur, ok := getPath(state, segs)
		if !ok {
			return false, nil
		}
		switch c := cur.(type) {
		case *tree.List:
			c.Clear()
		case *tree.Map:
			for _, k := range c.Keys() {
				c.Delete(k)
			}
		default:
			return false, fmt.Errorf("%s: cannot clear %s", op.Path, tree.Kind(cur))
		}
		return true, nil

	case VerbDelete:
		parent, ok := getPath(state, segs[:len(segs)-1])
		if !ok {
			return false, nil
		}
		m, isMap := parent.(*tree.Map)
		if !isMap {
			return false, fmt.Errorf("%s: cannot delete from %s", op.Path, tree.Kind(parent))
		}
		return m.Delete(segs[len(segs)-1]), nil
	}

	return false, fmt.Errorf("unknown verb %q", op.Verb)
}

// operand returns a private copy of the op's value or selected value, so
// state never aliases the definition or another subtree.
func (op Op) operand(eval *selector.Evaluator, state *tree.Map, payload tree.Value) (tree.Value, error) {
	if op.From == "" {
		if op.Value == nil {
			return tree.Null{}, nil
		}
		return tree.Clone(op.Value), nil
	}
	scope := tree.MapOf(tree.P("payload", payload), tree.P("state", state))
	v, err := eval.Select(scope, op.From, nil)
	if err != nil {
		return nil, fmt.Errorf("from %q: %w", op.From, err)
	}
	return tree.Clone(v), nil
}

func add(cur, by tree.Value) (tree.Value, error) {
	switch c := cur.(type) {
	case nil, tree.Null:
		cur = tree.Int(0)
	case tree.Int, tree.Float:
	default:
		return nil, fmt.Errorf("cannot increment %s", tree.Kind(c))
	}

	ci, curInt := cur.(tree.Int)
	switch b := by.(type) {
	case tree.Int:
		if curInt {
			return ci + b, nil
		}
		return cur.(tree.Float) + tree.Float(b), nil
	case tree.Float:
		if curInt {
			return tree.Float(ci) + b, nil
		}
		return cur.(tree.Float) + b, nil
	}
	return nil, fmt.Errorf("cannot increment by %s", tree.Kind(by))
}

func child(v tree.Value, seg string) (tree.Value, bool) {
	switch c := v.(type) {
	case *tree.Map:
		return c.Get(seg)
	case *tree.List:
		idx, err := strconv.Atoi(seg)
		if err != nil {
			return nil, false
		}
		return c.At(idx)
	}
	return nil, false
}

func getPath(state *tree.Map, segs []string) (tree.Value, bool) {
	var cur tree.Value = state
	for _, seg := range segs {
		next, ok := child(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// touchEnclosingLists marks dirty every list that strictly encloses the
// value at segs.
func touchEnclosingLists(state *tree.Map, segs []string) {
	var cur tree.Value = state
	for _, seg := range segs[:len(segs)-1] {
		if l, ok := cur.(*tree.List); ok {
			l.Touch()
		}
		next, ok := child(cur, seg)
		if !ok {
			return
		}
		cur = next
	}
	if l, ok := cur.(*tree.List); ok {
		l.Touch()
	}
}

// parentOf walks to the container of the last segment, creating missing
// intermediate maps.
func parentOf(state *tree.Map, segs []string) (tree.Value, error) {
	var cur tree.Value = state
	for i, seg := range segs[:len(segs)-1] {
		next, ok := child(cur, seg)
		if !ok {
			m, isMap := cur.(*tree.Map)
			if !isMap {
				return nil, fmt.Errorf("%s: no element %q", strings.Join(segs[:i+1], "."), seg)
			}
			next = tree.NewMap()
			m.Set(seg, next)
		}
		cur = next
	}
	return cur, nil
}

func setPath(state *tree.Map, segs []string, v tree.Value) error {
	parent, err := parentOf(state, segs)
	if err != nil {
		return err
	}
	last := segs[len(segs)-1]

	switch p := parent.(type) {
	case *tree.Map:
		p.Set(last, v)
		return nil
	case *tree.List:
		idx, err := strconv.Atoi(last)
		if err != nil {
			return fmt.Errorf("%s: list index %q is not a number", strings.Join(segs, "."), last)
		}
		return p.SetAt(idx, v)
	}
	return fmt.Errorf("%s: cannot set a field on %s", strings.Join(segs, "."), tree.Kind(parent))
}

// listAt returns the list at segs. With create, a missing or null entry is
// replaced by a new list.
func listAt(state *tree.Map, segs []string, create bool) (*tree.List, error) {
	cur, ok := getPath(state, segs)
	if l, isList := cur.(*tree.List); ok && isList {
		return l, nil
	}
	_, isNull := cur.(tree.Null)
	if create && (!ok || isNull) {
		l := tree.NewList()
		if err := setPath(state, segs, l); err != nil {
			return nil, err
		}
		return l, nil
	}
	if !ok {
		return nil, fmt.Errorf("%s: no such list", strings.Join(segs, "."))
	}
	return nil, fmt.Errorf("%s: expected list, got %s", strings.Join(segs, "."), tree.Kind(cur))
}
