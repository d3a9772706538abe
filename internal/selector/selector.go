package selector

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/ESETdropout/kframe/internal/tree"
)

// Operator tokens.
const (
	OpAnd       = "&&"
	OpOr        = "||"
	OpEq        = "=="
	OpStrictEq  = "==="
	OpNotEq     = "!="
	OpStrictNEq = "!=="
)

// DefaultCacheSize is the default number of memoized expressions.
const DefaultCacheSize = 4096

// Evaluator resolves selector expressions. It is safe for concurrent use.
type Evaluator struct {
	logger *slog.Logger
	cache  *ristretto.Cache[string, []string]
}

// Option configures an Evaluator.
type Option func(*evaluatorConfig)

type evaluatorConfig struct {
	logger    *slog.Logger
	cacheSize int64
}

// WithLogger sets the logger used for missing-segment diagnostics.
// Default: slog.Default() at the time of the diagnostic.
func WithLogger(l *slog.Logger) Option {
	return func(c *evaluatorConfig) {
		c.logger = l
	}
}

// WithCacheSize sets the number of memoized token sequences.
// Zero disables the memo.
func WithCacheSize(n int) Option {
	return func(c *evaluatorConfig) {
		c.cacheSize = int64(n)
	}
}

// New creates an Evaluator.
func New(opts ...Option) (*Evaluator, error) {
	cfg := evaluatorConfig{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Evaluator{logger: cfg.logger}
	if cfg.cacheSize > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[string, []string]{
			NumCounters: cfg.cacheSize * 10,
			MaxCost:     cfg.cacheSize,
			BufferItems: 64,

			IgnoreInternalCost: true,
		})
		if err != nil {
			return nil, fmt.Errorf("create token cache: %w", err)
		}
		e.cache = cache
	}
	return e, nil
}

// MustNew is like New but panics on error.
func MustNew(opts ...Option) *Evaluator {
	e, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// Close releases the token cache.
func (e *Evaluator) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}

var std = MustNew()

// Select evaluates expr against state with the package default Evaluator.
func Select(state tree.Value, expr string, it *Iteration) (tree.Value, error) {
	return std.Select(state, expr, it)
}

// Select evaluates expr against state. it may be nil.
func (e *Evaluator) Select(state tree.Value, expr string, it *Iteration) (tree.Value, error) {
	tokens := e.tokenize(expr)
	if len(tokens) == 0 {
		return nil, &SyntaxError{Selector: expr, Token: -1, Message: "empty selector"}
	}
	if len(tokens) == 1 {
		return e.Resolve(state, tokens[0], it)
	}

	// Comparison pass: fold `operand OP literal` into a boolean.
	operands := make([]operand, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if !isComparison(tok) {
			operands = append(operands, operand{text: tok, index: i})
			continue
		}

		if len(operands) == 0 || operands[len(operands)-1].isOperator() {
			return nil, &SyntaxError{Selector: expr, Token: i, Message: fmt.Sprintf("%s has no left operand", tok)}
		}
		if i+1 >= len(tokens) || isOperator(tokens[i+1]) {
			return nil, &SyntaxError{Selector: expr, Token: i, Message: fmt.Sprintf("%s has no right operand", tok)}
		}

		left := operands[len(operands)-1]
		operands = operands[:len(operands)-1]
		lv, err := e.operandValue(state, left, it)
		if err != nil {
			return nil, err
		}
		eq := tree.Equal(lv, ParseLiteral(tokens[i+1]))
		if strings.HasPrefix(tok, "!") {
			eq = !eq
		}
		operands = append(operands, operand{value: tree.Bool(eq), resolved: true, index: i})
		i++
	}

	if len(operands) == 1 {
		return e.operandValue(state, operands[0], it)
	}

	// Combinator pass: strictly left to right, every operand resolved.
	if len(operands)%2 == 0 {
		return nil, &SyntaxError{Selector: expr, Token: operands[len(operands)-1].index, Message: "dangling operator"}
	}
	if operands[0].isOperator() {
		return nil, &SyntaxError{Selector: expr, Token: operands[0].index, Message: "expression starts with an operator"}
	}
	running, err := e.operandValue(state, operands[0], it)
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(operands); i += 2 {
		op := operands[i]
		if op.resolved || (op.text != OpAnd && op.text != OpOr) {
			return nil, &SyntaxError{Selector: expr, Token: op.index, Message: fmt.Sprintf("expected && or ||, got %q", op.describe())}
		}
		next := operands[i+1]
		if next.isOperator() {
			return nil, &SyntaxError{Selector: expr, Token: next.index, Message: fmt.Sprintf("%s has no right operand", op.text)}
		}
		rhs, err := e.operandValue(state, next, it)
		if err != nil {
			return nil, err
		}

		switch op.text {
		case OpOr:
			if !tree.Truthy(running) {
				running = rhs
			}
		case OpAnd:
			if tree.Truthy(running) {
				running = rhs
			}
		}
	}
	return running, nil
}

// Resolve resolves a single path token, including a leading ! or !!.
func (e *Evaluator) Resolve(state tree.Value, token string, it *Iteration) (tree.Value, error) {
	path, negation := stripNegation(token)

	var (
		v   tree.Value
		err error
	)
	if it.matches(path) {
		v, err = e.resolveItem(state, path, it)
	} else {
		v, err = e.walk(state, path)
	}
	if err != nil {
		return nil, err
	}

	switch negation {
	case 2:
		return tree.Bool(tree.Truthy(v)), nil
	case 1:
		return tree.Bool(!tree.Truthy(v)), nil
	}
	return v, nil
}

// walk follows a dotted path from root.
func (e *Evaluator) walk(root tree.Value, path string) (tree.Value, error) {
	segments := strings.Split(path, ".")
	cur := root
	for i, seg := range segments {
		if _, isNull := cur.(tree.Null); isNull || cur == nil {
			return nil, &PathResolutionError{Path: path, Segment: seg, Message: "cannot read property of null"}
		}

		next, found := child(cur, seg)
		if found {
			cur = next
			continue
		}
		if i < len(segments)-1 {
			e.log().Warn("selector segment not found",
				"path", path,
				"segment", seg,
				"segments", segments,
			)
		}
		cur = tree.Null{}
	}
	return cur, nil
}

func (e *Evaluator) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}

func (e *Evaluator) tokenize(expr string) []string {
	if e.cache != nil {
		if tokens, ok := e.cache.Get(expr); ok {
			return tokens
		}
	}
	tokens := strings.Fields(expr)
	if e.cache != nil {
		e.cache.Set(expr, tokens, 1)
	}
	return tokens
}

func (e *Evaluator) operandValue(state tree.Value, op operand, it *Iteration) (tree.Value, error) {
	if op.resolved {
		return op.value, nil
	}
	return e.Resolve(state, op.text, it)
}

// operand is a token in the combinator pass: either raw text or a value
// already produced by the comparison pass.
type operand struct {
	text     string
	value    tree.Value
	resolved bool
	index    int
}

func (o operand) isOperator() bool {
	return !o.resolved && isOperator(o.text)
}

func (o operand) describe() string {
	if o.resolved {
		return tree.ToString(o.value)
	}
	return o.text
}

func isComparison(tok string) bool {
	switch tok {
	case OpEq, OpStrictEq, OpNotEq, OpStrictNEq:
		return true
	}
	return false
}

func isOperator(tok string) bool {
	return tok == OpAnd || tok == OpOr || isComparison(tok)
}

// stripNegation removes a leading ! or !! and reports how many were removed.
func stripNegation(token string) (string, int) {
	if strings.HasPrefix(token, "!!") {
		return token[2:], 2
	}
	if strings.HasPrefix(token, "!") {
		return token[1:], 1
	}
	return token, 0
}
