package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ESETdropout/kframe/internal/tree"
)

// Validation codes.
const (
	ErrNoActions         = "E101" // definition declares no actions
	ErrUnknownNonTracked = "E102" // non-tracked key missing from initialState
	ErrComputedTracked   = "E103" // computed key is also non-tracked
	ErrMissingStateKey   = "E104" // operation reads a key missing from initialState
	ErrNotAList          = "E105" // list operation on a non-list initial value
	ErrEmptyAction       = "E106" // action without operations
)

// ValidationError is a semantic problem in a compiled program.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a program against the initial state it declares.
// It returns every problem found.
func Validate(p *Program) []ValidationError {
	var errs []ValidationError

	if len(p.Actions) == 0 {
		errs = append(errs, ValidationError{
			Field:   FieldActions,
			Message: "at least one action is required",
			Code:    ErrNoActions,
		})
	}

	for i, key := range p.NonTracked {
		if !p.InitialState.Has(key) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", FieldNonTracked, i),
				Message: fmt.Sprintf("key %q is not in initialState", key),
				Code:    ErrUnknownNonTracked,
			})
		}
	}

	for _, c := range p.Computed {
		if slices.Contains(p.NonTracked, c.Key) {
			errs = append(errs, ValidationError{
				Field:   join(FieldComputed, c.Key),
				Message: "computed key is non-tracked; observers would never see it change",
				Code:    ErrComputedTracked,
				Line:    c.Pos.Line,
			})
		}
	}

	for _, a := range p.Actions {
		if len(a.Ops) == 0 {
			errs = append(errs, ValidationError{
				Field:   join(FieldActions, a.Name),
				Message: "action has no operations",
				Code:    ErrEmptyAction,
				Line:    a.Pos.Line,
			})
		}
		for i, op := range a.Ops {
			errs = append(errs, validateOp(p, fmt.Sprintf("%s.%s[%d]", FieldActions, a.Name, i), op)...)
		}
	}

	return errs
}

func validateOp(p *Program, field string, op Op) []ValidationError {
	var errs []ValidationError
	segs := strings.Split(op.Path, ".")

	switch op.Verb {
	case VerbInc, VerbToggle, VerbRemove, VerbClear, VerbDelete:
		if !p.InitialState.Has(segs[0]) && !isComputed(p, segs[0]) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%s reads %q, which is not in initialState", op.Verb, segs[0]),
				Code:    ErrMissingStateKey,
				Line:    op.Pos.Line,
			})
		}
	}

	if op.Verb == VerbPush || op.Verb == VerbRemove {
		if v, ok := getPath(p.InitialState, segs); ok {
			if _, isList := v.(*tree.List); !isList {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("%s on %q, which is %s in initialState", op.Verb, op.Path, tree.Kind(v)),
					Code:    ErrNotAList,
					Line:    op.Pos.Line,
				})
			}
		}
	}
	return errs
}

func isComputed(p *Program, key string) bool {
	return slices.ContainsFunc(p.Computed, func(c Computed) bool { return c.Key == key })
}
