package tree

import (
	"math"
	"strconv"
)

// Value is a sealed interface over the state tree variants.
// Only Null, Bool, Int, Float, String, *Map and *List implement it.
type Value interface {
	treeValue() // Sealed
}

// Null is the absent value. Missing selector targets resolve to Null.
type Null struct{}

func (Null) treeValue() {}

// Bool is a boolean scalar.
type Bool bool

func (Bool) treeValue() {}

// Int is an integer scalar.
type Int int64

func (Int) treeValue() {}

// Float is a floating point scalar.
type Float float64

func (Float) treeValue() {}

// String is a string scalar.
type String string

func (String) treeValue() {}

// Kind names the variant of a value for diagnostics.
func Kind(v Value) string {
	switch v.(type) {
	case nil, Null:
		return "null"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	case *Map:
		return "map"
	case *List:
		return "list"
	default:
		return "unknown"
	}
}

// IsScalar reports whether v is one of the scalar variants.
func IsScalar(v Value) bool {
	switch v.(type) {
	case nil, Null, Bool, Int, Float, String:
		return true
	}
	return false
}

// Truthy applies JavaScript truthiness: null, false, 0, NaN and "" are falsy,
// every other value (including empty maps and lists) is truthy.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case nil, Null:
		return false
	case Bool:
		return bool(val)
	case Int:
		return val != 0
	case Float:
		f := float64(val)
		return f != 0 && !math.IsNaN(f)
	case String:
		return val != ""
	default:
		return true
	}
}

// Equal compares two values with strict-equality semantics.
// Scalars compare by value (Int and Float compare numerically), maps and
// lists compare by identity.
func Equal(a, b Value) bool {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}

	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		switch bv := b.(type) {
		case Int:
			return av == bv
		case Float:
			return float64(av) == float64(bv)
		}
		return false
	case Float:
		switch bv := b.(type) {
		case Float:
			return av == bv
		case Int:
			return float64(av) == float64(bv)
		}
		return false
	case *Map:
		bv, ok := b.(*Map)
		return ok && av == bv
	case *List:
		bv, ok := b.(*List)
		return ok && av == bv
	}
	return false
}

// ToString renders a value the way it appears when used as a list key or
// interpolated into a template. Null renders as the empty string.
func ToString(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return ""
	case Bool:
		return strconv.FormatBool(bool(val))
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return formatFloat(float64(val))
	case String:
		return string(val)
	case *Map:
		return "[object Object]"
	case *List:
		parts := make([]byte, 0, 16)
		for i, item := range val.items {
			if i > 0 {
				parts = append(parts, ',')
			}
			parts = append(parts, ToString(item)...)
		}
		return string(parts)
	}
	return ""
}

// formatFloat follows ECMAScript Number#toString closely enough for keys and
// canonical output: plain notation inside [1e-6, 1e21), exponent outside.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'e', -1, 64)
}

// Of converts a plain Go scalar into a Value. It exists for terse test and
// handler code; use FromGo for nested data.
func Of(v any) Value {
	val, err := FromGo(v)
	if err != nil {
		return Null{}
	}
	return val
}
