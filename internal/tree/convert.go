package tree

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// FromGo converts a decoded Go value (as produced by encoding/json, yaml.v3 or
// handwritten literals) into a Value. Values that already are tree values pass
// through unchanged. Plain Go maps have no order, so their keys are sorted.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case json.Number:
		return fromNumber(string(val))
	case []any:
		l := &List{items: make([]Value, 0, len(val)), dirty: true}
		for i, elem := range val {
			item, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			l.items = append(l.items, item)
		}
		return l, nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			item, err := FromGo(val[k])
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			m.Set(k, item)
		}
		return m, nil
	case *yaml.Node:
		return FromYAML(val)
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func fromNumber(s string) (Value, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return Float(f), nil
}

// ToGo converts a Value into plain Go data: nil, bool, int64, float64,
// string, []any and map[string]any. Map order is lost.
func ToGo(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case String:
		return string(val)
	case *List:
		out := make([]any, len(val.items))
		for i, item := range val.items {
			out[i] = ToGo(item)
		}
		return out
	case *Map:
		out := make(map[string]any, len(val.keys))
		for _, k := range val.keys {
			out[k] = ToGo(val.entries[k])
		}
		return out
	}
	return nil
}

// FromYAML converts a decoded YAML node into a Value, preserving mapping key
// order. Document nodes are unwrapped; aliases are followed.
func FromYAML(n *yaml.Node) (Value, error) {
	if n == nil {
		return Null{}, nil
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null{}, nil
		}
		return FromYAML(n.Content[0])
	case yaml.AliasNode:
		return FromYAML(n.Alias)
	case yaml.MappingNode:
		m := NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			val, err := FromYAML(n.Content[i+1])
			if err != nil {
				return nil, fmt.Errorf("line %d: key %q: %w", n.Content[i].Line, key, err)
			}
			m.Set(key, val)
		}
		return m, nil
	case yaml.SequenceNode:
		l := &List{items: make([]Value, 0, len(n.Content)), dirty: true}
		for i, c := range n.Content {
			val, err := FromYAML(c)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			l.items = append(l.items, val)
		}
		return l, nil
	case yaml.ScalarNode:
		return fromYAMLScalar(n)
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node kind %d", n.Line, n.Kind)
	}
}

func fromYAMLScalar(n *yaml.Node) (Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return Null{}, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, err
		}
		return Int(i), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, err
		}
		return Float(f), nil
	default:
		return String(n.Value), nil
	}
}
