package registry

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Type is the value type a property accepts.
type Type int

const (
	Float Type = iota
	Int
	Bool
	String
)

func (t Type) String() string {
	switch t {
	case Float:
		return "float"
	case Int:
		return "int"
	case Bool:
		return "bool"
	case String:
		return "string"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Property describes one configurable parameter of a plugin.
type Property struct {
	Key      string
	Type     Type
	Required bool
	Default  any // used when the key is absent and not Required
	Doc      string
}

// Values is a resolved property bag: every value is a float64, int, bool or
// string.
type Values map[string]any

// Keys returns the keys in sorted order.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders "k=v;..." in key order.
func (v Values) String() string {
	parts := make([]string, 0, len(v))
	for _, k := range v.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v[k]))
	}
	return strings.Join(parts, ";")
}

// Float returns the float64 stored under key, or 0.
func (v Values) Float(key string) float64 {
	f, _ := v[key].(float64)
	return f
}

// Int returns the int stored under key, or 0.
func (v Values) Int(key string) int {
	i, _ := v[key].(int)
	return i
}

// Bool returns the bool stored under key, or false.
func (v Values) Bool(key string) bool {
	b, _ := v[key].(bool)
	return b
}

// Str returns the string stored under key, or "".
func (v Values) Str(key string) string {
	s, _ := v[key].(string)
	return s
}

// coerce converts raw to the property's type. Integral floats are accepted
// for Int properties because sweep variables are always real-valued.
func coerce(t Type, raw any) (any, error) {
	switch t {
	case Float:
		switch x := raw.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int:
			return float64(x), nil
		case int64:
			return float64(x), nil
		}
	case Int:
		switch x := raw.(type) {
		case int:
			return x, nil
		case int64:
			return int(x), nil
		case float64:
			if x == math.Trunc(x) && !math.IsInf(x, 0) && math.Abs(x) <= math.MaxInt32 {
				return int(x), nil
			}
			return nil, fmt.Errorf("%v is not an integer", x)
		}
	case Bool:
		if x, ok := raw.(bool); ok {
			return x, nil
		}
	case String:
		if x, ok := raw.(string); ok {
			return x, nil
		}
	}
	return nil, fmt.Errorf("cannot use %v (%T) as %s", raw, raw, t)
}
