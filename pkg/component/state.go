package component

import (
	"errors"
	"fmt"
	"math"
	"reflect"
)

// ErrNotJSONSafe is returned when a value cannot be represented in JSON.
var ErrNotJSONSafe = errors.New("component: value is not JSON-safe")

// State is the externally serializable representation of a component:
// maps with string keys, lists, strings, numbers, booleans and nil.
type State map[string]any

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

// Map returns the state as a plain map, for encoding.
func (s State) Map() map[string]any {
	return map[string]any(s)
}

// NormalizeState validates s and returns a deep copy in which every nested
// container is a map[string]any or []any.
func NormalizeState(s map[string]any) (State, error) {
	if s == nil {
		return State{}, nil
	}
	out := make(State, len(s))
	for k, v := range s {
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrNotJSONSafe, k, err)
		}
		out[k] = nv
	}
	return out, nil
}

// NormalizeValue validates a single value for storage in a State.
func NormalizeValue(v any) (any, error) {
	nv, err := normalizeValue(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSONSafe, err)
	}
	return nv, nil
}

func normalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return x, nil
	case float32:
		return checkFloat(float64(x))
	case float64:
		return checkFloat(x)
	case State:
		return normalizeMap(map[string]any(x))
	case map[string]any:
		return normalizeMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			ne, err := normalizeValue(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %v", i, err)
			}
			out[i] = ne
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			ne, err := normalizeValue(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %v", i, err)
			}
			out[i] = ne
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map key type %s", rv.Type().Key())
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			ne, err := normalizeValue(iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("%s: %v", iter.Key().String(), err)
			}
			out[iter.Key().String()] = ne
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}

func normalizeMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, e := range m {
		ne, err := normalizeValue(e)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", k, err)
		}
		out[k] = ne
	}
	return out, nil
}

func checkFloat(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number %v", f)
	}
	return f, nil
}

// cloneValue deep-copies normalized values. Scalars are returned as-is.
func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneValue(e)
		}
		return out
	case State:
		return map[string]any(x.Clone())
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// toNumber converts numeric state or event values.
// integral reports whether the value carries no fractional part.
func toNumber(v any) (n float64, integral bool, ok bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true, true
	case int8:
		return float64(x), true, true
	case int16:
		return float64(x), true, true
	case int32:
		return float64(x), true, true
	case int64:
		return float64(x), true, true
	case uint:
		return float64(x), true, true
	case uint8:
		return float64(x), true, true
	case uint16:
		return float64(x), true, true
	case uint32:
		return float64(x), true, true
	case uint64:
		return float64(x), true, true
	case float32:
		f := float64(x)
		return f, f == math.Trunc(f), true
	case float64:
		return x, x == math.Trunc(x), true
	default:
		return 0, false, false
	}
}
