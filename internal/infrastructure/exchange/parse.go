package exchange

import (
	"encoding/json"
	"strconv"
)

// Ordered-candidate-key readers for heterogeneous exchange payloads. Every
// exchange names the same field differently ("lastPr", "lastPrice", "last");
// callers list candidates in preference order. Missing or garbled values
// become nil/zero, never an error.

// PickString returns the first candidate key holding a non-empty string.
func PickString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch s := v.(type) {
		case string:
			if s != "" {
				return s
			}
		case json.Number:
			return s.String()
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(s)
		}
	}
	return ""
}

// PickFloat returns the first candidate key parseable as a number, or nil.
func PickFloat(m map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if f, ok := AsFloat(v); ok {
			return &f
		}
	}
	return nil
}

// PickInt returns the first candidate key parseable as an integer, or nil.
func PickInt(m map[string]any, keys ...string) *int64 {
	if f := PickFloat(m, keys...); f != nil {
		n := int64(*f)
		return &n
	}
	return nil
}

// PickBool returns the first candidate key holding a boolean-like value.
func PickBool(m map[string]any, keys ...string) (bool, bool) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch b := v.(type) {
		case bool:
			return b, true
		case string:
			if parsed, err := strconv.ParseBool(b); err == nil {
				return parsed, true
			}
		case float64:
			return b != 0, true
		}
	}
	return false, false
}

// FloatOrZero dereferences a picked float, treating nil as zero.
func FloatOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// AsFloat converts a raw JSON value (float, string, json.Number) to a
// float64 when possible.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		if n == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
