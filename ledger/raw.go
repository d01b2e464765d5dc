package ledger

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Helpers over decoded JSON trees (map[string]any, []any, string, float64,
// bool, json.Number, nil). Every helper is total: wrong types fall back to
// the zero value instead of failing.

type rawObject map[string]any

func asObject(v any) (rawObject, bool) {
	m, ok := v.(map[string]any)
	return rawObject(m), ok && m != nil
}

func asArray(v any) ([]any, bool) {
	a, ok := v.([]any)
	return a, ok
}

// has reports whether key is present with a non-null value.
func (o rawObject) has(key string) bool {
	v, ok := o[key]
	return ok && v != nil
}

func (o rawObject) num(key string) float64 { return toNumber(o[key]) }
func (o rawObject) str(key string) string  { return toString(o[key]) }
func (o rawObject) flag(key string) bool   { return toBool(o[key]) }

// id returns the trimmed identity value, accepting numeric ids written by
// older clients.
func (o rawObject) id(key string) string {
	return strings.TrimSpace(toString(o[key]))
}

func toNumber(v any) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case json.Number:
		f = parseNumeric(t.String())
	case string:
		f = parseNumeric(t)
	case bool:
		if t {
			f = 1
		}
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func parseNumeric(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return ""
}

// toBool follows JavaScript truthiness for the scalar types JSON can carry.
func toBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case json.Number:
		return parseNumeric(t.String()) != 0
	case string:
		return t != ""
	}
	return false
}

// toRaw converts an arbitrary Go value into a JSON tree. Maps and slices
// of interface values are walked element by element; any other composite
// goes through encoding/json and becomes nil if it cannot be encoded.
func toRaw(v any) any {
	switch t := v.(type) {
	case nil, string, float64, bool, json.Number:
		return v
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = toRaw(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = toRaw(e)
		}
		return out
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
