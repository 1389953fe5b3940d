// Package livedata fetches per-candidate live JSON and turns it into a
// rendered fragment, gated by an optional validation expression.
package livedata

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Value is a decoded live JSON document: map[string]any for objects,
// []any for arrays, string/float64/bool for scalars, nil for null.
type Value struct {
	data any
}

// ParseValue decodes a JSON payload into a Value. Numbers decode as float64.
func ParseValue(raw []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var data any
	if err := dec.Decode(&data); err != nil {
		return Value{}, fmt.Errorf("parse live data: %w", err)
	}
	return Value{data: normalize(data)}, nil
}

// normalize rewrites json.Number leaves to float64 so expressions and
// templates see plain numbers.
func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	default:
		return v
	}
}

// Raw returns the decoded document.
func (v Value) Raw() any { return v.data }

// Object returns the document as a JSON object, or false.
func (v Value) Object() (map[string]any, bool) {
	m, ok := v.data.(map[string]any)
	return m, ok
}

// Array returns the document as a JSON array, or false.
func (v Value) Array() ([]any, bool) {
	a, ok := v.data.([]any)
	return a, ok
}

// Field returns a top-level object field, or false when the document is not
// an object or the field is absent.
func (v Value) Field(name string) (any, bool) {
	m, ok := v.data.(map[string]any)
	if !ok {
		return nil, false
	}
	f, ok := m[name]
	return f, ok
}
