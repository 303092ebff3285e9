package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNotObject is returned when a JSON payload is valid but not an object.
var ErrNotObject = errors.New("payload is not a JSON object")

// DecodeRow decodes a JSON object payload into a Row.
// Numbers become int64 when integral and float64 otherwise.
func DecodeRow(data []byte) (Row, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("invalid JSON: trailing data after object")
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return Row(NormalizeJSON(obj).(map[string]any)), nil
}

// NormalizeJSON replaces json.Number values, recursively, with int64 or float64.
func NormalizeJSON(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, val := range t {
			t[k] = NormalizeJSON(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = NormalizeJSON(val)
		}
		return t
	default:
		return v
	}
}
