// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package rawjson provides typed accessors for profiles decoded into generic
// JSON trees (map[string]any / []any).
package rawjson // import "go.opentelemetry.io/profile-viewer/internal/rawjson"

import (
	"encoding/json"
	"math"
)

// Object is a decoded JSON object.
type Object = map[string]any

// Float returns the numeric value stored at key.
func Float(obj Object, key string) (float64, bool) {
	return AsFloat(obj[key])
}

// AsFloat converts a decoded JSON number to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// FloatOr returns the numeric value at key or def.
func FloatOr(obj Object, key string, def float64) float64 {
	if f, ok := Float(obj, key); ok {
		return f
	}
	return def
}

// Int returns the integral value stored at key.
func Int(obj Object, key string) (int, bool) {
	return AsInt(obj[key])
}

// AsInt converts a decoded JSON number to int, rejecting fractional values.
func AsInt(v any) (int, bool) {
	f, ok := AsFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// IntOr returns the integral value at key or def.
func IntOr(obj Object, key string, def int) int {
	if i, ok := Int(obj, key); ok {
		return i
	}
	return def
}

// String returns the string stored at key.
func String(obj Object, key string) (string, bool) {
	s, ok := obj[key].(string)
	return s, ok
}

// StringOr returns the string at key or def.
func StringOr(obj Object, key, def string) string {
	if s, ok := String(obj, key); ok {
		return s
	}
	return def
}

// Obj returns the object stored at key.
func Obj(obj Object, key string) (Object, bool) {
	o, ok := obj[key].(map[string]any)
	return o, ok
}

// Array returns the array stored at key.
func Array(obj Object, key string) ([]any, bool) {
	a, ok := obj[key].([]any)
	return a, ok
}

// Has reports whether key is present, even if its value is null.
func Has(obj Object, key string) bool {
	_, ok := obj[key]
	return ok
}
