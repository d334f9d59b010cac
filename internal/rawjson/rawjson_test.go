// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package rawjson

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccessors(t *testing.T) {
	obj := Object{
		"f":    1.5,
		"i":    float64(3),
		"n":    json.Number("7"),
		"s":    "str",
		"o":    map[string]any{"k": "v"},
		"a":    []any{1.0},
		"null": nil,
	}

	f, ok := Float(obj, "f")
	assert.True(t, ok)
	assert.InDelta(t, 1.5, f, 0)

	_, ok = Int(obj, "f")
	assert.False(t, ok, "fractional numbers are not ints")
	assert.Equal(t, 3, IntOr(obj, "i", -1))
	assert.Equal(t, 7, IntOr(obj, "n", -1))
	assert.Equal(t, -1, IntOr(obj, "missing", -1))

	assert.Equal(t, "str", StringOr(obj, "s", ""))
	assert.Equal(t, "def", StringOr(obj, "f", "def"))

	o, ok := Obj(obj, "o")
	assert.True(t, ok)
	assert.Equal(t, "v", o["k"])

	a, ok := Array(obj, "a")
	assert.True(t, ok)
	assert.Len(t, a, 1)

	assert.True(t, Has(obj, "null"))
	assert.False(t, Has(obj, "missing"))
}
