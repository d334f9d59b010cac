// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package stringtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntern(t *testing.T) {
	for _, tt := range []struct {
		name  string
		table *Table
		value string

		wantIndex  int
		wantExists bool
		wantLen    int
	}{
		{
			name:      "with a value not yet in the table",
			table:     New(),
			value:     "foo",
			wantIndex: 0,
			wantLen:   1,
		},
		{
			name:       "with a duplicate value already in the table",
			table:      FromSlice([]string{"foo", "bar"}),
			value:      "bar",
			wantIndex:  1,
			wantExists: true,
			wantLen:    2,
		},
		{
			name:      "with a new value appended to a loaded table",
			table:     FromSlice([]string{"foo"}),
			value:     "baz",
			wantIndex: 1,
			wantLen:   2,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			idx, exists := tt.table.InternWithCheck(tt.value)
			assert.Equal(t, tt.wantIndex, idx)
			assert.Equal(t, tt.wantExists, exists)
			assert.Equal(t, tt.wantLen, tt.table.Len())

			s, err := tt.table.String(idx)
			require.NoError(t, err)
			assert.Equal(t, tt.value, s)
		})
	}
}

func TestStringOutOfRange(t *testing.T) {
	table := FromSlice([]string{"a"})

	_, err := table.String(1)
	require.ErrorIs(t, err, ErrOutOfRange)
	_, err = table.String(-1)
	require.ErrorIs(t, err, ErrOutOfRange)
	assert.Panics(t, func() { table.MustString(5) })
}

func TestFromSliceRoundTrip(t *testing.T) {
	in := []string{"(root)", "main", "0x1234", "main"}
	table := FromSlice(in)
	in[0] = "mutated"

	assert.Equal(t, 4, table.Len())
	assert.Equal(t, "(root)", table.MustString(0))

	idx, ok := table.IndexOf("main")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, []string{"(root)", "main", "0x1234", "main"}, table.Strings())
}

func TestCloneIsIndependent(t *testing.T) {
	table := FromSlice([]string{"a", "b"})
	clone := table.Clone()
	clone.Intern("c")

	assert.Equal(t, 2, table.Len())
	assert.False(t, table.Has("c"))
	assert.Equal(t, 3, clone.Len())
	assert.Equal(t, "b", clone.MustString(1))
}
