// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package stringtable interns strings to dense integer indices for the columnar
// profile tables.
package stringtable // import "go.opentelemetry.io/profile-viewer/stringtable"

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is returned when an index does not refer to an interned string.
var ErrOutOfRange = errors.New("string index out of range")

// Table is an append-only bijection between strings and their insertion index.
//
// Tables are not safe for concurrent mutation. Threads share a Table between
// readers and only ever append to a Clone.
type Table struct {
	strings []string
	index   map[string]int
}

// New creates an empty Table.
func New() *Table {
	return &Table{
		index: make(map[string]int),
	}
}

// FromSlice creates a Table from a previously serialized, ordered slice of strings.
// The slice is copied. If the slice contains duplicates, the reverse lookup resolves
// to the first occurrence.
func FromSlice(strs []string) *Table {
	t := &Table{
		strings: make([]string, len(strs)),
		index:   make(map[string]int, len(strs)),
	}
	copy(t.strings, strs)
	for i, s := range t.strings {
		if _, exists := t.index[s]; !exists {
			t.index[s] = i
		}
	}
	return t
}

// Intern returns the index of s, appending it if it's not yet part of the table.
func (t *Table) Intern(s string) int {
	idx, _ := t.InternWithCheck(s)
	return idx
}

// InternWithCheck is like Intern, but additionally reports whether s was already present.
func (t *Table) InternWithCheck(s string) (int, bool) {
	if idx, exists := t.index[s]; exists {
		return idx, true
	}
	idx := len(t.strings)
	t.strings = append(t.strings, s)
	t.index[s] = idx
	return idx, false
}

// String returns the string stored at index i.
func (t *Table) String(i int) (string, error) {
	if i < 0 || i >= len(t.strings) {
		return "", fmt.Errorf("%w: %d (length %d)", ErrOutOfRange, i, len(t.strings))
	}
	return t.strings[i], nil
}

// MustString is like String but panics on an invalid index. It is meant for table
// columns that were validated on load.
func (t *Table) MustString(i int) string {
	s, err := t.String(i)
	if err != nil {
		panic(err)
	}
	return s
}

// IndexOf returns the index of s and whether it is present.
func (t *Table) IndexOf(s string) (int, bool) {
	idx, ok := t.index[s]
	return idx, ok
}

// Has reports whether s is interned.
func (t *Table) Has(s string) bool {
	_, ok := t.index[s]
	return ok
}

// Len returns the number of interned strings.
func (t *Table) Len() int {
	return len(t.strings)
}

// Strings returns a copy of the interned strings in index order.
func (t *Table) Strings() []string {
	ret := make([]string, len(t.strings))
	copy(ret, t.strings)
	return ret
}

// Clone returns an independent copy. Existing indices stay valid in the copy.
func (t *Table) Clone() *Table {
	return FromSlice(t.strings)
}
