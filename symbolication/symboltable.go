// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package symbolication resolves the raw code addresses of native functions to
// symbol names and feeds the results back into threads as batched updates.
package symbolication // import "go.opentelemetry.io/profile-viewer/symbolication"

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sort"
)

// ErrSymbolicationFailure is returned when the symbol table of a library
// could not be obtained or is unusable.
var ErrSymbolicationFailure = errors.New("symbolication failure")

// Symbol is a named code address, relative to the start of its library.
type Symbol struct {
	Address uint32
	Name    string
}

// SymbolTable is the symbol information of one library build. Addrs is sorted
// ascending. The name of symbol i is Buffer[Index[i]:Index[i+1]].
type SymbolTable struct {
	Addrs  []uint32
	Index  []uint32
	Buffer []byte
}

// NewSymbolTable builds a table from an unordered list of symbols. For
// duplicate addresses the first symbol wins.
func NewSymbolTable(symbols []Symbol) *SymbolTable {
	sorted := slices.Clone(symbols)
	slices.SortStableFunc(sorted, func(a, b Symbol) int {
		return cmp.Compare(a.Address, b.Address)
	})
	sorted = slices.CompactFunc(sorted, func(a, b Symbol) bool {
		return a.Address == b.Address
	})

	st := &SymbolTable{
		Addrs: make([]uint32, 0, len(sorted)),
		Index: make([]uint32, 0, len(sorted)+1),
	}
	st.Index = append(st.Index, 0)
	for _, s := range sorted {
		st.Addrs = append(st.Addrs, s.Address)
		st.Buffer = append(st.Buffer, s.Name...)
		st.Index = append(st.Index, uint32(len(st.Buffer)))
	}
	return st
}

// Len returns the number of symbols.
func (st *SymbolTable) Len() int {
	return len(st.Addrs)
}

// Validate checks the table layout.
func (st *SymbolTable) Validate() error {
	if len(st.Index) != len(st.Addrs)+1 {
		return fmt.Errorf("%w: %d addresses but %d index entries",
			ErrSymbolicationFailure, len(st.Addrs), len(st.Index))
	}
	for i := 1; i < len(st.Addrs); i++ {
		if st.Addrs[i-1] > st.Addrs[i] {
			return fmt.Errorf("%w: addresses not sorted at %d", ErrSymbolicationFailure, i)
		}
	}
	for i := 1; i < len(st.Index); i++ {
		if st.Index[i-1] > st.Index[i] || int(st.Index[i]) > len(st.Buffer) {
			return fmt.Errorf("%w: bad name index at %d", ErrSymbolicationFailure, i)
		}
	}
	return nil
}

// Lookup returns the index of the symbol containing addr: the last symbol
// starting at or before addr. It returns -1 if addr precedes every symbol.
func (st *SymbolTable) Lookup(addr uint64) int {
	if addr > uint64(^uint32(0)) {
		addr = uint64(^uint32(0))
	}
	a := uint32(addr)
	return sort.Search(len(st.Addrs), func(i int) bool { return st.Addrs[i] > a }) - 1
}

// Name returns the name of symbol i.
func (st *SymbolTable) Name(i int) string {
	return string(st.Buffer[st.Index[i]:st.Index[i+1]])
}

// Address returns the start address of symbol i.
func (st *SymbolTable) Address(i int) uint32 {
	return st.Addrs[i]
}
