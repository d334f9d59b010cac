// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package transform implements pure filters and call tree transforms over
// threads. Every function returns a new thread value and leaves the tables of
// its input untouched. Unaffected tables are shared between input and output.
package transform // import "go.opentelemetry.io/profile-viewer/transform"

import (
	"sort"
	"strings"

	"go.opentelemetry.io/profile-viewer/profile"
)

type stackKey struct {
	prefix int
	frame  int
}

// stackBuilder assembles a new stack table, optionally deduplicating rows
// by (prefix, frame).
type stackBuilder struct {
	table profile.StackTable
	dedup map[stackKey]int
}

func newStackBuilder(capacity int, dedup bool) *stackBuilder {
	b := &stackBuilder{
		table: profile.StackTable{
			Prefix: make([]int, 0, capacity),
			Frame:  make([]int, 0, capacity),
		},
	}
	if dedup {
		b.dedup = make(map[stackKey]int, capacity)
	}
	return b
}

func (b *stackBuilder) add(prefix, frame int) int {
	key := stackKey{prefix: prefix, frame: frame}
	if b.dedup != nil {
		if idx, ok := b.dedup[key]; ok {
			return idx
		}
	}
	idx := b.table.Length
	b.table.Prefix = append(b.table.Prefix, prefix)
	b.table.Frame = append(b.table.Frame, frame)
	b.table.Length++
	if b.dedup != nil {
		b.dedup[key] = idx
	}
	return idx
}

// updateThreadStacks returns a copy of t using stacks as its stack table and
// with every non-null sample stack passed through convert.
func updateThreadStacks(t *profile.Thread, stacks profile.StackTable,
	convert func(oldStack int) int) *profile.Thread {
	out := t.Clone()
	out.Stacks = stacks
	out.Samples = mapSampleStacks(t.Samples, convert)
	return out
}

func mapSampleStacks(samples profile.SamplesTable, convert func(int) int) profile.SamplesTable {
	newStacks := make([]int, samples.Length)
	for i, stack := range samples.Stack {
		if stack == profile.NoIndex {
			newStacks[i] = profile.NoIndex
			continue
		}
		newStacks[i] = convert(stack)
	}
	samples.Stack = newStacks
	return samples
}

// oldToNewLookup converts through a stack index mapping table.
func oldToNewLookup(oldToNew []int) func(int) int {
	return func(stack int) int { return oldToNew[stack] }
}

// FilterThreadToRange keeps the samples and markers with a time in
// [start, end). Sample times are expected to be sorted.
func FilterThreadToRange(t *profile.Thread, start, end float64) *profile.Thread {
	out := t.Clone()

	s := t.Samples
	lo := sort.SearchFloat64s(s.Time, start)
	hi := max(lo, sort.SearchFloat64s(s.Time, end))
	out.Samples = profile.SamplesTable{
		Time:   s.Time[lo:hi],
		Stack:  s.Stack[lo:hi],
		Length: hi - lo,
	}
	if s.Responsiveness != nil {
		out.Samples.Responsiveness = s.Responsiveness[lo:hi]
	}

	m := t.Markers
	markers := profile.MarkersTable{}
	for i := 0; i < m.Length; i++ {
		if m.Time[i] < start || m.Time[i] >= end {
			continue
		}
		markers.Time = append(markers.Time, m.Time[i])
		markers.Name = append(markers.Name, m.Name[i])
		markers.Data = append(markers.Data, m.Data[i])
		markers.Length++
	}
	out.Markers = markers
	return out
}

// FilterThreadByImplementation drops the frames of functions that don't match
// impl. Children of a dropped frame attach to its nearest surviving ancestor.
// Stacks that end up with identical (prefix, frame) pairs are merged.
func FilterThreadByImplementation(t *profile.Thread, impl profile.Implementation) *profile.Thread {
	if impl == profile.ImplementationCombined || impl == "" {
		return t
	}
	return filterThreadByFunc(t, func(fn int) bool {
		return t.FuncMatchesImplementation(fn, impl)
	})
}

func filterThreadByFunc(t *profile.Thread, keep func(fn int) bool) *profile.Thread {
	st := &t.Stacks
	b := newStackBuilder(st.Length, true)
	oldToNew := make([]int, st.Length)
	for stack := 0; stack < st.Length; stack++ {
		prefix := st.Prefix[stack]
		newPrefix := profile.NoIndex
		if prefix != profile.NoIndex {
			newPrefix = oldToNew[prefix]
		}
		frame := st.Frame[stack]
		if keep(t.Frames.Func[frame]) {
			oldToNew[stack] = b.add(newPrefix, frame)
		} else {
			oldToNew[stack] = newPrefix
		}
	}
	return updateThreadStacks(t, b.table, oldToNewLookup(oldToNew))
}

// InvertCallstack reverses the stack of every sample: the leaf function becomes
// the root. Only stacks referenced by samples are part of the new stack table.
func InvertCallstack(t *profile.Thread) *profile.Thread {
	st := &t.Stacks
	b := newStackBuilder(st.Length, true)
	converted := make(map[int]int)
	convert := func(leaf int) int {
		if newStack, ok := converted[leaf]; ok {
			return newStack
		}
		newStack := profile.NoIndex
		for s := leaf; s != profile.NoIndex; s = st.Prefix[s] {
			newStack = b.add(newStack, st.Frame[s])
		}
		converted[leaf] = newStack
		return newStack
	}
	samples := mapSampleStacks(t.Samples, convert)
	out := t.Clone()
	out.Stacks = b.table
	out.Samples = samples
	return out
}

// SearchTerms splits a search string into lower cased, non-empty terms.
func SearchTerms(search string) []string {
	var terms []string
	for _, term := range strings.Split(search, ",") {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			terms = append(terms, term)
		}
	}
	return terms
}

// FuncMatcher returns a memoizing predicate that reports whether the name,
// file name or resource name of a function contains any of the lower cased
// terms.
func FuncMatcher(t *profile.Thread, terms []string) func(fn int) bool {
	funcMatches := make(map[int]bool)
	return func(fn int) bool {
		if m, ok := funcMatches[fn]; ok {
			return m
		}
		m := false
		candidates := []string{t.FuncName(fn), t.ResourceName(fn)}
		if file := t.Funcs.FileName[fn]; file != profile.NoIndex {
			if s, err := t.StringTable.String(file); err == nil {
				candidates = append(candidates, s)
			}
		}
	search:
		for _, c := range candidates {
			c = strings.ToLower(c)
			for _, term := range terms {
				if strings.Contains(c, term) {
					m = true
					break search
				}
			}
		}
		funcMatches[fn] = m
		return m
	}
}

// FilterThreadToSearchString keeps the samples where any function on the
// root-to-leaf path matches any of the comma separated search terms. A function
// matches if its name, file name or resource name contains the term, ignoring
// case. The stack of other samples is set to profile.NoIndex.
func FilterThreadToSearchString(t *profile.Thread, search string) *profile.Thread {
	terms := SearchTerms(search)
	if len(terms) == 0 {
		return t
	}
	matchesFunc := FuncMatcher(t, terms)

	st := &t.Stacks
	stackMatches := make([]bool, st.Length)
	for stack := 0; stack < st.Length; stack++ {
		prefix := st.Prefix[stack]
		stackMatches[stack] = (prefix != profile.NoIndex && stackMatches[prefix]) ||
			matchesFunc(t.StackFunc(stack))
	}

	out := t.Clone()
	out.Samples = mapSampleStacks(t.Samples, func(stack int) int {
		if stackMatches[stack] {
			return stack
		}
		return profile.NoIndex
	})
	return out
}
