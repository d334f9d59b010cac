// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package testprofile builds small threads from textual call paths for tests.
//
// A path is a space separated list of function names from root to leaf, e.g.
// "A B C". A name with a ".js" suffix becomes a JS function, and a "@N" suffix
// selects line N, which yields a distinct frame for the same function.
package testprofile // import "go.opentelemetry.io/profile-viewer/internal/testprofile"

import (
	"math"
	"strconv"
	"strings"

	"go.opentelemetry.io/profile-viewer/profile"
	"go.opentelemetry.io/profile-viewer/stringtable"
)

type frameKey struct {
	fn   int
	line int
}

type stackKey struct {
	prefix int
	frame  int
}

// Builder incrementally assembles a thread.
type Builder struct {
	thread *profile.Thread
	funcs  map[string]int
	frames map[frameKey]int
	stacks map[stackKey]int
}

// NewBuilder returns a builder for an empty thread called name.
func NewBuilder(name string) *Builder {
	return &Builder{
		thread: &profile.Thread{
			Name:        name,
			ProcessType: "default",
			PID:         "1",
			StringTable: stringtable.New(),
		},
		funcs:  make(map[string]int),
		frames: make(map[frameKey]int),
		stacks: make(map[stackKey]int),
	}
}

// Func returns the index of the named function, adding it on first use.
func (b *Builder) Func(name string) int {
	if idx, ok := b.funcs[name]; ok {
		return idx
	}
	f := &b.thread.Funcs
	idx := f.Length
	f.Name = append(f.Name, b.thread.StringTable.Intern(name))
	f.Resource = append(f.Resource, profile.NoIndex)
	f.IsJS = append(f.IsJS, strings.HasSuffix(name, ".js"))
	f.RelevantForJS = append(f.RelevantForJS, false)
	f.FileName = append(f.FileName, profile.NoIndex)
	f.LineNumber = append(f.LineNumber, profile.NoIndex)
	f.ColumnNumber = append(f.ColumnNumber, profile.NoIndex)
	f.Address = append(f.Address, -1)
	f.Length++
	b.funcs[name] = idx
	return idx
}

func (b *Builder) frame(token string) int {
	name, line := token, profile.NoIndex
	if at := strings.LastIndexByte(token, '@'); at > 0 {
		if n, err := strconv.Atoi(token[at+1:]); err == nil {
			name, line = token[:at], n
		}
	}
	fn := b.Func(name)
	key := frameKey{fn: fn, line: line}
	if idx, ok := b.frames[key]; ok {
		return idx
	}
	f := &b.thread.Frames
	idx := f.Length
	f.Address = append(f.Address, -1)
	f.Category = append(f.Category, 0)
	f.Func = append(f.Func, fn)
	f.Implementation = append(f.Implementation, profile.NoIndex)
	f.Line = append(f.Line, line)
	f.Column = append(f.Column, profile.NoIndex)
	f.Length++
	b.frames[key] = idx
	return idx
}

// Stack returns the stack index of a path, adding missing stack rows. The
// empty path returns profile.NoIndex.
func (b *Builder) Stack(path string) int {
	prefix := profile.NoIndex
	for _, token := range strings.Fields(path) {
		key := stackKey{prefix: prefix, frame: b.frame(token)}
		idx, ok := b.stacks[key]
		if !ok {
			s := &b.thread.Stacks
			idx = s.Length
			s.Prefix = append(s.Prefix, prefix)
			s.Frame = append(s.Frame, key.frame)
			s.Length++
			b.stacks[key] = idx
		}
		prefix = idx
	}
	return prefix
}

// Sample appends a sample at time t.
func (b *Builder) Sample(t float64, path string) *Builder {
	s := &b.thread.Samples
	s.Time = append(s.Time, t)
	s.Stack = append(s.Stack, b.Stack(path))
	if s.Responsiveness != nil {
		s.Responsiveness = append(s.Responsiveness, math.NaN())
	}
	s.Length++
	return b
}

// SampleWithResponsiveness appends a sample carrying an event delay value.
func (b *Builder) SampleWithResponsiveness(t float64, path string, resp float64) *Builder {
	s := &b.thread.Samples
	if s.Responsiveness == nil {
		s.Responsiveness = make([]float64, s.Length)
		for i := range s.Responsiveness {
			s.Responsiveness[i] = math.NaN()
		}
	}
	b.Sample(t, path)
	s.Responsiveness[s.Length-1] = resp
	return b
}

// Marker appends a marker.
func (b *Builder) Marker(t float64, name string, data profile.MarkerPayload) *Builder {
	m := &b.thread.Markers
	m.Time = append(m.Time, t)
	m.Name = append(m.Name, b.thread.StringTable.Intern(name))
	m.Data = append(m.Data, data)
	m.Length++
	return b
}

// Thread returns the built thread. The builder must not be used afterwards.
func (b *Builder) Thread() *profile.Thread {
	return b.thread
}

// FromPaths builds a thread with one sample per path, at times 0, 1, 2, ...
func FromPaths(paths ...string) *profile.Thread {
	b := NewBuilder("GeckoMain")
	for i, p := range paths {
		b.Sample(float64(i), p)
	}
	return b.Thread()
}

// FromTimedPaths builds a thread with one sample per path at the given times.
func FromTimedPaths(times []float64, paths ...string) *profile.Thread {
	b := NewBuilder("GeckoMain")
	for i, p := range paths {
		b.Sample(times[i], p)
	}
	return b.Thread()
}

// SamplePaths renders the function path of every sample as a space separated
// string. Samples without stack render as the empty string.
func SamplePaths(t *profile.Thread) []string {
	out := make([]string, t.Samples.Length)
	for i, stack := range t.Samples.Stack {
		out[i] = StackPath(t, stack)
	}
	return out
}

// StackPath renders the function path of a stack.
func StackPath(t *profile.Thread, stack int) string {
	if stack == profile.NoIndex {
		return ""
	}
	path := t.StackFuncPath(stack)
	names := make([]string, len(path))
	for i, fn := range path {
		names[i] = t.FuncName(fn)
	}
	return strings.Join(names, " ")
}

// PathTotals counts samples per rendered path.
func PathTotals(t *profile.Thread) map[string]int {
	totals := make(map[string]int)
	for _, p := range SamplePaths(t) {
		totals[p]++
	}
	return totals
}

// Lib adds a loaded library together with its resource and returns the
// resource index.
func (b *Builder) Lib(lib profile.Lib) int {
	t := b.thread
	t.Libs = append(t.Libs, lib)
	r := &t.Resources
	idx := r.Length
	r.Lib = append(r.Lib, len(t.Libs)-1)
	r.Name = append(r.Name, t.StringTable.Intern(lib.Name))
	r.Host = append(r.Host, profile.NoIndex)
	r.Type = append(r.Type, profile.ResourceTypeLibrary)
	r.Length++
	return idx
}

// NativeFunc declares name as a native function of a library resource at a
// library relative address. Paths using name refer to this function.
func (b *Builder) NativeFunc(name string, resource int, address int64) int {
	fn := b.Func(name)
	b.thread.Funcs.Resource[fn] = resource
	b.thread.Funcs.Address[fn] = address
	return fn
}
