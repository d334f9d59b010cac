// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package profile defines the processed, columnar representation of a captured
// execution profile: threads made of samples, stacks, frames, funcs, resources and
// markers, all referring to each other by table index.
//
// Table values are treated as immutable once a profile is loaded. Functions that
// derive new threads replace whole tables (or columns) and never write into the
// slices of their input.
package profile // import "go.opentelemetry.io/profile-viewer/profile"

import (
	"go.opentelemetry.io/profile-viewer/stringtable"
)

// NoIndex is the null value for any index column.
const NoIndex = -1

// Implementation filters select which frames of a stack are retained.
type Implementation string

const (
	ImplementationCombined Implementation = "combined"
	ImplementationJS       Implementation = "js"
	ImplementationCpp      Implementation = "cpp"
)

// ResourceType classifies the origin of a function.
type ResourceType int

const (
	ResourceTypeUnknown ResourceType = iota
	ResourceTypeLibrary
	ResourceTypeAddon
	ResourceTypeWebhost
	ResourceTypeOtherhost
	ResourceTypeURL
)

// Category is an entry of the profile-wide category list referenced by frames.
type Category struct {
	Name  string
	Color string
}

// Lib describes a binary that was loaded into a process.
type Lib struct {
	Start      uint64
	End        uint64
	Offset     uint64
	Arch       string
	Name       string
	Path       string
	DebugName  string
	DebugPath  string
	BreakpadID string
}

// PausedRange is a time range where the profiler didn't collect samples.
type PausedRange struct {
	StartTime *float64
	EndTime   *float64
	Reason    string
}

// Meta holds the profile-wide metadata.
type Meta struct {
	// Interval is the sampling interval in milliseconds.
	Interval float64
	// StartTime is the wall clock start in milliseconds since the epoch.
	StartTime    float64
	ShutdownTime *float64
	Version      int
	ProcessType  int
	Product      string
	Platform     string
	OSCPU        string
	ABI          string
	Categories   []Category
}

// Profile is the processed profile: an ordered list of threads from all processes.
type Profile struct {
	Meta         Meta
	Threads      []*Thread
	PausedRanges []PausedRange
}

// SamplesTable has one row per sampled instant.
type SamplesTable struct {
	Time  []float64
	Stack []int
	// Responsiveness is optional. If present it has Length entries, missing
	// values are NaN.
	Responsiveness []float64
	Length         int
}

// StackTable forms a forest: every row pairs a frame with its parent (prefix) stack.
type StackTable struct {
	Prefix []int
	Frame  []int
	Length int
}

// FrameTable has one row per distinct call site.
type FrameTable struct {
	Address        []int64
	Category       []int
	Func           []int
	Implementation []int
	Line           []int
	Column         []int
	Length         int
}

// FuncTable has one row per function.
type FuncTable struct {
	Name          []int
	Resource      []int
	IsJS          []bool
	RelevantForJS []bool
	FileName      []int
	LineNumber    []int
	ColumnNumber  []int
	// Address is the library relative address for native functions, -1 otherwise.
	Address []int64
	Length  int
}

// ResourceTable describes where functions come from (libraries, hosts, addons).
type ResourceTable struct {
	Lib    []int
	Name   []int
	Host   []int
	Type   []ResourceType
	Length int
}

// MarkersTable holds discrete and interval events of a thread.
type MarkersTable struct {
	Time   []float64
	Name   []int
	Data   []MarkerPayload
	Length int
}

// Thread is a named collection of columnar tables.
type Thread struct {
	Name        string
	ProcessType string
	PID         string
	TID         int

	RegisterTime        float64
	UnregisterTime      *float64
	ProcessStartupTime  float64
	ProcessShutdownTime *float64

	Samples     SamplesTable
	Stacks      StackTable
	Frames      FrameTable
	Funcs       FuncTable
	Resources   ResourceTable
	Markers     MarkersTable
	StringTable *stringtable.Table
	Libs        []Lib
}

// Clone returns a shallow copy of the thread. Tables are shared with the
// original until they get replaced on the copy.
func (t *Thread) Clone() *Thread {
	c := *t
	return &c
}

// FuncName returns the name of a function, or the empty string for invalid indices.
func (t *Thread) FuncName(funcIndex int) string {
	if funcIndex < 0 || funcIndex >= t.Funcs.Length {
		return ""
	}
	s, err := t.StringTable.String(t.Funcs.Name[funcIndex])
	if err != nil {
		return ""
	}
	return s
}

// StackFunc returns the function of the frame of a stack.
func (t *Thread) StackFunc(stackIndex int) int {
	return t.Frames.Func[t.Stacks.Frame[stackIndex]]
}

// StackFuncPath returns the root-to-leaf function path of a stack.
func (t *Thread) StackFuncPath(stackIndex int) []int {
	var path []int
	for s := stackIndex; s != NoIndex; s = t.Stacks.Prefix[s] {
		path = append(path, t.StackFunc(s))
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// ResourceName returns the name of the resource of a function, if any.
func (t *Thread) ResourceName(funcIndex int) string {
	res := t.Funcs.Resource[funcIndex]
	if res == NoIndex || res >= t.Resources.Length {
		return ""
	}
	s, err := t.StringTable.String(t.Resources.Name[res])
	if err != nil {
		return ""
	}
	return s
}

// FuncMatchesImplementation reports whether a function survives an
// implementation filter.
func (t *Thread) FuncMatchesImplementation(funcIndex int, impl Implementation) bool {
	switch impl {
	case ImplementationJS:
		return t.Funcs.IsJS[funcIndex] || t.Funcs.RelevantForJS[funcIndex]
	case ImplementationCpp:
		if t.Funcs.IsJS[funcIndex] {
			return false
		}
		// JIT code addresses show up as native funcs without a library.
		return !(t.Funcs.Resource[funcIndex] == NoIndex && IsHexAddress(t.FuncName(funcIndex)))
	default:
		return true
	}
}

// IsHexAddress reports whether s looks like a raw code address (0x1f2e...).
func IsHexAddress(s string) bool {
	if len(s) < 3 || s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return false
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
