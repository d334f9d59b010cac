// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package symbolication // import "go.opentelemetry.io/profile-viewer/symbolication"

import (
	"go.opentelemetry.io/profile-viewer/profile"
)

// ApplyFunctionMerging returns a thread whose frames point to the merge
// targets of their funcs. Func rows are kept, merged away funcs simply become
// unreferenced.
func ApplyFunctionMerging(t *profile.Thread, oldFuncToNewFunc map[int]int) *profile.Thread {
	if len(oldFuncToNewFunc) == 0 {
		return t
	}
	frameFunc := make([]int, t.Frames.Length)
	for i, fn := range t.Frames.Func[:t.Frames.Length] {
		if n, ok := oldFuncToNewFunc[fn]; ok {
			fn = n
		}
		frameFunc[i] = fn
	}
	out := t.Clone()
	out.Frames.Func = frameFunc
	return out
}

// SetFuncNames returns a thread with new names for the given funcs. Names are
// appended to a copy of the string table, existing indices stay valid.
func SetFuncNames(t *profile.Thread, funcIndices []int, funcNames []string) *profile.Thread {
	if len(funcIndices) == 0 {
		return t
	}
	strings := t.StringTable.Clone()
	names := make([]int, t.Funcs.Length)
	copy(names, t.Funcs.Name)
	for i, fn := range funcIndices {
		if fn < 0 || fn >= len(names) || i >= len(funcNames) {
			continue
		}
		names[fn] = strings.Intern(funcNames[i])
	}
	out := t.Clone()
	out.StringTable = strings
	out.Funcs.Name = names
	return out
}

// ApplyUpdate applies a coalesced update to a thread: merging first, then
// naming.
func ApplyUpdate(t *profile.Thread, u *FunctionsUpdate) *profile.Thread {
	if u == nil {
		return t
	}
	return SetFuncNames(ApplyFunctionMerging(t, u.OldFuncToNewFunc), u.FuncIndices, u.FuncNames)
}
