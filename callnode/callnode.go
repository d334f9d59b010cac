// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package callnode derives the call node table of a thread: the stack table
// with stacks deduplicated by their root-to-node function path.
package callnode // import "go.opentelemetry.io/profile-viewer/callnode"

import (
	"go.opentelemetry.io/profile-viewer/profile"
)

// Path is a root-to-node list of function indices.
type Path []int

// Table has one row per distinct (parent call node, function) pair.
type Table struct {
	Prefix []int
	Func   []int
	Depth  []int
	Length int
}

type nodeKey struct {
	prefix int
	fn     int
}

// Info is the call node table of a thread together with the mapping from
// stack index to call node index.
type Info struct {
	Table                     Table
	StackIndexToCallNodeIndex []int

	index map[nodeKey]int
}

// ComputeInfo builds the call node table. Stacks are visited in table order,
// so call node indices follow the order in which a function path first
// appears. Every stack row is mapped, whether it is sampled or not, so the
// table may hold nodes without samples. calltree hides nodes with a zero total.
func ComputeInfo(t *profile.Thread) *Info {
	st := &t.Stacks
	info := &Info{
		StackIndexToCallNodeIndex: make([]int, st.Length),
		index:                     make(map[nodeKey]int, st.Length),
	}
	table := &info.Table
	for stack := 0; stack < st.Length; stack++ {
		prefixStack := st.Prefix[stack]
		prefixNode := profile.NoIndex
		if prefixStack != profile.NoIndex {
			// Prefixes always refer to earlier rows.
			prefixNode = info.StackIndexToCallNodeIndex[prefixStack]
		}
		key := nodeKey{prefix: prefixNode, fn: t.Frames.Func[st.Frame[stack]]}
		node, ok := info.index[key]
		if !ok {
			node = table.Length
			depth := 0
			if prefixNode != profile.NoIndex {
				depth = table.Depth[prefixNode] + 1
			}
			table.Prefix = append(table.Prefix, prefixNode)
			table.Func = append(table.Func, key.fn)
			table.Depth = append(table.Depth, depth)
			table.Length++
			info.index[key] = node
		}
		info.StackIndexToCallNodeIndex[stack] = node
	}
	return info
}

// Child returns the call node for fn below parent, which may be
// profile.NoIndex for roots.
func (info *Info) Child(parent, fn int) (int, bool) {
	node, ok := info.index[nodeKey{prefix: parent, fn: fn}]
	return node, ok
}

// PathFromIndex returns the function path of a call node.
func (info *Info) PathFromIndex(node int) Path {
	if node == profile.NoIndex {
		return Path{}
	}
	path := make(Path, info.Table.Depth[node]+1)
	for i := len(path) - 1; node != profile.NoIndex; i-- {
		path[i] = info.Table.Func[node]
		node = info.Table.Prefix[node]
	}
	return path
}

// IndexFromPath returns the call node of a function path, or profile.NoIndex
// if no such call node exists.
func (info *Info) IndexFromPath(path Path) int {
	node := profile.NoIndex
	for _, fn := range path {
		child, ok := info.Child(node, fn)
		if !ok {
			return profile.NoIndex
		}
		node = child
	}
	return node
}

// SampleCallNodes maps every sample to its call node, or profile.NoIndex for
// samples without a stack.
func (info *Info) SampleCallNodes(t *profile.Thread) []int {
	nodes := make([]int, t.Samples.Length)
	for i, stack := range t.Samples.Stack {
		if stack == profile.NoIndex {
			nodes[i] = profile.NoIndex
			continue
		}
		nodes[i] = info.StackIndexToCallNodeIndex[stack]
	}
	return nodes
}

// ComputeMaxDepth returns the deepest call node depth reached by any sample.
func ComputeMaxDepth(t *profile.Thread, info *Info) int {
	maxDepth := 0
	for _, stack := range t.Samples.Stack {
		if stack == profile.NoIndex {
			continue
		}
		maxDepth = max(maxDepth, info.Table.Depth[info.StackIndexToCallNodeIndex[stack]])
	}
	return maxDepth
}

// PathsEqual reports whether two paths hold the same functions.
func PathsEqual(a, b Path) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// IsPrefix reports whether prefix is an ancestor of, or equal to, path.
func IsPrefix(prefix, path Path) bool {
	return len(prefix) <= len(path) && PathsEqual(prefix, path[:len(prefix)])
}
