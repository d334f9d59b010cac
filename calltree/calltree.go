// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package calltree aggregates the samples of a thread into a tree of call
// nodes with total and self time per node.
package calltree // import "go.opentelemetry.io/profile-viewer/calltree"

import (
	"cmp"
	"math"
	"slices"

	"go.opentelemetry.io/profile-viewer/callnode"
	"go.opentelemetry.io/profile-viewer/internal/numfmt"
	"go.opentelemetry.io/profile-viewer/profile"
	"go.opentelemetry.io/profile-viewer/transform"
)

// Options control how a tree is presented. They don't change aggregation.
type Options struct {
	// Inverted marks a tree built from an inverted thread: roots are the
	// innermost functions and children are their callers.
	Inverted bool
	// Search holds the comma separated terms used by MatchingCallNodes.
	Search string
}

// NodeData holds the raw timing of a call node.
type NodeData struct {
	FuncName      string
	Total         float64
	TotalRelative float64
	Self          float64
	SelfRelative  float64
}

// DisplayData holds the formatted strings shown for a call node.
type DisplayData struct {
	Name             string
	Lib              string
	TotalTime        string
	TotalTimePercent string
	SelfTime         string
	// Dim is set for functions that are still shown as raw addresses.
	Dim bool
	// Icon is the origin of web hosted functions, empty otherwise.
	Icon string
}

// CallTree is an immutable aggregation over a thread. Nodes without any
// sampled time are not part of the tree.
type CallTree struct {
	thread   *profile.Thread
	info     *callnode.Info
	opts     Options
	self     []float64
	total    []float64
	roots    []int
	children [][]int

	rootTotal       float64
	integerInterval bool
}

// New builds the tree for the samples of t. info must be derived from a
// thread with the same stack table as t, usually t itself or the thread it
// was range filtered from. Every sample weighs interval milliseconds.
func New(t *profile.Thread, info *callnode.Info, interval float64, opts Options) *CallTree {
	n := info.Table.Length
	tree := &CallTree{
		thread:          t,
		info:            info,
		opts:            opts,
		self:            make([]float64, n),
		total:           make([]float64, n),
		children:        make([][]int, n),
		integerInterval: interval == math.Trunc(interval),
	}

	for _, node := range info.SampleCallNodes(t) {
		if node != profile.NoIndex {
			tree.self[node] += interval
		}
	}
	copy(tree.total, tree.self)
	// Children always come after their parent in the call node table.
	for node := n - 1; node >= 0; node-- {
		if prefix := info.Table.Prefix[node]; prefix != profile.NoIndex {
			tree.total[prefix] += tree.total[node]
		}
	}

	for node := 0; node < n; node++ {
		if tree.total[node] == 0 {
			continue
		}
		prefix := info.Table.Prefix[node]
		if prefix == profile.NoIndex {
			tree.roots = append(tree.roots, node)
			tree.rootTotal += tree.total[node]
		} else {
			tree.children[prefix] = append(tree.children[prefix], node)
		}
	}

	byTotal := func(a, b int) int {
		return cmp.Compare(tree.total[b], tree.total[a])
	}
	slices.SortStableFunc(tree.roots, byTotal)
	for _, c := range tree.children {
		slices.SortStableFunc(c, byTotal)
	}
	return tree
}

// Roots returns the root call nodes, heaviest first.
func (t *CallTree) Roots() []int {
	return t.roots
}

// Children returns the sampled children of a node, heaviest first. Nodes
// with equal totals keep call node table order.
func (t *CallTree) Children(node int) []int {
	return t.children[node]
}

// HasChildren reports whether a node has sampled children.
func (t *CallTree) HasChildren(node int) bool {
	return len(t.children[node]) > 0
}

// Parent returns the parent of a node, profile.NoIndex for roots.
func (t *CallTree) Parent(node int) int {
	return t.info.Table.Prefix[node]
}

// Depth returns the depth of a node, 0 for roots.
func (t *CallTree) Depth(node int) int {
	return t.info.Table.Depth[node]
}

// RootTotal is the sum of all sample durations.
func (t *CallTree) RootTotal() float64 {
	return t.rootTotal
}

// Info returns the call node info the tree is built on.
func (t *CallTree) Info() *callnode.Info {
	return t.info
}

// Inverted reports whether the tree was built from an inverted thread.
func (t *CallTree) Inverted() bool {
	return t.opts.Inverted
}

func (t *CallTree) relative(v float64) float64 {
	if t.rootTotal == 0 {
		return 0
	}
	return v / t.rootTotal
}

// NodeData returns the timing of a node.
func (t *CallTree) NodeData(node int) NodeData {
	fn := t.info.Table.Func[node]
	return NodeData{
		FuncName:      t.thread.FuncName(fn),
		Total:         t.total[node],
		TotalRelative: t.relative(t.total[node]),
		Self:          t.self[node],
		SelfRelative:  t.relative(t.self[node]),
	}
}

// DisplayData returns the formatted data of a node.
func (t *CallTree) DisplayData(node int) DisplayData {
	data := t.NodeData(node)
	fn := t.info.Table.Func[node]
	self := "—"
	if data.Self != 0 {
		self = numfmt.DependingOnInterval(t.integerInterval, data.Self)
	}
	d := DisplayData{
		Name:             data.FuncName,
		Lib:              t.thread.ResourceName(fn),
		TotalTime:        numfmt.DependingOnInterval(t.integerInterval, data.Total),
		TotalTimePercent: numfmt.Percent(data.TotalRelative),
		SelfTime:         self,
		Dim:              profile.IsHexAddress(data.FuncName),
	}
	if res := t.thread.Funcs.Resource[fn]; res != profile.NoIndex &&
		t.thread.Resources.Type[res] == profile.ResourceTypeWebhost {
		if host, err := t.thread.StringTable.String(t.thread.Resources.Host[res]); err == nil {
			d.Icon = host
		}
	}
	return d
}

// Walk visits the tree depth first in display order. Children of a node are
// skipped when visit returns false.
func (t *CallTree) Walk(visit func(node, depth int) bool) {
	var walk func(nodes []int, depth int)
	walk = func(nodes []int, depth int) {
		for _, node := range nodes {
			if visit(node, depth) {
				walk(t.children[node], depth+1)
			}
		}
	}
	walk(t.roots, 0)
}

// MatchingCallNodes returns the sampled call nodes whose function matches
// the search terms of the tree options, in call node order.
func (t *CallTree) MatchingCallNodes() []int {
	terms := transform.SearchTerms(t.opts.Search)
	if len(terms) == 0 {
		return nil
	}
	matches := transform.FuncMatcher(t.thread, terms)
	var nodes []int
	for node, fn := range t.info.Table.Func {
		if t.total[node] != 0 && matches(fn) {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// PathOf returns the function path of a node.
func (t *CallTree) PathOf(node int) callnode.Path {
	return t.info.PathFromIndex(node)
}
