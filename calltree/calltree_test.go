// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package calltree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/profile-viewer/callnode"
	"go.opentelemetry.io/profile-viewer/calltree"
	"go.opentelemetry.io/profile-viewer/internal/testprofile"
	"go.opentelemetry.io/profile-viewer/profile"
	"go.opentelemetry.io/profile-viewer/transform"
)

func build(th *profile.Thread, interval float64, opts calltree.Options) *calltree.CallTree {
	return calltree.New(th, callnode.ComputeInfo(th), interval, opts)
}

func TestSharedStackTotals(t *testing.T) {
	th := testprofile.FromTimedPaths([]float64{0, 10, 20},
		"root funcA funcB", "root funcA funcB", "root funcA funcB")
	tree := build(th, 10, calltree.Options{})

	assert.Equal(t, 30.0, tree.RootTotal())
	require.Len(t, tree.Roots(), 1)
	root := tree.Roots()[0]

	expected := []struct {
		name  string
		total float64
		self  float64
	}{
		{"root", 30, 0},
		{"funcA", 30, 0},
		{"funcB", 30, 30},
	}
	node := root
	for i, e := range expected {
		data := tree.NodeData(node)
		assert.Equal(t, e.name, data.FuncName)
		assert.Equal(t, e.total, data.Total)
		assert.Equal(t, e.self, data.Self)
		assert.Equal(t, 1.0, data.TotalRelative)
		assert.Equal(t, i, tree.Depth(node))
		if i < len(expected)-1 {
			require.True(t, tree.HasChildren(node))
			child := tree.Children(node)[0]
			assert.Equal(t, node, tree.Parent(child))
			node = child
		}
	}
	assert.False(t, tree.HasChildren(node))
	assert.Equal(t, profile.NoIndex, tree.Parent(root))

	leaf := tree.DisplayData(node)
	assert.Equal(t, "funcB", leaf.Name)
	assert.Equal(t, "30", leaf.TotalTime)
	assert.Equal(t, "100%", leaf.TotalTimePercent)
	assert.Equal(t, "30", leaf.SelfTime)
	assert.Equal(t, "—", tree.DisplayData(root).SelfTime)
}

func TestChildrenOrder(t *testing.T) {
	th := testprofile.FromPaths("A B", "A C", "A C", "A", "D")
	tree := build(th, 1, calltree.Options{})

	names := func(nodes []int) []string {
		out := make([]string, len(nodes))
		for i, n := range nodes {
			out[i] = tree.NodeData(n).FuncName
		}
		return out
	}
	assert.Equal(t, []string{"A", "D"}, names(tree.Roots()))
	a := tree.Roots()[0]
	assert.Equal(t, []string{"C", "B"}, names(tree.Children(a)))
	assert.Equal(t, 4.0, tree.NodeData(a).Total)
	assert.Equal(t, 1.0, tree.NodeData(a).Self)
	assert.Equal(t, 0.8, tree.NodeData(a).TotalRelative)

	var visited []string
	tree.Walk(func(node, depth int) bool {
		visited = append(visited, tree.NodeData(node).FuncName)
		return depth == 0 && tree.NodeData(node).FuncName == "A"
	})
	assert.Equal(t, []string{"A", "C", "B", "D"}, visited)
}

func TestUnsampledStacksAreHidden(t *testing.T) {
	b := testprofile.NewBuilder("GeckoMain")
	b.Sample(0, "A B")
	b.Stack("A C")
	tree := build(b.Thread(), 1, calltree.Options{})

	require.Len(t, tree.Roots(), 1)
	assert.Len(t, tree.Children(tree.Roots()[0]), 1)
}

func TestConservation(t *testing.T) {
	b := testprofile.NewBuilder("GeckoMain")
	paths := []string{"A B C", "A B D", "A E C", "A B B C", "", "F a.js", "F a.js b.js"}
	for i, p := range paths {
		b.Sample(float64(i), p)
	}
	th := b.Thread()

	variants := map[string]*profile.Thread{
		"plain":    th,
		"range":    transform.FilterThreadToRange(th, 1, 5),
		"search":   transform.FilterThreadToSearchString(th, "c,b.js"),
		"js":       transform.FilterThreadByImplementation(th, profile.ImplementationJS),
		"cpp":      transform.FilterThreadByImplementation(th, profile.ImplementationCpp),
		"inverted": transform.InvertCallstack(th),
		"merged": transform.ApplyTransform(th,
			transform.MergeFunction{FuncIndex: b.Func("B")}),
		"dropped": transform.ApplyTransform(th,
			transform.DropFunction{FuncIndex: b.Func("C")}),
	}
	for name, v := range variants {
		t.Run(name, func(t *testing.T) {
			tree := build(v, 2, calltree.Options{})
			sampled := 0
			for _, s := range v.Samples.Stack {
				if s != profile.NoIndex {
					sampled++
				}
			}
			assert.InDelta(t, float64(sampled)*2, tree.RootTotal(), 1e-9)

			selfSum := 0.0
			tree.Walk(func(node, _ int) bool {
				data := tree.NodeData(node)
				selfSum += data.Self
				childSum := 0.0
				for _, c := range tree.Children(node) {
					childSum += tree.NodeData(c).Total
				}
				assert.InDelta(t, data.Total-childSum, data.Self, 1e-9)
				return true
			})
			assert.InDelta(t, tree.RootTotal(), selfSum, 1e-9)
		})
	}
}

func TestInvertedTree(t *testing.T) {
	th := transform.InvertCallstack(testprofile.FromPaths("A B C", "A D C", "A B"))
	tree := build(th, 1, calltree.Options{Inverted: true})
	assert.True(t, tree.Inverted())

	var roots []string
	for _, r := range tree.Roots() {
		roots = append(roots, tree.NodeData(r).FuncName)
	}
	assert.Equal(t, []string{"C", "B"}, roots)
	c := tree.Roots()[0]
	assert.Equal(t, 2.0, tree.NodeData(c).Total)
	assert.Len(t, tree.Children(c), 2)
}

func TestMatchingCallNodes(t *testing.T) {
	th := testprofile.FromPaths("A funcA", "B funcA", "B C")
	tree := build(th, 1, calltree.Options{Search: "funca"})

	matches := tree.MatchingCallNodes()
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Equal(t, "funcA", tree.NodeData(m).FuncName)
	}
	assert.Nil(t, build(th, 1, calltree.Options{}).MatchingCallNodes())
}

func TestDisplayDataOfRawAddresses(t *testing.T) {
	th := testprofile.FromPaths("0x1f00 main")
	tree := build(th, 0.5, calltree.Options{})
	root := tree.Roots()[0]
	d := tree.DisplayData(root)
	assert.True(t, d.Dim)
	assert.Equal(t, "0.5", d.TotalTime)
	assert.Equal(t, "—", d.SelfTime)
	assert.Equal(t, []int{0}, []int(tree.PathOf(root)))
}

func TestEmptyTree(t *testing.T) {
	tree := build(testprofile.NewBuilder("Empty").Thread(), 1, calltree.Options{})
	assert.Empty(t, tree.Roots())
	assert.Equal(t, 0.0, tree.RootTotal())
}
