// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package callnode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/profile-viewer/callnode"
	"go.opentelemetry.io/profile-viewer/internal/testprofile"
	"go.opentelemetry.io/profile-viewer/profile"
)

func TestComputeInfoSharedPath(t *testing.T) {
	th := testprofile.FromTimedPaths([]float64{0, 10, 20},
		"root funcA funcB", "root funcA funcB", "root funcA funcB")
	info := callnode.ComputeInfo(th)

	require.Equal(t, 3, info.Table.Length)
	assert.Equal(t, []int{profile.NoIndex, 0, 1}, info.Table.Prefix)
	assert.Equal(t, []int{0, 1, 2}, info.Table.Depth)
	assert.Equal(t, []int{2, 2, 2}, info.SampleCallNodes(th))
}

func TestComputeInfoDeduplicatesFrames(t *testing.T) {
	// Different lines of B create different frames and stacks, but the
	// function path is the same.
	th := testprofile.FromPaths("A B@1 C", "A B@2 C", "A B@1 D")
	require.Equal(t, 6, th.Stacks.Length)

	info := callnode.ComputeInfo(th)
	assert.Equal(t, 4, info.Table.Length)
	nodes := info.SampleCallNodes(th)
	assert.Equal(t, nodes[0], nodes[1])
	assert.NotEqual(t, nodes[0], nodes[2])
	assert.LessOrEqual(t, info.Table.Length, th.Stacks.Length)
}

func TestPaths(t *testing.T) {
	b := testprofile.NewBuilder("GeckoMain")
	b.Sample(0, "A B C").Sample(1, "A D")
	th := b.Thread()
	info := callnode.ComputeInfo(th)

	a, bFn, c, d := b.Func("A"), b.Func("B"), b.Func("C"), b.Func("D")
	for _, path := range []callnode.Path{{a}, {a, bFn}, {a, bFn, c}, {a, d}} {
		node := info.IndexFromPath(path)
		require.NotEqual(t, profile.NoIndex, node, "%v", path)
		assert.Equal(t, path, info.PathFromIndex(node))
	}
	assert.Equal(t, profile.NoIndex, info.IndexFromPath(callnode.Path{bFn}))
	assert.Equal(t, profile.NoIndex, info.IndexFromPath(callnode.Path{a, c}))
	assert.Equal(t, profile.NoIndex, info.IndexFromPath(callnode.Path{}))
	assert.Equal(t, callnode.Path{}, info.PathFromIndex(profile.NoIndex))

	assert.Equal(t, 2, callnode.ComputeMaxDepth(th, info))
}

func TestEmptyThread(t *testing.T) {
	th := testprofile.NewBuilder("Empty").Thread()
	info := callnode.ComputeInfo(th)
	assert.Equal(t, 0, info.Table.Length)
	assert.Equal(t, 0, callnode.ComputeMaxDepth(th, info))
}

func TestPathsEqual(t *testing.T) {
	assert.True(t, callnode.PathsEqual(callnode.Path{1, 2}, callnode.Path{1, 2}))
	assert.False(t, callnode.PathsEqual(callnode.Path{1, 2}, callnode.Path{1}))
	assert.False(t, callnode.PathsEqual(callnode.Path{1, 2}, callnode.Path{2, 1}))
	assert.True(t, callnode.IsPrefix(callnode.Path{1}, callnode.Path{1, 2}))
	assert.False(t, callnode.IsPrefix(callnode.Path{2}, callnode.Path{1, 2}))
}

func TestPathSet(t *testing.T) {
	values := []callnode.Path{{1}, {1, 3}, {2, 3, 9}}

	set := callnode.NewPathSet(append(values, values...)...)
	assert.Equal(t, 3, set.Len())
	assert.Equal(t, values, set.Values())

	mutable := callnode.Path{5}
	assert.True(t, set.Add(mutable))
	assert.False(t, set.Add(callnode.Path{5}))
	mutable[0] = 6
	assert.True(t, set.Has(callnode.Path{5}))
	assert.False(t, set.Has(callnode.Path{6}))

	assert.False(t, set.Delete(callnode.Path{1, 5}))
	assert.True(t, set.Delete(callnode.Path{1, 3}))
	assert.Equal(t, []callnode.Path{{1}, {2, 3, 9}, {5}}, set.Values())
	assert.True(t, set.Delete(callnode.Path{1}))
	assert.True(t, set.Has(callnode.Path{5}))

	clone := set.Clone()
	set.Clear()
	assert.Equal(t, 0, set.Len())
	assert.Equal(t, 2, clone.Len())
	assert.False(t, set.Has(callnode.Path{5}))
}
