// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package timing_test

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/profile-viewer/callnode"
	"go.opentelemetry.io/profile-viewer/internal/testprofile"
	"go.opentelemetry.io/profile-viewer/markers"
	"go.opentelemetry.io/profile-viewer/timing"
)

type box struct {
	name       string
	start, end float64
}

func TestStackTimingByDepth(t *testing.T) {
	th := testprofile.FromTimedPaths([]float64{0, 1, 2, 3, 4},
		"A B", "A B", "A C", "", "A")
	info := callnode.ComputeInfo(th)
	maxDepth := callnode.ComputeMaxDepth(th, info)
	rows := timing.StackTimingByDepth(th, info, maxDepth, 1)
	require.Len(t, rows, 2)

	boxes := func(row timing.StackTiming) []box {
		var out []box
		for i := 0; i < row.Length; i++ {
			out = append(out, box{th.FuncName(info.Table.Func[row.CallNode[i]]),
				row.Start[i], row.End[i]})
		}
		return out
	}
	assert.Equal(t, []box{{"A", 0, 3}, {"A", 4, 5}}, boxes(rows[0]))
	assert.Equal(t, []box{{"B", 0, 2}, {"C", 2, 3}}, boxes(rows[1]))
}

func TestStackTimingSameFunctionDifferentParent(t *testing.T) {
	th := testprofile.FromPaths("A C", "B C")
	info := callnode.ComputeInfo(th)
	rows := timing.StackTimingByDepth(th, info, 1, 1)
	// C has a different call node under A and under B.
	require.Equal(t, 2, rows[1].Length)
	assert.NotEqual(t, rows[1].CallNode[0], rows[1].CallNode[1])
	assert.Equal(t, []float64{1, 2}, rows[1].End)
}

func TestStackTimingEmpty(t *testing.T) {
	th := testprofile.NewBuilder("Empty").Thread()
	info := callnode.ComputeInfo(th)
	rows := timing.StackTimingByDepth(th, info, 0, 1)
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].Length)
}

func TestLeafCategoryStackTiming(t *testing.T) {
	b := testprofile.NewBuilder("GeckoMain")
	b.Sample(0, "A B").Sample(1, "A C").Sample(2, "A D").Sample(3, "").Sample(4, "A")
	th := b.Thread()
	// Frames are created in order A, B, C, D.
	th.Frames.Category = []int{1, 2, 2, 3}

	rows := timing.LeafCategoryStackTiming(th, 1)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, []int{2, 3, 1}, row.Category)
	assert.Equal(t, []float64{0, 2, 4}, row.Start)
	assert.Equal(t, []float64{2, 3, 5}, row.End)
}

func TestMarkerTimingRows(t *testing.T) {
	list := []markers.TracingMarker{
		{Name: "Paint", Start: 0, Dur: 10},
		{Name: "Paint", Start: 5, Dur: 2},
		{Name: "GC", Start: 1, Dur: 1},
		{Name: "Paint", Start: 8, Dur: 1},
		{Name: "Paint", Start: 10, Dur: 1},
		{Name: "Paint", Start: 5, Dur: 1},
	}
	rows := timing.MarkerTimingRows(list)
	require.Len(t, rows, 4)

	assert.Equal(t, "Paint", rows[0].Name)
	assert.Equal(t, []int{0, 4}, rows[0].Index)
	assert.Equal(t, []int{1, 3}, rows[1].Index)
	assert.Equal(t, []int{5}, rows[2].Index)
	assert.Equal(t, "GC", rows[3].Name)
	assert.Equal(t, []string{"GC"}, rows[3].Label)
}

func TestMarkerTimingRowsNoOverlap(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	var list []markers.TracingMarker
	for i := 0; i < 200; i++ {
		list = append(list, markers.TracingMarker{
			Name:  "M",
			Start: float64(rng.IntN(100)),
			Dur:   float64(1 + rng.IntN(20)),
		})
	}
	rows := timing.MarkerTimingRows(list)

	for _, row := range rows {
		for i := 1; i < row.Length; i++ {
			assert.LessOrEqual(t, row.End[i-1], row.Start[i])
		}
	}

	// First fit over start sorted intervals needs as many lanes as the
	// largest number of simultaneously open intervals.
	maxOpen := 0
	for _, m := range list {
		open := 0
		for _, o := range list {
			if o.Start <= m.Start && m.Start < o.End() {
				open++
			}
		}
		maxOpen = max(maxOpen, open)
	}
	placed := 0
	for _, row := range rows {
		placed += row.Length
	}
	assert.Equal(t, len(list), placed)
	assert.Equal(t, maxOpen, len(rows))

	indices := []int{}
	for _, row := range rows {
		indices = append(indices, row.Index...)
	}
	slices.Sort(indices)
	for i, idx := range indices {
		assert.Equal(t, i, idx)
	}
}
