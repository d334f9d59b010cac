// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package timing lays out call nodes and markers as rows of non-overlapping
// intervals for flame chart and marker chart style views.
package timing // import "go.opentelemetry.io/profile-viewer/timing"

import (
	"go.opentelemetry.io/profile-viewer/callnode"
	"go.opentelemetry.io/profile-viewer/profile"
)

// StackTiming is one row of boxes of a single depth. Boxes are sorted by
// start and don't overlap.
type StackTiming struct {
	Start    []float64
	End      []float64
	CallNode []int
	Length   int
}

func (s *StackTiming) add(start, end float64, node int) {
	s.Start = append(s.Start, start)
	s.End = append(s.End, end)
	s.CallNode = append(s.CallNode, node)
	s.Length++
}

// StackTimingByDepth computes one row per depth 0..maxDepth. A box covers the
// time a call node was on the stack, consecutive samples sharing a call node
// at a depth extend the same box. The last sample lasts one interval.
func StackTimingByDepth(t *profile.Thread, info *callnode.Info, maxDepth int,
	interval float64) []StackTiming {
	rows := make([]StackTiming, maxDepth+1)
	samples := &t.Samples
	if samples.Length == 0 {
		return rows
	}
	table := &info.Table

	// Open boxes per depth.
	openNode := make([]int, 0, maxDepth+1)
	openStart := make([]float64, 0, maxDepth+1)

	closeAbove := func(depth int, at float64) {
		for d := len(openNode) - 1; d > depth; d-- {
			for d >= len(rows) {
				rows = append(rows, StackTiming{})
			}
			rows[d].add(openStart[d], at, openNode[d])
		}
		openNode = openNode[:depth+1]
		openStart = openStart[:depth+1]
	}

	for i := 0; i < samples.Length; i++ {
		at := samples.Time[i]
		stack := samples.Stack[i]
		if stack == profile.NoIndex {
			closeAbove(-1, at)
			continue
		}
		node := info.StackIndexToCallNodeIndex[stack]
		depth := table.Depth[node]

		// Find the deepest box that is still open for this sample.
		shared := -1
		for n, d := node, depth; d >= 0; n, d = table.Prefix[n], d-1 {
			if d < len(openNode) && openNode[d] == n {
				shared = d
				break
			}
		}
		closeAbove(shared, at)

		for len(openNode) <= depth {
			openNode = append(openNode, profile.NoIndex)
			openStart = append(openStart, at)
		}
		for n, d := node, depth; d > shared; n, d = table.Prefix[n], d-1 {
			openNode[d] = n
			openStart[d] = at
		}
	}
	closeAbove(-1, samples.Time[samples.Length-1]+interval)
	return rows
}

// CategoryTiming is a row of boxes colored by frame category.
type CategoryTiming struct {
	Start    []float64
	End      []float64
	Category []int
	Length   int
}

// LeafCategoryStackTiming computes a single row of boxes by the category of
// each sample's leaf frame. Consecutive samples of one category share a box,
// samples without stack leave a gap.
func LeafCategoryStackTiming(t *profile.Thread, interval float64) []CategoryTiming {
	var row CategoryTiming
	samples := &t.Samples
	open := false
	var openCategory int
	var openStart float64
	closeBox := func(at float64) {
		if open {
			row.Start = append(row.Start, openStart)
			row.End = append(row.End, at)
			row.Category = append(row.Category, openCategory)
			row.Length++
			open = false
		}
	}
	for i := 0; i < samples.Length; i++ {
		at := samples.Time[i]
		stack := samples.Stack[i]
		if stack == profile.NoIndex {
			closeBox(at)
			continue
		}
		category := t.Frames.Category[t.Stacks.Frame[stack]]
		if open && category == openCategory {
			continue
		}
		closeBox(at)
		open, openCategory, openStart = true, category, at
	}
	if samples.Length > 0 {
		closeBox(samples.Time[samples.Length-1] + interval)
	}
	return []CategoryTiming{row}
}
