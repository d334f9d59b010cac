// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package timing // import "go.opentelemetry.io/profile-viewer/timing"

import (
	"cmp"
	"slices"

	"go.opentelemetry.io/profile-viewer/markers"
)

// MarkerTiming is one lane of markers sharing a name. Index refers to the
// position in the marker list the lanes were computed from.
type MarkerTiming struct {
	Name   string
	Start  []float64
	End    []float64
	Index  []int
	Label  []string
	Length int
}

func (m *MarkerTiming) lastEnd() (float64, bool) {
	if m.Length == 0 {
		return 0, false
	}
	return m.End[m.Length-1], true
}

func (m *MarkerTiming) add(marker markers.TracingMarker, index int) {
	m.Start = append(m.Start, marker.Start)
	m.End = append(m.End, marker.End())
	m.Index = append(m.Index, index)
	m.Label = append(m.Label, markers.Description(marker))
	m.Length++
}

// MarkerTimingRows packs markers into lanes. Every marker name gets its own
// group of lanes, groups are ordered by first appearance. Within a group
// markers are placed by start time, equal starts in list order, into the first
// lane whose last marker ended at or before the start. A new lane is opened
// when none fits.
func MarkerTimingRows(list []markers.TracingMarker) []MarkerTiming {
	order := make([]int, len(list))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(list[a].Start, list[b].Start)
	})

	var names []string
	groups := make(map[string][]MarkerTiming)
	for _, idx := range order {
		marker := list[idx]
		lanes, ok := groups[marker.Name]
		if !ok {
			names = append(names, marker.Name)
		}
		placed := false
		for i := range lanes {
			if end, _ := lanes[i].lastEnd(); end <= marker.Start {
				lanes[i].add(marker, idx)
				placed = true
				break
			}
		}
		if !placed {
			lane := MarkerTiming{Name: marker.Name}
			lane.add(marker, idx)
			lanes = append(lanes, lane)
		}
		groups[marker.Name] = lanes
	}

	var rows []MarkerTiming
	for _, name := range names {
		rows = append(rows, groups[name]...)
	}
	return rows
}
