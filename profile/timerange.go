// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package profile // import "go.opentelemetry.io/profile-viewer/profile"

import (
	"math"
	"slices"
)

// StartEndRange is a half-open time range [Start, End) in milliseconds.
type StartEndRange struct {
	Start float64
	End   float64
}

// Contains reports whether t lies within the range.
func (r StartEndRange) Contains(t float64) bool {
	return t >= r.Start && t < r.End
}

// Duration returns End - Start.
func (r StartEndRange) Duration() float64 {
	return r.End - r.Start
}

// TimeRangeIncludingAllThreads returns the range spanning the samples of all
// threads. The last sample of a thread extends by one interval. A profile
// without samples yields the zero range.
func TimeRangeIncludingAllThreads(p *Profile) StartEndRange {
	r := StartEndRange{Start: math.Inf(1), End: math.Inf(-1)}
	for _, t := range p.Threads {
		if t.Samples.Length == 0 {
			continue
		}
		r.Start = min(r.Start, t.Samples.Time[0])
		r.End = max(r.End, t.Samples.Time[t.Samples.Length-1]+p.Meta.Interval)
	}
	if math.IsInf(r.Start, 1) {
		return StartEndRange{}
	}
	return r
}

// DefaultThreadOrder returns thread indices in display order: the main thread of
// the parent process first, compositor threads last, everything else in
// profile order.
func DefaultThreadOrder(threads []*Thread) []int {
	rank := func(t *Thread) int {
		switch {
		case t.Name == "GeckoMain" && t.ProcessType == "default":
			return 0
		case t.Name == "Compositor":
			return 2
		default:
			return 1
		}
	}
	order := make([]int, len(threads))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return rank(threads[a]) - rank(threads[b])
	})
	return order
}
