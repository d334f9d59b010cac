// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package profileview // import "go.opentelemetry.io/profile-viewer/profileview"

import (
	"go.opentelemetry.io/profile-viewer/callnode"
	"go.opentelemetry.io/profile-viewer/calltree"
	"go.opentelemetry.io/profile-viewer/markers"
	"go.opentelemetry.io/profile-viewer/profile"
	"go.opentelemetry.io/profile-viewer/timing"
	"go.opentelemetry.io/profile-viewer/transform"
)

// derivation is one request against a thread snapshot.
type derivation struct {
	threadSnapshot
	s      *Session
	index  int
	params Params
	keys   [numStages]string
}

func (s *Session) derive(index int, params Params) (*derivation, error) {
	snap, err := s.thread(index)
	if err != nil {
		return nil, err
	}
	return &derivation{
		threadSnapshot: snap,
		s:              s,
		index:          index,
		params:         params,
		keys:           params.stageKeys(),
	}, nil
}

func (d *derivation) keyFor(params string) cacheKey {
	return cacheKey{
		session:    d.session,
		thread:     d.index,
		generation: d.generation,
		params:     params,
	}
}

func (d *derivation) key(stage int) cacheKey {
	return d.keyFor(d.keys[stage])
}

// markerKey only depends on the ranges, markers ignore every other filter.
func (d *derivation) markerKey() cacheKey {
	return d.keyFor(d.params.markerKey())
}

// stage returns the thread after the given derivation stage.
func (d *derivation) stage(stage int) *profile.Thread {
	if stage < 0 {
		return d.thread
	}
	return d.s.threads.get(d.key(stage), func() *profile.Thread {
		prev := d.stage(stage - 1)
		p := &d.params
		switch stage {
		case stageRange:
			if p.Range == nil {
				return prev
			}
			return transform.FilterThreadToRange(prev, p.Range.Start, p.Range.End)
		case stageTransforms:
			return transform.ApplyTransformStack(prev, p.Transforms)
		case stageImplementation:
			return transform.FilterThreadByImplementation(prev, p.Implementation)
		case stageSearch:
			return transform.FilterThreadToSearchString(prev, p.Search)
		case stageInvert:
			if !p.Inverted {
				return prev
			}
			return transform.InvertCallstack(prev)
		default:
			if p.Selection == nil {
				return prev
			}
			return transform.FilterThreadToRange(prev, p.Selection.Start, p.Selection.End)
		}
	})
}

func (d *derivation) info() *callnode.Info {
	return d.s.infos.get(d.key(stageInvert), func() *callnode.Info {
		return callnode.ComputeInfo(d.stage(stageInvert))
	})
}

// tracingMarkers derives the markers of the whole thread and keeps those
// overlapping the range and then the selection. Pairs and spans crossing a
// range boundary survive this way.
func (d *derivation) tracingMarkers() []markers.TracingMarker {
	return d.s.tracing.get(d.markerKey(), func() []markers.TracingMarker {
		list := d.s.tracing.get(d.keyFor(Params{}.markerKey()), func() []markers.TracingMarker {
			return markers.TracingMarkers(d.thread)
		})
		for _, r := range []*profile.StartEndRange{d.params.Range, d.params.Selection} {
			if r != nil {
				list = markers.FilterToRange(list, r.Start, r.End)
			}
		}
		return list
	})
}

// RangeFilteredThread returns the thread limited to Params.Range.
func (s *Session) RangeFilteredThread(index int, params Params) (*profile.Thread, error) {
	d, err := s.derive(index, params)
	if err != nil {
		return nil, err
	}
	return d.stage(stageRange), nil
}

// FilteredThread returns the thread after range, transforms, implementation,
// search and invert were applied.
func (s *Session) FilteredThread(index int, params Params) (*profile.Thread, error) {
	d, err := s.derive(index, params)
	if err != nil {
		return nil, err
	}
	return d.stage(stageInvert), nil
}

// PreviewFilteredThread is FilteredThread further limited to Params.Selection.
func (s *Session) PreviewFilteredThread(index int, params Params) (*profile.Thread, error) {
	d, err := s.derive(index, params)
	if err != nil {
		return nil, err
	}
	return d.stage(stageSelection), nil
}

// CallNodeInfo returns the call nodes of the filtered thread.
func (s *Session) CallNodeInfo(index int, params Params) (*callnode.Info, error) {
	d, err := s.derive(index, params)
	if err != nil {
		return nil, err
	}
	return d.info(), nil
}

// CallTree returns the call tree over the preview filtered thread.
func (s *Session) CallTree(index int, params Params) (*calltree.CallTree, error) {
	d, err := s.derive(index, params)
	if err != nil {
		return nil, err
	}
	return s.trees.get(d.key(stageSelection), func() *calltree.CallTree {
		return calltree.New(d.stage(stageSelection), d.info(), d.interval, calltree.Options{
			Inverted: params.Inverted,
			Search:   params.Search,
		})
	}), nil
}

// MaxDepth returns the deepest call node depth of the filtered thread.
func (s *Session) MaxDepth(index int, params Params) (int, error) {
	d, err := s.derive(index, params)
	if err != nil {
		return 0, err
	}
	return s.maxDepth.get(d.key(stageInvert), func() int {
		return callnode.ComputeMaxDepth(d.stage(stageInvert), d.info())
	}), nil
}

// StackTiming returns the stack chart rows of the filtered thread.
func (s *Session) StackTiming(index int, params Params) ([]timing.StackTiming, error) {
	d, err := s.derive(index, params)
	if err != nil {
		return nil, err
	}
	maxDepth, err := s.MaxDepth(index, params)
	if err != nil {
		return nil, err
	}
	return s.stacks.get(d.key(stageInvert), func() []timing.StackTiming {
		return timing.StackTimingByDepth(d.stage(stageInvert), d.info(), maxDepth, d.interval)
	}), nil
}

// LeafCategoryTiming returns the category row of the filtered thread.
func (s *Session) LeafCategoryTiming(index int, params Params) ([]timing.CategoryTiming, error) {
	d, err := s.derive(index, params)
	if err != nil {
		return nil, err
	}
	return timing.LeafCategoryStackTiming(d.stage(stageInvert), d.interval), nil
}

// TracingMarkers returns the markers of the thread overlapping Params.Range,
// limited to the selection if there is one.
func (s *Session) TracingMarkers(index int, params Params) ([]markers.TracingMarker, error) {
	d, err := s.derive(index, params)
	if err != nil {
		return nil, err
	}
	return d.tracingMarkers(), nil
}

// MarkerTiming returns the marker chart lanes of TracingMarkers.
func (s *Session) MarkerTiming(index int, params Params) ([]timing.MarkerTiming, error) {
	d, err := s.derive(index, params)
	if err != nil {
		return nil, err
	}
	return s.lanes.get(d.markerKey(), func() []timing.MarkerTiming {
		return timing.MarkerTimingRows(d.tracingMarkers())
	}), nil
}

// JankInstances returns the jank periods of the range filtered thread.
func (s *Session) JankInstances(index int, params Params, threshold float64) (
	[]markers.TracingMarker, error) {
	d, err := s.derive(index, params)
	if err != nil {
		return nil, err
	}
	t := d.stage(stageRange)
	return markers.JankInstances(t.Samples, t.ProcessType, threshold), nil
}
