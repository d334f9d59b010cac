// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package markers turns the raw marker table of a thread into intervals
// ("tracing markers") that can be listed and laid out on a timeline.
package markers // import "go.opentelemetry.io/profile-viewer/markers"

import (
	"cmp"
	"fmt"
	"slices"

	"go.opentelemetry.io/profile-viewer/internal/numfmt"
	"go.opentelemetry.io/profile-viewer/internal/rawjson"
	"go.opentelemetry.io/profile-viewer/profile"
)

// DefaultJankThreshold is the event processing delay in milliseconds above
// which a sample is reported as jank.
const DefaultJankThreshold = 50

const jankName = "Jank"

// TracingMarker is a marker with a resolved start and duration.
type TracingMarker struct {
	Start float64
	Dur   float64
	Name  string
	// Title overrides the derived description when set.
	Title string
	Data  profile.MarkerPayload
}

// End returns Start + Dur.
func (m TracingMarker) End() float64 {
	return m.Start + m.Dur
}

type openKey struct {
	name     int
	category string
}

func rawSpan(p profile.UnknownPayload) (profile.TimeSpan, bool) {
	start, okStart := rawjson.Float(p.Raw, "startTime")
	end, okEnd := rawjson.Float(p.Raw, "endTime")
	return profile.TimeSpan{StartTime: start, EndTime: end}, okStart && okEnd
}

// TracingMarkers derives the intervals of a thread's markers, sorted by start:
//   - markers without payload become zero length intervals,
//   - tracing start/end payloads are paired per name and category, the
//     innermost open start matching an end,
//   - payloads carrying a start and end time span exactly that range.
//
// Unpaired tracing halves and payloads without time information are dropped.
func TracingMarkers(t *profile.Thread) []TracingMarker {
	m := &t.Markers
	var out []TracingMarker
	open := make(map[openKey][]TracingMarker)
	for i := 0; i < m.Length; i++ {
		name, _ := t.StringTable.String(m.Name[i])
		switch data := m.Data[i].(type) {
		case nil:
			out = append(out, TracingMarker{Start: m.Time[i], Name: name})
		case profile.TracingPayload:
			key := openKey{name: m.Name[i], category: data.Category}
			switch data.Interval {
			case "start":
				open[key] = append(open[key], TracingMarker{Start: m.Time[i], Name: name, Data: data})
			case "end":
				bucket := open[key]
				if len(bucket) == 0 {
					continue
				}
				marker := bucket[len(bucket)-1]
				open[key] = bucket[:len(bucket)-1]
				if marker.Start <= m.Time[i] {
					marker.Dur = m.Time[i] - marker.Start
					out = append(out, marker)
				}
			}
		case profile.UnknownPayload:
			if span, ok := rawSpan(data); ok {
				out = append(out, TracingMarker{Start: span.StartTime,
					Dur: span.EndTime - span.StartTime, Name: name, Data: data})
			}
		default:
			if span, ok := profile.PayloadSpan(data); ok {
				out = append(out, TracingMarker{Start: span.StartTime,
					Dur: span.EndTime - span.StartTime, Name: name, Data: data})
			}
		}
	}
	slices.SortStableFunc(out, func(a, b TracingMarker) int {
		return cmp.Compare(a.Start, b.Start)
	})
	return out
}

// JankInstances reports the periods where event processing lagged by at least
// threshold milliseconds. Responsiveness grows while the event loop is
// blocked, a jank instance ends at the sample before it drops again.
func JankInstances(samples profile.SamplesTable, processType string, threshold float64) []TracingMarker {
	if samples.Responsiveness == nil {
		return nil
	}
	var out []TracingMarker
	last, lastTime := 0.0, 0.0
	for i := 0; i < samples.Length; i++ {
		current := samples.Responsiveness[i]
		if current < last && last >= threshold {
			out = append(out, jankInstance(lastTime, last, processType))
		}
		last, lastTime = current, samples.Time[i]
	}
	if last >= threshold {
		out = append(out, jankInstance(lastTime, last, processType))
	}
	return out
}

func jankInstance(at, delay float64, processType string) TracingMarker {
	return TracingMarker{
		Start: at - delay,
		Dur:   delay,
		Name:  jankName,
		Title: fmt.Sprintf("%.2fms event processing delay on %s thread", delay, processType),
	}
}

// FilterToRange keeps the markers overlapping [start, end).
func FilterToRange(markers []TracingMarker, start, end float64) []TracingMarker {
	var out []TracingMarker
	for _, m := range markers {
		if m.Start < end && m.End() >= start {
			out = append(out, m)
		}
	}
	return out
}

const maxLogDescription = 100

// Description returns the text shown for a marker.
func Description(m TracingMarker) string {
	if m.Title != "" {
		return m.Title
	}
	switch data := m.Data.(type) {
	case nil:
		return m.Name
	case profile.TracingPayload:
		switch data.Category {
		case "DOMEvent":
			if data.EventType != "" {
				return data.EventType
			}
		case "log":
			if len(m.Name) > maxLogDescription {
				return m.Name[:maxLogDescription] + "..."
			}
		}
		return m.Name
	case profile.UserTimingPayload:
		return data.Name
	case profile.DOMEventPayload:
		return data.EventType
	case profile.BailoutPayload:
		return "Bailout: " + data.BailoutType
	case profile.InvalidationPayload:
		return "Invalidate " + data.URL + ":" + data.Line
	case profile.StylePayload:
		if data.Category != "" {
			return m.Name + " (" + data.Category + ")"
		}
		return m.Name
	case profile.GPUPayload:
		return fmt.Sprintf("%s (GPU %s)", m.Name, numfmt.Milliseconds(data.GPUEnd-data.GPUStart))
	case profile.GCMinorPayload, profile.GCMajorPayload, profile.GCSlicePayload,
		profile.DummyPayload, profile.UnknownPayload:
		return m.Name
	default:
		panic(fmt.Sprintf("unhandled marker payload %T", m.Data))
	}
}

