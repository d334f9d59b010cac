// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package markers

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/profile-viewer/internal/testprofile"
	"go.opentelemetry.io/profile-viewer/profile"
)

func tracing(category, interval string) profile.TracingPayload {
	return profile.TracingPayload{Category: category, Interval: interval}
}

func TestTracingMarkers(t *testing.T) {
	b := testprofile.NewBuilder("GeckoMain")
	b.Marker(0, "Rasterize", tracing("Paint", "start")).
		Marker(2, "Rasterize", tracing("Paint", "start")).
		Marker(3, "Rasterize", tracing("Paint", "end")).
		Marker(5, "Rasterize", tracing("Paint", "end")).
		Marker(6, "Rasterize", tracing("Paint", "end")).
		Marker(1, "Instant", nil).
		Marker(7, "UserTiming", profile.UserTimingPayload{
			TimeSpan: profile.TimeSpan{StartTime: 4, EndTime: 9}, Name: "measure"}).
		Marker(8, "Other", tracing("Other", "end")).
		Marker(9, "Forever", tracing("Paint", "start")).
		Marker(10, "Raw", profile.UnknownPayload{TypeName: "Custom",
			Raw: map[string]any{"startTime": 10.0, "endTime": 12.5}}).
		Marker(11, "NoTime", profile.UnknownPayload{TypeName: "Custom"})
	th := b.Thread()

	got := TracingMarkers(th)
	type span struct {
		name       string
		start, dur float64
	}
	var spans []span
	for _, m := range got {
		spans = append(spans, span{m.Name, m.Start, m.Dur})
	}
	assert.Equal(t, []span{
		{"Rasterize", 0, 5},
		{"Instant", 1, 0},
		{"Rasterize", 2, 1},
		{"UserTiming", 4, 5},
		{"Raw", 10, 2.5},
	}, spans)
	assert.Equal(t, "measure", Description(got[3]))
}

func TestTracingMarkersPairPerCategory(t *testing.T) {
	b := testprofile.NewBuilder("GeckoMain")
	b.Marker(0, "load", tracing("A", "start")).
		Marker(1, "load", tracing("B", "start")).
		Marker(2, "load", tracing("A", "end")).
		Marker(4, "load", tracing("B", "end"))
	got := TracingMarkers(b.Thread())
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[0].Dur)
	assert.Equal(t, "A", got[0].Data.(profile.TracingPayload).Category)
	assert.Equal(t, 3.0, got[1].Dur)
}

func TestJankInstances(t *testing.T) {
	b := testprofile.NewBuilder("GeckoMain")
	for i, r := range []float64{0, 20, 60, 0, 10, math.NaN(), 30, 55, 80} {
		b.SampleWithResponsiveness(float64(i*10+100), "A", r)
	}
	samples := b.Thread().Samples

	jank := JankInstances(samples, "default", DefaultJankThreshold)
	require.Len(t, jank, 2)
	assert.Equal(t, 60.0, jank[0].Dur)
	assert.Equal(t, 120.0-60, jank[0].Start)
	assert.Equal(t, "60.00ms event processing delay on default thread", Description(jank[0]))
	assert.Equal(t, 80.0, jank[1].Dur)
	assert.Equal(t, 180.0-80, jank[1].Start)
	assert.Equal(t, "Jank", jank[1].Name)

	assert.Nil(t, JankInstances(testprofile.FromPaths("A").Samples, "default", 50))
}

func TestFilterToRange(t *testing.T) {
	list := []TracingMarker{
		{Name: "before", Start: 0, Dur: 1},
		{Name: "touching", Start: 1, Dur: 1},
		{Name: "inside", Start: 3, Dur: 1},
		{Name: "spanning", Start: 0, Dur: 10},
		{Name: "after", Start: 5, Dur: 1},
	}
	var names []string
	for _, m := range FilterToRange(list, 2, 5) {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"touching", "inside", "spanning"}, names)
}

func TestDescription(t *testing.T) {
	long := strings.Repeat("x", 120)
	tests := map[string]struct {
		marker   TracingMarker
		expected string
	}{
		"no data": {TracingMarker{Name: "n"}, "n"},
		"title":   {TracingMarker{Name: "n", Title: "t"}, "t"},
		"dom tracing": {TracingMarker{Name: "n", Data: profile.TracingPayload{
			Category: "DOMEvent", EventType: "click"}}, "click"},
		"long log": {TracingMarker{Name: long, Data: profile.TracingPayload{Category: "log"}},
			strings.Repeat("x", 100) + "..."},
		"bailout": {TracingMarker{Name: "n", Data: profile.BailoutPayload{BailoutType: "shape"}},
			"Bailout: shape"},
		"dom event": {TracingMarker{Name: "n", Data: profile.DOMEventPayload{EventType: "load"}},
			"load"},
		"styles": {TracingMarker{Name: "Styles", Data: profile.StylePayload{Category: "Paint"}},
			"Styles (Paint)"},
		"gc": {TracingMarker{Name: "GCMajor", Data: profile.GCMajorPayload{}}, "GCMajor"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Description(tc.marker))
		})
	}
}
