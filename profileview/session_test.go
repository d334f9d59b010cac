// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package profileview

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/profile-viewer/callnode"
	"go.opentelemetry.io/profile-viewer/internal/testprofile"
	"go.opentelemetry.io/profile-viewer/markers"
	"go.opentelemetry.io/profile-viewer/profile"
	"go.opentelemetry.io/profile-viewer/symbolication"
	"go.opentelemetry.io/profile-viewer/transform"
)

func testProfile() *profile.Profile {
	b := testprofile.NewBuilder("GeckoMain")
	b.Sample(0, "A B C").
		Sample(1, "A B D").
		Sample(2, "A E C").
		Sample(3, "A B C").
		Marker(0, "Paint", profile.TracingPayload{Category: "Paint", Interval: "start"}).
		Marker(2, "Paint", profile.TracingPayload{Category: "Paint", Interval: "end"}).
		Marker(3, "Instant", nil)
	return &profile.Profile{
		Meta:    profile.Meta{Interval: 1},
		Threads: []*profile.Thread{b.Thread()},
	}
}

func newSession(t *testing.T, p *profile.Profile) *Session {
	s, err := New(p, 32)
	require.NoError(t, err)
	return s
}

func TestParamsKey(t *testing.T) {
	base := Params{}
	assert.Equal(t, base.Key(), Params{Implementation: profile.ImplementationCombined}.Key())
	assert.Equal(t, base.Key(), Params{}.Key())

	variants := []Params{
		{Range: &profile.StartEndRange{Start: 0, End: 2}},
		{Search: "foo"},
		{Implementation: profile.ImplementationJS},
		{Inverted: true},
		{Transforms: []transform.Transform{transform.MergeFunction{FuncIndex: 1}}},
		{Selection: &profile.StartEndRange{Start: 0, End: 2}},
	}
	seen := map[string]bool{base.Key(): true}
	for _, p := range variants {
		assert.False(t, seen[p.Key()], p.Key())
		seen[p.Key()] = true
	}
}

func TestDerivationsAreMemoized(t *testing.T) {
	s := newSession(t, testProfile())
	params := Params{Search: "C"}

	first, err := s.FilteredThread(0, params)
	require.NoError(t, err)
	second, err := s.FilteredThread(0, Params{Search: "C"})
	require.NoError(t, err)
	assert.Same(t, first, second)

	tree1, err := s.CallTree(0, params)
	require.NoError(t, err)
	tree2, err := s.CallTree(0, params)
	require.NoError(t, err)
	assert.Same(t, tree1, tree2)
	assert.Equal(t, 3.0, tree1.RootTotal())

	unfiltered, err := s.FilteredThread(0, Params{})
	require.NoError(t, err)
	assert.Same(t, s.Profile().Threads[0], unfiltered)

	_, err = s.FilteredThread(1, params)
	require.ErrorIs(t, err, ErrNoSuchThread)
	_, err = s.CallTree(-1, params)
	require.ErrorIs(t, err, ErrNoSuchThread)
}

func TestRootTotalConservation(t *testing.T) {
	s := newSession(t, testProfile())
	rng := &profile.StartEndRange{Start: 1, End: 4}
	sel := &profile.StartEndRange{Start: 1, End: 3}
	mergeB := []transform.Transform{transform.MergeFunction{FuncIndex: 1}}
	dropD := []transform.Transform{transform.DropFunction{FuncIndex: 3}}
	tests := map[string]struct {
		params   Params
		expected float64
	}{
		"all":        {Params{}, 4},
		"range":      {Params{Range: rng}, 3},
		"inverted":   {Params{Range: rng, Inverted: true}, 3},
		"selection":  {Params{Range: rng, Selection: sel}, 2},
		"search":     {Params{Search: "D,E"}, 2},
		"js":         {Params{Implementation: profile.ImplementationJS}, 0},
		"merge":      {Params{Transforms: mergeB}, 4},
		"drop":       {Params{Transforms: dropD}, 3},
		"all filter": {Params{Range: rng, Search: "C", Inverted: true, Selection: sel}, 1},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			tree, err := s.CallTree(0, tc.params)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, tree.RootTotal())
		})
	}
}

func TestTimingAndMarkers(t *testing.T) {
	s := newSession(t, testProfile())

	rows, err := s.StackTiming(0, Params{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []float64{0}, rows[0].Start)
	assert.Equal(t, []float64{4}, rows[0].End)

	depth, err := s.MaxDepth(0, Params{})
	require.NoError(t, err)
	assert.Equal(t, 2, depth)

	categories, err := s.LeafCategoryTiming(0, Params{})
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, 1, categories[0].Length)

	list, err := s.TracingMarkers(0, Params{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Paint", list[0].Name)
	assert.Equal(t, 2.0, list[0].Dur)

	selected, err := s.TracingMarkers(0, Params{Selection: &profile.StartEndRange{Start: 2.5, End: 4}})
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "Instant", selected[0].Name)

	lanes, err := s.MarkerTiming(0, Params{})
	require.NoError(t, err)
	require.Len(t, lanes, 2)
	assert.Equal(t, []string{"Paint"}, lanes[0].Label)

	jank, err := s.JankInstances(0, Params{}, markers.DefaultJankThreshold)
	require.NoError(t, err)
	assert.Empty(t, jank)
}

func TestTracingMarkersAcrossRangeBoundary(t *testing.T) {
	b := testprofile.NewBuilder("GeckoMain")
	b.Sample(0, "A").Sample(5, "A").
		Marker(0, "Paint", profile.TracingPayload{Category: "Paint", Interval: "start"}).
		Marker(2, "Paint", profile.TracingPayload{Category: "Paint", Interval: "end"}).
		Marker(3, "Instant", nil).
		Marker(6, "UserTiming", profile.UserTimingPayload{
			TimeSpan: profile.TimeSpan{StartTime: 3, EndTime: 6}, Name: "measure"})
	s := newSession(t, &profile.Profile{
		Meta:    profile.Meta{Interval: 1},
		Threads: []*profile.Thread{b.Thread()},
	})

	names := func(params Params) []string {
		list, err := s.TracingMarkers(0, params)
		require.NoError(t, err)
		var out []string
		for _, m := range list {
			out = append(out, m.Name)
		}
		return out
	}
	rng := &profile.StartEndRange{Start: 1, End: 4}
	assert.Equal(t, []string{"Paint", "Instant", "UserTiming"}, names(Params{Range: rng}))
	assert.Equal(t, []string{"Instant", "UserTiming"}, names(Params{Range: rng,
		Selection: &profile.StartEndRange{Start: 2.5, End: 4}}))
	assert.Equal(t, []string{"Paint"}, names(Params{
		Range: &profile.StartEndRange{Start: 0, End: 1}}))

	list, err := s.TracingMarkers(0, Params{Range: rng})
	require.NoError(t, err)
	assert.Equal(t, 2.0, list[0].Dur)

	lanes, err := s.MarkerTiming(0, Params{Range: rng})
	require.NoError(t, err)
	require.Len(t, lanes, 3)
	assert.Equal(t, "Paint", lanes[0].Name)
}

func TestRangeFilteredThread(t *testing.T) {
	s := newSession(t, testProfile())

	whole, err := s.RangeFilteredThread(0, Params{Search: "D"})
	require.NoError(t, err)
	assert.Same(t, s.Profile().Threads[0], whole)

	th, err := s.RangeFilteredThread(0, Params{Range: &profile.StartEndRange{Start: 1, End: 3},
		Search: "D"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A B D", "A E C"}, testprofile.SamplePaths(th))

	again, err := s.RangeFilteredThread(0, Params{Range: &profile.StartEndRange{Start: 1, End: 3}})
	require.NoError(t, err)
	assert.Same(t, th, again)

	_, err = s.RangeFilteredThread(2, Params{})
	require.ErrorIs(t, err, ErrNoSuchThread)
}

func TestReplaceIgnoresInFlightDerivations(t *testing.T) {
	s := newSession(t, nativeProfile())
	params := Params{Search: "zzz", Inverted: true}

	// A derivation that started before Replace finishes after it.
	inFlight, err := s.derive(0, params)
	require.NoError(t, err)
	s.Replace(testProfile())
	old := inFlight.stage(stageInvert)
	require.Equal(t, 3, old.Samples.Length)

	th, err := s.FilteredThread(0, params)
	require.NoError(t, err)
	assert.NotSame(t, old, th)
	assert.Equal(t, 4, th.Samples.Length)
	assert.Equal(t, []string{"", "", "", ""}, testprofile.SamplePaths(th))

	tree, err := s.CallTree(0, Params{})
	require.NoError(t, err)
	assert.Equal(t, 4.0, tree.RootTotal())
}

func nativeProfile() *profile.Profile {
	b := testprofile.NewBuilder("GeckoMain")
	xul := b.Lib(profile.Lib{Start: 0x1000, End: 0x2000, Name: "libxul.so",
		DebugName: "libxul.so", BreakpadID: "ABC"})
	b.Func("main")
	b.NativeFunc("0x1010", xul, 0x10)
	b.NativeFunc("0x1020", xul, 0x20)
	b.NativeFunc("0x1110", xul, 0x110)
	b.Sample(0, "main 0x1010").Sample(1, "main 0x1020").Sample(2, "main 0x1110")
	return &profile.Profile{
		Meta:    profile.Meta{Interval: 1},
		Threads: []*profile.Thread{b.Thread()},
	}
}

func TestApplyFunctionsUpdate(t *testing.T) {
	s := newSession(t, nativeProfile())
	before, err := s.CallTree(0, Params{})
	require.NoError(t, err)
	require.Len(t, before.Children(before.Roots()[0]), 3)

	require.NoError(t, s.UpdateView(0, func(v *ThreadView) {
		v.Selected = callnode.Path{0, 2}
		v.Expanded.Add(callnode.Path{0, 2})
		v.Transforms = []transform.Transform{transform.FocusFunction{FuncIndex: 2}}
	}))

	batch := symbolication.Batch{0: {
		OldFuncToNewFunc: map[int]int{2: 1},
		FuncIndices:      []int{1, 3},
		FuncNames:        []string{"Foo", "Bar"},
	}}
	assert.False(t, s.ApplyFunctionsUpdate(uuid.New(), batch))
	require.True(t, s.ApplyFunctionsUpdate(s.ID(), batch))

	after, err := s.CallTree(0, Params{})
	require.NoError(t, err)
	assert.NotSame(t, before, after)
	children := after.Children(after.Roots()[0])
	require.Len(t, children, 2)
	assert.Equal(t, "Foo", after.NodeData(children[0]).FuncName)
	assert.Equal(t, 2.0, after.NodeData(children[0]).Total)

	view, err := s.View(0)
	require.NoError(t, err)
	assert.Equal(t, callnode.Path{0, 1}, view.Selected)
	assert.True(t, view.Expanded.Has(callnode.Path{0, 1}))
	assert.Equal(t, []transform.Transform{transform.FocusFunction{FuncIndex: 1}}, view.Transforms)
}

func TestSymbolicate(t *testing.T) {
	s := newSession(t, nativeProfile())
	store, err := symbolication.NewStore(symbolication.SymbolProviderFunc(
		func(_ context.Context, debugName, _ string) (*symbolication.SymbolTable, error) {
			assert.Equal(t, "libxul.so", debugName)
			return symbolication.NewSymbolTable([]symbolication.Symbol{
				{Address: 0, Name: "Foo"},
				{Address: 0x100, Name: "Bar"},
			}), nil
		}), 4)
	require.NoError(t, err)

	require.NoError(t, s.Symbolicate(context.Background(), store, time.Millisecond))
	th, err := s.FilteredThread(0, Params{})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"main Foo": 2,
		"main Bar": 1,
	}, testprofile.PathTotals(th))
}

func TestReplaceDropsStaleUpdates(t *testing.T) {
	s := newSession(t, nativeProfile())
	old := s.ID()
	id := s.Replace(testProfile())
	assert.NotEqual(t, old, id)
	assert.False(t, s.ApplyFunctionsUpdate(old, symbolication.Batch{0: {}}))

	view, err := s.View(0)
	require.NoError(t, err)
	assert.Equal(t, 0, view.Expanded.Len())
}
