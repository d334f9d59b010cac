// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package pprofexport

import (
	"bytes"
	"testing"

	pprof "github.com/google/pprof/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/profile-viewer/internal/testprofile"
	"go.opentelemetry.io/profile-viewer/profile"
)

func stackNames(s *pprof.Sample) []string {
	var names []string
	for _, loc := range s.Location {
		names = append(names, loc.Line[0].Function.Name)
	}
	return names
}

func TestExport(t *testing.T) {
	b := testprofile.NewBuilder("GeckoMain")
	xul := b.Lib(profile.Lib{Start: 0x1000, End: 0x2000, Name: "libxul.so",
		Path: "/usr/lib/libxul.so", BreakpadID: "ABC"})
	b.NativeFunc("0x1010", xul, 0x10)
	b.Sample(0, "main A").Sample(1, "main A").Sample(2, "main 0x1010").Sample(3, "")
	th := b.Thread()

	p, err := Export(th, profile.Meta{Interval: 1, StartTime: 1000})
	require.NoError(t, err)

	require.Len(t, p.Sample, 2)
	assert.Equal(t, []string{"A", "main"}, stackNames(p.Sample[0]))
	assert.Equal(t, []int64{2, 2e6}, p.Sample[0].Value)
	assert.Equal(t, []int64{1, 1e6}, p.Sample[1].Value)
	assert.Equal(t, int64(1e9), p.TimeNanos)
	assert.Equal(t, int64(4e6), p.DurationNanos)

	require.Len(t, p.Mapping, 1)
	native := p.Sample[1].Location[0]
	assert.Same(t, p.Mapping[0], native.Mapping)
	assert.Equal(t, "libxul.so", native.Line[0].Function.Filename)

	var buf bytes.Buffer
	require.NoError(t, p.Write(&buf))
	parsed, err := pprof.Parse(&buf)
	require.NoError(t, err)
	assert.Len(t, parsed.Sample, 2)
	assert.Equal(t, []string{"GeckoMain"}, parsed.Sample[0].Label["thread"])
}

func TestExportEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testprofile.NewBuilder("Empty").Thread(),
		profile.Meta{Interval: 1}))
	parsed, err := pprof.Parse(&buf)
	require.NoError(t, err)
	assert.Empty(t, parsed.Sample)
}
