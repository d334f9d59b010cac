// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package pprofexport converts threads into pprof profiles.
package pprofexport // import "go.opentelemetry.io/profile-viewer/pprofexport"

import (
	"fmt"
	"io"
	"math"

	pprof "github.com/google/pprof/profile"

	"go.opentelemetry.io/profile-viewer/profile"
)

const nanosPerMilli = 1e6

// Export converts the samples of a thread into a pprof profile. Samples
// sharing a stack are aggregated. Every sample counts as one interval of
// wall time.
func Export(t *profile.Thread, meta profile.Meta) (*pprof.Profile, error) {
	period := int64(math.Round(meta.Interval * nanosPerMilli))
	p := &pprof.Profile{
		SampleType: []*pprof.ValueType{
			{Type: "samples", Unit: "count"},
			{Type: "wall", Unit: "nanoseconds"},
		},
		PeriodType:        &pprof.ValueType{Type: "wall", Unit: "nanoseconds"},
		Period:            period,
		DefaultSampleType: "wall",
		TimeNanos:         int64(math.Round(meta.StartTime * nanosPerMilli)),
		Comments:          []string{fmt.Sprintf("thread %s (pid %s, tid %d)", t.Name, t.PID, t.TID)},
	}
	if t.Samples.Length > 0 {
		first, last := t.Samples.Time[0], t.Samples.Time[t.Samples.Length-1]
		p.DurationNanos = int64(math.Round((last - first + meta.Interval) * nanosPerMilli))
	}

	for i := range t.Libs {
		lib := &t.Libs[i]
		p.Mapping = append(p.Mapping, &pprof.Mapping{
			ID:      uint64(i + 1),
			Start:   lib.Start,
			Limit:   lib.End,
			Offset:  lib.Offset,
			File:    lib.Path,
			BuildID: lib.BreakpadID,
		})
	}

	for fn := 0; fn < t.Funcs.Length; fn++ {
		file := ""
		if idx := t.Funcs.FileName[fn]; idx != profile.NoIndex {
			file, _ = t.StringTable.String(idx)
		} else {
			file = t.ResourceName(fn)
		}
		p.Function = append(p.Function, &pprof.Function{
			ID:         uint64(fn + 1),
			Name:       t.FuncName(fn),
			SystemName: t.FuncName(fn),
			Filename:   file,
		})
	}

	for frame := 0; frame < t.Frames.Length; frame++ {
		fn := t.Frames.Func[frame]
		loc := &pprof.Location{
			ID: uint64(frame + 1),
			Line: []pprof.Line{{
				Function: p.Function[fn],
				Line:     int64(max(t.Frames.Line[frame], 0)),
			}},
		}
		if lib, ok := libOf(t, fn); ok {
			loc.Mapping = p.Mapping[lib]
			if addr := t.Frames.Address[frame]; addr >= 0 {
				loc.Address = uint64(addr) + t.Libs[lib].Start
			}
		}
		p.Location = append(p.Location, loc)
	}

	byStack := make(map[int]*pprof.Sample)
	for i := 0; i < t.Samples.Length; i++ {
		stack := t.Samples.Stack[i]
		if stack == profile.NoIndex {
			continue
		}
		if s, ok := byStack[stack]; ok {
			s.Value[0]++
			s.Value[1] += period
			continue
		}
		s := &pprof.Sample{
			Value: []int64{1, period},
			Label: map[string][]string{"thread": {t.Name}},
		}
		for st := stack; st != profile.NoIndex; st = t.Stacks.Prefix[st] {
			s.Location = append(s.Location, p.Location[t.Stacks.Frame[st]])
		}
		byStack[stack] = s
		p.Sample = append(p.Sample, s)
	}

	if err := p.CheckValid(); err != nil {
		return nil, fmt.Errorf("invalid pprof profile: %w", err)
	}
	return p, nil
}

// libOf returns the index of the library a native function belongs to.
func libOf(t *profile.Thread, fn int) (int, bool) {
	res := t.Funcs.Resource[fn]
	if res == profile.NoIndex || res >= t.Resources.Length ||
		t.Resources.Type[res] != profile.ResourceTypeLibrary {
		return 0, false
	}
	lib := t.Resources.Lib[res]
	return lib, lib >= 0 && lib < len(t.Libs)
}

// Write exports a thread and writes it gzip compressed to w.
func Write(w io.Writer, t *profile.Thread, meta profile.Meta) error {
	p, err := Export(t, meta)
	if err != nil {
		return err
	}
	return p.Write(w)
}
