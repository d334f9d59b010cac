// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package profile // import "go.opentelemetry.io/profile-viewer/profile"

import (
	"errors"
	"fmt"
)

// ErrMalformedTable is returned when a referential invariant of a thread is violated.
var ErrMalformedTable = errors.New("malformed table")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedTable, fmt.Sprintf(format, args...))
}

type column struct {
	name string
	n    int
}

func checkColumns(table string, want int, columns ...column) error {
	for _, c := range columns {
		if err := checkLen(table, c.name, c.n, want); err != nil {
			return err
		}
	}
	return nil
}

func checkLen(table, col string, got, want int) error {
	if got != want {
		return malformed("%s.%s has %d entries, expected %d", table, col, got, want)
	}
	return nil
}

// Validate checks column lengths and that every index column refers to an
// existing row. The first violation is returned.
func (t *Thread) Validate() error {
	if t.StringTable == nil {
		return malformed("thread %q has no string table", t.Name)
	}
	strCount := t.StringTable.Len()

	s := &t.Samples
	if err := checkLen("samples", "time", len(s.Time), s.Length); err != nil {
		return err
	}
	if err := checkLen("samples", "stack", len(s.Stack), s.Length); err != nil {
		return err
	}
	if s.Responsiveness != nil {
		if err := checkLen("samples", "responsiveness", len(s.Responsiveness),
			s.Length); err != nil {
			return err
		}
	}

	st := &t.Stacks
	if err := checkLen("stackTable", "prefix", len(st.Prefix), st.Length); err != nil {
		return err
	}
	if err := checkLen("stackTable", "frame", len(st.Frame), st.Length); err != nil {
		return err
	}

	f := &t.Frames
	if err := checkColumns("frameTable", f.Length,
		column{"address", len(f.Address)},
		column{"category", len(f.Category)},
		column{"func", len(f.Func)},
		column{"implementation", len(f.Implementation)},
		column{"line", len(f.Line)},
		column{"column", len(f.Column)},
	); err != nil {
		return err
	}

	fn := &t.Funcs
	if err := checkColumns("funcTable", fn.Length,
		column{"name", len(fn.Name)},
		column{"resource", len(fn.Resource)},
		column{"isJS", len(fn.IsJS)},
		column{"relevantForJS", len(fn.RelevantForJS)},
		column{"fileName", len(fn.FileName)},
		column{"lineNumber", len(fn.LineNumber)},
		column{"columnNumber", len(fn.ColumnNumber)},
		column{"address", len(fn.Address)},
	); err != nil {
		return err
	}

	r := &t.Resources
	if err := checkColumns("resourceTable", r.Length,
		column{"lib", len(r.Lib)},
		column{"name", len(r.Name)},
		column{"host", len(r.Host)},
		column{"type", len(r.Type)},
	); err != nil {
		return err
	}

	m := &t.Markers
	if err := checkLen("markers", "time", len(m.Time), m.Length); err != nil {
		return err
	}
	if err := checkLen("markers", "name", len(m.Name), m.Length); err != nil {
		return err
	}
	if err := checkLen("markers", "data", len(m.Data), m.Length); err != nil {
		return err
	}

	for i, stack := range s.Stack {
		if stack != NoIndex && (stack < 0 || stack >= st.Length) {
			return malformed("sample %d refers to stack %d", i, stack)
		}
	}
	for i := 0; i < st.Length; i++ {
		if prefix := st.Prefix[i]; prefix != NoIndex && (prefix < 0 || prefix >= i) {
			return malformed("stack %d has prefix %d which is not an earlier row",
				i, prefix)
		}
		if frame := st.Frame[i]; frame < 0 || frame >= f.Length {
			return malformed("stack %d refers to frame %d", i, frame)
		}
	}
	for i, fi := range f.Func {
		if fi < 0 || fi >= fn.Length {
			return malformed("frame %d refers to func %d", i, fi)
		}
	}
	for i := 0; i < fn.Length; i++ {
		if name := fn.Name[i]; name < 0 || name >= strCount {
			return malformed("func %d refers to string %d", i, name)
		}
		if res := fn.Resource[i]; res != NoIndex && (res < 0 || res >= r.Length) {
			return malformed("func %d refers to resource %d", i, res)
		}
	}
	for i, name := range m.Name {
		if name < 0 || name >= strCount {
			return malformed("marker %d refers to string %d", i, name)
		}
	}
	return nil
}

// Validate checks every thread of the profile.
func (p *Profile) Validate() error {
	for i, t := range p.Threads {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("thread %d (%s): %w", i, t.Name, err)
		}
	}
	return nil
}
