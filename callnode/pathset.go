// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package callnode // import "go.opentelemetry.io/profile-viewer/callnode"

import (
	"strconv"
	"strings"
)

// key encodes a path into a comparable map key.
func (p Path) key() string {
	var b strings.Builder
	for i, fn := range p {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(fn))
	}
	return b.String()
}

// PathSet is a set of paths that keeps order of insertion. Added paths are
// copied, later changes to the caller's slice don't affect the set.
type PathSet struct {
	index map[string]int
	paths []Path
}

// NewPathSet returns a set holding paths, duplicates are ignored.
func NewPathSet(paths ...Path) *PathSet {
	s := &PathSet{index: make(map[string]int, len(paths))}
	for _, p := range paths {
		s.Add(p)
	}
	return s
}

// Add adds a path and reports whether it was not yet present.
func (s *PathSet) Add(p Path) bool {
	k := p.key()
	if _, exists := s.index[k]; exists {
		return false
	}
	s.index[k] = len(s.paths)
	s.paths = append(s.paths, append(Path(nil), p...))
	return true
}

// Delete removes a path and reports whether it was present.
func (s *PathSet) Delete(p Path) bool {
	k := p.key()
	idx, exists := s.index[k]
	if !exists {
		return false
	}
	delete(s.index, k)
	s.paths = append(s.paths[:idx], s.paths[idx+1:]...)
	for i := idx; i < len(s.paths); i++ {
		s.index[s.paths[i].key()] = i
	}
	return true
}

// Has reports whether p is part of the set.
func (s *PathSet) Has(p Path) bool {
	_, exists := s.index[p.key()]
	return exists
}

// Len returns the number of paths.
func (s *PathSet) Len() int {
	return len(s.paths)
}

// Clear removes all paths.
func (s *PathSet) Clear() {
	clear(s.index)
	s.paths = nil
}

// Values returns the paths in insertion order.
func (s *PathSet) Values() []Path {
	out := make([]Path, len(s.paths))
	for i, p := range s.paths {
		out[i] = append(Path(nil), p...)
	}
	return out
}

// Clone returns an independent copy of the set.
func (s *PathSet) Clone() *PathSet {
	return NewPathSet(s.paths...)
}
