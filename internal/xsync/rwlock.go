// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package xsync wraps locking primitives together with the data they guard.
package xsync // import "go.opentelemetry.io/profile-viewer/internal/xsync"

import "sync"

// RWMutex guards a value of type T. The value is only reachable through the
// pointer returned by RLock or WLock, and the matching unlock invalidates that
// pointer so use after unlock crashes instead of racing.
//
//	type Session struct {
//		state xsync.RWMutex[sessionState]
//	}
//
//	func (s *Session) Threads() int {
//		state := s.state.RLock()
//		defer s.state.RUnlock(&state)
//		return len(state.profile.Threads)
//	}
type RWMutex[T any] struct {
	guarded T
	mutex   sync.RWMutex
}

// NewRWMutex creates a new read-write mutex guarding value.
func NewRWMutex[T any](value T) RWMutex[T] {
	return RWMutex[T]{guarded: value}
}

// RLock locks the mutex for reading. The caller must not write through the
// returned pointer nor keep it beyond the matching RUnlock.
func (mtx *RWMutex[T]) RLock() *T {
	mtx.mutex.RLock()
	return &mtx.guarded
}

// RUnlock unlocks the mutex and clears the pointer obtained from RLock.
func (mtx *RWMutex[T]) RUnlock(ref **T) {
	*ref = nil
	mtx.mutex.RUnlock()
}

// WLock locks the mutex for writing. The caller must not keep the returned
// pointer beyond the matching WUnlock.
func (mtx *RWMutex[T]) WLock() *T {
	mtx.mutex.Lock()
	return &mtx.guarded
}

// WUnlock unlocks the mutex and clears the pointer obtained from WLock.
func (mtx *RWMutex[T]) WUnlock(ref **T) {
	*ref = nil
	mtx.mutex.Unlock()
}
