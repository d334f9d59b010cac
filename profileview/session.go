// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package profileview derives the views of a loaded profile: filtered threads,
// call trees and timing rows. Every derivation step is memoized per thread and
// parameter combination. Symbolication results replace threads atomically,
// readers observe either the old or the new thread.
package profileview // import "go.opentelemetry.io/profile-viewer/profileview"

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	lru "github.com/elastic/go-freelru"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"

	"go.opentelemetry.io/profile-viewer/callnode"
	"go.opentelemetry.io/profile-viewer/calltree"
	"go.opentelemetry.io/profile-viewer/internal/xsync"
	"go.opentelemetry.io/profile-viewer/markers"
	"go.opentelemetry.io/profile-viewer/metrics"
	"go.opentelemetry.io/profile-viewer/profile"
	"go.opentelemetry.io/profile-viewer/symbolication"
	"go.opentelemetry.io/profile-viewer/timing"
	"go.opentelemetry.io/profile-viewer/transform"
)

// ErrNoSuchThread is returned for thread indices outside of the profile.
var ErrNoSuchThread = errors.New("no such thread")

const (
	stageRange = iota
	stageTransforms
	stageImplementation
	stageSearch
	stageInvert
	stageSelection
	numStages
)

// DefaultCacheSize is the default number of entries per memoization table.
const DefaultCacheSize = 256

// cacheKey identifies a derivation by the profile it was computed from, the
// thread and its generation, and the parameters.
type cacheKey struct {
	session    uuid.UUID
	thread     int
	generation uint64
	params     string
}

func hashCacheKey(k cacheKey) uint32 {
	h := xxh3.HashString(k.params) ^ xxh3.Hash(k.session[:])
	h ^= uint64(k.thread)*0x9e3779b97f4a7c15 ^ k.generation*0xc2b2ae3d27d4eb4f
	return uint32(h ^ h>>32)
}

type memo[V any] struct {
	cache *lru.SyncedLRU[cacheKey, V]
}

func newMemo[V any](size uint32) (memo[V], error) {
	cache, err := lru.NewSynced[cacheKey, V](size, hashCacheKey)
	return memo[V]{cache: cache}, err
}

func (m memo[V]) get(key cacheKey, compute func() V) V {
	if v, ok := m.cache.Get(key); ok {
		metrics.Add(metrics.IDDerivedCacheHit, 1)
		return v
	}
	metrics.Add(metrics.IDDerivedCacheMiss, 1)
	v := compute()
	m.cache.Add(key, v)
	return v
}

func (m memo[V]) purge() {
	m.cache.Purge()
}

// ThreadView is the per-thread interaction state that has to follow
// function merges: the transform stack, the selected call node and the
// expanded call nodes.
type ThreadView struct {
	Transforms []transform.Transform
	Selected   callnode.Path
	Expanded   *callnode.PathSet
}

func (v ThreadView) clone() ThreadView {
	expanded := callnode.NewPathSet()
	if v.Expanded != nil {
		expanded = v.Expanded.Clone()
	}
	return ThreadView{
		Transforms: slices.Clone(v.Transforms),
		Selected:   slices.Clone(v.Selected),
		Expanded:   expanded,
	}
}

type sessionState struct {
	id          uuid.UUID
	profile     *profile.Profile
	generations []uint64
	views       []ThreadView
}

// Session owns a loaded profile and the memoized derivations over it.
type Session struct {
	state xsync.RWMutex[sessionState]

	threads  memo[*profile.Thread]
	infos    memo[*callnode.Info]
	trees    memo[*calltree.CallTree]
	stacks   memo[[]timing.StackTiming]
	tracing  memo[[]markers.TracingMarker]
	lanes    memo[[]timing.MarkerTiming]
	maxDepth memo[int]
}

// New creates a session for p. cacheSize bounds every memoization table.
func New(p *profile.Profile, cacheSize uint32) (*Session, error) {
	if cacheSize == 0 {
		cacheSize = DefaultCacheSize
	}
	s := &Session{state: xsync.NewRWMutex(sessionState{})}
	var err error
	if s.threads, err = newMemo[*profile.Thread](cacheSize); err != nil {
		return nil, err
	}
	if s.infos, err = newMemo[*callnode.Info](cacheSize); err != nil {
		return nil, err
	}
	if s.trees, err = newMemo[*calltree.CallTree](cacheSize); err != nil {
		return nil, err
	}
	if s.stacks, err = newMemo[[]timing.StackTiming](cacheSize); err != nil {
		return nil, err
	}
	if s.tracing, err = newMemo[[]markers.TracingMarker](cacheSize); err != nil {
		return nil, err
	}
	if s.lanes, err = newMemo[[]timing.MarkerTiming](cacheSize); err != nil {
		return nil, err
	}
	if s.maxDepth, err = newMemo[int](cacheSize); err != nil {
		return nil, err
	}
	s.Replace(p)
	return s, nil
}

// Replace swaps in a new profile and returns the new session id. Updates
// addressed to the previous id are ignored from now on, derivations still
// running against the previous profile are cached under its id and never
// served again.
func (s *Session) Replace(p *profile.Profile) uuid.UUID {
	id := uuid.New()
	views := make([]ThreadView, len(p.Threads))
	for i := range views {
		views[i].Expanded = callnode.NewPathSet()
	}
	state := s.state.WLock()
	*state = sessionState{
		id:          id,
		profile:     p,
		generations: make([]uint64, len(p.Threads)),
		views:       views,
	}
	s.state.WUnlock(&state)

	for _, m := range []interface{ purge() }{s.threads, s.infos, s.trees, s.stacks,
		s.tracing, s.lanes, s.maxDepth} {
		m.purge()
	}
	metrics.Add(metrics.IDLoadedThreads, metrics.MetricValue(len(p.Threads)))
	log.WithFields(log.Fields{
		"session": id,
		"threads": len(p.Threads),
	}).Debug("Loaded profile into session")
	return id
}

// ID returns the id of the current profile.
func (s *Session) ID() uuid.UUID {
	state := s.state.RLock()
	defer s.state.RUnlock(&state)
	return state.id
}

// Profile returns the current profile. It must not be modified.
func (s *Session) Profile() *profile.Profile {
	state := s.state.RLock()
	defer s.state.RUnlock(&state)
	return state.profile
}

// threadSnapshot is a thread as seen at one point in time.
type threadSnapshot struct {
	session    uuid.UUID
	thread     *profile.Thread
	generation uint64
	interval   float64
}

// thread returns a consistent snapshot of a thread and its generation.
func (s *Session) thread(index int) (threadSnapshot, error) {
	state := s.state.RLock()
	defer s.state.RUnlock(&state)
	if index < 0 || index >= len(state.profile.Threads) {
		return threadSnapshot{}, fmt.Errorf("%w: %d", ErrNoSuchThread, index)
	}
	return threadSnapshot{
		session:    state.id,
		thread:     state.profile.Threads[index],
		generation: state.generations[index],
		interval:   state.profile.Meta.Interval,
	}, nil
}

// View returns a copy of the interaction state of a thread.
func (s *Session) View(index int) (ThreadView, error) {
	state := s.state.RLock()
	defer s.state.RUnlock(&state)
	if index < 0 || index >= len(state.views) {
		return ThreadView{}, fmt.Errorf("%w: %d", ErrNoSuchThread, index)
	}
	return state.views[index].clone(), nil
}

// UpdateView modifies the interaction state of a thread.
func (s *Session) UpdateView(index int, update func(*ThreadView)) error {
	state := s.state.WLock()
	defer s.state.WUnlock(&state)
	if index < 0 || index >= len(state.views) {
		return fmt.Errorf("%w: %d", ErrNoSuchThread, index)
	}
	update(&state.views[index])
	return nil
}

// ApplyFunctionsUpdate applies a coalesced symbolication batch. Batches for
// a profile other than the current one are dropped and false is returned.
func (s *Session) ApplyFunctionsUpdate(id uuid.UUID, batch symbolication.Batch) bool {
	state := s.state.WLock()
	defer s.state.WUnlock(&state)
	if id != state.id {
		metrics.Add(metrics.IDStaleBatches, 1)
		log.WithField("session", id).Debug("Ignoring symbolication batch of a replaced profile")
		return false
	}

	p := *state.profile
	p.Threads = slices.Clone(p.Threads)
	for index, update := range batch {
		if index < 0 || index >= len(p.Threads) {
			continue
		}
		p.Threads[index] = symbolication.ApplyUpdate(p.Threads[index], update)
		state.generations[index]++
		if len(update.OldFuncToNewFunc) > 0 {
			state.views[index] = remapView(state.views[index], update.OldFuncToNewFunc)
		}
	}
	state.profile = &p
	return true
}

func remapView(v ThreadView, oldFuncToNewFunc map[int]int) ThreadView {
	remap := func(fn int) int {
		if n, ok := oldFuncToNewFunc[fn]; ok {
			return n
		}
		return fn
	}
	out := ThreadView{
		Transforms: make([]transform.Transform, len(v.Transforms)),
		Selected:   symbolication.RemapPath(v.Selected, oldFuncToNewFunc),
		Expanded:   callnode.NewPathSet(),
	}
	for i, tr := range v.Transforms {
		out.Transforms[i] = transform.RemapFuncs(tr, remap)
	}
	if v.Expanded != nil {
		for _, path := range v.Expanded.Values() {
			out.Expanded.Add(symbolication.RemapPath(path, oldFuncToNewFunc))
		}
	}
	return out
}

// Symbolicate resolves the native functions of the current profile. Results
// are batched within window and applied while readers keep using the
// session. It returns once every library was processed.
func (s *Session) Symbolicate(ctx context.Context, store *symbolication.Store,
	window time.Duration) error {
	state := s.state.RLock()
	id, p := state.id, state.profile
	s.state.RUnlock(&state)

	queue := symbolication.NewCoalescer(symbolication.TimerScheduler(window),
		func(b symbolication.Batch) { s.ApplyFunctionsUpdate(id, b) })
	err := symbolication.Symbolicate(ctx, p, store, queue.Callbacks())
	queue.Dispatch()
	return err
}
