// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package symbolication // import "go.opentelemetry.io/profile-viewer/symbolication"

import (
	"maps"
	"sync"
	"time"

	"go.opentelemetry.io/profile-viewer/metrics"
)

// FunctionsUpdate collects the merges and names for the funcs of one thread.
// Merging is applied before naming.
type FunctionsUpdate struct {
	OldFuncToNewFunc map[int]int
	FuncIndices      []int
	FuncNames        []string
}

// Batch maps thread indices to their pending update.
type Batch map[int]*FunctionsUpdate

// Scheduler runs a function at some later point, once.
type Scheduler func(func())

// TimerScheduler returns a Scheduler running functions after window elapsed.
func TimerScheduler(window time.Duration) Scheduler {
	return func(f func()) {
		time.AfterFunc(window, f)
	}
}

// Coalescer accumulates function updates until the scheduler fires, then
// dispatches them as one Batch. Batches are dispatched in the order they were
// flushed.
type Coalescer struct {
	mu        sync.Mutex
	pending   Batch
	scheduled bool

	schedule Scheduler
	dispatch func(Batch)
	// dispatchMu keeps dispatches from overtaking each other.
	dispatchMu sync.Mutex
}

// NewCoalescer creates a Coalescer. A nil schedule disables automatic
// dispatch, leaving the queue to explicit Flush calls.
func NewCoalescer(schedule Scheduler, dispatch func(Batch)) *Coalescer {
	return &Coalescer{
		pending:  make(Batch),
		schedule: schedule,
		dispatch: dispatch,
	}
}

func (c *Coalescer) updateLocked(thread int) *FunctionsUpdate {
	u, ok := c.pending[thread]
	if !ok {
		u = &FunctionsUpdate{OldFuncToNewFunc: make(map[int]int)}
		c.pending[thread] = u
	}
	return u
}

func (c *Coalescer) scheduleLocked() {
	if c.scheduled || c.schedule == nil {
		return
	}
	c.scheduled = true
	c.schedule(c.Dispatch)
}

// Enqueue adds an update for a thread to the queue. A merge mapping is
// composed with the pending one in both directions: funcs already mapped onto
// a func that is now merged follow it to its new target, and new targets that
// were merged earlier resolve to where they went.
func (c *Coalescer) Enqueue(thread int, update FunctionsUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	u := c.updateLocked(thread)
	if len(update.OldFuncToNewFunc) > 0 {
		resolved := make(map[int]int, len(update.OldFuncToNewFunc))
		for old, next := range update.OldFuncToNewFunc {
			if target, ok := u.OldFuncToNewFunc[next]; ok {
				next = target
			}
			resolved[old] = next
		}
		for old, cur := range u.OldFuncToNewFunc {
			if next, ok := resolved[cur]; ok {
				u.OldFuncToNewFunc[old] = next
			}
		}
		maps.Copy(u.OldFuncToNewFunc, resolved)
	}
	u.FuncIndices = append(u.FuncIndices, update.FuncIndices...)
	u.FuncNames = append(u.FuncNames, update.FuncNames...)
	c.scheduleLocked()
}

// MergeFunctions queues a merge mapping for a thread.
func (c *Coalescer) MergeFunctions(thread int, oldFuncToNewFunc map[int]int) {
	c.Enqueue(thread, FunctionsUpdate{OldFuncToNewFunc: oldFuncToNewFunc})
}

// AssignFunctionNames queues names for funcs of a thread.
func (c *Coalescer) AssignFunctionNames(thread int, funcIndices []int, funcNames []string) {
	c.Enqueue(thread, FunctionsUpdate{FuncIndices: funcIndices, FuncNames: funcNames})
}

// Callbacks returns symbolication callbacks feeding this queue.
func (c *Coalescer) Callbacks() Callbacks {
	return Callbacks{
		OnMergeFunctions: c.MergeFunctions,
		OnGotFuncNames:   c.AssignFunctionNames,
	}
}

// Flush empties the queue and returns what was pending, or nil.
func (c *Coalescer) Flush() Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduled = false
	if len(c.pending) == 0 {
		return nil
	}
	b := c.pending
	c.pending = make(Batch)
	return b
}

// Dispatch flushes the queue and hands a non-empty batch to the dispatch
// function.
func (c *Coalescer) Dispatch() {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	if b := c.Flush(); b != nil && c.dispatch != nil {
		metrics.Add(metrics.IDCoalescedBatches, 1)
		c.dispatch(b)
	}
}
