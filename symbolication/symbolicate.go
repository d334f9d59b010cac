// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package symbolication // import "go.opentelemetry.io/profile-viewer/symbolication"

import (
	"context"
	"errors"
	"slices"

	"github.com/ianlancetaylor/demangle"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go.opentelemetry.io/profile-viewer/metrics"
	"go.opentelemetry.io/profile-viewer/profile"
)

// maxConcurrentLibs bounds the number of libraries symbolicated in parallel.
const maxConcurrentLibs = 8

// Callbacks receive the results of a symbolication run. They are called
// concurrently from multiple goroutines.
type Callbacks struct {
	// OnMergeFunctions reports funcs of a thread that resolved to the same
	// symbol as a lower indexed func and should be replaced by it.
	OnMergeFunctions func(thread int, oldFuncToNewFunc map[int]int)
	// OnGotFuncNames reports the symbol names of funcs of a thread.
	OnGotFuncNames func(thread int, funcIndices []int, funcNames []string)
}

type libJob struct {
	thread int
	lib    int
	funcs  []int
}

// unsymbolicatedFuncs groups the funcs of a thread that still carry a raw
// address by the lib they belong to.
func unsymbolicatedFuncs(thread int, t *profile.Thread) []libJob {
	byLib := make(map[int][]int)
	var libs []int
	for fn := 0; fn < t.Funcs.Length; fn++ {
		res := t.Funcs.Resource[fn]
		if res == profile.NoIndex || t.Funcs.Address[fn] < 0 {
			continue
		}
		if t.Resources.Type[res] != profile.ResourceTypeLibrary {
			continue
		}
		lib := t.Resources.Lib[res]
		if lib < 0 || lib >= len(t.Libs) || !profile.IsHexAddress(t.FuncName(fn)) {
			continue
		}
		if _, ok := byLib[lib]; !ok {
			libs = append(libs, lib)
		}
		byLib[lib] = append(byLib[lib], fn)
	}
	jobs := make([]libJob, 0, len(libs))
	for _, lib := range libs {
		jobs = append(jobs, libJob{thread: thread, lib: lib, funcs: byLib[lib]})
	}
	return jobs
}

// symbolicateLib resolves funcs against a symbol table. Funcs resolving to the
// same symbol are merged into the one with the lowest index, which receives the
// demangled symbol name.
func symbolicateLib(table *SymbolTable, t *profile.Thread, funcs []int) (
	oldFuncToNewFunc map[int]int, funcIndices []int, funcNames []string) {
	canonical := make(map[int]int)
	oldFuncToNewFunc = make(map[int]int)
	for _, fn := range funcs {
		sym := table.Lookup(uint64(t.Funcs.Address[fn]))
		if sym < 0 {
			continue
		}
		if first, ok := canonical[sym]; ok {
			oldFuncToNewFunc[fn] = first
			continue
		}
		canonical[sym] = fn
		funcIndices = append(funcIndices, fn)
		funcNames = append(funcNames, demangle.Filter(table.Name(sym)))
	}
	return oldFuncToNewFunc, funcIndices, funcNames
}

// Symbolicate resolves the raw addresses of all threads of p. Every library is
// requested through store, failures are logged and leave the affected funcs
// untouched. The profile itself is not modified, results are reported through
// cb. Symbolicate returns when all libraries were processed or ctx is done.
func Symbolicate(ctx context.Context, p *profile.Profile, store *Store, cb Callbacks) error {
	var jobs []libJob
	for i, t := range p.Threads {
		jobs = append(jobs, unsymbolicatedFuncs(i, t)...)
	}
	log.WithField("libraries", len(jobs)).Info("Starting symbolication")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLibs)
	for _, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t := p.Threads[job.thread]
			lib := t.Libs[job.lib]
			table, err := store.SymbolTable(ctx, LibKey{
				DebugName:  lib.DebugName,
				BreakpadID: lib.BreakpadID,
			})
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				log.WithFields(log.Fields{
					"lib":    lib.DebugName,
					"thread": t.Name,
				}).Warnf("Failed to symbolicate: %v", err)
				return nil
			}

			merged, funcs, names := symbolicateLib(table, t, job.funcs)
			if len(merged) > 0 && cb.OnMergeFunctions != nil {
				cb.OnMergeFunctions(job.thread, merged)
			}
			if len(funcs) > 0 && cb.OnGotFuncNames != nil {
				cb.OnGotFuncNames(job.thread, funcs, names)
			}
			metrics.Add(metrics.IDSymbolicatedFuncs, metrics.MetricValue(len(funcs)+len(merged)))
			return nil
		})
	}
	err := g.Wait()
	log.WithField("libraries", len(jobs)).Info("Finished symbolication")
	return err
}

// RemapPath maps the funcs of a call node path through a merge mapping. The
// input is not modified.
func RemapPath(path []int, oldFuncToNewFunc map[int]int) []int {
	out := slices.Clone(path)
	for i, fn := range out {
		if n, ok := oldFuncToNewFunc[fn]; ok {
			out[i] = n
		}
	}
	return out
}
