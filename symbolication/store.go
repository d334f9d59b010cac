// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package symbolication // import "go.opentelemetry.io/profile-viewer/symbolication"

import (
	"context"
	"fmt"

	lru "github.com/elastic/go-freelru"
	log "github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/singleflight"

	"go.opentelemetry.io/profile-viewer/internal/xsync"
	"go.opentelemetry.io/profile-viewer/metrics"
)

// SymbolProvider fetches the symbol table of a library build.
type SymbolProvider interface {
	RequestSymbolTable(ctx context.Context, debugName, breakpadID string) (*SymbolTable, error)
}

// SymbolProviderFunc adapts a function to SymbolProvider.
type SymbolProviderFunc func(ctx context.Context, debugName, breakpadID string) (*SymbolTable, error)

// RequestSymbolTable calls f.
func (f SymbolProviderFunc) RequestSymbolTable(ctx context.Context, debugName,
	breakpadID string) (*SymbolTable, error) {
	return f(ctx, debugName, breakpadID)
}

// LibKey identifies a library build.
type LibKey struct {
	DebugName  string
	BreakpadID string
}

func (k LibKey) String() string {
	return k.DebugName + "/" + k.BreakpadID
}

// RequestState is the state of a symbol table request.
type RequestState int

const (
	// Unrequested means no request was made for the library yet.
	Unrequested RequestState = iota
	Pending
	Resolved
	Failed
)

func (s RequestState) String() string {
	switch s {
	case Unrequested:
		return "unrequested"
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("RequestState(%d)", int(s))
	}
}

type request struct {
	state RequestState
	err   error
}

// StoreStats counts the requests a Store handled.
type StoreStats struct {
	Requests int
	Failures int
	Cached   int
}

// Store requests symbol tables from a provider at most once per library and
// keeps the results for reuse. Failed requests are remembered and not retried.
type Store struct {
	provider SymbolProvider
	tables   *lru.SyncedLRU[LibKey, *SymbolTable]
	inflight singleflight.Group
	requests xsync.RWMutex[map[LibKey]request]
}

func hashLibKey(k LibKey) uint32 {
	return uint32(xxh3.HashString(k.DebugName) ^ xxh3.HashString(k.BreakpadID))
}

// NewStore returns a store keeping up to size symbol tables.
func NewStore(provider SymbolProvider, size uint32) (*Store, error) {
	tables, err := lru.NewSynced[LibKey, *SymbolTable](size, hashLibKey)
	if err != nil {
		return nil, err
	}
	return &Store{
		provider: provider,
		tables:   tables,
		requests: xsync.NewRWMutex(make(map[LibKey]request)),
	}, nil
}

// State returns the request state of a library.
func (s *Store) State(lib LibKey) RequestState {
	requests := s.requests.RLock()
	defer s.requests.RUnlock(&requests)
	return (*requests)[lib].state
}

func (s *Store) setState(lib LibKey, r request) {
	requests := s.requests.WLock()
	defer s.requests.WUnlock(&requests)
	(*requests)[lib] = r
}

func (s *Store) clearState(lib LibKey) {
	requests := s.requests.WLock()
	defer s.requests.WUnlock(&requests)
	delete(*requests, lib)
}

// Stats returns the request counters of the store.
func (s *Store) Stats() StoreStats {
	requests := s.requests.RLock()
	defer s.requests.RUnlock(&requests)
	var stats StoreStats
	for _, r := range *requests {
		stats.Requests++
		if r.state == Failed {
			stats.Failures++
		}
	}
	stats.Cached = s.tables.Len()
	return stats
}

// cached returns the outcome of an earlier request for lib, if any.
func (s *Store) cached(lib LibKey) (*SymbolTable, bool, error) {
	if table, ok := s.tables.Get(lib); ok {
		return table, true, nil
	}
	requests := s.requests.RLock()
	defer s.requests.RUnlock(&requests)
	if r := (*requests)[lib]; r.state == Failed {
		return nil, true, r.err
	}
	return nil, false, nil
}

// SymbolTable returns the symbol table of lib. Concurrent calls for the same
// library share one provider request.
func (s *Store) SymbolTable(ctx context.Context, lib LibKey) (*SymbolTable, error) {
	if table, done, err := s.cached(lib); done {
		return table, err
	}

	v, err, _ := s.inflight.Do(lib.String(), func() (any, error) {
		if table, done, err := s.cached(lib); done {
			return table, err
		}
		s.setState(lib, request{state: Pending})
		metrics.Add(metrics.IDSymbolTableRequests, 1)

		table, err := s.provider.RequestSymbolTable(ctx, lib.DebugName, lib.BreakpadID)
		if err == nil {
			err = table.Validate()
		}
		if err != nil && ctx.Err() != nil {
			// Canceled requests may be retried.
			s.clearState(lib)
			return nil, ctx.Err()
		}
		if err != nil {
			err = fmt.Errorf("%w: %s: %v", ErrSymbolicationFailure, lib, err)
			metrics.Add(metrics.IDSymbolTableFailures, 1)
			s.setState(lib, request{state: Failed, err: err})
			return nil, err
		}
		log.WithFields(log.Fields{
			"lib":     lib.DebugName,
			"id":      lib.BreakpadID,
			"symbols": table.Len(),
		}).Debug("Received symbol table")
		s.tables.Add(lib, table)
		s.setState(lib, request{state: Resolved})
		return table, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SymbolTable), nil
}
