// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package xsync_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"go.opentelemetry.io/profile-viewer/internal/xsync"
)

type generations struct {
	perThread []uint64
}

func TestRWMutex(t *testing.T) {
	m := xsync.NewRWMutex(generations{perThread: make([]uint64, 4)})

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g := m.WLock()
			defer m.WUnlock(&g)
			g.perThread[i%4]++
		}()
	}
	wg.Wait()

	g := m.RLock()
	assert.Equal(t, []uint64{8, 8, 8, 8}, g.perThread)
	m.RUnlock(&g)
	assert.Nil(t, g)
}

func TestRWMutexCrashOnUseAfterUnlock(t *testing.T) {
	m := xsync.NewRWMutex(uint64(0))
	p := m.WLock()
	*p = 123
	m.WUnlock(&p)

	assert.Panics(t, func() {
		*p = 345
	})
}
