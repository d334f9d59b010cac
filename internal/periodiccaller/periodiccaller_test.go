// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package periodiccaller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodicCaller(t *testing.T) {
	interval := 10 * time.Millisecond
	trigger := make(chan struct{}, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := Start(ctx, interval, func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	})
	defer stop()

	timeout := time.NewTimer(time.Second)
	defer timeout.Stop()
	for range 2 {
		select {
		case <-trigger:
		case <-timeout.C:
			t.Fatal("timeout - periodiccaller not working")
		}
	}
}

func TestPeriodicCallerStop(t *testing.T) {
	var calls atomic.Int32
	stop := Start(context.Background(), time.Millisecond, func() {
		calls.Add(1)
	})
	time.Sleep(20 * time.Millisecond)
	stop()
	// Let a callback that was already running finish.
	time.Sleep(5 * time.Millisecond)
	stopped := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load())
}
