// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	before := Snapshot()

	AddSlice([]Metric{
		{IDUpgradeSteps, MetricValue(3)},
		{IDDerivedCacheMiss, MetricValue(0)},
		{IDLoadedThreads, MetricValue(7)},
	})
	Add(IDUpgradeSteps, 2)
	Add(IDLoadedThreads, 4)
	// Out of range values are dropped.
	Add(IDMax, 1)
	Add(IDInvalid, 1)

	after := Snapshot()
	assert.Equal(t, before[IDUpgradeSteps]+5, after[IDUpgradeSteps])
	assert.Equal(t, before[IDDerivedCacheMiss], after[IDDerivedCacheMiss])
	assert.Equal(t, MetricValue(4), after[IDLoadedThreads])
	_, ok := after[IDMax]
	assert.False(t, ok)
}

func TestGetDefinitions(t *testing.T) {
	defs := GetDefinitions()
	require.Len(t, defs, IDMax-1)
	seen := make(map[MetricID]bool)
	for _, d := range defs {
		assert.False(t, seen[d.ID], "duplicate id %d", d.ID)
		seen[d.ID] = true
		assert.NotEmpty(t, d.Field)
	}
	assert.Equal(t, "profview.gecko.upgrade_steps", NameOf(IDUpgradeSteps))
}
