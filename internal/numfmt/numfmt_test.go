// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package numfmt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNumber(t *testing.T) {
	tests := []struct {
		value    float64
		expected string
	}{
		{123, "123"},
		{12.3, "12"},
		{1.23, "1.2"},
		{0.01234, "0.012"},
		{1234567, "1,234,567"},
		{math.NaN(), "NaN"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, Number(tc.value, 2, 3), "%v", tc.value)
	}
}

func TestDependingOnInterval(t *testing.T) {
	assert.Equal(t, "6", DependingOnInterval(true, 6))
	assert.Equal(t, "6.0", DependingOnInterval(false, 6))
	assert.Equal(t, "7", DependingOnInterval(true, 6.555))
	assert.Equal(t, "6.6", DependingOnInterval(false, 6.555))
	assert.Equal(t, "1,230", DependingOnInterval(true, 1230))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "40%", Percent(0.4))
	assert.Equal(t, "100%", Percent(1))
	assert.Equal(t, "12%", Percent(0.123))
	assert.Equal(t, "1.2%", Percent(0.0123))
}

func TestUnits(t *testing.T) {
	assert.Equal(t, "12ms", Milliseconds(12.3))
	assert.Equal(t, "512B", Bytes(512))
	assert.Equal(t, "20.0KB", Bytes(20*1024))
	assert.Equal(t, "3.00MB", Bytes(3*1024*1024))
}
