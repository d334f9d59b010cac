// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package vc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	oldVersion, oldRevision, oldTimestamp := version, revision, buildTimestamp
	t.Cleanup(func() {
		version, revision, buildTimestamp = oldVersion, oldRevision, oldTimestamp
	})

	version, revision, buildTimestamp = "", "", ""
	assert.Equal(t, "devel", String())

	version, revision, buildTimestamp = "v0.3.0", "abc1234", "2024-05-01T10:00:00Z"
	assert.Equal(t, "v0.3.0 (revision: abc1234, built: 2024-05-01T10:00:00Z)", String())
}
