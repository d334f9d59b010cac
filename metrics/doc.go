// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

/*
Package metrics counts what the profile viewer core does: format upgrades,
memoization hits and misses, symbol table requests and coalesced update batches.

Metric IDs are generated from metrics.json. Every definition becomes an OTel
Int64Counter or Int64Gauge on the global meter provider, so an embedding
application only has to install a MeterProvider to export them.

	metrics.Add(metrics.IDUpgradeSteps, 1)

# Directory Structure

	metrics
	├── genids/         // generates ids.go from metrics.json
	├── doc.go          // this file
	├── ids.go          // generated metric ids
	├── metrics.go      // implement Add(), AddSlice() and Snapshot()
	├── metrics.json    // metric definitions, ONLY APPEND
	├── metrics_test.go // tests the metrics package
	└── types.go        // definitions of Metric, MetricID, MetricValue
*/
package metrics // import "go.opentelemetry.io/profile-viewer/metrics"
