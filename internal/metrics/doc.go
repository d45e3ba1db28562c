// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

/*
Package metrics provides Prometheus metrics for the region sync engine.

All collectors are registered with the default registry through promauto
and exposed by the API server at /metrics.

# Overview

The package provides metrics for:
  - reconcile passes (duration, outcome, fetched and removed objects)
  - live events (applied, ignored, rejected) per event type
  - tolerant decoding drops and merge-patch decode failures
  - active regions and objects held per region
  - push channel connection state and reconnects
  - transport requests and circuit breaker state
  - rejected-event journal size

Label cardinality is bounded: the region label carries the scope kind, not
the scope key, so geo groups with arbitrary bounds do not explode series.

# Usage

	start := time.Now()
	res, err := rec.Reconcile(ctx)
	metrics.RecordReconcile(scope.Kind, time.Since(start), res.Fetched, res.Removed, err)
*/
package metrics
