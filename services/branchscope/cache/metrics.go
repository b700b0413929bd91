// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("branchscope.cache")

var (
	lookupsTotal   metric.Int64Counter
	evictionsTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments on first use.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		lookupsTotal, err = meter.Int64Counter(
			"branchscope_cache_lookups_total",
			metric.WithDescription("Cache lookups by result"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		evictionsTotal, err = meter.Int64Counter(
			"branchscope_cache_evictions_total",
			metric.WithDescription("Entries evicted to stay within the size bound"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordLookup(hit bool) {
	if err := initMetrics(); err != nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	lookupsTotal.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
}

func recordEviction() {
	if err := initMetrics(); err != nil {
		return
	}
	evictionsTotal.Add(context.Background(), 1)
}
