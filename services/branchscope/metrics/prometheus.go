// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "branchscope_operation_duration_seconds",
		Help:    "Duration of analysis service operations",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"operation"})

	cacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "branchscope_cache_requests_total",
		Help: "Service cache lookups by result",
	}, []string{"result"})

	operationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "branchscope_operation_errors_total",
		Help: "Failed analysis service operations by error kind",
	}, []string{"operation", "kind"})
)

// Prometheus exports measurements to the default Prometheus registry.
//
// Cache keys are not used as labels because hotspot limits make them
// unbounded; lookups are counted by result only. Summary is always empty;
// pair with Memory through Multi when a summary is needed.
type Prometheus struct{}

// NewPrometheus returns a collector backed by package-level promauto metrics.
func NewPrometheus() Prometheus {
	return Prometheus{}
}

func (Prometheus) RecordOperation(operation string, d time.Duration) {
	operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (Prometheus) RecordCacheHit(string) {
	cacheRequestsTotal.WithLabelValues("hit").Inc()
}

func (Prometheus) RecordCacheMiss(string) {
	cacheRequestsTotal.WithLabelValues("miss").Inc()
}

func (Prometheus) RecordError(operation, kind string) {
	operationErrorsTotal.WithLabelValues(operation, kind).Inc()
}

func (Prometheus) Summary() Summary { return emptySummary() }

var _ Collector = Prometheus{}
