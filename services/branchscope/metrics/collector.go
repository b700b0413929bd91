// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics records operation timings, cache hit/miss counts and error
// counts for the analysis service.
package metrics

import (
	"math"
	"sync"
	"time"
)

// Collector receives measurements from the analysis service.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use.
type Collector interface {
	RecordOperation(operation string, d time.Duration)
	RecordCacheHit(key string)
	RecordCacheMiss(key string)
	RecordError(operation, kind string)
	Summary() Summary
}

// OperationStats aggregates timings for one operation, in seconds.
type OperationStats struct {
	Count       int     `json:"count"`
	AvgDuration float64 `json:"avg_duration"`
	MinDuration float64 `json:"min_duration"`
	MaxDuration float64 `json:"max_duration"`
}

// CacheStats aggregates cache lookups across all keys.
type CacheStats struct {
	TotalHits     int     `json:"total_hits"`
	TotalMisses   int     `json:"total_misses"`
	TotalRequests int     `json:"total_requests"`
	HitRate       float64 `json:"hit_rate"`
}

// Summary is a point-in-time view of collected metrics.
type Summary struct {
	Operations map[string]OperationStats `json:"operations"`
	Cache      CacheStats                `json:"cache"`
	Errors     map[string]map[string]int `json:"errors"`
}

func emptySummary() Summary {
	return Summary{
		Operations: map[string]OperationStats{},
		Errors:     map[string]map[string]int{},
	}
}

// =============================================================================
// MEMORY
// =============================================================================

type timing struct {
	count int
	sum   float64
	min   float64
	max   float64
}

// Memory aggregates metrics in process memory.
//
// Thread Safety:
//
//	Safe for concurrent use; all state is guarded by a mutex.
type Memory struct {
	mu         sync.Mutex
	operations map[string]*timing
	hits       map[string]int
	misses     map[string]int
	errors     map[string]map[string]int
}

// NewMemory creates an empty in-memory collector.
func NewMemory() *Memory {
	return &Memory{
		operations: make(map[string]*timing),
		hits:       make(map[string]int),
		misses:     make(map[string]int),
		errors:     make(map[string]map[string]int),
	}
}

// RecordOperation adds one timing sample for operation.
func (m *Memory) RecordOperation(operation string, d time.Duration) {
	secs := d.Seconds()
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.operations[operation]
	if !ok {
		t = &timing{min: math.Inf(1), max: math.Inf(-1)}
		m.operations[operation] = t
	}
	t.count++
	t.sum += secs
	t.min = math.Min(t.min, secs)
	t.max = math.Max(t.max, secs)
}

// RecordCacheHit counts a hit for key.
func (m *Memory) RecordCacheHit(key string) {
	m.mu.Lock()
	m.hits[key]++
	m.mu.Unlock()
}

// RecordCacheMiss counts a miss for key.
func (m *Memory) RecordCacheMiss(key string) {
	m.mu.Lock()
	m.misses[key]++
	m.mu.Unlock()
}

// RecordError counts an error of kind for operation.
func (m *Memory) RecordError(operation, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byKind, ok := m.errors[operation]
	if !ok {
		byKind = make(map[string]int)
		m.errors[operation] = byKind
	}
	byKind[kind]++
}

// CacheCounts returns the hit and miss counts recorded for key.
func (m *Memory) CacheCounts(key string) (hits, misses int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[key], m.misses[key]
}

// Summary computes per-operation stats, cache totals and error counts.
// The hit rate is 0 when no lookups were recorded.
func (m *Memory) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := emptySummary()
	for op, t := range m.operations {
		s.Operations[op] = OperationStats{
			Count:       t.count,
			AvgDuration: t.sum / float64(t.count),
			MinDuration: t.min,
			MaxDuration: t.max,
		}
	}
	for _, n := range m.hits {
		s.Cache.TotalHits += n
	}
	for _, n := range m.misses {
		s.Cache.TotalMisses += n
	}
	s.Cache.TotalRequests = s.Cache.TotalHits + s.Cache.TotalMisses
	if s.Cache.TotalRequests > 0 {
		s.Cache.HitRate = float64(s.Cache.TotalHits) / float64(s.Cache.TotalRequests)
	}
	for op, byKind := range m.errors {
		copied := make(map[string]int, len(byKind))
		for k, n := range byKind {
			copied[k] = n
		}
		s.Errors[op] = copied
	}
	return s
}

// =============================================================================
// NOOP AND FAN-OUT
// =============================================================================

// Noop discards every measurement.
type Noop struct{}

func (Noop) RecordOperation(string, time.Duration) {}
func (Noop) RecordCacheHit(string) {}
func (Noop) RecordCacheMiss(string) {}
func (Noop) RecordError(string, string) {}

// Summary is always empty.
func (Noop) Summary() Summary { return emptySummary() }

// Multi forwards every measurement to each collector in order.
// Summary is taken from the first collector.
type Multi []Collector

func (m Multi) RecordOperation(operation string, d time.Duration) {
	for _, c := range m {
		c.RecordOperation(operation, d)
	}
}

func (m Multi) RecordCacheHit(key string) {
	for _, c := range m {
		c.RecordCacheHit(key)
	}
}

func (m Multi) RecordCacheMiss(key string) {
	for _, c := range m {
		c.RecordCacheMiss(key)
	}
}

func (m Multi) RecordError(operation, kind string) {
	for _, c := range m {
		c.RecordError(operation, kind)
	}
}

func (m Multi) Summary() Summary {
	if len(m) == 0 {
		return emptySummary()
	}
	return m[0].Summary()
}

var (
	_ Collector = (*Memory)(nil)
	_ Collector = Noop{}
	_ Collector = Multi(nil)
)
