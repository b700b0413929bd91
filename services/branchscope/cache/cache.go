// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides the key/value stores used to memoize loaded
// analysis documents and derived query results.
package cache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxSize is the entry bound used when a non-positive size is given.
const DefaultMaxSize = 1000

// Cache is a string-keyed store of arbitrary values.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (any, bool)

	// Set stores value under key. ttl is advisory; see LRU.
	Set(key string, value any, ttl time.Duration)

	// Delete removes key if present.
	Delete(key string)

	// Clear removes every entry.
	Clear()

	// Exists reports whether key is present.
	Exists(key string) bool

	// Len returns the number of entries.
	Len() int
}

// =============================================================================
// LRU
// =============================================================================

// LRU is a bounded cache that evicts the least recently accessed entry.
//
// Description:
//
//	Both Get and Set refresh an entry's recency; Exists does not. Inserting a
//	new key at capacity evicts the entry that was accessed longest ago.
//
// Limitations:
//
//	The ttl passed to Set is accepted and ignored. Entries live until they
//	are evicted, deleted or cleared.
//
// Thread Safety:
//
//	Safe for concurrent use; the underlying golang-lru cache is locked.
type LRU struct {
	entries *lru.Cache[string, any]
	maxSize int
}

// NewLRU creates an LRU cache bounded to maxSize entries.
//
// Inputs:
//   - maxSize: Entry bound. Non-positive values fall back to DefaultMaxSize.
//
// Outputs:
//   - *LRU: The cache.
//   - error: Non-nil only if the underlying cache cannot be created.
func NewLRU(maxSize int) (*LRU, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	entries, err := lru.New[string, any](maxSize)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &LRU{entries: entries, maxSize: maxSize}, nil
}

// Get returns the value for key and marks it most recently used.
func (c *LRU) Get(key string) (any, bool) {
	v, ok := c.entries.Get(key)
	recordLookup(ok)
	return v, ok
}

// Set stores value under key and marks it most recently used.
func (c *LRU) Set(key string, value any, _ time.Duration) {
	if evicted := c.entries.Add(key, value); evicted {
		recordEviction()
	}
}

// Delete removes key.
func (c *LRU) Delete(key string) {
	c.entries.Remove(key)
}

// Clear removes every entry.
func (c *LRU) Clear() {
	c.entries.Purge()
}

// Exists reports whether key is present without touching its recency.
func (c *LRU) Exists(key string) bool {
	return c.entries.Contains(key)
}

// Len returns the number of entries.
func (c *LRU) Len() int {
	return c.entries.Len()
}

// MaxSize returns the entry bound.
func (c *LRU) MaxSize() int {
	return c.maxSize
}

// =============================================================================
// NOOP
// =============================================================================

// Noop satisfies Cache without storing anything.
type Noop struct{}

// NewNoop returns a cache that never holds entries.
func NewNoop() Noop {
	return Noop{}
}

// Get always misses.
func (Noop) Get(string) (any, bool) { return nil, false }

// Set does nothing.
func (Noop) Set(string, any, time.Duration) {}

// Delete does nothing.
func (Noop) Delete(string) {}

// Clear does nothing.
func (Noop) Clear() {}

// Exists always reports false.
func (Noop) Exists(string) bool { return false }

// Len is always zero.
func (Noop) Len() int { return 0 }

var (
	_ Cache = (*LRU)(nil)
	_ Cache = Noop{}
)
