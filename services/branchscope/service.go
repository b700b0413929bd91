// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package branchscope serves aggregated Branch dependency findings over HTTP.
//
// The Service holds the most recently loaded analysis document and answers
// summary, hotspot, type, search and per-file queries from it. Derived views
// are cached; the document is reloaded whenever the file on disk is newer
// than the copy in memory.
package branchscope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/branchscope/services/branchscope/cache"
	"github.com/AleutianAI/branchscope/services/branchscope/domain"
	"github.com/AleutianAI/branchscope/services/branchscope/metrics"
	"github.com/AleutianAI/branchscope/services/branchscope/repository"
	"github.com/AleutianAI/branchscope/services/branchscope/telemetry"
	"github.com/AleutianAI/branchscope/services/branchscope/validation"
)

// Cache keys and lifetimes for derived views.
const (
	summaryCacheKey      = "summary_statistics"
	hotspotsCacheKey     = "hotspots_"
	dependenciesCacheKey = "dependencies_by_type_"

	SummaryTTL = 30 * time.Minute
	ViewTTL    = time.Hour
)

// Operation names used for metrics and error wrapping.
const (
	OpGetSummaryStatistics   = "get_summary_statistics"
	OpFindDependencyHotspots = "find_dependency_hotspots"
	OpGetDependenciesByType  = "get_dependencies_by_type"
	OpSearchDependencies     = "search_dependencies"
	OpGetFileAnalysis        = "get_file_analysis"
	OpRefreshAnalysis        = "refresh_analysis"
)

// ErrNilRepository is returned by NewService when no repository is given.
var ErrNilRepository = errors.New("repository must not be nil")

var tracer = otel.Tracer("branchscope.service")

// Service answers dependency queries against the analysis document.
//
// Description:
//
//	Service keeps a snapshot of the loaded result together with the
//	document modification time observed when it was loaded. Every
//	operation first checks the repository's modification time and reloads
//	when the document has changed. A staleness reload also drops the
//	repository's cached copy and every derived view this service cached.
//	Concurrent reloads collapse into one through singleflight. Cached views
//	are tagged with the snapshot they were computed from and are only
//	served to requests holding that same snapshot.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Service struct {
	repo      repository.Repository
	cache     cache.Cache
	validator validation.Validator
	metrics   metrics.Collector

	mu          sync.RWMutex
	current     *domain.AnalysisResult
	loadedAt    time.Time
	observed    time.Time
	hasObserved bool

	reloads singleflight.Group

	keysMu sync.Mutex
	keys   map[string]struct{}
}

// NewService creates a Service.
//
// Inputs:
//   - repo: Source of the analysis document. Required.
//   - c: Cache for derived views. Nil means no caching.
//   - v: Input predicates. Nil means validation.Standard.
//   - m: Metrics sink. Nil means metrics.Noop.
//
// Outputs:
//   - *Service: Ready to use. Nothing is loaded until the first query.
//   - error: ErrNilRepository.
func NewService(repo repository.Repository, c cache.Cache, v validation.Validator, m metrics.Collector) (*Service, error) {
	if repo == nil {
		return nil, ErrNilRepository
	}
	if c == nil {
		c = cache.NewNoop()
	}
	if v == nil {
		v = validation.NewStandard()
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &Service{
		repo:      repo,
		cache:     c,
		validator: v,
		metrics:   m,
		keys:      make(map[string]struct{}),
	}, nil
}

// Metrics returns the collector the service records into.
func (s *Service) Metrics() metrics.Collector {
	return s.metrics
}

// Repository returns the underlying repository.
func (s *Service) Repository() repository.Repository {
	return s.repo
}

// LoadedAt returns when the snapshot was last loaded. ok is false before
// the first load.
func (s *Service) LoadedAt() (t time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt, s.current != nil
}

// =============================================================================
// Operations
// =============================================================================

// GetSummaryStatistics returns headline numbers for the current document.
// The view is cached for SummaryTTL.
func (s *Service) GetSummaryStatistics(ctx context.Context) (domain.SummaryStatistics, error) {
	ctx, span := tracer.Start(ctx, "service.GetSummaryStatistics")
	defer span.End()
	defer s.timed(OpGetSummaryStatistics)()

	result, err := s.resolve(ctx)
	if err != nil {
		return domain.SummaryStatistics{}, s.fail(span, OpGetSummaryStatistics, err)
	}
	stats := cachedView(s, result, summaryCacheKey, SummaryTTL, func() domain.SummaryStatistics {
		return domain.NewSummaryStatistics(result)
	})
	slog.Debug("summary statistics computed", "total_files", stats.TotalFiles)
	return stats, nil
}

// FindDependencyHotspots returns up to limit files with the most
// dependencies, most first.
//
// Inputs:
//   - limit: In [1, 1000].
//
// Outputs:
//   - []domain.FileAnalysis: Never nil.
//   - error: *ValidationError for a bad limit, otherwise *AnalysisError.
func (s *Service) FindDependencyHotspots(ctx context.Context, limit int) ([]domain.FileAnalysis, error) {
	ctx, span := tracer.Start(ctx, "service.FindDependencyHotspots",
		trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	if !s.validator.ValidLimit(limit) {
		return nil, &ValidationError{Field: "limit", Value: limit, Message: fmt.Sprintf("Invalid limit parameter: %d", limit)}
	}
	defer s.timed(OpFindDependencyHotspots)()

	result, err := s.resolve(ctx)
	if err != nil {
		return nil, s.fail(span, OpFindDependencyHotspots, err)
	}

	key := hotspotsCacheKey + strconv.Itoa(limit)
	if v, ok := s.lookup(result, key); ok {
		if hotspots, ok := v.([]domain.FileAnalysis); ok {
			return hotspots, nil
		}
	}
	hotspots, err := result.Hotspots(limit)
	if err != nil {
		return nil, s.fail(span, OpFindDependencyHotspots, err)
	}
	s.store(result, key, hotspots, ViewTTL)
	return hotspots, nil
}

// GetDependenciesByType returns every dependency of type t, tagged with its
// file, in file then discovery order.
func (s *Service) GetDependenciesByType(ctx context.Context, t string) ([]domain.TypedDependency, error) {
	ctx, span := tracer.Start(ctx, "service.GetDependenciesByType",
		trace.WithAttributes(attribute.String("dependency_type", t)))
	defer span.End()

	if !s.validator.ValidDependencyType(t) {
		return nil, &ValidationError{Field: "dep_type", Value: t, Message: "Invalid dependency type: " + t}
	}
	defer s.timed(OpGetDependenciesByType)()

	result, err := s.resolve(ctx)
	if err != nil {
		return nil, s.fail(span, OpGetDependenciesByType, err)
	}
	depType := domain.DependencyType(t)
	return cachedView(s, result, dependenciesCacheKey+t, ViewTTL, func() []domain.TypedDependency {
		return result.DependenciesOfType(depType)
	}), nil
}

// SearchDependencies returns files whose path or dependency context
// contains query. Results are never cached. Queries shorter than two
// characters after trimming match nothing.
func (s *Service) SearchDependencies(ctx context.Context, query string) ([]domain.FileAnalysis, error) {
	ctx, span := tracer.Start(ctx, "service.SearchDependencies")
	defer span.End()

	if !s.validator.ValidSearchQuery(query) {
		return nil, &ValidationError{Field: "q", Value: query, Message: "Invalid search query: " + query}
	}
	defer s.timed(OpSearchDependencies)()

	result, err := s.resolve(ctx)
	if err != nil {
		return nil, s.fail(span, OpSearchDependencies, err)
	}
	matches := result.SearchFiles(query)
	slog.Info("search completed", "query", query, "results", len(matches))
	return matches, nil
}

// GetFileAnalysis returns the file whose relative or absolute path equals
// path. A miss returns nil and no error.
func (s *Service) GetFileAnalysis(ctx context.Context, path string) (*domain.FileAnalysis, error) {
	ctx, span := tracer.Start(ctx, "service.GetFileAnalysis",
		trace.WithAttributes(attribute.String("file_path", path)))
	defer span.End()

	if !s.validator.ValidFilePath(path) {
		return nil, &ValidationError{Field: "file_path", Value: path, Message: "Invalid file path: " + path}
	}
	defer s.timed(OpGetFileAnalysis)()

	result, err := s.resolve(ctx)
	if err != nil {
		return nil, s.fail(span, OpGetFileAnalysis, err)
	}
	fa, ok := result.FindFile(path)
	if !ok {
		return nil, nil
	}
	return &fa, nil
}

// RefreshAnalysis drops the snapshot and every cache entry, then reloads
// the document immediately.
func (s *Service) RefreshAnalysis(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "service.RefreshAnalysis")
	defer span.End()
	defer s.timed(OpRefreshAnalysis)()

	s.mu.Lock()
	s.current = nil
	s.hasObserved = false
	s.mu.Unlock()

	s.cache.Clear()
	s.repo.InvalidateCache()
	s.keysMu.Lock()
	s.keys = make(map[string]struct{})
	s.keysMu.Unlock()
	slog.Debug("cleared all cached data")

	_, err, _ := s.reloads.Do("refresh", func() (any, error) {
		return s.reload(context.WithoutCancel(ctx), false)
	})
	if err != nil {
		return s.fail(span, OpRefreshAnalysis, err)
	}
	slog.Info("analysis data refreshed")
	return nil
}

// =============================================================================
// Snapshot
// =============================================================================

// resolve returns the current snapshot, loading or reloading it first when
// it is missing or older than the document on disk.
func (s *Service) resolve(ctx context.Context) (*domain.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	current := s.current
	observed, hasObserved := s.observed, s.hasObserved
	s.mu.RUnlock()

	if current != nil && !s.stale(observed, hasObserved) {
		return current, nil
	}

	stale := current != nil
	v, err, _ := s.reloads.Do("reload", func() (any, error) {
		return s.reload(context.WithoutCancel(ctx), stale)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.AnalysisResult), nil
}

// stale reports whether the document changed since the snapshot was taken.
// A repository that cannot report a time keeps the held copy.
func (s *Service) stale(observed time.Time, hasObserved bool) bool {
	modified, ok := s.repo.LastModified()
	if !ok {
		return false
	}
	if !hasObserved {
		return true
	}
	return modified.After(observed)
}

func (s *Service) reload(ctx context.Context, stale bool) (*domain.AnalysisResult, error) {
	// Read the time before loading so a write racing the load is seen as
	// a change on the next request.
	modified, hasModified := s.repo.LastModified()

	if stale {
		s.repo.InvalidateCache()
		s.dropDerived()
		slog.Info("analysis document changed, reloading", "modified", modified)
	}

	result, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = result
	s.loadedAt = time.Now()
	s.observed = modified
	s.hasObserved = hasModified
	s.mu.Unlock()

	slog.Debug("analysis document loaded", "files", result.TotalFiles())
	return result, nil
}

// =============================================================================
// Caching helpers
// =============================================================================

// view is a cached derived value tagged with the snapshot it was computed
// from. An entry whose snapshot is not the caller's counts as a miss.
type view struct {
	snapshot *domain.AnalysisResult
	value    any
}

func (s *Service) lookup(snapshot *domain.AnalysisResult, key string) (any, bool) {
	if v, ok := s.cache.Get(key); ok {
		if entry, ok := v.(view); ok && entry.snapshot == snapshot {
			s.metrics.RecordCacheHit(key)
			return entry.value, true
		}
	}
	s.metrics.RecordCacheMiss(key)
	return nil, false
}

// store caches value for snapshot unless a reload has already replaced it.
func (s *Service) store(snapshot *domain.AnalysisResult, key string, value any, ttl time.Duration) {
	s.mu.RLock()
	current := s.current == snapshot
	s.mu.RUnlock()
	if !current {
		slog.Debug("skipping cache store for replaced snapshot", "key", key)
		return
	}
	s.cache.Set(key, view{snapshot: snapshot, value: value}, ttl)
	s.keysMu.Lock()
	s.keys[key] = struct{}{}
	s.keysMu.Unlock()
}

func (s *Service) dropDerived() {
	s.keysMu.Lock()
	keys := s.keys
	s.keys = make(map[string]struct{})
	s.keysMu.Unlock()
	for key := range keys {
		s.cache.Delete(key)
	}
}

// cachedView returns the value cached at key for snapshot, or computes and
// stores it.
func cachedView[T any](s *Service, snapshot *domain.AnalysisResult, key string, ttl time.Duration, compute func() T) T {
	if v, ok := s.lookup(snapshot, key); ok {
		if typed, ok := v.(T); ok {
			return typed
		}
	}
	value := compute()
	s.store(snapshot, key, value, ttl)
	return value
}

// =============================================================================
// Instrumentation
// =============================================================================

func (s *Service) timed(op string) func() {
	start := time.Now()
	return func() {
		s.metrics.RecordOperation(op, time.Since(start))
	}
}

// fail records err against op and wraps it in an *AnalysisError.
func (s *Service) fail(span trace.Span, op string, err error) error {
	s.metrics.RecordError(op, errorKind(err))
	wrapped := &AnalysisError{Op: op, Err: err}
	telemetry.RecordError(span, wrapped)
	slog.Error(wrapped.Error(), "operation", op)
	return wrapped
}
