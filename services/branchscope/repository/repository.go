// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package repository persists analysis results as a single JSON document.
package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/branchscope/services/branchscope/cache"
	"github.com/AleutianAI/branchscope/services/branchscope/domain"
)

// ResultTTL is how long a loaded or saved document stays cached.
const ResultTTL = time.Hour

var tracer = otel.Tracer("branchscope.repository")

var operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "branchscope_repository_load_duration_seconds",
	Help:    "Duration of analysis document loads and saves",
	Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
}, []string{"operation", "source"})

// ErrRepository matches every *RepositoryError.
var ErrRepository = errors.New("repository error")

// RepositoryError reports a failed load or save of the analysis document.
type RepositoryError struct {
	Op   string
	Path string
	Err  error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// Is reports true for ErrRepository so callers can match on the sentinel.
func (e *RepositoryError) Is(target error) bool { return target == ErrRepository }

// Repository loads and stores the analysis document.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use.
type Repository interface {
	// Load returns the current result. A missing document is not an error;
	// it yields domain.EmptyAnalysisResult().
	Load(ctx context.Context) (*domain.AnalysisResult, error)

	// Save replaces the document with result.
	Save(ctx context.Context, result *domain.AnalysisResult) error

	// Exists reports whether the document is present as a regular file.
	Exists() bool

	// LastModified returns the document's modification time. ok is false
	// when the document is missing or cannot be inspected.
	LastModified() (t time.Time, ok bool)

	// InvalidateCache drops any cached copy without touching disk.
	InvalidateCache()
}

// JSONRepository stores the result as an indented JSON document on disk
// and memoizes the decoded result in a cache.
//
// Description:
//
//	Load consults the cache under CacheKey() before reading the file. A
//	successful read is cached for ResultTTL. Save writes the document to a
//	temporary file in the same directory and renames it into place, then
//	refreshes the cache entry.
//
// Thread Safety:
//
//	Safe for concurrent use. Concurrent Saves race on the rename; the last
//	one wins.
type JSONRepository struct {
	path  string
	cache cache.Cache
}

// NewJSONRepository creates a repository for the document at path.
//
// Inputs:
//   - path: Location of the JSON document.
//   - c: Cache for decoded results. Nil disables caching.
func NewJSONRepository(path string, c cache.Cache) *JSONRepository {
	if c == nil {
		c = cache.NewNoop()
	}
	return &JSONRepository{path: path, cache: c}
}

// Path returns the document location.
func (r *JSONRepository) Path() string {
	return r.path
}

// CacheKey is the key the decoded document is cached under.
func (r *JSONRepository) CacheKey() string {
	return "analysis_result_" + filepath.Base(r.path)
}

// Load returns the analysis result, from cache when possible.
//
// Outputs:
//   - *domain.AnalysisResult: The result. Empty when the file is missing.
//   - error: *RepositoryError when the file cannot be read or decoded.
func (r *JSONRepository) Load(ctx context.Context) (*domain.AnalysisResult, error) {
	_, span := tracer.Start(ctx, "repository.Load",
		trace.WithAttributes(attribute.String("repository.path", r.path)),
	)
	defer span.End()
	start := time.Now()

	if v, ok := r.cache.Get(r.CacheKey()); ok {
		if result, ok := v.(*domain.AnalysisResult); ok {
			span.SetAttributes(attribute.Bool("repository.cache_hit", true))
			operationDuration.WithLabelValues("load", "cache").Observe(time.Since(start).Seconds())
			return result, nil
		}
	}
	span.SetAttributes(attribute.Bool("repository.cache_hit", false))

	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("analysis file not found, returning empty result", "path", r.path)
		return domain.EmptyAnalysisResult(), nil
	}
	if err != nil {
		return nil, r.fail(span, "load", fmt.Errorf("cannot read analysis file: %w", err))
	}

	result, err := domain.UnmarshalResult(data)
	if err != nil {
		return nil, r.fail(span, "load", fmt.Errorf("invalid analysis document: %w", err))
	}

	r.cache.Set(r.CacheKey(), result, ResultTTL)
	operationDuration.WithLabelValues("load", "disk").Observe(time.Since(start).Seconds())
	slog.Info("loaded analysis document",
		"path", r.path,
		"files", result.TotalFiles(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// Save writes result to disk, creating parent directories as needed.
func (r *JSONRepository) Save(ctx context.Context, result *domain.AnalysisResult) error {
	_, span := tracer.Start(ctx, "repository.Save",
		trace.WithAttributes(attribute.String("repository.path", r.path)),
	)
	defer span.End()
	start := time.Now()

	if result == nil {
		return r.fail(span, "save", errors.New("cannot serialize analysis result: nil result"))
	}
	data, err := domain.MarshalResult(result)
	if err != nil {
		return r.fail(span, "save", fmt.Errorf("cannot serialize analysis result: %w", err))
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return r.fail(span, "save", fmt.Errorf("cannot write analysis file: %w", err))
	}
	if err := writeAtomic(dir, r.path, data); err != nil {
		return r.fail(span, "save", fmt.Errorf("cannot write analysis file: %w", err))
	}

	r.cache.Set(r.CacheKey(), result, ResultTTL)
	operationDuration.WithLabelValues("save", "disk").Observe(time.Since(start).Seconds())
	slog.Info("saved analysis document", "path", r.path, "files", result.TotalFiles())
	return nil
}

// Exists reports whether the document is a regular file.
func (r *JSONRepository) Exists() bool {
	info, err := os.Stat(r.path)
	return err == nil && info.Mode().IsRegular()
}

// LastModified returns the document's mtime.
func (r *JSONRepository) LastModified() (time.Time, bool) {
	info, err := os.Stat(r.path)
	if err != nil || !info.Mode().IsRegular() {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// InvalidateCache removes the cached document.
func (r *JSONRepository) InvalidateCache() {
	r.cache.Delete(r.CacheKey())
}

func (r *JSONRepository) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	slog.Error("analysis document "+op+" failed", "path", r.path, "error", err)
	return &RepositoryError{Op: op, Path: r.path, Err: err}
}

func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

var _ Repository = (*JSONRepository)(nil)
