// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package branchscope

import (
	"fmt"
	"log/slog"

	"github.com/AleutianAI/branchscope/services/branchscope/cache"
	"github.com/AleutianAI/branchscope/services/branchscope/config"
	"github.com/AleutianAI/branchscope/services/branchscope/metrics"
	"github.com/AleutianAI/branchscope/services/branchscope/repository"
	"github.com/AleutianAI/branchscope/services/branchscope/validation"
)

// BuildOption overrides a component Build would otherwise construct.
type BuildOption func(*buildOptions)

type buildOptions struct {
	cache     cache.Cache
	collector metrics.Collector
	repo      repository.Repository
}

// WithCache replaces the configured cache.
func WithCache(c cache.Cache) BuildOption {
	return func(o *buildOptions) { o.cache = c }
}

// WithCollector replaces the default Memory plus Prometheus collector.
func WithCollector(m metrics.Collector) BuildOption {
	return func(o *buildOptions) { o.collector = m }
}

// WithRepository replaces the JSON document repository.
func WithRepository(r repository.Repository) BuildOption {
	return func(o *buildOptions) { o.repo = r }
}

// Build assembles a Service from cfg.
//
// Description:
//
//	Validates cfg, then constructs in order: the cache (an LRU of
//	Cache.MaxSize entries, or a no-op cache when caching is disabled),
//	the validator and metrics collector, the JSON repository sharing the
//	cache, and the service.
//
// Outputs:
//   - *Service: Ready to serve. Nothing is loaded yet.
//   - error: Wraps ErrConfiguration for invalid settings.
func Build(cfg config.Config, opts ...BuildOption) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.cache == nil {
		if cfg.Cache.Enabled {
			lru, err := cache.NewLRU(cfg.Cache.MaxSize)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
			}
			o.cache = lru
		} else {
			o.cache = cache.NewNoop()
		}
	}
	if o.collector == nil {
		o.collector = metrics.Multi{metrics.NewMemory(), metrics.NewPrometheus()}
	}
	if o.repo == nil {
		o.repo = repository.NewJSONRepository(cfg.AnalysisFilePath, o.cache)
	}

	svc, err := NewService(o.repo, o.cache, validation.NewStandard(), o.collector)
	if err != nil {
		return nil, err
	}
	slog.Info("analysis service built",
		"analysis_file", cfg.AnalysisFilePath,
		"cache_enabled", cfg.Cache.Enabled,
		"cache_max_size", cfg.Cache.MaxSize)
	return svc, nil
}

// BuildHandlers creates HTTP handlers for svc using cfg's limits.
func BuildHandlers(svc *Service, cfg config.Config) *Handlers {
	return NewHandlers(svc, validation.NewRequestValidator(cfg.Limits.MaxSearchResults), cfg.Limits.MaxHotspots)
}
