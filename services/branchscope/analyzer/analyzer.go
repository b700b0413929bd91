// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/branchscope/services/branchscope/domain"
)

// DefaultWorkers bounds concurrent parses when no worker count is given.
const DefaultWorkers = 8

// ErrNilParser is returned by New when no backend is supplied.
var ErrNilParser = errors.New("analyzer requires a parser")

var (
	tracer = otel.Tracer("branchscope.analyzer")
	meter  = otel.Meter("branchscope.analyzer")

	filesTotal        metric.Int64Counter
	dependenciesTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		filesTotal, err = meter.Int64Counter(
			"branchscope_analyzer_files_total",
			metric.WithDescription("Files analyzed, by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		dependenciesTotal, err = meter.Int64Counter(
			"branchscope_analyzer_dependencies_total",
			metric.WithDescription("Dependencies found, by type"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordFile(ctx context.Context, fa domain.FileAnalysis) {
	if err := initMetrics(); err != nil {
		return
	}
	outcome := "parsed"
	if fa.Failed() {
		outcome = "failed"
	}
	filesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	for _, d := range fa.Dependencies {
		dependenciesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("type", d.Type.String())))
	}
}

// RunOptions describe the scan a Run belongs to. They are copied into the
// result metadata.
type RunOptions struct {
	BasePath        string
	AnalyzedFolders []string
	ExcludedFolders []string

	// Progress, when set, is called after each file with the number of
	// files finished so far. Calls may come from several goroutines.
	Progress func(done, total int)
}

// Analyzer runs a Parser over many files and assembles the result.
//
// Thread Safety:
//
//	Safe for concurrent use if the Parser is.
type Analyzer struct {
	parser  Parser
	workers int
}

// New creates an analyzer.
//
// Inputs:
//   - p: The parser backend. Must not be nil.
//   - workers: Concurrent parses. Non-positive means DefaultWorkers.
func New(p Parser, workers int) (*Analyzer, error) {
	if p == nil {
		return nil, ErrNilParser
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Analyzer{parser: p, workers: workers}, nil
}

// Parser returns the backend.
func (a *Analyzer) Parser() Parser {
	return a.parser
}

// AnalyzeFile parses one file. Failures are captured in the returned
// record rather than returned as errors.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path, relativePath string) domain.FileAnalysis {
	out := a.parser.Parse(ctx, path)
	if out.Failed() {
		return domain.NewFailedFileAnalysis(path, relativePath, out.Err)
	}
	fa, err := domain.NewFileAnalysis(path, relativePath, out.Dependencies)
	if err != nil {
		return domain.NewFailedFileAnalysis(path, relativePath, fmt.Sprintf("Analysis failed: %v", err))
	}
	return fa
}

// Run analyzes files concurrently and returns the aggregated result.
//
// Description:
//
//	Files are parsed by at most a.workers goroutines. The result lists
//	files in input order. Per-file failures become error records; only
//	context cancellation fails the run.
//
// Outputs:
//   - *domain.AnalysisResult: Files plus metadata stamped with the local
//     time and the elapsed seconds rounded to two decimals.
//   - error: ctx.Err() when cancelled.
func (a *Analyzer) Run(ctx context.Context, files []string, opts RunOptions) (*domain.AnalysisResult, error) {
	ctx, span := tracer.Start(ctx, "analyzer.Run",
		trace.WithAttributes(
			attribute.String("analyzer.parser", a.parser.Name()),
			attribute.Int("analyzer.files", len(files)),
			attribute.Int("analyzer.workers", a.workers),
		),
	)
	defer span.End()

	start := time.Now()
	results := make([]domain.FileAnalysis, len(files))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fa := a.AnalyzeFile(gctx, path, relativeTo(opts.BasePath, path))
			results[i] = fa
			recordFile(gctx, fa)
			if fa.Failed() {
				slog.Debug("file analysis failed", "path", path, "error", fa.Error)
			}
			if opts.Progress != nil {
				opts.Progress(int(done.Add(1)), len(files))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "analysis cancelled")
		return nil, err
	}

	elapsed := math.Round(time.Since(start).Seconds()*100) / 100
	meta, err := domain.NewAnalysisMetadata(
		time.Now().Format(domain.TimestampLayout),
		elapsed,
		opts.BasePath,
		nonNil(opts.AnalyzedFolders),
		nonNil(opts.ExcludedFolders),
		len(files),
	)
	if err != nil {
		return nil, err
	}
	result, err := domain.NewAnalysisResult(results, meta)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("analyzer.files_with_dependencies", len(result.FilesWithDependencies())),
		attribute.Int("analyzer.dependencies", result.TotalDependencies()),
	)
	slog.Info("analysis run complete",
		"files", len(files),
		"files_with_dependencies", len(result.FilesWithDependencies()),
		"dependencies", result.TotalDependencies(),
		"seconds", elapsed,
	)
	return result, nil
}

// relativeTo returns path relative to base, or path itself when it is not
// under base.
func relativeTo(base, path string) string {
	if base == "" {
		return path
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return path
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return filepath.ToSlash(rel)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string{}, s...)
}
