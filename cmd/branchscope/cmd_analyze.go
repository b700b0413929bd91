// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/branchscope/pkg/ux"
	"github.com/AleutianAI/branchscope/services/branchscope/analyzer"
	"github.com/AleutianAI/branchscope/services/branchscope/domain"
	"github.com/AleutianAI/branchscope/services/branchscope/repository"
	"github.com/AleutianAI/branchscope/services/branchscope/scanner"
)

const (
	progressInterval = 100
	topHotspotsShown = 5
)

var errNoFiles = errors.New("no files found to analyze")

func scanOptions() scanner.Options {
	return scanner.Options{
		BasePath:       cfg.Scan.BasePath,
		AnalyzeFolders: cfg.Scan.AnalyzeFolders,
		ExcludeFolders: cfg.Scan.ExcludeFolders,
		Extensions:     cfg.Scan.Extensions,
	}
}

// limitFiles keeps the first n files; n <= 0 keeps all of them.
func limitFiles(files []string, n int) []string {
	if n <= 0 || n >= len(files) {
		return files
	}
	return files[:n]
}

// topFiles returns up to n hotspot lines formatted for display.
func topFiles(result *domain.AnalysisResult, n int) []string {
	if n <= 0 {
		return nil
	}
	hotspots, err := result.Hotspots(n)
	if err != nil {
		return nil
	}
	lines := make([]string, 0, len(hotspots))
	for _, f := range hotspots {
		lines = append(lines, fmt.Sprintf("%s: %d dependencies", f.RelativePath, f.TotalDependencies()))
	}
	return lines
}

// progressReporter prints a progress line every interval files. The
// analyzer calls it from several goroutines.
func progressReporter(p *ux.Printer, interval int) func(done, total int) {
	var mu sync.Mutex
	return func(done, total int) {
		if done%interval != 0 && done != total {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		p.Info(fmt.Sprintf("%s %d/%d", p.ProgressBar(done, total, 30), done, total))
	}
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	p := ux.NewPrinter(cmd.OutOrStdout())

	sc, err := scanner.New(scanOptions())
	if err != nil {
		return err
	}
	p.Title("Scanning " + sc.BasePath())
	files, err := sc.Scan(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		p.Error("No PHP files found to analyze")
		return errNoFiles
	}
	files = limitFiles(files, analyzeLimit)
	p.KeyValue("Files", len(files), 12)

	parser, err := newParser(cfg)
	if err != nil {
		return err
	}
	a, err := analyzer.New(parser, cfg.Scan.Workers)
	if err != nil {
		return err
	}

	opts := analyzer.RunOptions{
		BasePath:        sc.BasePath(),
		AnalyzedFolders: cfg.Scan.AnalyzeFolders,
		ExcludedFolders: cfg.Scan.ExcludeFolders,
	}
	if analyzeVerbose {
		opts.Progress = progressReporter(p, progressInterval)
	}

	start := time.Now()
	result, err := a.Run(ctx, files, opts)
	if err != nil {
		return fmt.Errorf("analysis interrupted: %w", err)
	}

	output := filepath.Join(cfg.Scan.OutputDir, analyzeOutput)
	if err := repository.NewJSONRepository(output, nil).Save(ctx, result); err != nil {
		return err
	}
	slog.Info("analysis document written", "path", output, "parser", parser.Name())

	failed := 0
	for _, f := range result.Files {
		if f.Failed() {
			failed++
		}
	}

	p.Success("Analysis complete")
	p.KeyValue("Files", result.TotalFiles(), 12)
	p.KeyValue("With deps", len(result.FilesWithDependencies()), 12)
	p.KeyValue("Dependencies", result.TotalDependencies(), 12)
	p.KeyValue("Failed", failed, 12)
	p.KeyValue("Time", formatSeconds(time.Since(start)), 12)
	p.KeyValue("Output", output, 12)

	if top := topFiles(result, topHotspotsShown); len(top) > 0 {
		p.Title("Top dependency hotspots")
		for _, line := range top {
			p.Bullet(line)
		}
	}
	return nil
}
