// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scanner finds the source files an analysis run should parse.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrBasePath is returned when the base path cannot be resolved.
var ErrBasePath = errors.New("invalid scan base path")

// Options selects which files a scan returns.
type Options struct {
	// BasePath is the root every other path is relative to.
	BasePath string

	// AnalyzeFolders are walked in order. Empty means walk BasePath itself.
	AnalyzeFolders []string

	// ExcludeFolders are base-relative prefixes; matching directories are skipped.
	ExcludeFolders []string

	// Extensions are matched case-insensitively, with or without a leading dot.
	Extensions []string
}

// Scanner walks a source tree according to Options.
//
// Thread Safety:
//
//	Immutable after construction; safe for concurrent use.
type Scanner struct {
	base       string
	folders    []string
	excludes   []string
	extensions map[string]struct{}
}

// New resolves the base path and normalizes the options.
//
// Outputs:
//   - *Scanner: Ready to Scan.
//   - error: ErrBasePath when BasePath cannot be made absolute.
func New(opts Options) (*Scanner, error) {
	base := opts.BasePath
	if base == "" {
		base = "."
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBasePath, err)
	}

	excludes := make([]string, 0, len(opts.ExcludeFolders))
	for _, e := range opts.ExcludeFolders {
		e = strings.Trim(filepath.ToSlash(strings.TrimSpace(e)), "/")
		if e != "" {
			excludes = append(excludes, e)
		}
	}

	exts := make(map[string]struct{}, len(opts.Extensions))
	for _, e := range opts.Extensions {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			exts[e] = struct{}{}
		}
	}

	return &Scanner{
		base:       abs,
		folders:    append([]string(nil), opts.AnalyzeFolders...),
		excludes:   excludes,
		extensions: exts,
	}, nil
}

// Scan is shorthand for New(opts) followed by Scan.
func Scan(ctx context.Context, opts Options) ([]string, error) {
	s, err := New(opts)
	if err != nil {
		return nil, err
	}
	return s.Scan(ctx)
}

// BasePath returns the resolved absolute base path.
func (s *Scanner) BasePath() string {
	return s.base
}

// Scan returns the absolute paths of matching files in walk order.
//
// Description:
//
//	Each analyze folder is walked in the configured order. Missing folders
//	are logged and skipped. Unreadable subdirectories are logged and
//	skipped. Only context cancellation aborts the scan.
//
// Outputs:
//   - []string: Matching files. Never nil.
//   - error: ctx.Err() if cancelled.
func (s *Scanner) Scan(ctx context.Context) ([]string, error) {
	roots := s.folders
	if len(roots) == 0 {
		roots = []string{"."}
	}

	found := []string{}
	for _, folder := range roots {
		root := filepath.Join(s.base, folder)
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			slog.Warn("scan folder does not exist, skipping", "folder", root)
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if walkErr != nil {
				slog.Warn("cannot read path during scan", "path", path, "error", walkErr)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if s.excluded(path) {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() && s.included(d.Name()) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return found, nil
}

// Relative returns path relative to the base path, or path itself when it
// lies outside the base.
func (s *Scanner) Relative(path string) string {
	rel, err := filepath.Rel(s.base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return filepath.ToSlash(rel)
}

func (s *Scanner) excluded(dir string) bool {
	rel, err := filepath.Rel(s.base, dir)
	if err != nil || rel == "." {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, prefix := range s.excludes {
		if strings.HasPrefix(rel, prefix) {
			return true
		}
	}
	return false
}

func (s *Scanner) included(name string) bool {
	idx := strings.LastIndexByte(name, '.')
	ext := strings.ToLower(name[idx+1:])
	_, ok := s.extensions[ext]
	return ok
}

// Summary describes a completed scan for display.
type Summary struct {
	BasePath       string
	AnalyzeFolders []string
	ExcludeFolders []string
	Extensions     []string
	TotalFiles     int
	Sample         []string
}

// Summarize reports the scan settings, the file count and up to sampleSize
// base-relative sample paths.
func (s *Scanner) Summarize(files []string, sampleSize int) Summary {
	exts := make([]string, 0, len(s.extensions))
	for e := range s.extensions {
		exts = append(exts, e)
	}
	sort.Strings(exts)

	if sampleSize < 0 {
		sampleSize = 0
	}
	if sampleSize > len(files) {
		sampleSize = len(files)
	}
	sample := make([]string, 0, sampleSize)
	for _, f := range files[:sampleSize] {
		sample = append(sample, s.Relative(f))
	}
	return Summary{
		BasePath:       s.base,
		AnalyzeFolders: append([]string{}, s.folders...),
		ExcludeFolders: append([]string{}, s.excludes...),
		Extensions:     exts,
		TotalFiles:     len(files),
		Sample:         sample,
	}
}
