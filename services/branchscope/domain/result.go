// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// TimestampLayout is the layout of AnalysisMetadata.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// MinSearchQueryLength is the shortest trimmed query SearchFiles answers.
// Shorter queries return no files.
const MinSearchQueryLength = 2

// =============================================================================
// METADATA
// =============================================================================

// AnalysisMetadata describes the scan run that produced a result.
type AnalysisMetadata struct {
	Timestamp           string   `json:"timestamp"`
	AnalysisTimeSeconds float64  `json:"analysis_time_seconds"`
	BasePath            string   `json:"base_path"`
	AnalyzedFolders     []string `json:"analyzed_folders"`
	ExcludedFolders     []string `json:"excluded_folders"`
	TotalFilesAnalyzed  int      `json:"total_files_analyzed"`
}

// NewAnalysisMetadata builds metadata after checking its invariants.
func NewAnalysisMetadata(timestamp string, seconds float64, basePath string, analyzed, excluded []string, total int) (AnalysisMetadata, error) {
	m := AnalysisMetadata{
		Timestamp:           timestamp,
		AnalysisTimeSeconds: seconds,
		BasePath:            basePath,
		AnalyzedFolders:     append([]string{}, analyzed...),
		ExcludedFolders:     append([]string{}, excluded...),
		TotalFilesAnalyzed:  total,
	}
	if err := m.Validate(); err != nil {
		return AnalysisMetadata{}, err
	}
	return m, nil
}

// Validate checks the metadata invariants.
func (m AnalysisMetadata) Validate() error {
	if m.AnalysisTimeSeconds < 0 {
		return fmt.Errorf("%w: analysis time cannot be negative", ErrInvalidMetadata)
	}
	if m.TotalFilesAnalyzed < 0 {
		return fmt.Errorf("%w: total files analyzed cannot be negative", ErrInvalidMetadata)
	}
	return nil
}

// AnalysisDate parses Timestamp, accepting TimestampLayout or RFC3339.
func (m AnalysisMetadata) AnalysisDate() (time.Time, error) {
	if t, err := time.ParseInLocation(TimestampLayout, m.Timestamp, time.Local); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, m.Timestamp)
}

// =============================================================================
// RESULT
// =============================================================================

// AnalysisResult is the aggregate root for a completed scan.
//
// Derived views are computed on every call and never cached here; the
// service layer decides what to memoize.
//
// Thread Safety:
//
//	An AnalysisResult is never mutated after construction, so concurrent
//	readers are safe.
type AnalysisResult struct {
	Files    []FileAnalysis
	Metadata AnalysisMetadata
}

// NewAnalysisResult builds a result after validating every file and the metadata.
func NewAnalysisResult(files []FileAnalysis, metadata AnalysisMetadata) (*AnalysisResult, error) {
	for _, f := range files {
		if err := f.Validate(); err != nil {
			return nil, err
		}
	}
	if err := metadata.Validate(); err != nil {
		return nil, err
	}
	return &AnalysisResult{
		Files:    append([]FileAnalysis{}, files...),
		Metadata: metadata,
	}, nil
}

// EmptyAnalysisResult returns a result with no files and zero-valued metadata.
func EmptyAnalysisResult() *AnalysisResult {
	return &AnalysisResult{
		Files: []FileAnalysis{},
		Metadata: AnalysisMetadata{
			AnalyzedFolders: []string{},
			ExcludedFolders: []string{},
		},
	}
}

// TotalFiles is the number of analyzed files.
func (r *AnalysisResult) TotalFiles() int {
	return len(r.Files)
}

// FilesWithDependencies returns the files that have at least one dependency,
// in original order.
func (r *AnalysisResult) FilesWithDependencies() []FileAnalysis {
	out := make([]FileAnalysis, 0)
	for _, f := range r.Files {
		if f.HasDependencies() {
			out = append(out, f)
		}
	}
	return out
}

// TotalDependencies sums the dependency counts of every file.
func (r *AnalysisResult) TotalDependencies() int {
	total := 0
	for _, f := range r.Files {
		total += f.TotalDependencies()
	}
	return total
}

// DependencyTypeDistribution counts dependencies per type across all files.
// Types that never occur are absent from the map.
func (r *AnalysisResult) DependencyTypeDistribution() map[DependencyType]int {
	dist := make(map[DependencyType]int)
	for _, f := range r.Files {
		for _, d := range f.Dependencies {
			dist[d.Type]++
		}
	}
	return dist
}

// Hotspots ranks files by dependency count.
//
// Description:
//
//	Takes the files that have dependencies, stable-sorts them by
//	TotalDependencies descending so ties keep their original order, and
//	returns at most limit of them.
//
// Inputs:
//   - limit: Maximum number of files. Must be positive.
//
// Outputs:
//   - []FileAnalysis: The ranked files.
//   - error: ErrInvalidLimit when limit <= 0.
func (r *AnalysisResult) Hotspots(limit int) ([]FileAnalysis, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}
	ranked := r.FilesWithDependencies()
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalDependencies() > ranked[j].TotalDependencies()
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// FilesByDependencyType returns files containing at least one dependency of type t.
func (r *AnalysisResult) FilesByDependencyType(t DependencyType) []FileAnalysis {
	out := make([]FileAnalysis, 0)
	for _, f := range r.Files {
		if _, ok := f.DependencyTypes()[t]; ok {
			out = append(out, f)
		}
	}
	return out
}

// DependenciesOfType flattens every dependency of type t, tagging each with
// its owning file's relative path. Order is file order, then discovery order.
func (r *AnalysisResult) DependenciesOfType(t DependencyType) []TypedDependency {
	out := make([]TypedDependency, 0)
	for _, f := range r.Files {
		for _, d := range f.DependenciesByType(t) {
			out = append(out, TypedDependency{Dependency: d, File: f.RelativePath})
		}
	}
	return out
}

// SearchFiles returns files with dependencies whose relative path or any
// dependency context contains query, case-insensitively.
//
// Queries shorter than MinSearchQueryLength after trimming match nothing.
// Matching uses the query as given, surrounding whitespace included.
// Results keep original file order.
func (r *AnalysisResult) SearchFiles(query string) []FileAnalysis {
	out := make([]FileAnalysis, 0)
	if len([]rune(strings.TrimSpace(query))) < MinSearchQueryLength {
		return out
	}
	lowered := strings.ToLower(query)
	for _, f := range r.FilesWithDependencies() {
		if f.matches(lowered) {
			out = append(out, f)
		}
	}
	return out
}

// FindFile returns the file whose relative or absolute path equals path exactly.
func (r *AnalysisResult) FindFile(path string) (FileAnalysis, bool) {
	for _, f := range r.Files {
		if f.RelativePath == path || f.FilePath == path {
			return f, true
		}
	}
	return FileAnalysis{}, false
}
