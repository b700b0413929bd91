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

import "encoding/json"

// SummaryStatistics is a snapshot of headline numbers for a result.
type SummaryStatistics struct {
	TotalFiles            int              `json:"total_files"`
	FilesWithDependencies int              `json:"files_with_dependencies"`
	TotalDependencies     int              `json:"total_dependencies"`
	DependencyTypeCounts  map[string]int   `json:"dependency_type_counts"`
	AnalysisMetadata      AnalysisMetadata `json:"analysis_metadata"`
}

// NewSummaryStatistics computes summary statistics from r.
func NewSummaryStatistics(r *AnalysisResult) SummaryStatistics {
	counts := make(map[string]int)
	for t, n := range r.DependencyTypeDistribution() {
		counts[t.String()] = n
	}
	return SummaryStatistics{
		TotalFiles:            r.TotalFiles(),
		FilesWithDependencies: len(r.FilesWithDependencies()),
		TotalDependencies:     r.TotalDependencies(),
		DependencyTypeCounts:  counts,
		AnalysisMetadata:      normalizeMetadata(r.Metadata),
	}
}

// TypedDependency is a dependency annotated with the relative path of the
// file it was found in.
type TypedDependency struct {
	Dependency
	File string
}

// MarshalJSON flattens the dependency fields and adds "file".
func (t TypedDependency) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		dependencyJSON
		File string `json:"file"`
	}{
		dependencyJSON: toDependencyJSON(t.Dependency),
		File:           t.File,
	})
}
