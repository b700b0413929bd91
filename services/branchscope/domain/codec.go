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
	"encoding/json"
	"fmt"
)

// =============================================================================
// WIRE SHAPES
// =============================================================================

type dependencyJSON struct {
	Type    DependencyType `json:"type"`
	Line    int            `json:"line"`
	Context string         `json:"context"`
	Details Details        `json:"details"`
}

type dependencyInJSON struct {
	Type    *string `json:"type"`
	Line    *int    `json:"line"`
	Context *string `json:"context"`
	Details Details `json:"details"`
}

type fileJSON struct {
	FilePath          string       `json:"file_path"`
	RelativePath      string       `json:"relative_path"`
	Dependencies      []Dependency `json:"dependencies"`
	TotalDependencies int          `json:"total_dependencies"`
	Error             *string      `json:"error"`
}

type fileInJSON struct {
	FilePath     *string      `json:"file_path"`
	RelativePath string       `json:"relative_path"`
	Dependencies []Dependency `json:"dependencies"`
	Error        *string      `json:"error"`
}

// documentMetadataJSON adds the two totals the scan tool writes alongside the
// metadata. Readers ignore them.
type documentMetadataJSON struct {
	AnalysisMetadata
	FilesWithDependencies  int `json:"files_with_dependencies"`
	TotalDependenciesFound int `json:"total_dependencies_found"`
}

type documentJSON struct {
	Files    []FileAnalysis       `json:"files"`
	Metadata documentMetadataJSON `json:"analysis_metadata"`
}

type documentInJSON struct {
	Files    []FileAnalysis   `json:"files"`
	Metadata AnalysisMetadata `json:"analysis_metadata"`
}

func toDependencyJSON(d Dependency) dependencyJSON {
	details := d.Details
	if details == nil {
		details = Details{}
	}
	return dependencyJSON{Type: d.Type, Line: d.Line, Context: d.Context, Details: details}
}

func normalizeMetadata(m AnalysisMetadata) AnalysisMetadata {
	if m.AnalyzedFolders == nil {
		m.AnalyzedFolders = []string{}
	}
	if m.ExcludedFolders == nil {
		m.ExcludedFolders = []string{}
	}
	return m
}

// =============================================================================
// DEPENDENCY
// =============================================================================

// MarshalJSON writes {type, line, context, details}.
func (d Dependency) MarshalJSON() ([]byte, error) {
	return json.Marshal(toDependencyJSON(d))
}

// UnmarshalJSON requires type, line and context and validates the result.
func (d *Dependency) UnmarshalJSON(data []byte) error {
	var in dependencyInJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Type == nil || in.Line == nil || in.Context == nil {
		return fmt.Errorf("%w: dependency requires type, line and context", ErrMalformedDocument)
	}
	t, err := ParseDependencyType(*in.Type)
	if err != nil {
		return err
	}
	out, err := NewDependency(t, *in.Line, *in.Context, in.Details)
	if err != nil {
		return err
	}
	*d = out
	return nil
}

// =============================================================================
// FILE ANALYSIS
// =============================================================================

// MarshalJSON writes the file record including the derived total_dependencies.
// A missing error is written as null.
func (f FileAnalysis) MarshalJSON() ([]byte, error) {
	out := fileJSON{
		FilePath:          f.FilePath,
		RelativePath:      f.RelativePath,
		Dependencies:      f.Dependencies,
		TotalDependencies: f.TotalDependencies(),
	}
	if out.Dependencies == nil {
		out.Dependencies = []Dependency{}
	}
	if f.Error != "" {
		msg := f.Error
		out.Error = &msg
	}
	return json.Marshal(out)
}

// UnmarshalJSON requires file_path; relative_path defaults to file_path.
// A total_dependencies field on input is ignored.
func (f *FileAnalysis) UnmarshalJSON(data []byte) error {
	var in fileInJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.FilePath == nil {
		return fmt.Errorf("%w: file record requires file_path", ErrMalformedDocument)
	}
	if in.Error != nil && *in.Error != "" && len(in.Dependencies) > 0 {
		return fmt.Errorf("%w: %s has both an error and dependencies", ErrMalformedDocument, *in.FilePath)
	}
	rel := in.RelativePath
	if rel == "" {
		rel = *in.FilePath
	}
	out, err := NewFileAnalysis(*in.FilePath, rel, in.Dependencies)
	if err != nil {
		return err
	}
	if in.Error != nil {
		out.Error = *in.Error
	}
	*f = out
	return nil
}

// =============================================================================
// DOCUMENT
// =============================================================================

// MarshalResult encodes r as the persisted analysis document.
func MarshalResult(r *AnalysisResult) ([]byte, error) {
	files := r.Files
	if files == nil {
		files = []FileAnalysis{}
	}
	doc := documentJSON{
		Files: files,
		Metadata: documentMetadataJSON{
			AnalysisMetadata:       normalizeMetadata(r.Metadata),
			FilesWithDependencies:  len(r.FilesWithDependencies()),
			TotalDependenciesFound: r.TotalDependencies(),
		},
	}
	return json.MarshalIndent(doc, "", "  ")
}

// UnmarshalResult decodes a persisted analysis document.
//
// Outputs:
//   - *AnalysisResult: The decoded result. Never nil on success.
//   - error: A JSON syntax error, or a domain error when the shape cannot be
//     mapped to the model.
func UnmarshalResult(data []byte) (*AnalysisResult, error) {
	var doc documentInJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Files == nil {
		doc.Files = []FileAnalysis{}
	}
	if err := doc.Metadata.Validate(); err != nil {
		return nil, err
	}
	return &AnalysisResult{
		Files:    doc.Files,
		Metadata: normalizeMetadata(doc.Metadata),
	}, nil
}
