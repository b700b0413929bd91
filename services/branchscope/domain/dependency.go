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
	"strings"
)

// Dependency is one located usage of the tracked class within a file.
type Dependency struct {
	// Type classifies the usage.
	Type DependencyType `json:"type"`

	// Line is the 1-based source line, or 0 when the parser could not locate it.
	Line int `json:"line"`

	// Context is the source snippet for the usage.
	Context string `json:"context"`

	// Details carries extra scalars such as class_name.
	Details Details `json:"details"`
}

// NewDependency builds a Dependency after checking its invariants.
//
// Inputs:
//   - t: Dependency type. Must be a member of the closed set.
//   - line: Source line. Must be >= 0.
//   - context: Source snippet. Must be non-empty after trimming.
//   - details: Optional details; copied.
//
// Outputs:
//   - Dependency: The constructed value.
//   - error: ErrInvalidDependency or ErrUnknownDependencyType on bad input.
func NewDependency(t DependencyType, line int, context string, details Details) (Dependency, error) {
	d := Dependency{
		Type:    t,
		Line:    line,
		Context: context,
		Details: details.Clone(),
	}
	if err := d.Validate(); err != nil {
		return Dependency{}, err
	}
	return d, nil
}

// Validate checks the dependency invariants.
func (d Dependency) Validate() error {
	if !d.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownDependencyType, string(d.Type))
	}
	if d.Line < 0 {
		return fmt.Errorf("%w: line number must be non-negative, got %d", ErrInvalidDependency, d.Line)
	}
	if strings.TrimSpace(d.Context) == "" {
		return fmt.Errorf("%w: context cannot be empty", ErrInvalidDependency)
	}
	return nil
}

// ClassName returns the class_name detail, if present.
func (d Dependency) ClassName() string {
	if v, ok := d.Details["class_name"]; ok {
		if s, ok := v.Str(); ok {
			return s
		}
	}
	return ""
}

// FileAnalysis is the analysis outcome for a single file.
//
// When Error is non-empty the file could not be analyzed and Dependencies is
// empty.
type FileAnalysis struct {
	FilePath     string
	RelativePath string
	Dependencies []Dependency
	Error        string
}

// NewFileAnalysis builds a FileAnalysis after checking its invariants.
// The dependency slice is copied so later edits by the caller do not leak in.
func NewFileAnalysis(filePath, relativePath string, deps []Dependency) (FileAnalysis, error) {
	copied := make([]Dependency, len(deps))
	copy(copied, deps)
	fa := FileAnalysis{
		FilePath:     filePath,
		RelativePath: relativePath,
		Dependencies: copied,
	}
	if err := fa.Validate(); err != nil {
		return FileAnalysis{}, err
	}
	return fa, nil
}

// NewFailedFileAnalysis records a file that could not be analyzed.
// An empty relative path falls back to the file path.
func NewFailedFileAnalysis(filePath, relativePath, message string) FileAnalysis {
	if relativePath == "" {
		relativePath = filePath
	}
	return FileAnalysis{
		FilePath:     filePath,
		RelativePath: relativePath,
		Dependencies: []Dependency{},
		Error:        message,
	}
}

// Validate checks the file analysis invariants, including every dependency.
func (f FileAnalysis) Validate() error {
	if f.FilePath == "" {
		return fmt.Errorf("%w: file path cannot be empty", ErrInvalidFileAnalysis)
	}
	if f.RelativePath == "" {
		return fmt.Errorf("%w: relative path cannot be empty", ErrInvalidFileAnalysis)
	}
	for i, d := range f.Dependencies {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("%s dependency %d: %w", f.RelativePath, i, err)
		}
	}
	return nil
}

// TotalDependencies is the number of dependencies found in the file.
func (f FileAnalysis) TotalDependencies() int {
	return len(f.Dependencies)
}

// HasDependencies reports whether at least one dependency was found.
func (f FileAnalysis) HasDependencies() bool {
	return len(f.Dependencies) > 0
}

// Failed reports whether the file could not be analyzed.
func (f FileAnalysis) Failed() bool {
	return f.Error != ""
}

// DependencyTypes returns the set of distinct types present in the file.
func (f FileAnalysis) DependencyTypes() map[DependencyType]struct{} {
	set := make(map[DependencyType]struct{})
	for _, d := range f.Dependencies {
		set[d.Type] = struct{}{}
	}
	return set
}

// DependenciesByType returns the file's dependencies of type t in discovery order.
func (f FileAnalysis) DependenciesByType(t DependencyType) []Dependency {
	var out []Dependency
	for _, d := range f.Dependencies {
		if d.Type == t {
			out = append(out, d)
		}
	}
	return out
}

// matches reports whether the lowered query occurs in the relative path or in
// any dependency context.
func (f FileAnalysis) matches(lowered string) bool {
	if strings.Contains(strings.ToLower(f.RelativePath), lowered) {
		return true
	}
	for _, d := range f.Dependencies {
		if strings.Contains(strings.ToLower(d.Context), lowered) {
			return true
		}
	}
	return false
}
