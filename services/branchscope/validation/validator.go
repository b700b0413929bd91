// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks external inputs before they reach the analysis
// service.
//
// Validator holds the pure predicates the service applies. RequestValidator
// is the stricter HTTP-boundary variant that also explains why an input was
// rejected.
package validation

import (
	"strings"
	"unicode/utf8"

	"github.com/AleutianAI/branchscope/services/branchscope/domain"
)

// Bounds shared by the service and the HTTP boundary.
const (
	MinSearchQueryLength = 0
	MaxSearchQueryLength = 100
	MinLimit             = 1
	MaxLimit             = 1000
	MinPage              = 1
	MaxPage              = 10000
	MaxFilePathLength    = 1000
)

// Validator is the set of predicates the analysis service applies.
//
// Predicates never fail; invalid input yields false.
type Validator interface {
	ValidSearchQuery(query string) bool
	ValidLimit(limit int) bool
	ValidDependencyType(tag string) bool
	ValidFilePath(path string) bool
}

// Standard implements Validator with the documented bounds.
type Standard struct{}

// NewStandard returns the default predicate set.
func NewStandard() Standard {
	return Standard{}
}

// ValidSearchQuery accepts trimmed lengths in [0, 100].
func (Standard) ValidSearchQuery(query string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(query))
	return n >= MinSearchQueryLength && n <= MaxSearchQueryLength
}

// ValidLimit accepts [1, 1000].
func (Standard) ValidLimit(limit int) bool {
	return limit >= MinLimit && limit <= MaxLimit
}

// ValidDependencyType accepts the seven dependency tags.
func (Standard) ValidDependencyType(tag string) bool {
	return domain.DependencyType(tag).Valid()
}

// ValidFilePath accepts non-blank paths shorter than MaxFilePathLength.
func (Standard) ValidFilePath(path string) bool {
	return strings.TrimSpace(path) != "" && len(path) < MaxFilePathLength
}

var _ Validator = Standard{}
