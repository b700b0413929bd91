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
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/branchscope/services/branchscope/config"
	"github.com/AleutianAI/branchscope/services/branchscope/repository"
)

// Sentinel errors for the BranchScope service.
var (
	// ErrValidation indicates a rejected input parameter.
	ErrValidation = errors.New("validation error")

	// ErrRepository indicates the analysis document could not be read or written.
	ErrRepository = repository.ErrRepository

	// ErrCache indicates a cache failure. The in-memory caches never fail,
	// so nothing returns it today.
	ErrCache = errors.New("cache error")

	// ErrConfiguration indicates unusable settings.
	ErrConfiguration = config.ErrConfiguration

	// ErrAnalysis indicates a service operation failed for a non-validation reason.
	ErrAnalysis = errors.New("analysis error")

	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")
)

// ValidationError describes a rejected parameter.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// AnalysisError wraps a failure inside a service operation. Op is the
// operation's metric name, e.g. "get_summary_statistics".
type AnalysisError struct {
	Op  string
	Err error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("Failed to %s: %v", strings.ReplaceAll(e.Op, "_", " "), e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrAnalysis.
func (e *AnalysisError) Is(target error) bool {
	return target == ErrAnalysis
}

// errorKind classifies err for error metrics.
func errorKind(err error) string {
	var repoErr *repository.RepositoryError
	switch {
	case errors.As(err, &repoErr):
		return "RepositoryError"
	case errors.Is(err, ErrCache):
		return "CacheError"
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	default:
		return "error"
	}
}
