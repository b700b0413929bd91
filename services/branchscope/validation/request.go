// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/branchscope/services/branchscope/domain"
)

// safePathPattern restricts path-like tokens to a conservative character set.
var safePathPattern = regexp.MustCompile(`^[a-zA-Z0-9_/\-\.\\]+$`)

// Invalid explains why a request parameter was rejected.
type Invalid struct {
	Field   string
	Value   any
	Message string
}

// Error implements error so an Invalid can flow through error paths.
func (i *Invalid) Error() string {
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// RequestValidator validates raw HTTP parameters.
//
// Description:
//
//	Wraps a go-playground validator with two custom tags: "deptype" for
//	dependency type tags and "safepath" for file path characters. Each
//	method returns the parsed value or an *Invalid describing the problem.
//
// Thread Safety:
//
//	Safe for concurrent use after construction.
type RequestValidator struct {
	v          *validator.Validate
	maxPerPage int
}

// NewRequestValidator creates a RequestValidator.
//
// Inputs:
//   - maxPerPage: Upper bound for the per_page parameter. Non-positive
//     values fall back to MaxLimit.
func NewRequestValidator(maxPerPage int) *RequestValidator {
	if maxPerPage <= 0 {
		maxPerPage = MaxLimit
	}
	v := validator.New()
	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("deptype", func(fl validator.FieldLevel) bool {
		return domain.DependencyType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("safepath", func(fl validator.FieldLevel) bool {
		return safePathPattern.MatchString(fl.Field().String())
	})
	return &RequestValidator{v: v, maxPerPage: maxPerPage}
}

// MaxPerPage returns the per_page upper bound.
func (r *RequestValidator) MaxPerPage() int {
	return r.maxPerPage
}

// SearchQuery validates the q parameter.
//
// Inputs:
//   - raw: The query as received.
//   - present: Whether the parameter was supplied at all.
//
// Outputs:
//   - string: The query, untrimmed.
//   - *Invalid: Non-nil when missing or longer than MaxSearchQueryLength after trimming.
func (r *RequestValidator) SearchQuery(raw string, present bool) (string, *Invalid) {
	if !present {
		return "", &Invalid{Field: "q", Message: "Search query is required"}
	}
	trimmed := strings.TrimSpace(raw)
	if err := r.v.Var(trimmed, fmt.Sprintf("min=%d", MinSearchQueryLength)); err != nil {
		return "", &Invalid{Field: "q", Value: raw, Message: fmt.Sprintf("Search query too short (minimum: %d)", MinSearchQueryLength)}
	}
	if err := r.v.Var(trimmed, fmt.Sprintf("max=%d", MaxSearchQueryLength)); err != nil {
		return "", &Invalid{Field: "q", Value: raw, Message: fmt.Sprintf("Search query too long (maximum: %d)", MaxSearchQueryLength)}
	}
	return raw, nil
}

// Limit validates the limit parameter, returning def when raw is empty.
func (r *RequestValidator) Limit(raw string, def int) (int, *Invalid) {
	return r.boundedInt("limit", "Limit", raw, def, MinLimit, MaxLimit)
}

// Page validates the page parameter, defaulting to 1.
func (r *RequestValidator) Page(raw string) (int, *Invalid) {
	return r.boundedInt("page", "Page number", raw, MinPage, MinPage, MaxPage)
}

// PerPage validates the per_page parameter, returning def when raw is empty.
func (r *RequestValidator) PerPage(raw string, def int) (int, *Invalid) {
	if def > r.maxPerPage {
		def = r.maxPerPage
	}
	return r.boundedInt("per_page", "Page size", raw, def, 1, r.maxPerPage)
}

// DependencyType validates a dependency type tag.
func (r *RequestValidator) DependencyType(raw string) (domain.DependencyType, *Invalid) {
	if raw == "" {
		return "", &Invalid{Field: "dep_type", Message: "Dependency type is required"}
	}
	if err := r.v.Var(raw, "deptype"); err != nil {
		return "", &Invalid{
			Field:   "dep_type",
			Value:   raw,
			Message: "Invalid dependency type. Valid types: " + strings.Join(sortedTypeNames(), ", "),
		}
	}
	return domain.DependencyType(raw), nil
}

// FilePath validates a file path parameter and returns it trimmed.
func (r *RequestValidator) FilePath(raw string) (string, *Invalid) {
	trimmed := strings.TrimSpace(raw)
	if err := r.v.Var(trimmed, "required"); err != nil {
		return "", &Invalid{Field: "file_path", Value: raw, Message: "File path cannot be empty"}
	}
	if err := r.v.Var(trimmed, fmt.Sprintf("max=%d", MaxFilePathLength)); err != nil {
		return "", &Invalid{Field: "file_path", Value: raw, Message: fmt.Sprintf("File path too long (maximum: %d characters)", MaxFilePathLength)}
	}
	if err := r.v.Var(trimmed, "safepath"); err != nil {
		return "", &Invalid{Field: "file_path", Value: raw, Message: "File path contains invalid characters"}
	}
	return trimmed, nil
}

func (r *RequestValidator) boundedInt(field, label, raw string, def, lo, hi int) (int, *Invalid) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &Invalid{Field: field, Value: raw, Message: label + " must be a valid integer"}
	}
	if err := r.v.Var(n, fmt.Sprintf("min=%d", lo)); err != nil {
		return 0, &Invalid{Field: field, Value: n, Message: fmt.Sprintf("%s too small (minimum: %d)", label, lo)}
	}
	if err := r.v.Var(n, fmt.Sprintf("max=%d", hi)); err != nil {
		return 0, &Invalid{Field: field, Value: n, Message: fmt.Sprintf("%s too large (maximum: %d)", label, hi)}
	}
	return n, nil
}

func sortedTypeNames() []string {
	types := domain.AllDependencyTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	sort.Strings(names)
	return names
}
