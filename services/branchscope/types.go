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

import "github.com/AleutianAI/branchscope/services/branchscope/metrics"

// Error types carried in ErrorBody.Type.
const (
	ErrorTypeValidation       = "validation_error"
	ErrorTypeNotFound         = "not_found"
	ErrorTypeServer           = "server_error"
	ErrorTypeMethodNotAllowed = "method_not_allowed"
)

// =============================================================================
// ENVELOPES
// =============================================================================

// SuccessResponse wraps every successful API payload.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse wraps every API failure.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// ErrorBody describes a failure.
type ErrorBody struct {
	Message string         `json:"message"`
	Type    string         `json:"type"`
	Details map[string]any `json:"details,omitempty"`
}

// Page is the data of a paginated response.
type Page struct {
	Items      any        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// Pagination describes the position of a Page within the full result.
type Pagination struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewPagination computes page bounds for total items. perPage must be
// positive.
func NewPagination(page, perPage, total int) Pagination {
	totalPages := (total + perPage - 1) / perPage
	return Pagination{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// paginate returns the slice of items for page. Pages past the end are empty.
func paginate[T any](items []T, page, perPage int) []T {
	start := (page - 1) * perPage
	if start >= len(items) {
		return []T{}
	}
	end := min(start+perPage, len(items))
	return items[start:end]
}

// =============================================================================
// RESPONSE DATA
// =============================================================================

// HealthResponse is the data of GET /health.
type HealthResponse struct {
	Status         string `json:"status"`
	DocumentExists bool   `json:"document_exists"`
	DocumentPath   string `json:"document_path,omitempty"`
	LoadedAt       string `json:"loaded_at,omitempty"`
	Version        string `json:"version"`
}

// MetricsResponse is the data of GET /metrics/summary.
type MetricsResponse = metrics.Summary
