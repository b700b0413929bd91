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
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/branchscope/services/branchscope/validation"
)

// ServiceVersion is the BranchScope API version.
const ServiceVersion = "1.0.0"

// DefaultHotspotsLimit is the hotspot count returned when no limit is given.
const DefaultHotspotsLimit = 20

// DefaultPerPage is the search page size when per_page is absent.
const DefaultPerPage = 50

// Handlers contains the HTTP handlers for BranchScope.
type Handlers struct {
	svc         *Service
	requests    *validation.RequestValidator
	maxHotspots int
}

// NewHandlers creates handlers for svc.
//
// Inputs:
//   - svc: The analysis service.
//   - requests: Parameter validator. Nil uses validation.MaxLimit as the page cap.
//   - maxHotspots: Upper bound on returned hotspots. Non-positive means
//     validation.MaxLimit.
func NewHandlers(svc *Service, requests *validation.RequestValidator, maxHotspots int) *Handlers {
	if requests == nil {
		requests = validation.NewRequestValidator(0)
	}
	if maxHotspots <= 0 {
		maxHotspots = validation.MaxLimit
	}
	return &Handlers{svc: svc, requests: requests, maxHotspots: maxHotspots}
}

// HandleSummary handles GET /v1/branchscope/summary.
//
// Response:
//
//	200 OK: SummaryStatistics
//	500 Internal Server Error: Document could not be loaded
func (h *Handlers) HandleSummary(c *gin.Context) {
	logger := requestLogger(c, "HandleSummary")

	stats, err := h.svc.GetSummaryStatistics(c.Request.Context())
	if err != nil {
		respondError(c, logger, err)
		return
	}
	logger.Debug("Summary returned", "total_files", stats.TotalFiles)
	respondSuccess(c, stats, "Summary statistics retrieved successfully")
}

// HandleHotspots handles GET /v1/branchscope/hotspots.
//
// Description:
//
//	Returns the files with the most dependencies. The limit query
//	parameter defaults to min(20, max hotspots) and is capped at the
//	configured maximum.
//
// Response:
//
//	200 OK: []FileAnalysis
//	400 Bad Request: Invalid limit
//	500 Internal Server Error: Processing error
func (h *Handlers) HandleHotspots(c *gin.Context) {
	logger := requestLogger(c, "HandleHotspots")

	limit, invalid := h.requests.Limit(c.Query("limit"), min(DefaultHotspotsLimit, h.maxHotspots))
	if invalid != nil {
		respondInvalid(c, logger, invalid)
		return
	}
	if limit > h.maxHotspots {
		logger.Debug("Limit capped", "requested", limit, "max", h.maxHotspots)
		limit = h.maxHotspots
	}

	hotspots, err := h.svc.FindDependencyHotspots(c.Request.Context(), limit)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	respondSuccess(c, hotspots, fmt.Sprintf("Retrieved %d dependency hotspots", len(hotspots)))
}

// HandleDependenciesByType handles GET /v1/branchscope/dependencies/:type.
//
// Response:
//
//	200 OK: []TypedDependency
//	400 Bad Request: Unknown dependency type
//	500 Internal Server Error: Processing error
func (h *Handlers) HandleDependenciesByType(c *gin.Context) {
	logger := requestLogger(c, "HandleDependenciesByType")

	depType, invalid := h.requests.DependencyType(c.Param("type"))
	if invalid != nil {
		respondInvalid(c, logger, invalid)
		return
	}

	deps, err := h.svc.GetDependenciesByType(c.Request.Context(), depType.String())
	if err != nil {
		respondError(c, logger, err)
		return
	}
	respondSuccess(c, deps, fmt.Sprintf("Retrieved %d %s dependencies", len(deps), depType))
}

// HandleSearch handles GET /v1/branchscope/search.
//
// Description:
//
//	Searches file paths and dependency contexts for q and returns one
//	page of matching files.
//
// Query Parameters:
//
//	q        - Required, up to 100 characters after trimming
//	page     - 1..10000, default 1
//	per_page - 1..max search results, default 50
//
// Response:
//
//	200 OK: Page of FileAnalysis
//	400 Bad Request: Invalid parameter
//	500 Internal Server Error: Processing error
func (h *Handlers) HandleSearch(c *gin.Context) {
	logger := requestLogger(c, "HandleSearch")

	raw, present := c.GetQuery("q")
	query, invalid := h.requests.SearchQuery(raw, present)
	if invalid != nil {
		respondInvalid(c, logger, invalid)
		return
	}
	page, invalid := h.requests.Page(c.Query("page"))
	if invalid != nil {
		respondInvalid(c, logger, invalid)
		return
	}
	perPage, invalid := h.requests.PerPage(c.Query("per_page"), DefaultPerPage)
	if invalid != nil {
		respondInvalid(c, logger, invalid)
		return
	}

	matches, err := h.svc.SearchDependencies(c.Request.Context(), query)
	if err != nil {
		respondError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Data: Page{
			Items:      paginate(matches, page, perPage),
			Pagination: NewPagination(page, perPage, len(matches)),
		},
		Message: fmt.Sprintf("Found %d matching files", len(matches)),
	})
}

// HandleFile handles GET /v1/branchscope/files/*path.
//
// Response:
//
//	200 OK: FileAnalysis
//	400 Bad Request: Invalid path
//	404 Not Found: No such file in the analysis
//	500 Internal Server Error: Processing error
func (h *Handlers) HandleFile(c *gin.Context) {
	logger := requestLogger(c, "HandleFile")

	path, invalid := h.requests.FilePath(strings.TrimPrefix(c.Param("path"), "/"))
	if invalid != nil {
		respondInvalid(c, logger, invalid)
		return
	}

	fa, err := h.svc.GetFileAnalysis(c.Request.Context(), path)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	if fa == nil {
		respondNotFound(c, "File", path)
		return
	}
	respondSuccess(c, fa, "")
}

// HandleRefresh handles POST /v1/branchscope/refresh.
//
// Response:
//
//	200 OK: SummaryStatistics of the reloaded document
//	500 Internal Server Error: Reload failed
func (h *Handlers) HandleRefresh(c *gin.Context) {
	logger := requestLogger(c, "HandleRefresh")

	if err := h.svc.RefreshAnalysis(c.Request.Context()); err != nil {
		respondError(c, logger, err)
		return
	}
	stats, err := h.svc.GetSummaryStatistics(c.Request.Context())
	if err != nil {
		respondError(c, logger, err)
		return
	}
	logger.Info("Analysis refreshed", "total_files", stats.TotalFiles)
	respondSuccess(c, stats, "Analysis data refreshed successfully")
}

// HandleMetrics handles GET /v1/branchscope/metrics/summary.
func (h *Handlers) HandleMetrics(c *gin.Context) {
	respondSuccess(c, h.svc.Metrics().Summary(), "")
}

// HandleHealth handles GET /v1/branchscope/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	repo := h.svc.Repository()
	resp := HealthResponse{
		Status:         "healthy",
		DocumentExists: repo.Exists(),
		Version:        ServiceVersion,
	}
	if p, ok := repo.(interface{ Path() string }); ok {
		resp.DocumentPath = p.Path()
	}
	if loadedAt, ok := h.svc.LoadedAt(); ok {
		resp.LoadedAt = loadedAt.UTC().Format(time.RFC3339)
	}
	respondSuccess(c, resp, "")
}

// HandleNoRoute answers unknown routes with a not_found envelope.
func HandleNoRoute(c *gin.Context) {
	respondNotFound(c, "Endpoint", c.Request.URL.Path)
}

// HandleNoMethod answers a known route with an unsupported method. gin
// sets the Allow header before calling it.
func HandleNoMethod(c *gin.Context) {
	var allowed []string
	if header := c.Writer.Header().Get("Allow"); header != "" {
		for _, m := range strings.Split(header, ",") {
			allowed = append(allowed, strings.TrimSpace(m))
		}
	}
	body := ErrorBody{Message: "Method not allowed", Type: ErrorTypeMethodNotAllowed}
	if len(allowed) > 0 {
		body.Message += ". Allowed methods: " + strings.Join(allowed, ", ")
		body.Details = map[string]any{"allowed_methods": allowed}
	}
	c.JSON(http.StatusMethodNotAllowed, ErrorResponse{Error: body})
}

// =============================================================================
// Helpers
// =============================================================================

// getOrCreateRequestID returns X-Request-ID or a new UUID, echoing it back.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

func requestLogger(c *gin.Context, handler string) *slog.Logger {
	return slog.With("request_id", getOrCreateRequestID(c), "handler", handler)
}

func respondSuccess(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: data, Message: message})
}

func respondInvalid(c *gin.Context, logger *slog.Logger, invalid *validation.Invalid) {
	respondValidation(c, logger, &ValidationError{Field: invalid.Field, Value: invalid.Value, Message: invalid.Message})
}

func respondValidation(c *gin.Context, logger *slog.Logger, ve *ValidationError) {
	logger.Debug("Validation failed", "field", ve.Field, "value", ve.Value)
	details := map[string]any{}
	if ve.Field != "" {
		details["field"] = ve.Field
	}
	if ve.Value != nil {
		details["value"] = ve.Value
	}
	body := ErrorBody{Message: ve.Message, Type: ErrorTypeValidation}
	if len(details) > 0 {
		body.Details = details
	}
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: body})
}

func respondNotFound(c *gin.Context, resource, id string) {
	message := resource + " not found"
	if id != "" {
		message += ": " + id
	}
	c.JSON(http.StatusNotFound, ErrorResponse{Error: ErrorBody{Message: message, Type: ErrorTypeNotFound}})
}

// respondError maps service errors onto the envelope. Anything that is not
// a validation failure or a miss is logged and reported generically.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		respondValidation(c, logger, ve)
	case errors.Is(err, ErrNotFound):
		respondNotFound(c, "Resource", "")
	default:
		logger.Error("Request failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorBody{Message: "Internal server error", Type: ErrorTypeServer},
		})
	}
}
