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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/branchscope/services/branchscope/domain"
	"github.com/AleutianAI/branchscope/services/branchscope/validation"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *ErrorBody      `json:"error"`
}

func setupTestRouter(t *testing.T, svc *Service, maxHotspots int) *gin.Engine {
	t.Helper()
	handlers := NewHandlers(svc, validation.NewRequestValidator(5), maxHotspots)
	return NewRouter(handlers, RouterOptions{QueryTimeout: time.Second})
}

func doRequest(t *testing.T, router *gin.Engine, method, target string, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestHandlers_Summary(t *testing.T) {
	svc, _, _ := newDiskService(t, threeFileResult(t))
	router := setupTestRouter(t, svc, 100)

	w, env := doRequest(t, router, http.MethodGet, "/v1/branchscope/summary", map[string]string{"X-Request-ID": "req-1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
	assert.True(t, env.Success)
	assert.Equal(t, "Summary statistics retrieved successfully", env.Message)

	var stats struct {
		TotalFiles            int            `json:"total_files"`
		FilesWithDependencies int            `json:"files_with_dependencies"`
		TotalDependencies     int            `json:"total_dependencies"`
		DependencyTypeCounts  map[string]int `json:"dependency_type_counts"`
		AnalysisMetadata      map[string]any `json:"analysis_metadata"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 3, stats.TotalFiles)
	assert.Equal(t, 2, stats.FilesWithDependencies)
	assert.Equal(t, 7, stats.TotalDependencies)
	assert.Equal(t, map[string]int{"instantiation": 5, "static_call": 2}, stats.DependencyTypeCounts)
	assert.Equal(t, "/project", stats.AnalysisMetadata["base_path"])
}

func TestHandlers_GeneratesRequestID(t *testing.T) {
	svc, _, _ := newDiskService(t, threeFileResult(t))
	router := setupTestRouter(t, svc, 100)

	w, _ := doRequest(t, router, http.MethodGet, "/v1/branchscope/summary", nil)
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)
}

func TestHandlers_Hotspots(t *testing.T) {
	svc, _, _ := newDiskService(t, threeFileResult(t))

	tests := []struct {
		name        string
		maxHotspots int
		query       string
		wantStatus  int
		wantFiles   []string
	}{
		{"default limit", 100, "", http.StatusOK, []string{"src/A.php", "src/B.php"}},
		{"explicit limit", 100, "?limit=1", http.StatusOK, []string{"src/A.php"}},
		{"capped by max hotspots", 1, "?limit=50", http.StatusOK, []string{"src/A.php"}},
		{"default bounded by max hotspots", 1, "", http.StatusOK, []string{"src/A.php"}},
		{"zero", 100, "?limit=0", http.StatusBadRequest, nil},
		{"too large", 100, "?limit=1001", http.StatusBadRequest, nil},
		{"not a number", 100, "?limit=ten", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter(t, svc, tt.maxHotspots)
			w, env := doRequest(t, router, http.MethodGet, "/v1/branchscope/hotspots"+tt.query, nil)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			if tt.wantStatus != http.StatusOK {
				require.NotNil(t, env.Error)
				assert.False(t, env.Success)
				assert.Equal(t, ErrorTypeValidation, env.Error.Type)
				assert.Equal(t, "limit", env.Error.Details["field"])
				return
			}

			var files []struct {
				RelativePath string `json:"relative_path"`
			}
			require.NoError(t, json.Unmarshal(env.Data, &files))
			got := make([]string, len(files))
			for i, f := range files {
				got[i] = f.RelativePath
			}
			assert.Equal(t, tt.wantFiles, got)
			assert.Equal(t, "Retrieved "+strconv.Itoa(len(got))+" dependency hotspots", env.Message)
		})
	}
}

func TestHandlers_DependenciesByType(t *testing.T) {
	svc, _, _ := newDiskService(t, threeFileResult(t))
	router := setupTestRouter(t, svc, 100)

	w, env := doRequest(t, router, http.MethodGet, "/v1/branchscope/dependencies/static_call", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var deps []struct {
		Type string `json:"type"`
		Line int    `json:"line"`
		File string `json:"file"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &deps))
	require.Len(t, deps, 2)
	for _, d := range deps {
		assert.Equal(t, "static_call", d.Type)
		assert.Equal(t, "src/B.php", d.File)
	}

	w, env = doRequest(t, router, http.MethodGet, "/v1/branchscope/dependencies/nonsense", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrorTypeValidation, env.Error.Type)
	assert.Equal(t, "dep_type", env.Error.Details["field"])
	assert.Equal(t, "nonsense", env.Error.Details["value"])
	assert.True(t, strings.HasPrefix(env.Error.Message, "Invalid dependency type. Valid types: class_constant, class_reference"))
}

func TestHandlers_SearchPagination(t *testing.T) {
	var files []domain.FileAnalysis
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		files = append(files, makeFile(t, "src/"+name+".php", makeDeps(t, domain.DependencyInstantiation, 1)))
	}
	svc, _, _ := newDiskService(t, makeResult(t, files...))
	router := setupTestRouter(t, svc, 100)

	type page struct {
		Items []struct {
			RelativePath string `json:"relative_path"`
		} `json:"items"`
		Pagination Pagination `json:"pagination"`
	}

	w, env := doRequest(t, router, http.MethodGet, "/v1/branchscope/search?q=src&page=2&per_page=3", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var p page
	require.NoError(t, json.Unmarshal(env.Data, &p))
	require.Len(t, p.Items, 3)
	assert.Equal(t, "src/d.php", p.Items[0].RelativePath)
	assert.Equal(t, Pagination{Page: 2, PerPage: 3, Total: 7, TotalPages: 3, HasNext: true, HasPrev: true}, p.Pagination)

	_, env = doRequest(t, router, http.MethodGet, "/v1/branchscope/search?q=src&page=9&per_page=3", nil)
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Empty(t, p.Items)
	assert.False(t, p.Pagination.HasNext)

	_, env = doRequest(t, router, http.MethodGet, "/v1/branchscope/search?q=src", nil)
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, 5, p.Pagination.PerPage, "default page size is capped by max search results")
	assert.Equal(t, 2, p.Pagination.TotalPages)

	_, env = doRequest(t, router, http.MethodGet, "/v1/branchscope/search?q=", nil)
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Empty(t, p.Items)
	assert.Equal(t, 0, p.Pagination.TotalPages)
}

func TestHandlers_SearchValidation(t *testing.T) {
	svc, _, _ := newDiskService(t, threeFileResult(t))
	router := setupTestRouter(t, svc, 100)

	tests := []struct {
		name  string
		query string
		field string
	}{
		{"missing q", "", "q"},
		{"long q", "?q=" + strings.Repeat("x", 101), "q"},
		{"bad page", "?q=src&page=0", "page"},
		{"huge page", "?q=src&page=10001", "page"},
		{"bad per_page", "?q=src&per_page=6", "per_page"},
		{"text per_page", "?q=src&per_page=many", "per_page"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := doRequest(t, router, http.MethodGet, "/v1/branchscope/search"+tt.query, nil)
			require.Equal(t, http.StatusBadRequest, w.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.field, env.Error.Details["field"])
		})
	}
}

func TestHandlers_File(t *testing.T) {
	svc, _, _ := newDiskService(t, threeFileResult(t))
	router := setupTestRouter(t, svc, 100)

	w, env := doRequest(t, router, http.MethodGet, "/v1/branchscope/files/src/B.php", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fa struct {
		RelativePath      string `json:"relative_path"`
		TotalDependencies int    `json:"total_dependencies"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &fa))
	assert.Equal(t, "src/B.php", fa.RelativePath)
	assert.Equal(t, 2, fa.TotalDependencies)

	w, env = doRequest(t, router, http.MethodGet, "/v1/branchscope/files/src/missing.php", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrorTypeNotFound, env.Error.Type)
	assert.Equal(t, "File not found: src/missing.php", env.Error.Message)

	w, env = doRequest(t, router, http.MethodGet, "/v1/branchscope/files/src/b%20c.php", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "File path contains invalid characters", env.Error.Message)
}

func TestHandlers_Refresh(t *testing.T) {
	svc, repo, _ := newDiskService(t, threeFileResult(t))
	router := setupTestRouter(t, svc, 100)

	_, env := doRequest(t, router, http.MethodGet, "/v1/branchscope/summary", nil)
	require.True(t, env.Success)

	require.NoError(t, os.Remove(repo.Path()))

	w, env := doRequest(t, router, http.MethodPost, "/v1/branchscope/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Analysis data refreshed successfully", env.Message)
	var stats domain.SummaryStatistics
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 0, stats.TotalFiles)
}

func TestHandlers_ServerErrorIsGeneric(t *testing.T) {
	repo := &fakeRepo{err: errors.New("disk on fire")}
	svc, err := NewService(repo, nil, nil, nil)
	require.NoError(t, err)
	router := setupTestRouter(t, svc, 100)

	w, env := doRequest(t, router, http.MethodGet, "/v1/branchscope/summary", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrorTypeServer, env.Error.Type)
	assert.Equal(t, "Internal server error", env.Error.Message)
	assert.NotContains(t, w.Body.String(), "disk on fire")
}

func TestHandlers_HealthAndMetrics(t *testing.T) {
	svc, repo, _ := newDiskService(t, threeFileResult(t))
	router := setupTestRouter(t, svc, 100)

	_, env := doRequest(t, router, http.MethodGet, "/v1/branchscope/health", nil)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(env.Data, &health))
	assert.Equal(t, "healthy", health.Status)
	assert.True(t, health.DocumentExists)
	assert.Equal(t, repo.Path(), health.DocumentPath)
	assert.Empty(t, health.LoadedAt)

	doRequest(t, router, http.MethodGet, "/v1/branchscope/summary", nil)

	_, env = doRequest(t, router, http.MethodGet, "/v1/branchscope/metrics/summary", nil)
	var summary MetricsResponse
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 1, summary.Operations[OpGetSummaryStatistics].Count)
	assert.Equal(t, 1, summary.Cache.TotalMisses)

	_, env = doRequest(t, router, http.MethodGet, "/v1/branchscope/health", nil)
	require.NoError(t, json.Unmarshal(env.Data, &health))
	assert.NotEmpty(t, health.LoadedAt)
}

func TestHandlers_UnknownRouteAndMethod(t *testing.T) {
	svc, _, _ := newDiskService(t, threeFileResult(t))
	router := setupTestRouter(t, svc, 100)

	w, env := doRequest(t, router, http.MethodGet, "/v1/branchscope/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrorTypeNotFound, env.Error.Type)

	w, env = doRequest(t, router, http.MethodDelete, "/v1/branchscope/summary", nil)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrorTypeMethodNotAllowed, env.Error.Type)
	assert.True(t, strings.HasPrefix(env.Error.Message, "Method not allowed"))
}

func TestRequestTimeout(t *testing.T) {
	router := gin.New()
	router.Use(RequestTimeout(50 * time.Millisecond))
	router.GET("/slow", func(c *gin.Context) {
		deadline, ok := c.Request.Context().Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 40*time.Millisecond)
		<-c.Request.Context().Done()
		assert.ErrorIs(t, c.Request.Context().Err(), context.DeadlineExceeded)
		c.Status(http.StatusGatewayTimeout)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestNewPagination(t *testing.T) {
	assert.Equal(t, Pagination{Page: 1, PerPage: 10, Total: 0, TotalPages: 0}, NewPagination(1, 10, 0))
	assert.Equal(t, Pagination{Page: 1, PerPage: 10, Total: 10, TotalPages: 1}, NewPagination(1, 10, 10))
	assert.Equal(t, Pagination{Page: 2, PerPage: 10, Total: 11, TotalPages: 2, HasPrev: true}, NewPagination(2, 10, 11))
}
