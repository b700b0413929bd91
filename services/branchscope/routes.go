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
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers all BranchScope routes with the router.
//
// Description:
//
//	Registers all /v1/branchscope/* endpoints with the given Gin router
//	group. The group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	GET  /v1/branchscope/summary - Summary statistics
//	GET  /v1/branchscope/hotspots - Files with the most dependencies
//	GET  /v1/branchscope/dependencies/:type - Dependencies of one type
//	GET  /v1/branchscope/search - Paginated search
//	GET  /v1/branchscope/files/*path - One file's analysis
//	POST /v1/branchscope/refresh - Reload the analysis document
//	GET  /v1/branchscope/metrics/summary - Collected service metrics
//	GET  /v1/branchscope/health - Health check
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	branchscope := rg.Group("/branchscope")
	{
		branchscope.GET("/summary", handlers.HandleSummary)
		branchscope.GET("/hotspots", handlers.HandleHotspots)
		branchscope.GET("/dependencies/:type", handlers.HandleDependenciesByType)
		branchscope.GET("/search", handlers.HandleSearch)
		branchscope.GET("/files/*path", handlers.HandleFile)
		branchscope.POST("/refresh", handlers.HandleRefresh)

		branchscope.GET("/metrics/summary", handlers.HandleMetrics)
		branchscope.GET("/health", handlers.HandleHealth)
	}
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// ServiceName names the otelgin spans. Empty disables tracing middleware.
	ServiceName string

	// QueryTimeout bounds every request. Zero disables the deadline.
	QueryTimeout time.Duration

	// MetricsHandler, when set, is served at /metrics.
	MetricsHandler http.Handler
}

// NewRouter builds a gin engine with recovery, tracing, request timeouts,
// the BranchScope routes under /v1 and envelope responses for unknown
// routes and methods.
func NewRouter(handlers *Handlers, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true

	router.Use(gin.Recovery())
	if opts.ServiceName != "" {
		router.Use(otelgin.Middleware(opts.ServiceName))
	}
	router.Use(RequestLogger(), RequestTimeout(opts.QueryTimeout))

	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)

	if opts.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	router.NoRoute(HandleNoRoute)
	router.NoMethod(HandleNoMethod)
	return router
}
