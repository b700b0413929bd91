// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/branchscope/pkg/logging"
	"github.com/AleutianAI/branchscope/services/branchscope"
	"github.com/AleutianAI/branchscope/services/branchscope/repository"
	"github.com/AleutianAI/branchscope/services/branchscope/telemetry"
)

const (
	serviceName     = "branchscope"
	shutdownTimeout = 10 * time.Second
)

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if activeLevel != logging.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.DefaultConfig(serviceName))
	if err != nil {
		slog.Warn("Failed to initialize OpenTelemetry, continuing without tracing", "error", err)
		shutdownTelemetry = nil
	}
	if shutdownTelemetry != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				slog.Error("Failed to shutdown OpenTelemetry", "error", err)
			}
		}()
	}

	svc, err := branchscope.Build(cfg)
	if err != nil {
		return fmt.Errorf("initialize service: %w", err)
	}

	metricsHandler := telemetry.MetricsHandler()
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router := branchscope.NewRouter(branchscope.BuildHandlers(svc, cfg), branchscope.RouterOptions{
		ServiceName:    serviceName,
		QueryTimeout:   cfg.QueryTimeout(),
		MetricsHandler: metricsHandler,
	})

	if cfg.WatchDocument {
		watcher, err := repository.NewWatcher(cfg.AnalysisFilePath, svc.Repository(),
			repository.WithOnInvalidate(func() {
				slog.Info("analysis document changed", "path", cfg.AnalysisFilePath)
			}),
		)
		if err == nil {
			err = watcher.Start(ctx)
		}
		if err != nil {
			slog.Warn("document watching disabled", "path", cfg.AnalysisFilePath, "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(serveHost, strconv.Itoa(servePort)),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting branchscope server", "addr", srv.Addr, "document", cfg.AnalysisFilePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down branchscope server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}
