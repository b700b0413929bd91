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
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/branchscope/pkg/logging"
	"github.com/AleutianAI/branchscope/services/branchscope/analyzer"
	"github.com/AleutianAI/branchscope/services/branchscope/config"
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string

	cfg         config.Config
	logger      *logging.Logger
	activeLevel logging.Level

	rootCmd = &cobra.Command{
		Use:   "branchscope",
		Short: "Find and serve usages of a tracked PHP class",
		Long: `branchscope scans a PHP codebase for references to a tracked class
(Branch by default), writes the findings to a JSON document and serves
summary, hotspot, type and search queries over HTTP.`,
		SilenceUsage:       true,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
	}

	// --- Analyze ---
	analyzeOutput  string
	analyzeVerbose bool
	analyzeLimit   int

	analyzeCmd = &cobra.Command{
		Use:   "analyze",
		Short: "Scan the configured folders and write the analysis document",
		Args:  cobra.NoArgs,
		RunE:  runAnalyze,
	}

	// --- Serve ---
	servePort int
	serveHost string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis document over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	// --- Doctor ---
	doctorCmd = &cobra.Command{
		Use:   "doctor",
		Short: "Check the scanner and parser setup",
		Args:  cobra.NoArgs,
		RunE:  runDoctor,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (defaults plus environment when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "branch_dependencies.json", "Output file name inside the scan output directory")
	analyzeCmd.Flags().BoolVarP(&analyzeVerbose, "verbose", "v", false, "Print progress every 100 files")
	analyzeCmd.Flags().IntVarP(&analyzeLimit, "limit", "l", 0, "Analyze only the first N files (0 means all)")

	serveCmd.Flags().IntVar(&servePort, "port", 8088, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Interface to bind (all when empty)")

	rootCmd.AddCommand(analyzeCmd, serveCmd, doctorCmd)
}

// setup loads configuration and installs the process logger.
func setup(cmd *cobra.Command, _ []string) error {
	provider, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = provider.Config()

	levelName := cfg.Logging.Level
	if logLevel != "" {
		levelName = logLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}

	activeLevel = level

	logCfg := logging.Config{
		Level:   level,
		Service: "branchscope",
		JSON:    strings.EqualFold(cfg.Logging.Format, "json"),
		Output:  cmd.ErrOrStderr(),
	}
	if cfg.Logging.EnableFileLogging {
		logCfg.LogDir = cfg.Logging.Dir
	}
	logger = logging.New(logCfg)
	logger.SetDefault()
	logger.Debug("configuration loaded", "config", configPath, "analysis_file", cfg.AnalysisFilePath)
	return nil
}

func teardown(*cobra.Command, []string) error {
	if logger == nil {
		return nil
	}
	return logger.Close()
}

// newParser builds the configured parser backend.
func newParser(c config.Config) (analyzer.Parser, error) {
	switch strings.ToLower(c.Scan.ParserBackend) {
	case "treesitter", "":
		return analyzer.NewTreeSitter(c.Scan.TrackedClass), nil
	case "bridge":
		timeout := c.ParserTimeout()
		if timeout <= 0 {
			timeout = analyzer.DefaultParserTimeout
		}
		return analyzer.NewBridge(c.Scan.ParserScript, analyzer.NewClassifier(c.Scan.TrackedClass),
			analyzer.WithTimeout(timeout)), nil
	default:
		return nil, fmt.Errorf("%w: unknown parser backend %q", config.ErrConfiguration, c.Scan.ParserBackend)
	}
}

// formatSeconds renders a duration in seconds with two decimals.
func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}
