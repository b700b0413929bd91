// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads BranchScope settings from an embedded YAML default,
// an optional YAML file, a .env file and the process environment.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultYAML []byte

// ErrConfiguration is returned for unreadable or invalid settings.
var ErrConfiguration = errors.New("configuration error")

// =============================================================================
// TYPES
// =============================================================================

// Config is the full set of BranchScope settings.
type Config struct {
	AnalysisFilePath string        `yaml:"analysis_file_path"`
	WatchDocument    bool          `yaml:"watch_analysis_file"`
	Cache            CacheConfig   `yaml:"cache"`
	Limits           LimitsConfig  `yaml:"limits"`
	Logging          LoggingConfig `yaml:"logging"`
	Scan             ScanConfig    `yaml:"scan"`
}

// CacheConfig controls the in-memory cache.
type CacheConfig struct {
	Enabled           bool `yaml:"enabled"`
	MaxSize           int  `yaml:"max_size"`
	DefaultTTLSeconds int  `yaml:"default_ttl_seconds"`
}

// LimitsConfig bounds query sizes and durations.
type LimitsConfig struct {
	MaxSearchResults    int `yaml:"max_search_results"`
	MaxHotspots         int `yaml:"max_hotspots"`
	QueryTimeoutSeconds int `yaml:"query_timeout_seconds"`
}

// LoggingConfig controls process logging.
type LoggingConfig struct {
	Level             string `yaml:"level"`
	Format            string `yaml:"format"`
	EnableFileLogging bool   `yaml:"enable_file_logging"`
	Dir               string `yaml:"dir"`
}

// ScanConfig controls the analyze command.
type ScanConfig struct {
	BasePath             string   `yaml:"base_path"`
	AnalyzeFolders       []string `yaml:"analyze_folders"`
	ExcludeFolders       []string `yaml:"exclude_folders"`
	Extensions           []string `yaml:"extensions"`
	OutputDir            string   `yaml:"output_dir"`
	ParserBackend        string   `yaml:"parser_backend"`
	ParserScript         string   `yaml:"parser_script"`
	ParserTimeoutSeconds int      `yaml:"parser_timeout_seconds"`
	Workers              int      `yaml:"workers"`
	TrackedClass         string   `yaml:"tracked_class"`
}

// CacheDefaultTTL returns the default cache TTL as a duration.
func (c Config) CacheDefaultTTL() time.Duration {
	return time.Duration(c.Cache.DefaultTTLSeconds) * time.Second
}

// QueryTimeout returns the per-request timeout as a duration.
func (c Config) QueryTimeout() time.Duration {
	return time.Duration(c.Limits.QueryTimeoutSeconds) * time.Second
}

// ParserTimeout returns the per-file parser timeout as a duration.
func (c Config) ParserTimeout() time.Duration {
	return time.Duration(c.Scan.ParserTimeoutSeconds) * time.Second
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.AnalysisFilePath) == "" {
		problems = append(problems, "analysis_file_path is empty")
	}
	if c.Cache.MaxSize <= 0 {
		problems = append(problems, fmt.Sprintf("cache.max_size must be positive, got %d", c.Cache.MaxSize))
	}
	if c.Cache.DefaultTTLSeconds < 0 {
		problems = append(problems, "cache.default_ttl_seconds cannot be negative")
	}
	if c.Limits.MaxSearchResults <= 0 {
		problems = append(problems, "limits.max_search_results must be positive")
	}
	if c.Limits.MaxHotspots <= 0 {
		problems = append(problems, "limits.max_hotspots must be positive")
	}
	if c.Limits.QueryTimeoutSeconds <= 0 {
		problems = append(problems, "limits.query_timeout_seconds must be positive")
	}
	switch strings.ToLower(c.Scan.ParserBackend) {
	case "treesitter", "bridge":
	default:
		problems = append(problems, fmt.Sprintf("scan.parser_backend must be treesitter or bridge, got %q", c.Scan.ParserBackend))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// =============================================================================
// PROVIDERS
// =============================================================================

// Provider supplies a loaded configuration.
type Provider interface {
	Config() Config
}

// EnvProvider serves configuration loaded from files and the environment.
type EnvProvider struct {
	cfg Config
}

// Config returns the loaded configuration.
func (p *EnvProvider) Config() Config {
	return p.cfg
}

// StaticProvider serves a fixed configuration. Intended for tests.
type StaticProvider struct {
	Cfg Config
}

// Config returns the fixed configuration.
func (p StaticProvider) Config() Config {
	return p.Cfg
}

// Default returns the embedded defaults.
func Default() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultYAML, &cfg); err != nil {
		panic(fmt.Sprintf("embedded defaults.yaml is invalid: %v", err))
	}
	return cfg
}

// Load builds configuration from every source.
//
// Description:
//
//	Sources are applied in order, later ones winning: embedded defaults,
//	the YAML file at path (skipped when path is empty), a .env file in the
//	working directory (never overriding variables already set), and the
//	process environment.
//
// Inputs:
//   - path: Optional YAML file path.
//
// Outputs:
//   - *EnvProvider: Provider holding the validated configuration.
//   - error: Wraps ErrConfiguration when a source is unreadable or a value
//     is invalid.
func Load(path string) (*EnvProvider, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrConfiguration, path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrConfiguration, path, err)
		}
	}

	// A missing .env file is normal.
	_ = godotenv.Load()

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &EnvProvider{cfg: cfg}, nil
}

// lookupFunc matches os.LookupEnv.
type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s=%q is not an integer", ErrConfiguration, key, v))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s=%q is not a boolean", ErrConfiguration, key, v))
				return
			}
			*dst = b
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok {
			*dst = splitList(v)
		}
	}

	str("ANALYSIS_FILE_PATH", &cfg.AnalysisFilePath)
	flag("WATCH_ANALYSIS_FILE", &cfg.WatchDocument)

	flag("CACHE_ENABLED", &cfg.Cache.Enabled)
	num("CACHE_MAX_SIZE", &cfg.Cache.MaxSize)
	num("CACHE_DEFAULT_TTL", &cfg.Cache.DefaultTTLSeconds)

	num("MAX_SEARCH_RESULTS", &cfg.Limits.MaxSearchResults)
	num("MAX_HOTSPOTS", &cfg.Limits.MaxHotspots)
	num("QUERY_TIMEOUT", &cfg.Limits.QueryTimeoutSeconds)

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)
	flag("ENABLE_FILE_LOGGING", &cfg.Logging.EnableFileLogging)
	str("LOG_DIR", &cfg.Logging.Dir)

	str("SCAN_BASE_PATH", &cfg.Scan.BasePath)
	list("SCAN_ANALYZE_FOLDERS", &cfg.Scan.AnalyzeFolders)
	list("SCAN_EXCLUDE_FOLDERS", &cfg.Scan.ExcludeFolders)
	list("SCAN_EXTENSIONS", &cfg.Scan.Extensions)
	str("SCAN_OUTPUT_DIR", &cfg.Scan.OutputDir)
	str("PARSER_BACKEND", &cfg.Scan.ParserBackend)
	str("PHP_PARSER_SCRIPT", &cfg.Scan.ParserScript)
	num("PARSER_TIMEOUT", &cfg.Scan.ParserTimeoutSeconds)
	num("SCAN_WORKERS", &cfg.Scan.Workers)
	str("TRACKED_CLASS", &cfg.Scan.TrackedClass)

	return errors.Join(errs...)
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
