// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultParserTimeout bounds a single parser subprocess.
	DefaultParserTimeout = 30 * time.Second

	// DefaultPHPBinary is resolved through PATH.
	DefaultPHPBinary = "php"

	// DefaultParserScript is the nikic/PHP-Parser wrapper the bridge runs.
	DefaultParserScript = "php-tools/parse-file.php"
)

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithPHPBinary overrides the PHP executable.
func WithPHPBinary(path string) BridgeOption {
	return func(b *Bridge) {
		if path != "" {
			b.php = path
		}
	}
}

// WithTimeout overrides the per-file subprocess timeout.
func WithTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// bridgeResponse is what the parser script prints on stdout.
type bridgeResponse struct {
	Success bool            `json:"success"`
	AST     json.RawMessage `json:"ast"`
	Error   string          `json:"error"`
}

// Bridge parses files by running `php <script> <file>` and classifying the
// AST dump the script prints.
//
// Thread Safety:
//
//	Safe for concurrent use; each Parse runs its own subprocess.
type Bridge struct {
	php        string
	script     string
	timeout    time.Duration
	classifier *Classifier
}

// NewBridge creates a subprocess parser.
//
// Inputs:
//   - script: Path to the parser script. Empty means DefaultParserScript.
//   - classifier: Classifies the AST dump. Nil means NewClassifier("").
//   - opts: Optional settings.
func NewBridge(script string, classifier *Classifier, opts ...BridgeOption) *Bridge {
	if script == "" {
		script = DefaultParserScript
	}
	if classifier == nil {
		classifier = NewClassifier("")
	}
	b := &Bridge{
		php:        DefaultPHPBinary,
		script:     script,
		timeout:    DefaultParserTimeout,
		classifier: classifier,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements Parser.
func (b *Bridge) Name() string { return "bridge" }

// Script returns the parser script path.
func (b *Bridge) Script() string { return b.script }

// Parse implements Parser.
func (b *Bridge) Parse(ctx context.Context, path string) Outcome {
	source, err := readSource(path)
	if err != nil {
		return failed("Analysis error: %v", err)
	}

	ast, errMsg := b.run(ctx, path)
	if errMsg != "" {
		return Outcome{Err: errMsg}
	}
	return Outcome{Dependencies: b.classifier.Classify(ast, string(source))}
}

// run executes the parser script and returns the AST dump or an error string.
func (b *Bridge) run(ctx context.Context, path string) (string, string) {
	runCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, b.php, b.script, path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return "", fmt.Sprintf("Parser timeout (%s seconds exceeded)", strconv.FormatFloat(b.timeout.Seconds(), 'f', -1, 64))
	}
	if ctx.Err() != nil {
		return "", fmt.Sprintf("Unexpected subprocess error: %v", ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			return "", fmt.Sprintf("PHP parser failed with code %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
			return "", "PHP executable not found. Make sure PHP is installed and in PATH."
		default:
			return "", fmt.Sprintf("Unexpected subprocess error: %v", err)
		}
	}

	var resp bridgeResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return "", fmt.Sprintf("Invalid JSON from PHP parser: %v", err)
	}
	if resp.Error != "" {
		return "", resp.Error
	}

	ast := astText(resp.AST)
	if ast == "" {
		return "", "No AST returned from parser"
	}
	return ast, ""
}

// astText accepts the dump as a JSON string, or any other JSON value as raw text.
func astText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

var _ Parser = (*Bridge)(nil)
