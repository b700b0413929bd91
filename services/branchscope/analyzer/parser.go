// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analyzer locates usages of a tracked class in PHP sources and
// assembles them into an analysis result.
//
// Two parser backends are provided: Bridge runs an external PHP parser and
// classifies its AST dump line by line, and TreeSitter parses in process with
// the tree-sitter PHP grammar.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/AleutianAI/branchscope/services/branchscope/domain"
)

// DefaultTrackedClass is the class name searched for when none is configured.
const DefaultTrackedClass = "Branch"

// selfTestSource is the snippet a healthy backend must parse without error.
const selfTestSource = "<?php\nclass TestClass {}\n"

// Outcome is the result of parsing one file.
//
// Exactly one of Dependencies or Err is meaningful: when Err is non-empty
// the file could not be analyzed.
type Outcome struct {
	Dependencies []domain.Dependency
	Err          string
}

// Failed reports whether the file could not be analyzed.
func (o Outcome) Failed() bool {
	return o.Err != ""
}

func failed(format string, args ...any) Outcome {
	return Outcome{Err: fmt.Sprintf(format, args...)}
}

// Parser extracts tracked-class dependencies from one source file.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use. Parse never panics;
//	every failure is reported through Outcome.Err.
type Parser interface {
	// Name identifies the backend in logs and diagnostics.
	Name() string

	// Parse analyzes the file at path.
	Parse(ctx context.Context, path string) Outcome
}

// SelfTest writes a trivial PHP file to a temp location and parses it.
//
// Outputs:
//   - error: Nil when the backend parsed the file cleanly.
func SelfTest(ctx context.Context, p Parser) error {
	f, err := os.CreateTemp("", "branchscope_parser_test_*.php")
	if err != nil {
		return err
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(selfTestSource); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	out := p.Parse(ctx, path)
	if out.Failed() {
		return errors.New(out.Err)
	}
	return nil
}

// readSource loads a source file, dropping invalid UTF-8 sequences.
func readSource(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		data = []byte(strings.ToValidUTF8(string(data), ""))
	}
	return data, nil
}

// sourceLine returns the trimmed 1-based line of source, or "Line N" when
// the line is out of range or blank.
func sourceLine(lines []string, n int) string {
	if n >= 1 && n <= len(lines) {
		if s := strings.TrimSpace(lines[n-1]); s != "" {
			return s
		}
	}
	return fmt.Sprintf("Line %d", n)
}

// classNamePattern matches identifiers containing the tracked class, such as
// Branch, UserBranch or BranchFactory.
func classNamePattern(class string) *regexp.Regexp {
	if class == "" {
		class = DefaultTrackedClass
	}
	return regexp.MustCompile(`^[A-Za-z]*` + regexp.QuoteMeta(class) + `[A-Za-z]*$`)
}

func dependencyDetails(className string, t domain.DependencyType) domain.Details {
	d := domain.Details{"dependency_type": domain.StringDetail(t.String())}
	if className != "" {
		d["class_name"] = domain.StringDetail(className)
	}
	return d
}
