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
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/AleutianAI/branchscope/services/branchscope/domain"
)

const (
	// windowBefore and windowAfter bound the AST lines inspected to pick a
	// dependency type: [i-windowBefore, i+windowAfter).
	windowBefore = 5
	windowAfter  = 3

	// lineSearchRadius bounds the lines searched for a position: [i-r, i+r).
	lineSearchRadius = 3
)

var (
	linePatterns = []*regexp.Regexp{
		regexp.MustCompile(`line:\s*(\d+)`),
		regexp.MustCompile(`lineno:\s*(\d+)`),
		regexp.MustCompile(`startLine:\s*(\d+)`),
	}
	identifierPattern = regexp.MustCompile(`name:\s*([A-Za-z][A-Za-z0-9_]*)`)
)

// typeMarkers are checked in order against the lower-cased context window;
// the first marker found decides the type.
var typeMarkers = []struct {
	markers []string
	t       domain.DependencyType
}{
	{[]string{"expr_new", "stmt_new"}, domain.DependencyInstantiation},
	{[]string{"expr_staticcall", "staticcall"}, domain.DependencyStaticCall},
	{[]string{"stmt_use", "useitem"}, domain.DependencyUseStatement},
	{[]string{"param(", "parameter"}, domain.DependencyTypeHint},
	{[]string{"instanceof"}, domain.DependencyInstanceof},
	{[]string{"classconstfetch"}, domain.DependencyClassConstant},
}

// Classifier finds tracked-class references in a textual AST dump.
//
// Description:
//
//	The dump is the line-oriented output of nikic/PHP-Parser's NodeDumper.
//	A line of the form "name: <Ident>" where Ident contains the tracked
//	class is a reference. Its type is inferred from node names in the
//	surrounding lines, and its source line from the nearest position
//	attribute. This is a heuristic: it works on text, not on a tree.
//
// Thread Safety:
//
//	Immutable after construction; safe for concurrent use.
type Classifier struct {
	class     string
	reference *regexp.Regexp
}

// NewClassifier creates a classifier for class. Empty means DefaultTrackedClass.
func NewClassifier(class string) *Classifier {
	if class == "" {
		class = DefaultTrackedClass
	}
	return &Classifier{
		class:     class,
		reference: regexp.MustCompile(`name:\s*[A-Za-z]*` + regexp.QuoteMeta(class) + `[A-Za-z]*\s*$`),
	}
}

// TrackedClass returns the class name being searched for.
func (c *Classifier) TrackedClass() string {
	return c.class
}

// Classify returns the dependencies found in ast, in dump order.
//
// Inputs:
//   - ast: The AST dump.
//   - source: The file's source, used for context snippets.
//
// Outputs:
//   - []domain.Dependency: Never nil.
func (c *Classifier) Classify(ast, source string) []domain.Dependency {
	astLines := strings.Split(ast, "\n")
	for i := range astLines {
		astLines[i] = strings.TrimSpace(astLines[i])
	}
	srcLines := strings.Split(source, "\n")

	deps := []domain.Dependency{}
	for i, line := range astLines {
		if !c.reference.MatchString(line) {
			continue
		}
		t := dependencyTypeAt(astLines, i)
		lineNum := lineNumberAt(astLines, i)

		className := ""
		if m := identifierPattern.FindStringSubmatch(line); m != nil {
			className = m[1]
		}

		dep, err := domain.NewDependency(t, lineNum, sourceLine(srcLines, lineNum), dependencyDetails(className, t))
		if err != nil {
			slog.Debug("dropping invalid dependency", "line", lineNum, "error", err)
			continue
		}
		deps = append(deps, dep)
	}
	return deps
}

func dependencyTypeAt(lines []string, i int) domain.DependencyType {
	start := max(0, i-windowBefore)
	end := min(len(lines), i+windowAfter)
	window := strings.ToLower(strings.Join(lines[start:end], " "))

	for _, tm := range typeMarkers {
		for _, m := range tm.markers {
			if strings.Contains(window, m) {
				return tm.t
			}
		}
	}
	return domain.DependencyClassReference
}

// lineNumberAt returns the first position attribute near line i, or 0.
func lineNumberAt(lines []string, i int) int {
	start := max(0, i-lineSearchRadius)
	end := min(len(lines), i+lineSearchRadius)
	for _, line := range lines[start:end] {
		for _, p := range linePatterns {
			if m := p.FindStringSubmatch(line); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil {
					return n
				}
			}
		}
	}
	return 0
}
