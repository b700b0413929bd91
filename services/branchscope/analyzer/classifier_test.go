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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/branchscope/services/branchscope/domain"
)

const dumpNewAndStaticCall = `array(
    0: Stmt_Expression(
        startLine: 3
        expr: Expr_New(
            class: Name(
                name: Branch
            )
        )
    )
    1: Stmt_Expression(
        startLine: 5
        expr: Expr_StaticCall(
            class: Name(
                name: UserBranch
            )
            name: Identifier(
                name: create
            )
        )
    )
)`

const sourceNewAndStaticCall = "<?php\n// setup\n$b = new Branch();\n\nUserBranch::create();\n"

func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier("")
	assert.Equal(t, "Branch", c.TrackedClass())

	deps := c.Classify(dumpNewAndStaticCall, sourceNewAndStaticCall)
	require.Len(t, deps, 2)

	assert.Equal(t, domain.DependencyInstantiation, deps[0].Type)
	assert.Equal(t, 3, deps[0].Line)
	assert.Equal(t, "$b = new Branch();", deps[0].Context)
	assert.Equal(t, "Branch", deps[0].ClassName())
	kind, _ := deps[0].Details["dependency_type"].Str()
	assert.Equal(t, "instantiation", kind)

	assert.Equal(t, domain.DependencyStaticCall, deps[1].Type)
	assert.Equal(t, 5, deps[1].Line)
	assert.Equal(t, "UserBranch::create();", deps[1].Context)
	assert.Equal(t, "UserBranch", deps[1].ClassName())
}

func TestClassifier_TypeMarkers(t *testing.T) {
	tests := []struct {
		name   string
		marker string
		want   domain.DependencyType
	}{
		{name: "use", marker: "Stmt_Use(", want: domain.DependencyUseStatement},
		{name: "use item", marker: "UseItem(", want: domain.DependencyUseStatement},
		{name: "param", marker: "Param(", want: domain.DependencyTypeHint},
		{name: "instanceof", marker: "Expr_Instanceof(", want: domain.DependencyInstanceof},
		{name: "class constant", marker: "Expr_ClassConstFetch(", want: domain.DependencyClassConstant},
		{name: "other", marker: "Stmt_Class(", want: domain.DependencyClassReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dump := strings.Join([]string{tt.marker, "line: 2", "class: Name(", "name: Branch", ")", ")"}, "\n")
			deps := NewClassifier("Branch").Classify(dump, "<?php\n  Branch  \n")
			require.Len(t, deps, 1)
			assert.Equal(t, tt.want, deps[0].Type)
			assert.Equal(t, 2, deps[0].Line)
			assert.Equal(t, "Branch", deps[0].Context)
		})
	}
}

func TestClassifier_MarkerPrecedence(t *testing.T) {
	// Both markers are in the window; instantiation is checked first.
	dump := "Expr_StaticCall(\nExpr_New(\nname: Branch\n)"
	deps := NewClassifier("").Classify(dump, "")
	require.Len(t, deps, 1)
	assert.Equal(t, domain.DependencyInstantiation, deps[0].Type)
}

func TestClassifier_WindowBounds(t *testing.T) {
	// The instantiation marker is six lines above the reference, outside
	// the window.
	lines := []string{"Expr_New(", "a", "b", "c", "d", "e", "name: Branch"}
	deps := NewClassifier("").Classify(strings.Join(lines, "\n"), "")
	require.Len(t, deps, 1)
	assert.Equal(t, domain.DependencyClassReference, deps[0].Type)
}

func TestClassifier_MissingLineFallsBack(t *testing.T) {
	deps := NewClassifier("").Classify("Expr_New(\nname: Branch\n)", "<?php\n")
	require.Len(t, deps, 1)
	assert.Equal(t, 0, deps[0].Line)
	assert.Equal(t, "Line 0", deps[0].Context)
}

func TestClassifier_BlankSourceLineFallsBack(t *testing.T) {
	deps := NewClassifier("").Classify("lineno: 2\nname: Branch", "<?php\n\n")
	require.Len(t, deps, 1)
	assert.Equal(t, 2, deps[0].Line)
	assert.Equal(t, "Line 2", deps[0].Context)
}

func TestClassifier_IgnoresNonMatches(t *testing.T) {
	dump := strings.Join([]string{
		"name: branch",      // case differs
		"name: Branch_Impl", // underscore is not allowed in the reference pattern
		"var: Branch",       // not a name attribute
		"name: Tree",
	}, "\n")
	assert.Empty(t, NewClassifier("").Classify(dump, ""))
}

func TestClassifier_CustomClass(t *testing.T) {
	deps := NewClassifier("Course").Classify("Expr_New(\nline: 1\nname: MyCourse", "new MyCourse();")
	require.Len(t, deps, 1)
	assert.Equal(t, "MyCourse", deps[0].ClassName())
	assert.Equal(t, "new MyCourse();", deps[0].Context)
}
