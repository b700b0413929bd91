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
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/php"

	"github.com/AleutianAI/branchscope/services/branchscope/domain"
)

// passthroughTypes wrap a class name without changing how it is used.
var passthroughTypes = map[string]bool{
	"qualified_name":               true,
	"named_type":                   true,
	"optional_type":                true,
	"union_type":                   true,
	"intersection_type":            true,
	"nullable_type":                true,
	"namespace_name":               true,
	"namespace_name_as_prefix":     true,
	"type_list":                    true,
	"disjunctive_normal_form_type": true,
}

// declarationTypes own a name node that is not a reference to a class.
var declarationTypes = map[string]bool{
	"variable_name":                     true,
	"member_call_expression":            true,
	"member_access_expression":          true,
	"nullsafe_member_call_expression":   true,
	"nullsafe_member_access_expression": true,
	"function_call_expression":          true,
	"class_declaration":                 true,
	"interface_declaration":             true,
	"trait_declaration":                 true,
	"enum_declaration":                  true,
	"enum_case":                         true,
	"const_element":                     true,
	"property_element":                  true,
	"namespace_definition":              true,
	"namespace_aliasing_clause":         true,
	"named_label_statement":             true,
	"goto_statement":                    true,
}

// TreeSitter parses PHP in process with the tree-sitter grammar.
//
// Description:
//
//	Every name node whose text contains the tracked class is a candidate.
//	The classifier climbs through type and namespace wrappers to the
//	nearest node that explains the usage: object creation, static call,
//	use clause, parameter or return type, instanceof, or class constant
//	access. Names that declare something (a method, a variable, the class
//	itself) are not dependencies.
//
// Thread Safety:
//
//	Safe for concurrent use; a parser is created per call.
type TreeSitter struct {
	class     string
	className *regexp.Regexp
}

// NewTreeSitter creates an in-process parser for class. Empty means
// DefaultTrackedClass.
func NewTreeSitter(class string) *TreeSitter {
	if class == "" {
		class = DefaultTrackedClass
	}
	return &TreeSitter{class: class, className: classNamePattern(class)}
}

// Name implements Parser.
func (t *TreeSitter) Name() string { return "treesitter" }

// Parse implements Parser.
func (t *TreeSitter) Parse(ctx context.Context, path string) Outcome {
	source, err := readSource(path)
	if err != nil {
		return failed("Analysis error: %v", err)
	}
	deps, err := t.ParseSource(ctx, source)
	if err != nil {
		return Outcome{Err: err.Error()}
	}
	return Outcome{Dependencies: deps}
}

// ParseSource finds dependencies in PHP source held in memory.
//
// Outputs:
//   - []domain.Dependency: In source order. Never nil on success.
//   - error: Parse failures, including syntax errors.
func (t *TreeSitter) ParseSource(ctx context.Context, source []byte) ([]domain.Dependency, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(php.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("Analysis error: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("PHP syntax error near line %d", firstErrorLine(root))
	}

	lines := strings.Split(string(source), "\n")
	deps := []domain.Dependency{}

	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.Type() == "name" {
			text := n.Content(source)
			if t.className.MatchString(text) {
				if dt, ok := classifyName(n); ok {
					line := int(n.StartPoint().Row) + 1
					dep, err := domain.NewDependency(dt, line, sourceLine(lines, line), dependencyDetails(text, dt))
					if err != nil {
						slog.Debug("dropping invalid dependency", "line", line, "error", err)
					} else {
						deps = append(deps, dep)
					}
				}
			}
			continue
		}

		// Push in reverse so children pop in source order.
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if child := n.Child(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
	return deps, nil
}

// classifyName decides how the name node n is used. ok is false when the
// name declares something rather than referring to a class.
func classifyName(n *sitter.Node) (domain.DependencyType, bool) {
	child := n
	parent := n.Parent()
	inNamespace := false
	for parent != nil && passthroughTypes[parent.Type()] {
		switch parent.Type() {
		case "namespace_name", "namespace_name_as_prefix":
			inNamespace = true
		case "qualified_name":
			// A name inside the namespace prefix of a qualified name is a
			// namespace segment, not the class.
			if inNamespace {
				return "", false
			}
		}
		child = parent
		parent = parent.Parent()
	}
	if parent == nil {
		return domain.DependencyClassReference, true
	}

	pt := parent.Type()
	if declarationTypes[pt] {
		return "", false
	}

	switch pt {
	case "object_creation_expression":
		return domain.DependencyInstantiation, true
	case "scoped_call_expression":
		if sameNode(child, parent.ChildByFieldName("scope")) {
			return domain.DependencyStaticCall, true
		}
		return "", false
	case "class_constant_access_expression":
		if parent.NamedChildCount() > 0 && sameNode(child, parent.NamedChild(0)) {
			return domain.DependencyClassConstant, true
		}
		return "", false
	case "namespace_use_clause", "namespace_use_declaration", "namespace_use_group_clause":
		return domain.DependencyUseStatement, true
	case "simple_parameter", "property_promotion_parameter", "variadic_parameter":
		return domain.DependencyTypeHint, true
	case "function_definition", "method_declaration", "anonymous_function_creation_expression",
		"anonymous_function", "arrow_function":
		if sameNode(child, parent.ChildByFieldName("name")) {
			return "", false
		}
		return domain.DependencyTypeHint, true
	case "binary_expression":
		if op := parent.ChildByFieldName("operator"); op != nil && op.Type() == "instanceof" {
			return domain.DependencyInstanceof, true
		}
	}
	return domain.DependencyClassReference, true
}

func sameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// firstErrorLine returns the 1-based line of the first ERROR or missing node.
func firstErrorLine(root *sitter.Node) int {
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.IsError() || n.IsMissing() {
			return int(n.StartPoint().Row) + 1
		}
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if child := n.Child(i); child != nil && (child.HasError() || child.IsMissing()) {
				stack = append(stack, child)
			}
		}
	}
	return int(root.StartPoint().Row) + 1
}

var _ Parser = (*TreeSitter)(nil)
