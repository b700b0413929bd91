// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package domain holds the value types that describe a completed scan and the
// read-only views derived from them.
//
// Values are built through the New* constructors, which enforce the model's
// invariants, and are treated as read-only afterwards. Nothing in this
// package performs I/O.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// =============================================================================
// DEPENDENCY TYPE
// =============================================================================

// DependencyType classifies how a file uses the tracked class.
type DependencyType string

const (
	// DependencyInstantiation is `new Branch()`.
	DependencyInstantiation DependencyType = "instantiation"

	// DependencyStaticCall is `Branch::method()`.
	DependencyStaticCall DependencyType = "static_call"

	// DependencyTypeHint is a parameter or return type declaration.
	DependencyTypeHint DependencyType = "type_hint"

	// DependencyUseStatement is `use Some\Namespace\Branch;`.
	DependencyUseStatement DependencyType = "use_statement"

	// DependencyInstanceof is `$x instanceof Branch`.
	DependencyInstanceof DependencyType = "instanceof"

	// DependencyClassConstant is `Branch::CONSTANT`.
	DependencyClassConstant DependencyType = "class_constant"

	// DependencyClassReference is any other reference to the class.
	DependencyClassReference DependencyType = "class_reference"
)

var allDependencyTypes = []DependencyType{
	DependencyInstantiation,
	DependencyStaticCall,
	DependencyTypeHint,
	DependencyUseStatement,
	DependencyInstanceof,
	DependencyClassConstant,
	DependencyClassReference,
}

// AllDependencyTypes returns every dependency type in declaration order.
func AllDependencyTypes() []DependencyType {
	out := make([]DependencyType, len(allDependencyTypes))
	copy(out, allDependencyTypes)
	return out
}

// Valid reports whether t is a member of the closed set.
func (t DependencyType) Valid() bool {
	for _, known := range allDependencyTypes {
		if t == known {
			return true
		}
	}
	return false
}

// String returns the wire tag.
func (t DependencyType) String() string {
	return string(t)
}

// ParseDependencyType converts a wire tag into a DependencyType.
//
// Outputs:
//   - DependencyType: The parsed type.
//   - error: ErrUnknownDependencyType when s is not one of the seven tags.
func ParseDependencyType(s string) (DependencyType, error) {
	t := DependencyType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDependencyType, s)
	}
	return t, nil
}

// =============================================================================
// DETAIL VALUES
// =============================================================================

// DetailKind tags the scalar held by a DetailValue.
type DetailKind int

const (
	// DetailString holds a string.
	DetailString DetailKind = iota + 1

	// DetailNumber holds a float64.
	DetailNumber

	// DetailBool holds a bool.
	DetailBool
)

// DetailValue is a string, number or boolean attached to a dependency.
//
// The zero value is not a valid detail; build values with StringDetail,
// NumberDetail or BoolDetail.
type DetailValue struct {
	kind DetailKind
	str  string
	num  float64
	bit  bool
}

// StringDetail wraps a string.
func StringDetail(s string) DetailValue {
	return DetailValue{kind: DetailString, str: s}
}

// NumberDetail wraps a number.
func NumberDetail(n float64) DetailValue {
	return DetailValue{kind: DetailNumber, num: n}
}

// BoolDetail wraps a boolean.
func BoolDetail(b bool) DetailValue {
	return DetailValue{kind: DetailBool, bit: b}
}

// Kind returns the tag of the held scalar.
func (v DetailValue) Kind() DetailKind {
	return v.kind
}

// Str returns the string and whether the value holds one.
func (v DetailValue) Str() (string, bool) {
	return v.str, v.kind == DetailString
}

// Number returns the number and whether the value holds one.
func (v DetailValue) Number() (float64, bool) {
	return v.num, v.kind == DetailNumber
}

// Bool returns the boolean and whether the value holds one.
func (v DetailValue) Bool() (bool, bool) {
	return v.bit, v.kind == DetailBool
}

// String renders the value for logs and search.
func (v DetailValue) String() string {
	switch v.kind {
	case DetailString:
		return v.str
	case DetailNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case DetailBool:
		return strconv.FormatBool(v.bit)
	default:
		return ""
	}
}

// MarshalJSON encodes the bare scalar.
func (v DetailValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case DetailString:
		return json.Marshal(v.str)
	case DetailNumber:
		return json.Marshal(v.num)
	case DetailBool:
		return json.Marshal(v.bit)
	default:
		return nil, ErrInvalidDetail
	}
}

// UnmarshalJSON accepts a JSON string, number or boolean.
func (v *DetailValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ErrInvalidDetail
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringDetail(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = BoolDetail(b)
	case '{', '[', 'n':
		return fmt.Errorf("%w: got %s", ErrInvalidDetail, string(data))
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDetail, err)
		}
		*v = NumberDetail(n)
	}
	return nil
}

// Details maps detail names (e.g. "class_name") to scalar values.
type Details map[string]DetailValue

// Clone returns an independent copy. A nil receiver yields an empty map.
func (d Details) Clone() Details {
	out := make(Details, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
