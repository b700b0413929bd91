// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package domain

import "errors"

// Sentinel errors for domain construction and derived views.
var (
	// ErrUnknownDependencyType indicates a tag outside the closed set.
	ErrUnknownDependencyType = errors.New("unknown dependency type")

	// ErrInvalidDependency indicates a negative line or empty context.
	ErrInvalidDependency = errors.New("invalid dependency")

	// ErrInvalidFileAnalysis indicates an empty file or relative path.
	ErrInvalidFileAnalysis = errors.New("invalid file analysis")

	// ErrInvalidMetadata indicates negative timing or file counts.
	ErrInvalidMetadata = errors.New("invalid analysis metadata")

	// ErrInvalidLimit indicates a non-positive hotspot limit.
	ErrInvalidLimit = errors.New("limit must be positive")

	// ErrInvalidDetail indicates a detail value that is not a string, number or bool.
	ErrInvalidDetail = errors.New("detail value must be a string, number or bool")

	// ErrMalformedDocument indicates JSON that cannot be mapped to the model.
	ErrMalformedDocument = errors.New("malformed analysis document")
)
