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

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalResult_RoundTrip(t *testing.T) {
	original := fixtureResult(t)
	original.Files = append(original.Files, NewFailedFileAnalysis("/repo/broken.php", "broken.php", "Parser timeout (30 seconds exceeded)"))
	original.Files[0].Dependencies[0].Details["weight"] = NumberDetail(2.5)
	original.Files[0].Dependencies[0].Details["dynamic"] = BoolDetail(true)

	data, err := MarshalResult(original)
	require.NoError(t, err)

	decoded, err := UnmarshalResult(data)
	require.NoError(t, err)

	assert.Equal(t, original.Metadata, decoded.Metadata)
	require.Len(t, decoded.Files, len(original.Files))
	for i := range original.Files {
		assert.Equal(t, original.Files[i], decoded.Files[i], "file %d", i)
	}
}

func TestMarshalResult_DocumentShape(t *testing.T) {
	data, err := MarshalResult(fixtureResult(t))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	meta, ok := raw["analysis_metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), meta["files_with_dependencies"])
	assert.Equal(t, float64(7), meta["total_dependencies_found"])

	files, ok := raw["files"].([]any)
	require.True(t, ok)
	first := files[0].(map[string]any)
	assert.Equal(t, float64(5), first["total_dependencies"])
	assert.Nil(t, first["error"])
	assert.Contains(t, first, "error")
}

func TestUnmarshalResult_Defaults(t *testing.T) {
	doc := `{
		"files": [
			{"file_path": "/abs/only.php", "dependencies": [
				{"type": "use_statement", "line": 3, "context": "use App\\Branch;"}
			]}
		]
	}`

	r, err := UnmarshalResult([]byte(doc))
	require.NoError(t, err)
	require.Len(t, r.Files, 1)
	assert.Equal(t, "/abs/only.php", r.Files[0].RelativePath)
	assert.Equal(t, DependencyUseStatement, r.Files[0].Dependencies[0].Type)
	assert.NotNil(t, r.Files[0].Dependencies[0].Details)
	assert.Equal(t, "", r.Metadata.Timestamp)
	assert.Equal(t, []string{}, r.Metadata.AnalyzedFolders)
}

func TestUnmarshalResult_BadShapes(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "not json", doc: `{"files": [`},
		{name: "unknown type", doc: `{"files": [{"file_path": "a", "dependencies": [{"type": "nope", "line": 1, "context": "x"}]}]}`},
		{name: "missing line", doc: `{"files": [{"file_path": "a", "dependencies": [{"type": "instanceof", "context": "x"}]}]}`},
		{name: "negative line", doc: `{"files": [{"file_path": "a", "dependencies": [{"type": "instanceof", "line": -2, "context": "x"}]}]}`},
		{name: "missing file path", doc: `{"files": [{"relative_path": "a"}]}`},
		{name: "nested detail", doc: `{"files": [{"file_path": "a", "dependencies": [{"type": "instanceof", "line": 1, "context": "x", "details": {"k": {"a": 1}}}]}]}`},
		{name: "negative time", doc: `{"files": [], "analysis_metadata": {"analysis_time_seconds": -1}}`},
		{name: "files not array", doc: `{"files": {}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalResult([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestUnmarshalResult_ErrorRecordWithDependencies(t *testing.T) {
	doc := `{"files": [{"file_path": "a.php", "error": "PHP syntax error near line 3",
		"dependencies": [{"type": "instanceof", "line": 1, "context": "x"}]}]}`
	_, err := UnmarshalResult([]byte(doc))
	assert.ErrorIs(t, err, ErrMalformedDocument)

	ok := `{"files": [{"file_path": "a.php", "error": "PHP syntax error near line 3", "dependencies": []}]}`
	r, err := UnmarshalResult([]byte(ok))
	require.NoError(t, err)
	require.Len(t, r.Files, 1)
	assert.True(t, r.Files[0].Failed())
}

func TestTypedDependency_MarshalJSON(t *testing.T) {
	d := mustDep(t, DependencyStaticCall, 7, "Branch::all()")
	data, err := json.Marshal(TypedDependency{Dependency: d, File: "lib/x.php"})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "static_call", raw["type"])
	assert.Equal(t, float64(7), raw["line"])
	assert.Equal(t, "lib/x.php", raw["file"])
	assert.Equal(t, map[string]any{"class_name": "Branch"}, raw["details"])
}

func TestDetailValue_JSON(t *testing.T) {
	var v DetailValue
	require.NoError(t, json.Unmarshal([]byte(`"Branch"`), &v))
	s, ok := v.Str()
	assert.True(t, ok)
	assert.Equal(t, "Branch", s)

	require.NoError(t, json.Unmarshal([]byte(`42`), &v))
	n, ok := v.Number()
	assert.True(t, ok)
	assert.Equal(t, 42.0, n)

	require.NoError(t, json.Unmarshal([]byte(`false`), &v))
	b, ok := v.Bool()
	assert.True(t, ok)
	assert.False(t, b)

	assert.ErrorIs(t, json.Unmarshal([]byte(`null`), &v), ErrInvalidDetail)
	assert.ErrorIs(t, json.Unmarshal([]byte(`[1]`), &v), ErrInvalidDetail)

	_, err := json.Marshal(DetailValue{})
	assert.Error(t, err)
}
