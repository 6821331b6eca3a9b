// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package exemplar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"
)

func TestParseMatches(t *testing.T) {
	data := map[string]models.JSONObject{
		"Get": map[string]any{
			ClassName: []any{
				map[string]any{
					"question_number": float64(2),
					"question_text":   "Explain judicial review.",
					"answer_text":     "Courts review legislation.",
					"score":           float64(12),
					"max_score":       float64(15),
					"source":          "2023-mains",
					"_additional":     map[string]any{"certainty": 0.91},
				},
			},
		},
	}

	matches, err := parseMatches(data)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, 2, m.QuestionNumber)
	assert.Equal(t, 12.0, m.Score)
	assert.Equal(t, 15.0, m.MaxScore)
	assert.Equal(t, "2023-mains", m.Source)
	assert.InDelta(t, 0.91, m.Certainty, 1e-9)
}

func TestParseMatchesEmptyResult(t *testing.T) {
	matches, err := parseMatches(map[string]models.JSONObject{
		"Get": map[string]any{},
	})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestParseMatchesBadShape(t *testing.T) {
	_, err := parseMatches(map[string]models.JSONObject{"Got": "nope"})
	assert.Error(t, err)
}

func TestSchema(t *testing.T) {
	class := Schema()
	assert.Equal(t, ClassName, class.Class)

	names := map[string]bool{}
	for _, p := range class.Properties {
		names[p.Name] = true
	}
	for _, want := range []string{"question_text", "answer_text", "question_number", "score", "max_score", "source"} {
		assert.True(t, names[want], "missing property %s", want)
	}
}
