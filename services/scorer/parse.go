// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scorer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gradewell/gradewell/services/booklet"
	"github.com/gradewell/gradewell/services/pipeline"
)

// scoreResponse is the examiner model's wire format. Score fields
// arrive as numbers or as strings like "12/15" depending on the model's
// mood, so both are raw here and decoded tolerantly.
type scoreResponse struct {
	Score    json.RawMessage `json:"score"`
	MaxScore json.RawMessage `json:"max_score"`
	Feedback string          `json:"feedback"`
}

// ParseResult decodes an examiner reply into an EvaluationResult. The
// max score falls back to the question's mark allocation when the model
// omitted it, and the score is clamped to [0, max].
func ParseResult(raw string, question booklet.QuestionMarker) (*pipeline.EvaluationResult, error) {
	body := booklet.StripFence(raw)

	var resp scoreResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("parse score response: %w", err)
	}

	score, scoreOK := decodeScore(resp.Score)
	if !scoreOK {
		return nil, fmt.Errorf("score response has no usable score: %q", string(resp.Score))
	}

	maxScore, maxOK := decodeScore(resp.MaxScore)
	if !maxOK || maxScore <= 0 {
		maxScore = float64(question.Marks)
	}
	if maxScore > 0 {
		if score > maxScore {
			score = maxScore
		}
	}
	if score < 0 {
		score = 0
	}

	feedback := strings.TrimSpace(resp.Feedback)
	if feedback == "" {
		feedback = "No detailed feedback provided."
	}

	return &pipeline.EvaluationResult{
		QuestionNumber: question.Number,
		Score:          score,
		MaxScore:       maxScore,
		Feedback:       feedback,
	}, nil
}

// decodeScore accepts a JSON number, a numeric string, or a "12/15"
// style fraction (the numerator wins).
func decodeScore(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "/"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
