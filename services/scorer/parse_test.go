// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scorer

import (
	"strings"
	"testing"

	"github.com/gradewell/gradewell/services/booklet"
)

var q15 = booklet.QuestionMarker{Number: 2, Text: "Explain judicial review.", Marks: 15}

func TestParseResult(t *testing.T) {
	raw := "```json\n" + `{"score": 11.5, "max_score": 15, "feedback": "Good coverage of precedent."}` + "\n```"

	res, err := ParseResult(raw, q15)
	if err != nil {
		t.Fatalf("ParseResult: %v", err)
	}
	if res.QuestionNumber != 2 || res.Score != 11.5 || res.MaxScore != 15 {
		t.Errorf("result = %+v", res)
	}
	if res.Feedback != "Good coverage of precedent." {
		t.Errorf("Feedback = %q", res.Feedback)
	}
}

func TestParseResultFractionString(t *testing.T) {
	res, err := ParseResult(`{"score": "12/15", "feedback": "ok"}`, q15)
	if err != nil {
		t.Fatalf("ParseResult: %v", err)
	}
	if res.Score != 12 {
		t.Errorf("Score = %v, want 12", res.Score)
	}
	// max_score omitted: the question's marks fill in.
	if res.MaxScore != 15 {
		t.Errorf("MaxScore = %v, want 15", res.MaxScore)
	}
}

func TestParseResultClampsScore(t *testing.T) {
	t.Run("above max", func(t *testing.T) {
		res, err := ParseResult(`{"score": 22, "max_score": 15, "feedback": "x"}`, q15)
		if err != nil {
			t.Fatalf("ParseResult: %v", err)
		}
		if res.Score != 15 {
			t.Errorf("Score = %v, want clamped 15", res.Score)
		}
	})
	t.Run("negative", func(t *testing.T) {
		res, err := ParseResult(`{"score": -3, "max_score": 15, "feedback": "x"}`, q15)
		if err != nil {
			t.Fatalf("ParseResult: %v", err)
		}
		if res.Score != 0 {
			t.Errorf("Score = %v, want 0", res.Score)
		}
	})
}

func TestParseResultMissingScore(t *testing.T) {
	if _, err := ParseResult(`{"feedback": "nice try"}`, q15); err == nil {
		t.Error("expected an error when the score is missing")
	}
}

func TestParseResultEmptyFeedback(t *testing.T) {
	res, err := ParseResult(`{"score": 10, "max_score": 15}`, q15)
	if err != nil {
		t.Fatalf("ParseResult: %v", err)
	}
	if res.Feedback == "" {
		t.Error("empty feedback must be replaced with a placeholder")
	}
}

func TestBuildPrompt(t *testing.T) {
	ans := booklet.ConsolidatedAnswer{
		Question:       booklet.QuestionMarker{Number: 1, Text: "Discuss federal structure.", Marks: 10, WordLimit: 150},
		Text:           "Federalism divides power.",
		Pages:          []int{1, 2},
		VisualElements: []string{"diagram"},
		Handwriting:    "legible",
	}

	prompt := buildPrompt(ans)
	for _, want := range []string{
		"Question 1: Discuss federal structure.",
		"Maximum marks: 10",
		"Word limit: 150",
		"diagram",
		"legible",
		"spanning 2 page(s)",
		"Federalism divides power.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
