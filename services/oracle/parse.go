// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gradewell/gradewell/services/booklet"
)

// pageResponse is the model's wire format for one page.
type pageResponse struct {
	Questions []questionObservation `json:"questions_found"`
	Answers   []answerObservation   `json:"answers_found"`
}

type questionObservation struct {
	Number     int                `json:"question_number"`
	Text       string             `json:"question_text"`
	Marks      json.RawMessage    `json:"marks"`
	WordLimit  int                `json:"word_limit"`
	Confidence booklet.Confidence `json:"confidence"`
}

type answerObservation struct {
	// QuestionNumber is a pointer because null is meaningful: the
	// student wrote no number next to this answer.
	QuestionNumber *int               `json:"question_number"`
	Text           string             `json:"answer_text"`
	Confidence     booklet.Confidence `json:"confidence"`
	VisualElements []string           `json:"visual_elements"`
	Handwriting    string             `json:"handwriting_quality"`
	ExplicitLink   bool               `json:"is_explicit_link"`
}

// ParseObservation turns a model reply into a PageObservation. The
// reply may be wrapped in a markdown code fence; marks may arrive as a
// number or as free text like "10 marks".
func ParseObservation(raw string, page int) (*booklet.PageObservation, error) {
	body := booklet.StripFence(raw)

	var resp pageResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("parse page response: %w", err)
	}

	obs := &booklet.PageObservation{PageNumber: page}
	for _, q := range resp.Questions {
		obs.Questions = append(obs.Questions, booklet.QuestionMarker{
			Number:     q.Number,
			Text:       strings.TrimSpace(q.Text),
			Marks:      decodeMarks(q.Marks),
			WordLimit:  q.WordLimit,
			Confidence: q.Confidence,
			SourcePage: page,
		})
	}
	for _, a := range resp.Answers {
		frag := booklet.AnswerFragment{
			Text:           strings.TrimSpace(a.Text),
			SourcePage:     page,
			Confidence:     a.Confidence,
			VisualElements: a.VisualElements,
			Handwriting:    strings.TrimSpace(a.Handwriting),
			ExplicitLink:   a.ExplicitLink,
		}
		if a.QuestionNumber != nil {
			frag.LinkedQuestion = *a.QuestionNumber
		}
		obs.Fragments = append(obs.Fragments, frag)
	}
	return obs, nil
}

// decodeMarks accepts marks as a JSON number or as free text.
func decodeMarks(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return booklet.ParseMarks(s)
	}
	return 0
}
