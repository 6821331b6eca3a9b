// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package booklet reconstructs a globally consistent document structure
// from noisy, page-local recognition output.
//
// # Description
//
// A scanned answer booklet is analyzed one page at a time by an external
// recognition oracle. Each page yields zero or more question markers and
// zero or more answer fragments, with partial metadata and no global
// ordering guarantees. This package turns that into one consolidated
// answer per question:
//
//	PageObservation -> Registry -> Linker -> Consolidator -> ConsolidatedAnswer
//
// The Registry deduplicates question markers across pages. The Linker
// attributes every fragment to exactly one question via an ordered
// strategy cascade, producing an orphan bucket for fragments it cannot
// place. The Consolidator merges a question's fragments in page order
// into a single answer text.
//
// # Determinism
//
// Everything in this package is pure, synchronous CPU work. Given the
// same ordered sequence of PageObservations, every stage produces
// identical output on every run. There is no clock, randomness, or I/O.
package booklet

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Confidence is the oracle's self-reported certainty about a marker or
// fragment. The zero value is ConfidenceLow.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

// String returns the wire form used by the oracle ("low", "medium", "high").
func (c Confidence) String() string {
	switch c {
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	default:
		return "low"
	}
}

// MarshalJSON encodes the confidence in its wire form.
func (c Confidence) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts the oracle's wire form. Unknown or empty values
// decode as ConfidenceLow rather than failing; the oracle is noisy and a
// missing confidence tag must not reject the whole page.
func (c *Confidence) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("confidence: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		*c = ConfidenceHigh
	case "medium", "moderate":
		*c = ConfidenceMedium
	default:
		*c = ConfidenceLow
	}
	return nil
}

// QuestionMarker is a question heading observed on a page.
//
// A question number is globally unique within a document; the Registry
// keeps the first observation and ignores later duplicates. Marks and
// WordLimit are 0 when the oracle did not read them.
type QuestionMarker struct {
	Number     int        `json:"number"`
	Text       string     `json:"text"`
	Marks      int        `json:"marks,omitempty"`
	WordLimit  int        `json:"word_limit,omitempty"`
	Confidence Confidence `json:"confidence"`
	SourcePage int        `json:"source_page"`
}

// AnswerFragment is a page-local piece of answer text.
//
// LinkedQuestion is 0 when the oracle saw no explicit question number on
// the fragment; such fragments are continuation candidates for the
// Linker. ExplicitLink records whether the oracle itself printed the
// number (as opposed to a hint it inferred), which the Linker treats as
// authoritative.
type AnswerFragment struct {
	LinkedQuestion int        `json:"linked_question,omitempty"`
	Text           string     `json:"text"`
	SourcePage     int        `json:"source_page"`
	Confidence     Confidence `json:"confidence"`
	VisualElements []string   `json:"visual_elements,omitempty"`
	Handwriting    string     `json:"handwriting,omitempty"`
	ExplicitLink   bool       `json:"is_explicit_link"`
}

// PageObservation is the immutable per-page result contract consumed
// from the recognition oracle. Observations are processed in ascending
// PageNumber order.
type PageObservation struct {
	PageNumber int              `json:"page_number"`
	Questions  []QuestionMarker `json:"questions"`
	Fragments  []AnswerFragment `json:"fragments"`
}

// LinkedFragment is an AnswerFragment after attribution. Strategy names
// the cascade rule that placed it, kept for diagnostics.
type LinkedFragment struct {
	AnswerFragment
	Question     int    `json:"question"`
	Continuation bool   `json:"is_continuation"`
	Strategy     string `json:"strategy"`
}

// QuestionRecord owns one QuestionMarker plus the ordered fragments
// ultimately attributed to it. Records are mutated only by the Linker
// during consolidation and are immutable thereafter.
type QuestionRecord struct {
	Marker    QuestionMarker   `json:"marker"`
	Fragments []LinkedFragment `json:"fragments,omitempty"`
}

// ConsolidatedAnswer is the Consolidator's output for one question:
// a single answer text with continuation markers, ready for scoring.
type ConsolidatedAnswer struct {
	Question       QuestionMarker `json:"question"`
	Text           string         `json:"text"`
	Pages          []int          `json:"pages"`
	ExpectedPages  int            `json:"expected_pages"`
	VisualElements []string       `json:"visual_elements,omitempty"`
	Handwriting    string         `json:"handwriting,omitempty"`
}

// HasContent reports whether the consolidated text is non-empty once
// whitespace is stripped. Questions with no linkable answer are skipped
// by the scoring phase.
func (a ConsolidatedAnswer) HasContent() bool {
	return strings.TrimSpace(a.Text) != ""
}
