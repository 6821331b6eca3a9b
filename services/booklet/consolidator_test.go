// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package booklet

import (
	"reflect"
	"strings"
	"testing"
)

func TestConsolidatorOrderAndContinuationMarkers(t *testing.T) {
	reg := NewRegistry()
	reg.Register(QuestionMarker{Number: 1, Marks: 15, SourcePage: 1})
	rec := reg.Record(1)
	// Deliberately appended out of page order; the consolidator sorts.
	rec.Fragments = []LinkedFragment{
		{AnswerFragment: AnswerFragment{Text: "part three", SourcePage: 3}, Question: 1, Continuation: true},
		{AnswerFragment: AnswerFragment{Text: "part one", SourcePage: 1}, Question: 1},
		{AnswerFragment: AnswerFragment{Text: "part two", SourcePage: 2}, Question: 1, Continuation: true},
	}

	answers, report := NewConsolidator().Consolidate(reg)
	if len(answers) != 1 {
		t.Fatalf("got %d answers, want 1", len(answers))
	}
	ans := answers[0]

	i1 := strings.Index(ans.Text, "part one")
	i2 := strings.Index(ans.Text, "part two")
	i3 := strings.Index(ans.Text, "part three")
	if i1 == -1 || i2 == -1 || i3 == -1 || !(i1 < i2 && i2 < i3) {
		t.Errorf("fragments out of page order:\n%s", ans.Text)
	}
	if !strings.Contains(ans.Text, "[continued on page 2]") ||
		!strings.Contains(ans.Text, "[continued on page 3]") {
		t.Errorf("missing continuation markers:\n%s", ans.Text)
	}
	if strings.Contains(ans.Text, "[continued on page 1]") {
		t.Errorf("first fragment must not carry a marker:\n%s", ans.Text)
	}
	if !reflect.DeepEqual(ans.Pages, []int{1, 2, 3}) {
		t.Errorf("Pages = %v, want [1 2 3]", ans.Pages)
	}
	// 15 marks predicts 3 pages and 3 were found.
	if len(report.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", report.Warnings)
	}
}

func TestConsolidatorStableWithinPage(t *testing.T) {
	reg := NewRegistry()
	reg.Register(QuestionMarker{Number: 1, SourcePage: 1})
	rec := reg.Record(1)
	rec.Fragments = []LinkedFragment{
		{AnswerFragment: AnswerFragment{Text: "alpha", SourcePage: 1}, Question: 1},
		{AnswerFragment: AnswerFragment{Text: "beta", SourcePage: 1}, Question: 1, Continuation: true},
	}

	answers, _ := NewConsolidator().Consolidate(reg)
	if i1, i2 := strings.Index(answers[0].Text, "alpha"), strings.Index(answers[0].Text, "beta"); i1 > i2 {
		t.Errorf("same-page fragments lost observation order:\n%s", answers[0].Text)
	}
}

func TestConsolidatorMetadataAggregation(t *testing.T) {
	reg := NewRegistry()
	reg.Register(QuestionMarker{Number: 1, Marks: 10, SourcePage: 1})
	rec := reg.Record(1)
	rec.Fragments = []LinkedFragment{
		{AnswerFragment: AnswerFragment{Text: "a", SourcePage: 1, VisualElements: []string{"diagram", "table"}, Handwriting: "legible"}, Question: 1},
		{AnswerFragment: AnswerFragment{Text: "b", SourcePage: 2, VisualElements: []string{"table", "map"}, Handwriting: "poor"}, Question: 1, Continuation: true},
	}

	answers, report := NewConsolidator().Consolidate(reg)
	ans := answers[0]

	if !reflect.DeepEqual(ans.VisualElements, []string{"diagram", "table", "map"}) {
		t.Errorf("VisualElements = %v, want union without duplicates", ans.VisualElements)
	}
	// First fragment's handwriting signal wins.
	if ans.Handwriting != "legible" {
		t.Errorf("Handwriting = %q, want %q", ans.Handwriting, "legible")
	}
	if ans.ExpectedPages != 2 || len(ans.Pages) != 2 {
		t.Errorf("expected=%d actual=%d, want 2 and 2", ans.ExpectedPages, len(ans.Pages))
	}
	if len(report.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", report.Warnings)
	}
}

func TestConsolidatorSpanMismatchWarning(t *testing.T) {
	reg := NewRegistry()
	reg.Register(QuestionMarker{Number: 2, Marks: 15, SourcePage: 3})
	rec := reg.Record(2)
	rec.Fragments = []LinkedFragment{
		{AnswerFragment: AnswerFragment{Text: "short answer", SourcePage: 3}, Question: 2},
	}

	answers, report := NewConsolidator().Consolidate(reg)
	if answers[0].ExpectedPages != 3 {
		t.Fatalf("ExpectedPages = %d, want 3", answers[0].ExpectedPages)
	}
	if len(report.Warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one span warning", report.Warnings)
	}
	if !strings.Contains(report.Warnings[0], "question 2") {
		t.Errorf("warning does not name the question: %q", report.Warnings[0])
	}
}

func TestConsolidatorEmptyRecord(t *testing.T) {
	reg := NewRegistry()
	reg.Register(QuestionMarker{Number: 3, Marks: 10, SourcePage: 2})

	answers, report := NewConsolidator().Consolidate(reg)
	if len(answers) != 1 {
		t.Fatalf("got %d answers, want 1", len(answers))
	}
	if answers[0].HasContent() {
		t.Error("answer with no fragments reports content")
	}
	// Unanswered questions are counted elsewhere; no span warning here.
	if len(report.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", report.Warnings)
	}
}
