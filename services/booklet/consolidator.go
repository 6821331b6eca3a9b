// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package booklet

import (
	"fmt"
	"sort"
	"strings"
)

// Consolidator merges the linked fragments of each question into a
// single reading-order answer. It never rewrites fragment text: the
// merged answer is the fragments joined with explicit page-continuation
// markers, so a reviewer can always trace a passage back to its page.
type Consolidator struct{}

// NewConsolidator returns a Consolidator.
func NewConsolidator() *Consolidator {
	return &Consolidator{}
}

// ConsolidationReport carries non-fatal findings from a consolidation
// pass, such as answers that spilled past their predicted page span.
type ConsolidationReport struct {
	Warnings []string
}

// Consolidate merges every question record in the registry into a
// ConsolidatedAnswer, returned in ascending question order. Questions
// with no fragments still produce an answer (with empty text) so the
// caller can count them as found-but-unanswered.
func (c *Consolidator) Consolidate(reg *Registry) ([]ConsolidatedAnswer, *ConsolidationReport) {
	report := &ConsolidationReport{}
	records := reg.All()
	answers := make([]ConsolidatedAnswer, 0, len(records))
	for _, rec := range records {
		answers = append(answers, c.consolidateRecord(rec, report))
	}
	return answers, report
}

func (c *Consolidator) consolidateRecord(rec *QuestionRecord, report *ConsolidationReport) ConsolidatedAnswer {
	ans := ConsolidatedAnswer{
		Question:      rec.Marker,
		ExpectedPages: ExpectedPages(rec.Marker.Marks),
	}

	// Stable sort by page: fragments on the same page keep their
	// observation order, which is the order the oracle read them.
	frags := make([]LinkedFragment, len(rec.Fragments))
	copy(frags, rec.Fragments)
	sort.SliceStable(frags, func(i, j int) bool {
		return frags[i].SourcePage < frags[j].SourcePage
	})

	var b strings.Builder
	seenPages := map[int]bool{}
	seenVisuals := map[string]bool{}
	for _, f := range frags {
		text := strings.TrimSpace(f.Text)
		if text != "" {
			switch {
			case b.Len() == 0:
				b.WriteString(text)
			case f.Continuation:
				fmt.Fprintf(&b, "\n\n[continued on page %d]\n%s", f.SourcePage, text)
			default:
				b.WriteString("\n\n")
				b.WriteString(text)
			}
		}

		if !seenPages[f.SourcePage] {
			seenPages[f.SourcePage] = true
			ans.Pages = append(ans.Pages, f.SourcePage)
		}
		for _, v := range f.VisualElements {
			if !seenVisuals[v] {
				seenVisuals[v] = true
				ans.VisualElements = append(ans.VisualElements, v)
			}
		}
		if ans.Handwriting == "" && f.Handwriting != "" {
			ans.Handwriting = f.Handwriting
		}
	}
	sort.Ints(ans.Pages)
	ans.Text = b.String()

	// Span mismatch is informational only; answers legitimately run
	// short or long.
	if len(ans.Pages) > 0 && len(ans.Pages) != ans.ExpectedPages {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("question %d: answer spans %d page(s), expected %d for %d marks",
				ans.Question.Number, len(ans.Pages), ans.ExpectedPages, rec.Marker.Marks))
	}
	return ans
}
