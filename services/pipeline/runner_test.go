// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/gradewell/gradewell/services/booklet"
)

type fakeOracle struct {
	fn func(page int) (*booklet.PageObservation, error)
}

func (f fakeOracle) AnalyzePage(_ context.Context, _ string, page int) (*booklet.PageObservation, error) {
	return f.fn(page)
}

type fakeScorer struct {
	fn func(ans booklet.ConsolidatedAnswer) (*EvaluationResult, error)
}

func (f fakeScorer) Score(_ context.Context, ans booklet.ConsolidatedAnswer) (*EvaluationResult, error) {
	return f.fn(ans)
}

type fakeSink struct {
	saved []*JobSummary
	err   error
}

func (f *fakeSink) Save(_ context.Context, summary *JobSummary) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, summary)
	return nil
}

// threePageBooklet is the canonical happy-path document: Q1 (10 marks)
// answered on pages 1-2, Q2 (15 marks) answered on page 3.
func threePageBooklet(page int) (*booklet.PageObservation, error) {
	switch page {
	case 1:
		return &booklet.PageObservation{
			PageNumber: 1,
			Questions:  []booklet.QuestionMarker{{Number: 1, Text: "Discuss federal structure.", Marks: 10, SourcePage: 1}},
			Fragments:  []booklet.AnswerFragment{{LinkedQuestion: 1, Text: "Federalism divides power.", SourcePage: 1, ExplicitLink: true}},
		}, nil
	case 2:
		return &booklet.PageObservation{
			PageNumber: 2,
			Fragments:  []booklet.AnswerFragment{{Text: "It continues with examples.", SourcePage: 2}},
		}, nil
	case 3:
		return &booklet.PageObservation{
			PageNumber: 3,
			Questions:  []booklet.QuestionMarker{{Number: 2, Text: "Explain judicial review.", Marks: 15, SourcePage: 3}},
			Fragments:  []booklet.AnswerFragment{{LinkedQuestion: 2, Text: "Courts review legislation.", SourcePage: 3, ExplicitLink: true}},
		}, nil
	}
	return nil, fmt.Errorf("no such page %d", page)
}

func fullMarksScorer(ans booklet.ConsolidatedAnswer) (*EvaluationResult, error) {
	max := float64(ans.Question.Marks)
	return &EvaluationResult{Score: max, MaxScore: max, Feedback: "complete answer"}, nil
}

func newTestOrchestrator(t *testing.T, oracle Oracle, scorer Scorer, sink Sink) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(oracle, scorer, sink)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return o
}

func TestRunHappyPath(t *testing.T) {
	sink := &fakeSink{}
	o := newTestOrchestrator(t, fakeOracle{threePageBooklet}, fakeScorer{fullMarksScorer}, sink)

	summary, err := o.Run(context.Background(), "doc-1", 3, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Success {
		t.Errorf("Success = false, errors: %v", summary.Errors)
	}
	if summary.QuestionsFound != 2 || summary.QuestionsEvaluated != 2 {
		t.Errorf("found=%d evaluated=%d, want 2 and 2", summary.QuestionsFound, summary.QuestionsEvaluated)
	}
	if summary.TotalScore != 25 || summary.TotalMax != 25 {
		t.Errorf("totals = %v/%v, want 25/25", summary.TotalScore, summary.TotalMax)
	}
	if summary.OrphanFragments != 0 {
		t.Errorf("OrphanFragments = %d, want 0", summary.OrphanFragments)
	}
	if len(sink.saved) != 1 {
		t.Errorf("sink saved %d summaries, want 1", len(sink.saved))
	}
	// Q2 has a 15-mark answer on a single page: one span warning.
	if len(summary.Warnings) != 1 || !strings.Contains(summary.Warnings[0], "question 2") {
		t.Errorf("warnings = %v, want one span warning for question 2", summary.Warnings)
	}
}

func TestRunProgressIsMonotonicAndReaches100(t *testing.T) {
	reporter := NewReporter(nil)
	done := make(chan []ProgressEvent)
	go func() {
		var events []ProgressEvent
		for ev := range reporter.Events() {
			events = append(events, ev)
		}
		done <- events
	}()

	o := newTestOrchestrator(t, fakeOracle{threePageBooklet}, fakeScorer{fullMarksScorer}, &fakeSink{})
	if _, err := o.Run(context.Background(), "doc-1", 3, reporter); err != nil {
		t.Fatalf("Run: %v", err)
	}

	events := <-done
	if len(events) == 0 {
		t.Fatal("no progress events")
	}
	last := -1
	for _, ev := range events {
		if ev.Percent < last {
			t.Errorf("progress regressed: %d after %d (phase %s)", ev.Percent, last, ev.Phase)
		}
		last = ev.Percent
	}
	if last != 100 {
		t.Errorf("final percent = %d, want 100", last)
	}
}

func TestRunOracleFailsOnePage(t *testing.T) {
	oracle := fakeOracle{func(page int) (*booklet.PageObservation, error) {
		if page == 2 {
			return nil, errors.New("vision backend unavailable")
		}
		return threePageBooklet(page)
	}}

	o := newTestOrchestrator(t, oracle, fakeScorer{fullMarksScorer}, &fakeSink{})
	summary, err := o.Run(context.Background(), "doc-1", 3, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !summary.Success {
		t.Errorf("one bad page must not fail the job: %v", summary.Errors)
	}
	if summary.QuestionsEvaluated == 0 {
		t.Error("no questions evaluated despite two readable pages")
	}
	found := false
	for _, w := range summary.Warnings {
		if strings.Contains(w, "page 2") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings %v missing the page 2 failure", summary.Warnings)
	}
}

func TestRunAllPagesFail(t *testing.T) {
	oracle := fakeOracle{func(int) (*booklet.PageObservation, error) {
		return nil, errors.New("scanner offline")
	}}

	o := newTestOrchestrator(t, oracle, fakeScorer{fullMarksScorer}, &fakeSink{})
	summary, err := o.Run(context.Background(), "doc-1", 3, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Success || !summary.Fallback {
		t.Errorf("success=%v fallback=%v, want degraded fallback summary", summary.Success, summary.Fallback)
	}
	if len(summary.Errors) == 0 {
		t.Error("fallback summary has no errors")
	}
}

func TestRunAllScorersFail(t *testing.T) {
	scorer := fakeScorer{func(booklet.ConsolidatedAnswer) (*EvaluationResult, error) {
		return nil, errors.New("model overloaded")
	}}
	sink := &fakeSink{}

	o := newTestOrchestrator(t, fakeOracle{threePageBooklet}, scorer, sink)
	summary, err := o.Run(context.Background(), "doc-1", 3, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Success {
		t.Error("Success = true with every scoring call failing")
	}
	if !summary.Fallback {
		t.Error("expected the fallback summary")
	}
	if summary.TotalScore != 0 || summary.TotalMax != 0 {
		t.Errorf("totals = %v/%v, want 0/0", summary.TotalScore, summary.TotalMax)
	}
	if summary.QuestionsFound != 2 || summary.QuestionsEvaluated != 0 {
		t.Errorf("found=%d evaluated=%d, want 2 and 0", summary.QuestionsFound, summary.QuestionsEvaluated)
	}
	if len(summary.Errors) == 0 {
		t.Error("fallback summary has no errors")
	}
	// Every found question still carries an explanatory placeholder.
	if len(summary.Results) != 2 {
		t.Errorf("results = %d, want 2 placeholders", len(summary.Results))
	}
	for _, res := range summary.Results {
		if !res.Failed || res.Feedback != FallbackFeedback {
			t.Errorf("placeholder = %+v", res)
		}
	}
	// Best-effort fallback persistence still happened.
	if len(sink.saved) != 1 {
		t.Errorf("sink saved %d summaries, want 1", len(sink.saved))
	}
}

func TestRunPartialScorerFailure(t *testing.T) {
	scorer := fakeScorer{func(ans booklet.ConsolidatedAnswer) (*EvaluationResult, error) {
		if ans.Question.Number == 2 {
			return nil, errors.New("model overloaded")
		}
		return fullMarksScorer(ans)
	}}

	o := newTestOrchestrator(t, fakeOracle{threePageBooklet}, scorer, &fakeSink{})
	summary, err := o.Run(context.Background(), "doc-1", 3, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !summary.Success {
		t.Errorf("one failed question must not fail the job: %v", summary.Errors)
	}
	if summary.QuestionsEvaluated != 1 {
		t.Errorf("QuestionsEvaluated = %d, want 1", summary.QuestionsEvaluated)
	}
	// The failed question contributes exactly (0, 0), not a missing entry.
	if len(summary.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(summary.Results))
	}
	if summary.TotalScore != 10 || summary.TotalMax != 10 {
		t.Errorf("totals = %v/%v, want 10/10", summary.TotalScore, summary.TotalMax)
	}
}

func TestRunUnreadableDocument(t *testing.T) {
	o := newTestOrchestrator(t, fakeOracle{threePageBooklet}, fakeScorer{fullMarksScorer}, &fakeSink{})

	for _, pages := range []int{0, -1} {
		summary, err := o.Run(context.Background(), "doc-1", pages, nil)
		if err != nil {
			t.Fatalf("Run(%d pages): %v", pages, err)
		}
		if summary == nil {
			t.Fatalf("Run(%d pages) returned nil summary", pages)
		}
		if summary.Success || len(summary.Errors) == 0 {
			t.Errorf("pages=%d: success=%v errors=%v", pages, summary.Success, summary.Errors)
		}
	}
}

func TestRunPersistenceFailureStillReturnsSummary(t *testing.T) {
	sink := &fakeSink{err: errors.New("disk full")}
	o := newTestOrchestrator(t, fakeOracle{threePageBooklet}, fakeScorer{fullMarksScorer}, sink)

	summary, err := o.Run(context.Background(), "doc-1", 3, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Success {
		t.Error("Success = true despite persistence failure")
	}
	// The in-memory results survive the failed save.
	if summary.TotalScore != 25 || summary.QuestionsEvaluated != 2 {
		t.Errorf("summary lost results: %+v", summary)
	}
	found := false
	for _, e := range summary.Errors {
		if strings.Contains(e, "persisting") {
			found = true
		}
	}
	if !found {
		t.Errorf("errors %v missing the persistence failure", summary.Errors)
	}
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newTestOrchestrator(t, fakeOracle{threePageBooklet}, fakeScorer{fullMarksScorer}, &fakeSink{})
	summary, err := o.Run(ctx, "doc-1", 3, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if summary == nil {
		t.Fatal("canceled run returned nil summary")
	}
	if summary.Success {
		t.Error("canceled run reported success")
	}
}

func TestNewOrchestratorValidation(t *testing.T) {
	if _, err := NewOrchestrator(nil, fakeScorer{fullMarksScorer}, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("nil oracle: err = %v", err)
	}
	if _, err := NewOrchestrator(fakeOracle{threePageBooklet}, nil, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("nil scorer: err = %v", err)
	}
}

func TestRunNilContext(t *testing.T) {
	o := newTestOrchestrator(t, fakeOracle{threePageBooklet}, fakeScorer{fullMarksScorer}, nil)
	//nolint:staticcheck // deliberately passing nil
	if _, err := o.Run(nil, "doc-1", 3, nil); !errors.Is(err, ErrNilContext) {
		t.Errorf("err = %v, want ErrNilContext", err)
	}
}
