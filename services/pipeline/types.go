// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline drives a booklet evaluation job through a phase
// state machine: Validate -> Extract -> Consolidate -> Analyze ->
// Persist, with conditional routing to an error-recovery phase that
// always terminates the job with a usable summary.
//
// # Description
//
// The Orchestrator is the only component with mutable cross-phase
// state. External collaborators (recognition oracle, per-question
// scorer, persistence sink) are injected as interfaces; their lifecycle
// belongs to the caller. One job is one cooperative task: oracle calls
// are serialized and the only suspension points are oracle and sink
// calls. Multiple jobs may run concurrently as long as they do not
// share a WorkflowState.
package pipeline

import (
	"context"
	"time"

	"github.com/gradewell/gradewell/services/booklet"
)

// Oracle turns one scanned page into structured observations. One call
// per page; a failure is a page-level problem, not a job-level one.
// Implementations own their rate limiting.
type Oracle interface {
	AnalyzePage(ctx context.Context, documentID string, page int) (*booklet.PageObservation, error)
}

// Scorer evaluates one consolidated answer. A failure is isolated to
// that question.
type Scorer interface {
	Score(ctx context.Context, answer booklet.ConsolidatedAnswer) (*EvaluationResult, error)
}

// Sink persists the final job summary. Called once per job in the
// happy path and once more on the fallback path.
type Sink interface {
	Save(ctx context.Context, summary *JobSummary) error
}

// EvaluationResult is one question's score, written exactly once by the
// analyzing phase.
type EvaluationResult struct {
	QuestionNumber int           `json:"question_number"`
	Score          float64       `json:"current_score"`
	MaxScore       float64       `json:"max_score"`
	Feedback       string        `json:"feedback"`
	ProcessingTime time.Duration `json:"processing_time"`

	// Failed marks a zero-score placeholder written when the scorer
	// call for this question did not succeed. Placeholders contribute
	// (0, 0) to the totals and are excluded from QuestionsEvaluated.
	Failed bool `json:"failed,omitempty"`
}

// JobSummary is the final result handed to the caller. The caller
// always receives one: success=false with populated Errors communicates
// a degraded result, never a panic or a missing value.
type JobSummary struct {
	JobID      string `json:"job_id"`
	DocumentID string `json:"document_id"`
	Success    bool   `json:"success"`

	TotalScore float64 `json:"total_score"`
	TotalMax   float64 `json:"total_max"`

	QuestionsFound     int `json:"questions_found"`
	QuestionsEvaluated int `json:"questions_evaluated"`
	OrphanFragments    int `json:"orphan_fragments"`

	Results  []EvaluationResult `json:"results"`
	Warnings []string           `json:"warnings"`
	Errors   []string           `json:"errors"`

	// Fallback is true when the summary was produced by the error
	// recovery phase rather than a full evaluation.
	Fallback bool `json:"fallback,omitempty"`

	Duration time.Duration `json:"duration"`
}
