// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"sync"
	"time"

	"github.com/gradewell/gradewell/services/booklet"

	"github.com/google/uuid"
)

// WorkflowState is the single mutable record of one job. It is owned by
// the Orchestrator; phase nodes mutate it only between phase boundaries,
// so an abandoned job always leaves it consistent and inspectable.
//
// Thread Safety:
//
//	All exported methods are safe for concurrent use, which lets an
//	embedding service snapshot a running job for status endpoints.
type WorkflowState struct {
	mu sync.RWMutex

	JobID      string
	DocumentID string
	PageCount  int
	StartedAt  int64 // Unix milliseconds UTC

	Phase        Phase
	Observations []booklet.PageObservation
	Answers      []booklet.ConsolidatedAnswer
	Assembly     *booklet.AssemblyReport
	Results      []EvaluationResult

	Warnings []string
	Errors   []string
	Events   []ProgressEvent
}

// NewWorkflowState creates the state record for one document job.
func NewWorkflowState(documentID string, pageCount int) *WorkflowState {
	return &WorkflowState{
		JobID:      uuid.NewString()[:12],
		DocumentID: documentID,
		PageCount:  pageCount,
		StartedAt:  time.Now().UnixMilli(),
		Phase:      PhaseInitializing,
	}
}

// SetPhase records a phase transition.
func (s *WorkflowState) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Phase = p
}

// CurrentPhase returns the phase at the time of the call.
func (s *WorkflowState) CurrentPhase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Phase
}

// AddWarning appends a non-fatal finding.
func (s *WorkflowState) AddWarning(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Warnings = append(s.Warnings, msg)
}

// AddError appends a job-level error. Errors do not abort the job; they
// are carried into the summary.
func (s *WorkflowState) AddError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors = append(s.Errors, msg)
}

// AddEvent appends to the progress event log.
func (s *WorkflowState) AddEvent(ev ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
}

// AddObservation records one page's oracle output.
func (s *WorkflowState) AddObservation(obs booklet.PageObservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Observations = append(s.Observations, obs)
}

// AddResult records one question's evaluation.
func (s *WorkflowState) AddResult(res EvaluationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Results = append(s.Results, res)
}

// SetAnswers stores the consolidation output in one step, keeping the
// no-partial-mutation guarantee at the phase boundary.
func (s *WorkflowState) SetAnswers(answers []booklet.ConsolidatedAnswer, report *booklet.AssemblyReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Answers = answers
	s.Assembly = report
}

// Snapshot returns a point-in-time copy safe to hand to another
// goroutine (status endpoints, checkpointing).
func (s *WorkflowState) Snapshot() WorkflowState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := WorkflowState{
		JobID:      s.JobID,
		DocumentID: s.DocumentID,
		PageCount:  s.PageCount,
		StartedAt:  s.StartedAt,
		Phase:      s.Phase,
		Assembly:   s.Assembly,
	}
	cp.Observations = append(cp.Observations, s.Observations...)
	cp.Answers = append(cp.Answers, s.Answers...)
	cp.Results = append(cp.Results, s.Results...)
	cp.Warnings = append(cp.Warnings, s.Warnings...)
	cp.Errors = append(cp.Errors, s.Errors...)
	cp.Events = append(cp.Events, s.Events...)
	return cp
}
