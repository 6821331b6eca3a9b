// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gradewell/gradewell/services/booklet"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("gradewell.pipeline")
	meter  = otel.Meter("gradewell.pipeline")
)

// FallbackFeedback is the feedback text written by the error recovery
// phase when no real evaluation could be produced.
const FallbackFeedback = "Automated evaluation temporarily unavailable. Manual review recommended."

// Orchestrator drives one or more evaluation jobs through the phase
// state machine. External collaborators are injected and shared across
// jobs; per-job state lives in the WorkflowState created by Run.
//
// Thread Safety:
//
//	Safe for concurrent use. Jobs for different documents may run
//	concurrently on the same Orchestrator.
type Orchestrator struct {
	oracle        Oracle
	scorer        Scorer
	sink          Sink
	assembler     *booklet.Assembler
	logger        *slog.Logger
	checkpointDir string

	// Metrics (initialized lazily)
	metricsOnce   sync.Once
	jobLatency    metric.Float64Histogram
	phaseLatency  metric.Float64Histogram
	pageFailures  metric.Int64Counter
	scoreFailures metric.Int64Counter
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCheckpointDir enables checkpointing: the orchestrator snapshots
// the job state to <dir>/<jobID>.checkpoint.json at every phase
// boundary and removes the file once the job terminates, so anything
// left in the directory is an interrupted run that Resume can pick up.
// The directory must exist. A failed checkpoint write is logged and
// never fails the job.
func WithCheckpointDir(dir string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.checkpointDir = dir
	}
}

// WithAssembler overrides the default answer assembler, letting callers
// tune the linking cascade.
func WithAssembler(a *booklet.Assembler) OrchestratorOption {
	return func(o *Orchestrator) {
		if a != nil {
			o.assembler = a
		}
	}
}

// NewOrchestrator creates an Orchestrator.
//
// Inputs:
//
//	oracle - Page recognition collaborator. Must not be nil.
//	scorer - Per-question scoring collaborator. Must not be nil.
//	sink - Persistence collaborator. May be nil; persistence is then
//	       skipped with a warning (the caller still gets the summary).
//
// Outputs:
//
//	*Orchestrator - The configured orchestrator.
//	error - Non-nil if a required collaborator is missing.
func NewOrchestrator(oracle Oracle, scorer Scorer, sink Sink, opts ...OrchestratorOption) (*Orchestrator, error) {
	if oracle == nil {
		return nil, fmt.Errorf("%w: oracle must not be nil", ErrInvalidInput)
	}
	if scorer == nil {
		return nil, fmt.Errorf("%w: scorer must not be nil", ErrInvalidInput)
	}

	o := &Orchestrator{
		oracle:    oracle,
		scorer:    scorer,
		sink:      sink,
		assembler: booklet.NewAssembler(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// initMetrics lazily initializes metrics, degrading gracefully when the
// meter provider rejects an instrument.
func (o *Orchestrator) initMetrics() {
	o.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		o.jobLatency, err = meter.Float64Histogram("pipeline_job_duration_seconds",
			metric.WithDescription("Total evaluation job time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "job_latency: "+err.Error())
		}

		o.phaseLatency, err = meter.Float64Histogram("pipeline_phase_duration_seconds",
			metric.WithDescription("Time spent in each pipeline phase"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "phase_latency: "+err.Error())
		}

		o.pageFailures, err = meter.Int64Counter("pipeline_page_failure_total",
			metric.WithDescription("Number of oracle page calls that failed"),
		)
		if err != nil {
			initErrors = append(initErrors, "page_failures: "+err.Error())
		}

		o.scoreFailures, err = meter.Int64Counter("pipeline_score_failure_total",
			metric.WithDescription("Number of per-question scoring calls that failed"),
		)
		if err != nil {
			initErrors = append(initErrors, "score_failures: "+err.Error())
		}

		if len(initErrors) > 0 {
			o.logger.Error("failed to initialize some pipeline metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// job bundles the mutable pieces of one run.
type job struct {
	state    *WorkflowState
	reporter *Reporter
	summary  *JobSummary
}

// Run is the single public entry point: it evaluates one document and
// always returns a JobSummary. The returned error is non-nil only for
// caller-side problems (nil context, cancellation); every pipeline
// failure mode still terminates in a summary with Success=false and
// populated Errors.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	documentID - Identifier the oracle resolves pages against.
//	pageCount - Number of pages in the document.
//	reporter - Progress reporter for this job. May be nil if the
//	           caller does not consume progress.
//
// Outputs:
//
//	*JobSummary - Always non-nil unless ctx was nil.
//	error - Context error on cancellation, nil otherwise.
func (o *Orchestrator) Run(ctx context.Context, documentID string, pageCount int, reporter *Reporter) (*JobSummary, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	o.initMetrics()

	state := NewWorkflowState(documentID, pageCount)
	return o.run(ctx, state, reporter)
}

// RunFromState runs a job whose WorkflowState the caller built with
// NewWorkflowState. It exists for callers that need the job ID before
// the run finishes, e.g. to hand it back over HTTP while the job is
// still executing.
func (o *Orchestrator) RunFromState(ctx context.Context, state *WorkflowState, reporter *Reporter) (*JobSummary, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if state == nil {
		return nil, fmt.Errorf("%w: nil workflow state", ErrInvalidInput)
	}

	o.initMetrics()
	return o.run(ctx, state, reporter)
}

func (o *Orchestrator) run(ctx context.Context, state *WorkflowState, reporter *Reporter) (*JobSummary, error) {
	if reporter == nil {
		reporter = NewReporter(o.logger)
	}
	// The reporter is per-job; closing it ends the subscriber's drain loop.
	defer reporter.Close()

	ctx, span := tracer.Start(ctx, "pipeline.Job",
		trace.WithAttributes(
			attribute.String("job.id", state.JobID),
			attribute.String("job.document_id", state.DocumentID),
			attribute.Int("job.page_count", state.PageCount),
		),
	)
	defer span.End()

	start := time.Now()
	j := &job{state: state, reporter: reporter}

	o.logger.Info("evaluation job started",
		slog.String("job_id", state.JobID),
		slog.String("document_id", state.DocumentID),
		slog.Int("pages", state.PageCount),
	)

	for !state.CurrentPhase().Terminal() {
		select {
		case <-ctx.Done():
			state.AddError("job canceled: " + ctx.Err().Error())
			span.RecordError(ctx.Err())
			span.SetStatus(codes.Error, "context canceled")
			summary := BuildSummary(state)
			summary.Success = false
			return summary, ctx.Err()
		default:
		}

		phase := state.CurrentPhase()
		next := o.step(ctx, j, phase)
		state.SetPhase(next)
		o.checkpoint(state, next)
	}

	duration := time.Since(start)
	if o.jobLatency != nil {
		o.jobLatency.Record(ctx, duration.Seconds())
	}

	if j.summary == nil {
		// Should be unreachable; persist and error nodes both build
		// one. Keep the caller-always-gets-a-summary guarantee anyway.
		j.summary = BuildSummary(state)
	}

	if j.summary.Success {
		span.SetStatus(codes.Ok, "")
		o.logger.Info("evaluation job completed",
			slog.String("job_id", state.JobID),
			slog.Duration("duration", duration),
			slog.Int("questions_evaluated", j.summary.QuestionsEvaluated),
			slog.Float64("total_score", j.summary.TotalScore),
		)
	} else {
		span.SetStatus(codes.Error, "job degraded")
		o.logger.Error("evaluation job degraded",
			slog.String("job_id", state.JobID),
			slog.Duration("duration", duration),
			slog.Any("errors", j.summary.Errors),
		)
	}

	return j.summary, nil
}

// checkpoint snapshots the state after a phase transition, or clears
// the snapshot once the job reaches a terminal phase. Checkpoint I/O
// never fails or delays the job beyond the write itself.
func (o *Orchestrator) checkpoint(state *WorkflowState, phase Phase) {
	if o.checkpointDir == "" {
		return
	}
	path := filepath.Join(o.checkpointDir, state.JobID+".checkpoint.json")
	if phase.Terminal() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			o.logger.Warn("stale checkpoint not removed",
				slog.String("job_id", state.JobID),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if err := SaveCheckpoint(state, path); err != nil {
		o.logger.Warn("checkpoint write failed",
			slog.String("job_id", state.JobID),
			slog.String("phase", phase.String()),
			slog.String("error", err.Error()),
		)
	}
}

// step runs one phase node with observability and returns the next
// phase, evaluating the conditional edge after the node's work.
func (o *Orchestrator) step(ctx context.Context, j *job, phase Phase) Phase {
	ctx, span := tracer.Start(ctx, "pipeline."+phase.String(),
		trace.WithAttributes(
			attribute.String("job.id", j.state.JobID),
			attribute.String("pipeline.phase", phase.String()),
		),
	)
	defer span.End()

	start := time.Now()
	var next Phase
	switch phase {
	case PhaseInitializing:
		next = o.runInitializing(j)
	case PhaseValidating:
		next = o.runValidating(j)
	case PhaseExtracting:
		next = o.runExtracting(ctx, j)
	case PhaseConsolidating:
		next = o.runConsolidating(j)
	case PhaseAnalyzing:
		next = o.runAnalyzing(ctx, j)
	case PhasePersisting:
		next = o.runPersisting(ctx, j)
	case PhaseError:
		next = o.runError(ctx, j)
	default:
		j.state.AddError("internal: unknown phase " + phase.String())
		next = PhaseError
	}

	if o.phaseLatency != nil {
		o.phaseLatency.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("phase", phase.String())),
		)
	}
	span.SetAttributes(attribute.String("pipeline.next_phase", next.String()))
	return next
}

func (o *Orchestrator) runInitializing(j *job) Phase {
	j.state.AddEvent(j.reporter.Report(PhaseInitializing, 0, 0, ""))
	return PhaseValidating
}

func (o *Orchestrator) runValidating(j *job) Phase {
	if j.state.DocumentID == "" {
		j.state.AddError("document id is empty")
		return PhaseError
	}
	if j.state.PageCount <= 0 {
		j.state.AddError(fmt.Sprintf("document has no readable pages (page_count=%d)", j.state.PageCount))
		return PhaseError
	}
	j.state.AddEvent(j.reporter.Report(PhaseValidating, 1, 1, ""))
	return PhaseExtracting
}

// runExtracting calls the oracle once per page, strictly in sequence.
// A failing page is skipped with a warning; the job only fails here
// when no page at all produced observations.
func (o *Orchestrator) runExtracting(ctx context.Context, j *job) Phase {
	for page := 1; page <= j.state.PageCount; page++ {
		if ctx.Err() != nil {
			// Cancellation surfaces at the phase boundary.
			return PhaseExtracting
		}

		obs, err := o.oracle.AnalyzePage(ctx, j.state.DocumentID, page)
		if err != nil {
			if o.pageFailures != nil {
				o.pageFailures.Add(ctx, 1)
			}
			j.state.AddWarning(fmt.Sprintf("page %d: recognition failed: %v", page, err))
			o.logger.Warn("page recognition failed",
				slog.String("job_id", j.state.JobID),
				slog.Int("page", page),
				slog.String("error", err.Error()),
			)
		} else if obs != nil {
			j.state.AddObservation(*obs)
		}
		j.state.AddEvent(j.reporter.Report(PhaseExtracting, page, j.state.PageCount, ""))
	}

	j.state.mu.RLock()
	observed := len(j.state.Observations)
	j.state.mu.RUnlock()
	if observed == 0 {
		j.state.AddError("recognition produced zero usable page observations")
		return PhaseError
	}
	return PhaseConsolidating
}

func (o *Orchestrator) runConsolidating(j *job) Phase {
	snap := j.state.Snapshot()
	answers, report, err := o.assembler.Assemble(snap.Observations)
	if err != nil {
		j.state.AddError("consolidation failed: " + err.Error())
		return PhaseError
	}
	for _, w := range report.Warnings {
		j.state.AddWarning(w)
	}
	j.state.SetAnswers(answers, report)

	linkable := 0
	for _, ans := range answers {
		if ans.HasContent() {
			linkable++
		}
	}
	j.state.AddEvent(j.reporter.Report(PhaseConsolidating, 1, 1, ""))
	if linkable == 0 {
		j.state.AddError("no question has a linkable answer")
		return PhaseError
	}
	return PhaseAnalyzing
}

// runAnalyzing scores each answered question in sequence. One failing
// scorer call writes a zero-score placeholder and moves on; only a
// clean sweep of failures routes to the error phase.
func (o *Orchestrator) runAnalyzing(ctx context.Context, j *job) Phase {
	snap := j.state.Snapshot()
	var answerable []booklet.ConsolidatedAnswer
	for _, ans := range snap.Answers {
		if ans.HasContent() {
			answerable = append(answerable, ans)
		}
	}

	evaluated := 0
	for i, ans := range answerable {
		if ctx.Err() != nil {
			return PhaseAnalyzing
		}

		scoreStart := time.Now()
		res, err := o.scorer.Score(ctx, ans)
		if err != nil {
			if o.scoreFailures != nil {
				o.scoreFailures.Add(ctx, 1)
			}
			j.state.AddWarning(fmt.Sprintf("question %d: scoring failed: %v", ans.Question.Number, err))
			j.state.AddResult(EvaluationResult{
				QuestionNumber: ans.Question.Number,
				Feedback:       FallbackFeedback,
				ProcessingTime: time.Since(scoreStart),
				Failed:         true,
			})
		} else {
			res.QuestionNumber = ans.Question.Number
			if res.ProcessingTime == 0 {
				res.ProcessingTime = time.Since(scoreStart)
			}
			j.state.AddResult(*res)
			evaluated++
		}
		j.state.AddEvent(j.reporter.Report(PhaseAnalyzing, i+1, len(answerable), ""))
	}

	if evaluated == 0 {
		j.state.AddError("all per-question scoring calls failed")
		return PhaseError
	}
	return PhasePersisting
}

// runPersisting builds the summary and saves it. A persistence failure
// is recorded but never withholds the in-memory summary from the caller.
func (o *Orchestrator) runPersisting(ctx context.Context, j *job) Phase {
	j.state.AddEvent(j.reporter.Report(PhasePersisting, 0, 0, ""))

	summary := BuildSummary(j.state)
	if o.sink == nil {
		j.state.AddWarning("no persistence sink configured; results not saved")
		summary.Warnings = append(summary.Warnings, "no persistence sink configured; results not saved")
	} else if err := o.sink.Save(ctx, summary); err != nil {
		msg := "persisting results failed: " + err.Error()
		j.state.AddError(msg)
		summary.Errors = append(summary.Errors, msg)
		summary.Success = false
		o.logger.Error("persisting results failed",
			slog.String("job_id", j.state.JobID),
			slog.String("error", err.Error()),
		)
	}

	j.summary = summary
	j.state.AddEvent(j.reporter.Report(PhaseCompleted, 0, 0, ""))
	return PhaseCompleted
}

// runError is the recovery handler, not a dead end: it writes a
// minimal fallback summary, attempts a best-effort save, and always
// routes to PhaseCompleted so the job terminates with usable output.
func (o *Orchestrator) runError(ctx context.Context, j *job) Phase {
	j.state.AddEvent(j.reporter.Report(PhaseError, 0, 0, ""))

	// Give every found question a placeholder result unless the
	// analyzing phase already wrote one for it.
	snap := j.state.Snapshot()
	have := make(map[int]bool, len(snap.Results))
	for _, res := range snap.Results {
		have[res.QuestionNumber] = true
	}
	for _, ans := range snap.Answers {
		if !have[ans.Question.Number] {
			j.state.AddResult(EvaluationResult{
				QuestionNumber: ans.Question.Number,
				Feedback:       FallbackFeedback,
				Failed:         true,
			})
		}
	}

	summary := BuildSummary(j.state)
	summary.Success = false
	summary.Fallback = true

	if o.sink != nil {
		if err := o.sink.Save(ctx, summary); err != nil {
			// Best effort only; the error is noted and the job
			// still completes.
			summary.Errors = append(summary.Errors, "fallback persistence failed: "+err.Error())
			o.logger.Error("fallback persistence failed",
				slog.String("job_id", j.state.JobID),
				slog.String("error", err.Error()),
			)
		}
	}

	j.summary = summary
	return PhaseCompleted
}
