// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/gradewell/gradewell/services/evaluator/observability"
	"github.com/gradewell/gradewell/services/pipeline"
	"github.com/gradewell/gradewell/services/storage"
)

// ErrJobNotFound is returned when a job ID is neither running nor stored.
var ErrJobNotFound = errors.New("evaluator: job not found")

// subscriberBuffer is the per-subscriber event channel depth. A viewer
// that stops reading loses events rather than stalling the job.
const subscriberBuffer = 16

// JobStatus is the externally visible lifecycle of a job.
type JobStatus string

const (
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
)

// Job is one in-flight or finished evaluation tracked by the manager.
// The pipeline owns the WorkflowState; the Job only mirrors what HTTP
// and WebSocket clients need to see.
type Job struct {
	ID         string
	DocumentID string
	PageCount  int
	StartedAt  time.Time

	mu          sync.RWMutex
	status      JobStatus
	events      []pipeline.ProgressEvent
	subscribers map[chan pipeline.ProgressEvent]struct{}
	summary     *pipeline.JobSummary
}

// Status returns the job's current lifecycle state.
func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Summary returns the finished job's summary, or nil while running.
func (j *Job) Summary() *pipeline.JobSummary {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.summary
}

// Events returns a copy of all progress events observed so far.
func (j *Job) Events() []pipeline.ProgressEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]pipeline.ProgressEvent, len(j.events))
	copy(out, j.events)
	return out
}

// Subscribe registers a live event channel and returns it together with
// the history seen so far, so a late-joining client misses nothing. The
// channel is closed when the job finishes.
func (j *Job) Subscribe() (history []pipeline.ProgressEvent, live <-chan pipeline.ProgressEvent, cancel func()) {
	ch := make(chan pipeline.ProgressEvent, subscriberBuffer)

	j.mu.Lock()
	history = make([]pipeline.ProgressEvent, len(j.events))
	copy(history, j.events)
	if j.status == StatusCompleted {
		close(ch)
	} else {
		j.subscribers[ch] = struct{}{}
	}
	j.mu.Unlock()

	cancel = func() {
		j.mu.Lock()
		if _, ok := j.subscribers[ch]; ok {
			delete(j.subscribers, ch)
			close(ch)
		}
		j.mu.Unlock()
	}
	return history, ch, cancel
}

func (j *Job) broadcast(ev pipeline.ProgressEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
	for ch := range j.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; it still gets the final summary on close.
		}
	}
}

func (j *Job) finish(summary *pipeline.JobSummary) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = StatusCompleted
	j.summary = summary
	for ch := range j.subscribers {
		close(ch)
		delete(j.subscribers, ch)
	}
}

// SummaryStore is the slice of the storage layer the handlers read
// finished jobs back from.
type SummaryStore interface {
	GetSummary(ctx context.Context, jobID string) (*pipeline.JobSummary, error)
	ListByDocument(ctx context.Context, documentID string) ([]*pipeline.JobSummary, error)
}

// JobManager starts pipeline runs and tracks them until clients have
// had a chance to collect results. Finished jobs stay resident for
// retention; anything older is served from storage.
type JobManager struct {
	orch      *pipeline.Orchestrator
	store     SummaryStore
	logger    *slog.Logger
	metrics   *observability.EvaluatorMetrics
	retention time.Duration

	mu   sync.RWMutex
	jobs map[string]*Job
}

// JobManagerOption configures a JobManager.
type JobManagerOption func(*JobManager)

// WithManagerLogger sets the manager's logger.
func WithManagerLogger(logger *slog.Logger) JobManagerOption {
	return func(m *JobManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics attaches service metrics. Without it the manager runs
// unmetered, which tests rely on.
func WithMetrics(metrics *observability.EvaluatorMetrics) JobManagerOption {
	return func(m *JobManager) {
		m.metrics = metrics
	}
}

// WithRetention sets how long finished jobs stay in memory.
func WithRetention(d time.Duration) JobManagerOption {
	return func(m *JobManager) {
		if d > 0 {
			m.retention = d
		}
	}
}

// NewJobManager wires a manager around an orchestrator. The store may
// be nil when the service runs without persistence.
func NewJobManager(orch *pipeline.Orchestrator, store SummaryStore, opts ...JobManagerOption) (*JobManager, error) {
	if orch == nil {
		return nil, errors.New("evaluator: orchestrator is required")
	}
	m := &JobManager{
		orch:      orch,
		store:     store,
		logger:    slog.Default(),
		retention: 30 * time.Minute,
		jobs:      make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start launches an evaluation in the background and returns the
// tracked job immediately. The job ID is stable from this point on.
// The run is deliberately detached from any request context: the
// submitting HTTP request finishes long before the job does.
func (m *JobManager) Start(documentID string, pageCount int) (*Job, error) {
	state := pipeline.NewWorkflowState(documentID, pageCount)
	reporter := pipeline.NewReporter(m.logger)

	job := &Job{
		ID:          state.JobID,
		DocumentID:  documentID,
		PageCount:   pageCount,
		StartedAt:   time.Now(),
		status:      StatusRunning,
		subscribers: make(map[chan pipeline.ProgressEvent]struct{}),
	}

	m.launch(job, reporter, func() (*pipeline.JobSummary, error) {
		return m.orch.RunFromState(context.Background(), state, reporter)
	})
	return job, nil
}

// Recover scans dir for checkpoints left behind by interrupted runs
// and resumes each one as a tracked job, typically at service startup.
// A checkpoint that fails to load is logged and skipped; the file is
// left in place for inspection. Returns the number of jobs resumed.
func (m *JobManager) Recover(dir string) int {
	paths, err := filepath.Glob(filepath.Join(dir, "*.checkpoint.json"))
	if err != nil {
		m.logger.Error("checkpoint scan failed",
			slog.String("dir", dir),
			slog.String("error", err.Error()))
		return 0
	}

	resumed := 0
	for _, path := range paths {
		cp, err := pipeline.LoadCheckpoint(path)
		if err != nil {
			m.logger.Warn("skipping unreadable checkpoint",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}

		reporter := pipeline.NewReporter(m.logger)
		job := &Job{
			ID:          cp.JobID(),
			DocumentID:  cp.DocumentID(),
			PageCount:   cp.PageCount(),
			StartedAt:   time.Now(),
			status:      StatusRunning,
			subscribers: make(map[chan pipeline.ProgressEvent]struct{}),
		}

		m.mu.Lock()
		m.jobs[job.ID] = job
		m.mu.Unlock()

		m.logger.Info("resuming interrupted evaluation",
			slog.String("job_id", job.ID),
			slog.String("document_id", job.DocumentID),
			slog.String("phase", cp.Phase().String()))

		m.launch(job, reporter, func() (*pipeline.JobSummary, error) {
			return m.orch.Resume(context.Background(), cp, reporter)
		})
		resumed++
	}
	return resumed
}

// launch runs an evaluation in the background: one goroutine fans the
// reporter's single channel out to subscribers, another executes the
// pipeline and declares the job finished once the last events landed.
func (m *JobManager) launch(job *Job, reporter *pipeline.Reporter, run func() (*pipeline.JobSummary, error)) {
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range reporter.Events() {
			job.broadcast(ev)
			m.metrics.EventDelivered()
		}
	}()

	m.metrics.JobStarted()
	go func() {
		defer m.metrics.JobFinished()

		summary, err := run()
		if err != nil {
			m.logger.Error("evaluation run aborted",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()))
		}
		// The pipeline closes the reporter on exit; wait for the last
		// events to land in the history before declaring completion.
		<-drained
		job.finish(summary)

		status := "completed"
		if summary != nil && summary.Fallback {
			status = "fallback"
		}
		m.metrics.RecordJob(status, time.Since(job.StartedAt))

		time.AfterFunc(m.retention, func() { m.evict(job.ID) })
	}()
}

// Get returns a tracked job by ID, running or recently finished.
func (m *JobManager) Get(jobID string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	return job, ok
}

// Lookup resolves a job ID to its summary, falling back to storage for
// jobs that already aged out of memory. A still-running job returns a
// nil summary with StatusRunning.
func (m *JobManager) Lookup(ctx context.Context, jobID string) (*pipeline.JobSummary, JobStatus, error) {
	if job, ok := m.Get(jobID); ok {
		return job.Summary(), job.Status(), nil
	}
	if m.store == nil {
		return nil, "", ErrJobNotFound
	}
	summary, err := m.store.GetSummary(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", ErrJobNotFound
		}
		return nil, "", err
	}
	return summary, StatusCompleted, nil
}

func (m *JobManager) evict(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, jobID)
}
