// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the evaluator
// service. Metrics cover evaluation job submission, completion, duration,
// and live progress-stream connections, and are exposed on /metrics for
// scraping.
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "gradewell"

// Subsystem for evaluator metrics
const evaluatorSubsystem = "evaluator"

// EvaluatorMetrics holds all Prometheus metrics for evaluation jobs.
// Initialize once at startup via InitMetrics().
type EvaluatorMetrics struct {
	// JobsTotal counts evaluation jobs by outcome.
	// Labels: status (completed, fallback, rejected)
	JobsTotal *prometheus.CounterVec

	// JobDurationSeconds measures end-to-end evaluation duration.
	// Labels: status (completed, fallback)
	JobDurationSeconds *prometheus.HistogramVec

	// ActiveJobs tracks evaluation jobs currently running.
	ActiveJobs prometheus.Gauge

	// StreamConnections tracks open progress WebSocket connections.
	StreamConnections prometheus.Gauge

	// ProgressEventsTotal counts progress events delivered to subscribers.
	ProgressEventsTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance of EvaluatorMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *EvaluatorMetrics

// InitMetrics creates and registers all Prometheus metrics. Call once at
// application startup; calling it twice panics on duplicate registration,
// which is the behavior we want (it signals a wiring bug).
func InitMetrics() *EvaluatorMetrics {
	m := &EvaluatorMetrics{
		JobsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: evaluatorSubsystem,
				Name:      "jobs_total",
				Help:      "Total evaluation jobs by outcome.",
			},
			[]string{"status"},
		),
		JobDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: evaluatorSubsystem,
				Name:      "job_duration_seconds",
				Help:      "End-to-end evaluation job duration in seconds.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
		ActiveJobs: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: evaluatorSubsystem,
				Name:      "active_jobs",
				Help:      "Evaluation jobs currently running.",
			},
		),
		StreamConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: evaluatorSubsystem,
				Name:      "stream_connections",
				Help:      "Open progress WebSocket connections.",
			},
		),
		ProgressEventsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: evaluatorSubsystem,
				Name:      "progress_events_total",
				Help:      "Progress events delivered to subscribers.",
			},
		),
	}
	DefaultMetrics = m
	return m
}

// RecordJob records a finished evaluation job. Safe to call with a nil
// receiver so handlers can run without metrics in tests.
func (m *EvaluatorMetrics) RecordJob(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(status).Inc()
	m.JobDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordRejected counts a request rejected before a job was started.
func (m *EvaluatorMetrics) RecordRejected() {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues("rejected").Inc()
}

// JobStarted increments the active jobs gauge.
func (m *EvaluatorMetrics) JobStarted() {
	if m == nil {
		return
	}
	m.ActiveJobs.Inc()
}

// JobFinished decrements the active jobs gauge.
func (m *EvaluatorMetrics) JobFinished() {
	if m == nil {
		return
	}
	m.ActiveJobs.Dec()
}

// StreamOpened increments the stream connections gauge.
func (m *EvaluatorMetrics) StreamOpened() {
	if m == nil {
		return
	}
	m.StreamConnections.Inc()
}

// StreamClosed decrements the stream connections gauge.
func (m *EvaluatorMetrics) StreamClosed() {
	if m == nil {
		return
	}
	m.StreamConnections.Dec()
}

// EventDelivered counts one delivered progress event.
func (m *EvaluatorMetrics) EventDelivered() {
	if m == nil {
		return
	}
	m.ProgressEventsTotal.Inc()
}
