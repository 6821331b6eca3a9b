// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"fmt"
	"log/slog"
	"time"
)

// ProgressEvent is one entry of the append-only progress log, also
// forwarded live to the subscriber channel.
type ProgressEvent struct {
	Phase     Phase     `json:"phase"`
	Percent   int       `json:"percent"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// band is the fixed percentage range a phase occupies.
type band struct{ lo, hi int }

// Phase weights are fixed: extraction and analysis dominate because
// they are the phases that suspend on external calls.
var phaseBands = map[Phase]band{
	PhaseInitializing:  {0, 0},
	PhaseValidating:    {0, 5},
	PhaseExtracting:    {5, 40},
	PhaseConsolidating: {40, 50},
	PhaseAnalyzing:     {50, 95},
	PhasePersisting:    {95, 100},
	PhaseCompleted:     {100, 100},
	PhaseError:         {100, 100},
}

// DefaultProgressBuffer is the subscriber channel capacity. When the
// subscriber falls behind, further events are dropped, never blocked on.
const DefaultProgressBuffer = 64

// Reporter converts phase + position into a monotonic 0-100 percentage
// and pushes events to a bounded channel. A slow or absent consumer can
// never stall the pipeline: sends are non-blocking and overflow is
// counted and logged, not waited out.
//
// Thread Safety:
//
//	A Reporter belongs to one job and is used from that job's
//	goroutine only.
type Reporter struct {
	events  chan ProgressEvent
	logger  *slog.Logger
	last    int
	dropped int
}

// NewReporter creates a Reporter with a bounded event channel.
func NewReporter(logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		events: make(chan ProgressEvent, DefaultProgressBuffer),
		logger: logger,
	}
}

// Events returns the channel the caller drains for live progress. The
// channel is closed by Close when the job finishes.
func (r *Reporter) Events() <-chan ProgressEvent {
	return r.events
}

// Dropped returns how many events overflowed the subscriber channel.
func (r *Reporter) Dropped() int {
	return r.dropped
}

// Close closes the event channel. Call exactly once, after the last
// Report.
func (r *Reporter) Close() {
	close(r.events)
}

// Report computes the percentage for a phase position and emits the
// event. Percent never regresses within a job; position/total
// interpolate linearly inside the phase's band (pass 0, 0 at a phase
// boundary). PhaseError jumps straight to 100 with an error-flavored
// message.
func (r *Reporter) Report(phase Phase, position, total int, message string) ProgressEvent {
	b := phaseBands[phase]
	percent := b.lo
	if total > 0 {
		if position > total {
			position = total
		}
		percent = b.lo + (b.hi-b.lo)*position/total
	}
	if percent < r.last {
		percent = r.last
	}
	r.last = percent

	if message == "" {
		message = defaultMessage(phase, position, total)
	}

	ev := ProgressEvent{
		Phase:     phase,
		Percent:   percent,
		Message:   message,
		Timestamp: time.Now(),
	}

	select {
	case r.events <- ev:
	default:
		r.dropped++
		r.logger.Warn("progress subscriber lagging, event dropped",
			slog.String("phase", phase.String()),
			slog.Int("percent", percent),
			slog.Int("dropped_total", r.dropped),
		)
	}
	return ev
}

func defaultMessage(phase Phase, position, total int) string {
	switch phase {
	case PhaseInitializing:
		return "Starting evaluation"
	case PhaseValidating:
		return "Validating document"
	case PhaseExtracting:
		if total > 0 {
			return fmt.Sprintf("Reading page %d of %d", position, total)
		}
		return "Reading pages"
	case PhaseConsolidating:
		return "Consolidating answers"
	case PhaseAnalyzing:
		if total > 0 {
			return fmt.Sprintf("Evaluating answer %d of %d", position, total)
		}
		return "Evaluating answers"
	case PhasePersisting:
		return "Saving results"
	case PhaseCompleted:
		return "Evaluation complete"
	case PhaseError:
		return "Evaluation failed; producing fallback result"
	default:
		return phase.String()
	}
}
