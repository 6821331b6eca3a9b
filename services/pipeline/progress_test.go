// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"strings"
	"testing"
)

func TestReporterBands(t *testing.T) {
	cases := []struct {
		name     string
		phase    Phase
		position int
		total    int
		want     int
	}{
		{"validating complete", PhaseValidating, 1, 1, 5},
		{"extracting start", PhaseExtracting, 0, 0, 5},
		{"extracting halfway", PhaseExtracting, 5, 10, 22},
		{"extracting done", PhaseExtracting, 10, 10, 40},
		{"consolidating done", PhaseConsolidating, 1, 1, 50},
		{"analyzing halfway", PhaseAnalyzing, 1, 2, 72},
		{"analyzing done", PhaseAnalyzing, 2, 2, 95},
		{"persisting start", PhasePersisting, 0, 0, 95},
		{"completed", PhaseCompleted, 0, 0, 100},
	}

	r := NewReporter(nil)
	for _, tc := range cases {
		ev := r.Report(tc.phase, tc.position, tc.total, "")
		if ev.Percent != tc.want {
			t.Errorf("%s: percent = %d, want %d", tc.name, ev.Percent, tc.want)
		}
	}
}

func TestReporterMonotonic(t *testing.T) {
	r := NewReporter(nil)
	r.Report(PhaseAnalyzing, 2, 2, "") // 95

	// A late, lower-band report must not regress.
	ev := r.Report(PhaseExtracting, 1, 10, "")
	if ev.Percent != 95 {
		t.Errorf("percent regressed to %d", ev.Percent)
	}
}

func TestReporterErrorJumpsTo100(t *testing.T) {
	r := NewReporter(nil)
	r.Report(PhaseExtracting, 1, 10, "")
	ev := r.Report(PhaseError, 0, 0, "")
	if ev.Percent != 100 {
		t.Errorf("error percent = %d, want 100", ev.Percent)
	}
	if !strings.Contains(ev.Message, "fallback") {
		t.Errorf("error message not error-flavored: %q", ev.Message)
	}
}

func TestReporterNeverBlocks(t *testing.T) {
	r := NewReporter(nil)
	// Nobody drains the channel; overflow must drop, not block.
	for i := 0; i < DefaultProgressBuffer+10; i++ {
		r.Report(PhaseExtracting, i, DefaultProgressBuffer+10, "")
	}
	if r.Dropped() != 10 {
		t.Errorf("Dropped() = %d, want 10", r.Dropped())
	}
}

func TestReporterPositionClamped(t *testing.T) {
	r := NewReporter(nil)
	ev := r.Report(PhaseExtracting, 15, 10, "")
	if ev.Percent != 40 {
		t.Errorf("percent = %d, want band ceiling 40", ev.Percent)
	}
}
