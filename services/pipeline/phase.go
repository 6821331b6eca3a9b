// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import "encoding/json"

// Phase is the closed set of orchestrator states. Progression is
// monotonic except for routing to PhaseError, which always proceeds to
// PhaseCompleted after writing a fallback result.
type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseValidating
	PhaseExtracting
	PhaseConsolidating
	PhaseAnalyzing
	PhasePersisting
	PhaseCompleted
	PhaseError
)

var phaseNames = map[Phase]string{
	PhaseInitializing:  "initializing",
	PhaseValidating:    "validating",
	PhaseExtracting:    "extracting",
	PhaseConsolidating: "consolidating",
	PhaseAnalyzing:     "analyzing",
	PhasePersisting:    "persisting",
	PhaseCompleted:     "completed",
	PhaseError:         "error",
}

// String returns the lowercase phase name.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the job is finished in this phase.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted
}

// MarshalJSON encodes the phase by name.
func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a phase name written by MarshalJSON.
func (p *Phase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for phase, name := range phaseNames {
		if name == s {
			*p = phase
			return nil
		}
	}
	return ErrUnknownPhase
}
