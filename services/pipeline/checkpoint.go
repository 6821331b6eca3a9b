// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gradewell/gradewell/services/booklet"
)

// CheckpointVersion is the current checkpoint format version (semver).
const CheckpointVersion = "1.0.0"

// checkpointState is a JSON-serializable copy of WorkflowState. The
// mutex makes WorkflowState itself unserializable.
type checkpointState struct {
	JobID        string                       `json:"job_id"`
	DocumentID   string                       `json:"document_id"`
	PageCount    int                          `json:"page_count"`
	StartedAt    int64                        `json:"started_at"` // Unix milliseconds UTC
	Phase        Phase                        `json:"phase"`
	Observations []booklet.PageObservation    `json:"observations,omitempty"`
	Answers      []booklet.ConsolidatedAnswer `json:"answers,omitempty"`
	Assembly     *booklet.AssemblyReport      `json:"assembly,omitempty"`
	Results      []EvaluationResult           `json:"results,omitempty"`
	Warnings     []string                     `json:"warnings,omitempty"`
	Errors       []string                     `json:"errors,omitempty"`
	Events       []ProgressEvent              `json:"events,omitempty"`
}

func toCheckpointState(state *WorkflowState) *checkpointState {
	snap := state.Snapshot()
	return &checkpointState{
		JobID:        snap.JobID,
		DocumentID:   snap.DocumentID,
		PageCount:    snap.PageCount,
		StartedAt:    snap.StartedAt,
		Phase:        snap.Phase,
		Observations: snap.Observations,
		Answers:      snap.Answers,
		Assembly:     snap.Assembly,
		Results:      snap.Results,
		Warnings:     snap.Warnings,
		Errors:       snap.Errors,
		Events:       snap.Events,
	}
}

func (cs *checkpointState) toState() *WorkflowState {
	return &WorkflowState{
		JobID:        cs.JobID,
		DocumentID:   cs.DocumentID,
		PageCount:    cs.PageCount,
		StartedAt:    cs.StartedAt,
		Phase:        cs.Phase,
		Observations: cs.Observations,
		Answers:      cs.Answers,
		Assembly:     cs.Assembly,
		Results:      cs.Results,
		Warnings:     cs.Warnings,
		Errors:       cs.Errors,
		Events:       cs.Events,
	}
}

// Checkpoint is the on-disk snapshot of a job, protected by a checksum.
type Checkpoint struct {
	State     *checkpointState `json:"state"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Checksum  string           `json:"checksum"`
}

// computeChecksum calculates SHA256 over everything but the checksum
// field itself.
func computeChecksum(state *checkpointState, timestamp time.Time) (string, error) {
	data := struct {
		State     *checkpointState `json:"state"`
		Timestamp time.Time        `json:"timestamp"`
		Version   string           `json:"version"`
	}{
		State:     state,
		Timestamp: timestamp,
		Version:   CheckpointVersion,
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal for checksum: %w", err)
	}

	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:]), nil
}

// SaveCheckpoint serializes a job's state to a file, atomically via
// temp file + rename, so a crash mid-write never leaves a torn
// checkpoint behind.
//
// Inputs:
//
//	state - The job state to snapshot. Must not be nil.
//	path - File path to write. Parent directory must exist.
//
// Outputs:
//
//	error - Non-nil if serialization or the file write fails.
func SaveCheckpoint(state *WorkflowState, path string) error {
	if state == nil {
		return fmt.Errorf("%w: state must not be nil", ErrInvalidInput)
	}
	if path == "" {
		return fmt.Errorf("%w: path must not be empty", ErrInvalidInput)
	}

	cs := toCheckpointState(state)
	timestamp := time.Now()

	checksum, err := computeChecksum(cs, timestamp)
	if err != nil {
		return fmt.Errorf("compute checksum: %w", err)
	}

	checkpoint := &Checkpoint{
		State:     cs,
		Timestamp: timestamp,
		Version:   CheckpointVersion,
		Checksum:  checksum,
	}

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(path)
	tempFile, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}

	success = true
	return nil
}

// LoadCheckpoint reads a checkpoint and verifies version and checksum.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: path must not be empty", ErrInvalidInput)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}

	if cp.Version != CheckpointVersion {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrCheckpointVersionMismatch, cp.Version, CheckpointVersion)
	}

	expected, err := computeChecksum(cp.State, cp.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("compute checksum for verification: %w", err)
	}
	if cp.Checksum != expected {
		return nil, ErrCheckpointCorrupt
	}
	return &cp, nil
}

// JobID returns the checkpointed job's identifier.
func (c *Checkpoint) JobID() string {
	if c == nil || c.State == nil {
		return ""
	}
	return c.State.JobID
}

// DocumentID returns the document the checkpointed job was evaluating.
func (c *Checkpoint) DocumentID() string {
	if c == nil || c.State == nil {
		return ""
	}
	return c.State.DocumentID
}

// PageCount returns the checkpointed job's page count.
func (c *Checkpoint) PageCount() int {
	if c == nil || c.State == nil {
		return 0
	}
	return c.State.PageCount
}

// Phase returns the phase the job was in when the checkpoint was taken.
func (c *Checkpoint) Phase() Phase {
	if c == nil || c.State == nil {
		return PhaseInitializing
	}
	return c.State.Phase
}

// Verify recalculates the checksum and compares it to the stored value.
func (c *Checkpoint) Verify() bool {
	if c == nil || c.State == nil {
		return false
	}
	expected, err := computeChecksum(c.State, c.Timestamp)
	if err != nil {
		return false
	}
	return c.Checksum == expected
}

// Resume continues a job from a checkpoint. The interrupted phase is
// re-run from its start; any partial per-item accumulation from the
// interrupted attempt is discarded first so a rerun never
// double-applies work.
func (o *Orchestrator) Resume(ctx context.Context, checkpoint *Checkpoint, reporter *Reporter) (*JobSummary, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if checkpoint == nil {
		return nil, fmt.Errorf("%w: checkpoint must not be nil", ErrInvalidInput)
	}
	if !checkpoint.Verify() {
		return nil, ErrCheckpointCorrupt
	}

	o.initMetrics()
	state := checkpoint.State.toState()

	switch state.Phase {
	case PhaseExtracting:
		state.Observations = nil
	case PhaseAnalyzing:
		state.Results = nil
	}

	o.logger.Info("resuming job from checkpoint",
		slog.String("job_id", state.JobID),
		slog.String("phase", state.Phase.String()),
		slog.Time("checkpoint_time", checkpoint.Timestamp),
	)

	return o.run(ctx, state, reporter)
}
