// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import "time"

// BuildSummary folds the workflow state into the final JobSummary.
//
// Totals only ever accumulate: a question whose scoring failed is
// present as a zero-score placeholder contributing (0, 0), never a
// negative or missing value, and is excluded from QuestionsEvaluated.
func BuildSummary(state *WorkflowState) *JobSummary {
	snap := state.Snapshot()

	summary := &JobSummary{
		JobID:      snap.JobID,
		DocumentID: snap.DocumentID,
		Results:    snap.Results,
		Warnings:   snap.Warnings,
		Errors:     snap.Errors,
		Duration:   time.Since(time.UnixMilli(snap.StartedAt)),
	}

	if snap.Assembly != nil {
		summary.QuestionsFound = snap.Assembly.QuestionsFound
		summary.OrphanFragments = len(snap.Assembly.Orphans)
	}

	for _, res := range snap.Results {
		if res.Failed {
			continue
		}
		summary.TotalScore += res.Score
		summary.TotalMax += res.MaxScore
		summary.QuestionsEvaluated++
	}

	summary.Success = summary.QuestionsEvaluated > 0 && len(snap.Errors) == 0
	return summary
}
