// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gradewell/gradewell/pkg/ux"
	"github.com/gradewell/gradewell/services/pipeline"
)

func runEvaluate(cmd *cobra.Command, args []string) {
	documentID := args[0]
	client := newServiceClient()

	if evalPages < 1 {
		ux.Error("--pages must be a positive number")
		os.Exit(1)
	}

	var accepted *submitResponse
	err := ux.WithSpinner(fmt.Sprintf("Submitting %s", documentID), func() error {
		var submitErr error
		accepted, submitErr = client.Submit(documentID, evalPages)
		return submitErr
	})
	if err != nil {
		os.Exit(1)
	}
	logger.Info("evaluation submitted", "job_id", accepted.JobID, "document_id", documentID)

	if !evalWatch {
		ux.Success(fmt.Sprintf("Job %s accepted for %s (%d pages)", accepted.JobID, documentID, evalPages))
		ux.Info(fmt.Sprintf("Fetch the result with: gradewell result %s", accepted.JobID))
		return
	}

	ux.Title(fmt.Sprintf("Evaluating %s", documentID))
	summary, err := client.Watch(accepted.JobID, func(ev pipeline.ProgressEvent) {
		if ux.Plain() {
			fmt.Printf("PROGRESS: %d%% %s\n", ev.Percent, ev.Message)
			return
		}
		fmt.Printf("\r\033[K%s %s", ux.ProgressBar(ev.Percent, 30), ev.Message)
	})
	if !ux.Plain() {
		fmt.Println()
	}
	if err != nil {
		ux.Error(fmt.Sprintf("Progress stream failed: %v", err))
		ux.Info(fmt.Sprintf("The job may still finish; check with: gradewell result %s", accepted.JobID))
		os.Exit(1)
	}

	printSummary(summary)
	if summary != nil && !summary.Success {
		os.Exit(1)
	}
}

// printSummary renders a job summary for terminal consumption.
func printSummary(summary *pipeline.JobSummary) {
	if summary == nil {
		ux.Warning("No summary available")
		return
	}

	if summary.Fallback {
		ux.Box("Evaluation unavailable",
			"Automated evaluation could not complete.\nManual review recommended.")
	} else {
		ux.Box(fmt.Sprintf("Result for %s", summary.DocumentID),
			fmt.Sprintf("Score: %.1f / %.1f\nQuestions: %d found, %d evaluated\nOrphan fragments: %d",
				summary.TotalScore, summary.TotalMax,
				summary.QuestionsFound, summary.QuestionsEvaluated,
				summary.OrphanFragments))
	}

	for _, res := range summary.Results {
		ux.ScoreLine(res.QuestionNumber, res.Score, res.MaxScore, res.Feedback)
	}
	for _, warning := range summary.Warnings {
		ux.Warning(warning)
	}
	for _, errMsg := range summary.Errors {
		ux.Error(errMsg)
	}

	if summary.Success {
		ux.Success("Evaluation complete")
	}
}
