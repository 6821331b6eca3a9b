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
)

func runResult(cmd *cobra.Command, args []string) {
	jobID := args[0]
	client := newServiceClient()

	spin := ux.NewSpinner("Fetching result")
	spin.Start()
	result, err := client.GetResult(jobID)
	spin.Stop()
	if err != nil {
		ux.Error(fmt.Sprintf("Could not fetch result: %v", err))
		os.Exit(1)
	}

	if result.Summary == nil {
		ux.Info(fmt.Sprintf("Job %s is still %s", jobID, result.Status))
		return
	}
	printSummary(result.Summary)
}

func runList(cmd *cobra.Command, args []string) {
	documentID := args[0]
	client := newServiceClient()

	spin := ux.NewSpinner("Fetching evaluations")
	spin.Start()
	list, err := client.List(documentID)
	spin.Stop()
	if err != nil {
		ux.Error(fmt.Sprintf("Could not list evaluations: %v", err))
		os.Exit(1)
	}

	if list.Count == 0 {
		ux.Info(fmt.Sprintf("No evaluations stored for %s", documentID))
		return
	}

	ux.Title(fmt.Sprintf("Evaluations for %s", documentID))
	for _, summary := range list.Evaluations {
		status := string(ux.IconSuccess)
		if !summary.Success {
			status = string(ux.IconError)
		}
		if ux.Plain() {
			fmt.Printf("%s\t%s\t%.1f/%.1f\n", summary.JobID, status, summary.TotalScore, summary.TotalMax)
			continue
		}
		fmt.Printf("%s %s %s\n",
			ux.Icon(status).Render(),
			ux.Styles.Bold.Render(summary.JobID),
			ux.Styles.Muted.Render(fmt.Sprintf("%.1f/%.1f, %d questions",
				summary.TotalScore, summary.TotalMax, summary.QuestionsFound)))
	}
}

func runHealth(cmd *cobra.Command, args []string) {
	client := newServiceClient()
	spin := ux.NewSpinner("Checking evaluator service")
	spin.Start()
	err := client.Health()
	if err != nil {
		spin.StopWithError(fmt.Sprintf("Evaluator service is unreachable: %v", err))
		os.Exit(1)
	}
	spin.StopWithSuccess("Evaluator service is healthy")
}
