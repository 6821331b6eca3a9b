// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "gradewell",
		Short: "A CLI for the Gradewell answer booklet evaluation service",
		Long: `Gradewell evaluates scanned exam answer booklets: it links
handwritten answer fragments to their questions, consolidates multi-page
answers, and scores them against the question paper.`,
	}

	evaluateCmd = &cobra.Command{
		Use:   "evaluate [document-id]",
		Short: "Submit a scanned booklet for evaluation",
		Long: `Submits a booklet to the evaluator service and prints the job ID.
With --watch the command stays attached and renders live progress until
the evaluation finishes.`,
		Args: cobra.ExactArgs(1),
		Run:  runEvaluate,
	}
	evalPages int
	evalWatch bool

	resultCmd = &cobra.Command{
		Use:   "result [job-id]",
		Short: "Fetch the result of an evaluation job",
		Args:  cobra.ExactArgs(1),
		Run:   runResult,
	}

	listCmd = &cobra.Command{
		Use:   "list [document-id]",
		Short: "List all evaluations stored for a document",
		Args:  cobra.ExactArgs(1),
		Run:   runList,
	}

	batchCmd = &cobra.Command{
		Use:   "batch",
		Short: "Submit a batch of booklets from a YAML manifest",
		Long: `Reads a YAML manifest listing booklets and submits each one for
evaluation. The manifest format:

    booklets:
      - document_id: roll-0142
        page_count: 12
      - document_id: roll-0143
        page_count: 10`,
		Run: runBatch,
	}
	batchManifest string

	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check that the evaluator service is reachable",
		Run:   runHealth,
	}

	plainOutput bool
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&plainOutput, "plain", false,
		"Disable colors and animations (for scripts and CI)")

	evaluateCmd.Flags().IntVar(&evalPages, "pages", 0, "Number of pages in the booklet (required)")
	evaluateCmd.Flags().BoolVar(&evalWatch, "watch", false, "Stream progress until the job completes")
	evaluateCmd.MarkFlagRequired("pages")

	batchCmd.Flags().StringVar(&batchManifest, "manifest", "", "Path to the YAML manifest (required)")
	batchCmd.MarkFlagRequired("manifest")

	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(resultCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(healthCmd)
}
