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
	"gopkg.in/yaml.v3"

	"github.com/gradewell/gradewell/pkg/ux"
)

// BatchManifest lists booklets to submit in one go.
type BatchManifest struct {
	Booklets []BatchBooklet `yaml:"booklets"`
}

type BatchBooklet struct {
	DocumentID string `yaml:"document_id"`
	PageCount  int    `yaml:"page_count"`
}

func runBatch(cmd *cobra.Command, _ []string) {
	data, err := os.ReadFile(batchManifest)
	if err != nil {
		ux.Error(fmt.Sprintf("Failed to read manifest: %v", err))
		os.Exit(1)
	}

	var manifest BatchManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		ux.Error(fmt.Sprintf("Failed to parse manifest YAML: %v", err))
		os.Exit(1)
	}
	if len(manifest.Booklets) == 0 {
		ux.Warning("Manifest lists no booklets")
		return
	}

	client := newServiceClient()
	var submitted, failed int

	ux.Title(fmt.Sprintf("Submitting %d booklets", len(manifest.Booklets)))
	for _, booklet := range manifest.Booklets {
		if booklet.DocumentID == "" || booklet.PageCount < 1 {
			ux.Warning(fmt.Sprintf("Skipping invalid entry %q (page_count %d)",
				booklet.DocumentID, booklet.PageCount))
			failed++
			continue
		}
		accepted, err := client.Submit(booklet.DocumentID, booklet.PageCount)
		if err != nil {
			ux.Error(fmt.Sprintf("%s: %v", booklet.DocumentID, err))
			failed++
			continue
		}
		logger.Info("batch submission accepted",
			"job_id", accepted.JobID, "document_id", booklet.DocumentID)
		ux.Success(fmt.Sprintf("%s accepted as job %s", booklet.DocumentID, accepted.JobID))
		submitted++
	}

	ux.Info(fmt.Sprintf("%d submitted, %d failed", submitted, failed))
	if failed > 0 {
		os.Exit(1)
	}
}
