// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// MaxPageCount caps a single submission. Booklets past this size are
// almost certainly a client bug, not a real exam.
const MaxPageCount = 200

type SubmitEvaluationRequest struct {
	DocumentID string `json:"document_id" binding:"required"`
	PageCount  int    `json:"page_count" binding:"required"`
}

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UnixMilli()})
}

// SubmitEvaluation accepts a booklet for evaluation and returns the job
// ID immediately; the pipeline runs in the background.
func SubmitEvaluation(manager *JobManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubmitEvaluationRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if req.PageCount < 1 || req.PageCount > MaxPageCount {
			c.JSON(http.StatusBadRequest, gin.H{"error": "page_count must be between 1 and 200"})
			return
		}

		job, err := manager.Start(req.DocumentID, req.PageCount)
		if err != nil {
			slog.Error("Failed to start evaluation", "document_id", req.DocumentID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		slog.Info("Evaluation job accepted",
			"job_id", job.ID, "document_id", req.DocumentID, "page_count", req.PageCount)
		c.JSON(http.StatusAccepted, gin.H{
			"job_id":      job.ID,
			"document_id": job.DocumentID,
			"status":      job.Status(),
		})
	}
}

// GetEvaluation returns the state of one job: its summary when finished,
// or a running marker while the pipeline is still working.
func GetEvaluation(manager *JobManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("jobId")

		summary, status, err := manager.Lookup(c.Request.Context(), jobID)
		if err != nil {
			if errors.Is(err, ErrJobNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
				return
			}
			slog.Error("Failed to look up job", "job_id", jobID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query job"})
			return
		}

		if summary == nil {
			c.JSON(http.StatusOK, gin.H{"job_id": jobID, "status": status})
			return
		}
		c.JSON(http.StatusOK, gin.H{"job_id": jobID, "status": status, "summary": summary})
	}
}

// ListDocumentEvaluations returns every stored summary for a document,
// newest submission semantics left to the client.
func ListDocumentEvaluations(store SummaryStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Persistence is not configured"})
			return
		}
		documentID := c.Param("documentId")

		summaries, err := store.ListByDocument(c.Request.Context(), documentID)
		if err != nil {
			slog.Error("Failed to list evaluations", "document_id", documentID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query evaluations"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"document_id": documentID,
			"count":       len(summaries),
			"evaluations": summaries,
		})
	}
}
