// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/gradewell/gradewell/services/evaluator/observability"
	"github.com/gradewell/gradewell/services/pipeline"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// progressFrame wraps a pipeline event for the wire.
type progressFrame struct {
	Type  string                 `json:"type"`
	Event pipeline.ProgressEvent `json:"event"`
}

// summaryFrame closes a stream with the final result.
type summaryFrame struct {
	Type    string               `json:"type"`
	Summary *pipeline.JobSummary `json:"summary"`
}

// StreamEvaluation streams progress events for one job over a
// WebSocket. The client first receives the full event history, then
// live events as the pipeline advances, and finally a summary frame
// when the job completes. The server closes the socket afterwards.
func StreamEvaluation(manager *JobManager, metrics *observability.EvaluatorMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("jobId")
		job, ok := manager.Get(jobID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found or no longer streaming"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		metrics.StreamOpened()
		defer metrics.StreamClosed()
		slog.Info("Progress stream connected", "job_id", jobID)

		history, live, cancel := job.Subscribe()
		defer cancel()

		for _, ev := range history {
			if sendJSON(ws, progressFrame{Type: "progress", Event: ev}) != nil {
				return
			}
		}
		for ev := range live {
			if sendJSON(ws, progressFrame{Type: "progress", Event: ev}) != nil {
				return
			}
		}

		// The live channel closes when the job finishes.
		sendJSON(ws, summaryFrame{Type: "summary", Summary: job.Summary()})
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job complete"))
		slog.Info("Progress stream finished", "job_id", jobID)
	}
}
