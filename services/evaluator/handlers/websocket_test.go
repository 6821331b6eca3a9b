// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func TestStreamEvaluation(t *testing.T) {
	store := newMemStore()
	manager := newTestManager(t, store)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/v1/evaluations/:jobId/ws", StreamEvaluation(manager, nil))
	server := httptest.NewServer(router)
	defer server.Close()

	t.Run("streams history and final summary for a finished job", func(t *testing.T) {
		job, err := manager.Start("doc-ws", 1)
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		waitForCompletion(t, job)

		wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/evaluations/" + job.ID + "/ws"
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("dialing websocket: %v", err)
		}
		defer conn.Close()
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))

		var sawProgress, sawSummary bool
		for {
			var frame struct {
				Type  string `json:"type"`
				Event struct {
					Percent int `json:"percent"`
				} `json:"event"`
				Summary *struct {
					Success bool `json:"success"`
				} `json:"summary"`
			}
			if err := conn.ReadJSON(&frame); err != nil {
				break
			}
			switch frame.Type {
			case "progress":
				sawProgress = true
			case "summary":
				sawSummary = true
				if frame.Summary == nil || !frame.Summary.Success {
					t.Errorf("summary frame = %+v, want success", frame.Summary)
				}
			}
			if sawSummary {
				break
			}
		}
		if !sawProgress {
			t.Error("no progress frames received")
		}
		if !sawSummary {
			t.Error("no summary frame received")
		}
	})

	t.Run("unknown job returns 404 before upgrading", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/v1/evaluations/no-such-job/ws")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})
}
