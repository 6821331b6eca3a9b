// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gradewell/gradewell/services/pipeline"
)

// serviceClient talks to the evaluator service's REST and WebSocket API.
type serviceClient struct {
	baseURL string
	http    *http.Client
}

func newServiceClient() *serviceClient {
	return &serviceClient{
		baseURL: strings.TrimRight(config.ServiceURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type submitResponse struct {
	JobID      string `json:"job_id"`
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

type jobResponse struct {
	JobID   string               `json:"job_id"`
	Status  string               `json:"status"`
	Summary *pipeline.JobSummary `json:"summary"`
}

type listResponse struct {
	DocumentID  string                 `json:"document_id"`
	Count       int                    `json:"count"`
	Evaluations []*pipeline.JobSummary `json:"evaluations"`
}

func (c *serviceClient) decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("service returned %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("service returned %d", resp.StatusCode)
}

// Submit posts a booklet for evaluation and returns the accepted job.
func (c *serviceClient) Submit(documentID string, pageCount int) (*submitResponse, error) {
	payload, err := json.Marshal(map[string]any{
		"document_id": documentID,
		"page_count":  pageCount,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Post(c.baseURL+"/v1/evaluations", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("submitting evaluation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, c.decodeError(resp)
	}
	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &out, nil
}

// GetResult fetches one job's status and, when finished, its summary.
func (c *serviceClient) GetResult(jobID string) (*jobResponse, error) {
	resp, err := c.http.Get(c.baseURL + "/v1/evaluations/" + jobID)
	if err != nil {
		return nil, fmt.Errorf("fetching result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.decodeError(resp)
	}
	var out jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &out, nil
}

// List fetches every stored evaluation for a document.
func (c *serviceClient) List(documentID string) (*listResponse, error) {
	resp, err := c.http.Get(c.baseURL + "/v1/documents/" + documentID + "/evaluations")
	if err != nil {
		return nil, fmt.Errorf("listing evaluations: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.decodeError(resp)
	}
	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &out, nil
}

// Health checks service liveness.
func (c *serviceClient) Health() error {
	resp, err := c.http.Get(c.baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.decodeError(resp)
	}
	return nil
}

// streamFrame is one WebSocket message from the progress stream.
type streamFrame struct {
	Type    string                 `json:"type"`
	Event   pipeline.ProgressEvent `json:"event"`
	Summary *pipeline.JobSummary   `json:"summary"`
}

// Watch attaches to a job's progress stream and invokes onEvent for
// every progress update. It returns the final summary when the server
// closes the stream.
func (c *serviceClient) Watch(jobID string, onEvent func(pipeline.ProgressEvent)) (*pipeline.JobSummary, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/v1/evaluations/" + jobID + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to progress stream: %w", err)
	}
	defer conn.Close()

	for {
		var frame streamFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil, fmt.Errorf("stream closed without a summary")
			}
			return nil, fmt.Errorf("reading progress stream: %w", err)
		}
		switch frame.Type {
		case "progress":
			if onEvent != nil {
				onEvent(frame.Event)
			}
		case "summary":
			return frame.Summary, nil
		}
	}
}
