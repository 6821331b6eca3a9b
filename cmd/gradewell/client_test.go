// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func newTestClient(server *httptest.Server) *serviceClient {
	return &serviceClient{
		baseURL: server.URL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

func TestSubmit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/evaluations" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req["document_id"] != "roll-0142" {
			t.Errorf("document_id = %v", req["document_id"])
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{
			"job_id": "j-abc", "document_id": "roll-0142", "status": "running",
		})
	}))
	defer server.Close()

	resp, err := newTestClient(server).Submit("roll-0142", 12)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.JobID != "j-abc" || resp.Status != "running" {
		t.Errorf("response = %+v", resp)
	}
}

func TestSubmitServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "page_count must be between 1 and 200"})
	}))
	defer server.Close()

	_, err := newTestClient(server).Submit("roll-0142", 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "page_count") {
		t.Errorf("error %q does not carry the service message", err)
	}
}

func TestGetResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/evaluations/j-abc" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"job_id": "j-abc",
			"status": "completed",
			"summary": map[string]any{
				"job_id": "j-abc", "success": true,
				"total_score": 21.5, "total_max": 25.0,
			},
		})
	}))
	defer server.Close()

	resp, err := newTestClient(server).GetResult("j-abc")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if resp.Summary == nil || resp.Summary.TotalScore != 21.5 {
		t.Errorf("summary = %+v", resp.Summary)
	}
}

func TestGetResultNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Job not found"})
	}))
	defer server.Close()

	if _, err := newTestClient(server).GetResult("nope"); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/documents/roll-0142/evaluations" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"document_id": "roll-0142",
			"count":       2,
			"evaluations": []map[string]any{
				{"job_id": "j-1", "success": true},
				{"job_id": "j-2", "success": false},
			},
		})
	}))
	defer server.Close()

	resp, err := newTestClient(server).List("roll-0142")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if resp.Count != 2 || len(resp.Evaluations) != 2 {
		t.Errorf("response = %+v", resp)
	}
}

func TestHealth(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer healthy.Close()
	if err := newTestClient(healthy).Health(); err != nil {
		t.Errorf("Health on healthy service: %v", err)
	}

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()
	if err := newTestClient(broken).Health(); err == nil {
		t.Error("Health on broken service returned nil")
	}
}

func TestBatchManifestParsing(t *testing.T) {
	raw := `
booklets:
  - document_id: roll-0142
    page_count: 12
  - document_id: roll-0143
    page_count: 10
`
	var manifest BatchManifest
	if err := yaml.Unmarshal([]byte(raw), &manifest); err != nil {
		t.Fatalf("parsing manifest: %v", err)
	}
	if len(manifest.Booklets) != 2 {
		t.Fatalf("booklets = %d, want 2", len(manifest.Booklets))
	}
	if manifest.Booklets[0].DocumentID != "roll-0142" || manifest.Booklets[0].PageCount != 12 {
		t.Errorf("first booklet = %+v", manifest.Booklets[0])
	}
}
