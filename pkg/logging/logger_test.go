// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLevelString(t *testing.T) {
	cases := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tc := range cases {
		if got := tc.level.String(); got != tc.want {
			t.Errorf("Level(%d).String() = %q, want %q", tc.level, got, tc.want)
		}
	}
}

func TestFileLogging(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  dir,
		Service: "cli",
		Quiet:   true,
	})

	logger.Info("evaluation submitted", "job_id", "abc123")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	filename := "cli_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "evaluation submitted" {
		t.Errorf("msg = %v, want evaluation submitted", entry["msg"])
	}
	if entry["job_id"] != "abc123" {
		t.Errorf("job_id = %v, want abc123", entry["job_id"])
	}
	if entry["service"] != "cli" {
		t.Errorf("service = %v, want cli", entry["service"])
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelWarn,
		LogDir:  dir,
		Service: "cli",
		Quiet:   true,
	})

	logger.Info("filtered out")
	logger.Warn("kept")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	filename := "cli_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	content := string(data)
	if strings.Contains(content, "filtered out") {
		t.Error("Info message should have been filtered at Warn level")
	}
	if !strings.Contains(content, "kept") {
		t.Error("Warn message is missing")
	}
}

func TestExporterReceivesEntries(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelInfo,
		Service:  "cli",
		Quiet:    true,
		Exporter: exporter,
	})

	logger.Error("request failed", "status", 500)
	logger.Close()

	// Export runs on a goroutine; give it a moment.
	deadline := time.After(2 * time.Second)
	for len(exporter.Entries()) == 0 {
		select {
		case <-deadline:
			t.Fatal("exporter never received the entry")
		case <-time.After(10 * time.Millisecond):
		}
	}

	entries := exporter.Entries()
	if entries[0].Message != "request failed" {
		t.Errorf("Message = %q, want request failed", entries[0].Message)
	}
	if entries[0].Level != LevelError {
		t.Errorf("Level = %v, want LevelError", entries[0].Level)
	}
	if entries[0].Attrs["status"] != 500 {
		t.Errorf("Attrs[status] = %v, want 500", entries[0].Attrs["status"])
	}
}

func TestWithAddsAttributes(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  dir,
		Service: "cli",
		Quiet:   true,
	})

	child := logger.With("document_id", "doc-7")
	child.Info("page analyzed")
	logger.Close()

	filename := "cli_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), `"document_id":"doc-7"`) {
		t.Errorf("child attribute missing from log: %s", data)
	}
}

func TestArgsToMap(t *testing.T) {
	got := argsToMap([]any{"a", 1, "b", "two", "dangling"})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got["a"] != 1 || got["b"] != "two" {
		t.Errorf("map = %v", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandPath("~/logs"); got != filepath.Join(home, "logs") {
		t.Errorf("expandPath = %q", got)
	}
	if got := expandPath("/var/log"); got != "/var/log" {
		t.Errorf("absolute path changed: %q", got)
	}
}
