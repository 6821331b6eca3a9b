// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package oracle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDirectorySource(t *testing.T) {
	root := t.TempDir()
	docDir := filepath.Join(root, "booklet-7")
	if err := os.MkdirAll(docDir, 0o750); err != nil {
		t.Fatal(err)
	}
	want := []byte("fake-png-bytes")
	if err := os.WriteFile(filepath.Join(docDir, "page-1.png"), want, 0o600); err != nil {
		t.Fatal(err)
	}

	src, err := NewDirectorySource(root)
	if err != nil {
		t.Fatalf("NewDirectorySource: %v", err)
	}
	ctx := context.Background()

	t.Run("reads existing page", func(t *testing.T) {
		got, err := src.PageImage(ctx, "booklet-7", 1)
		if err != nil {
			t.Fatalf("PageImage: %v", err)
		}
		if string(got) != string(want) {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("missing page returns ErrPageNotFound", func(t *testing.T) {
		_, err := src.PageImage(ctx, "booklet-7", 2)
		if !errors.Is(err, ErrPageNotFound) {
			t.Errorf("got %v, want ErrPageNotFound", err)
		}
	})

	t.Run("rejects traversal in document id", func(t *testing.T) {
		_, err := src.PageImage(ctx, "../etc", 1)
		if err == nil {
			t.Error("expected error for traversal id")
		}
	})

	t.Run("rejects page zero", func(t *testing.T) {
		_, err := src.PageImage(ctx, "booklet-7", 0)
		if err == nil {
			t.Error("expected error for page 0")
		}
	})

	t.Run("root must exist", func(t *testing.T) {
		if _, err := NewDirectorySource(filepath.Join(root, "nope")); err == nil {
			t.Error("expected error for missing root")
		}
	})
}
