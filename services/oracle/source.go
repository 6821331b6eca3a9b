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
	"fmt"
	"os"
	"path/filepath"
)

// ErrPageNotFound is returned when no scanned image exists for the
// requested document page.
var ErrPageNotFound = errors.New("oracle: page image not found")

// DirectorySource serves page images from a directory tree laid out as
// <root>/<documentID>/page-<n>.png. Scanner output is dropped into this
// layout by the ingestion scripts, one directory per booklet.
type DirectorySource struct {
	root string
}

// NewDirectorySource validates that root exists and is a directory.
func NewDirectorySource(root string) (*DirectorySource, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("oracle: page image root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("oracle: page image root %q is not a directory", root)
	}
	return &DirectorySource{root: root}, nil
}

// PageImage reads the scanned image for one page. Page numbers are
// 1-based, matching the booklet's physical page order.
func (s *DirectorySource) PageImage(ctx context.Context, documentID string, page int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 1 {
		return nil, fmt.Errorf("oracle: invalid page number %d", page)
	}
	// Reject IDs that could escape the root.
	if documentID != filepath.Base(documentID) || documentID == "." || documentID == ".." {
		return nil, fmt.Errorf("oracle: invalid document id %q", documentID)
	}

	path := filepath.Join(s.root, documentID, fmt.Sprintf("page-%d.png", page))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s page %d", ErrPageNotFound, documentID, page)
		}
		return nil, fmt.Errorf("oracle: reading page image: %w", err)
	}
	return data, nil
}
