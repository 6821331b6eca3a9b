// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import "errors"

var (
	// ErrNilContext indicates a nil context was passed to a public method.
	ErrNilContext = errors.New("pipeline: context must not be nil")

	// ErrInvalidInput indicates invalid input parameters.
	ErrInvalidInput = errors.New("pipeline: invalid input")

	// ErrUnknownPhase indicates a phase name that is not part of the
	// closed phase set.
	ErrUnknownPhase = errors.New("pipeline: unknown phase")

	// ErrCheckpointCorrupt indicates checkpoint checksum verification failed.
	ErrCheckpointCorrupt = errors.New("pipeline: checkpoint corrupt (checksum mismatch)")

	// ErrCheckpointVersionMismatch indicates the checkpoint was written
	// by an incompatible format version.
	ErrCheckpointVersionMismatch = errors.New("pipeline: checkpoint version mismatch")
)
