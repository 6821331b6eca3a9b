// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package booklet

import "errors"

// ErrNoObservations indicates an assembly pass was requested with no
// page observations at all.
var ErrNoObservations = errors.New("booklet: no page observations")
