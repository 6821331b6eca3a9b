// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package booklet

import (
	"strings"
	"unicode"
)

// ExpectedPages maps a question's mark allocation to the number of
// contiguous pages its answer is expected to span. This is a heuristic
// used to bound the linker's backward search and flag suspicious spans;
// it is never a hard constraint. A question may legitimately span fewer
// or more pages, in which case the consolidator emits a warning, not an
// error.
//
// Missing marks (0) and mid-range values fall back to a single page.
func ExpectedPages(marks int) int {
	switch {
	case marks >= 25:
		return 5
	case marks == 20:
		return 4
	case marks == 15:
		return 3
	case marks == 10:
		return 2
	default:
		return 1
	}
}

// ParseMarks extracts a mark allocation from a free-form oracle string
// such as "10", "15 marks" or "(20)". Returns 0 when no digits are
// present.
func ParseMarks(s string) int {
	n := 0
	seen := false
	for _, r := range s {
		if unicode.IsDigit(r) {
			n = n*10 + int(r-'0')
			seen = true
		} else if seen {
			break
		}
	}
	return n
}

// StripFence removes a surrounding markdown code fence from a model
// reply, if any. Vision and scoring models both wrap JSON payloads in
// ```json fences often enough that every response parser needs this.
func StripFence(raw string) string {
	body := strings.TrimSpace(raw)
	if !strings.HasPrefix(body, "```") {
		return body
	}
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	if i := strings.LastIndex(body, "```"); i >= 0 {
		body = body[:i]
	}
	return strings.TrimSpace(body)
}
