// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package booklet

import "sort"

// Registry accumulates question markers across pages into a
// deduplicated, page-ordered set. One record exists per distinct
// question number; the first observation wins and later duplicates are
// ignored.
//
// Registry is not safe for concurrent use. A registry belongs to a
// single job and is populated before linking starts.
type Registry struct {
	records map[int]*QuestionRecord
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[int]*QuestionRecord)}
}

// BuildRegistry registers every question marker found in the given
// observations, in page order. A page with no questions contributes
// nothing.
func BuildRegistry(observations []PageObservation) *Registry {
	reg := NewRegistry()
	for _, obs := range observations {
		for _, q := range obs.Questions {
			reg.Register(q)
		}
	}
	return reg
}

// Register adds a marker if its number is not yet known. Returns false
// when the number was already registered (the duplicate is dropped).
// Markers without a positive number are ignored.
func (r *Registry) Register(marker QuestionMarker) bool {
	if marker.Number <= 0 {
		return false
	}
	if _, ok := r.records[marker.Number]; ok {
		return false
	}
	r.records[marker.Number] = &QuestionRecord{Marker: marker}
	return true
}

// Record returns the record for a question number, or nil.
func (r *Registry) Record(number int) *QuestionRecord {
	return r.records[number]
}

// Len returns the number of distinct registered questions.
func (r *Registry) Len() int {
	return len(r.records)
}

// All returns the records ordered by question number.
func (r *Registry) All() []*QuestionRecord {
	out := make([]*QuestionRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Marker.Number < out[j].Marker.Number
	})
	return out
}

// Numbers returns the registered question numbers in ascending order.
func (r *Registry) Numbers() []int {
	nums := make([]int, 0, len(r.records))
	for n := range r.records {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// MaxNumber returns the highest registered question number, or 0 when
// the registry is empty.
func (r *Registry) MaxNumber() int {
	max := 0
	for n := range r.records {
		if n > max {
			max = n
		}
	}
	return max
}

// QuestionOnPage returns the greatest question number first seen on
// exactly the given page.
func (r *Registry) QuestionOnPage(page int) (int, bool) {
	best := 0
	for n, rec := range r.records {
		if rec.Marker.SourcePage == page && n > best {
			best = n
		}
	}
	return best, best > 0
}

// LastQuestionOnOrBefore returns the greatest registered question
// number whose source page is <= page. It is a page-context lookup for
// callers attributing unnumbered content outside the linking cascade;
// the cascade itself keys on exact pages (QuestionOnPage), which picks
// the nearest question rather than the highest-numbered one when a
// booklet answers questions out of order.
func (r *Registry) LastQuestionOnOrBefore(page int) (int, bool) {
	best := 0
	for n, rec := range r.records {
		if rec.Marker.SourcePage <= page && n > best {
			best = n
		}
	}
	return best, best > 0
}
