// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package booklet

import (
	"fmt"
	"strings"
)

// DefaultBackwardSearchPages bounds strategy 3's scan for the nearest
// earlier question. Large enough to step over a blank or instruction
// page, small enough not to jump a whole section.
const DefaultBackwardSearchPages = 5

// Strategy names, recorded on each LinkedFragment for diagnostics.
const (
	StrategyExplicit        = "explicit"
	StrategyPreviousPage    = "previous_page"
	StrategyBackwardSearch  = "backward_search"
	StrategyKeyword         = "keyword"
	StrategyRunningContext  = "running_context"
	StrategyHighestQuestion = "highest_question"
)

// KeywordRule is one entry of the content-keyword fallback table. The
// rule fires when any keyword appears in the fragment text; Resolve then
// picks a target question from the registry. Rules are tried in order
// and the first match wins.
type KeywordRule struct {
	Name     string
	Keywords []string
	Resolve  func(reg *Registry) (int, bool)
}

// DefaultKeywordRules returns the built-in subject table. It is a
// last-resort signal, deliberately small and explicit: constitutional
// and federalism terms point at the earliest low-numbered question,
// enforcement and investigation terms at question 2, judiciary terms at
// the lowest registered question.
func DefaultKeywordRules() []KeywordRule {
	return []KeywordRule{
		{
			Name:     "polity",
			Keywords: []string{"article", "constitution", "federal", "amendment"},
			Resolve: func(reg *Registry) (int, bool) {
				for _, n := range reg.Numbers() {
					if n <= 3 {
						return n, true
					}
				}
				return 0, false
			},
		},
		{
			Name:     "enforcement",
			Keywords: []string{"enforcement", "investigation", "money", "directorate"},
			Resolve: func(reg *Registry) (int, bool) {
				if reg.Record(2) != nil {
					return 2, true
				}
				return 0, false
			},
		},
		{
			Name:     "judiciary",
			Keywords: []string{"tribunal", "court", "judicial"},
			Resolve: func(reg *Registry) (int, bool) {
				nums := reg.Numbers()
				if len(nums) == 0 {
					return 0, false
				}
				return nums[0], true
			},
		},
	}
}

// Linker assigns every answer fragment to exactly one question using an
// ordered strategy cascade. The cascade order is a precedence policy,
// not an implementation detail: explicit links beat page context, page
// context beats content keywords, and the global fallback comes last.
//
// Linking is deterministic and replayable: given the same observation
// sequence it produces identical attributions on every run.
type Linker struct {
	backwardPages int
	keywordRules  []KeywordRule

	// minKeywordConfidence gates strategy 4: fragments whose oracle
	// confidence is below this level skip the keyword table and fall
	// through to the later strategies. The default (ConfidenceLow)
	// lets every fragment use it, matching the historical behavior;
	// raising it makes low-confidence fragments orphan sooner instead
	// of guessing.
	minKeywordConfidence Confidence
}

// LinkerOption configures a Linker.
type LinkerOption func(*Linker)

// WithBackwardSearchPages overrides how far strategy 3 scans.
func WithBackwardSearchPages(pages int) LinkerOption {
	return func(l *Linker) {
		if pages > 0 {
			l.backwardPages = pages
		}
	}
}

// WithKeywordRules replaces the content-keyword fallback table.
func WithKeywordRules(rules []KeywordRule) LinkerOption {
	return func(l *Linker) { l.keywordRules = rules }
}

// WithMinKeywordConfidence sets the confidence floor for strategy 4.
func WithMinKeywordConfidence(c Confidence) LinkerOption {
	return func(l *Linker) { l.minKeywordConfidence = c }
}

// NewLinker returns a Linker with the default cascade configuration.
func NewLinker(opts ...LinkerOption) *Linker {
	l := &Linker{
		backwardPages:        DefaultBackwardSearchPages,
		keywordRules:         DefaultKeywordRules(),
		minKeywordConfidence: ConfidenceLow,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LinkReport summarizes one linking pass. Every input fragment is
// accounted for exactly once: Attributed + len(Orphans) equals the
// total fragment count.
type LinkReport struct {
	Attributed int
	Orphans    []AnswerFragment
	Warnings   []string
}

// linkContext carries the running state of the cascade across fragments
// in page order.
type linkContext struct {
	// lastExplicit is the most recently explicitly linked question
	// number, used by strategy 5. Continuation attributions do not
	// update it, so a run of unlinked pages keeps pointing at the
	// same question.
	lastExplicit int
}

// strategy is one step of the cascade: (fragment, registry, context) ->
// optional question number. Expressing the cascade as an ordered slice
// makes reordering or adding strategies a data change.
type strategy struct {
	name string
	fn   func(frag AnswerFragment, reg *Registry, ctx *linkContext) (int, bool)
}

func (l *Linker) cascade() []strategy {
	return []strategy{
		{StrategyExplicit, func(frag AnswerFragment, _ *Registry, _ *linkContext) (int, bool) {
			if frag.LinkedQuestion > 0 {
				return frag.LinkedQuestion, true
			}
			return 0, false
		}},
		{StrategyPreviousPage, func(frag AnswerFragment, reg *Registry, _ *linkContext) (int, bool) {
			return reg.QuestionOnPage(frag.SourcePage - 1)
		}},
		{StrategyBackwardSearch, func(frag AnswerFragment, reg *Registry, _ *linkContext) (int, bool) {
			for offset := 2; offset <= l.backwardPages; offset++ {
				if n, ok := reg.QuestionOnPage(frag.SourcePage - offset); ok {
					return n, true
				}
			}
			return 0, false
		}},
		{StrategyKeyword, func(frag AnswerFragment, reg *Registry, _ *linkContext) (int, bool) {
			if frag.Confidence < l.minKeywordConfidence {
				return 0, false
			}
			text := strings.ToLower(frag.Text)
			for _, rule := range l.keywordRules {
				for _, kw := range rule.Keywords {
					if strings.Contains(text, kw) {
						return rule.Resolve(reg)
					}
				}
			}
			return 0, false
		}},
		{StrategyRunningContext, func(_ AnswerFragment, _ *Registry, ctx *linkContext) (int, bool) {
			if ctx.lastExplicit > 0 {
				return ctx.lastExplicit, true
			}
			return 0, false
		}},
		{StrategyHighestQuestion, func(_ AnswerFragment, reg *Registry, _ *linkContext) (int, bool) {
			if n := reg.MaxNumber(); n > 0 {
				return n, true
			}
			return 0, false
		}},
	}
}

// Link attributes every fragment in the observations to a question
// record in the registry, in page order. Fragments no strategy can
// place land in the report's orphan bucket with a warning; they are
// never silently dropped.
//
// An explicit link to a question number the registry has never seen
// registers a synthetic marker for that number rather than discarding
// the fragment, so the no-loss invariant holds even when the oracle
// reads a number on an answer but missed the question heading.
func (l *Linker) Link(observations []PageObservation, reg *Registry) *LinkReport {
	report := &LinkReport{}
	ctx := &linkContext{}
	cascade := l.cascade()

	for _, obs := range observations {
		for _, frag := range obs.Fragments {
			number, strategyName := 0, ""
			for _, s := range cascade {
				if n, ok := s.fn(frag, reg, ctx); ok {
					number, strategyName = n, s.name
					break
				}
			}

			if number == 0 {
				report.Orphans = append(report.Orphans, frag)
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("page %d: fragment could not be attributed to any question", frag.SourcePage))
				continue
			}

			if strategyName == StrategyExplicit {
				ctx.lastExplicit = number
				if reg.Record(number) == nil {
					reg.Register(QuestionMarker{
						Number:     number,
						SourcePage: frag.SourcePage,
						Confidence: frag.Confidence,
					})
					report.Warnings = append(report.Warnings,
						fmt.Sprintf("page %d: fragment explicitly linked to question %d which has no observed heading; registered a synthetic marker", frag.SourcePage, number))
				}
			}

			rec := reg.Record(number)
			rec.Fragments = append(rec.Fragments, LinkedFragment{
				AnswerFragment: frag,
				Question:       number,
				Continuation:   strategyName != StrategyExplicit,
				Strategy:       strategyName,
			})
			report.Attributed++
		}
	}
	return report
}
