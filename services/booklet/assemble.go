// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package booklet

// FallbackQuestionText is the synthetic question registered when a
// booklet yields answer fragments but no recognizable question headings.
// Scoring such a booklet against a single catch-all question is more
// useful than failing the whole job.
const FallbackQuestionText = "General answer analysis"

// AssemblyReport aggregates the findings of a full assembly pass.
type AssemblyReport struct {
	QuestionsFound int
	Attributed     int
	Orphans        []AnswerFragment
	Warnings       []string

	// FallbackQuestion is true when no question headings were observed
	// and the synthetic catch-all question was registered instead.
	FallbackQuestion bool
}

// Assembler runs the full reconstruction: registry build, fragment
// linking, and consolidation. It is the single entry point the pipeline
// uses; the individual stages stay exported for tests and tooling.
type Assembler struct {
	linker       *Linker
	consolidator *Consolidator
}

// NewAssembler returns an Assembler. Options are forwarded to the
// underlying Linker.
func NewAssembler(opts ...LinkerOption) *Assembler {
	return &Assembler{
		linker:       NewLinker(opts...),
		consolidator: NewConsolidator(),
	}
}

// Assemble reconstructs consolidated answers from raw page
// observations. Returns ErrNoObservations when the input is empty.
//
// When fragments exist but no page registered a question, a synthetic
// question 1 is registered so the fragments still have a home.
func (a *Assembler) Assemble(observations []PageObservation) ([]ConsolidatedAnswer, *AssemblyReport, error) {
	if len(observations) == 0 {
		return nil, nil, ErrNoObservations
	}

	reg := BuildRegistry(observations)
	report := &AssemblyReport{QuestionsFound: reg.Len()}

	if reg.Len() == 0 {
		firstPage := 0
		hasFragments := false
		for _, obs := range observations {
			if len(obs.Fragments) > 0 {
				hasFragments = true
				firstPage = obs.Fragments[0].SourcePage
				break
			}
		}
		if hasFragments {
			reg.Register(QuestionMarker{
				Number:     1,
				Text:       FallbackQuestionText,
				SourcePage: firstPage,
			})
			report.FallbackQuestion = true
			report.Warnings = append(report.Warnings,
				"no question headings observed; registered a synthetic general-analysis question")
		}
	}

	linkReport := a.linker.Link(observations, reg)
	report.Attributed = linkReport.Attributed
	report.Orphans = linkReport.Orphans
	report.Warnings = append(report.Warnings, linkReport.Warnings...)
	// The linker may have registered synthetic markers for explicit
	// links to unseen numbers.
	report.QuestionsFound = reg.Len()

	answers, consReport := a.consolidator.Consolidate(reg)
	report.Warnings = append(report.Warnings, consReport.Warnings...)
	return answers, report, nil
}
