// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package exemplar stores graded model answers in Weaviate and finds
// the ones most similar to a student's answer. The scorer's prompt can
// then cite how comparable answers were graded.
//
// The whole package is optional: when no Weaviate endpoint is
// configured the evaluator runs without exemplar comparison.
package exemplar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// ClassName is the Weaviate class holding graded exemplar answers.
const ClassName = "AnswerExemplar"

// Exemplar is one graded model answer.
type Exemplar struct {
	QuestionNumber int     `json:"question_number"`
	QuestionText   string  `json:"question_text"`
	AnswerText     string  `json:"answer_text"`
	Score          float64 `json:"score"`
	MaxScore       float64 `json:"max_score"`
	Source         string  `json:"source"`
}

// Match is a retrieved exemplar with its similarity certainty.
type Match struct {
	Exemplar
	Certainty float64 `json:"certainty"`
}

// Schema returns the AnswerExemplar class definition.
func Schema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       ClassName,
		Description: "A graded model answer used as a scoring reference.",
		Vectorizer:  "text2vec-transformers",
		Properties: []*models.Property{
			{
				Name:        "question_text",
				DataType:    []string{"text"},
				Description: "The exam question this exemplar answers.",
			},
			{
				Name:        "answer_text",
				DataType:    []string{"text"},
				Description: "The graded model answer.",
			},
			{
				Name:            "question_number",
				DataType:        []string{"int"},
				Description:     "Question number within its paper.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:        "score",
				DataType:    []string{"number"},
				Description: "Score the exemplar received.",
			},
			{
				Name:        "max_score",
				DataType:    []string{"number"},
				Description: "Maximum achievable score.",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "Where the exemplar came from (paper, year).",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
		},
	}
}

// Store wraps a Weaviate client for exemplar storage and retrieval.
type Store struct {
	client *weaviate.Client
	logger *slog.Logger
}

// NewStore creates a Store around an existing Weaviate client.
func NewStore(client *weaviate.Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("exemplar: weaviate client must not be nil")
	}
	return &Store{client: client, logger: slog.Default()}, nil
}

// EnsureSchema creates the AnswerExemplar class if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	class := Schema()
	_, err := s.client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
	if err == nil {
		s.logger.Info("Schema already exists", "class", class.Class)
		return nil
	}

	s.logger.Info("Schema not found, creating it...", "class", class.Class)
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("exemplar: create schema %s: %w", class.Class, err)
	}
	return nil
}

// Add stores one exemplar.
func (s *Store) Add(ctx context.Context, ex Exemplar) error {
	if ex.AnswerText == "" {
		return errors.New("exemplar: answer text must not be empty")
	}

	_, err := s.client.Data().Creator().
		WithClassName(ClassName).
		WithProperties(map[string]any{
			"question_number": ex.QuestionNumber,
			"question_text":   ex.QuestionText,
			"answer_text":     ex.AnswerText,
			"score":           ex.Score,
			"max_score":       ex.MaxScore,
			"source":          ex.Source,
		}).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("exemplar: store exemplar: %w", err)
	}
	return nil
}

// FindSimilar returns up to limit exemplars semantically closest to the
// given answer text, best match first.
func (s *Store) FindSimilar(ctx context.Context, answerText string, limit int) ([]Match, error) {
	if answerText == "" {
		return nil, errors.New("exemplar: answer text must not be empty")
	}
	if limit <= 0 {
		limit = 3
	}

	nearText := s.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{answerText})

	fields := []graphql.Field{
		{Name: "question_number"},
		{Name: "question_text"},
		{Name: "answer_text"},
		{Name: "score"},
		{Name: "max_score"},
		{Name: "source"},
		{Name: "_additional { certainty }"},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(ClassName).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("exemplar: similarity search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("exemplar: search error: %s", result.Errors[0].Message)
	}

	return parseMatches(result.Data)
}

// parseMatches unpacks the GraphQL response shape
// {"Get": {"AnswerExemplar": [ {...}, ... ]}}.
func parseMatches(data map[string]models.JSONObject) ([]Match, error) {
	get, ok := data["Get"].(map[string]any)
	if !ok {
		return nil, errors.New("exemplar: unexpected response shape (no Get)")
	}
	raw, ok := get[ClassName].([]any)
	if !ok {
		return nil, nil
	}

	matches := make([]Match, 0, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		m := Match{
			Exemplar: Exemplar{
				QuestionNumber: int(asFloat(obj["question_number"])),
				QuestionText:   asString(obj["question_text"]),
				AnswerText:     asString(obj["answer_text"]),
				Score:          asFloat(obj["score"]),
				MaxScore:       asFloat(obj["max_score"]),
				Source:         asString(obj["source"]),
			},
		}
		if add, ok := obj["_additional"].(map[string]any); ok {
			m.Certainty = asFloat(add["certainty"])
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}
