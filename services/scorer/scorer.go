// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package scorer evaluates one consolidated answer at a time against
// its question using a chat model. It implements pipeline.Scorer.
package scorer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gradewell/gradewell/services/booklet"
	"github.com/gradewell/gradewell/services/pipeline"

	"github.com/sashabaranov/go-openai"
)

// Client scores answers via an OpenAI-compatible chat model.
type Client struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewClient builds a scorer. The API key resolution matches the vision
// oracle: OPENAI_API_KEY or the /run/secrets/openai_api_key file. The
// model defaults to gpt-4o-mini (GRADEWELL_SCORER_MODEL overrides).
func NewClient() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}

	model := os.Getenv("GRADEWELL_SCORER_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("GRADEWELL_SCORER_MODEL not set, defaulting to gpt-4o-mini")
	}

	return &Client{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: slog.Default(),
	}, nil
}

const systemPrompt = `You are an experienced examiner grading descriptive exam answers.
Score the answer against the question on content accuracy, structure, and coverage.
Respond with a JSON object only:
{"score": <number>, "max_score": <number>, "feedback": "<2-4 sentences of specific feedback>"}`

// Score evaluates one consolidated answer. The returned result carries
// the model's score clamped to [0, max] and its feedback text.
func (c *Client) Score(ctx context.Context, answer booklet.ConsolidatedAnswer) (*pipeline.EvaluationResult, error) {
	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(answer)},
		},
	})
	if err != nil {
		c.logger.Error("scoring call failed",
			slog.Int("question", answer.Question.Number),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("scorer: question %d: %w", answer.Question.Number, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("scorer: question %d: model returned no choices", answer.Question.Number)
	}

	result, err := ParseResult(resp.Choices[0].Message.Content, answer.Question)
	if err != nil {
		return nil, fmt.Errorf("scorer: question %d: %w", answer.Question.Number, err)
	}
	result.ProcessingTime = time.Since(start)

	c.logger.Debug("question scored",
		slog.Int("question", answer.Question.Number),
		slog.Float64("score", result.Score),
		slog.Float64("max_score", result.MaxScore),
		slog.Duration("duration", result.ProcessingTime),
	)
	return result, nil
}

// buildPrompt renders the question and the consolidated answer for the
// examiner model, including the metadata the consolidator aggregated.
func buildPrompt(answer booklet.ConsolidatedAnswer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question %d", answer.Question.Number)
	if answer.Question.Text != "" {
		fmt.Fprintf(&b, ": %s", answer.Question.Text)
	}
	b.WriteString("\n")
	if answer.Question.Marks > 0 {
		fmt.Fprintf(&b, "Maximum marks: %d\n", answer.Question.Marks)
	}
	if answer.Question.WordLimit > 0 {
		fmt.Fprintf(&b, "Word limit: %d\n", answer.Question.WordLimit)
	}
	if len(answer.VisualElements) > 0 {
		fmt.Fprintf(&b, "The answer includes: %s\n", strings.Join(answer.VisualElements, ", "))
	}
	if answer.Handwriting != "" {
		fmt.Fprintf(&b, "Handwriting quality: %s\n", answer.Handwriting)
	}
	fmt.Fprintf(&b, "\nStudent's answer (spanning %d page(s)):\n%s\n", len(answer.Pages), answer.Text)
	return b.String()
}
