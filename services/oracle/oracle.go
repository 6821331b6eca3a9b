// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package oracle implements the page recognition collaborator on top of
// an OpenAI-compatible vision model. It owns the rate limiting the
// vision backends demand: calls for one document are serialized with a
// fixed inter-page interval.
package oracle

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gradewell/gradewell/services/booklet"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// DefaultPageInterval is the minimum spacing between page analysis
// calls. Vision endpoints throttle aggressively; pacing requests is a
// backpressure policy, not an optimization target.
const DefaultPageInterval = 2 * time.Second

// ImageSource resolves a document page to its scanned image bytes
// (PNG or JPEG).
type ImageSource interface {
	PageImage(ctx context.Context, documentID string, page int) ([]byte, error)
}

// Client calls a vision model once per page and parses the structured
// observations out of its reply. It implements pipeline.Oracle.
type Client struct {
	client  *openai.Client
	model   string
	source  ImageSource
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient builds a vision oracle. The API key comes from
// OPENAI_API_KEY or, failing that, the /run/secrets/openai_api_key
// file. The model defaults to gpt-4o (GRADEWELL_VISION_MODEL overrides)
// and the page interval to 2s (GRADEWELL_PAGE_INTERVAL, a Go duration).
func NewClient(source ImageSource) (*Client, error) {
	if source == nil {
		return nil, fmt.Errorf("oracle: image source must not be nil")
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from secrets")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}

	model := os.Getenv("GRADEWELL_VISION_MODEL")
	if model == "" {
		model = "gpt-4o"
	}

	interval := DefaultPageInterval
	if raw := os.Getenv("GRADEWELL_PAGE_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			interval = d
		} else {
			slog.Warn("invalid GRADEWELL_PAGE_INTERVAL, using default", "value", raw)
		}
	}

	slog.Info("Initializing vision oracle", "model", model, "page_interval", interval)
	return &Client{
		client:  openai.NewClient(apiKey),
		model:   model,
		source:  source,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  slog.Default(),
	}, nil
}

// pagePrompt asks the model for the page's structure in the JSON wire
// format ParseObservation understands.
const pagePrompt = `You are reading one page of a handwritten exam answer booklet.
Report everything visible on this page as JSON with exactly this shape:

{
  "questions_found": [
    {"question_number": 1, "question_text": "...", "marks": 10, "word_limit": 150, "confidence": "high"}
  ],
  "answers_found": [
    {"question_number": 1, "answer_text": "...", "confidence": "medium",
     "visual_elements": ["diagram"], "handwriting_quality": "legible", "is_explicit_link": true}
  ]
}

Rules:
- Transcribe answer text faithfully, preserving the student's wording.
- question_number in answers_found is the number written by the student next to
  the answer. If no number is visible, use null and set is_explicit_link to false.
- confidence is "low", "medium" or "high".
- A page may contain questions only, answers only, both, or neither.
Respond with the JSON object only.`

// AnalyzePage fetches the page image, waits out the rate limiter, and
// asks the vision model for that page's observations.
func (c *Client) AnalyzePage(ctx context.Context, documentID string, page int) (*booklet.PageObservation, error) {
	image, err := c.source.PageImage(ctx, documentID, page)
	if err != nil {
		return nil, fmt.Errorf("oracle: page %d image: %w", page, err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: pagePrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		c.logger.Error("vision call failed",
			slog.String("document_id", documentID),
			slog.Int("page", page),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("oracle: page %d: %w", page, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("oracle: page %d: model returned no choices", page)
	}

	obs, err := ParseObservation(resp.Choices[0].Message.Content, page)
	if err != nil {
		return nil, fmt.Errorf("oracle: page %d: %w", page, err)
	}

	c.logger.Debug("page analyzed",
		slog.String("document_id", documentID),
		slog.Int("page", page),
		slog.Int("questions", len(obs.Questions)),
		slog.Int("fragments", len(obs.Fragments)),
		slog.Duration("duration", time.Since(start)),
	)
	return obs, nil
}
