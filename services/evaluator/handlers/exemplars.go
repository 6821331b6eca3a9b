// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gradewell/gradewell/services/exemplar"
)

type AddExemplarRequest struct {
	QuestionNumber int     `json:"question_number" binding:"required"`
	QuestionText   string  `json:"question_text"`
	AnswerText     string  `json:"answer_text" binding:"required"`
	Score          float64 `json:"score"`
	MaxScore       float64 `json:"max_score" binding:"required"`
	Source         string  `json:"source"`
}

// AddExemplar stores a graded reference answer for similarity search.
func AddExemplar(store *exemplar.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddExemplarRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		ex := exemplar.Exemplar{
			QuestionNumber: req.QuestionNumber,
			QuestionText:   req.QuestionText,
			AnswerText:     req.AnswerText,
			Score:          req.Score,
			MaxScore:       req.MaxScore,
			Source:         req.Source,
		}
		if err := store.Add(c.Request.Context(), ex); err != nil {
			slog.Error("Failed to store exemplar", "question", req.QuestionNumber, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"status": "success"})
	}
}

// SearchExemplars finds graded answers similar to the query text.
func SearchExemplars(store *exemplar.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Query("query")
		if query == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter is required"})
			return
		}
		limit := 5
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 50 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 50"})
				return
			}
			limit = n
		}

		matches, err := store.FindSimilar(c.Request.Context(), query, limit)
		if err != nil {
			slog.Error("Exemplar search failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search exemplars"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": len(matches), "matches": matches})
	}
}
