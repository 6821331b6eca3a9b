// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gradewell/gradewell/services/evaluator/handlers"
	"github.com/gradewell/gradewell/services/evaluator/observability"
	"github.com/gradewell/gradewell/services/exemplar"
)

func SetupRoutes(router *gin.Engine, manager *handlers.JobManager, store handlers.SummaryStore,
	exemplars *exemplar.Store, metrics *observability.EvaluatorMetrics) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		evaluations := v1.Group("/evaluations")
		{
			evaluations.POST("", handlers.SubmitEvaluation(manager))
			evaluations.GET("/:jobId", handlers.GetEvaluation(manager))
			evaluations.GET("/:jobId/ws", handlers.StreamEvaluation(manager, metrics))
		}
		v1.GET("/documents/:documentId/evaluations", handlers.ListDocumentEvaluations(store))

		// Exemplar routes only exist when Weaviate is wired in.
		if exemplars != nil {
			v1.POST("/exemplars", handlers.AddExemplar(exemplars))
			v1.GET("/exemplars/search", handlers.SearchExemplars(exemplars))
		}
	}
}
