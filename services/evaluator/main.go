// Copyright (C) 2025 Gradewell Labs (oss@gradewell.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/gradewell/gradewell/services/evaluator/handlers"
	"github.com/gradewell/gradewell/services/evaluator/observability"
	"github.com/gradewell/gradewell/services/evaluator/routes"
	"github.com/gradewell/gradewell/services/exemplar"
	"github.com/gradewell/gradewell/services/oracle"
	"github.com/gradewell/gradewell/services/pipeline"
	"github.com/gradewell/gradewell/services/scorer"
	"github.com/gradewell/gradewell/services/storage"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "gradewell-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("evaluator-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// initExemplars connects the optional Weaviate-backed exemplar store.
// Returns nil when the service should run without similarity search.
func initExemplars() *exemplar.Store {
	weaviateURL := os.Getenv("WEAVIATE_SERVICE_URL")
	// Sanitize: Trim quotes and whitespace just in case Podman passes them literally
	weaviateURL = strings.Trim(weaviateURL, "\"' ")

	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("WEAVIATE_SERVICE_URL not set or empty. Running without exemplar search.")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("WEAVIATE_SERVICE_URL is invalid. Running without exemplar search.",
			"url", weaviateURL, "error", err)
		return nil
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		slog.Error("Failed to create Weaviate client", "error", err)
		return nil
	}

	store, err := exemplar.NewStore(client)
	if err != nil {
		slog.Error("Failed to create exemplar store", "error", err)
		return nil
	}
	if err := store.EnsureSchema(context.Background()); err != nil {
		slog.Error("Failed to ensure exemplar schema. Running without exemplar search.", "error", err)
		return nil
	}
	return store
}

func main() {
	port := os.Getenv("EVALUATOR_PORT")
	if port == "" {
		port = "12410"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	metrics := observability.InitMetrics()

	dataDir := os.Getenv("GRADEWELL_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}

	store, err := storage.Open(storage.DefaultConfig(filepath.Join(dataDir, "summaries")))
	if err != nil {
		log.Fatalf("FATAL: Could not open the summary store: %v", err)
	}
	defer store.Close()

	pagesDir := os.Getenv("GRADEWELL_PAGES_DIR")
	if pagesDir == "" {
		pagesDir = filepath.Join(dataDir, "pages")
	}
	if err := os.MkdirAll(pagesDir, 0o750); err != nil {
		log.Fatalf("FATAL: Could not create the pages directory: %v", err)
	}
	source, err := oracle.NewDirectorySource(pagesDir)
	if err != nil {
		log.Fatalf("FATAL: Could not open the page image source: %v", err)
	}

	log.Println("Configuring the vision and scoring clients")
	oracleClient, err := oracle.NewClient(source)
	if err != nil {
		log.Fatalf("FATAL: Could not configure the vision client: %v", err)
	}
	scorerClient, err := scorer.NewClient()
	if err != nil {
		log.Fatalf("FATAL: Could not configure the scoring client: %v", err)
	}

	checkpointDir := os.Getenv("GRADEWELL_CHECKPOINT_DIR")
	if checkpointDir == "" {
		checkpointDir = filepath.Join(dataDir, "checkpoints")
	}
	if err := os.MkdirAll(checkpointDir, 0o750); err != nil {
		log.Fatalf("FATAL: Could not create the checkpoint directory: %v", err)
	}

	orchestrator, err := pipeline.NewOrchestrator(oracleClient, scorerClient, store,
		pipeline.WithLogger(logger),
		pipeline.WithCheckpointDir(checkpointDir))
	if err != nil {
		log.Fatalf("FATAL: Could not build the pipeline: %v", err)
	}

	manager, err := handlers.NewJobManager(orchestrator, store,
		handlers.WithManagerLogger(logger),
		handlers.WithMetrics(metrics))
	if err != nil {
		log.Fatalf("FATAL: Could not build the job manager: %v", err)
	}

	if resumed := manager.Recover(checkpointDir); resumed > 0 {
		logger.Info("resumed interrupted evaluations", slog.Int("count", resumed))
	}

	exemplars := initExemplars()

	router := gin.Default()
	router.Use(otelgin.Middleware("evaluator-service"))

	routes.SetupRoutes(router, manager, store, exemplars, metrics)
	log.Println("started up the container")

	log.Println("Starting the evaluator server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
