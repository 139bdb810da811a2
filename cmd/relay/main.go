// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command relay starts the Relay orchestrator API server.
//
// Relay turns natural-language task requests into executable plans:
//   - Plan parsing (LLM-backed, with a deterministic rule fallback)
//   - A layered tool registry (user-supplied, synthesized, built-in)
//   - On-demand tool synthesis for names no plan has used before
//   - Streaming execution events over NDJSON and WebSocket
//
// Usage:
//
//	go run ./cmd/relay
//	go run ./cmd/relay -port 9090
//
// With a model backend (plan parsing, chat replies, synthesis):
//
//	RELAY_SYNTH_API_KEY=sk-... RELAY_SYNTH_MODEL=gpt-4o-mini go run ./cmd/relay
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8085/v1/orchestrator/health
//
//	# List tools
//	curl http://localhost:8085/v1/orchestrator/tools | jq
//
//	# Run a task, streaming events
//	curl -N -X POST http://localhost:8085/v1/orchestrator/run \
//	  -H "Content-Type: application/json" \
//	  -d '{"user_text": "search for Go schedulers and write a report"}'
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/AleutianAI/relay/services/orchestrator"
	"github.com/AleutianAI/relay/services/orchestrator/config"
)

func main() {
	portFlag := flag.Int("port", 0, "Port to listen on (overrides RELAY_PORT)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// W3C TraceContext propagation so events correlate with caller traces.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Configuration invalid", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *portFlag > 0 {
		cfg.Port = *portFlag
	}

	ctx := context.Background()
	svc, err := orchestrator.NewService(ctx, cfg)
	if err != nil {
		slog.Error("Failed to build orchestrator service", slog.String("error", err.Error()))
		os.Exit(1)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("relay-orchestrator"))
	if *debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	orchestrator.RegisterRoutes(v1, orchestrator.NewHandlers(svc))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	printBanner(cfg)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("Shutting down Relay server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Graceful shutdown failed", slog.String("error", err.Error()))
		}
		if err := svc.Close(); err != nil {
			slog.Warn("Failed to close catalog", slog.String("error", err.Error()))
		}
	}()

	slog.Info("Starting Relay server", slog.String("address", server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func printBanner(cfg *config.Config) {
	mode := "deterministic engines"
	if cfg.ModelEnabled() {
		mode = "model " + cfg.SynthModel
	}
	catalogDesc := cfg.CatalogPath
	if catalogDesc == "" {
		catalogDesc = "in-memory"
	}
	fmt.Printf(`
  Relay Orchestrator
  ------------------
  Port:      %d
  Catalog:   %s
  Synthesis: %s

  POST /v1/orchestrator/run        NDJSON event stream
  POST /v1/orchestrator/run/sync   result + events
  GET  /v1/orchestrator/ws         WebSocket execution
  GET  /v1/orchestrator/tools      tool registry
  GET  /metrics                    Prometheus metrics

`, cfg.Port, catalogDesc, mode)
}
