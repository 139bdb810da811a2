// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator wires the plan executor, tool registry, catalog,
// and synthesis engine into one service and exposes them over HTTP.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/relay/services/orchestrator/catalog"
	"github.com/AleutianAI/relay/services/orchestrator/config"
	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
	"github.com/AleutianAI/relay/services/orchestrator/executor"
	"github.com/AleutianAI/relay/services/orchestrator/parser"
	"github.com/AleutianAI/relay/services/orchestrator/registry"
	"github.com/AleutianAI/relay/services/orchestrator/stream"
	"github.com/AleutianAI/relay/services/orchestrator/synth"
)

// Service owns the orchestrator collaborators for one process.
//
// Thread Safety: safe for concurrent use; every method delegates to
// concurrency-safe components.
type Service struct {
	Registry *registry.Registry
	Catalog  *catalog.Store
	Executor *executor.Executor
}

// NewService assembles a Service from configuration: catalog, synthesis
// back-end, registry with built-ins, warm-loaded catalog records, and
// the executor with its parser and responder collaborators.
func NewService(ctx context.Context, cfg *config.Config) (*Service, error) {
	var store *catalog.Store
	var err error
	if cfg.CatalogPath != "" {
		store, err = catalog.Open(cfg.CatalogPath)
	} else {
		store, err = catalog.OpenInMemory()
	}
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	var backend synth.Backend
	var plans executor.Parser
	var chat executor.Responder
	if cfg.ModelEnabled() {
		llmBackend, err := synth.NewLLMBackend(cfg.SynthModel, cfg.SynthAPIKey, cfg.SynthAPIBase)
		if err != nil {
			return nil, err
		}
		llmParser, err := parser.NewLLMParser(cfg.SynthModel, cfg.SynthAPIKey, cfg.SynthAPIBase)
		if err != nil {
			return nil, err
		}
		responder, err := parser.NewLLMResponder(cfg.SynthModel, cfg.SynthAPIKey, cfg.SynthAPIBase)
		if err != nil {
			return nil, err
		}
		backend, plans, chat = llmBackend, llmParser, responder
	} else {
		slog.Info("no synthesis credential configured, using deterministic engines")
		backend = synth.NewEngine()
		plans = parser.NewRuleParser()
	}

	reg := registry.New(registry.Options{
		Catalog:        store,
		Backend:        backend,
		StaticDir:      cfg.StaticDir,
		SynthPerMinute: cfg.SynthPerMinute,
	})
	if err := registry.RegisterBuiltins(reg); err != nil {
		return nil, err
	}
	if err := registry.WarmLoad(ctx, reg, store); err != nil {
		return nil, fmt.Errorf("catalog warm load: %w", err)
	}

	exec, err := executor.New(executor.Options{
		Registry:      reg,
		Parser:        plans,
		Responder:     chat,
		NodeTimeout:   cfg.NodeTimeout,
		MaxSynthDepth: cfg.MaxSynthDepth,
	})
	if err != nil {
		return nil, err
	}

	return &Service{Registry: reg, Catalog: store, Executor: exec}, nil
}

// Close releases the catalog.
func (s *Service) Close() error {
	if s.Catalog == nil {
		return nil
	}
	return s.Catalog.Close()
}

// RunTask executes one request, streaming events to emitter.
func (s *Service) RunTask(ctx context.Context, input executor.Input, emitter executor.Emitter) (*datatypes.Result, error) {
	return s.Executor.Execute(ctx, input, emitter)
}

// RunTaskSync executes one request and returns the result together with
// the buffered event stream.
func (s *Service) RunTaskSync(ctx context.Context, input executor.Input) (*datatypes.Result, []stream.Line, error) {
	var collector stream.Collector
	result, err := s.Executor.Execute(ctx, input, &collector)
	return result, collector.Lines(), err
}

// Ready reports whether the service can serve traffic.
func (s *Service) Ready() error {
	if s.Registry == nil || s.Executor == nil {
		return errors.New("service not initialized")
	}
	return nil
}
