// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
)

// LLMBackend asks a remote model to draft the tool body, then stamps the
// deterministic manifest on top so the result is loadable regardless of
// what the model produced.
//
// Description:
//
//	The manifest (name, family, merged schema) is computed locally by the
//	same rules as the template Engine; only the human-readable body is
//	delegated to the model. A model failure falls back to the template
//	Engine, so synthesis never depends on model availability.
//
// Thread Safety: safe for concurrent use; the underlying client is
// stateless per call.
type LLMBackend struct {
	model    llms.Model
	fallback *Engine
}

// NewLLMBackend builds an OpenAI-compatible LLM back-end.
//
// Inputs:
//
//	model   - Model identifier (config SynthModel).
//	apiKey  - Credential (config SynthAPIKey).
//	apiBase - Optional endpoint override for OpenAI-compatible servers
//	          (config SynthAPIBase); empty uses the provider default.
func NewLLMBackend(model, apiKey, apiBase string) (*LLMBackend, error) {
	opts := []openai.Option{openai.WithModel(model), openai.WithToken(apiKey)}
	if apiBase != "" {
		opts = append(opts, openai.WithBaseURL(apiBase))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("synth llm client: %w", err)
	}
	return &LLMBackend{model: client, fallback: NewEngine()}, nil
}

// Synthesize implements Backend.
func (b *LLMBackend) Synthesize(ctx context.Context, req Request) (string, error) {
	if req.Name == "" {
		return "", fmt.Errorf("%w: empty tool name", datatypes.ErrSynthesis)
	}

	family := ClassifyFamily(req.Name)
	schema := MergeSchemas(req.Existing, req.Params)
	manifest := Manifest{Name: req.Name, Family: family, Schema: schema}
	payload, err := json.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("%w: encode manifest: %v", datatypes.ErrSynthesis, err)
	}

	body, err := llms.GenerateFromSinglePrompt(ctx, b.model, b.prompt(manifest))
	if err != nil {
		slog.Warn("synth llm generation failed, using template engine",
			slog.String("tool", req.Name),
			slog.String("error", err.Error()),
		)
		return b.fallback.Synthesize(ctx, req)
	}

	body = stripCodeFence(body)
	if !strings.Contains(body, "func "+req.Name+"(") {
		slog.Warn("synth llm output does not define the requested callable, using template engine",
			slog.String("tool", req.Name),
		)
		return b.fallback.Synthesize(ctx, req)
	}

	var sb strings.Builder
	sb.WriteString(directive)
	sb.Write(payload)
	sb.WriteString("\n//\n// Code generated by relay synth (model-assisted). DO NOT EDIT.\n\n")
	sb.WriteString(strings.TrimSpace(body))
	sb.WriteString("\n")
	return sb.String(), nil
}

func (b *LLMBackend) prompt(m Manifest) string {
	var sb strings.Builder
	sb.WriteString("Write a single Go function implementing a tool for a task orchestrator.\n")
	fmt.Fprintf(&sb, "Function name: %s\nSignature: func %s(ctx context.Context, params map[string]any) (any, error)\n", m.Name, m.Name)
	fmt.Fprintf(&sb, "Template family: %s\nParameters:\n", m.Family)
	for _, p := range m.Schema {
		fmt.Fprintf(&sb, "  - %s (%s, required=%v, default=%v)\n", p.Name, paramType(p), p.Required, p.Default)
	}
	sb.WriteString("Emit only the function, in a ```go fence, no package clause.\n")
	return sb.String()
}

// stripCodeFence removes a surrounding markdown code fence if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
