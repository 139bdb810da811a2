// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package parser turns natural-language utterances into executable
// plans. The model-backed parser delegates intent analysis to an LLM
// and falls back to the deterministic rule parser when the model is
// unavailable or returns something unusable.
package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
)

// LLMParser asks a model for a plan in the orchestrator's JSON shape.
//
// Thread Safety: safe for concurrent use.
type LLMParser struct {
	model    llms.Model
	fallback *RuleParser
}

// NewLLMParser builds an OpenAI-compatible plan parser. apiBase may be
// empty for the provider default endpoint.
func NewLLMParser(model, apiKey, apiBase string) (*LLMParser, error) {
	opts := []openai.Option{openai.WithModel(model), openai.WithToken(apiKey)}
	if apiBase != "" {
		opts = append(opts, openai.WithBaseURL(apiBase))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("parser llm client: %w", err)
	}
	return &LLMParser{model: client, fallback: NewRuleParser()}, nil
}

// Parse produces a plan for userText. toolNames is advisory: the model
// is told which tools already exist but may name new ones, which the
// registry will synthesize on demand.
func (p *LLMParser) Parse(ctx context.Context, userText string, toolNames []string) (*datatypes.Plan, error) {
	raw, err := llms.GenerateFromSinglePrompt(ctx, p.model, p.prompt(userText, toolNames))
	if err != nil {
		slog.Warn("plan model failed, using rule parser",
			slog.String("error", err.Error()),
		)
		return p.fallback.Parse(ctx, userText, toolNames)
	}

	plan, err := DecodePlan(raw)
	if err != nil {
		slog.Warn("plan model output unusable, using rule parser",
			slog.String("error", err.Error()),
		)
		return p.fallback.Parse(ctx, userText, toolNames)
	}
	plan.UserText = userText
	if plan.PlanID == "" {
		plan.PlanID = uuid.NewString()
	}
	return plan, nil
}

func (p *LLMParser) prompt(userText string, toolNames []string) string {
	var sb strings.Builder
	sb.WriteString("You are a task planner. Convert the user request into a JSON plan.\n")
	sb.WriteString("Schema: {\"chat_only\":bool,\"components\":[{\"id\":string,\"tool_name\":string,")
	sb.WriteString("\"params\":object,\"output\":{\"type\":string,\"key\":string}}]}\n")
	sb.WriteString("Reference an upstream node's output in a param as \"$<id>.output\" or \"$<id>.output.<key>\".\n")
	sb.WriteString("Set chat_only=true with no components for greetings and small talk.\n")
	if len(toolNames) > 0 {
		fmt.Fprintf(&sb, "Known tools (new names are allowed): %s\n", strings.Join(toolNames, ", "))
	}
	fmt.Fprintf(&sb, "User request: %s\nEmit only the JSON object.\n", userText)
	return sb.String()
}

// DecodePlan extracts and validates a plan from model output. The text
// may wrap the JSON object in a code fence or surrounding prose.
func DecodePlan(raw string) (*datatypes.Plan, error) {
	obj := extractJSONObject(raw)
	if obj == "" {
		return nil, fmt.Errorf("%w: no JSON object in model output", datatypes.ErrMalformedPlan)
	}
	var plan datatypes.Plan
	if err := json.Unmarshal([]byte(obj), &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", datatypes.ErrMalformedPlan, err)
	}
	if !plan.ChatOnly && len(plan.Components) == 0 {
		return nil, fmt.Errorf("%w: neither chat_only nor components", datatypes.ErrMalformedPlan)
	}
	for i := range plan.Components {
		c := &plan.Components[i]
		if c.ID == "" {
			return nil, fmt.Errorf("%w: component %d has no id", datatypes.ErrMalformedPlan, i)
		}
		if c.ToolName == "" {
			return nil, fmt.Errorf("%w: component %q has no tool name", datatypes.ErrMalformedPlan, c.ID)
		}
		if c.Params == nil {
			c.Params = map[string]any{}
		}
	}
	return &plan, nil
}

// extractJSONObject returns the first balanced top-level JSON object in
// s, ignoring braces inside string literals.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
