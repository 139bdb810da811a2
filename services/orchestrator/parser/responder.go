// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LLMResponder generates conversational replies for chat-only inputs.
// The executor treats a Reply error as non-fatal and falls back to its
// built-in reply table, so this implementation never needs a fallback
// of its own.
type LLMResponder struct {
	model llms.Model
}

// NewLLMResponder builds an OpenAI-compatible responder.
func NewLLMResponder(model, apiKey, apiBase string) (*LLMResponder, error) {
	opts := []openai.Option{openai.WithModel(model), openai.WithToken(apiKey)}
	if apiBase != "" {
		opts = append(opts, openai.WithBaseURL(apiBase))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("responder llm client: %w", err)
	}
	return &LLMResponder{model: client}, nil
}

// Reply implements the executor's Responder collaborator.
func (r *LLMResponder) Reply(ctx context.Context, userText string) (string, error) {
	prompt := "You are Relay, a task orchestration assistant. Reply briefly and helpfully " +
		"to this conversational message, without inventing task results:\n" + userText
	reply, err := llms.GenerateFromSinglePrompt(ctx, r.model, prompt)
	if err != nil {
		return "", fmt.Errorf("responder: %w", err)
	}
	return strings.TrimSpace(reply), nil
}
