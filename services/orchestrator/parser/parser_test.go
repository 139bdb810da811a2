// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
)

func TestDecodePlanFromFencedOutput(t *testing.T) {
	raw := "Here is the plan:\n```json\n" +
		`{"chat_only":false,"components":[{"id":"a","tool_name":"search","params":{"query":"golang"},"output":{"key":"results"}}]}` +
		"\n```\nLet me know if you need changes."

	plan, err := DecodePlan(raw)
	require.NoError(t, err)
	require.Len(t, plan.Components, 1)
	assert.Equal(t, "search", plan.Components[0].ToolName)
	assert.Equal(t, "golang", plan.Components[0].Params["query"])
	assert.Equal(t, "results", plan.Components[0].Output.Key)
}

func TestDecodePlanChatOnly(t *testing.T) {
	plan, err := DecodePlan(`{"chat_only":true}`)
	require.NoError(t, err)
	assert.True(t, plan.ChatOnly)
}

func TestDecodePlanRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"no json", "I could not produce a plan, sorry."},
		{"empty non-chat", `{"chat_only":false}`},
		{"missing id", `{"components":[{"tool_name":"search"}]}`},
		{"missing tool", `{"components":[{"id":"a"}]}`},
		{"invalid json", `{"components":[`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodePlan(tc.raw)
			require.ErrorIs(t, err, datatypes.ErrMalformedPlan)
		})
	}
}

func TestDecodePlanIgnoresBracesInStrings(t *testing.T) {
	plan, err := DecodePlan(`{"chat_only":false,"components":[{"id":"a","tool_name":"echo","params":{"text":"a } brace"}}]}`)
	require.NoError(t, err)
	assert.Equal(t, "a } brace", plan.Components[0].Params["text"])
}

func TestRuleParserChatFallback(t *testing.T) {
	plan, err := NewRuleParser().Parse(context.Background(), "hello there", nil)
	require.NoError(t, err)
	assert.True(t, plan.ChatOnly)
	assert.Empty(t, plan.Components)
	assert.Equal(t, "hello there", plan.UserText)
	assert.NotEmpty(t, plan.PlanID)
}

func TestRuleParserBuildsPipeline(t *testing.T) {
	plan, err := NewRuleParser().Parse(context.Background(),
		"search for Go schedulers and write a report", nil)
	require.NoError(t, err)
	require.Len(t, plan.Components, 2)

	assert.Equal(t, "search", plan.Components[0].ToolName)
	assert.Equal(t, "search for Go schedulers and write a report",
		plan.Components[0].Params["query"])

	assert.Equal(t, "report", plan.Components[1].ToolName)
	assert.Equal(t, "$a.output", plan.Components[1].Params["items"])
}

func TestRuleParserSingleStage(t *testing.T) {
	plan, err := NewRuleParser().Parse(context.Background(), "translate this for me", nil)
	require.NoError(t, err)
	require.Len(t, plan.Components, 1)
	assert.Equal(t, "translate", plan.Components[0].ToolName)
	assert.Equal(t, "translate this for me", plan.Components[0].Params["text"])
}
