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
	"strings"

	"github.com/google/uuid"

	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
)

// taskVerbs map utterance keywords onto tool names. Checked in order;
// every hit contributes a pipeline stage.
var taskVerbs = []struct {
	keywords []string
	tool     string
}{
	{[]string{"search", "find", "look up", "查", "搜索"}, "search"},
	{[]string{"translate", "翻译"}, "translate"},
	{[]string{"extract", "提取"}, "extractText"},
	{[]string{"report", "summarize", "summary", "报告", "总结"}, "report"},
	{[]string{"format", "clean up", "格式"}, "formatText"},
}

// RuleParser is the deterministic keyword planner. It exists so the
// orchestrator stays usable with no model configured, and as the
// fallback behind LLMParser.
//
// Thread Safety: stateless, safe for concurrent use.
type RuleParser struct{}

func NewRuleParser() *RuleParser { return &RuleParser{} }

// Parse classifies the utterance and builds a linear pipeline: each
// matched task verb becomes one node, chained to its predecessor's
// whole output. An utterance with no task verb is a chat-only plan.
func (p *RuleParser) Parse(_ context.Context, userText string, _ []string) (*datatypes.Plan, error) {
	plan := &datatypes.Plan{
		PlanID:   uuid.NewString(),
		UserText: userText,
	}

	lower := strings.ToLower(userText)
	var tools []string
	seen := map[string]bool{}
	for _, verb := range taskVerbs {
		for _, kw := range verb.keywords {
			if strings.Contains(lower, kw) && !seen[verb.tool] {
				tools = append(tools, verb.tool)
				seen[verb.tool] = true
				break
			}
		}
	}

	if len(tools) == 0 {
		plan.ChatOnly = true
		return plan, nil
	}

	prevID := ""
	for i, tool := range tools {
		comp := datatypes.Component{
			ID:       nodeID(i),
			ToolName: tool,
			Params:   map[string]any{},
		}
		if prevID == "" {
			comp.Params[primaryParam(tool)] = userText
		} else {
			comp.Params[primaryParam(tool)] = "$" + prevID + ".output"
		}
		plan.Components = append(plan.Components, comp)
		prevID = comp.ID
	}
	return plan, nil
}

func nodeID(i int) string {
	return string(rune('a' + i))
}

// primaryParam is the conventional first parameter of each built-in.
func primaryParam(tool string) string {
	switch tool {
	case "search":
		return "query"
	case "report":
		return "items"
	case "extractText":
		return "content"
	default:
		return "text"
	}
}
