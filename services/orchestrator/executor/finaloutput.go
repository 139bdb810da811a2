// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package executor

import (
	"regexp"

	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
)

// genericMessagePatterns are status strings no user wants as a final
// answer. Extraction skips any candidate matching one of these.
var genericMessagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^search succeeded, found \d+ results?$`),
	regexp.MustCompile(`(?i)^task complete[.!]?$`),
	regexp.MustCompile(`(?i)^success[.!]?$`),
	regexp.MustCompile(`(?i)^ok[.!]?$`),
	regexp.MustCompile(`(?i)^operation completed[.!]?$`),
}

func isGenericMessage(s string) bool {
	for _, re := range genericMessagePatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// extractFinalOutput derives the user-facing answer from the last node's
// output.
//
// Precedence:
//
//	(a) mapping with a non-empty data.primary sequence → domain-aware
//	    structured summary
//	(b) first non-generic string among result, content, text, answer
//	(c) non-generic message
//	(d) value[outputKey] when outputKey is a key of the mapping
//	(e) the raw value
func (e *Executor) extractFinalOutput(r *run, last datatypes.NodeOutput) any {
	m, isMap := last.Value.(map[string]any)
	if !isMap {
		return last.Value
	}

	// (a) search-style primary sequence.
	if primary := primarySequence(m); len(primary) > 0 {
		if summary := summarizePrimary(primary, findQuery(r, m), primaryTotal(m)); summary != "" {
			return summary
		}
	}

	// (b) preferred answer keys.
	for _, key := range []string{"result", "content", "text", "answer"} {
		if s, ok := m[key].(string); ok && s != "" && !isGenericMessage(s) {
			return s
		}
	}

	// (c) non-generic message.
	if s, ok := m["message"].(string); ok && s != "" && !isGenericMessage(s) {
		return s
	}

	// (d) declared output key.
	if last.OutputKey != "" {
		if v, ok := m[last.OutputKey]; ok {
			return v
		}
	}

	// (e) raw value.
	return last.Value
}

// primarySequence returns value["data"]["primary"] when it is a
// non-empty sequence.
func primarySequence(m map[string]any) []any {
	data, ok := m["data"].(map[string]any)
	if !ok {
		return nil
	}
	primary, ok := data["primary"].([]any)
	if !ok || len(primary) == 0 {
		return nil
	}
	return primary
}

// primaryTotal reads an optional total-result count from the data
// mapping. Zero when absent or not numeric.
func primaryTotal(m map[string]any) int {
	data, ok := m["data"].(map[string]any)
	if !ok {
		return 0
	}
	switch t := data["total"].(type) {
	case float64:
		return int(t)
	case int:
		return t
	}
	return 0
}

// findQuery locates the original query: first in the last value's own
// metadata.parameters.query, then walking earlier node outputs newest
// first, then the plan components' resolved "query" parameters.
func findQuery(r *run, lastValue map[string]any) string {
	if q := metadataQuery(lastValue); q != "" {
		return q
	}
	for i := len(r.result.NodeResults) - 1; i >= 0; i-- {
		if m, ok := r.result.NodeResults[i].Value.(map[string]any); ok {
			if q := metadataQuery(m); q != "" {
				return q
			}
		}
	}
	if r.plan != nil {
		for i := len(r.plan.Components) - 1; i >= 0; i-- {
			if q, ok := r.plan.Components[i].Params["query"].(string); ok && q != "" {
				return q
			}
		}
	}
	return ""
}

func metadataQuery(m map[string]any) string {
	meta, ok := m["metadata"].(map[string]any)
	if !ok {
		return ""
	}
	params, ok := meta["parameters"].(map[string]any)
	if !ok {
		return ""
	}
	q, _ := params["query"].(string)
	return q
}
