// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package adapter reconciles a producer's output value with the parameter
// shape a consumer expects, so tools compose without prearranged
// contracts. Adapters are derived lazily per node and never cached across
// executions.
package adapter

import (
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
)

// scalarPriorityKeys is the fixed priority list consulted when a consumer
// expects a scalar string and the producer returned a mapping.
var scalarPriorityKeys = []string{
	"formattedText", "reportContent", "message", "content", "text", "result",
}

// Target describes the consumer side of one adaptation: the parameter
// being filled and, for mapping-shaped parameters, the consumer tool's
// full schema (used to fill declared defaults).
type Target struct {
	Param  datatypes.Param
	Schema datatypes.ParameterSchema
}

// Analysis is the shape-compatibility verdict for (sourceValue, target).
type Analysis struct {
	Compatible     bool
	Missing        []string
	TypeMismatches []string
}

// RuleKind enumerates the reshape operations an AdapterSpec can carry.
type RuleKind string

const (
	// RulePick extracts a single named field from a mapping.
	RulePick RuleKind = "pick"

	// RuleScalarPick extracts the first non-empty scalar priority key,
	// falling back to a canonical textual rendering.
	RuleScalarPick RuleKind = "scalarPick"

	// RuleFlattenCopy copies matching keys from a source mapping and
	// fills declared defaults for missing required keys.
	RuleFlattenCopy RuleKind = "flattenCopy"

	// RulePassthrough leaves the value unchanged.
	RulePassthrough RuleKind = "passthrough"
)

// Spec is a reshape plan from one producer output to one consumer
// parameter.
type Spec struct {
	SourceNodeID string
	TargetTool   string
	Rules        []Rule

	// Fallback is true when no reshape rule applied and the value passes
	// through unchanged; the executor records adapterFallback in the
	// node event data.
	Fallback bool
}

// Rule is one step of a Spec.
type Rule struct {
	Kind  RuleKind
	Key   string
	Fills map[string]any
}

// valueType maps a runtime value onto the schema type vocabulary.
func valueType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64, float32, int, int32, int64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "sequence"
	case map[string]any:
		return "mapping"
	default:
		return "any"
	}
}

// Analyze reports whether sourceValue already fits target.
func Analyze(sourceValue any, target Target) Analysis {
	want := target.Param.Type
	got := valueType(sourceValue)
	if want == "" || want == "any" || want == got {
		analysis := Analysis{Compatible: true}
		if want == "mapping" && got == "mapping" {
			analysis.Missing = missingRequired(sourceValue.(map[string]any), target.Schema)
			analysis.Compatible = len(analysis.Missing) == 0
		}
		return analysis
	}
	return Analysis{
		Compatible:     false,
		TypeMismatches: []string{fmt.Sprintf("%s: want %s, got %s", target.Param.Name, want, got)},
	}
}

func missingRequired(m map[string]any, schema datatypes.ParameterSchema) []string {
	var missing []string
	for _, p := range schema {
		if !p.Required {
			continue
		}
		if _, ok := m[p.Name]; !ok {
			missing = append(missing, p.Name)
		}
	}
	return missing
}

// BuildAdapter derives a Spec reshaping sourceValue into target, or nil
// when the value already fits (rule 1: exact match is a no-op).
//
// Rules, in priority order:
//
//  1. Matching shape → nil (no adapter).
//  2. Target string, source mapping → first non-empty scalar priority
//     key, else canonical textual rendering.
//  3. Target sequence, source mapping with a sequence-typed "results"
//     field → pick that field.
//  4. Target mapping, source mapping → copy matching keys, fill declared
//     defaults for missing required keys.
//  5. Otherwise → passthrough with Fallback set.
func BuildAdapter(sourceNodeID, targetToolName string, sourceValue any, target Target) *Spec {
	analysis := Analyze(sourceValue, target)
	sourceMap, sourceIsMap := sourceValue.(map[string]any)

	spec := &Spec{SourceNodeID: sourceNodeID, TargetTool: targetToolName}
	switch {
	case analysis.Compatible && len(analysis.Missing) == 0:
		return nil

	case target.Param.Type == "string" && sourceIsMap:
		spec.Rules = append(spec.Rules, Rule{Kind: RuleScalarPick})

	case target.Param.Type == "sequence" && sourceIsMap:
		if _, ok := sourceMap["results"].([]any); ok {
			spec.Rules = append(spec.Rules, Rule{Kind: RulePick, Key: "results"})
			break
		}
		spec.Rules = append(spec.Rules, Rule{Kind: RulePassthrough})
		spec.Fallback = true

	case target.Param.Type == "mapping" && sourceIsMap:
		fills := map[string]any{}
		for _, p := range target.Schema {
			if !p.Required || p.Default == nil {
				continue
			}
			if _, ok := sourceMap[p.Name]; !ok {
				fills[p.Name] = p.Default
			}
		}
		spec.Rules = append(spec.Rules, Rule{Kind: RuleFlattenCopy, Fills: fills})

	default:
		spec.Rules = append(spec.Rules, Rule{Kind: RulePassthrough})
		spec.Fallback = true
	}
	return spec
}

// Apply runs a Spec against sourceValue.
func Apply(spec *Spec, sourceValue any) any {
	if spec == nil {
		return sourceValue
	}
	value := sourceValue
	for _, rule := range spec.Rules {
		switch rule.Kind {
		case RulePick:
			if m, ok := value.(map[string]any); ok {
				if picked, ok := m[rule.Key]; ok {
					value = picked
				}
			}
		case RuleScalarPick:
			value = pickScalar(value)
		case RuleFlattenCopy:
			if m, ok := value.(map[string]any); ok {
				out := make(map[string]any, len(m)+len(rule.Fills))
				for k, v := range m {
					out[k] = v
				}
				for k, v := range rule.Fills {
					out[k] = v
				}
				value = out
			}
		case RulePassthrough:
			// nothing
		}
	}
	return value
}

// pickScalar extracts a string from a mapping using the fixed priority
// list, falling back to compact canonical JSON.
func pickScalar(value any) any {
	m, ok := value.(map[string]any)
	if !ok {
		return value
	}
	for _, key := range scalarPriorityKeys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	if b, err := json.Marshal(m); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", m)
}
