// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
)

func stringTarget(name string) Target {
	return Target{Param: datatypes.Param{Name: name, Type: "string", Required: true}}
}

func TestExactMatchIsNoOp(t *testing.T) {
	spec := BuildAdapter("a", "report", "already a string", stringTarget("text"))
	assert.Nil(t, spec)

	spec = BuildAdapter("a", "report", []any{1, 2}, Target{Param: datatypes.Param{Name: "items", Type: "sequence"}})
	assert.Nil(t, spec)
}

func TestScalarPickFromMapping(t *testing.T) {
	source := map[string]any{"formattedText": "abc", "other": "x"}

	spec := BuildAdapter("a", "render", source, stringTarget("text"))
	require.NotNil(t, spec)
	assert.False(t, spec.Fallback)
	assert.Equal(t, "abc", Apply(spec, source))
}

func TestScalarPickPriorityOrder(t *testing.T) {
	// formattedText wins over message even when both are present.
	source := map[string]any{"message": "low", "formattedText": "high"}
	spec := BuildAdapter("a", "render", source, stringTarget("text"))
	require.NotNil(t, spec)
	assert.Equal(t, "high", Apply(spec, source))

	// Empty high-priority keys are skipped.
	source = map[string]any{"formattedText": "", "content": "fallback"}
	spec = BuildAdapter("a", "render", source, stringTarget("text"))
	require.NotNil(t, spec)
	assert.Equal(t, "fallback", Apply(spec, source))
}

func TestScalarPickRendersWhenNoPriorityKey(t *testing.T) {
	source := map[string]any{"unrelated": float64(1)}
	spec := BuildAdapter("a", "render", source, stringTarget("text"))
	require.NotNil(t, spec)
	assert.Equal(t, `{"unrelated":1}`, Apply(spec, source))
}

func TestSequenceFromResultsField(t *testing.T) {
	source := map[string]any{
		"results": []any{map[string]any{"title": "t1"}},
		"count":   float64(1),
	}
	spec := BuildAdapter("a", "report", source, Target{Param: datatypes.Param{Name: "items", Type: "sequence", Required: true}})
	require.NotNil(t, spec)
	assert.False(t, spec.Fallback)

	out, ok := Apply(spec, source).([]any)
	require.True(t, ok)
	assert.Len(t, out, 1)
}

func TestSequenceWithoutResultsFallsBack(t *testing.T) {
	source := map[string]any{"items_elsewhere": []any{}}
	spec := BuildAdapter("a", "report", source, Target{Param: datatypes.Param{Name: "items", Type: "sequence"}})
	require.NotNil(t, spec)
	assert.True(t, spec.Fallback)
	assert.Equal(t, source, Apply(spec, source))
}

func TestMappingCopyFillsDeclaredDefaults(t *testing.T) {
	target := Target{
		Param: datatypes.Param{Name: "config", Type: "mapping"},
		Schema: datatypes.ParameterSchema{
			{Name: "mode", Type: "string", Required: true, Default: "fast"},
			{Name: "present", Type: "string", Required: true},
		},
	}
	source := map[string]any{"present": "yes", "extra": "kept"}

	spec := BuildAdapter("a", "configure", source, target)
	require.NotNil(t, spec)

	out, ok := Apply(spec, source).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "yes", out["present"])
	assert.Equal(t, "kept", out["extra"])
	assert.Equal(t, "fast", out["mode"])
	// The source mapping itself is not mutated.
	assert.NotContains(t, source, "mode")
}

func TestNoRuleAppliesPassthrough(t *testing.T) {
	spec := BuildAdapter("a", "calc", "text value", Target{Param: datatypes.Param{Name: "n", Type: "number"}})
	require.NotNil(t, spec)
	assert.True(t, spec.Fallback)
	assert.Equal(t, "text value", Apply(spec, "text value"))
}

func TestAnalyze(t *testing.T) {
	t.Run("type mismatch reported", func(t *testing.T) {
		analysis := Analyze(map[string]any{}, stringTarget("text"))
		assert.False(t, analysis.Compatible)
		require.Len(t, analysis.TypeMismatches, 1)
	})

	t.Run("missing required mapping keys reported", func(t *testing.T) {
		target := Target{
			Param:  datatypes.Param{Name: "config", Type: "mapping"},
			Schema: datatypes.ParameterSchema{{Name: "mode", Type: "string", Required: true}},
		}
		analysis := Analyze(map[string]any{"other": 1}, target)
		assert.False(t, analysis.Compatible)
		assert.Equal(t, []string{"mode"}, analysis.Missing)
	})

	t.Run("any accepts everything", func(t *testing.T) {
		analysis := Analyze([]any{}, Target{Param: datatypes.Param{Name: "x", Type: "any"}})
		assert.True(t, analysis.Compatible)
	})
}
