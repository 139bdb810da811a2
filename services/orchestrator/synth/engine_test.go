// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package synth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
)

func TestClassifyFamily(t *testing.T) {
	tests := []struct {
		name string
		want Family
	}{
		{"customTranslator", FamilyTranslate},
		{"imageResize", FamilyImageTransform},
		{"extractText", FamilyTextExtract},
		{"webSearch", FamilySearch},
		{"findHotels", FamilySearch},
		{"makeCoffee", FamilyGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyFamily(tt.name))
		})
	}
}

func TestSynthesizeRoundTrip(t *testing.T) {
	engine := NewEngine()
	params := datatypes.ParameterSchema{
		{Name: "text", Type: "string", Required: true},
		{Name: "targetLang", Type: "string", Required: true},
	}

	src, err := engine.Synthesize(context.Background(), Request{Name: "customTranslator", Params: params})
	require.NoError(t, err)
	assert.Contains(t, src, "func customTranslator(")

	m, handler, err := Load(src)
	require.NoError(t, err)
	assert.Equal(t, "customTranslator", m.Name)
	assert.Equal(t, FamilyTranslate, m.Family)
	assert.Equal(t, params.Names(), m.Schema.Names())

	out, err := handler(context.Background(), map[string]any{"text": "hello", "targetLang": "fr"})
	require.NoError(t, err)
	result, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "[fr] hello", result["translatedText"])
}

func TestSynthesizeIsDeterministic(t *testing.T) {
	engine := NewEngine()
	req := Request{
		Name:   "webSearch",
		Params: datatypes.ParameterSchema{{Name: "query", Type: "string", Required: true}},
	}

	first, err := engine.Synthesize(context.Background(), req)
	require.NoError(t, err)
	second, err := engine.Synthesize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSynthesizeExtendsExistingSignature(t *testing.T) {
	engine := NewEngine()
	existing := datatypes.ParameterSchema{
		{Name: "text", Type: "string", Required: true},
		{Name: "targetLang", Type: "string", Default: "en"},
	}
	observed := datatypes.ParameterSchema{
		{Name: "tone", Type: "string", Required: true},
		{Name: "text", Type: "string", Required: true},
	}

	src, err := engine.Synthesize(context.Background(), Request{
		Name: "customTranslator", Params: observed, Existing: existing,
	})
	require.NoError(t, err)

	m, _, err := Load(src)
	require.NoError(t, err)

	// Prior names keep prior positions; new parameters are appended with
	// a default so old call sites stay valid.
	require.Equal(t, []string{"text", "targetLang", "tone"}, m.Schema.Names())
	tone, ok := m.Schema.Get("tone")
	require.True(t, ok)
	assert.False(t, tone.Required)
	assert.Equal(t, "", tone.Default)
}

func TestSynthesizeEmptyNameFails(t *testing.T) {
	_, err := NewEngine().Synthesize(context.Background(), Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, datatypes.ErrSynthesis)
}

func TestParseManifestErrors(t *testing.T) {
	t.Run("missing directive", func(t *testing.T) {
		_, err := ParseManifest("package tools\n")
		assert.ErrorIs(t, err, datatypes.ErrLoad)
	})

	t.Run("corrupt payload", func(t *testing.T) {
		_, err := ParseManifest("//relay:tool {not json\n")
		assert.ErrorIs(t, err, datatypes.ErrLoad)
	})

	t.Run("no name", func(t *testing.T) {
		_, err := ParseManifest(`//relay:tool {"family":"generic"}` + "\n")
		assert.ErrorIs(t, err, datatypes.ErrLoad)
	})
}

func TestFamilyDefaultsApplied(t *testing.T) {
	m := Manifest{
		Name:   "webSearch",
		Family: FamilySearch,
		Schema: datatypes.ParameterSchema{
			{Name: "query", Type: "string", Required: true},
			{Name: "limit", Type: "number", Default: float64(10)},
		},
	}
	handler := BindHandler(m)

	out, err := handler(context.Background(), map[string]any{"query": "hotels"})
	require.NoError(t, err)
	result := out.(map[string]any)
	assert.Contains(t, result, "results")
	assert.Equal(t, "search succeeded, found 1 results", result["message"])
}

func TestStubReconstructsLoadableSource(t *testing.T) {
	schema := datatypes.ParameterSchema{{Name: "input", Type: "string", Required: true}}
	src := Stub("mysteryTool", schema)

	m, handler, err := Load(src)
	require.NoError(t, err)
	assert.Equal(t, "mysteryTool", m.Name)
	require.NotNil(t, handler)

	out, err := handler(context.Background(), map[string]any{"input": "x"})
	require.NoError(t, err)
	assert.NotNil(t, out)
}
