// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resolver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
)

func comp(id string, params map[string]any) datatypes.Component {
	return datatypes.Component{ID: id, ToolName: "noop", Params: params}
}

func TestBuildExecutionOrderLinear(t *testing.T) {
	order, err := BuildExecutionOrder([]datatypes.Component{
		comp("a", map[string]any{"query": "X"}),
		comp("b", map[string]any{"items": "$a.output.results"}),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestBuildExecutionOrderReordersDependencies(t *testing.T) {
	// b appears first in plan order but depends on a.
	order, err := BuildExecutionOrder([]datatypes.Component{
		comp("b", map[string]any{"items": "$a.output"}),
		comp("a", nil),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestBuildExecutionOrderPreservesPlanOrderForIndependents(t *testing.T) {
	order, err := BuildExecutionOrder([]datatypes.Component{
		comp("z", nil),
		comp("m", nil),
		comp("a", nil),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "m", "a"}, order)
}

func TestBuildExecutionOrderDiamond(t *testing.T) {
	order, err := BuildExecutionOrder([]datatypes.Component{
		comp("root", nil),
		comp("left", map[string]any{"x": "$root.output"}),
		comp("right", map[string]any{"x": "$root.output"}),
		comp("sink", map[string]any{"l": "$left.output", "r": "$right.output"}),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "left", "right", "sink"}, order)
}

func TestBuildExecutionOrderCycle(t *testing.T) {
	_, err := BuildExecutionOrder([]datatypes.Component{
		comp("a", map[string]any{"x": "$b.output"}),
		comp("b", map[string]any{"x": "$a.output"}),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, datatypes.ErrCyclicPlan))
}

func TestBuildExecutionOrderDanglingReference(t *testing.T) {
	_, err := BuildExecutionOrder([]datatypes.Component{
		comp("a", map[string]any{"x": "$ghost.output"}),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, datatypes.ErrDanglingReference))
}

func TestBuildExecutionOrderDuplicateID(t *testing.T) {
	_, err := BuildExecutionOrder([]datatypes.Component{
		comp("a", nil),
		comp("a", nil),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, datatypes.ErrMalformedPlan))
}

func TestBuildExecutionOrderSelfReferenceIgnored(t *testing.T) {
	// A self reference is not a dependency edge; it will fail later at
	// resolve time when no output for the id exists yet.
	order, err := BuildExecutionOrder([]datatypes.Component{
		comp("a", map[string]any{"x": "$a.output"}),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, order)
}

func TestValidate(t *testing.T) {
	components := []datatypes.Component{
		comp("a", nil),
		comp("b", map[string]any{"x": "$a.output"}),
	}

	t.Run("legal order passes", func(t *testing.T) {
		assert.NoError(t, Validate(components, []string{"a", "b"}))
	})

	t.Run("inverted order fails", func(t *testing.T) {
		err := Validate(components, []string{"b", "a"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, datatypes.ErrCyclicPlan))
	})

	t.Run("missing component fails", func(t *testing.T) {
		err := Validate(components, []string{"a"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, datatypes.ErrMalformedPlan))
	})
}
