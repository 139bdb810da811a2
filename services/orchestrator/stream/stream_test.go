// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"bufio"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
)

func TestFromEventModeAndStep(t *testing.T) {
	cases := []struct {
		name     string
		ev       datatypes.ExecutionEvent
		wantMode string
		wantStep string
	}{
		{
			name:     "chat reply renamed",
			ev:       datatypes.ExecutionEvent{Phase: datatypes.PhaseChatReply, Status: datatypes.StatusSuccess},
			wantMode: ModeChat,
			wantStep: "chatCompleted",
		},
		{
			name:     "system error",
			ev:       datatypes.ExecutionEvent{Phase: datatypes.PhaseSystemError, Status: datatypes.StatusError},
			wantMode: ModeError,
			wantStep: "systemError",
		},
		{
			name:     "task phases pass through",
			ev:       datatypes.ExecutionEvent{Phase: datatypes.PhaseNodeStart, Status: datatypes.StatusProgress},
			wantMode: ModeTask,
			wantStep: "nodeStart",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			line := FromEvent(tc.ev)
			assert.Equal(t, tc.wantMode, line.Mode)
			assert.Equal(t, tc.wantStep, line.Step)
			assert.Equal(t, string(tc.ev.Status), line.Status)
		})
	}
}

func TestFromEventFoldsNodeIdentityIntoData(t *testing.T) {
	line := FromEvent(datatypes.ExecutionEvent{
		Phase:    datatypes.PhaseNodeSuccess,
		NodeID:   "a",
		ToolName: "search",
		Data:     map[string]any{"result_summary": "3 results"},
	})
	assert.Equal(t, "a", line.Data["node_id"])
	assert.Equal(t, "search", line.Data["tool_name"])
	assert.Equal(t, "3 results", line.Data["result_summary"])
}

func TestFromEventDoesNotMutateEventData(t *testing.T) {
	data := map[string]any{"k": "v"}
	FromEvent(datatypes.ExecutionEvent{Phase: datatypes.PhaseNodeStart, NodeID: "a", Data: data})
	assert.Equal(t, map[string]any{"k": "v"}, data)
}

func TestLineWriterEmitsNDJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	lw := NewLineWriter(rec)

	now := time.Now().UTC()
	lw.Emit(datatypes.ExecutionEvent{Phase: datatypes.PhasePipelineStart, Status: datatypes.StatusProgress, Timestamp: now})
	lw.Emit(datatypes.ExecutionEvent{Phase: datatypes.PhasePipelineEnd, Status: datatypes.StatusSuccess, Timestamp: now})

	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	var lines []Line
	for scanner.Scan() {
		var line Line
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "pipelineStart", lines[0].Step)
	assert.Equal(t, "pipelineEnd", lines[1].Step)
	assert.True(t, rec.Flushed)
}

func TestCollectorAccumulates(t *testing.T) {
	var c Collector
	c.Emit(datatypes.ExecutionEvent{Phase: datatypes.PhaseChatReply, Message: "hi"})
	c.Emit(datatypes.ExecutionEvent{Phase: datatypes.PhasePipelineEnd})

	require.Len(t, c.Events(), 2)
	lines := c.Lines()
	assert.Equal(t, "chatCompleted", lines[0].Step)
	assert.Equal(t, ModeChat, lines[0].Mode)
}
