// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// Phase identifies the executor lifecycle point an event describes.
type Phase string

const (
	PhasePipelineStart Phase = "pipelineStart"
	PhaseNodeStart     Phase = "nodeStart"
	PhaseNodeSuccess   Phase = "nodeSuccess"
	PhaseNodeError     Phase = "nodeError"
	PhasePipelineEnd   Phase = "pipelineEnd"
	PhaseChatReply     Phase = "chatReply"
	PhaseSystemError   Phase = "systemError"
)

// Status is the coarse outcome carried by every event.
type Status string

const (
	StatusProgress Status = "progress"
	StatusSuccess  Status = "success"
	StatusError    Status = "error"
)

// ExecutionEvent is one progress record emitted by the executor.
//
// Within a plan, events are totally ordered: a node's nodeSuccess strictly
// precedes the next node's nodeStart. Every event is flushed to the
// transport before the executor proceeds.
type ExecutionEvent struct {
	Phase     Phase          `json:"phase"`
	NodeID    string         `json:"node_id,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	Status    Status         `json:"status"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
