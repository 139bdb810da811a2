// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared data model for the Relay
// orchestrator: plans, components, node outputs, tool records, execution
// events, and the error taxonomy. Types here carry no behavior beyond
// small accessors; all orchestration logic lives in the sibling packages.
package datatypes

import "time"

// Plan is a declarative DAG of tool invocations produced by the parser
// collaborator.
//
// Description:
//
//	A plan either carries Components to execute, or is flagged ChatOnly
//	when the parser classified the utterance as conversational. ChatOnly
//	plans carry the original UserText and no components; the executor
//	short-circuits them to the conversational responder.
//
// Thread Safety: a Plan is immutable after construction and safe for
// concurrent reads.
type Plan struct {
	// PlanID uniquely identifies this plan (uuid).
	PlanID string `json:"plan_id"`

	// ChatOnly marks a conversational input that needs no tool execution.
	ChatOnly bool `json:"chat_only,omitempty"`

	// UserText is the original utterance. Always set for ChatOnly plans.
	UserText string `json:"user_text,omitempty"`

	// Components are the plan vertices in original plan order.
	Components []Component `json:"components,omitempty"`
}

// Component is one vertex of a plan: a single tool invocation.
type Component struct {
	// ID is unique within the plan and is the anchor for placeholder
	// references ($id.output).
	ID string `json:"id" validate:"required"`

	// ToolName identifies the tool to invoke. The name does not have to
	// exist in the registry at plan time; missing tools are synthesized.
	ToolName string `json:"tool_name" validate:"required"`

	// Params is a nested structure of scalars, sequences, and mappings.
	// String leaves may contain placeholder references.
	Params map[string]any `json:"params"`

	// Output describes the conceptual field this component produces.
	Output OutputDescriptor `json:"output"`
}

// OutputDescriptor names the conceptual output field of a component.
type OutputDescriptor struct {
	Type        string `json:"type,omitempty"`
	Key         string `json:"key,omitempty"`
	Description string `json:"description,omitempty"`
}

// NodeOutput is the stored result of a completed component.
//
// Lifetime: created when a component completes, owned by the running plan,
// discarded when the plan ends. Never shared across plans.
type NodeOutput struct {
	// NodeID is the component id that produced this output.
	NodeID string `json:"node_id"`

	// OutputKey is the component's declared output key.
	OutputKey string `json:"output_key"`

	// Value is the raw return value of the tool handle.
	Value any `json:"value"`

	// Descriptor is the component's output descriptor, kept for
	// final-output extraction.
	Descriptor OutputDescriptor `json:"descriptor"`
}

// Result is the aggregate outcome of one plan execution.
type Result struct {
	Success       bool          `json:"success"`
	NodeResults   []NodeOutput  `json:"node_results"`
	FinalOutput   any           `json:"final_output,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
	Errors        []string      `json:"errors,omitempty"`
	DetailedLogs  []LogEntry    `json:"detailed_logs,omitempty"`
}

// LogEntry is one line of the detailed execution log: one entry per
// attempted action (resolution, adaptation, lookup, synthesis, invocation).
type LogEntry struct {
	Time   time.Time `json:"time"`
	NodeID string    `json:"node_id,omitempty"`
	Action string    `json:"action"`
	Detail string    `json:"detail,omitempty"`
}

// ChatMode reports whether a result came from the chat-only short-circuit.
// Presence of a final output with no node results is the contract signal.
func (r *Result) ChatMode() bool {
	return r.FinalOutput != nil && len(r.NodeResults) == 0
}
