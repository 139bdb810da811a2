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

import "errors"

// Error taxonomy for plan execution. Callers branch with errors.Is; the
// executor maps each class to its event phase and fatality:
//
//	plan errors       → systemError before any node runs (fatal)
//	resolution errors → nodeError, stop plan (node-fatal)
//	execution errors  → nodeError, stop plan (node-fatal)
//	save errors       → warning on the node event (non-fatal)
var (
	// ErrMalformedPlan marks a plan that fails structural validation
	// (duplicate ids, missing tool names, nil components).
	ErrMalformedPlan = errors.New("malformed plan")

	// ErrCyclicPlan marks a cycle in the placeholder dependency graph.
	ErrCyclicPlan = errors.New("cyclic plan")

	// ErrDanglingReference marks a placeholder naming a component id
	// that does not exist in the plan.
	ErrDanglingReference = errors.New("dangling reference")

	// ErrEmptyPlan marks a non-chat plan with no components.
	ErrEmptyPlan = errors.New("empty plan")

	// ErrUnknownTool marks a tool name the registry cannot resolve,
	// reported after synthesis also failed.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrLoad marks tool source text that is present but failed to
	// compile into a handle.
	ErrLoad = errors.New("tool load failed")

	// ErrSave marks a catalog write failure. Non-fatal: the registry
	// keeps its in-memory record and the run proceeds.
	ErrSave = errors.New("catalog save failed")

	// ErrSynthesis marks a synthesizer invariant violation. The generic
	// template matches every request in practice, so this surfaces only
	// on internal misuse.
	ErrSynthesis = errors.New("synthesis failed")

	// ErrInternal is the last-resort classification for recovered panics
	// inside tool handles.
	ErrInternal = errors.New("internal error")
)
