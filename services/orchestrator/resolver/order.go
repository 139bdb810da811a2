// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolver

import (
	"fmt"

	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
)

// BuildExecutionOrder produces a topological order over the implicit
// dependency graph of a plan.
//
// Description:
//
//	An edge a → b exists when b.Params references a through a
//	placeholder. The order is deterministic: among components whose
//	dependencies are all satisfied, the one earliest in plan order runs
//	first, so independent components retain their original plan order.
//
// Outputs:
//
//	[]string - Component ids in execution order.
//	error    - ErrCyclicPlan when the reference graph has a cycle,
//	           ErrDanglingReference when a placeholder names an id not in
//	           the plan.
func BuildExecutionOrder(components []datatypes.Component) ([]string, error) {
	index := make(map[string]int, len(components))
	for i, c := range components {
		if _, dup := index[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate component id %q", datatypes.ErrMalformedPlan, c.ID)
		}
		index[c.ID] = i
	}

	// deps[i] holds the plan indices component i depends on.
	deps := make([][]int, len(components))
	indegree := make([]int, len(components))
	dependents := make([][]int, len(components))
	for i, c := range components {
		seen := map[int]bool{}
		for _, ref := range ExtractReferences(c.Params) {
			j, ok := index[ref.ID]
			if !ok {
				return nil, fmt.Errorf("%w: component %q references unknown id %q", datatypes.ErrDanglingReference, c.ID, ref.ID)
			}
			if j == i || seen[j] {
				continue
			}
			seen[j] = true
			deps[i] = append(deps[i], j)
			dependents[j] = append(dependents[j], i)
			indegree[i]++
		}
	}

	// Kahn's algorithm with earliest-plan-index selection. A linear scan
	// per pick is fine at plan scale (tens of components).
	order := make([]string, 0, len(components))
	done := make([]bool, len(components))
	for len(order) < len(components) {
		picked := -1
		for i := range components {
			if !done[i] && indegree[i] == 0 {
				picked = i
				break
			}
		}
		if picked == -1 {
			return nil, fmt.Errorf("%w: %d components remain with unsatisfied dependencies", datatypes.ErrCyclicPlan, len(components)-len(order))
		}
		done[picked] = true
		order = append(order, components[picked].ID)
		for _, dep := range dependents[picked] {
			indegree[dep]--
		}
	}
	return order, nil
}

// Validate asserts that order is a legal execution order for components:
// every referenced id exists and precedes its referrer.
func Validate(components []datatypes.Component, order []string) error {
	position := make(map[string]int, len(order))
	for i, id := range order {
		position[id] = i
	}
	for _, c := range components {
		self, ok := position[c.ID]
		if !ok {
			return fmt.Errorf("%w: component %q missing from execution order", datatypes.ErrMalformedPlan, c.ID)
		}
		for _, ref := range ExtractReferences(c.Params) {
			pos, ok := position[ref.ID]
			if !ok {
				return fmt.Errorf("%w: component %q references unknown id %q", datatypes.ErrDanglingReference, c.ID, ref.ID)
			}
			if pos >= self {
				return fmt.Errorf("%w: component %q references %q which does not precede it", datatypes.ErrCyclicPlan, c.ID, ref.ID)
			}
		}
	}
	return nil
}
