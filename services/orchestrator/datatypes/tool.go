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

import (
	"context"
	"time"
)

// Handler is an invocable tool handle.
//
// Description:
//
//	Every tool — built-in, user-supplied, or synthesized — is invoked
//	through this signature. Handles are called synchronously on the
//	executor's goroutine; per-node timeouts arrive through ctx. A handle
//	returns either a value or an error; it must not panic (the executor
//	recovers panics and reports them as ErrInternal, but that path is a
//	last resort, not a contract).
type Handler func(ctx context.Context, params map[string]any) (any, error)

// Provenance records where a tool came from. Registry lookup order is
// userSupplied, then synthesized, then builtIn: most specific wins.
type Provenance string

const (
	ProvenanceBuiltIn      Provenance = "builtIn"
	ProvenanceUserSupplied Provenance = "userSupplied"
	ProvenanceSynthesized  Provenance = "synthesized"
)

// Param declares a single tool parameter. ParameterSchema is a slice, not
// a map, because parameter positions matter: signature-preserving
// synthesis keeps prior names at their prior positions.
type Param struct {
	// Name is the parameter name as it appears in Component.Params.
	Name string `json:"name"`

	// Type is one of string, number, boolean, sequence, mapping, any.
	Type string `json:"type"`

	// Required is true when the parameter has no default.
	Required bool `json:"required"`

	// Default is the value used when the caller omits the parameter.
	Default any `json:"default,omitempty"`
}

// ParameterSchema is the ordered parameter list of a tool.
type ParameterSchema []Param

// Get returns the parameter named name and true, or a zero Param and
// false when absent.
func (s ParameterSchema) Get(name string) (Param, bool) {
	for _, p := range s {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Names returns the parameter names in declaration order.
func (s ParameterSchema) Names() []string {
	names := make([]string, len(s))
	for i, p := range s {
		names[i] = p.Name
	}
	return names
}

// ToolRecord is the registry's unit of storage: one record per tool name.
//
// Invariants:
//   - a record with Handler set is callable
//   - Schema is always present (possibly empty)
//   - SourceText is required for synthesized and userSupplied provenance
type ToolRecord struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      ParameterSchema `json:"parameter_schema"`

	// SourceText is the tool's source code text. Empty for built-ins
	// registered programmatically.
	SourceText string `json:"source_text,omitempty"`

	// Handler is the compiled handle. Never serialized; reconstructed
	// from SourceText when a record is loaded from the catalog.
	Handler Handler `json:"-"`

	Provenance Provenance `json:"provenance"`

	// Async is informational: whether the tool performs I/O and may
	// block. All handles are invoked through the same context-aware
	// signature regardless.
	Async bool `json:"async,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Callable reports whether the record can be invoked as-is.
func (r *ToolRecord) Callable() bool {
	return r != nil && r.Handler != nil
}
