// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
)

// Family is a synthesis template family. The family determines both the
// emitted source skeleton and the runtime behavior bound at load time.
type Family string

const (
	FamilyTranslate      Family = "translate"
	FamilyImageTransform Family = "imageTransform"
	FamilyTextExtract    Family = "textExtract"
	FamilySearch         Family = "search"
	FamilyGeneric        Family = "generic"
)

// familySubstrings maps name substrings to families, checked in order.
// The generic family is the fallback and always matches.
var familySubstrings = []struct {
	substr string
	family Family
}{
	{"translat", FamilyTranslate},
	{"image", FamilyImageTransform},
	{"img", FamilyImageTransform},
	{"extract", FamilyTextExtract},
	{"search", FamilySearch},
	{"query", FamilySearch},
	{"find", FamilySearch},
}

// ClassifyFamily chooses the template family for a tool name by substring
// match. Case-insensitive. Unmatched names get the generic family.
func ClassifyFamily(name string) Family {
	lower := strings.ToLower(name)
	for _, fs := range familySubstrings {
		if strings.Contains(lower, fs.substr) {
			return fs.family
		}
	}
	return FamilyGeneric
}

// Request is one synthesis request.
type Request struct {
	// Name is the missing tool's name. The emitted source defines exactly
	// one callable of this name.
	Name string

	// Params is the parameter shape observed at the call site.
	Params datatypes.ParameterSchema

	// Existing is the parameter list of a prior tool of the same name,
	// nil when the name is fresh. When set, synthesis preserves these
	// names at their positions and emits the union of parameters.
	Existing datatypes.ParameterSchema
}

// Backend produces tool source text. Implementations: the deterministic
// template Engine below, or an LLM back-end (llm.go). The orchestration
// core treats a Backend as opaque.
type Backend interface {
	Synthesize(ctx context.Context, req Request) (string, error)
}

// Engine is the deterministic template back-end. Emission is a pure
// function of (name, params, existing): identical requests produce
// byte-identical source.
type Engine struct{}

// NewEngine returns the deterministic template back-end.
func NewEngine() *Engine { return &Engine{} }

// Synthesize emits source text defining a callable named req.Name.
//
// Backward-compatibility rule: when Existing is set, its parameter names
// keep their positions; observed parameters not already present are
// appended with a default assigned (empty string for string-typed, nil
// otherwise), so prior plan fragments remain callable.
func (e *Engine) Synthesize(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Name == "" {
		return "", fmt.Errorf("%w: empty tool name", datatypes.ErrSynthesis)
	}

	family := ClassifyFamily(req.Name)
	schema := MergeSchemas(req.Existing, req.Params)

	manifest := Manifest{Name: req.Name, Family: family, Schema: schema}
	payload, err := json.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("%w: encode manifest: %v", datatypes.ErrSynthesis, err)
	}

	slog.Debug("synthesizing tool source",
		slog.String("tool", req.Name),
		slog.String("family", string(family)),
		slog.Int("params", len(schema)),
		slog.Bool("extends_existing", req.Existing != nil),
	)
	return renderSource(string(payload), manifest), nil
}

// MergeSchemas unions prior and observed parameters. Prior names keep
// their positions; new parameters are appended, made optional by
// assigning a default so prior call sites stay valid.
func MergeSchemas(existing, observed datatypes.ParameterSchema) datatypes.ParameterSchema {
	if len(existing) == 0 {
		return append(datatypes.ParameterSchema{}, observed...)
	}
	merged := append(datatypes.ParameterSchema{}, existing...)
	for _, p := range observed {
		if _, ok := merged.Get(p.Name); ok {
			continue
		}
		if p.Default == nil {
			p.Required = false
			if p.Type == "string" {
				p.Default = ""
			}
		}
		merged = append(merged, p)
	}
	return merged
}

// renderSource emits the human-readable source body under the manifest
// directive. The body is Go-style source defining exactly one callable
// whose name equals the tool name; execution is interpreted through the
// family binding, so the body is documentation, not compiled code.
func renderSource(manifestPayload string, m Manifest) string {
	var sb strings.Builder
	sb.WriteString(directive)
	sb.WriteString(manifestPayload)
	sb.WriteString("\n//\n// Code generated by relay synth. DO NOT EDIT.\n\n")
	sb.WriteString("package tools\n\nimport \"context\"\n\n")

	fmt.Fprintf(&sb, "// %s implements the %s template family.\n", m.Name, m.Family)
	if len(m.Schema) > 0 {
		sb.WriteString("//\n// Parameters:\n")
		for _, p := range m.Schema {
			req := "optional"
			if p.Required {
				req = "required"
			}
			fmt.Fprintf(&sb, "//\t%s (%s, %s)\n", p.Name, paramType(p), req)
		}
	}
	fmt.Fprintf(&sb, "func %s(ctx context.Context, params map[string]any) (any, error) {\n", m.Name)
	for _, p := range m.Schema {
		if p.Default != nil {
			dflt, _ := json.Marshal(p.Default)
			fmt.Fprintf(&sb, "\tif _, ok := params[%q]; !ok {\n\t\tparams[%q] = %s\n\t}\n", p.Name, p.Name, dflt)
		}
	}
	fmt.Fprintf(&sb, "\treturn run%sFamily(ctx, %q, params)\n}\n", titleCase(string(m.Family)), m.Name)
	return sb.String()
}

func paramType(p datatypes.Param) string {
	if p.Type == "" {
		return "any"
	}
	return p.Type
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
