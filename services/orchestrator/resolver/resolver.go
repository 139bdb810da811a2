// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolver implements placeholder resolution for plan parameters.
//
// A placeholder is a substring of a string-valued parameter matching
// $<id>.output or $<id>.output.<key>, where <id> references a component
// that appears earlier in execution order. Resolution substitutes the
// referenced node output: value-typed when the whole string is a single
// placeholder, textual when mixed with other text.
package resolver

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
)

// placeholderRe captures id and optional key. Grammar:
// id := [A-Za-z_][A-Za-z0-9_]*, key := [A-Za-z_][A-Za-z0-9_]*.
var placeholderRe = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)\.output(?:\.([A-Za-z_][A-Za-z0-9_]*))?`)

// Reference is one parsed placeholder occurrence.
type Reference struct {
	// ID is the referenced component id.
	ID string

	// Key is the optional output key ("" when the reference is the bare
	// $id.output form).
	Key string
}

// Warning records a degraded substitution: the referenced key was absent
// from the producer's mapping and the full stored value was used instead.
type Warning struct {
	Ref     Reference
	Message string
}

// Resolution is the outcome of resolving one component's parameters.
type Resolution struct {
	// Params is a deep copy of the input with all placeholders
	// substituted.
	Params map[string]any

	// WholeRefs maps top-level parameter names whose entire string value
	// was a single placeholder to that reference. The adapter layer uses
	// this to know which parameters carry upstream values that may need
	// reshaping.
	WholeRefs map[string]Reference

	// Warnings lists degraded key-path substitutions.
	Warnings []Warning
}

// ExtractReferences walks a params structure and returns every placeholder
// occurrence, in depth-first order. Duplicate references are preserved.
func ExtractReferences(params map[string]any) []Reference {
	var refs []Reference
	walkStrings(params, func(s string) {
		for _, m := range placeholderRe.FindAllStringSubmatch(s, -1) {
			refs = append(refs, Reference{ID: m[1], Key: m[2]})
		}
	})
	return refs
}

// walkStrings visits every string leaf in a nested structure of mappings,
// sequences, and scalars.
func walkStrings(v any, visit func(string)) {
	switch t := v.(type) {
	case string:
		visit(t)
	case map[string]any:
		for _, elem := range t {
			walkStrings(elem, visit)
		}
	case []any:
		for _, elem := range t {
			walkStrings(elem, visit)
		}
	}
}

// Resolve returns a deep copy of params with every placeholder substituted
// against outputs.
//
// Description:
//
//	A leaf string that equals a single placeholder is replaced by the
//	referenced value at its native type. A leaf string mixing placeholder
//	and other text gets textual substitution: mappings and sequences are
//	rendered as compact JSON, nil as "null". A reference to an id absent
//	from outputs is fatal (the executor guarantees this cannot happen for
//	well-ordered plans; it fires on dangling references that slipped past
//	validation).
//
// Key-path semantics for $id.output.key: if the stored value is a mapping
// with key as a top-level field, the field is used; otherwise, if the
// producer's declared output key equals key, the full stored value is
// used; otherwise the full stored value is used and a Warning is recorded.
func Resolve(params map[string]any, outputs map[string]datatypes.NodeOutput) (*Resolution, error) {
	res := &Resolution{WholeRefs: map[string]Reference{}}

	resolved, err := resolveValue(params, outputs, res, func(name string, ref Reference) {
		res.WholeRefs[name] = ref
	}, "")
	if err != nil {
		return nil, err
	}
	m, ok := resolved.(map[string]any)
	if !ok {
		m = map[string]any{}
	}
	res.Params = m
	return res, nil
}

// resolveValue recursively copies v, substituting placeholders. topKey is
// the enclosing top-level parameter name ("" above the first level is never
// the case: the walk starts at the params mapping).
func resolveValue(v any, outputs map[string]datatypes.NodeOutput, res *Resolution, markWhole func(string, Reference), topKey string) (any, error) {
	switch t := v.(type) {
	case string:
		return resolveString(t, outputs, res, markWhole, topKey)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			key := topKey
			if key == "" {
				key = k
			}
			r, err := resolveValue(elem, outputs, res, markWhole, key)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			r, err := resolveValue(elem, outputs, res, markWhole, topKey)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return t, nil
	}
}

// resolveString substitutes placeholders in one string leaf.
func resolveString(s string, outputs map[string]datatypes.NodeOutput, res *Resolution, markWhole func(string, Reference), topKey string) (any, error) {
	matches := placeholderRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	// Whole-string single placeholder: value-typed substitution.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		ref := Reference{ID: s[matches[0][2]:matches[0][3]]}
		if matches[0][4] >= 0 {
			ref.Key = s[matches[0][4]:matches[0][5]]
		}
		val, err := lookup(ref, outputs, res)
		if err != nil {
			return nil, err
		}
		if topKey != "" {
			markWhole(topKey, ref)
		}
		return val, nil
	}

	// Mixed text: textual substitution, preserving non-placeholder runs.
	// Index-based reassembly keeps UTF-8 boundaries intact because match
	// offsets always fall on ASCII ('$', identifier chars).
	var out []byte
	last := 0
	for _, m := range matches {
		out = append(out, s[last:m[0]]...)
		ref := Reference{ID: s[m[2]:m[3]]}
		if m[4] >= 0 {
			ref.Key = s[m[4]:m[5]]
		}
		val, err := lookup(ref, outputs, res)
		if err != nil {
			return nil, err
		}
		out = append(out, renderCompact(val)...)
		last = m[1]
	}
	out = append(out, s[last:]...)
	return string(out), nil
}

// lookup fetches the value a reference points at, applying key-path
// semantics and recording warnings for degraded substitutions.
func lookup(ref Reference, outputs map[string]datatypes.NodeOutput, res *Resolution) (any, error) {
	no, ok := outputs[ref.ID]
	if !ok {
		return nil, fmt.Errorf("%w: $%s.output references a node with no stored output", datatypes.ErrDanglingReference, ref.ID)
	}
	if ref.Key == "" {
		return no.Value, nil
	}
	if m, ok := no.Value.(map[string]any); ok {
		if field, ok := m[ref.Key]; ok {
			return field, nil
		}
	}
	if no.OutputKey == ref.Key {
		return no.Value, nil
	}
	res.Warnings = append(res.Warnings, Warning{
		Ref:     ref,
		Message: fmt.Sprintf("key %q not found in output of %q; using full value", ref.Key, ref.ID),
	})
	return no.Value, nil
}

// renderCompact renders a value for textual interpolation. Mappings and
// sequences become compact canonical JSON; nil becomes "null".
func renderCompact(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
