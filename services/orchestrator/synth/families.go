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
	"fmt"
	"strings"

	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
)

// BindHandler binds a manifest to its family interpreter, producing an
// invocable handle. Defaults declared in the schema are applied before
// the family behavior runs, so handles see a complete parameter set.
func BindHandler(m Manifest) datatypes.Handler {
	behavior := familyBehavior(m.Family)
	schema := m.Schema
	name := m.Name
	return func(ctx context.Context, params map[string]any) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		filled := make(map[string]any, len(params)+len(schema))
		for k, v := range params {
			filled[k] = v
		}
		for _, p := range schema {
			if _, ok := filled[p.Name]; !ok && p.Default != nil {
				filled[p.Name] = p.Default
			}
		}
		return behavior(ctx, name, filled)
	}
}

type familyFunc func(ctx context.Context, name string, params map[string]any) (any, error)

func familyBehavior(f Family) familyFunc {
	switch f {
	case FamilyTranslate:
		return runTranslate
	case FamilyImageTransform:
		return runImageTransform
	case FamilyTextExtract:
		return runTextExtract
	case FamilySearch:
		return runSearch
	default:
		return runGeneric
	}
}

// firstString returns the first non-empty string among params[keys...].
func firstString(params map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := params[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func runTranslate(_ context.Context, name string, params map[string]any) (any, error) {
	text := firstString(params, "text", "content", "input")
	lang := firstString(params, "targetLang", "target_lang", "lang")
	if lang == "" {
		lang = "en"
	}
	return map[string]any{
		"translatedText": fmt.Sprintf("[%s] %s", lang, text),
		"sourceText":     text,
		"targetLang":     lang,
		"status":         "ok",
	}, nil
}

func runImageTransform(_ context.Context, name string, params map[string]any) (any, error) {
	source := firstString(params, "image", "url", "source", "input")
	operation := firstString(params, "operation", "transform", "style")
	if operation == "" {
		operation = "identity"
	}
	return map[string]any{
		"image":     source,
		"operation": operation,
		"status":    "ok",
		"message":   fmt.Sprintf("%s applied %s", name, operation),
	}, nil
}

func runTextExtract(_ context.Context, name string, params map[string]any) (any, error) {
	source := firstString(params, "text", "content", "document", "input", "url")
	// Interpreted extraction is a pass-through of the textual payload;
	// real extraction arrives when a user supplies a concrete tool.
	return map[string]any{
		"text":   source,
		"length": len(source),
		"status": "ok",
	}, nil
}

func runSearch(_ context.Context, name string, params map[string]any) (any, error) {
	query := firstString(params, "query", "q", "text", "keywords")
	results := []any{}
	if query != "" {
		results = append(results, map[string]any{
			"title":       fmt.Sprintf("%s result for %q", name, query),
			"description": fmt.Sprintf("placeholder search result produced by synthesized tool %s", name),
		})
	}
	return map[string]any{
		"results": results,
		"count":   len(results),
		"message": fmt.Sprintf("search succeeded, found %d results", len(results)),
	}, nil
}

func runGeneric(_ context.Context, name string, params map[string]any) (any, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	return map[string]any{
		"status":  "ok",
		"message": "task complete",
		"tool":    name,
		"echo":    params,
		"fields":  strings.Join(keys, ","),
	}, nil
}

// Stub reconstructs minimal source text for a handle whose original
// source is unrecoverable (registered in-memory, no static mirror). The
// stub satisfies extractSource's contract: it parses back into a loadable
// manifest for the same name and schema.
func Stub(name string, schema datatypes.ParameterSchema) string {
	manifest := Manifest{Name: name, Family: ClassifyFamily(name), Schema: schema}
	req := Request{Name: name, Params: schema}
	// Engine emission is deterministic and cannot fail for a named tool.
	src, err := NewEngine().Synthesize(context.Background(), req)
	if err != nil {
		return directive + fmt.Sprintf(`{"name":%q,"family":%q}`, manifest.Name, manifest.Family) + "\n"
	}
	return src
}
