// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
)

// RegisterBuiltins installs the default tool set. Built-ins are
// deterministic and self-contained; deployments layer real integrations
// on top via userSupplied registration, which shadows these names.
func RegisterBuiltins(r *Registry) error {
	builtins := []datatypes.ToolRecord{
		{
			Name:        "search",
			Description: "Search an index and return ranked results.",
			Schema: datatypes.ParameterSchema{
				{Name: "query", Type: "string", Required: true},
				{Name: "limit", Type: "number", Default: float64(10)},
			},
			Handler: builtinSearch,
			Async:   true,
		},
		{
			Name:        "report",
			Description: "Render a list of items into a textual report.",
			Schema: datatypes.ParameterSchema{
				{Name: "items", Type: "sequence", Required: true},
				{Name: "title", Type: "string", Default: "Report"},
			},
			Handler: builtinReport,
		},
		{
			Name:        "translate",
			Description: "Translate text into a target language.",
			Schema: datatypes.ParameterSchema{
				{Name: "text", Type: "string", Required: true},
				{Name: "targetLang", Type: "string", Default: "en"},
			},
			Handler: builtinTranslate,
			Async:   true,
		},
		{
			Name:        "extractText",
			Description: "Extract plain text from a document or snippet.",
			Schema: datatypes.ParameterSchema{
				{Name: "content", Type: "string", Required: true},
			},
			Handler: builtinExtractText,
		},
		{
			Name:        "formatText",
			Description: "Normalize and format text for presentation.",
			Schema: datatypes.ParameterSchema{
				{Name: "text", Type: "string", Required: true},
			},
			Handler: builtinFormatText,
		},
	}
	for i := range builtins {
		builtins[i].Provenance = datatypes.ProvenanceBuiltIn
		if err := r.Register(builtins[i]); err != nil {
			return fmt.Errorf("register builtin %q: %w", builtins[i].Name, err)
		}
	}
	return nil
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

// builtinSearch returns a deterministic result set derived from the
// query. Real deployments shadow this with a search integration; the
// built-in keeps plans executable end to end without one.
func builtinSearch(ctx context.Context, params map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := stringParam(params, "query")
	if query == "" {
		return nil, fmt.Errorf("search: query is required")
	}
	limit := 3
	if n, ok := params["limit"].(float64); ok && int(n) < limit && n > 0 {
		limit = int(n)
	}
	results := make([]any, 0, limit)
	for i := 0; i < limit; i++ {
		results = append(results, map[string]any{
			"title":       fmt.Sprintf("%s — result %d", query, i+1),
			"description": fmt.Sprintf("Indexed entry %d matching %q.", i+1, query),
		})
	}
	return map[string]any{
		"results": results,
		"count":   len(results),
		"message": fmt.Sprintf("search succeeded, found %d results", len(results)),
	}, nil
}

func builtinReport(ctx context.Context, params map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, _ := params["items"].([]any)
	title := stringParam(params, "title")
	if title == "" {
		title = "Report"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)
	for i, item := range items {
		switch t := item.(type) {
		case map[string]any:
			line, _ := t["title"].(string)
			if line == "" {
				line = fmt.Sprintf("%v", t)
			}
			fmt.Fprintf(&sb, "%d. %s\n", i+1, line)
		default:
			fmt.Fprintf(&sb, "%d. %v\n", i+1, t)
		}
	}
	return map[string]any{
		"reportContent": sb.String(),
		"itemCount":     len(items),
	}, nil
}

func builtinTranslate(ctx context.Context, params map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := stringParam(params, "text")
	lang := stringParam(params, "targetLang")
	if lang == "" {
		lang = "en"
	}
	return map[string]any{
		"translatedText": fmt.Sprintf("[%s] %s", lang, text),
		"targetLang":     lang,
	}, nil
}

func builtinExtractText(ctx context.Context, params map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content := stringParam(params, "content")
	return map[string]any{
		"text":   content,
		"length": len(content),
	}, nil
}

func builtinFormatText(ctx context.Context, params map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(stringParam(params, "text"))
	text = strings.Join(strings.Fields(text), " ")
	return map[string]any{
		"formattedText": text,
	}, nil
}
