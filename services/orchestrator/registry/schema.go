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
	"sort"

	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
)

// InferSchema derives a parameter schema from an observed parameter set.
//
// Description:
//
//	Tool records carry explicit schemas; inference runs once, at the
//	point a shape is first observed (a synthesis request, or registration
//	of an external handle without a declaration), and the result is
//	frozen into the record. Every observed parameter is recorded as
//	required with no default — observation cannot distinguish optional
//	parameters. Names are sorted so inference is deterministic regardless
//	of map iteration order.
func InferSchema(params map[string]any) datatypes.ParameterSchema {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	schema := make(datatypes.ParameterSchema, 0, len(names))
	for _, name := range names {
		schema = append(schema, datatypes.Param{
			Name:     name,
			Type:     inferType(params[name]),
			Required: true,
		})
	}
	return schema
}

// inferType maps a Go dynamic type to the schema type vocabulary. Types
// unknown to the inspector are recorded as any.
func inferType(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64, float32, int, int32, int64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "sequence"
	case map[string]any:
		return "mapping"
	default:
		return "any"
	}
}
