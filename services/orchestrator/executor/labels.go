// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package executor

import "fmt"

// resultLabel computes the short summary attached to nodeSuccess events.
func resultLabel(value any) string {
	switch t := value.(type) {
	case map[string]any:
		if results, ok := t["results"].([]any); ok {
			return fmt.Sprintf("%d results", len(results))
		}
		if s, ok := t["formattedText"].(string); ok {
			return fmt.Sprintf("formatted text, len=%d", len(s))
		}
		if s, ok := t["reportContent"].(string); ok {
			return fmt.Sprintf("report, len=%d", len(s))
		}
		if status, ok := t["status"]; ok {
			return fmt.Sprintf("status=%v", status)
		}
		return fmt.Sprintf("mapping, %d fields", len(t))
	case []any:
		return fmt.Sprintf("sequence, %d items", len(t))
	case string:
		return fmt.Sprintf("string, len=%d", len(t))
	default:
		return fmt.Sprintf("%T", value)
	}
}
