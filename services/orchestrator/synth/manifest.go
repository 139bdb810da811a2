// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package synth emits tool source text on demand and loads source text
// back into invocable handles.
//
// A Go process cannot compile arbitrary Go source at runtime, so Relay
// tools carry a machine-readable manifest directive as the first line of
// their source text:
//
//	//relay:tool {"name":"customTranslator","family":"translate","schema":[...]}
//
// The rest of the text is ordinary Go-style source for human inspection
// (and for the static mirror). "Compiling" a tool means parsing the
// manifest and binding the named template family's interpreter to its
// schema; the result is a datatypes.Handler.
package synth

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
)

// directive is the manifest marker. It must be the first non-empty line
// of a tool's source text.
const directive = "//relay:tool "

// Manifest is the machine-readable header of a tool's source text.
type Manifest struct {
	Name   string                    `json:"name"`
	Family Family                    `json:"family"`
	Schema datatypes.ParameterSchema `json:"schema"`
}

// ParseManifest extracts the manifest from source text.
//
// Outputs:
//
//	Manifest - The decoded manifest.
//	error    - datatypes.ErrLoad when the directive is missing or its
//	           payload does not decode.
func ParseManifest(source string) (Manifest, error) {
	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, directive) {
			break
		}
		var m Manifest
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, directive)), &m); err != nil {
			return Manifest{}, fmt.Errorf("%w: bad manifest payload: %v", datatypes.ErrLoad, err)
		}
		if m.Name == "" {
			return Manifest{}, fmt.Errorf("%w: manifest has no tool name", datatypes.ErrLoad)
		}
		if m.Family == "" {
			m.Family = FamilyGeneric
		}
		return m, nil
	}
	return Manifest{}, fmt.Errorf("%w: source text has no %q directive", datatypes.ErrLoad, strings.TrimSpace(directive))
}

// Load compiles source text into a callable handle.
func Load(source string) (Manifest, datatypes.Handler, error) {
	m, err := ParseManifest(source)
	if err != nil {
		return Manifest{}, nil, err
	}
	return m, BindHandler(m), nil
}
