// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Styles map event semantics to presentation. All styling goes through
// this table; never use inline lipgloss literals in command code.
var (
	styleStep    = lipgloss.NewStyle().Bold(true)
	styleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	styleError   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("204"))
	styleDim     = lipgloss.NewStyle().Faint(true)
	styleAnswer  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

// stylesEnabled gates ANSI output: only a real terminal gets color, so
// piped output stays machine-readable.
var stylesEnabled = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

func render(style lipgloss.Style, s string) string {
	if !stylesEnabled {
		return s
	}
	return style.Render(s)
}

// statusStyle picks the style for an event status string.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case "success":
		return styleSuccess
	case "error":
		return styleError
	default:
		return styleDim
	}
}
