// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// SHARED STYLES FOR ALL CLI COMMANDS
// =============================================================================

// Styles holds the palette for one output stream. Styles are bound to a
// renderer so piped output loses its colors.
type Styles struct {
	Title     lipgloss.Style
	Section   lipgloss.Style
	Label     lipgloss.Style
	Value     lipgloss.Style
	Success   lipgloss.Style
	Error     lipgloss.Style
	Warning   lipgloss.Style
	Dim       lipgloss.Style
	Separator lipgloss.Style
	Highlight lipgloss.Style
	Info      lipgloss.Style
	Prompt    lipgloss.Style
}

// NewStyles builds the palette on r.
func NewStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		// Cyan
		Title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		// White
		Section: r.NewStyle().Bold(true).Foreground(lipgloss.Color("255")).MarginTop(1),
		// Light gray, fixed width for aligned fields
		Label:     r.NewStyle().Foreground(lipgloss.Color("245")).Width(20),
		Value:     r.NewStyle().Foreground(lipgloss.Color("252")),
		Success:   r.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		Error:     r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Warning:   r.NewStyle().Foreground(lipgloss.Color("214")),
		Dim:       r.NewStyle().Foreground(lipgloss.Color("242")),
		Separator: r.NewStyle().Foreground(lipgloss.Color("240")),
		Highlight: r.NewStyle().Foreground(lipgloss.Color("82")),
		Info:      r.NewStyle().Foreground(lipgloss.Color("75")),
		Prompt:    r.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
	}
}

// =============================================================================
// HELPER FUNCTIONS FOR COMMON PATTERNS
// =============================================================================

// Rule renders a horizontal separator. Width 0 means 60.
func (s Styles) Rule(width int) string {
	if width <= 0 {
		width = 60
	}
	return s.Separator.Render(strings.Repeat("=", width))
}

// Status renders a bracketed status tag.
func (s Styles) Status(status string) string {
	switch strings.ToLower(status) {
	case "ok", "success", "healthy", "accepted":
		return s.Success.Render("[OK]")
	case "error", "fail", "failed":
		return s.Error.Render("[FAIL]")
	case "warning", "warn", "degraded", "limited":
		return s.Warning.Render("[WARN]")
	default:
		return s.Dim.Render("[" + strings.ToUpper(status) + "]")
	}
}

// Field renders one aligned "label  value" line.
func (s Styles) Field(label, value string) string {
	return s.Label.Render(label) + s.Value.Render(value)
}
