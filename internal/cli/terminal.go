// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

const (
	// DefaultTerminalWidth is the fallback width when detection fails
	DefaultTerminalWidth = 80

	// MinTerminalWidth is the minimum width used for wrapping
	MinTerminalWidth = 40
)

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the width of w, or DefaultTerminalWidth when w is
// not a terminal.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return DefaultTerminalWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return DefaultTerminalWidth
	}
	if width < MinTerminalWidth {
		return MinTerminalWidth
	}
	return width
}

// =============================================================================
// COLOR OUTPUT CONTROL
// =============================================================================

// colorProfile picks the profile for w. NO_COLOR (https://no-color.org/)
// and noColor disable colors; FORCE_COLOR keeps them on a pipe.
func colorProfile(w io.Writer, noColor bool) termenv.Profile {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}
	if !isTerminal(w) && os.Getenv("FORCE_COLOR") == "" {
		return termenv.Ascii
	}
	return termenv.NewOutput(w).EnvColorProfile()
}

// newRenderer returns a lipgloss renderer for w.
func newRenderer(w io.Writer, noColor bool) *lipgloss.Renderer {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(colorProfile(w, noColor))
	return r
}

// =============================================================================
// TEXT LAYOUT
// =============================================================================

// WrapText wraps text to maxWidth display cells, keeping existing newlines.
// Wide runes count as two cells.
func WrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		maxWidth = DefaultTerminalWidth
	}

	var b strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteByte('\n')
		}
		if runewidth.StringWidth(line) <= maxWidth {
			b.WriteString(line)
			continue
		}

		words := strings.Fields(line)
		if len(words) == 0 {
			continue
		}
		cur := words[0]
		curWidth := runewidth.StringWidth(cur)
		for _, word := range words[1:] {
			ww := runewidth.StringWidth(word)
			if curWidth+1+ww <= maxWidth {
				cur += " " + word
				curWidth += 1 + ww
				continue
			}
			b.WriteString(cur)
			b.WriteByte('\n')
			cur, curWidth = word, ww
		}
		b.WriteString(cur)
	}
	return b.String()
}

// padRight pads s with spaces to width display cells.
func padRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// =============================================================================
// RICH OUTPUT
// =============================================================================

// renderMarkdown renders a model response for a terminal. It returns the
// input unchanged when rendering fails.
func renderMarkdown(content string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return out
}

// writeResponse prints a model response, rendered as markdown on a
// terminal and verbatim otherwise.
func writeResponse(w io.Writer, response string, rich bool) {
	if rich {
		io.WriteString(w, renderMarkdown(response, terminalWidth(w)-4))
		return
	}
	io.WriteString(w, response)
	if !strings.HasSuffix(response, "\n") {
		io.WriteString(w, "\n")
	}
}

// writeJSONDocument prints a JSON document, syntax highlighted on a
// terminal. Text that is not JSON is printed as is.
func writeJSONDocument(w io.Writer, doc string, rich bool) {
	if rich && json.Valid([]byte(doc)) {
		if err := quick.Highlight(w, doc, "json", "terminal256", "monokai"); err == nil {
			io.WriteString(w, "\n")
			return
		}
	}
	io.WriteString(w, doc)
	if !strings.HasSuffix(doc, "\n") {
		io.WriteString(w, "\n")
	}
}
