// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render paints classified stream events to the terminal: prose
// passes through, reasoning is dimmed, and code blocks are buffered until
// close and repainted with syntax highlighting inside a panel.
package render

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
)

// =============================================================================
// SYNTAX HIGHLIGHTING
// =============================================================================

// Highlight applies chroma syntax highlighting for terminal output. Unknown
// languages fall back to content analysis, then to plain text.
func Highlight(code, language, theme string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get(theme)
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

// =============================================================================
// PANELS
// =============================================================================

var (
	panelBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	langBadgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Bold(true)

	reasoningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242")).
			Italic(true)

	roleHeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75")).
			Bold(true)

	dangerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true)
)

// CodePanel renders a closed code block: language badge, highlighted body,
// rounded border.
func CodePanel(code, language, theme string, maxWidth int) string {
	body := strings.TrimRight(code, "\n")
	if supportsColor() {
		body = strings.TrimRight(Highlight(body, language, theme), "\n")
	}
	header := ""
	if language != "" {
		header = langBadgeStyle.Render(language) + "\n"
	}
	width := maxWidth - 4
	if width < 20 {
		width = 20
	}
	return panelBorder.MaxWidth(width).Render(header + body)
}

// RoleHeader renders the speaker label above a message.
func RoleHeader(name string) string {
	return roleHeaderStyle.Render(name)
}

// ReasoningText dims out-of-band reasoning.
func ReasoningText(text string) string {
	return reasoningStyle.Render(text)
}

// DangerLabel marks a destructive tool call in confirmation prompts.
func DangerLabel(text string) string {
	return dangerStyle.Render(text)
}

// supportsColor checks the terminal's color profile once per call site;
// dumb terminals get plain text.
func supportsColor() bool {
	return termenv.ColorProfile() != termenv.Ascii
}

// TruncateLine shortens a line to the given display width, honoring
// double-width runes.
func TruncateLine(line string, width int) string {
	if width <= 0 || runewidth.StringWidth(line) <= width {
		return line
	}
	return runewidth.Truncate(line, width, "…")
}
