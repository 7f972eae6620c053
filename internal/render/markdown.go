// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"github.com/atotto/clipboard"
	"github.com/charmbracelet/glamour"
)

// =============================================================================
// MARKDOWN RE-RENDER
// =============================================================================

// Markdown renders a completed response through glamour for the pretty
// /last_response view. Rendering failures fall back to the raw text.
func Markdown(text string, width int) string {
	if width <= 0 {
		width = TerminalWidth()
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return out
}

// =============================================================================
// CLIPBOARD
// =============================================================================

// CopyToClipboard places text on the system clipboard. On headless systems
// the copy fails; the caller prints the text instead.
func CopyToClipboard(text string) error {
	return clipboard.WriteAll(text)
}
