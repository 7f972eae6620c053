// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package confirm presents tool-confirmation prompts: tool name, arguments,
// and a risk flag, answered with approve / reject / always-allow.
package confirm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/gptcli-tui/internal/model"
	"github.com/jeranaias/gptcli-tui/internal/render"
)

// Answer is the user's verdict on a pending tool call.
type Answer int

const (
	Reject Answer = iota
	Approve
	Always
)

// =============================================================================
// PROMPT MODEL
// =============================================================================

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	boxStyle   = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
	keyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
)

// promptModel is the bubbletea model for one confirmation.
type promptModel struct {
	call      model.ToolCall
	dangerous bool
	answer    Answer
	answered  bool
}

func (m promptModel) Init() tea.Cmd { return nil }

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "y", "Y", "enter":
		m.answer = Approve
		m.answered = true
		return m, tea.Quit
	case "a", "A":
		// always-allow is never offered for dangerous commands
		if m.dangerous {
			return m, nil
		}
		m.answer = Always
		m.answered = true
		return m, tea.Quit
	case "n", "N", "esc", "ctrl+c":
		m.answer = Reject
		m.answered = true
		return m, tea.Quit
	}
	return m, nil
}

func (m promptModel) View() string {
	var b strings.Builder

	title := "Tool request: " + m.call.Name
	if m.dangerous {
		title += "  " + render.DangerLabel("[DANGEROUS]")
	}
	b.WriteString(titleStyle.Render(title) + "\n")
	b.WriteString(boxStyle.Render(formatArguments(m.call.Arguments)) + "\n")

	keys := keyStyle.Render("y") + " allow  " + keyStyle.Render("n") + " reject"
	if !m.dangerous {
		keys += "  " + keyStyle.Render("a") + " always allow " + m.call.Name
	}
	b.WriteString(keys + "\n")
	return b.String()
}

// formatArguments pretty-prints the call arguments, truncating long values
// so a huge Write payload doesn't flood the prompt.
func formatArguments(raw string) string {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return truncate(raw, 400)
	}
	var lines []string
	for k, v := range args {
		lines = append(lines, fmt.Sprintf("%s: %s", k, truncate(fmt.Sprintf("%v", v), 200)))
	}
	// map order is random; sort for a stable prompt
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

// Prompt runs the confirmation UI and returns the user's answer. Errors
// (no TTY, interrupted program) resolve to Reject so tools fail closed.
func Prompt(call model.ToolCall, dangerous bool) (Answer, error) {
	p := tea.NewProgram(promptModel{call: call, dangerous: dangerous})
	final, err := p.Run()
	if err != nil {
		return Reject, err
	}
	pm, ok := final.(promptModel)
	if !ok || !pm.answered {
		return Reject, nil
	}
	return pm.answer, nil
}
