// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package confirm

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// TOOL SPINNER
// =============================================================================

// doneMsg stops the spinner program.
type doneMsg struct{}

type spinnerModel struct {
	spin  spinner.Model
	label string
	done  <-chan struct{}
}

func waitDone(done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-done
		return doneMsg{}
	}
}

func (m spinnerModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, waitDone(m.done))
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case doneMsg:
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	default:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
}

func (m spinnerModel) View() string {
	return m.spin.View() + " " + m.label
}

// Spin shows a spinner with the given label until done closes. Used while
// a tool command runs so the terminal isn't silent for long executions.
func Spin(label string, done <-chan struct{}) error {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))

	p := tea.NewProgram(spinnerModel{spin: s, label: label, done: done})
	_, err := p.Run()
	return err
}
