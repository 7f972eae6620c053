// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/jeranaias/gptcli-tui/internal/stream"
)

// =============================================================================
// STREAM SINK
// =============================================================================

// Options configures a Sink.
type Options struct {
	// Theme is the chroma style name.
	Theme string
	// ShowReasoning paints reasoning deltas; off means they are dropped.
	ShowReasoning bool
	// Width overrides terminal width detection (useful in tests).
	Width int
}

// Sink consumes classified stream events and writes styled terminal output.
// Prose streams through immediately; code lines are buffered so the whole
// block can be repainted highlighted when its closing fence arrives.
type Sink struct {
	out  io.Writer
	opts Options

	width     int
	codeLines []string
	codeLang  string
	inCode    bool
	reasoned  bool
}

// NewSink builds a sink writing to out.
func NewSink(out io.Writer, opts Options) *Sink {
	if opts.Theme == "" {
		opts.Theme = "monokai"
	}
	width := opts.Width
	if width == 0 {
		width = TerminalWidth()
	}
	return &Sink{out: out, opts: opts, width: width}
}

// Handle paints one stream event.
func (s *Sink) Handle(ev stream.Event) {
	switch ev.Kind {
	case stream.EventProse:
		fmt.Fprintln(s.out, ev.Text)

	case stream.EventReasoningOpen:
		if s.opts.ShowReasoning {
			fmt.Fprintln(s.out, ReasoningText("· thinking"))
		}
		s.reasoned = true

	case stream.EventReasoningText:
		if s.opts.ShowReasoning {
			fmt.Fprintln(s.out, ReasoningText(ev.Text))
		}

	case stream.EventReasoningClose:
		if s.opts.ShowReasoning {
			fmt.Fprintln(s.out)
		}

	case stream.EventCodeOpen:
		s.inCode = true
		s.codeLang = ev.Lang
		s.codeLines = s.codeLines[:0]

	case stream.EventCodeLine:
		s.codeLines = append(s.codeLines, ev.Text)

	case stream.EventCodeClose:
		s.flushCode()
	}
}

// Finish flushes any open code block left by a truncated stream.
func (s *Sink) Finish() {
	if s.inCode {
		s.flushCode()
	}
}

func (s *Sink) flushCode() {
	code := strings.Join(s.codeLines, "\n")
	fmt.Fprintln(s.out, CodePanel(code, s.codeLang, s.opts.Theme, s.width))
	s.inCode = false
	s.codeLang = ""
	s.codeLines = s.codeLines[:0]
}

// =============================================================================
// TERMINAL
// =============================================================================

// TerminalWidth returns the current terminal width, defaulting to 80 when
// stdout is not a terminal.
func TerminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}
