// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream classifies streamed model output into render events.
//
// The parser is line-oriented and incremental: deltas arrive with arbitrary
// split points, so a fragment without a trailing newline is buffered rather
// than classified (a delta cut in the middle of "```python" must not leak
// into prose). Decisions are made only on complete lines plus one final
// flush, which makes the emitted event sequence independent of how the
// stream was chunked.
package stream

import (
	"regexp"
	"strings"
)

// =============================================================================
// RENDER EVENTS
// =============================================================================

// EventKind identifies a classified render event.
type EventKind int

const (
	EventProse EventKind = iota
	EventReasoningOpen
	EventReasoningText
	EventReasoningClose
	EventCodeOpen
	EventCodeLine
	EventCodeClose
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventProse:
		return "prose-text"
	case EventReasoningOpen:
		return "reasoning-open"
	case EventReasoningText:
		return "reasoning-text"
	case EventReasoningClose:
		return "reasoning-close"
	case EventCodeOpen:
		return "code-open"
	case EventCodeLine:
		return "code-line"
	case EventCodeClose:
		return "code-close"
	default:
		return "unknown"
	}
}

// Event is one classified piece of model output. Text carries the line or
// fragment content (no trailing newline); Lang is set on EventCodeOpen.
type Event struct {
	Kind EventKind
	Text string
	Lang string
}

// =============================================================================
// FENCE RECOGNITION
// =============================================================================

// fence records one open fence: its delimiter character and run length.
// Closing requires the same character with a run of at least Len.
type fence struct {
	Char byte
	Len  int
	Lang string
}

// A fence start is >=3 identical backticks or tildes after optional leading
// whitespace, followed by at most one bare language token. Trailing free
// text disqualifies the line: "talking about ```python here" is prose.
var fenceStartRe = regexp.MustCompile("^[ \t]*(`{3,}|~{3,})[ \t]*([A-Za-z0-9_+\\-.#]*)[ \t]*$")

// parseFenceStart returns the fence described by a complete line, or ok=false.
func parseFenceStart(line string) (fence, bool) {
	m := fenceStartRe.FindStringSubmatch(strings.TrimSuffix(line, "\r"))
	if m == nil {
		return fence{}, false
	}
	run := m[1]
	return fence{Char: run[0], Len: len(run), Lang: m[2]}, true
}

// isFenceClose reports whether a complete line closes the given fence:
// same delimiter character, run length >= the opening run, nothing after
// but whitespace. Backticks and tildes never close each other.
func isFenceClose(line string, f fence) bool {
	s := strings.TrimSuffix(line, "\r")
	s = strings.TrimLeft(s, " \t")
	n := 0
	for n < len(s) && s[n] == f.Char {
		n++
	}
	if n < f.Len || n < 3 {
		return false
	}
	return strings.TrimRight(s[n:], " \t") == ""
}

// =============================================================================
// PARSER
// =============================================================================

// Parser converts a stream of text deltas into render events. One Parser
// serves one streamed response; state is never persisted across streams.
//
// Not safe for concurrent use: the transport consumer is the single caller.
type Parser struct {
	pending   string  // partial line awaiting its terminator
	stack     []fence // open fences, outermost first
	reasoning bool    // inside the out-of-band reasoning channel
	closed    bool
}

// NewParser creates a parser in prose mode.
func NewParser() *Parser {
	return &Parser{}
}

// Depth returns the current fence nesting depth.
func (p *Parser) Depth() int { return len(p.stack) }

// InCode reports whether the parser is inside a code region.
func (p *Parser) InCode() bool { return len(p.stack) > 0 }

// Feed consumes one content delta and returns the events it completes.
// A reasoning region still open is closed first: content after reasoning
// means the model is done thinking.
func (p *Parser) Feed(delta string) []Event {
	if p.closed || delta == "" {
		return nil
	}
	var events []Event
	if p.reasoning {
		events = append(events, Event{Kind: EventReasoningClose})
		p.reasoning = false
	}
	p.pending += delta
	for {
		i := strings.IndexByte(p.pending, '\n')
		if i < 0 {
			break
		}
		line := p.pending[:i]
		p.pending = p.pending[i+1:]
		events = append(events, p.classifyLine(line)...)
	}
	return events
}

// FeedReasoning consumes one out-of-band reasoning delta. Reasoning is a
// transport-supplied mode orthogonal to fence state; no fence parsing
// happens inside it.
func (p *Parser) FeedReasoning(delta string) []Event {
	if p.closed || delta == "" {
		return nil
	}
	var events []Event
	if !p.reasoning {
		events = append(events, Event{Kind: EventReasoningOpen})
		p.reasoning = true
	}
	events = append(events, Event{Kind: EventReasoningText, Text: delta})
	return events
}

// Close flushes the pending fragment and force-closes any open regions.
// Called at stream end or on cancellation; nothing is silently dropped.
func (p *Parser) Close() []Event {
	if p.closed {
		return nil
	}
	p.closed = true
	var events []Event
	if p.reasoning {
		events = append(events, Event{Kind: EventReasoningClose})
		p.reasoning = false
	}
	if p.pending != "" {
		events = append(events, p.classifyLine(p.pending)...)
		p.pending = ""
	}
	for len(p.stack) > 0 {
		p.stack = p.stack[:len(p.stack)-1]
		if len(p.stack) == 0 {
			events = append(events, Event{Kind: EventCodeClose})
		}
	}
	return events
}

// classifyLine routes one complete line (terminator stripped) through the
// fence state machine.
func (p *Parser) classifyLine(line string) []Event {
	if len(p.stack) == 0 {
		if f, ok := parseFenceStart(line); ok {
			p.stack = append(p.stack, f)
			return []Event{{Kind: EventCodeOpen, Lang: f.Lang}}
		}
		return []Event{{Kind: EventProse, Text: line}}
	}

	top := p.stack[len(p.stack)-1]

	// A deeper fence start (same delimiter, run at least as long, with a
	// language token) nests: the line stays code content, depth grows.
	if f, ok := parseFenceStart(line); ok && f.Char == top.Char && f.Len >= top.Len && f.Lang != "" {
		p.stack = append(p.stack, f)
		return []Event{{Kind: EventCodeLine, Text: line}}
	}

	if isFenceClose(line, top) {
		p.stack = p.stack[:len(p.stack)-1]
		if len(p.stack) == 0 {
			return []Event{{Kind: EventCodeClose}}
		}
		// Inner close: still inside the outer block, keep the line verbatim.
		return []Event{{Kind: EventCodeLine, Text: line}}
	}

	return []Event{{Kind: EventCodeLine, Text: line}}
}
