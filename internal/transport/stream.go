// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bufio"
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/jeranaias/gptcli-tui/internal/model"
)

// =============================================================================
// STREAM EVENTS
// =============================================================================

// EventKind discriminates stream events.
type EventKind int

const (
	// EventText is an incremental piece of assistant prose or code.
	EventText EventKind = iota
	// EventReasoning is an incremental piece of out-of-band reasoning.
	EventReasoning
	// EventDone is the terminal event: assembled tool calls and usage, if
	// the provider sent them, ride on it.
	EventDone
)

// Event is one decoded unit from the response stream.
type Event struct {
	Kind      EventKind
	Text      string
	ToolCalls []model.ToolCall
	Usage     *Usage
}

// =============================================================================
// TOOL CALL ASSEMBLY
// =============================================================================

// toolCallBuffer accumulates streamed tool-call fragments. Providers send
// the id and name once per call and the arguments as a series of partial
// strings, keyed by index.
type toolCallBuffer struct {
	calls map[int]*partialCall
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

func newToolCallBuffer() *toolCallBuffer {
	return &toolCallBuffer{calls: make(map[int]*partialCall)}
}

func (b *toolCallBuffer) add(d toolCallDelta) {
	pc := b.calls[d.Index]
	if pc == nil {
		pc = &partialCall{}
		b.calls[d.Index] = pc
	}
	if d.ID != "" {
		pc.id = d.ID
	}
	if d.Function.Name != "" {
		pc.name = d.Function.Name
	}
	pc.args.WriteString(d.Function.Arguments)
}

// finish returns the assembled calls in index order. Calls that never
// received a name are dropped as malformed.
func (b *toolCallBuffer) finish() []model.ToolCall {
	if len(b.calls) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(b.calls))
	for i := range b.calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	out := make([]model.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		pc := b.calls[i]
		if pc.name == "" {
			continue
		}
		id := pc.id
		if id == "" {
			id = model.NewToolCallID()
		}
		args := pc.args.String()
		if args == "" {
			args = "{}"
		}
		out = append(out, model.ToolCall{ID: id, Name: pc.name, Arguments: args})
	}
	return out
}

// =============================================================================
// SSE DECODING
// =============================================================================

type toolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string          `json:"content"`
			Reasoning string          `json:"reasoning"`
			ToolCalls []toolCallDelta `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Stream decodes one SSE response body. Recv returns events until EventDone
// or an error; exactly one of those terminates the stream.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	buffer  *toolCallBuffer
	usage   *Usage
	done    bool
}

func newStream(body io.ReadCloser) *Stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Stream{body: body, scanner: sc, buffer: newToolCallBuffer()}
}

// Recv returns the next event. After an EventDone or an error, further
// calls return io.EOF.
func (s *Stream) Recv() (Event, error) {
	if s.done {
		return Event{}, io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if data == "[DONE]" {
			return s.finish()
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Malformed chunks are skipped, not fatal; providers
			// occasionally interleave keep-alive noise.
			continue
		}
		if chunk.Error != nil {
			s.done = true
			return Event{}, &TransportError{Message: chunk.Error.Message}
		}
		if chunk.Usage != nil {
			s.usage = chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		for _, tc := range delta.ToolCalls {
			s.buffer.add(tc)
		}
		if delta.Reasoning != "" {
			return Event{Kind: EventReasoning, Text: delta.Reasoning}, nil
		}
		if delta.Content != "" {
			return Event{Kind: EventText, Text: delta.Content}, nil
		}
	}
	if err := s.scanner.Err(); err != nil {
		s.done = true
		return Event{}, &TransportError{Message: "stream read", Err: err}
	}
	// Body ended without [DONE]; treat as normal completion.
	return s.finish()
}

func (s *Stream) finish() (Event, error) {
	s.done = true
	return Event{Kind: EventDone, ToolCalls: s.buffer.finish(), Usage: s.usage}, nil
}

// Close releases the underlying response body. Safe to call more than once.
func (s *Stream) Close() error {
	s.done = true
	return s.body.Close()
}
