// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"reflect"
	"testing"
)

// collect runs a full text through a fresh parser in one delta plus Close.
func collect(text string) []Event {
	p := NewParser()
	events := p.Feed(text)
	return append(events, p.Close()...)
}

// collectSplit runs the same text split into chunks of the given size.
func collectSplit(text string, chunk int) []Event {
	p := NewParser()
	var events []Event
	for i := 0; i < len(text); i += chunk {
		end := i + chunk
		if end > len(text) {
			end = len(text)
		}
		events = append(events, p.Feed(text[i:end])...)
	}
	return append(events, p.Close()...)
}

func TestEndToEndScenario(t *testing.T) {
	events := collect("Sure, here:\n```py\nprint(1)\n```\nDone.")
	want := []Event{
		{Kind: EventProse, Text: "Sure, here:"},
		{Kind: EventCodeOpen, Lang: "py"},
		{Kind: EventCodeLine, Text: "print(1)"},
		{Kind: EventCodeClose},
		{Kind: EventProse, Text: "Done."},
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %+v\nwant     %+v", events, want)
	}
}

func TestSplitInvariance(t *testing.T) {
	texts := []string{
		"Sure, here:\n```py\nprint(1)\n```\nDone.",
		"prose\n~~~~rust\nfn main() {}\n~~~~\ntail",
		"a\n```\nplain\n```\nb\n```go\nx := 1\n```\n",
		"before\n```md\ntext\n````python\ninner\n````\nmore\n```\nafter",
		"no fences at all\njust prose lines\n",
	}
	for _, text := range texts {
		want := collect(text)
		for chunk := 1; chunk <= 7; chunk++ {
			got := collectSplit(text, chunk)
			if !reflect.DeepEqual(got, want) {
				t.Errorf("split size %d changed events for %q:\ngot  %+v\nwant %+v",
					chunk, text, got, want)
			}
		}
	}
}

func TestInlineFenceNeverTogglesMode(t *testing.T) {
	events := collect("He wrote ```python``` inline")
	want := []Event{{Kind: EventProse, Text: "He wrote ```python``` inline"}}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %+v, want single prose event", events)
	}
}

func TestFenceStartRejectsTrailingText(t *testing.T) {
	events := collect("talking about ```python here\n")
	if events[0].Kind != EventProse {
		t.Errorf("trailing-text line classified as %v", events[0].Kind)
	}
	// A language token followed by free text is prose too.
	events = collect("```python and then some\n")
	if events[0].Kind != EventProse {
		t.Errorf("multi-token info line classified as %v", events[0].Kind)
	}
}

func TestFenceStartAcceptsIndentAndBareToken(t *testing.T) {
	for _, line := range []string{"```python\n", "   ```python   \n", "```\n", "~~~c++\n", "````objective-c\n"} {
		events := collect(line)
		if events[0].Kind != EventCodeOpen {
			t.Errorf("%q: first event %v, want code-open", line, events[0].Kind)
		}
	}
}

func TestCloseRequiresRunAtLeastOpenLength(t *testing.T) {
	p := NewParser()
	p.Feed("````go\n")
	events := p.Feed("```\ncode\n````\n")
	want := []Event{
		{Kind: EventCodeLine, Text: "```"},
		{Kind: EventCodeLine, Text: "code"},
		{Kind: EventCodeClose},
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %+v\nwant     %+v", events, want)
	}
}

func TestCloseLongerRunAllowed(t *testing.T) {
	events := collect("```\ncode\n``````\n")
	want := []Event{
		{Kind: EventCodeOpen},
		{Kind: EventCodeLine, Text: "code"},
		{Kind: EventCodeClose},
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %+v\nwant     %+v", events, want)
	}
}

func TestMismatchedDelimiterNeverCloses(t *testing.T) {
	p := NewParser()
	p.Feed("```go\n")
	events := p.Feed("~~~\n")
	want := []Event{{Kind: EventCodeLine, Text: "~~~"}}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("tilde closed a backtick fence: %+v", events)
	}
	if !p.InCode() {
		t.Error("parser left code mode")
	}
}

func TestNestedFences(t *testing.T) {
	text := "```md\nexample:\n````python\nprint(1)\n````\ndone\n```\ntail"
	events := collect(text)
	want := []Event{
		{Kind: EventCodeOpen, Lang: "md"},
		{Kind: EventCodeLine, Text: "example:"},
		{Kind: EventCodeLine, Text: "````python"},
		{Kind: EventCodeLine, Text: "print(1)"},
		{Kind: EventCodeLine, Text: "````"},
		{Kind: EventCodeLine, Text: "done"},
		{Kind: EventCodeClose},
		{Kind: EventProse, Text: "tail"},
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %+v\nwant     %+v", events, want)
	}
}

func TestUnterminatedFenceForceClosed(t *testing.T) {
	p := NewParser()
	events := p.Feed("```go\nx := 1\n")
	events = append(events, p.Close()...)
	want := []Event{
		{Kind: EventCodeOpen, Lang: "go"},
		{Kind: EventCodeLine, Text: "x := 1"},
		{Kind: EventCodeClose},
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %+v\nwant     %+v", events, want)
	}
	if p.Depth() != 0 {
		t.Errorf("Depth() = %d after Close", p.Depth())
	}
}

func TestPendingFragmentFlushedAtClose(t *testing.T) {
	p := NewParser()
	if events := p.Feed("no newline yet"); len(events) != 0 {
		t.Fatalf("fragment emitted early: %+v", events)
	}
	events := p.Close()
	want := []Event{{Kind: EventProse, Text: "no newline yet"}}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("Close events = %+v, want %+v", events, want)
	}
}

func TestClosingFenceWithoutNewlineAtStreamEnd(t *testing.T) {
	// The final "```" arrives without a terminator; Close must still treat
	// it as a close line, not as code content.
	events := collect("```py\nprint(1)\n```")
	want := []Event{
		{Kind: EventCodeOpen, Lang: "py"},
		{Kind: EventCodeLine, Text: "print(1)"},
		{Kind: EventCodeClose},
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %+v\nwant     %+v", events, want)
	}
}

func TestReasoningChannel(t *testing.T) {
	p := NewParser()
	var events []Event
	events = append(events, p.FeedReasoning("thinking ")...)
	events = append(events, p.FeedReasoning("hard")...)
	events = append(events, p.Feed("answer\n")...)
	events = append(events, p.Close()...)

	want := []Event{
		{Kind: EventReasoningOpen},
		{Kind: EventReasoningText, Text: "thinking "},
		{Kind: EventReasoningText, Text: "hard"},
		{Kind: EventReasoningClose},
		{Kind: EventProse, Text: "answer"},
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %+v\nwant     %+v", events, want)
	}
}

func TestReasoningClosedAtStreamEnd(t *testing.T) {
	p := NewParser()
	events := p.FeedReasoning("partial thought")
	events = append(events, p.Close()...)
	if last := events[len(events)-1]; last.Kind != EventReasoningClose {
		t.Errorf("last event = %v, want reasoning-close", last.Kind)
	}
}

func TestCRLFLines(t *testing.T) {
	events := collect("```go\r\nx\r\n```\r\n")
	if events[0].Kind != EventCodeOpen || events[0].Lang != "go" {
		t.Errorf("CRLF fence open: %+v", events[0])
	}
	if events[len(events)-1].Kind != EventCodeClose {
		t.Errorf("CRLF fence close: %+v", events[len(events)-1])
	}
}

func TestExtractCodeBlocks(t *testing.T) {
	text := "intro\n```go\nx := 1\ny := 2\n```\nmiddle\n```py\nprint(1)\n```\n"
	blocks := ExtractCodeBlocks(text)
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	if blocks[0].Lang != "go" || blocks[0].Code != "x := 1\ny := 2" {
		t.Errorf("block 0 = %+v", blocks[0])
	}
	if blocks[1].Lang != "py" || blocks[1].Code != "print(1)" {
		t.Errorf("block 1 = %+v", blocks[1])
	}
	if got := ExtractCodeBlocks("plain prose only\n"); got != nil {
		t.Errorf("prose-only extraction = %+v, want nil", got)
	}
}
