// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import "strings"

// =============================================================================
// CODE BLOCK EXTRACTION
// =============================================================================

// CodeBlock is one fenced region recovered from a finished response, used
// for artifact save and diff pair selection.
type CodeBlock struct {
	Lang string
	Code string
}

// ExtractCodeBlocks runs a complete response text through the same state
// machine as live streaming and collects the outermost code regions.
// Nested fences stay part of their enclosing block.
func ExtractCodeBlocks(text string) []CodeBlock {
	p := NewParser()
	events := p.Feed(text)
	events = append(events, p.Close()...)

	var blocks []CodeBlock
	var cur *CodeBlock
	var lines []string
	for _, ev := range events {
		switch ev.Kind {
		case EventCodeOpen:
			cur = &CodeBlock{Lang: ev.Lang}
			lines = lines[:0]
		case EventCodeLine:
			if cur != nil {
				lines = append(lines, ev.Text)
			}
		case EventCodeClose:
			if cur != nil {
				cur.Code = strings.Join(lines, "\n")
				blocks = append(blocks, *cur)
				cur = nil
			}
		}
	}
	return blocks
}
