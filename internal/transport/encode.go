// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"github.com/jeranaias/gptcli-tui/internal/model"
)

// =============================================================================
// WIRE ENCODING
// =============================================================================

// ChatMessage is one message in chat-completions wire format. Content is a
// string for plain text and a part array when attachments are present.
type ChatMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wirePart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *wireImageURL `json:"image_url,omitempty"`
	File     *wireFile     `json:"file,omitempty"`
}

type wireImageURL struct {
	URL string `json:"url"`
}

type wireFile struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

// BuildMessages converts an assembled window to wire format. A non-empty
// system prompt becomes the leading message. Tool-result parts become
// separate tool-role messages because the wire format carries one result
// per message.
func BuildMessages(systemPrompt string, msgs []*model.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs)+1)
	if systemPrompt != "" {
		out = append(out, ChatMessage{Role: "system", Content: systemPrompt})
	}
	for _, m := range msgs {
		out = append(out, encodeMessage(m)...)
	}
	return out
}

func encodeMessage(m *model.Message) []ChatMessage {
	var (
		parts     []wirePart
		toolCalls []wireToolCall
		results   []ChatMessage
	)

	for i := range m.Parts {
		p := &m.Parts[i]
		switch p.Kind {
		case model.PartText:
			if p.Text != "" {
				parts = append(parts, wirePart{Type: "text", Text: p.Text})
			}
		case model.PartImage:
			if p.Placeholder {
				parts = append(parts, wirePart{Type: "text", Text: p.Text})
			} else {
				parts = append(parts, wirePart{Type: "image_url", ImageURL: &wireImageURL{URL: p.ImageData}})
			}
		case model.PartDocument:
			if p.Placeholder {
				parts = append(parts, wirePart{Type: "text", Text: p.Text})
			} else {
				parts = append(parts, wirePart{Type: "file", File: &wireFile{Filename: p.DocName, FileData: p.DocData}})
			}
		case model.PartToolCall:
			if p.ToolCall != nil {
				toolCalls = append(toolCalls, wireToolCall{
					ID:   p.ToolCall.ID,
					Type: "function",
					Function: wireFunction{
						Name:      p.ToolCall.Name,
						Arguments: p.ToolCall.Arguments,
					},
				})
			}
		case model.PartToolResult:
			if p.ToolResult != nil {
				results = append(results, ChatMessage{
					Role:       "tool",
					Content:    p.ToolResult.Content,
					ToolCallID: p.ToolResult.CallID,
				})
			}
		}
	}

	var out []ChatMessage
	if len(parts) > 0 || len(toolCalls) > 0 {
		out = append(out, ChatMessage{
			Role:      m.Role.String(),
			Content:   flattenParts(parts),
			ToolCalls: toolCalls,
		})
	}
	return append(out, results...)
}

// flattenParts collapses an all-text part list to a plain string; every
// provider accepts the string form, not all accept a single-element array.
func flattenParts(parts []wirePart) any {
	allText := true
	for i := range parts {
		if parts[i].Type != "text" {
			allText = false
			break
		}
	}
	if !allText {
		return parts
	}
	text := ""
	for i := range parts {
		text += parts[i].Text
	}
	return text
}
