// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	case RoleTool:
		return "Tool"
	default:
		return string(r)
	}
}

// =============================================================================
// CONTENT PARTS
// =============================================================================

// PartKind identifies the type of a message content part.
type PartKind string

const (
	PartText       PartKind = "text"
	PartImage      PartKind = "image"
	PartDocument   PartKind = "document"
	PartToolCall   PartKind = "tool_call"
	PartToolResult PartKind = "tool_result"
)

// ToolCall is a structured tool request emitted by the model. The ID
// correlates the call with its eventual result message.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON object
}

// NewToolCallID generates a correlation id for a tool call that arrived
// without one (some providers omit ids on streamed fragments).
func NewToolCallID() string {
	return "call_" + uuid.NewString()
}

// ToolResult is the outcome of executing a ToolCall, fed back to the model.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// ContentPart is one element of a message's ordered content.
// Exactly the fields relevant to Kind are populated.
type ContentPart struct {
	Kind PartKind `json:"kind"`

	// PartText
	Text string `json:"text,omitempty"`

	// PartImage: base64 data URL plus the original file name
	ImageName string `json:"image_name,omitempty"`
	ImageData string `json:"image_data,omitempty"`

	// PartDocument (PDF and similar binary attachments)
	DocName string `json:"doc_name,omitempty"`
	DocData string `json:"doc_data,omitempty"`

	// PartToolCall / PartToolResult
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`

	// Placeholder marks an attachment part whose body has been replaced
	// by a lightweight reference (compact mode). Once set it never reverts.
	Placeholder bool `json:"placeholder,omitempty"`
}

// TextPart builds a plain text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Kind: PartText, Text: text}
}

// ImagePart builds an image attachment part from a data URL.
func ImagePart(name, dataURL string) ContentPart {
	return ContentPart{Kind: PartImage, ImageName: name, ImageData: dataURL}
}

// DocumentPart builds a document attachment part from a data URL.
func DocumentPart(name, dataURL string) ContentPart {
	return ContentPart{Kind: PartDocument, DocName: name, DocData: dataURL}
}

// IsAttachment reports whether the part carries an attachment body.
func (p *ContentPart) IsAttachment() bool {
	return p.Kind == PartImage || p.Kind == PartDocument
}

// =============================================================================
// SUMMARY METADATA
// =============================================================================

// SummaryMeta is attached to a summary marker message. A marker replaces a
// contiguous run of older messages with their condensed equivalent.
type SummaryMeta struct {
	// Level is 1 for a first summary; re-summarizing a region that already
	// contains a marker produces Level+1, capped by the summarization
	// service's configured maximum.
	Level int `json:"level"`

	// ReplacedCount is how many messages the marker stands in for.
	ReplacedCount int `json:"replaced_count"`

	// TokensBefore and TokensAfter record the compression achieved.
	TokensBefore int `json:"tokens_before"`
	TokensAfter  int `json:"tokens_after"`

	// ModelUsed names the model that produced the summary.
	ModelUsed string `json:"model_used"`

	CreatedAt time.Time `json:"created_at"`
}

// CompressionRatio returns tokens-before / tokens-after. A ratio above 1
// means the summary is smaller than what it replaced.
func (s *SummaryMeta) CompressionRatio() float64 {
	if s.TokensAfter <= 0 {
		return 0
	}
	return float64(s.TokensBefore) / float64(s.TokensAfter)
}

// TokenDelta returns the absolute token reduction achieved by the summary.
func (s *SummaryMeta) TokenDelta() int {
	return s.TokensBefore - s.TokensAfter
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single turn in a conversation.
//
// The token cost is memoized because estimation is not free (tiktoken pass
// over every part) and assemble() re-reads it on every turn; any mutation
// must invalidate it via InvalidateTokens.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"timestamp"`

	// Content
	Parts []ContentPart `json:"parts"`

	// Summary is non-nil when this message is a summary marker.
	Summary *SummaryMeta `json:"summary,omitempty"`

	// sent records that this message has been shipped upstream at least
	// once. Compact mode keys off it: attachments of sent messages are
	// replaced with placeholders on subsequent assembles.
	sent bool

	// tokenCost caches the estimated token cost; tokenValid guards it so
	// that zero-value messages (e.g. freshly unmarshaled) recompute.
	tokenCost  int
	tokenValid bool
}

// NewMessage creates a message with a generated id and no sequence assigned.
// The conversation assigns Seq on Append.
func NewMessage(role Role, parts ...ContentPart) *Message {
	return &Message{
		ID:        "msg_" + uuid.NewString(),
		Role:      role,
		Timestamp: time.Now(),
		Parts:     parts,
	}
}

// NewUserMessage creates a user message with a single text part.
func NewUserMessage(text string) *Message {
	return NewMessage(RoleUser, TextPart(text))
}

// NewAssistantMessage creates an empty assistant message, ready to receive
// streamed text via AppendText.
func NewAssistantMessage() *Message {
	return NewMessage(RoleAssistant)
}

// NewSystemMessage creates a system message with a single text part.
func NewSystemMessage(text string) *Message {
	return NewMessage(RoleSystem, TextPart(text))
}

// NewToolResultMessage wraps a tool result in a tool-role message.
func NewToolResultMessage(result ToolResult) *Message {
	r := result
	return NewMessage(RoleTool, ContentPart{Kind: PartToolResult, ToolResult: &r})
}

// NewSummaryMarker creates the synthetic message that replaces a summarized
// history prefix.
func NewSummaryMarker(text string, meta SummaryMeta) *Message {
	m := NewMessage(RoleAssistant, TextPart(text))
	meta.CreatedAt = time.Now()
	m.Summary = &meta
	return m
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// IsSummary reports whether the message is a summary marker.
func (m *Message) IsSummary() bool {
	return m.Summary != nil
}

// Text concatenates all text parts.
func (m *Message) Text() string {
	var b strings.Builder
	for i := range m.Parts {
		if m.Parts[i].Kind == PartText {
			b.WriteString(m.Parts[i].Text)
		}
	}
	return b.String()
}

// AppendText appends streamed text to the trailing text part, creating one
// if the message ends with a non-text part.
func (m *Message) AppendText(text string) {
	if text == "" {
		return
	}
	if n := len(m.Parts); n > 0 && m.Parts[n-1].Kind == PartText {
		m.Parts[n-1].Text += text
	} else {
		m.Parts = append(m.Parts, TextPart(text))
	}
	m.InvalidateTokens()
}

// AddPart appends a content part.
func (m *Message) AddPart(p ContentPart) {
	m.Parts = append(m.Parts, p)
	m.InvalidateTokens()
}

// ToolCalls returns the tool call parts in emission order.
func (m *Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for i := range m.Parts {
		if m.Parts[i].Kind == PartToolCall && m.Parts[i].ToolCall != nil {
			calls = append(calls, *m.Parts[i].ToolCall)
		}
	}
	return calls
}

// HasAttachments reports whether any part still carries an attachment body.
func (m *Message) HasAttachments() bool {
	for i := range m.Parts {
		if m.Parts[i].IsAttachment() && !m.Parts[i].Placeholder {
			return true
		}
	}
	return false
}

// MarkSent records that the message has been shipped upstream.
func (m *Message) MarkSent() {
	m.sent = true
}

// Sent reports whether the message has been shipped upstream at least once.
func (m *Message) Sent() bool {
	return m.sent
}

// CompactAttachments replaces attachment bodies with placeholder references.
// The transition is one-way: the original bodies are discarded for the rest
// of the session (persistence happens before compaction).
func (m *Message) CompactAttachments() {
	changed := false
	for i := range m.Parts {
		p := &m.Parts[i]
		if !p.IsAttachment() || p.Placeholder {
			continue
		}
		switch p.Kind {
		case PartImage:
			p.ImageData = ""
			p.Text = "[attachment: " + p.ImageName + " (sent earlier)]"
		case PartDocument:
			p.DocData = ""
			p.Text = "[attachment: " + p.DocName + " (sent earlier)]"
		}
		p.Placeholder = true
		changed = true
	}
	if changed {
		m.InvalidateTokens()
	}
}

// Preview returns a width-bounded preview of the message text.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	text := m.Text()
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty reports whether the message has no content at all.
func (m *Message) IsEmpty() bool {
	return len(m.Parts) == 0
}

// =============================================================================
// TOKEN COST MEMOIZATION
// =============================================================================

// CachedTokens returns the memoized token cost and whether it is valid.
func (m *Message) CachedTokens() (int, bool) {
	return m.tokenCost, m.tokenValid
}

// SetCachedTokens stores the estimated token cost.
func (m *Message) SetCachedTokens(n int) {
	if n < 0 {
		n = 0
	}
	m.tokenCost = n
	m.tokenValid = true
}

// InvalidateTokens drops the memoized token cost.
func (m *Message) InvalidateTokens() {
	m.tokenCost = 0
	m.tokenValid = false
}
