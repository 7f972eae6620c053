// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"time"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is the ordered transcript of a session. Insertion order is
// significant; Seq values increase monotonically and survive summarization
// (a marker takes a fresh Seq, the replaced messages are gone).
//
// Single-writer: only the conversation loop mutates a Conversation. The
// budget manager and renderers read it.
type Conversation struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Messages  []*Message `json:"messages"`

	nextSeq int
}

// NewConversation creates an empty conversation.
func NewConversation(name string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        "conv_" + now.Format("20060102150405"),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message to the end of the transcript and assigns its
// sequence index.
func (c *Conversation) Append(m *Message) {
	m.Seq = c.nextSeq
	c.nextSeq++
	c.Messages = append(c.Messages, m)
	c.UpdatedAt = time.Now()
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.Messages)
}

// Last returns the newest message, or nil for an empty conversation.
func (c *Conversation) Last() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// LastAssistantText returns the text of the most recent assistant message,
// skipping summary markers, or "" if there is none.
func (c *Conversation) LastAssistantText() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		m := c.Messages[i]
		if m.Role == RoleAssistant && !m.IsSummary() {
			return m.Text()
		}
	}
	return ""
}

// ReplacePrefix substitutes the first n messages with a summary marker.
// The marker gets a fresh sequence index so ordering stays monotonic.
func (c *Conversation) ReplacePrefix(n int, marker *Message) error {
	return c.ReplaceRange(0, n, marker)
}

// ReplaceRange substitutes messages [start, end) with a summary marker.
// Used when an earlier region must stay untouched, e.g. a marker already at
// the maximum summary level and everything before it.
func (c *Conversation) ReplaceRange(start, end int, marker *Message) error {
	if start < 0 || end <= start || end > len(c.Messages) {
		return fmt.Errorf("replace range: [%d, %d) of %d messages", start, end, len(c.Messages))
	}
	marker.Seq = c.nextSeq
	c.nextSeq++
	out := make([]*Message, 0, len(c.Messages)-(end-start)+1)
	out = append(out, c.Messages[:start]...)
	out = append(out, marker)
	out = append(out, c.Messages[end:]...)
	c.Messages = out
	c.UpdatedAt = time.Now()
	return nil
}

// SummaryLevel returns the highest summary level present in the first n
// messages (0 when none of them is a marker).
func (c *Conversation) SummaryLevel(n int) int {
	if n > len(c.Messages) {
		n = len(c.Messages)
	}
	level := 0
	for _, m := range c.Messages[:n] {
		if m.IsSummary() && m.Summary.Level > level {
			level = m.Summary.Level
		}
	}
	return level
}

// Reset drops all messages but keeps identity and sequence counter, so a
// restored snapshot never reuses sequence indices.
func (c *Conversation) Reset() {
	c.Messages = nil
	c.UpdatedAt = time.Now()
}
