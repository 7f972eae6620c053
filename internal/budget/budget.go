// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package budget keeps an unbounded conversation inside a fixed token
// window. The manager owns the ordered history: it decides which messages
// go upstream each turn, applies compact-mode attachment substitution, and
// signals when usage is high enough that summarization must run.
package budget

import (
	"fmt"

	"github.com/jeranaias/gptcli-tui/internal/model"
	"github.com/jeranaias/gptcli-tui/internal/tokens"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// TrimRatio is the fraction of the raw available window actually handed
	// to history. The slack absorbs estimation error; estimates are not
	// billing-accurate.
	TrimRatio = 0.75

	// HighWaterMark is the usage fraction of the prompt budget past which
	// assembly signals for summarization instead of trimming harder.
	HighWaterMark = 0.80
)

// vendorOffsets shrinks the window for vendors whose server-side framing
// and tokenization eat into the advertised context length.
var vendorOffsets = map[model.Vendor]int{
	model.VendorAnthropic: 50_000,
	model.VendorGoogle:    10_000,
	model.VendorOpenAI:    10_000,
}

// ReservedOutput returns the completion reservation for a model context
// size. Large contexts reserve proportionally more.
func ReservedOutput(contextLength int) int {
	switch {
	case contextLength >= 200_000:
		return 32_000
	case contextLength >= 128_000:
		return 16_000
	default:
		return 4_096
	}
}

// =============================================================================
// LIMITS AND ERRORS
// =============================================================================

// Limits carries the per-turn budget inputs.
type Limits struct {
	ModelID            string
	ContextLength      int
	SystemPromptTokens int
	ToolSchemaTokens   int
}

// PromptBudget computes the token budget available to history: context
// length minus system prompt, vendor offset, reserved output, and tool
// schemas, scaled by TrimRatio.
func (l Limits) PromptBudget() int {
	offset := vendorOffsets[model.VendorOf(l.ModelID)]
	available := l.ContextLength - l.SystemPromptTokens - ReservedOutput(l.ContextLength) - offset - l.ToolSchemaTokens
	if available <= 0 {
		return 0
	}
	return int(float64(available) * TrimRatio)
}

// BudgetExceededError reports that even the minimum message set cannot fit
// the window. Surfaced to the user; nothing is silently dropped.
type BudgetExceededError struct {
	Needed int
	Budget int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("context budget exceeded: newest message needs %d tokens, budget is %d", e.Needed, e.Budget)
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager owns the conversation history and assembles the outbound message
// set each turn. Single-writer: only the conversation loop calls into it.
type Manager struct {
	conv    *model.Conversation
	est     *tokens.Estimator
	compact bool
}

// NewManager creates a manager over an empty conversation.
func NewManager(est *tokens.Estimator, conv *model.Conversation) *Manager {
	return &Manager{conv: conv, est: est}
}

// Conversation exposes the owned history for read-only walkers (renderers,
// persistence).
func (m *Manager) Conversation() *model.Conversation { return m.conv }

// Record appends a new message to history.
func (m *Manager) Record(msg *model.Message) {
	m.conv.Append(msg)
}

// SetCompactMode toggles attachment compaction. Enabling it affects future
// assembles; already-substituted placeholders never revert.
func (m *Manager) SetCompactMode(on bool) { m.compact = on }

// CompactMode reports whether compaction is active.
func (m *Manager) CompactMode() bool { return m.compact }

// =============================================================================
// ASSEMBLY
// =============================================================================

// Assembly is the outcome of one assemble pass.
type Assembly struct {
	// Messages is the outbound set in transcript order.
	Messages []*model.Message

	// Used and Budget are the estimated cost of Messages and the prompt
	// budget they were fitted into.
	Used   int
	Budget int

	// Dropped counts whole messages excluded to fit the budget.
	Dropped int

	// NeedsSummarization is set when usage crossed the high-water mark.
	// The caller runs summarization before the next turn rather than
	// letting the manager trim ever deeper.
	NeedsSummarization bool
}

// Assemble selects the outbound message set for the current turn. Summary
// markers are always preserved; regular messages are accumulated newest to
// oldest until the budget is hit. Messages are dropped whole, never
// internally truncated. Returns BudgetExceededError when not even the
// newest regular message fits alongside the markers.
func (m *Manager) Assemble(limits Limits) (*Assembly, error) {
	budget := limits.PromptBudget()
	if budget <= 0 {
		return nil, &BudgetExceededError{Needed: limits.SystemPromptTokens, Budget: budget}
	}

	if m.compact {
		m.compactSentAttachments()
	}

	var markers, regular []*model.Message
	markerTokens := 0
	for _, msg := range m.conv.Messages {
		if msg.IsSummary() {
			markers = append(markers, msg)
			markerTokens += m.est.MessageTokens(msg)
		} else {
			regular = append(regular, msg)
		}
	}

	effective := budget - markerTokens
	if effective <= 0 && len(regular) > 0 {
		return nil, &BudgetExceededError{Needed: markerTokens, Budget: budget}
	}

	// Newest to oldest; stop at the first message that does not fit.
	var keep []*model.Message
	used := 0
	for i := len(regular) - 1; i >= 0; i-- {
		t := m.est.MessageTokens(regular[i])
		if used+t > effective {
			break
		}
		keep = append(keep, regular[i])
		used += t
	}
	if len(keep) == 0 && len(regular) > 0 {
		return nil, &BudgetExceededError{
			Needed: m.est.MessageTokens(regular[len(regular)-1]),
			Budget: effective,
		}
	}
	// Reverse back into transcript order.
	for i, j := 0, len(keep)-1; i < j; i, j = i+1, j-1 {
		keep[i], keep[j] = keep[j], keep[i]
	}

	out := make([]*model.Message, 0, len(markers)+len(keep))
	out = append(out, markers...)
	out = append(out, keep...)

	total := markerTokens + used
	return &Assembly{
		Messages:           out,
		Used:               total,
		Budget:             budget,
		Dropped:            len(regular) - len(keep),
		NeedsSummarization: float64(total) >= float64(budget)*HighWaterMark,
	}, nil
}

// compactSentAttachments applies the one-way placeholder substitution to
// every message already shipped upstream.
func (m *Manager) compactSentAttachments() {
	for _, msg := range m.conv.Messages {
		if msg.Sent() && msg.HasAttachments() {
			msg.CompactAttachments()
		}
	}
}

// MarkAssemblySent flags every message of an assembly as shipped. Called
// after the transport accepts the request; compact mode keys off it.
func (m *Manager) MarkAssemblySent(a *Assembly) {
	for _, msg := range a.Messages {
		msg.MarkSent()
	}
}
