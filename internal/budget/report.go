// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package budget

import (
	"sort"

	"github.com/jeranaias/gptcli-tui/internal/model"
)

// =============================================================================
// CONTEXT USAGE REPORT
// =============================================================================

// CategoryUsage is one line of the per-category breakdown.
type CategoryUsage struct {
	Name   string
	Count  int
	Tokens int
}

// HeavyMessage identifies one of the costliest messages in history.
type HeavyMessage struct {
	Seq     int
	Role    model.Role
	Tokens  int
	Preview string
}

// Report is the context-usage record emitted on demand.
type Report struct {
	ModelID       string
	ContextLength int

	SystemPromptTokens int
	ReservedOutput     int
	VendorOffset       int
	ToolSchemaTokens   int

	PromptBudget  int
	HistoryTokens int
	TotalTokens   int // system + reserve + offset + history
	UsedPercent   float64

	Categories []CategoryUsage
	Heaviest   []HeavyMessage
}

// UsageReport computes the full breakdown for the current history.
func (m *Manager) UsageReport(limits Limits, topN int) *Report {
	offset := vendorOffsets[model.VendorOf(limits.ModelID)]
	r := &Report{
		ModelID:            limits.ModelID,
		ContextLength:      limits.ContextLength,
		SystemPromptTokens: limits.SystemPromptTokens,
		ReservedOutput:     ReservedOutput(limits.ContextLength),
		VendorOffset:       offset,
		ToolSchemaTokens:   limits.ToolSchemaTokens,
		PromptBudget:       limits.PromptBudget(),
	}

	cats := map[string]*CategoryUsage{}
	bump := func(name string, t int) {
		c, ok := cats[name]
		if !ok {
			c = &CategoryUsage{Name: name}
			cats[name] = c
		}
		c.Count++
		c.Tokens += t
	}

	var heavy []HeavyMessage
	for _, msg := range m.conv.Messages {
		t := m.est.MessageTokens(msg)
		r.HistoryTokens += t
		switch {
		case msg.IsSummary():
			bump("summary", t)
		case msg.HasAttachments():
			bump("attachment", t)
		case msg.Role == model.RoleTool:
			bump("tool-result", t)
		default:
			bump(string(msg.Role), t)
		}
		heavy = append(heavy, HeavyMessage{
			Seq:     msg.Seq,
			Role:    msg.Role,
			Tokens:  t,
			Preview: msg.Preview(60),
		})
	}

	for _, c := range cats {
		r.Categories = append(r.Categories, *c)
	}
	sort.Slice(r.Categories, func(i, j int) bool {
		return r.Categories[i].Tokens > r.Categories[j].Tokens
	})

	sort.Slice(heavy, func(i, j int) bool { return heavy[i].Tokens > heavy[j].Tokens })
	if topN > 0 && len(heavy) > topN {
		heavy = heavy[:topN]
	}
	r.Heaviest = heavy

	r.TotalTokens = limits.SystemPromptTokens + r.ReservedOutput + offset + limits.ToolSchemaTokens + r.HistoryTokens
	if limits.ContextLength > 0 {
		r.UsedPercent = float64(r.TotalTokens) / float64(limits.ContextLength) * 100
	}
	return r
}
