// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package summary compresses old conversation history into summary markers.
//
// The service replaces a contiguous run of older messages with one condensed
// assistant message carrying SummaryMeta. Oversized prefixes are split into
// bounded chunks, summarized independently, then merged, so providers with
// small per-request limits never see the whole prefix at once. Markers can
// be re-folded up to a capped level; a marker at the cap is left in place
// and only messages after it participate in later rounds.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/gptcli-tui/internal/model"
	"github.com/jeranaias/gptcli-tui/internal/tokens"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

const (
	// DefaultMinMessages is the smallest history worth summarizing.
	DefaultMinMessages = 6

	// DefaultKeepRecent messages are never folded into a summary.
	DefaultKeepRecent = 4

	// DefaultMaxLevels caps re-summarization depth. Each fold loses detail;
	// past this depth further compression destroys continuity.
	DefaultMaxLevels = 3

	// DefaultChunkTokenLimit bounds one summarization request. Some
	// providers reject large request bodies outright.
	DefaultChunkTokenLimit = 25_000
)

// Config tunes the service. Zero fields take the defaults above.
type Config struct {
	MinMessages     int
	KeepRecent      int
	MaxLevels       int
	ChunkTokenLimit int
}

func (c Config) withDefaults() Config {
	if c.MinMessages <= 0 {
		c.MinMessages = DefaultMinMessages
	}
	if c.KeepRecent <= 0 {
		c.KeepRecent = DefaultKeepRecent
	}
	if c.MaxLevels <= 0 {
		c.MaxLevels = DefaultMaxLevels
	}
	if c.ChunkTokenLimit <= 0 {
		c.ChunkTokenLimit = DefaultChunkTokenLimit
	}
	return c
}

// =============================================================================
// PROMPTS
// =============================================================================

const summarySystemPrompt = `You are an expert at summarizing conversations accurately and concisely.

Summarize the given conversation by these rules:
1. Preserve only essential information: concrete code changes, decisions made, important context.
2. Keep chronological structure so the flow of the conversation stays clear.
3. Preserve code and file references: file names, function names, and variable names must survive.
4. Drop greetings, repetition, and filler.
5. Extract the core of the user's original requests and the assistant's final answers.

Output format:
## Key discussion points
## Decisions and changes
## Important context

Target 20-30% of the original length.`

const mergeSystemPrompt = `Merge the existing summaries and new conversation content into one tighter summary.

Rules:
- Essential information from existing summaries must be preserved.
- Remove duplicated content and prefer the most recent information.
- Compress to at most 50% of the combined input.

Follow the same output format as the inputs.`

// =============================================================================
// SERVICE
// =============================================================================

// Completer performs one non-streaming model call. The transport satisfies
// it; failures carry through unchanged so the caller sees provider errors
// distinctly.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt, modelID string) (string, error)
}

// ErrNotEnoughMessages means the history is below the summarization floor.
var ErrNotEnoughMessages = errors.New("not enough messages to summarize")

// ErrMaxLevelReached means the foldable region is already fully compressed.
var ErrMaxLevelReached = errors.New("maximum summary level reached")

// Service produces summary markers. It never mutates history itself beyond
// the single ReplaceRange at the end of a successful pass; a failed pass
// leaves the conversation untouched.
type Service struct {
	est       *tokens.Estimator
	completer Completer
	cfg       Config

	// History records every marker produced this session.
	History []model.SummaryMeta
}

// New creates a summarization service.
func New(est *tokens.Estimator, completer Completer, cfg Config) *Service {
	return &Service{est: est, completer: completer, cfg: cfg.withDefaults()}
}

// Result describes one completed summarization pass.
type Result struct {
	Marker   *model.Message
	Replaced int
}

// Summarize folds the eligible history prefix into a marker and installs it
// in the conversation. force skips the message-count and level-cap guards
// (the level stored on the marker is still capped). Returns
// ErrNotEnoughMessages or ErrMaxLevelReached when nothing is eligible, or
// the completer's error verbatim when a model call fails.
func (s *Service) Summarize(ctx context.Context, conv *model.Conversation, modelID string, force bool) (*Result, error) {
	msgs := conv.Messages
	if len(msgs) < s.cfg.MinMessages && !force {
		return nil, ErrNotEnoughMessages
	}

	split := len(msgs) - s.cfg.KeepRecent
	if split < 1 {
		return nil, ErrNotEnoughMessages
	}

	// A marker already at the cap is never re-folded: summarization starts
	// after the last such marker.
	start := 0
	level := 0
	for i := 0; i < split; i++ {
		if m := msgs[i]; m.IsSummary() {
			if m.Summary.Level >= s.cfg.MaxLevels && !force {
				start = i + 1
				continue
			}
			if m.Summary.Level > level {
				level = m.Summary.Level
			}
		}
	}
	if split-start < 2 {
		if start > 0 {
			return nil, ErrMaxLevelReached
		}
		return nil, ErrNotEnoughMessages
	}

	region := msgs[start:split]
	tokensBefore := s.est.ConversationTokens(region)
	hasMarker := false
	for _, m := range region {
		if m.IsSummary() {
			hasMarker = true
			break
		}
	}

	text, err := s.summarizeRegion(ctx, region, modelID, hasMarker)
	if err != nil {
		return nil, err
	}

	newLevel := level + 1
	if newLevel > s.cfg.MaxLevels {
		newLevel = s.cfg.MaxLevels
	}
	body := "[Previous conversation summary]\n\n" + text
	meta := model.SummaryMeta{
		Level:         newLevel,
		ReplacedCount: len(region),
		TokensBefore:  tokensBefore,
		TokensAfter:   s.est.CountText(body) + tokens.MessageOverhead,
		ModelUsed:     modelID,
	}
	marker := model.NewSummaryMarker(body, meta)
	if err := conv.ReplaceRange(start, split, marker); err != nil {
		return nil, err
	}
	s.History = append(s.History, *marker.Summary)
	return &Result{Marker: marker, Replaced: len(region)}, nil
}

// =============================================================================
// REGION SUMMARIZATION
// =============================================================================

// summarizeRegion produces the condensed text for a message region,
// chunking when it exceeds the per-call limit.
func (s *Service) summarizeRegion(ctx context.Context, region []*model.Message, modelID string, refold bool) (string, error) {
	total := s.est.ConversationTokens(region)
	if total <= s.cfg.ChunkTokenLimit {
		system := summarySystemPrompt
		if refold {
			system = mergeSystemPrompt
		}
		return s.completer.Complete(ctx, system,
			"Summarize this conversation:\n\n"+formatForPrompt(region), modelID)
	}

	chunks := s.splitChunks(region)
	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		text, err := s.completer.Complete(ctx, summarySystemPrompt,
			"Summarize this conversation:\n\n"+formatForPrompt(chunk), modelID)
		if err != nil {
			return "", fmt.Errorf("summarize chunk %d/%d: %w", i+1, len(chunks), err)
		}
		parts = append(parts, fmt.Sprintf("[part %d]\n%s", i+1, text))
	}
	if len(parts) == 1 {
		return strings.TrimPrefix(parts[0], "[part 1]\n"), nil
	}
	merged, err := s.completer.Complete(ctx, mergeSystemPrompt,
		"Merge these partial summaries into one:\n\n"+strings.Join(parts, "\n\n---\n\n"), modelID)
	if err != nil {
		return "", fmt.Errorf("merge %d partial summaries: %w", len(parts), err)
	}
	return merged, nil
}

// splitChunks groups messages so no chunk exceeds the per-call token limit.
// A single oversized message still forms its own chunk; messages are never
// cut internally.
func (s *Service) splitChunks(region []*model.Message) [][]*model.Message {
	var chunks [][]*model.Message
	var cur []*model.Message
	curTokens := 0
	for _, m := range region {
		t := s.est.MessageTokens(m)
		if curTokens+t > s.cfg.ChunkTokenLimit && len(cur) > 0 {
			chunks = append(chunks, cur)
			cur = nil
			curTokens = 0
		}
		cur = append(cur, m)
		curTokens += t
	}
	if len(cur) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

// formatForPrompt flattens messages into the text handed to the summarizing
// model. Attachment bodies are elided; their presence is still recorded.
func formatForPrompt(region []*model.Message) string {
	var b strings.Builder
	for i, m := range region {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		tag := ""
		if m.IsSummary() {
			tag = " (existing summary)"
		}
		fmt.Fprintf(&b, "[message %d] %s%s:\n", i+1, strings.ToUpper(string(m.Role)), tag)
		for j := range m.Parts {
			p := &m.Parts[j]
			switch p.Kind {
			case model.PartText:
				b.WriteString(p.Text)
			case model.PartImage:
				fmt.Fprintf(&b, "[image attached: %s]", p.ImageName)
			case model.PartDocument:
				fmt.Fprintf(&b, "[file attached: %s]", p.DocName)
			case model.PartToolCall:
				if p.ToolCall != nil {
					fmt.Fprintf(&b, "[tool call: %s %s]", p.ToolCall.Name, p.ToolCall.Arguments)
				}
			case model.PartToolResult:
				if p.ToolResult != nil {
					fmt.Fprintf(&b, "[tool result: %s]\n%s", p.ToolResult.Name, p.ToolResult.Content)
				}
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
