// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package summary

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jeranaias/gptcli-tui/internal/model"
	"github.com/jeranaias/gptcli-tui/internal/tokens"
)

// fakeCompleter returns a canned summary and records every call.
type fakeCompleter struct {
	reply   string
	err     error
	calls   []string // system prompts, in order
	prompts []string // user prompts, in order
}

func (f *fakeCompleter) Complete(_ context.Context, system, user, _ string) (string, error) {
	f.calls = append(f.calls, system)
	f.prompts = append(f.prompts, user)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func newTestService(fc *fakeCompleter, cfg Config) *Service {
	est := tokens.NewEstimator("qwen/qwen3-coder")
	return New(est, fc, cfg)
}

// seedConv builds a conversation of n user/assistant turns with fixed
// per-message token costs.
func seedConv(n, cost int) *model.Conversation {
	conv := model.NewConversation("test")
	for i := 0; i < n; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		m := model.NewMessage(role, model.TextPart("turn"))
		conv.Append(m)
		m.SetCachedTokens(cost)
	}
	return conv
}

func TestSummarizeReplacesPrefixAndKeepsRecent(t *testing.T) {
	fc := &fakeCompleter{reply: "short summary"}
	svc := newTestService(fc, Config{})
	conv := seedConv(10, 500)
	newest := conv.Last()

	res, err := svc.Summarize(context.Background(), conv, "m", false)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if res.Replaced != 6 {
		t.Errorf("Replaced = %d, want 6 (10 - keep 4)", res.Replaced)
	}
	if conv.Len() != 5 {
		t.Errorf("Len() = %d, want 5 (marker + 4 recent)", conv.Len())
	}
	if !conv.Messages[0].IsSummary() || conv.Messages[0].Summary.Level != 1 {
		t.Errorf("marker = %+v", conv.Messages[0])
	}
	if conv.Last() != newest {
		t.Error("newest message lost")
	}
	if !strings.Contains(conv.Messages[0].Text(), "short summary") {
		t.Errorf("marker text = %q", conv.Messages[0].Text())
	}
	if len(fc.calls) != 1 || fc.calls[0] != summarySystemPrompt {
		t.Errorf("expected one plain summary call, got %d", len(fc.calls))
	}
}

func TestSummarizeCompressionRatioAboveOne(t *testing.T) {
	fc := &fakeCompleter{reply: "tiny"}
	svc := newTestService(fc, Config{})
	conv := seedConv(10, 2_000)

	res, err := svc.Summarize(context.Background(), conv, "m", false)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	meta := res.Marker.Summary
	if meta.TokensBefore != 12_000 {
		t.Errorf("TokensBefore = %d, want 12000", meta.TokensBefore)
	}
	if meta.CompressionRatio() <= 1 {
		t.Errorf("CompressionRatio = %v, want > 1", meta.CompressionRatio())
	}
	if meta.TokenDelta() <= 0 {
		t.Errorf("TokenDelta = %d, want > 0", meta.TokenDelta())
	}
}

func TestSummarizeTooFewMessages(t *testing.T) {
	fc := &fakeCompleter{reply: "s"}
	svc := newTestService(fc, Config{})
	conv := seedConv(4, 100)

	if _, err := svc.Summarize(context.Background(), conv, "m", false); !errors.Is(err, ErrNotEnoughMessages) {
		t.Errorf("err = %v, want ErrNotEnoughMessages", err)
	}
	if len(fc.calls) != 0 {
		t.Error("completer called despite guard")
	}
}

func TestRefoldUsesMergePromptAndBumpsLevel(t *testing.T) {
	fc := &fakeCompleter{reply: "merged"}
	svc := newTestService(fc, Config{})
	conv := model.NewConversation("test")
	marker := model.NewSummaryMarker("old summary", model.SummaryMeta{Level: 1})
	conv.Append(marker)
	marker.SetCachedTokens(300)
	for i := 0; i < 9; i++ {
		m := model.NewMessage(model.RoleUser, model.TextPart("x"))
		conv.Append(m)
		m.SetCachedTokens(200)
	}

	res, err := svc.Summarize(context.Background(), conv, "m", false)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if res.Marker.Summary.Level != 2 {
		t.Errorf("Level = %d, want 2", res.Marker.Summary.Level)
	}
	if fc.calls[0] != mergeSystemPrompt {
		t.Error("re-fold should use the merge prompt")
	}
	if !strings.Contains(fc.prompts[0], "(existing summary)") {
		t.Error("existing marker not tagged in the prompt")
	}
}

func TestMaxLevelMarkerNeverRefolded(t *testing.T) {
	fc := &fakeCompleter{reply: "s"}
	svc := newTestService(fc, Config{})
	conv := model.NewConversation("test")
	capped := model.NewSummaryMarker("deep summary", model.SummaryMeta{Level: DefaultMaxLevels})
	conv.Append(capped)
	capped.SetCachedTokens(300)
	for i := 0; i < 9; i++ {
		m := model.NewMessage(model.RoleUser, model.TextPart("x"))
		conv.Append(m)
		m.SetCachedTokens(200)
	}

	res, err := svc.Summarize(context.Background(), conv, "m", false)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	// The capped marker stays in place; only messages after it fold.
	if conv.Messages[0] != capped {
		t.Fatal("capped marker was folded")
	}
	if strings.Contains(fc.prompts[0], "deep summary") {
		t.Error("capped marker content leaked into the summarization prompt")
	}
	if res.Marker.Summary.Level != 1 {
		t.Errorf("new marker Level = %d, want 1 (fresh region)", res.Marker.Summary.Level)
	}
	if conv.Len() != 6 {
		t.Errorf("Len() = %d, want 6 (capped + new marker + 4 recent)", conv.Len())
	}
}

func TestOnlyCappedRegionLeftErrors(t *testing.T) {
	fc := &fakeCompleter{reply: "s"}
	svc := newTestService(fc, Config{})
	conv := model.NewConversation("test")
	capped := model.NewSummaryMarker("deep", model.SummaryMeta{Level: DefaultMaxLevels})
	conv.Append(capped)
	capped.SetCachedTokens(100)
	for i := 0; i < 5; i++ {
		m := model.NewMessage(model.RoleUser, model.TextPart("x"))
		conv.Append(m)
		m.SetCachedTokens(100)
	}
	// split = 2: after the capped marker only one message is foldable.
	if _, err := svc.Summarize(context.Background(), conv, "m", false); !errors.Is(err, ErrMaxLevelReached) {
		t.Errorf("err = %v, want ErrMaxLevelReached", err)
	}
}

func TestChunkedSummarization(t *testing.T) {
	fc := &fakeCompleter{reply: "part summary"}
	svc := newTestService(fc, Config{ChunkTokenLimit: 1_000})
	conv := seedConv(10, 600) // region of 6 messages = 3600 tokens -> 3+ chunks

	_, err := svc.Summarize(context.Background(), conv, "m", false)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	// 6 messages at 600 tokens with a 1000 limit: each chunk holds one
	// message (600+600 > 1000), so 6 chunk calls plus one merge.
	if len(fc.calls) != 7 {
		t.Fatalf("completer calls = %d, want 7 (6 chunks + merge)", len(fc.calls))
	}
	if fc.calls[len(fc.calls)-1] != mergeSystemPrompt {
		t.Error("final call should be the merge")
	}
	if !strings.Contains(fc.prompts[len(fc.prompts)-1], "[part 1]") {
		t.Error("merge prompt missing part labels")
	}
}

func TestChunkFailureLeavesHistoryUntouched(t *testing.T) {
	boom := errors.New("provider unavailable")
	fc := &fakeCompleter{err: boom}
	svc := newTestService(fc, Config{})
	conv := seedConv(10, 500)

	_, err := svc.Summarize(context.Background(), conv, "m", false)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped provider error", err)
	}
	if conv.Len() != 10 {
		t.Errorf("Len() = %d after failure, want 10 untouched", conv.Len())
	}
	for _, m := range conv.Messages {
		if m.IsSummary() {
			t.Fatal("marker installed despite failure")
		}
	}
	if len(svc.History) != 0 {
		t.Error("failed pass recorded in History")
	}
}

func TestSplitChunksNeverCutsMessages(t *testing.T) {
	fc := &fakeCompleter{reply: "s"}
	svc := newTestService(fc, Config{ChunkTokenLimit: 1_000})
	var region []*model.Message
	for _, cost := range []int{400, 400, 400, 5_000, 100} {
		m := model.NewMessage(model.RoleUser, model.TextPart("x"))
		m.SetCachedTokens(cost)
		region = append(region, m)
	}
	chunks := svc.splitChunks(region)
	// [400 400] [400] [5000] [100]: the oversized message forms its own
	// chunk rather than being truncated.
	if len(chunks) != 4 {
		t.Fatalf("chunks = %d, want 4", len(chunks))
	}
	if len(chunks[2]) != 1 {
		t.Errorf("oversized message not isolated: %d messages in its chunk", len(chunks[2]))
	}
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	if total != len(region) {
		t.Errorf("chunking lost messages: %d of %d", total, len(region))
	}
}
