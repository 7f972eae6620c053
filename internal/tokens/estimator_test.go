// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tokens

import (
	"strings"
	"testing"

	"github.com/jeranaias/gptcli-tui/internal/model"
)

// heuristicEstimator builds an estimator without tokenizer tables so tests
// stay deterministic and offline (bytes/4 text heuristic).
func heuristicEstimator(modelID string) *Estimator {
	e := &Estimator{}
	e.setModel(modelID)
	return e
}

func TestVendorMultiplierSelection(t *testing.T) {
	cases := []struct {
		modelID string
		want    float64
	}{
		{"openai/gpt-4o", 1.0},
		{"anthropic/claude-opus-4.5", 1.1},
		{"google/gemini-2.5-pro", 1.2},
		{"qwen/qwen3-coder", 1.0},
	}
	for _, tc := range cases {
		e := heuristicEstimator(tc.modelID)
		if e.multiplier != tc.want {
			t.Errorf("%s: multiplier = %v, want %v", tc.modelID, e.multiplier, tc.want)
		}
	}
}

func TestUpdateModelRecalibrates(t *testing.T) {
	e := heuristicEstimator("openai/gpt-4o")
	e.UpdateModel("anthropic/claude-opus-4.5")
	if e.Vendor() != model.VendorAnthropic || e.multiplier != 1.1 {
		t.Errorf("after switch: vendor=%s multiplier=%v", e.Vendor(), e.multiplier)
	}
}

func TestImageTokensTileMath(t *testing.T) {
	e := heuristicEstimator("openai/gpt-4o")

	cases := []struct {
		name          string
		width, height int
		detail        string
		want          int
	}{
		// Low detail is a flat charge, size irrelevant.
		{"low detail", 4000, 3000, "low", 85},
		// 512x512 fits in one tile.
		{"single tile", 512, 512, "high", 85 + 170},
		// 1024x768: short side already 768, 2x2 tiles.
		{"four tiles", 1024, 768, "high", 85 + 170*4},
		// 2048x2048 scales to 768x768: 2x2 tiles.
		{"square downscale", 2048, 2048, "high", 85 + 170*4},
		// 4096x2048 fits to 2048x1024 then 1536x768: 3x2 tiles.
		{"wide downscale", 4096, 2048, "high", 85 + 170*6},
	}
	for _, tc := range cases {
		if got := e.ImageTokens(tc.width, tc.height, tc.detail); got != tc.want {
			t.Errorf("%s: ImageTokens(%d,%d,%s) = %d, want %d",
				tc.name, tc.width, tc.height, tc.detail, got, tc.want)
		}
	}
}

func TestImageTokensVendorScaled(t *testing.T) {
	e := heuristicEstimator("anthropic/claude-opus-4.5")
	scaled := float64(85+170) * 1.1
	want := int(scaled)
	if got := e.ImageTokens(512, 512, "high"); got != want {
		t.Errorf("scaled tile cost = %d, want %d", got, want)
	}
}

func TestEstimateImageDataUndecodableFallsBackToPayload(t *testing.T) {
	e := heuristicEstimator("openai/gpt-4o")
	// Valid base64, not a decodable image: charge payload length / 4.
	payload := strings.Repeat("QUJD", 100) // 400 chars
	if got := e.EstimateImageData("data:image/png;base64,"+payload, "auto"); got != 100 {
		t.Errorf("payload fallback = %d, want 100", got)
	}
}

func TestEstimateDocumentDataPDFSurcharge(t *testing.T) {
	e := heuristicEstimator("openai/gpt-4o")
	payload := strings.Repeat("A", 400)
	plain := e.EstimateDocumentData("notes.txt", payload)
	pdf := e.EstimateDocumentData("report.PDF", payload)
	if plain != 100 {
		t.Errorf("plain document = %d, want 100", plain)
	}
	if pdf != 150 {
		t.Errorf("pdf document = %d, want 150", pdf)
	}
}

func TestMessageTokensIncludesOverhead(t *testing.T) {
	e := heuristicEstimator("openai/gpt-4o")
	m := model.NewUserMessage(strings.Repeat("a", 400)) // 100 heuristic tokens
	if got := e.MessageTokens(m); got != MessageOverhead+100 {
		t.Errorf("MessageTokens = %d, want %d", got, MessageOverhead+100)
	}
}

func TestMessageTokensMemoized(t *testing.T) {
	e := heuristicEstimator("openai/gpt-4o")
	m := model.NewUserMessage("hello")

	first := e.MessageTokens(m)
	if n, ok := m.CachedTokens(); !ok || n != first {
		t.Fatalf("estimate not memoized: (%d, %v)", n, ok)
	}

	// A poisoned cache is returned as-is until invalidated.
	m.SetCachedTokens(7777)
	if got := e.MessageTokens(m); got != 7777 {
		t.Errorf("memoized value ignored: %d", got)
	}

	m.AppendText(" world")
	if got := e.MessageTokens(m); got == 7777 {
		t.Error("mutation did not force recomputation")
	}
}

func TestToolResultPartTokens(t *testing.T) {
	e := heuristicEstimator("openai/gpt-4o")
	m := model.NewToolResultMessage(model.ToolResult{
		CallID:  "call_12345678", // 13 chars -> 3
		Name:    "Read",
		Content: strings.Repeat("x", 40), // 10 heuristic tokens
	})
	want := MessageOverhead + 10 + 3 + 10
	if got := e.MessageTokens(m); got != want {
		t.Errorf("tool result message = %d, want %d", got, want)
	}
}

func TestConversationTokensSums(t *testing.T) {
	e := heuristicEstimator("openai/gpt-4o")
	msgs := []*model.Message{
		model.NewUserMessage(strings.Repeat("a", 40)),
		model.NewUserMessage(strings.Repeat("b", 80)),
	}
	want := (MessageOverhead + 10) + (MessageOverhead + 20)
	if got := e.ConversationTokens(msgs); got != want {
		t.Errorf("ConversationTokens = %d, want %d", got, want)
	}
}
