// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jeranaias/gptcli-tui/internal/loop"
	"github.com/jeranaias/gptcli-tui/internal/model"
	"github.com/jeranaias/gptcli-tui/internal/storage"
	"github.com/jeranaias/gptcli-tui/internal/tools"
	"github.com/jeranaias/gptcli-tui/internal/transport"
)

// echoCaller answers every round with text, optionally one tool round first.
type echoCaller struct {
	toolFirst bool
	rounds    int
}

func (c *echoCaller) StreamTurn(ctx context.Context, req transport.Request, onDelta func(transport.Event)) (*loop.Turn, error) {
	c.rounds++
	if c.toolFirst && c.rounds == 1 {
		return &loop.Turn{ToolCalls: []model.ToolCall{
			{ID: "call_1", Name: "Read", Arguments: `{"file_path":"a.go"}`},
		}}, nil
	}
	return &loop.Turn{Text: "echo reply"}, nil
}

type nopExec struct{}

func (nopExec) Execute(ctx context.Context, call model.ToolCall) model.ToolResult {
	return model.ToolResult{CallID: call.ID, Name: call.Name, Content: "ok"}
}

type cannedCompleter struct{ calls int }

func (c *cannedCompleter) Complete(ctx context.Context, systemPrompt, userPrompt, modelID string) (string, error) {
	c.calls++
	return "condensed history", nil
}

func newTestSession(t *testing.T, caller loop.Caller, store *storage.Store) *Session {
	t.Helper()
	return New(Config{
		Name:         "test",
		ModelID:      "anthropic/claude-sonnet-4",
		Trust:        tools.TrustFull,
		ToolsEnabled: true,
		Caller:       caller,
		Executor:     nopExec{},
		Completer:    &cannedCompleter{},
		Store:        store,
	})
}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSendPersistsOnlyFinalText(t *testing.T) {
	s := newTestSession(t, &echoCaller{toolFirst: true}, nil)

	reply, err := s.Send(context.Background(), model.NewUserMessage("hi"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if reply != "echo reply" || s.LastResponse() != "echo reply" {
		t.Errorf("reply = %q", reply)
	}

	// tool traffic stays out of history: user + final assistant only
	hist := s.History()
	if len(hist) != 2 {
		t.Fatalf("history = %d messages, want 2", len(hist))
	}
	if hist[1].Role != model.RoleAssistant || hist[1].Text() != "echo reply" {
		t.Errorf("assistant = %+v", hist[1])
	}
	if !hist[0].Sent() || !hist[1].Sent() {
		t.Error("messages not marked sent after turn")
	}
}

func TestForcedSummarizeFoldsHistory(t *testing.T) {
	s := newTestSession(t, &echoCaller{}, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := s.Send(ctx, model.NewUserMessage("msg"), nil); err != nil {
			t.Fatal(err)
		}
	}
	if len(s.History()) != 6 {
		t.Fatalf("history = %d", len(s.History()))
	}

	res, err := s.Summarize(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Marker == nil || !res.Marker.IsSummary() {
		t.Fatalf("result = %+v", res)
	}
	hist := s.History()
	// default keep-recent of 4: marker + 4 verbatim
	if len(hist) != 5 || !hist[0].IsSummary() {
		t.Errorf("history after fold = %d messages, first summary=%v", len(hist), hist[0].IsSummary())
	}
	if len(s.SummaryHistory()) != 1 {
		t.Errorf("summary history = %+v", s.SummaryHistory())
	}
}

func TestSetModelInvalidatesTokenCaches(t *testing.T) {
	s := newTestSession(t, &echoCaller{}, nil)
	if _, err := s.Send(context.Background(), model.NewUserMessage("hello"), nil); err != nil {
		t.Fatal(err)
	}
	hist := s.History()
	hist[0].SetCachedTokens(42)

	if err := s.SetModel("openai/gpt-4o"); err != nil {
		t.Fatal(err)
	}
	if _, ok := hist[0].CachedTokens(); ok {
		t.Error("token cache survived model switch")
	}
	if s.Model() != "openai/gpt-4o" {
		t.Errorf("model = %q", s.Model())
	}
	if err := s.SetModel(""); err == nil {
		t.Error("empty model accepted")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := openStore(t)
	s := newTestSession(t, &echoCaller{}, store)
	ctx := context.Background()
	if _, err := s.Send(ctx, model.NewUserMessage("remember me"), nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Save("work"); err != nil {
		t.Fatal(err)
	}

	fresh := newTestSession(t, &echoCaller{}, store)
	if err := fresh.Load("work"); err != nil {
		t.Fatal(err)
	}
	hist := fresh.History()
	if len(hist) != 2 || hist[0].Text() != "remember me" {
		t.Errorf("loaded history = %+v", hist)
	}
	if fresh.LastResponse() != "echo reply" {
		t.Errorf("last response = %q", fresh.LastResponse())
	}
	if err := fresh.Load("ghost"); err == nil {
		t.Error("loading a missing session succeeded")
	}
}

func TestResetSnapshotsAndRestores(t *testing.T) {
	store := openStore(t)
	s := newTestSession(t, &echoCaller{}, store)
	ctx := context.Background()
	if _, err := s.Send(ctx, model.NewUserMessage("precious"), nil); err != nil {
		t.Fatal(err)
	}

	slug, err := s.Reset(false)
	if err != nil {
		t.Fatal(err)
	}
	if slug == "" || len(s.History()) != 0 || s.LastResponse() != "" {
		t.Errorf("reset: slug=%q history=%d", slug, len(s.History()))
	}

	if err := s.RestoreSnapshot(slug); err != nil {
		t.Fatal(err)
	}
	hist := s.History()
	if len(hist) != 2 || hist[0].Text() != "precious" {
		t.Errorf("restored history = %+v", hist)
	}
}

func TestResetSkipSnapshot(t *testing.T) {
	store := openStore(t)
	s := newTestSession(t, &echoCaller{}, store)
	if _, err := s.Send(context.Background(), model.NewUserMessage("gone"), nil); err != nil {
		t.Fatal(err)
	}
	slug, err := s.Reset(true)
	if err != nil || slug != "" {
		t.Errorf("hard reset: slug=%q err=%v", slug, err)
	}
	if snaps, _ := store.ListSnapshots(); len(snaps) != 0 {
		t.Errorf("snapshot written despite --hard: %+v", snaps)
	}
}

func TestToggles(t *testing.T) {
	s := newTestSession(t, &echoCaller{}, nil)

	s.SetTrust(tools.TrustNone)
	if s.Trust() != tools.TrustNone {
		t.Error("trust not updated")
	}
	s.SetCompactMode(true)
	if !s.CompactMode() {
		t.Error("compact mode not updated")
	}
	s.SetForceTools(true)
	if !s.ForceTools() {
		t.Error("force tools not updated")
	}
	s.SetToolsEnabled(false)
	if s.ToolsEnabled() {
		t.Error("tools not disabled")
	}
	s.SetPrettyPrint(false)
	if s.PrettyPrint() {
		t.Error("pretty print not disabled")
	}
}

func TestContextReport(t *testing.T) {
	s := newTestSession(t, &echoCaller{}, nil)
	if _, err := s.Send(context.Background(), model.NewUserMessage(strings.Repeat("word ", 50)), nil); err != nil {
		t.Fatal(err)
	}
	rep := s.ContextReport(3)
	if rep == nil || rep.PromptBudget <= 0 || rep.HistoryTokens <= 0 {
		t.Errorf("report = %+v", rep)
	}
	if len(rep.Heaviest) == 0 {
		t.Error("no heavy messages reported")
	}
}
