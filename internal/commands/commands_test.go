// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/jeranaias/gptcli-tui/internal/loop"
	"github.com/jeranaias/gptcli-tui/internal/model"
	"github.com/jeranaias/gptcli-tui/internal/session"
	"github.com/jeranaias/gptcli-tui/internal/storage"
	"github.com/jeranaias/gptcli-tui/internal/tools"
	"github.com/jeranaias/gptcli-tui/internal/transport"
)

// cannedCaller replies with a fixed text for every turn.
type cannedCaller struct{ text string }

func (c *cannedCaller) StreamTurn(ctx context.Context, req transport.Request, onDelta func(transport.Event)) (*loop.Turn, error) {
	return &loop.Turn{Text: c.text}, nil
}

type cannedCompleter struct{}

func (cannedCompleter) Complete(ctx context.Context, systemPrompt, userPrompt, modelID string) (string, error) {
	return "condensed", nil
}

type nopExec struct{}

func (nopExec) Execute(ctx context.Context, call model.ToolCall) model.ToolResult {
	return model.ToolResult{CallID: call.ID, Name: call.Name, Content: "ok"}
}

func newTestContext(t *testing.T, replyText string) *Context {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "cmd.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	sess := session.New(session.Config{
		Name:         "cmdtest",
		ModelID:      "anthropic/claude-sonnet-4",
		Trust:        tools.TrustReadOnly,
		ToolsEnabled: true,
		Caller:       &cannedCaller{text: replyText},
		Executor:     nopExec{},
		Completer:    cannedCompleter{},
		Store:        store,
	})
	return &Context{Ctx: context.Background(), Session: sess, Store: store, Width: 80}
}

// =============================================================================
// PARSER
// =============================================================================

func TestSplitCommandLine(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{`/model gpt-4o`, []string{"/model", "gpt-4o"}},
		{`/session save "my work"`, []string{"/session", "save", "my work"}},
		{`/session load 'single quoted'`, []string{"/session", "load", "single quoted"}},
		{`/trust   full`, []string{"/trust", "full"}},
		{`/help`, []string{"/help"}},
		{`/session save "résumé notes"`, []string{"/session", "save", "résumé notes"}},
		{`/session save "say \"hi\""`, []string{"/session", "save", `say "hi"`}},
	}
	for _, tt := range tests {
		got := splitCommandLine(tt.input)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitCommandLine(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseRecognizesCommandsAndAliases(t *testing.T) {
	r := NewRegistry()
	p := NewParser(r)

	res := p.Parse("/model gpt-4o")
	if !res.IsCommand || res.Command == nil || res.Command.Name != "/model" {
		t.Fatalf("parse /model = %+v", res)
	}
	if len(res.Args) != 1 || res.Args[0] != "gpt-4o" {
		t.Errorf("args = %v", res.Args)
	}

	res = p.Parse("/q")
	if res.Command == nil || res.Command.Name != "/exit" {
		t.Errorf("alias /q resolved to %+v", res.Command)
	}

	res = p.Parse("plain chat text")
	if res.IsCommand {
		t.Error("plain text parsed as command")
	}

	res = p.Parse("/nonsense")
	if !res.IsCommand || res.Command != nil {
		t.Errorf("unknown command = %+v", res)
	}
}

func TestGetPartialArgCursor(t *testing.T) {
	tests := []struct {
		input   string
		wantIdx int
		want    string
	}{
		{"/model anthropic/", 0, "anthropic/"},
		{"/model ", 0, ""},
		{"/session save ", 1, ""}, // trailing space starts the next argument
		{"/session save wo", 1, "wo"},
	}
	for _, tt := range tests {
		idx, partial := GetPartialArg(tt.input)
		if idx != tt.wantIdx || partial != tt.want {
			t.Errorf("GetPartialArg(%q) = (%d, %q), want (%d, %q)",
				tt.input, idx, partial, tt.wantIdx, tt.want)
		}
	}
}

func TestValidateArgsRequired(t *testing.T) {
	r := NewRegistry()
	restore := r.Get("/restore")
	if err := ValidateArgs(restore, nil); err == nil {
		t.Error("missing required slug accepted")
	}
	if err := ValidateArgs(restore, []string{"pre-reset-1"}); err != nil {
		t.Errorf("valid args rejected: %v", err)
	}
}

// =============================================================================
// REGISTRY + HANDLERS
// =============================================================================

func TestExecuteUnknownCommand(t *testing.T) {
	r := NewRegistry()
	ctx := newTestContext(t, "reply")
	if _, err := r.Execute(ctx, "/bogus"); err == nil {
		t.Error("unknown command did not error")
	}
}

func TestExitReturnsSentinel(t *testing.T) {
	r := NewRegistry()
	ctx := newTestContext(t, "reply")
	if _, err := r.Execute(ctx, "/exit"); !errors.Is(err, ErrExit) {
		t.Errorf("err = %v, want ErrExit", err)
	}
	if _, err := r.Execute(ctx, "/q"); !errors.Is(err, ErrExit) {
		t.Errorf("alias err = %v, want ErrExit", err)
	}
}

func TestHelpListsCategories(t *testing.T) {
	r := NewRegistry()
	ctx := newTestContext(t, "reply")
	out, err := r.Execute(ctx, "/help")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"General", "Conversation", "Tools", "/model", "/summarize"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q", want)
		}
	}
}

func TestModelShowAndSwitch(t *testing.T) {
	r := NewRegistry()
	ctx := newTestContext(t, "reply")

	out, err := r.Execute(ctx, "/model")
	if err != nil || !strings.Contains(out, "anthropic/claude-sonnet-4") {
		t.Errorf("show: out=%q err=%v", out, err)
	}

	if _, err := r.Execute(ctx, "/model openai/gpt-4o"); err != nil {
		t.Fatal(err)
	}
	if ctx.Session.Model() != "openai/gpt-4o" {
		t.Errorf("model = %q", ctx.Session.Model())
	}

	out, err = r.Execute(ctx, "/models")
	if err != nil || !strings.Contains(out, "* openai/gpt-4o") {
		t.Errorf("models: active marker missing in %q (err=%v)", out, err)
	}
}

func TestTrustCommand(t *testing.T) {
	r := NewRegistry()
	ctx := newTestContext(t, "reply")

	out, _ := r.Execute(ctx, "/trust")
	if !strings.Contains(out, "read_only") {
		t.Errorf("trust show = %q", out)
	}
	if _, err := r.Execute(ctx, "/trust full"); err != nil {
		t.Fatal(err)
	}
	if ctx.Session.Trust() != tools.TrustFull {
		t.Errorf("trust = %v", ctx.Session.Trust())
	}
	if _, err := r.Execute(ctx, "/trust sudo"); err == nil {
		t.Error("invalid trust level accepted")
	}
}

func TestToggleCommands(t *testing.T) {
	r := NewRegistry()
	ctx := newTestContext(t, "reply")

	// bare invocation flips
	if _, err := r.Execute(ctx, "/tools"); err != nil {
		t.Fatal(err)
	}
	if ctx.Session.ToolsEnabled() {
		t.Error("tools still enabled after toggle")
	}
	if _, err := r.Execute(ctx, "/tools on"); err != nil {
		t.Fatal(err)
	}
	if !ctx.Session.ToolsEnabled() {
		t.Error("tools off after explicit on")
	}
	if _, err := r.Execute(ctx, "/toolforce on"); err != nil {
		t.Fatal(err)
	}
	if !ctx.Session.ForceTools() {
		t.Error("force tools not set")
	}
	if _, err := r.Execute(ctx, "/compact_mode maybe"); err == nil {
		t.Error("bad toggle value accepted")
	}
}

func TestSaveCodeExtractsBlock(t *testing.T) {
	reply := "Here you go:\n```go\npackage main\n```\nand also\n```python\nprint(1)\n```\n"
	r := NewRegistry()
	ctx := newTestContext(t, reply)
	if _, err := ctx.Session.Send(ctx.Ctx, model.NewUserMessage("write code"), nil); err != nil {
		t.Fatal(err)
	}

	// default picks the last block
	out, err := r.Execute(ctx, "/save_code")
	if err != nil || !strings.Contains(out, "python") {
		t.Errorf("save_code: out=%q err=%v", out, err)
	}
	out, err = r.Execute(ctx, "/save_code 1")
	if err != nil || !strings.Contains(out, "go") {
		t.Errorf("save_code 1: out=%q err=%v", out, err)
	}
	if _, err := r.Execute(ctx, "/save_code 9"); err == nil {
		t.Error("out-of-range block index accepted")
	}

	arts, err := ctx.Store.ListArtifacts("cmdtest")
	if err != nil || len(arts) != 2 {
		t.Fatalf("artifacts = %d (err=%v)", len(arts), err)
	}
}

func TestSessionLifecycleCommands(t *testing.T) {
	r := NewRegistry()
	ctx := newTestContext(t, "reply")
	if _, err := ctx.Session.Send(ctx.Ctx, model.NewUserMessage("hello"), nil); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Execute(ctx, `/session save work`); err != nil {
		t.Fatal(err)
	}
	out, err := r.Execute(ctx, "/session list")
	if err != nil || !strings.Contains(out, "work") {
		t.Errorf("list: out=%q err=%v", out, err)
	}
	if _, err := r.Execute(ctx, "/session load work"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Execute(ctx, "/session delete work"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Execute(ctx, "/session load work"); err == nil {
		t.Error("loading deleted session succeeded")
	}
	if _, err := r.Execute(ctx, "/session teleport"); err == nil {
		t.Error("unknown subcommand accepted")
	}
}

func TestResetAndRestoreCommands(t *testing.T) {
	r := NewRegistry()
	ctx := newTestContext(t, "reply")
	if _, err := ctx.Session.Send(ctx.Ctx, model.NewUserMessage("keep me"), nil); err != nil {
		t.Fatal(err)
	}

	out, err := r.Execute(ctx, "/reset")
	if err != nil || !strings.Contains(out, "/restore ") {
		t.Fatalf("reset: out=%q err=%v", out, err)
	}
	slug := strings.TrimSpace(out[strings.Index(out, "/restore ")+len("/restore "):])

	snaps, _ := r.Execute(ctx, "/snapshots")
	if !strings.Contains(snaps, slug) {
		t.Errorf("snapshots output %q missing %q", snaps, slug)
	}

	if _, err := r.Execute(ctx, "/restore "+slug); err != nil {
		t.Fatal(err)
	}
	if len(ctx.Session.History()) != 2 {
		t.Errorf("restored history = %d messages", len(ctx.Session.History()))
	}

	// hard reset leaves no snapshot behind
	if _, err := r.Execute(ctx, "/reset --hard"); err != nil {
		t.Fatal(err)
	}
	out, _ = r.Execute(ctx, "/snapshots")
	if strings.Count(out, "pre-reset-") > 1 {
		t.Errorf("hard reset wrote a snapshot: %q", out)
	}
}

func TestRawAndLastResponse(t *testing.T) {
	r := NewRegistry()
	ctx := newTestContext(t, "**bold** text")

	out, err := r.Execute(ctx, "/raw")
	if err != nil || out != "No response yet." {
		t.Errorf("raw before send: out=%q err=%v", out, err)
	}

	if _, err := ctx.Session.Send(ctx.Ctx, model.NewUserMessage("hi"), nil); err != nil {
		t.Fatal(err)
	}
	out, err = r.Execute(ctx, "/raw")
	if err != nil || out != "**bold** text" {
		t.Errorf("raw = %q err=%v", out, err)
	}
	out, err = r.Execute(ctx, "/last_response")
	if err != nil || !strings.Contains(out, "bold") {
		t.Errorf("last_response = %q err=%v", out, err)
	}
}

func TestShowContextReportsBudget(t *testing.T) {
	r := NewRegistry()
	ctx := newTestContext(t, "reply")
	if _, err := ctx.Session.Send(ctx.Ctx, model.NewUserMessage("some words here"), nil); err != nil {
		t.Fatal(err)
	}
	out, err := r.Execute(ctx, "/show_context --top 2")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Prompt budget", "Heaviest"} {
		if !strings.Contains(out, want) {
			t.Errorf("show_context missing %q in %q", want, out)
		}
	}
	if _, err := r.Execute(ctx, "/show_context --top zero"); err == nil {
		t.Error("non-numeric --top accepted")
	}
}

// =============================================================================
// COMPLETION
// =============================================================================

type fakeSessions struct{ names []string }

func (f fakeSessions) SessionNames() []string { return f.names }

func TestCompleteCommandNames(t *testing.T) {
	c := NewCompleter(NewRegistry(), nil)

	got := c.Complete("/mo")
	if !reflect.DeepEqual(got, []string{"/model", "/models"}) {
		t.Errorf("complete /mo = %v", got)
	}
	if got := c.Complete("not a command"); got != nil {
		t.Errorf("plain text completed: %v", got)
	}
}

func TestCompleteEnumAndModelArgs(t *testing.T) {
	c := NewCompleter(NewRegistry(), nil)

	got := c.Complete("/trust f")
	if !reflect.DeepEqual(got, []string{"/trust full"}) {
		t.Errorf("complete /trust f = %v", got)
	}
	got = c.Complete("/model anthropic/")
	if len(got) != 3 {
		t.Errorf("complete /model anthropic/ = %v", got)
	}
	for _, g := range got {
		if !strings.HasPrefix(g, "/model anthropic/") {
			t.Errorf("completion %q lost the line prefix", g)
		}
	}
}

func TestCompleteSessionNames(t *testing.T) {
	r := NewRegistry()
	// register a session-typed arg to exercise the lister
	r.Register(&Command{
		Name: "/open",
		Args: []ArgDef{{Name: "name", Type: ArgTypeSession}},
		Handler: func(ctx *Context, args []string) (string, error) {
			return "", nil
		},
		Hidden: true,
	})
	c := NewCompleter(r, fakeSessions{names: []string{"work", "writing"}})

	got := c.Complete("/open w")
	if !reflect.DeepEqual(got, []string{"/open work", "/open writing"}) {
		t.Errorf("complete /open w = %v", got)
	}
}
