// gptcli - a terminal client for OpenRouter-style chat models.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/gptcli-tui/internal/commands"
	"github.com/jeranaias/gptcli-tui/internal/config"
	"github.com/jeranaias/gptcli-tui/internal/ignore"
	"github.com/jeranaias/gptcli-tui/internal/loop"
	"github.com/jeranaias/gptcli-tui/internal/model"
	"github.com/jeranaias/gptcli-tui/internal/render"
	"github.com/jeranaias/gptcli-tui/internal/session"
	"github.com/jeranaias/gptcli-tui/internal/storage"
	"github.com/jeranaias/gptcli-tui/internal/stream"
	"github.com/jeranaias/gptcli-tui/internal/summary"
	"github.com/jeranaias/gptcli-tui/internal/tools"
	"github.com/jeranaias/gptcli-tui/internal/transport"
	"github.com/jeranaias/gptcli-tui/internal/ui/confirm"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gptcli:", err)
		os.Exit(1)
	}
}

func run() error {
	for _, arg := range os.Args[1:] {
		switch arg {
		case "--version", "-v":
			fmt.Printf("gptcli %s (%s, built %s)\n", Version, GitCommit, BuildDate)
			return nil
		case "--help", "-h":
			printUsage()
			return nil
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.API.Key == "" {
		return errors.New("no API key: set OPENROUTER_API_KEY or api.key in config.toml")
	}

	dbPath := cfg.Storage.DBPath
	if dbPath == "" {
		dbPath, err = storage.DefaultPath()
		if err != nil {
			return err
		}
	}
	store, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	client := transport.NewClient(transport.Config{
		BaseURL:           cfg.API.BaseURL,
		APIKey:            cfg.API.Key,
		RequestsPerMinute: cfg.API.RequestsPerMinute,
		Timeout:           time.Duration(cfg.API.TimeoutSecs) * time.Second,
	})

	baseDir := cfg.Tools.BaseDir
	if baseDir == "" {
		baseDir, err = os.Getwd()
		if err != nil {
			return err
		}
	}
	exec := tools.NewExecutor(baseDir)
	matcher, err := ignore.NewMatcher(baseDir, cfg.Tools.GlobalIgnoreFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gptcli: ignore rules unavailable:", err)
	} else {
		if err := matcher.Watch(); err != nil {
			fmt.Fprintln(os.Stderr, "gptcli: ignore reload disabled:", err)
		}
		defer matcher.Close()
		exec.SetIgnorer(matcher)
	}

	trust, ok := tools.ParseTrustLevel(cfg.Tools.Trust)
	if !ok {
		trust = tools.TrustReadOnly
	}

	sess := session.New(session.Config{
		ModelID:      cfg.Chat.DefaultModel,
		SystemPrompt: cfg.Chat.SystemPrompt,
		Trust:        trust,
		ToolsEnabled: cfg.Tools.Enabled,
		CompactMode:  cfg.Chat.CompactMode,
		PrettyPrint:  cfg.UI.PrettyPrint,

		SummarizeModel: cfg.Summarize.Model,
		Summary: summary.Config{
			MinMessages:     cfg.Summarize.MinMessages,
			KeepRecent:      cfg.Summarize.KeepRecent,
			MaxLevels:       cfg.Summarize.MaxLevels,
			ChunkTokenLimit: cfg.Summarize.ChunkTokenLimit,
		},

		Completer: client,
		Caller:    &streamCaller{client: client},
		Executor:  spinnerExec{inner: exec},
		Confirm:   confirmTool,
		Store:     store,
	})

	return repl(cfg, sess, store)
}

func printUsage() {
	fmt.Println(`gptcli - terminal chat client

Usage: gptcli [--version] [--help]

Type a message to chat, or a /command (try /help). Configuration lives
at ~/.gptcli/config.toml; OPENROUTER_API_KEY supplies the API key.`)
}

// =============================================================================
// MODEL CALLER
// =============================================================================

// streamCaller adapts the transport client to the tool loop: it opens one
// streaming request, forwards deltas, and hands back the assembled turn.
type streamCaller struct {
	client *transport.Client
}

func (c *streamCaller) StreamTurn(ctx context.Context, req transport.Request, onDelta func(transport.Event)) (*loop.Turn, error) {
	st, err := c.client.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	turn := &loop.Turn{}
	var text strings.Builder
	for {
		ev, err := st.Recv()
		if err != nil {
			return nil, err
		}
		if ev.Kind == transport.EventDone {
			turn.ToolCalls = ev.ToolCalls
			turn.Usage = ev.Usage
			break
		}
		if ev.Kind == transport.EventText {
			text.WriteString(ev.Text)
		}
		if onDelta != nil {
			onDelta(ev)
		}
	}
	turn.Text = text.String()
	return turn, nil
}

// spinnerExec shows a spinner while Bash commands run; other tools finish
// fast enough that the spinner would only flicker.
type spinnerExec struct {
	inner *tools.Executor
}

func (s spinnerExec) Execute(ctx context.Context, call model.ToolCall) model.ToolResult {
	if call.Name != "Bash" {
		return s.inner.Execute(ctx, call)
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		confirm.Spin("running "+call.Name, done)
		close(finished)
	}()
	res := s.inner.Execute(ctx, call)
	close(done)
	<-finished
	return res
}

// confirmTool bridges the loop's confirmation callback to the bubbletea
// prompt.
func confirmTool(ctx context.Context, call model.ToolCall, dangerous bool) (loop.ConfirmAnswer, error) {
	ans, err := confirm.Prompt(call, dangerous)
	if err != nil {
		return loop.ConfirmReject, err
	}
	switch ans {
	case confirm.Approve:
		return loop.ConfirmApprove, nil
	case confirm.Always:
		return loop.ConfirmAlways, nil
	default:
		return loop.ConfirmReject, nil
	}
}

// =============================================================================
// REPL
// =============================================================================

func historyPath() string {
	dir, err := config.ConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "history")
}

func repl(cfg *config.Config, sess *session.Session, store *storage.Store) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	registry := commands.NewRegistry()
	completer := commands.NewCompleter(registry, sessionNames{store})
	line.SetCompleter(completer.Complete)

	histPath := historyPath()
	if histPath != "" {
		if f, err := os.Open(histPath); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}
	defer func() {
		if histPath == "" {
			return
		}
		f, err := os.Create(histPath)
		if err != nil {
			return
		}
		line.WriteHistory(f)
		f.Close()
	}()

	fmt.Printf("gptcli %s (model %s, trust %s). /help for commands.\n",
		Version, sess.Model(), sess.Trust())

	for {
		input, err := line.Prompt("> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if commands.IsCommand(input) {
			out, err := registry.Execute(&commands.Context{
				Ctx:     context.Background(),
				Session: sess,
				Store:   store,
				Width:   render.TerminalWidth(),
			}, input)
			if errors.Is(err, commands.ErrExit) {
				return nil
			}
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				continue
			}
			if out != "" {
				fmt.Println(out)
			}
			continue
		}

		if err := sendTurn(cfg, sess, input); err != nil {
			if loop.IsCancelled(err) {
				fmt.Println("\n(interrupted)")
				continue
			}
			var rle *loop.RoundLimitError
			if errors.As(err, &rle) {
				fmt.Fprintf(os.Stderr, "error: tool loop hit the %d-round cap\n", rle.Rounds)
				continue
			}
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

// sendTurn streams one conversation turn to the terminal. Ctrl-C cancels
// the in-flight request without leaving the REPL.
func sendTurn(cfg *config.Config, sess *session.Session, input string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			cancel()
		case <-ctx.Done():
		}
	}()

	parser := stream.NewParser()
	sink := render.NewSink(os.Stdout, render.Options{
		Theme:         cfg.UI.Theme,
		ShowReasoning: cfg.UI.ShowReasoning,
	})

	onDelta := func(ev transport.Event) {
		var events []stream.Event
		switch ev.Kind {
		case transport.EventText:
			events = parser.Feed(ev.Text)
		case transport.EventReasoning:
			events = parser.FeedReasoning(ev.Text)
		}
		for _, se := range events {
			sink.Handle(se)
		}
	}

	reply, err := sess.Send(ctx, model.NewUserMessage(input), onDelta)
	for _, se := range parser.Close() {
		sink.Handle(se)
	}
	sink.Finish()
	if err != nil {
		return err
	}
	fmt.Println()

	if sess.PrettyPrint() && reply != "" {
		fmt.Println(render.Markdown(reply, render.TerminalWidth()))
	}
	return nil
}

// sessionNames feeds saved session names to tab completion.
type sessionNames struct {
	store *storage.Store
}

func (s sessionNames) SessionNames() []string {
	metas, err := s.store.ListSessions()
	if err != nil {
		return nil
	}
	names := make([]string, len(metas))
	for i, m := range metas {
		names[i] = m.Name
	}
	return names
}
