// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package loop runs the tool-calling conversation loop: call the model,
// execute any tool calls it emits under the trust policy, feed results back,
// repeat until the model answers with plain text or a safety bound trips.
//
// Intermediate tool traffic lives in a working copy of the window; only the
// final text answer is handed back for persistence. The bounds are a hard
// round cap, repeat-call detection, and (in force mode) a cap on consecutive
// rounds that perform no mutating work.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jeranaias/gptcli-tui/internal/model"
	"github.com/jeranaias/gptcli-tui/internal/tools"
	"github.com/jeranaias/gptcli-tui/internal/transport"
)

// =============================================================================
// BOUNDS
// =============================================================================

const (
	// MaxIterations caps model rounds in a single turn.
	MaxIterations = 50

	// maxRepeatRounds: the same tool-call signature this many rounds in a
	// row means the model is stuck; request a tool-free answer.
	maxRepeatRounds = 2

	// maxReadOnlyRounds applies in force mode: this many consecutive rounds
	// without a Write, Edit, or Bash call means the model is stalling.
	maxReadOnlyRounds = 5
)

// writeTools are the calls that count as progress in force mode.
var writeTools = map[string]bool{"Write": true, "Edit": true, "Bash": true}

// =============================================================================
// ERRORS
// =============================================================================

// CancelledError reports a user abort mid-turn. Completed tool executions
// stand; the turn produced no final answer.
type CancelledError struct {
	Err error
}

func (e *CancelledError) Error() string { return "turn cancelled" }
func (e *CancelledError) Unwrap() error { return e.Err }

// RoundLimitError reports that the round cap was hit before the model
// produced a tool-free answer. LastText carries whatever prose the final
// round emitted; the session surfaces it with a warning.
type RoundLimitError struct {
	Rounds   int
	LastText string
}

func (e *RoundLimitError) Error() string {
	return fmt.Sprintf("tool loop stopped after %d rounds without a final answer", e.Rounds)
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// Turn is one completed model round.
type Turn struct {
	Text      string
	ToolCalls []model.ToolCall
	Usage     *transport.Usage
}

// Caller issues one model round, delivering deltas as they stream.
type Caller interface {
	StreamTurn(ctx context.Context, req transport.Request, onDelta func(transport.Event)) (*Turn, error)
}

// ConfirmAnswer is the user's verdict on a pending tool call.
type ConfirmAnswer int

const (
	// ConfirmReject refuses this call; the model sees a refusal result.
	ConfirmReject ConfirmAnswer = iota
	// ConfirmApprove allows this one call.
	ConfirmApprove
	// ConfirmAlways allows this call and future calls to the same tool
	// for the rest of the session.
	ConfirmAlways
)

// ConfirmFunc asks the user about one tool call. dangerous marks commands
// matching the destructive-pattern list.
type ConfirmFunc func(ctx context.Context, call model.ToolCall, dangerous bool) (ConfirmAnswer, error)

// Executor is the slice of the tool executor the loop needs.
type Executor interface {
	Execute(ctx context.Context, call model.ToolCall) model.ToolResult
}

// =============================================================================
// RUNNER
// =============================================================================

// Runner drives tool-calling turns. Always-allow grants accumulate across
// turns for the runner's lifetime.
type Runner struct {
	caller  Caller
	exec    Executor
	confirm ConfirmFunc

	alwaysAllowed map[string]bool
}

// NewRunner builds a runner. confirm may be nil, in which case every
// Confirm decision is treated as a rejection.
func NewRunner(caller Caller, exec Executor, confirm ConfirmFunc) *Runner {
	return &Runner{
		caller:        caller,
		exec:          exec,
		confirm:       confirm,
		alwaysAllowed: make(map[string]bool),
	}
}

// Options configures one turn.
type Options struct {
	Model        string
	SystemPrompt string
	Trust        tools.TrustLevel

	// ToolsEnabled attaches the tool schemas to each round. Off means the
	// turn is plain chat.
	ToolsEnabled bool

	// Force sends tool_choice "required" so the model must call tools
	// each round until the loop requests the final answer.
	Force bool

	// OnDelta receives streamed text and reasoning deltas. May be nil.
	OnDelta func(transport.Event)
}

// Result is the outcome of a completed turn.
type Result struct {
	// Final is the assistant's tool-free answer.
	Final string

	// Rounds is how many model calls the turn took.
	Rounds int

	// ToolMessages is the intermediate tool traffic (assistant tool-call
	// messages and tool results) in order. It is NOT persisted to history;
	// the session may show it in a transcript view.
	ToolMessages []*model.Message

	// Usage accumulates provider token accounting across all rounds.
	Usage transport.Usage
}

// Run executes one turn. window is the assembled context; the runner
// appends tool traffic to a working copy and never mutates window itself.
func (r *Runner) Run(ctx context.Context, window []*model.Message, opts Options) (*Result, error) {
	working := make([]*model.Message, len(window))
	copy(working, window)

	res := &Result{}
	defs := tools.Definitions()

	var (
		lastSignature  string
		lastText       string
		repeatRounds   int
		readOnlyRounds int
		finalizing     bool
	)

	for res.Rounds < MaxIterations {
		res.Rounds++

		req := transport.Request{
			Model:    opts.Model,
			Messages: transport.BuildMessages(opts.SystemPrompt, working),
		}
		if opts.ToolsEnabled && !finalizing {
			req.Tools = defs
			if opts.Force {
				req.ToolChoice = "required"
			}
		}

		turn, err := r.caller.StreamTurn(ctx, req, opts.OnDelta)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &CancelledError{Err: err}
			}
			return nil, err
		}
		if turn.Usage != nil {
			res.Usage.PromptTokens += turn.Usage.PromptTokens
			res.Usage.CompletionTokens += turn.Usage.CompletionTokens
			res.Usage.TotalTokens += turn.Usage.TotalTokens
		}

		if len(turn.ToolCalls) == 0 {
			res.Final = turn.Text
			return res, nil
		}
		lastText = turn.Text

		// Stuck detection: identical call set two rounds running.
		sig := callSignature(turn.ToolCalls)
		if sig == lastSignature {
			repeatRounds++
		} else {
			repeatRounds = 1
			lastSignature = sig
		}

		assistant := model.NewAssistantMessage()
		assistant.AppendText(turn.Text)
		for i := range turn.ToolCalls {
			tc := turn.ToolCalls[i]
			assistant.AddPart(model.ContentPart{Kind: model.PartToolCall, ToolCall: &tc})
		}
		working = append(working, assistant)
		res.ToolMessages = append(res.ToolMessages, assistant)

		wroteSomething := false
		for _, call := range turn.ToolCalls {
			if ctx.Err() != nil {
				return nil, &CancelledError{Err: ctx.Err()}
			}
			result, executed, err := r.runCall(ctx, call, opts.Trust)
			if err != nil {
				return nil, err
			}
			if executed && writeTools[call.Name] {
				wroteSomething = true
			}
			rm := model.NewToolResultMessage(result)
			working = append(working, rm)
			res.ToolMessages = append(res.ToolMessages, rm)
		}

		if opts.Force {
			if wroteSomething {
				readOnlyRounds = 0
			} else {
				readOnlyRounds++
			}
		}

		// Next round drops tools when the model is stuck or stalling, so
		// it has to produce the final answer.
		if repeatRounds >= maxRepeatRounds || (opts.Force && readOnlyRounds >= maxReadOnlyRounds) {
			finalizing = true
		}
	}

	return nil, &RoundLimitError{Rounds: res.Rounds, LastText: lastText}
}

// runCall routes one tool call through the trust policy. executed reports
// whether the tool actually ran (false for refusals).
func (r *Runner) runCall(ctx context.Context, call model.ToolCall, trust tools.TrustLevel) (result model.ToolResult, executed bool, err error) {
	decision, dangerous := tools.Check(call.Name, call.Arguments, trust)

	// Session-scoped always-allow grants never override the dangerous flag.
	if decision == tools.Confirm && !dangerous && r.alwaysAllowed[call.Name] {
		decision = tools.Allow
	}

	switch decision {
	case tools.Allow:
		return r.exec.Execute(ctx, call), true, nil

	case tools.Deny:
		return tools.Refuse(call, "denied by trust policy"), false, nil

	default: // Confirm
		if r.confirm == nil {
			return tools.Refuse(call, "rejected: no confirmation channel"), false, nil
		}
		answer, err := r.confirm(ctx, call, dangerous)
		if err != nil {
			if ctx.Err() != nil {
				return model.ToolResult{}, false, &CancelledError{Err: err}
			}
			return model.ToolResult{}, false, err
		}
		switch answer {
		case ConfirmApprove:
			return r.exec.Execute(ctx, call), true, nil
		case ConfirmAlways:
			if !dangerous {
				r.alwaysAllowed[call.Name] = true
			}
			return r.exec.Execute(ctx, call), true, nil
		default:
			return tools.Refuse(call, "rejected by user"), false, nil
		}
	}
}

// callSignature fingerprints a round's tool calls, order-insensitive, so
// repeated identical requests are detected even if reordered.
func callSignature(calls []model.ToolCall) string {
	parts := make([]string, len(calls))
	for i, c := range calls {
		parts[i] = c.Name + ":" + c.Arguments
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

// IsCancelled reports whether err is a user abort.
func IsCancelled(err error) bool {
	var ce *CancelledError
	return errors.As(err, &ce)
}
