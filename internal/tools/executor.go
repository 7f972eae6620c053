// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/jeranaias/gptcli-tui/internal/model"
)

// =============================================================================
// LIMITS
// =============================================================================

const (
	// DefaultReadLimit bounds one Read call in lines.
	DefaultReadLimit = 2000

	// MaxOutputLength truncates tool output fed back to the model.
	MaxOutputLength = 30_000

	// MaxGlobResults bounds a Glob listing.
	MaxGlobResults = 500
)

// =============================================================================
// ERRORS
// =============================================================================

// ExecError is a tool execution failure. It is folded into the conversation
// as an error tool-result so the model can react.
type ExecError struct {
	Tool    string
	Message string
	Err     error
}

func (e *ExecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Tool, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Tool, e.Message)
}

func (e *ExecError) Unwrap() error { return e.Err }

// DeniedError records a permission refusal.
type DeniedError struct {
	Tool   string
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s denied: %s", e.Tool, e.Reason)
}

// =============================================================================
// EXECUTOR
// =============================================================================

// Ignorer filters paths under gitignore-style rules. Glob listings skip
// ignored paths so the model never wades through build output.
type Ignorer interface {
	IsIgnored(path string) bool
}

// Executor runs tool calls against the local filesystem and shell. Relative
// paths resolve against the base directory.
type Executor struct {
	baseDir string
	ignorer Ignorer
}

// NewExecutor creates an executor rooted at baseDir.
func NewExecutor(baseDir string) *Executor {
	return &Executor{baseDir: baseDir}
}

// SetIgnorer installs the ignore-rule evaluator used by Glob.
func (e *Executor) SetIgnorer(ig Ignorer) { e.ignorer = ig }

// BaseDir returns the directory relative paths resolve against.
func (e *Executor) BaseDir() string { return e.baseDir }

// resolve turns a tool-supplied path into an absolute one.
func (e *Executor) resolve(path string) string {
	if path == "" {
		return e.baseDir
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(e.baseDir, path)
}

// truncate bounds tool output for the model.
func truncate(s string) string {
	if len(s) <= MaxOutputLength {
		return s
	}
	return s[:MaxOutputLength] + fmt.Sprintf("\n\n... (truncated, total %d chars)", len(s))
}

// Execute dispatches one tool call and returns its result. Failures come
// back as an error-flagged result, not a Go error: the loop records them in
// history for the model to see. Only context cancellation aborts.
func (e *Executor) Execute(ctx context.Context, call model.ToolCall) model.ToolResult {
	content, err := e.dispatch(ctx, call)
	if err != nil {
		if ctx.Err() != nil {
			return errorResult(call, "cancelled by user")
		}
		return errorResult(call, err.Error())
	}
	return model.ToolResult{CallID: call.ID, Name: call.Name, Content: truncate(content)}
}

// Refuse synthesizes the tool result for a denied call.
func Refuse(call model.ToolCall, reason string) model.ToolResult {
	return errorResult(call, "permission denied: "+reason)
}

func errorResult(call model.ToolCall, msg string) model.ToolResult {
	return model.ToolResult{CallID: call.ID, Name: call.Name, Content: msg, IsError: true}
}

// dispatch decodes the call's arguments into its typed schema and runs the
// matching tool. The tool set is closed; unknown names are an error the
// model sees.
func (e *Executor) dispatch(ctx context.Context, call model.ToolCall) (string, error) {
	switch call.Name {
	case "Read":
		var args ReadArgs
		if err := decodeArgs(call, &args); err != nil {
			return "", err
		}
		return e.execRead(args)
	case "Write":
		var args WriteArgs
		if err := decodeArgs(call, &args); err != nil {
			return "", err
		}
		return e.execWrite(args)
	case "Edit":
		var args EditArgs
		if err := decodeArgs(call, &args); err != nil {
			return "", err
		}
		return e.execEdit(args)
	case "Bash":
		var args BashArgs
		if err := decodeArgs(call, &args); err != nil {
			return "", err
		}
		return e.execBash(ctx, args)
	case "Grep":
		var args GrepArgs
		if err := decodeArgs(call, &args); err != nil {
			return "", err
		}
		return e.execGrep(ctx, args)
	case "Glob":
		var args GlobArgs
		if err := decodeArgs(call, &args); err != nil {
			return "", err
		}
		return e.execGlob(args)
	default:
		return "", &ExecError{Tool: call.Name, Message: "unknown tool"}
	}
}

func decodeArgs(call model.ToolCall, into any) error {
	if err := json.Unmarshal([]byte(call.Arguments), into); err != nil {
		return &ExecError{Tool: call.Name, Message: "invalid arguments", Err: err}
	}
	return nil
}
