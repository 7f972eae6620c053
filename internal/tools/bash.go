// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// =============================================================================
// BASH
// =============================================================================

// DefaultBashTimeout bounds one shell command.
const DefaultBashTimeout = 120 * time.Second

// BashArgs runs one shell command.
type BashArgs struct {
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	TimeoutSec  int    `json:"timeout,omitempty"`
}

// execBash runs the command under bash in its own process group. On
// cancellation or timeout the whole group is killed, so pipelines and
// children do not outlive the session.
func (e *Executor) execBash(ctx context.Context, args BashArgs) (string, error) {
	if strings.TrimSpace(args.Command) == "" {
		return "", &ExecError{Tool: "Bash", Message: "empty command"}
	}
	timeout := DefaultBashTimeout
	if args.TimeoutSec > 0 {
		timeout = time.Duration(args.TimeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command("bash", "-c", args.Command)
	cmd.Dir = e.baseDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", &ExecError{Tool: "Bash", Message: "start failed", Err: err}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		// Negative pid signals the whole process group.
		_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		<-done
		if ctx.Err() == context.DeadlineExceeded {
			return "", &ExecError{Tool: "Bash",
				Message: fmt.Sprintf("command timed out after %s", timeout)}
		}
		return "", &ExecError{Tool: "Bash", Message: "cancelled", Err: ctx.Err()}
	}

	var parts []string
	if stdout.Len() > 0 {
		parts = append(parts, stdout.String())
	}
	if stderr.Len() > 0 {
		parts = append(parts, "[stderr]\n"+stderr.String())
	}
	output := "(no output)"
	if len(parts) > 0 {
		output = strings.Join(parts, "\n")
	}

	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			return "", &ExecError{Tool: "Bash",
				Message: fmt.Sprintf("%s\n\n[exit code: %d]", output, exitErr.ExitCode())}
		}
		return "", &ExecError{Tool: "Bash", Message: output, Err: waitErr}
	}
	return output, nil
}
