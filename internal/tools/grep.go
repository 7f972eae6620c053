// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"bytes"
	"context"
	"os/exec"
	"sync"
	"time"
)

// =============================================================================
// GREP
// =============================================================================

// grepTimeout bounds one search.
const grepTimeout = 60 * time.Second

// GrepArgs searches file contents with a regex.
type GrepArgs struct {
	Pattern         string `json:"pattern"`
	Path            string `json:"path,omitempty"`
	Glob            string `json:"glob,omitempty"`
	OutputMode      string `json:"output_mode,omitempty"` // files_with_matches | content | count
	CaseInsensitive bool   `json:"case_insensitive,omitempty"`
}

var (
	ripgrepOnce  sync.Once
	ripgrepFound bool
)

// hasRipgrep probes for rg once per process.
func hasRipgrep() bool {
	ripgrepOnce.Do(func() {
		_, err := exec.LookPath("rg")
		ripgrepFound = err == nil
	})
	return ripgrepFound
}

// execGrep shells out to ripgrep, falling back to grep -r. Both exit 1 on
// zero matches, which is a normal empty result, not a failure.
func (e *Executor) execGrep(ctx context.Context, args GrepArgs) (string, error) {
	if args.Pattern == "" {
		return "", &ExecError{Tool: "Grep", Message: "empty pattern"}
	}
	searchPath := e.resolve(args.Path)

	var cmd []string
	if hasRipgrep() {
		cmd = []string{"rg"}
		switch args.OutputMode {
		case "count":
			cmd = append(cmd, "-c")
		case "content":
			cmd = append(cmd, "-n", "--color=never")
		default:
			cmd = append(cmd, "-l")
		}
		if args.CaseInsensitive {
			cmd = append(cmd, "-i")
		}
		if args.Glob != "" {
			cmd = append(cmd, "--glob", args.Glob)
		}
	} else {
		cmd = []string{"grep", "-r"}
		switch args.OutputMode {
		case "count":
			cmd = append(cmd, "-c")
		case "content":
			cmd = append(cmd, "-n")
		default:
			cmd = append(cmd, "-l")
		}
		if args.CaseInsensitive {
			cmd = append(cmd, "-i")
		}
		if args.Glob != "" {
			cmd = append(cmd, "--include", args.Glob)
		}
	}
	cmd = append(cmd, args.Pattern, searchPath)

	ctx, cancel := context.WithTimeout(ctx, grepTimeout)
	defer cancel()

	c := exec.CommandContext(ctx, cmd[0], cmd[1:]...)
	c.Dir = e.baseDir
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return "(no matches)", nil
		}
		return "", &ExecError{Tool: "Grep", Message: stderr.String(), Err: err}
	}
	if stdout.Len() == 0 {
		return "(no matches)", nil
	}
	return stdout.String(), nil
}
