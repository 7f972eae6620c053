// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// =============================================================================
// READ
// =============================================================================

// ReadArgs selects a line window of one file.
type ReadArgs struct {
	FilePath string `json:"file_path"`
	Offset   int    `json:"offset,omitempty"` // 1-based start line
	Limit    int    `json:"limit,omitempty"`
}

func (e *Executor) execRead(args ReadArgs) (string, error) {
	path := e.resolve(args.FilePath)
	info, err := os.Stat(path)
	if err != nil {
		return "", &ExecError{Tool: "Read", Message: "file not found: " + path, Err: err}
	}
	if info.IsDir() {
		return "", &ExecError{Tool: "Read", Message: "not a file: " + path}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ExecError{Tool: "Read", Message: "read failed", Err: err}
	}
	lines := strings.Split(string(data), "\n")

	offset := args.Offset
	if offset < 1 {
		offset = 1
	}
	limit := args.Limit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	start := offset - 1
	if start > len(lines) {
		start = len(lines)
	}
	end := start + limit
	if end > len(lines) {
		end = len(lines)
	}

	var b strings.Builder
	for i, line := range lines[start:end] {
		fmt.Fprintf(&b, "%6d\t%s\n", offset+i, line)
	}
	fmt.Fprintf(&b, "\n[%s] %d/%d lines (offset: %d)",
		filepath.Base(path), end-start, len(lines), offset)
	return b.String(), nil
}

// =============================================================================
// WRITE
// =============================================================================

// WriteArgs creates or overwrites one file.
type WriteArgs struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

func (e *Executor) execWrite(args WriteArgs) (string, error) {
	path := e.resolve(args.FilePath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", &ExecError{Tool: "Write", Message: "create directory", Err: err}
	}
	_, statErr := os.Stat(path)
	existed := statErr == nil

	if err := os.WriteFile(path, []byte(args.Content), 0o644); err != nil {
		return "", &ExecError{Tool: "Write", Message: "write failed", Err: err}
	}
	action := "created"
	if existed {
		action = "overwrote"
	}
	lines := strings.Count(args.Content, "\n") + 1
	return fmt.Sprintf("%s %s (%d lines, %d chars)", action, path, lines, len(args.Content)), nil
}

// =============================================================================
// EDIT
// =============================================================================

// EditArgs replaces one unique occurrence of a string in a file.
type EditArgs struct {
	FilePath  string `json:"file_path"`
	OldString string `json:"old_string"`
	NewString string `json:"new_string"`
}

func (e *Executor) execEdit(args EditArgs) (string, error) {
	path := e.resolve(args.FilePath)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ExecError{Tool: "Edit", Message: "file not found: " + path, Err: err}
	}
	content := string(data)

	switch n := strings.Count(content, args.OldString); {
	case args.OldString == "":
		return "", &ExecError{Tool: "Edit", Message: "old_string is empty"}
	case n == 0:
		return "", &ExecError{Tool: "Edit", Message: "old_string not found in file"}
	case n > 1:
		return "", &ExecError{Tool: "Edit",
			Message: fmt.Sprintf("old_string matches %d times; add context to make it unique", n)}
	}

	updated := strings.Replace(content, args.OldString, args.NewString, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return "", &ExecError{Tool: "Edit", Message: "write failed", Err: err}
	}
	oldLines := strings.Count(args.OldString, "\n") + 1
	newLines := strings.Count(args.NewString, "\n") + 1
	return fmt.Sprintf("edited %s (%d -> %d lines)", path, oldLines, newLines), nil
}

// =============================================================================
// GLOB
// =============================================================================

// GlobArgs lists files matching a glob pattern.
type GlobArgs struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

func (e *Executor) execGlob(args GlobArgs) (string, error) {
	root := e.resolve(args.Path)
	if _, err := os.Stat(root); err != nil {
		return "", &ExecError{Tool: "Glob", Message: "directory not found: " + root, Err: err}
	}

	matches, err := globWalk(root, args.Pattern)
	if err != nil {
		return "", &ExecError{Tool: "Glob", Message: "bad pattern", Err: err}
	}
	if e.ignorer != nil {
		kept := matches[:0]
		for _, m := range matches {
			if !e.ignorer.IsIgnored(m) {
				kept = append(kept, m)
			}
		}
		matches = kept
	}
	if len(matches) == 0 {
		return "(no matches)", nil
	}

	// Newest first.
	sort.Slice(matches, func(i, j int) bool {
		fi, errI := os.Stat(matches[i])
		fj, errJ := os.Stat(matches[j])
		if errI != nil || errJ != nil {
			return matches[i] < matches[j]
		}
		return fi.ModTime().After(fj.ModTime())
	})

	total := len(matches)
	if total > MaxGlobResults {
		matches = matches[:MaxGlobResults]
	}
	var b strings.Builder
	for _, m := range matches {
		if rel, err := filepath.Rel(e.baseDir, m); err == nil && !strings.HasPrefix(rel, "..") {
			b.WriteString(rel)
		} else {
			b.WriteString(m)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\n[%d/%d files]", len(matches), total)
	return b.String(), nil
}

// globWalk supports the doublestar-free subset the model actually emits:
// "**/" prefixes walk the tree, everything else matches path.Match against
// the path relative to root.
func globWalk(root, pattern string) ([]string, error) {
	if !strings.Contains(pattern, "**") {
		return filepath.Glob(filepath.Join(root, pattern))
	}
	suffix := strings.TrimPrefix(pattern, "**/")
	var matches []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		ok, matchErr := filepath.Match(suffix, filepath.Base(rel))
		if matchErr != nil {
			return matchErr
		}
		if !ok && suffix != filepath.Base(rel) {
			// Also try the full relative path for patterns like **/dir/*.go.
			ok, _ = filepath.Match(suffix, rel)
		}
		if ok {
			matches = append(matches, path)
		}
		return nil
	})
	return matches, err
}
