// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ignore evaluates gitignore-style rules for file listings. Rules
// come from two layers: a global per-user file and the project's .gitignore,
// with the project file watched for edits and reloaded live.
package ignore

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	gitignore "github.com/sabhiram/go-gitignore"
)

// alwaysIgnored are paths excluded regardless of rule files.
var alwaysIgnored = []string{".git/", ".git"}

// Matcher combines global and project ignore rules. Safe for concurrent
// use; Reload swaps rule sets atomically under the lock.
type Matcher struct {
	baseDir     string
	globalPath  string
	projectPath string

	mu      sync.RWMutex
	global  *gitignore.GitIgnore
	project *gitignore.GitIgnore

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewMatcher compiles rules for baseDir. globalPath may be empty or point
// to a missing file; both layers are optional.
func NewMatcher(baseDir, globalPath string) (*Matcher, error) {
	m := &Matcher{
		baseDir:     baseDir,
		globalPath:  globalPath,
		projectPath: filepath.Join(baseDir, ".gitignore"),
		done:        make(chan struct{}),
	}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload recompiles both rule files. Missing files clear their layer.
func (m *Matcher) Reload() error {
	global := compileIfExists(m.globalPath)
	project := compileIfExists(m.projectPath)

	m.mu.Lock()
	m.global = global
	m.project = project
	m.mu.Unlock()
	return nil
}

func compileIfExists(path string) *gitignore.GitIgnore {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	ign, err := gitignore.CompileIgnoreFile(path)
	if err != nil {
		// Unreadable rules are treated as absent rather than blocking
		// every listing.
		return nil
	}
	return ign
}

// IsIgnored reports whether path matches any ignore rule. Absolute paths
// are evaluated relative to the project root.
func (m *Matcher) IsIgnored(path string) bool {
	rel := path
	if filepath.IsAbs(path) {
		r, err := filepath.Rel(m.baseDir, path)
		if err != nil || strings.HasPrefix(r, "..") {
			return false
		}
		rel = r
	}
	rel = filepath.ToSlash(rel)

	for _, a := range alwaysIgnored {
		if rel == a || strings.HasPrefix(rel, ".git/") {
			return true
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.project != nil && m.project.MatchesPath(rel) {
		return true
	}
	if m.global != nil && m.global.MatchesPath(rel) {
		return true
	}
	return false
}

// Watch starts live reload of the project .gitignore. The watcher follows
// the directory, not the file, so editor save-by-rename still triggers.
func (m *Matcher) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(m.baseDir); err != nil {
		w.Close()
		return err
	}
	m.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) == ".gitignore" {
					m.Reload()
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			case <-m.done:
				return
			}
		}
	}()
	return nil
}

// Close stops the watcher if one is running.
func (m *Matcher) Close() error {
	close(m.done)
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}
