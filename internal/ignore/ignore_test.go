// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ignore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeRules(t *testing.T, path, rules string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(rules), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestProjectAndGlobalLayers(t *testing.T) {
	dir := t.TempDir()
	writeRules(t, filepath.Join(dir, ".gitignore"), "*.log\nbuild/\n")
	globalPath := filepath.Join(t.TempDir(), "global_ignore")
	writeRules(t, globalPath, "*.secret\n")

	m, err := NewMatcher(dir, globalPath)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	cases := []struct {
		path string
		want bool
	}{
		{"debug.log", true},
		{"build/out.bin", true},
		{"api.secret", true},
		{"main.go", false},
		{".git/config", true},
	}
	for _, tc := range cases {
		if got := m.IsIgnored(tc.path); got != tc.want {
			t.Errorf("IsIgnored(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}

	// absolute paths resolve against the project root
	if !m.IsIgnored(filepath.Join(dir, "debug.log")) {
		t.Error("absolute ignored path not matched")
	}
}

func TestMissingRuleFilesIgnoreNothing(t *testing.T) {
	m, err := NewMatcher(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	if m.IsIgnored("anything.log") {
		t.Error("no rules should match nothing")
	}
}

func TestWatchReloadsProjectRules(t *testing.T) {
	dir := t.TempDir()
	m, err := NewMatcher(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	if err := m.Watch(); err != nil {
		t.Fatal(err)
	}

	if m.IsIgnored("debug.log") {
		t.Fatal("unexpected match before rules exist")
	}
	writeRules(t, filepath.Join(dir, ".gitignore"), "*.log\n")

	deadline := time.After(3 * time.Second)
	for {
		if m.IsIgnored("debug.log") {
			return
		}
		select {
		case <-deadline:
			t.Fatal("watcher never picked up new rules")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
