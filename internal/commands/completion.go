// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"sort"
	"strings"

	"github.com/jeranaias/gptcli-tui/internal/model"
)

// =============================================================================
// COMPLETION
// =============================================================================

// SessionLister supplies saved session names for completion. Optional.
type SessionLister interface {
	SessionNames() []string
}

// Completer produces candidate completions for partial REPL input. It is
// shaped for liner's SetCompleter: given the line so far, return full-line
// replacements.
type Completer struct {
	registry *Registry
	sessions SessionLister
}

// NewCompleter creates a completer over the registry. sessions may be nil.
func NewCompleter(registry *Registry, sessions SessionLister) *Completer {
	return &Completer{registry: registry, sessions: sessions}
}

// Complete returns full-line completions for the input so far.
func (c *Completer) Complete(line string) []string {
	if !strings.HasPrefix(line, "/") {
		return nil
	}

	// Still typing the command name.
	if partial := GetPartialCommand(line); partial != "" {
		return c.completeCommandName(partial)
	}

	// Typing an argument.
	cmdName := ExtractCommandName(line)
	cmd := c.registry.Get(cmdName)
	if cmd == nil {
		return nil
	}
	argIdx, partial := GetPartialArg(line)
	if argIdx >= len(cmd.Args) {
		return nil
	}

	prefix := line[:len(line)-len(partial)]
	var out []string
	for _, cand := range c.argCandidates(cmd.Args[argIdx]) {
		if strings.HasPrefix(cand, partial) {
			out = append(out, prefix+cand)
		}
	}
	return out
}

func (c *Completer) completeCommandName(partial string) []string {
	var out []string
	for _, cmd := range c.registry.All() {
		if cmd.Hidden {
			continue
		}
		if strings.HasPrefix(cmd.Name, partial) {
			out = append(out, cmd.Name)
		}
		for _, alias := range cmd.Aliases {
			if strings.HasPrefix(alias, partial) {
				out = append(out, alias)
			}
		}
	}
	sort.Strings(out)
	return out
}

func (c *Completer) argCandidates(def ArgDef) []string {
	switch def.Type {
	case ArgTypeModel:
		return model.CatalogIDs()
	case ArgTypeSession:
		if c.sessions == nil {
			return nil
		}
		return c.sessions.SessionNames()
	case ArgTypeEnum:
		return def.Values
	}
	return nil
}
