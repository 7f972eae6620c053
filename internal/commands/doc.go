// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the slash command system for the REPL.
//
// This package handles parsing and executing slash commands in the chat
// interface, providing autocomplete and command registration.
//
// # Key Types
//
//   - Registry: Command registry with all available commands
//   - Command: A slash command with args, aliases, and a handler
//   - ParseResult: Parsed command with name and arguments
//   - Completer: Tab completion for commands and arguments
//
// # Built-in Commands
//
//   - /help: Show available commands
//   - /model: Show or switch the active model
//   - /summarize: Fold older history into a summary
//   - /trust: Set the tool trust level
//   - /session: Save, load, list, and delete sessions
//   - /reset: Clear the conversation (snapshotting first)
//
// # Usage
//
// Execute a line of input:
//
//	out, err := registry.Execute(cmdCtx, input)
//	if errors.Is(err, commands.ErrExit) {
//	    return
//	}
//
// Get completions:
//
//	completions := completer.Complete("/mo")
//	// Returns ["/model", "/models"]
package commands
