// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"

	"github.com/jeranaias/gptcli-tui/internal/session"
	"github.com/jeranaias/gptcli-tui/internal/storage"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// ErrExit signals that the REPL should terminate.
var ErrExit = errors.New("exit requested")

// Context carries the state handlers operate on.
type Context struct {
	// Ctx bounds command execution (summarization calls hit the network).
	Ctx context.Context

	// Session is the single-writer conversation owner.
	Session *session.Session

	// Store is the persistence layer; may be nil.
	Store *storage.Store

	// Width is the terminal width for formatted output.
	Width int
}

// Command represents a slash command.
type Command struct {
	// Name is the primary command name (e.g., "/help")
	Name string

	// Aliases are alternative names (e.g., "/h", "/?")
	Aliases []string

	// Description is shown in help and completion
	Description string

	// Usage shows argument syntax (e.g., "/model <name>")
	Usage string

	// Args defines the expected arguments
	Args []ArgDef

	// Handler executes the command and returns its output
	Handler func(ctx *Context, args []string) (string, error)

	// Hidden commands don't appear in help
	Hidden bool

	// Category for grouping in help display
	Category string
}

// ArgDef defines an argument for a command.
type ArgDef struct {
	// Name of the argument
	Name string

	// Required indicates if the argument must be provided
	Required bool

	// Type determines completion behavior
	Type ArgType

	// Description explains the argument
	Description string

	// Values for enum types
	Values []string
}

// ArgType indicates what kind of completion to provide.
type ArgType int

const (
	ArgTypeString  ArgType = iota // free-form string
	ArgTypeModel                  // model id from the catalog
	ArgTypeSession                // saved session name
	ArgTypeEnum                   // one of predefined values
)

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds all registered commands.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]*Command
}

// NewRegistry creates a registry with all built-in commands.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
	r.registerBuiltins()
	return r
}

// Register adds a command to the registry.
func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd
	}
}

// Get retrieves a command by name or alias.
func (r *Registry) Get(name string) *Command {
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	if cmd, ok := r.aliases[name]; ok {
		return cmd
	}
	return nil
}

// All returns all registered commands.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	return cmds
}

// ByCategory returns visible commands grouped by category.
func (r *Registry) ByCategory() map[string][]*Command {
	result := make(map[string][]*Command)
	for _, cmd := range r.commands {
		if cmd.Hidden {
			continue
		}
		category := cmd.Category
		if category == "" {
			category = "General"
		}
		result[category] = append(result[category], cmd)
	}
	return result
}

// Execute parses input, validates arguments, and runs the matched handler.
func (r *Registry) Execute(ctx *Context, input string) (string, error) {
	p := NewParser(r)
	res := p.Parse(input)
	if !res.IsCommand {
		return "", errors.New("not a command")
	}
	if res.Command == nil {
		return "", errors.New("unknown command " + res.CommandName + " (try /help)")
	}
	if err := ValidateArgs(res.Command, res.Args); err != nil {
		return "", err
	}
	return res.Command.Handler(ctx, res.Args)
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

func (r *Registry) registerBuiltins() {
	r.Register(&Command{
		Name:        "/help",
		Aliases:     []string{"/h", "/?"},
		Description: "Show help and available commands",
		Category:    "General",
		Handler:     handleHelp,
	})
	r.Register(&Command{
		Name:        "/exit",
		Aliases:     []string{"/quit", "/q"},
		Description: "Exit gptcli",
		Category:    "General",
		Handler:     handleExit,
	})

	// Model commands
	r.Register(&Command{
		Name:        "/model",
		Description: "Show or switch the active model",
		Usage:       "/model [<id>]",
		Args: []ArgDef{
			{Name: "id", Type: ArgTypeModel, Description: "Model id to switch to"},
		},
		Category: "Model",
		Handler:  handleModel,
	})
	r.Register(&Command{
		Name:        "/models",
		Description: "List known models",
		Category:    "Model",
		Handler:     handleModels,
	})

	// Conversation commands
	r.Register(&Command{
		Name:        "/summarize",
		Description: "Fold older history into a summary",
		Usage:       "/summarize [--force]",
		Category:    "Conversation",
		Handler:     handleSummarize,
	})
	r.Register(&Command{
		Name:        "/show_context",
		Description: "Show context window usage breakdown",
		Usage:       "/show_context [--top <n>]",
		Category:    "Conversation",
		Handler:     handleShowContext,
	})
	r.Register(&Command{
		Name:        "/show_summary",
		Description: "Show the most recent summary marker",
		Category:    "Conversation",
		Handler:     handleShowSummary,
	})
	r.Register(&Command{
		Name:        "/last_response",
		Aliases:     []string{"/last"},
		Description: "Re-render the last response (markdown); --copy puts it on the clipboard",
		Usage:       "/last_response [--copy]",
		Category:    "Conversation",
		Handler:     handleLastResponse,
	})
	r.Register(&Command{
		Name:        "/raw",
		Description: "Print the last response without any rendering",
		Category:    "Conversation",
		Handler:     handleRaw,
	})
	r.Register(&Command{
		Name:        "/save_code",
		Description: "Save a code block from the last response as an artifact",
		Usage:       "/save_code [<n>]",
		Category:    "Conversation",
		Handler:     handleSaveCode,
	})
	r.Register(&Command{
		Name:        "/reset",
		Description: "Clear the conversation (snapshots first unless --hard)",
		Usage:       "/reset [--hard]",
		Category:    "Conversation",
		Handler:     handleReset,
	})

	// Tool commands
	r.Register(&Command{
		Name:        "/trust",
		Description: "Show or set the tool trust level",
		Usage:       "/trust [full|read_only|none]",
		Args: []ArgDef{
			{Name: "level", Type: ArgTypeEnum, Values: []string{"full", "read_only", "none"}},
		},
		Category: "Tools",
		Handler:  handleTrust,
	})
	r.Register(&Command{
		Name:        "/tools",
		Description: "Toggle the tool loop",
		Usage:       "/tools [on|off]",
		Args: []ArgDef{
			{Name: "state", Type: ArgTypeEnum, Values: []string{"on", "off"}},
		},
		Category: "Tools",
		Handler:  handleTools,
	})
	r.Register(&Command{
		Name:        "/toolforce",
		Description: "Toggle forced tool use (tool_choice required)",
		Usage:       "/toolforce [on|off]",
		Args: []ArgDef{
			{Name: "state", Type: ArgTypeEnum, Values: []string{"on", "off"}},
		},
		Category: "Tools",
		Handler:  handleToolForce,
	})

	// Settings
	r.Register(&Command{
		Name:        "/compact_mode",
		Description: "Toggle attachment compaction for sent messages",
		Usage:       "/compact_mode [on|off]",
		Args: []ArgDef{
			{Name: "state", Type: ArgTypeEnum, Values: []string{"on", "off"}},
		},
		Category: "Settings",
		Handler:  handleCompactMode,
	})
	r.Register(&Command{
		Name:        "/pretty_print",
		Description: "Toggle markdown re-render of completed responses",
		Usage:       "/pretty_print [on|off]",
		Args: []ArgDef{
			{Name: "state", Type: ArgTypeEnum, Values: []string{"on", "off"}},
		},
		Category: "Settings",
		Handler:  handlePrettyPrint,
	})

	// Persistence
	r.Register(&Command{
		Name:        "/session",
		Description: "List, save, load, or delete sessions",
		Usage:       "/session [list|save <name>|load <name>|delete <name>]",
		Category:    "Persistence",
		Handler:     handleSession,
	})
	r.Register(&Command{
		Name:        "/snapshots",
		Description: "List saved history snapshots",
		Category:    "Persistence",
		Handler:     handleSnapshots,
	})
	r.Register(&Command{
		Name:        "/restore",
		Description: "Restore a history snapshot",
		Usage:       "/restore <slug>",
		Args: []ArgDef{
			{Name: "slug", Required: true, Description: "Snapshot slug from /snapshots"},
		},
		Category: "Persistence",
		Handler:  handleRestore,
	})
}
