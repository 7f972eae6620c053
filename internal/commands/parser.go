// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"strings"
	"unicode"
)

// =============================================================================
// LINE PARSING
// =============================================================================

// ParseResult is one classified line of REPL input.
type ParseResult struct {
	// IsCommand is true when the line starts with "/". Everything else is
	// chat text.
	IsCommand bool

	// CommandName is the leading token, e.g. "/restore".
	CommandName string

	// Command is the registry match; nil for an unknown command.
	Command *Command

	// Args are the tokens after the command name, quotes resolved.
	Args []string
}

// Parser classifies REPL lines against a registry.
type Parser struct {
	registry *Registry
}

// NewParser returns a parser over the registry.
func NewParser(registry *Registry) *Parser {
	return &Parser{registry: registry}
}

// Parse classifies one line. An unknown command comes back with a nil
// Command so the caller can report it alongside the name the user typed.
func (p *Parser) Parse(input string) ParseResult {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return ParseResult{}
	}
	res := ParseResult{IsCommand: true}
	parts := splitCommandLine(input)
	if len(parts) == 0 {
		return res
	}
	res.CommandName = parts[0]
	res.Args = parts[1:]
	res.Command = p.registry.Get(res.CommandName)
	return res
}

// splitCommandLine tokenizes a line. Single and double quotes group a
// token with spaces (the session name in `/session save "api design"`);
// backslash escapes quotes and itself inside a quoted region.
func splitCommandLine(input string) []string {
	var tokens []string
	var cur strings.Builder
	var quote rune // active quote char, 0 outside quotes

	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote == 0 && (r == '\'' || r == '"'):
			quote = r

		case quote != 0 && r == quote:
			quote = 0

		case quote != 0 && r == '\\' && i+1 < len(runes):
			next := runes[i+1]
			if next == '"' || next == '\'' || next == '\\' {
				cur.WriteRune(next)
				i++
			} else {
				cur.WriteRune(r)
			}

		case quote == 0 && unicode.IsSpace(r):
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}

		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

// IsCommand reports whether the line is a slash command rather than chat.
func IsCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

// =============================================================================
// COMPLETION CURSOR
// =============================================================================

// ExtractCommandName returns the leading command token:
// "/model anthropic/claude-sonnet-4.5" yields "/model".
func ExtractCommandName(input string) string {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return ""
	}
	if end := strings.IndexFunc(input, unicode.IsSpace); end != -1 {
		return input[:end]
	}
	return input
}

// GetPartialCommand returns the command name still being typed, or ""
// once a space has ended it and the cursor sits in the arguments.
func GetPartialCommand(input string) string {
	if !strings.HasPrefix(input, "/") {
		return ""
	}
	if strings.IndexFunc(input, unicode.IsSpace) != -1 {
		return ""
	}
	return input
}

// GetPartialArg locates the argument under the cursor: its index (0 is
// the first argument after the command) and the partial text typed so
// far. A trailing space means a new, empty argument is starting.
func GetPartialArg(input string) (int, string) {
	parts := splitCommandLine(input)
	if len(parts) <= 1 {
		return 0, ""
	}
	if unicode.IsSpace(rune(input[len(input)-1])) {
		return len(parts) - 1, ""
	}
	return len(parts) - 2, parts[len(parts)-1]
}

// =============================================================================
// ARGUMENT VALIDATION
// =============================================================================

// ValidateArgs checks args against the command's declared arguments:
// required ones must be present and enum values must match. Extra
// arguments pass through; handlers that take subcommands parse them.
func ValidateArgs(cmd *Command, args []string) error {
	if cmd == nil {
		return nil
	}
	for i, def := range cmd.Args {
		if def.Required && i >= len(args) {
			return &ValidationError{
				Command:  cmd.Name,
				Arg:      def.Name,
				Message:  "required argument missing",
				Expected: def.Description,
			}
		}
		if i < len(args) && def.Type == ArgTypeEnum && len(def.Values) > 0 {
			if !containsFold(def.Values, args[i]) {
				return &ValidationError{
					Command:  cmd.Name,
					Arg:      def.Name,
					Message:  "invalid value",
					Got:      args[i],
					Expected: strings.Join(def.Values, ", "),
				}
			}
		}
	}
	return nil
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// ValidationError reports an argument that failed validation.
type ValidationError struct {
	Command  string
	Arg      string
	Message  string
	Got      string
	Expected string
}

func (e *ValidationError) Error() string {
	msg := e.Command + ": " + e.Message
	if e.Arg != "" {
		msg += " for argument '" + e.Arg + "'"
	}
	if e.Got != "" {
		msg += " (got: " + e.Got + ")"
	}
	if e.Expected != "" {
		msg += " - expected: " + e.Expected
	}
	return msg
}
