// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"encoding/json"
	"regexp"
)

// =============================================================================
// TRUST LEVELS
// =============================================================================

// TrustLevel controls which tool actions execute without confirmation.
// Session-scoped; changed only by explicit user command.
type TrustLevel string

const (
	TrustFull     TrustLevel = "full"      // every tool auto-allowed
	TrustReadOnly TrustLevel = "read_only" // Read/Grep/Glob auto, writes confirm
	TrustNone     TrustLevel = "none"      // everything confirms
)

// ParseTrustLevel validates a user-supplied trust level string.
func ParseTrustLevel(s string) (TrustLevel, bool) {
	switch TrustLevel(s) {
	case TrustFull, TrustReadOnly, TrustNone:
		return TrustLevel(s), true
	}
	return "", false
}

// readOnlyTools never touch the filesystem or shell state.
var readOnlyTools = map[string]bool{
	"Read": true,
	"Grep": true,
	"Glob": true,
}

// IsReadOnlyTool reports whether a tool name is in the read-only set.
func IsReadOnlyTool(name string) bool { return readOnlyTools[name] }

// =============================================================================
// DANGEROUS COMMAND PATTERNS
// =============================================================================

// dangerousPatterns match Bash commands that can do irreversible system
// damage. A match always routes to confirmation, overriding full trust.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\s+(-[rf]+\s+)*(/|~|\.\.|/etc|/usr|/var|/home|\*)`),
	regexp.MustCompile(`(?i)\bmkfs\b`),
	regexp.MustCompile(`(?i)\bdd\s+if=.*of=/dev/`),
	regexp.MustCompile(`(?i)>\s*/dev/sd[a-z]`),
	regexp.MustCompile(`(?i)\bchmod\s+(-R\s+)?777\s+/`),
	regexp.MustCompile(`(?i)\bchown\s+(-R\s+)?.*\s+/`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\};\s*:`), // fork bomb
	regexp.MustCompile(`(?i)\bsudo\s+rm\b`),
	regexp.MustCompile(`(?i)\bsudo\s+dd\b`),
	regexp.MustCompile(`(?i)>\s*/etc/passwd`),
	regexp.MustCompile(`(?i)>\s*/etc/shadow`),
	regexp.MustCompile(`(?i)\bgit\s+push\s+.*--force`),
	regexp.MustCompile(`(?i)\bgit\s+reset\s+--hard\s+HEAD~`),
}

// IsDangerousCommand reports whether a shell command matches a destructive
// pattern.
func IsDangerousCommand(command string) bool {
	for _, p := range dangerousPatterns {
		if p.MatchString(command) {
			return true
		}
	}
	return false
}

// =============================================================================
// PERMISSION DECISIONS
// =============================================================================

// Decision is the outcome of a permission check.
type Decision int

const (
	// Allow executes the tool immediately.
	Allow Decision = iota
	// Confirm blocks until the user accepts or rejects.
	Confirm
	// Deny refuses without executing; a refusal tool-result is synthesized.
	Deny
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Confirm:
		return "confirm"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// Check evaluates one proposed tool action against the trust level. Pure
// function: (tool, arguments, trust, dangerous-pattern table) -> decision.
// Dangerous reports whether the Bash destructive-pattern override fired;
// it forces Confirm even under full trust.
func Check(toolName string, arguments string, trust TrustLevel) (decision Decision, dangerous bool) {
	if toolName == "Bash" {
		var args struct {
			Command string `json:"command"`
		}
		// Malformed arguments fail closed: the executor rejects them later,
		// but the permission layer must not auto-allow what it cannot read.
		if err := json.Unmarshal([]byte(arguments), &args); err == nil {
			if IsDangerousCommand(args.Command) {
				return Confirm, true
			}
		} else if trust == TrustFull {
			return Confirm, false
		}
	}

	switch trust {
	case TrustFull:
		return Allow, false
	case TrustReadOnly:
		if IsReadOnlyTool(toolName) {
			return Allow, false
		}
		return Confirm, false
	default: // TrustNone
		return Confirm, false
	}
}
