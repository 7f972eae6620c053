// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import "encoding/json"

// =============================================================================
// TOOL SCHEMAS
// =============================================================================

// Definition is one tool schema in chat-completions "tools" format.
type Definition struct {
	Type     string         `json:"type"`
	Function FunctionSchema `json:"function"`
}

// FunctionSchema describes a callable function to the model.
type FunctionSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

func objectSchema(required []string, props map[string]any) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

// Definitions returns the closed tool set sent with every tool-enabled
// request. Order is stable so the schema token estimate stays stable too.
func Definitions() []Definition {
	return []Definition{
		{Type: "function", Function: FunctionSchema{
			Name:        "Read",
			Description: "Read a file with line numbers. Supports an optional line offset and limit for large files.",
			Parameters: objectSchema([]string{"file_path"}, map[string]any{
				"file_path": prop("string", "Path to the file to read"),
				"offset":    prop("integer", "1-based line number to start from"),
				"limit":     prop("integer", "Maximum number of lines to read"),
			}),
		}},
		{Type: "function", Function: FunctionSchema{
			Name:        "Write",
			Description: "Create or overwrite a file with the given content. Parent directories are created as needed.",
			Parameters: objectSchema([]string{"file_path", "content"}, map[string]any{
				"file_path": prop("string", "Path to the file to write"),
				"content":   prop("string", "Full file content"),
			}),
		}},
		{Type: "function", Function: FunctionSchema{
			Name:        "Edit",
			Description: "Replace one unique occurrence of old_string in a file with new_string. old_string must match exactly once; include surrounding context to disambiguate.",
			Parameters: objectSchema([]string{"file_path", "old_string", "new_string"}, map[string]any{
				"file_path":  prop("string", "Path to the file to edit"),
				"old_string": prop("string", "Exact text to replace (must be unique in the file)"),
				"new_string": prop("string", "Replacement text"),
			}),
		}},
		{Type: "function", Function: FunctionSchema{
			Name:        "Bash",
			Description: "Run a shell command and return its combined output. Commands run in the project directory with a timeout.",
			Parameters: objectSchema([]string{"command"}, map[string]any{
				"command":     prop("string", "Shell command to execute"),
				"description": prop("string", "Short human-readable description of the command"),
				"timeout":     prop("integer", "Timeout in seconds"),
			}),
		}},
		{Type: "function", Function: FunctionSchema{
			Name:        "Grep",
			Description: "Search file contents with a regular expression. Returns matching file paths by default; output_mode can request matching lines or counts.",
			Parameters: objectSchema([]string{"pattern"}, map[string]any{
				"pattern":          prop("string", "Regular expression to search for"),
				"path":             prop("string", "File or directory to search (default: project root)"),
				"glob":             prop("string", "Glob filter for file names, e.g. *.go"),
				"output_mode":      prop("string", "files_with_matches, content, or count"),
				"case_insensitive": prop("boolean", "Case-insensitive matching"),
			}),
		}},
		{Type: "function", Function: FunctionSchema{
			Name:        "Glob",
			Description: "List files matching a glob pattern, newest first. Supports ** for recursive matching.",
			Parameters: objectSchema([]string{"pattern"}, map[string]any{
				"pattern": prop("string", "Glob pattern, e.g. **/*.go"),
				"path":    prop("string", "Directory to search from (default: project root)"),
			}),
		}},
	}
}

// TextEstimator is the slice of the token estimator the schema cost needs.
type TextEstimator interface {
	CountText(text string) int
}

// SchemaTokens estimates what the serialized tool schemas cost per request.
// The budget manager subtracts this from the window when tools are enabled.
func SchemaTokens(est TextEstimator) int {
	data, err := json.Marshal(Definitions())
	if err != nil {
		return 0
	}
	return est.CountText(string(data))
}
