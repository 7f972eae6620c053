// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/gptcli-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete gptcli configuration.
type Config struct {
	// API is the provider connection.
	API APIConfig `toml:"api"`

	// Chat is conversation behavior.
	Chat ChatConfig `toml:"chat"`

	// Summarize tunes history summarization.
	Summarize SummarizeConfig `toml:"summarize"`

	// Tools is the tool-calling policy.
	Tools ToolsConfig `toml:"tools"`

	// UI is rendering behavior.
	UI UIConfig `toml:"ui"`

	// Storage is persistence.
	Storage StorageConfig `toml:"storage"`
}

// APIConfig is the provider connection.
type APIConfig struct {
	// BaseURL is the chat-completions endpoint root (default: OpenRouter).
	BaseURL string `toml:"base_url"`
	// Key is the API key. Prefer the OPENROUTER_API_KEY or GPTCLI_API_KEY
	// environment variables over storing it in the file.
	Key string `toml:"key"`
	// RequestsPerMinute paces outbound calls; 0 disables pacing.
	RequestsPerMinute int `toml:"requests_per_minute"`
	// TimeoutSecs bounds non-streaming requests.
	TimeoutSecs int `toml:"timeout_secs"`
}

// ChatConfig is conversation behavior.
type ChatConfig struct {
	// DefaultModel is the model used at startup.
	DefaultModel string `toml:"default_model"`
	// SystemPrompt is prepended to every request.
	SystemPrompt string `toml:"system_prompt"`
	// CompactMode replaces sent attachments with placeholders.
	CompactMode bool `toml:"compact_mode"`
}

// SummarizeConfig tunes history summarization. Zero values take the
// service defaults.
type SummarizeConfig struct {
	// Model is the model used for summarization calls; empty means the
	// active chat model.
	Model string `toml:"model"`
	// MinMessages is the minimum history length before summarization runs.
	MinMessages int `toml:"min_messages"`
	// KeepRecent is how many newest messages stay verbatim.
	KeepRecent int `toml:"keep_recent"`
	// MaxLevels caps how many times a region can be re-folded.
	MaxLevels int `toml:"max_levels"`
	// ChunkTokenLimit splits oversized regions into chunks.
	ChunkTokenLimit int `toml:"chunk_token_limit"`
}

// ToolsConfig is the tool-calling policy.
type ToolsConfig struct {
	// Enabled turns the tool loop on.
	Enabled bool `toml:"enabled"`
	// Trust is the startup trust level: "full", "read_only", or "none".
	Trust string `toml:"trust"`
	// BaseDir is the directory tools operate in; empty means the current
	// working directory.
	BaseDir string `toml:"base_dir"`
	// GlobalIgnoreFile points at a gitignore-style rules file applied on
	// top of the project's .gitignore.
	GlobalIgnoreFile string `toml:"global_ignore_file"`
}

// UIConfig is rendering behavior.
type UIConfig struct {
	// PrettyPrint re-renders the final response through the markdown
	// renderer once streaming completes.
	PrettyPrint bool `toml:"pretty_print"`
	// Theme is the syntax highlighting theme.
	Theme string `toml:"theme"`
	// ShowReasoning streams reasoning deltas in a dimmed panel.
	ShowReasoning bool `toml:"show_reasoning"`
}

// StorageConfig is persistence.
type StorageConfig struct {
	// DBPath overrides the session database location.
	DBPath string `toml:"db_path"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:           "https://openrouter.ai/api/v1",
			RequestsPerMinute: 0,
			TimeoutSecs:       120,
		},
		Chat: ChatConfig{
			DefaultModel: "anthropic/claude-sonnet-4.5",
		},
		Tools: ToolsConfig{
			Enabled: true,
			Trust:   "read_only",
		},
		UI: UIConfig{
			PrettyPrint:   true,
			Theme:         "monokai",
			ShowReasoning: true,
		},
	}
}

// =============================================================================
// FILE LOCATIONS
// =============================================================================

// ConfigDir returns ~/.gptcli, creating nothing.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".gptcli"), nil
}

// ConfigPath returns the TOML config location.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the user config, applies environment overrides, and validates.
// A missing file is not an error; defaults apply.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers environment overrides over file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.API.Key = v
	}
	if v := os.Getenv("GPTCLI_API_KEY"); v != "" {
		c.API.Key = v
	}
	if v := os.Getenv("GPTCLI_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("GPTCLI_MODEL"); v != "" {
		c.Chat.DefaultModel = v
	}
	if v := os.Getenv("GPTCLI_TRUST"); v != "" {
		c.Tools.Trust = v
	}
	if v := os.Getenv("GPTCLI_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("GPTCLI_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.API.RequestsPerMinute = n
		}
	}
}

// Save writes the configuration as TOML, creating the config directory.
// The write is atomic so an interrupted save never corrupts the file.
func Save(cfg *Config, path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}
	return util.AtomicWriteFile(path, buf.Bytes(), 0o600)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns all problems at once.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		errs = append(errs, ValidationError{"api.base_url", "must be an http(s) URL"})
	}
	if c.API.RequestsPerMinute < 0 {
		errs = append(errs, ValidationError{"api.requests_per_minute", "cannot be negative"})
	}
	if c.API.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{"api.timeout_secs", "cannot be negative"})
	}

	switch c.Tools.Trust {
	case "full", "read_only", "none":
	default:
		errs = append(errs, ValidationError{"tools.trust", `must be "full", "read_only", or "none"`})
	}

	if c.Summarize.MinMessages < 0 {
		errs = append(errs, ValidationError{"summarize.min_messages", "cannot be negative"})
	}
	if c.Summarize.KeepRecent < 0 {
		errs = append(errs, ValidationError{"summarize.keep_recent", "cannot be negative"})
	}
	if c.Summarize.MaxLevels < 0 {
		errs = append(errs, ValidationError{"summarize.max_levels", "cannot be negative"})
	}
	if c.Summarize.ChunkTokenLimit < 0 {
		errs = append(errs, ValidationError{"summarize.chunk_token_limit", "cannot be negative"})
	}
	if c.Summarize.MinMessages > 0 && c.Summarize.KeepRecent >= c.Summarize.MinMessages {
		errs = append(errs, ValidationError{"summarize.keep_recent", "must be smaller than min_messages"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
