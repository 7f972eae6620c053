// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for gptcli.
//
// Supports TOML configuration with sensible defaults, environment variable
// overrides, and validation.
//
// # Key Types
//
//   - Config: main configuration structure with all settings
//   - APIConfig: provider endpoint and pacing
//   - ToolsConfig: tool-calling trust policy
//   - SummarizeConfig: history summarization tuning
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (OPENROUTER_API_KEY, GPTCLI_*)
//   - ~/.gptcli/config.toml
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Access settings:
//
//	model := cfg.Chat.DefaultModel
//	trust := cfg.Tools.Trust
package config
