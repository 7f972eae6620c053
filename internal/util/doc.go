// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers: crash-safe atomic file
// writes (used by config persistence) and rune-aware truncation (used for
// previews in storage listings and tool-confirmation prompts). Display-width
// truncation lives in the render package, which owns terminal concerns.
package util
