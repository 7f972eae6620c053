// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// message content parts, and summary markers.
//
// Messages are owned by the session's conversation history. Renderers and
// the transport layer receive them read-only; only the conversation loop
// mutates them (appending parts during streaming, compacting attachments,
// replacing summarized prefixes).
package model
