// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns the live conversation state.
//
// A Session is the single writer: sending turns, summarizing, switching
// models, and toggling modes all serialize through it. It composes the
// token estimator, the budget manager, the summarization service, and the
// tool loop, and optionally persists history through the storage package.
//
// # Key Types
//
//   - Session: the single-writer state owner
//   - Config: dependency wiring for construction
//
// # Usage
//
// Build a session and send a turn:
//
//	sess := session.New(session.Config{
//	    ModelID:   cfg.Chat.DefaultModel,
//	    Caller:    client,
//	    Completer: client,
//	    Executor:  executor,
//	})
//	reply, err := sess.Send(ctx, model.NewUserMessage(input), onDelta)
//
// Destructive operations snapshot first:
//
//	slug, err := sess.Reset(false) // restorable via RestoreSnapshot(slug)
package session
