// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists sessions, code artifacts, and history snapshots
// in a single SQLite database.
//
// # Key Types
//
//   - Store: the database handle; one per process
//   - SessionRecord: a named session with its full message history
//   - Snapshot: a checksummed point-in-time history copy
//   - Artifact: a code block saved from a response
//
// # Usage
//
// Open the store and save the current session:
//
//	store, err := storage.Open(path)
//	err = store.SaveSession("default", modelID, messages)
//
// Snapshots guard destructive operations:
//
//	err = store.SaveSnapshot("pre-reset-20250101", messages)
//	snap, err := store.LoadSnapshot("pre-reset-20250101")
//
// Snapshot integrity is verified with a BLAKE2b checksum on load; a
// mismatch surfaces as ErrSnapshotCorrupt.
//
// # Storage Location
//
// The database lives at ~/.gptcli/sessions.db by default.
package storage
