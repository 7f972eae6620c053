// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/jeranaias/gptcli-tui/internal/model"
)

// =============================================================================
// SNAPSHOTS
// =============================================================================

// Snapshot is a point-in-time copy of a conversation history, saved before
// destructive operations (/reset) so it can be restored.
type Snapshot struct {
	Slug      string
	CreatedAt time.Time
	Messages  []*model.Message
}

// SnapshotMeta is the listing view of a snapshot.
type SnapshotMeta struct {
	Slug         string
	CreatedAt    time.Time
	MessageCount int
}

// historyChecksum fingerprints the serialized history. BLAKE2b keyed with
// nothing; this detects corruption, not tampering.
func historyChecksum(history []byte) []byte {
	sum := blake2b.Sum256(history)
	return sum[:]
}

// SaveSnapshot stores a history copy under slug, overwriting any previous
// snapshot with the same slug.
func (s *Store) SaveSnapshot(slug string, msgs []*model.Message) error {
	history, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO snapshots (slug, checksum, history, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			checksum = excluded.checksum,
			history = excluded.history,
			created_at = excluded.created_at`,
		slug, historyChecksum(history), history, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save snapshot %q: %w", slug, err)
	}
	return nil
}

// LoadSnapshot retrieves and verifies a snapshot. A checksum mismatch
// returns ErrSnapshotCorrupt; the caller decides whether to discard.
func (s *Store) LoadSnapshot(slug string) (*Snapshot, error) {
	row := s.db.QueryRow(
		`SELECT checksum, history, created_at FROM snapshots WHERE slug = ?`, slug)

	var (
		checksum, history []byte
		created           string
	)
	if err := row.Scan(&checksum, &history, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("load snapshot %q: %w", slug, err)
	}
	if !bytes.Equal(checksum, historyChecksum(history)) {
		return nil, ErrSnapshotCorrupt
	}

	snap := &Snapshot{Slug: slug}
	snap.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	if err := json.Unmarshal(history, &snap.Messages); err != nil {
		return nil, fmt.Errorf("decode snapshot %q: %w", slug, err)
	}
	for _, m := range snap.Messages {
		m.MarkSent()
	}
	return snap, nil
}

// ListSnapshots returns all snapshots, newest first.
func (s *Store) ListSnapshots() ([]SnapshotMeta, error) {
	rows, err := s.db.Query(
		`SELECT slug, history, created_at FROM snapshots ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var metas []SnapshotMeta
	for rows.Next() {
		var (
			meta    SnapshotMeta
			history []byte
			created string
		)
		if err := rows.Scan(&meta.Slug, &history, &created); err != nil {
			return nil, err
		}
		meta.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		var msgs []*model.Message
		if json.Unmarshal(history, &msgs) == nil {
			meta.MessageCount = len(msgs)
		}
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// DeleteSnapshot removes a snapshot by slug.
func (s *Store) DeleteSnapshot(slug string) error {
	res, err := s.db.Exec(`DELETE FROM snapshots WHERE slug = ?`, slug)
	if err != nil {
		return fmt.Errorf("delete snapshot %q: %w", slug, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSnapshotNotFound
	}
	return nil
}
