// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jeranaias/gptcli-tui/internal/model"
	"github.com/jeranaias/gptcli-tui/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrSessionNotFound is returned when a named session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSnapshotNotFound is returned when a snapshot slug doesn't exist.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrSnapshotCorrupt is returned when a snapshot's stored checksum no
	// longer matches its history payload.
	ErrSnapshotCorrupt = errors.New("snapshot checksum mismatch")
)

// =============================================================================
// STORE
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	name       TEXT PRIMARY KEY,
	model      TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	history    BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS artifacts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session    TEXT NOT NULL DEFAULT '',
	lang       TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS snapshots (
	slug       TEXT PRIMARY KEY,
	checksum   BLOB NOT NULL,
	history    BLOB NOT NULL,
	created_at TEXT NOT NULL
);
`

// Store persists sessions, code artifacts, and history snapshots in a
// single SQLite database.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the per-user database location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".gptcli", "sessions.db"), nil
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single TUI process; serialize access and keep WAL for crash safety.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// SESSIONS
// =============================================================================

// SessionRecord is one persisted session.
type SessionRecord struct {
	Name      string
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Messages  []*model.Message
}

// SessionMeta is the listing view of a session.
type SessionMeta struct {
	Name         string
	Model        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
	Preview      string // first user message, truncated
}

// SaveSession upserts a session's full history under its name.
func (s *Store) SaveSession(name, modelID string, msgs []*model.Message) error {
	history, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.Exec(`
		INSERT INTO sessions (name, model, created_at, updated_at, history)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			model = excluded.model,
			updated_at = excluded.updated_at,
			history = excluded.history`,
		name, modelID, now, now, history)
	if err != nil {
		return fmt.Errorf("save session %q: %w", name, err)
	}
	return nil
}

// LoadSession retrieves a session by name. Loaded messages are marked sent:
// they were shipped upstream in a previous run, so compact mode may reclaim
// their attachments immediately.
func (s *Store) LoadSession(name string) (*SessionRecord, error) {
	row := s.db.QueryRow(
		`SELECT model, created_at, updated_at, history FROM sessions WHERE name = ?`, name)

	var (
		modelID, created, updated string
		history                   []byte
	)
	if err := row.Scan(&modelID, &created, &updated, &history); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session %q: %w", name, err)
	}

	rec := &SessionRecord{Name: name, Model: modelID}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	if err := json.Unmarshal(history, &rec.Messages); err != nil {
		return nil, fmt.Errorf("decode session %q: %w", name, err)
	}
	for _, m := range rec.Messages {
		m.MarkSent()
	}
	return rec, nil
}

// ListSessions returns all sessions, most recently updated first.
func (s *Store) ListSessions() ([]SessionMeta, error) {
	rows, err := s.db.Query(
		`SELECT name, model, created_at, updated_at, history FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var metas []SessionMeta
	for rows.Next() {
		var (
			meta             SessionMeta
			created, updated string
			history          []byte
		)
		if err := rows.Scan(&meta.Name, &meta.Model, &created, &updated, &history); err != nil {
			return nil, err
		}
		meta.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		meta.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)

		var msgs []*model.Message
		if json.Unmarshal(history, &msgs) == nil {
			meta.MessageCount = len(msgs)
			meta.Preview = firstUserPreview(msgs, 80)
		}
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// DeleteSession removes a session by name.
func (s *Store) DeleteSession(name string) error {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete session %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// =============================================================================
// ARTIFACTS
// =============================================================================

// Artifact is one saved code block.
type Artifact struct {
	ID        int64
	Session   string
	Lang      string
	Content   string
	CreatedAt time.Time
}

// SaveArtifact stores a code block extracted from a response.
func (s *Store) SaveArtifact(session, lang, content string) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO artifacts (session, lang, content, created_at) VALUES (?, ?, ?, ?)`,
		session, lang, content, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("save artifact: %w", err)
	}
	return res.LastInsertId()
}

// ListArtifacts returns the artifacts for a session, newest first.
func (s *Store) ListArtifacts(session string) ([]Artifact, error) {
	rows, err := s.db.Query(
		`SELECT id, session, lang, content, created_at FROM artifacts
		 WHERE session = ? ORDER BY id DESC`, session)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var (
			a       Artifact
			created string
		)
		if err := rows.Scan(&a.ID, &a.Session, &a.Lang, &a.Content, &created); err != nil {
			return nil, err
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// LISTING HELPERS
// =============================================================================

// firstUserPreview extracts a single-line preview from the first user
// message.
func firstUserPreview(msgs []*model.Message, maxLen int) string {
	for _, m := range msgs {
		if m.Role == model.RoleUser {
			text := strings.ReplaceAll(m.Text(), "\n", " ")
			text = strings.ReplaceAll(text, "\r", "")
			return util.TruncateRunes(text, maxLen)
		}
	}
	return ""
}

// formatPadded pads a string to width with spaces.
func formatPadded(s string, width int) string {
	runes := []rune(s)
	if len(runes) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(runes))
}

// FormatSessionList renders a session listing table for the /session command.
func FormatSessionList(sessions []SessionMeta) string {
	if len(sessions) == 0 {
		return "No sessions found."
	}

	var sb strings.Builder
	sb.WriteString("Sessions:\n")
	sb.WriteString("-----------------------------------------------------\n")
	sb.WriteString(formatPadded("Name", 20) + " " + formatPadded("Updated", 17) + " " + formatPadded("Messages", 8) + " Preview\n")
	sb.WriteString("-----------------------------------------------------\n")
	for _, m := range sessions {
		sb.WriteString(formatPadded(util.TruncateRunes(m.Name, 20), 20) + " " +
			formatPadded(m.UpdatedAt.Format("2006-01-02 15:04"), 17) + " " +
			formatPadded(fmt.Sprintf("%d", m.MessageCount), 8) + " " +
			util.TruncateRunes(m.Preview, 30) + "\n")
	}
	return sb.String()
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportMarkdown renders a session as Markdown with role labels and
// timestamps.
func (r *SessionRecord) ExportMarkdown() string {
	var sb strings.Builder
	sb.WriteString("# Session " + r.Name + "\n\n")
	sb.WriteString("Created: " + r.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")
	for _, m := range r.Messages {
		sb.WriteString("**" + m.Role.DisplayName() + "** (" + m.Timestamp.Format("15:04") + "):\n\n")
		sb.WriteString(m.Text())
		sb.WriteString("\n\n---\n\n")
	}
	return sb.String()
}

// ExportJSON renders a session's history as pretty-printed JSON.
func (r *SessionRecord) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(r.Messages, "", "  ")
}
