/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package history persists per-user document sessions in an embedded SQLite
// database: which documents were opened, their last-known page, and when they
// were last saved. Crash recovery reads the last page back; the UI reads the
// recent-files list.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"pdfviewer/internal/config"
	applog "pdfviewer/internal/log"
	"pdfviewer/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	dbFileName = "history.sqlite"

	// schemaVersion tracks the local SQLite schema. Bump on breaking
	// changes and add a migration step.
	schemaVersion = 1
)

// ErrNotFound is returned when no session exists for a document id.
var ErrNotFound = errors.New("history: session not found")

// Session is one row of the session store.
type Session struct {
	DocID      string
	SourcePath string // empty for memory-loaded documents
	Filename   string
	LastPage   int
	TotalPages int
	OpenedAt   time.Time
	SavedAt    time.Time // zero if never saved
}

// Store wraps the embedded database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// DefaultPath returns the per-user history database path, next to the config
// file.
func DefaultPath() (string, error) {
	cfgPath, err := config.ConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(cfgPath), dbFileName), nil
}

// Open opens (or creates) the session store at path, enables WAL mode and
// ensures the schema exists.
func Open(path string) (*Store, error) {
	l := applog.WithComponent("history")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite: %w", err)
	}
	// Embedded usage: one connection is enough and avoids writer contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: enable WAL: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	l.Debug("session store ready", slog.String("path", path))
	return &Store{db: db, logger: l}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func ensureSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			doc_id      TEXT PRIMARY KEY,
			source_path TEXT NOT NULL DEFAULT '',
			filename    TEXT NOT NULL,
			last_page   INTEGER NOT NULL DEFAULT 1,
			total_pages INTEGER NOT NULL DEFAULT 1,
			opened_at   TEXT NOT NULL,
			saved_at    TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_opened ON sessions(opened_at);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("history: ensure schema: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("history: insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("history: read version: %w", err)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("history: update version: %w", err)
		}
	}
	return nil
}

// RecordOpen inserts or replaces the session for a document.
func (s *Store) RecordOpen(ctx context.Context, sess Session) error {
	if sess.LastPage < 1 {
		sess.LastPage = 1
	}
	if sess.TotalPages < 1 {
		sess.TotalPages = 1
	}
	if sess.OpenedAt.IsZero() {
		sess.OpenedAt = time.Now()
	}
	var savedAt any
	if !sess.SavedAt.IsZero() {
		savedAt = sess.SavedAt.UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (doc_id, source_path, filename, last_page, total_pages, opened_at, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			source_path = excluded.source_path,
			filename    = excluded.filename,
			last_page   = excluded.last_page,
			total_pages = excluded.total_pages,
			opened_at   = excluded.opened_at`,
		sess.DocID, sess.SourcePath, sess.Filename, sess.LastPage, sess.TotalPages,
		sess.OpenedAt.UTC().Format(time.RFC3339), savedAt)
	if err != nil {
		return fmt.Errorf("history: record open: %w", err)
	}
	return nil
}

// UpdatePage stores the current page for a document.
func (s *Store) UpdatePage(ctx context.Context, docID string, page, total int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_page=?, total_pages=? WHERE doc_id=?`, page, total, docID)
	if err != nil {
		return fmt.Errorf("history: update page: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordSaved stamps the save time for a document.
func (s *Store) RecordSaved(ctx context.Context, docID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET saved_at=? WHERE doc_id=?`, at.UTC().Format(time.RFC3339), docID)
	if err != nil {
		return fmt.Errorf("history: record saved: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns the session for a document id.
func (s *Store) Get(ctx context.Context, docID string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT doc_id, source_path, filename, last_page, total_pages, opened_at, saved_at
		FROM sessions WHERE doc_id=?`, docID)
	return scanSession(row)
}

// LastPage returns the last-known page for a document, 1 when unknown.
func (s *Store) LastPage(ctx context.Context, docID string) int {
	sess, err := s.Get(ctx, docID)
	if err != nil {
		return 1
	}
	return sess.LastPage
}

// Recent returns up to limit sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, source_path, filename, last_page, total_pages, opened_at, saved_at
		FROM sessions ORDER BY opened_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Forget removes a session. Missing rows are not an error.
func (s *Store) Forget(ctx context.Context, docID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE doc_id=?`, docID); err != nil {
		return fmt.Errorf("history: forget: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (Session, error) {
	var sess Session
	var openedAt string
	var savedAt sql.NullString
	err := r.Scan(&sess.DocID, &sess.SourcePath, &sess.Filename, &sess.LastPage,
		&sess.TotalPages, &openedAt, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("history: scan session: %w", err)
	}
	if t, err := time.Parse(time.RFC3339, openedAt); err == nil {
		sess.OpenedAt = t
	}
	if savedAt.Valid {
		if t, err := time.Parse(time.RFC3339, savedAt.String); err == nil {
			sess.SavedAt = t
		}
	}
	return sess, nil
}
