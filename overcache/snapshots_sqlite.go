// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mobiletoly/go-overtodo/overtodo"
)

// SQLiteSnapshots persists the last server-confirmed list per cache key in SQLite.
// Only fetched server truth is stored; optimistic state never reaches disk.
type SQLiteSnapshots struct {
	db     *sql.DB
	ownsDB bool
}

// OpenSQLiteSnapshots opens (or creates) the snapshot database at path
func OpenSQLiteSnapshots(path string) (*SQLiteSnapshots, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	s, err := NewSQLiteSnapshots(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewSQLiteSnapshots uses an already opened database, creating the snapshot tables
func NewSQLiteSnapshots(db *sql.DB) (*SQLiteSnapshots, error) {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	tables := []string{
		// One row per key that has ever been refreshed
		`CREATE TABLE IF NOT EXISTS _cache_meta (
			cache_key   TEXT NOT NULL PRIMARY KEY,
			item_count  INTEGER NOT NULL DEFAULT 0,
			saved_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		`CREATE TABLE IF NOT EXISTS _cache_items (
			cache_key   TEXT NOT NULL,
			position    INTEGER NOT NULL,
			id          TEXT NOT NULL,
			body        TEXT NOT NULL,
			complete    INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (cache_key, position)
		)`,
	}
	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return nil, fmt.Errorf("failed to create snapshot table: %w", err)
		}
	}
	return &SQLiteSnapshots{db: db}, nil
}

// SaveSnapshot replaces the stored list for key
func (s *SQLiteSnapshots) SaveSnapshot(ctx context.Context, key string, items []overtodo.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM _cache_items WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO _cache_items (cache_key, position, id, body, complete) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()
	for i, it := range items {
		if _, err := stmt.ExecContext(ctx, key, i, it.ID, it.Body, it.Complete); err != nil {
			return fmt.Errorf("failed to insert item %s: %w", it.ID, err)
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO _cache_meta (cache_key, item_count, saved_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		ON CONFLICT(cache_key) DO UPDATE SET item_count = excluded.item_count, saved_at = excluded.saved_at
	`, key, len(items))
	if err != nil {
		return fmt.Errorf("failed to update snapshot meta: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored list for key; ok is false if none was ever saved
func (s *SQLiteSnapshots) LoadSnapshot(ctx context.Context, key string) ([]overtodo.Item, bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT item_count FROM _cache_meta WHERE cache_key = ?`, key).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query snapshot meta: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, body, complete FROM _cache_items WHERE cache_key = ? ORDER BY position`, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	items := make([]overtodo.Item, 0, count)
	for rows.Next() {
		var it overtodo.Item
		if err := rows.Scan(&it.ID, &it.Body, &it.Complete); err != nil {
			return nil, false, fmt.Errorf("failed to scan snapshot item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return items, true, nil
}

// Close closes the database if it was opened by OpenSQLiteSnapshots
func (s *SQLiteSnapshots) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
