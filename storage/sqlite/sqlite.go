// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package sqlite provides a storage.Store persisted in a SQLite database, so
// a session survives process restarts.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fcid/fcauth/storage"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS fcauth_storage (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// Store is a storage.Store backed by a single SQLite table.
type Store struct {
	db *sql.DB
}

// ensure that Store implements the storage.Store interface
var _ storage.Store = (*Store)(nil)

// Open opens (creating if needed) the database at dsn and ensures the
// storage table exists.  The dsn is passed to the modernc.org/sqlite driver
// as is, so a plain file path works.
//
// See Store.Close() which must be called to release the database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	const op = "sqlite.Open"
	if dsn == "" {
		return nil, fmt.Errorf("%s: dsn is empty: %w", op, storage.ErrInvalidParameter)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to open database: %w", op, err)
	}
	// sqlite serializes writers; a single connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: unable to create schema: %w", op, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get implements storage.Store.Get.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	const op = "sqlite.(Store).Get"
	if key == "" {
		return "", fmt.Errorf("%s: key is empty: %w", op, storage.ErrInvalidParameter)
	}
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM fcauth_storage WHERE key = ?`, key).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("%s: %q: %w", op, key, storage.ErrNotFound)
	case err != nil:
		return "", fmt.Errorf("%s: unable to read %q: %w", op, key, err)
	}
	return value, nil
}

// Set implements storage.Store.Set.
func (s *Store) Set(ctx context.Context, key, value string) error {
	const op = "sqlite.(Store).Set"
	if key == "" {
		return fmt.Errorf("%s: key is empty: %w", op, storage.ErrInvalidParameter)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fcauth_storage (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("%s: unable to write %q: %w", op, key, err)
	}
	return nil
}

// Remove implements storage.Store.Remove.
func (s *Store) Remove(ctx context.Context, key string) error {
	const op = "sqlite.(Store).Remove"
	if key == "" {
		return fmt.Errorf("%s: key is empty: %w", op, storage.ErrInvalidParameter)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM fcauth_storage WHERE key = ?`, key); err != nil {
		return fmt.Errorf("%s: unable to delete %q: %w", op, key, err)
	}
	return nil
}

// Keys implements storage.Store.Keys.  Keys are returned sorted.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	const op = "sqlite.(Store).Keys"
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM fcauth_storage ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to list keys: %w", op, err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("%s: unable to scan key: %w", op, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return keys, nil
}
