// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// STORE
// =============================================================================

// Store is the durable local store for conversations, messages, settings,
// and credentials. Construct with Open, release with Close. Safe for
// concurrent use; SQLite serializes writers through the single connection.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath returns the default database location,
// ~/.model-platform/conversations.db.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".model-platform", "conversations.db"), nil
}

// Open opens (creating if needed) the database at path and prepares the
// schema. The parent directory is created with owner-only permissions
// since the kv table holds obfuscated credentials.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the store and releases the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error.
func (s *Store) withTx(op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return storageErr(op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return storageErr(op, err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr(op, err)
	}
	return nil
}
