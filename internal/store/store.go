// Package store persists per-module analysis results in SQLite so a build
// can skip modules whose sources did not change since the last run.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for the module cache.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS modules (
  id              INTEGER PRIMARY KEY,
  name            TEXT NOT NULL UNIQUE,
  path            TEXT NOT NULL,
  hash            TEXT NOT NULL,
  mod_time        TIMESTAMP,
  dependencies    TEXT,
  last_checked    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS diagnostics (
  id              INTEGER PRIMARY KEY,
  module_id       INTEGER NOT NULL REFERENCES modules(id),
  ordinal         INTEGER NOT NULL,
  path            TEXT NOT NULL,
  module          TEXT NOT NULL,
  target          TEXT NOT NULL,
  line            INTEGER,
  severity        TEXT NOT NULL,
  message         TEXT NOT NULL,
  blocker         BOOLEAN DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS dep_edges (
  id              INTEGER PRIMARY KEY,
  module_id       INTEGER NOT NULL REFERENCES modules(id),
  trigger_name    TEXT NOT NULL,
  target          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_diagnostics_module ON diagnostics(module_id);
CREATE INDEX IF NOT EXISTS idx_dep_edges_module ON dep_edges(module_id);
CREATE INDEX IF NOT EXISTS idx_dep_edges_trigger ON dep_edges(trigger_name);
`

// DeleteModuleData transactionally removes a module and everything
// recorded for it. Child rows go first to respect FK constraints.
func (s *Store) DeleteModuleData(moduleID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteModuleTx(tx, moduleID); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteModuleTx(tx *sql.Tx, moduleID int64) error {
	for _, q := range []string{
		"DELETE FROM dep_edges WHERE module_id = ?",
		"DELETE FROM diagnostics WHERE module_id = ?",
		"DELETE FROM modules WHERE id = ?",
	} {
		if _, err := tx.Exec(q, moduleID); err != nil {
			return fmt.Errorf("delete module data: %w", err)
		}
	}
	return nil
}
