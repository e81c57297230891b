package store

import (
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/jward/finegrain/internal/build"
)

// CommitBatch writes every entry buffered in a BatchedStore within a
// single transaction and empties the buffer. Entries replace whatever was
// cached for their module before; buffered deletions are applied first.
func (s *Store) CommitBatch(batch *BatchedStore) error {
	batch.mu.Lock()
	defer batch.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	for _, name := range slices.Sorted(maps.Keys(batch.deleted)) {
		if err := deleteByNameTx(tx, name); err != nil {
			return fmt.Errorf("commit batch: delete %s: %w", name, err)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(batch.entries)) {
		if err := writeEntryTx(tx, batch.entries[name], batch.now()); err != nil {
			return fmt.Errorf("commit batch: module %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	clear(batch.entries)
	clear(batch.deleted)
	return nil
}

func deleteByNameTx(tx *sql.Tx, name string) error {
	var id int64
	err := tx.QueryRow("SELECT id FROM modules WHERE name = ?", name).Scan(&id)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("module id: %w", err)
	}
	return deleteModuleTx(tx, id)
}

// writeEntryTx replaces the cached rows of one module.
//
// Insert order respects FK dependencies:
//  1. Module
//  2. Diagnostics (depend on module_id)
//  3. Edges (depend on module_id)
func writeEntryTx(tx *sql.Tx, e *build.CacheEntry, now time.Time) error {
	if err := deleteByNameTx(tx, e.ID); err != nil {
		return err
	}
	m := &Module{
		Name:         e.ID,
		Path:         e.Path,
		Hash:         e.Hash,
		ModTime:      e.ModTime,
		Dependencies: e.Dependencies,
		LastChecked:  now,
	}
	moduleID, err := insertModuleTx(tx, m)
	if err != nil {
		return err
	}
	for i, info := range e.Errors {
		d := &Diagnostic{
			ModuleID: moduleID,
			Ordinal:  i,
			Path:     info.Path,
			Module:   info.Module,
			Target:   info.Target,
			Line:     info.Line,
			Severity: string(info.Severity),
			Message:  info.Message,
			Blocker:  info.Blocker,
		}
		if _, err := insertDiagnosticTx(tx, d); err != nil {
			return err
		}
	}
	for _, trigger := range slices.Sorted(maps.Keys(e.Edges)) {
		for _, target := range slices.Sorted(maps.Keys(e.Edges[trigger])) {
			if _, err := insertEdgeTx(tx, &Edge{ModuleID: moduleID, Trigger: trigger, Target: target}); err != nil {
				return err
			}
		}
	}
	return nil
}
