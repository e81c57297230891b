package store

import (
	"fmt"
	"time"

	"github.com/jward/finegrain/internal/build"
	"github.com/jward/finegrain/internal/deps"
	"github.com/jward/finegrain/internal/diag"
)

// Compile-time check: *Store satisfies build.Cache.
var _ build.Cache = (*Store)(nil)

// Valid reports whether the cached entry of a module was computed from
// the same file contents. The modification time is not compared: a
// touched but unchanged file keeps its entry.
func (s *Store) Valid(id, path string, mtime time.Time, hash string) (bool, error) {
	m, err := s.ModuleByName(id)
	if err != nil {
		return false, err
	}
	return m != nil && m.Path == path && m.Hash == hash, nil
}

// Load returns the cached entry of a module.
func (s *Store) Load(id string) (*build.CacheEntry, error) {
	m, err := s.ModuleByName(id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("load %s: no cache entry", id)
	}
	diags, err := s.DiagnosticsByModule(m.ID)
	if err != nil {
		return nil, err
	}
	edges, err := s.EdgesByModule(m.ID)
	if err != nil {
		return nil, err
	}

	entry := &build.CacheEntry{
		ID:           m.Name,
		Path:         m.Path,
		ModTime:      m.ModTime,
		Hash:         m.Hash,
		Dependencies: m.Dependencies,
		Edges:        make(deps.Edges),
	}
	for _, d := range diags {
		entry.Errors = append(entry.Errors, diag.Info{
			Path:     d.Path,
			Module:   d.Module,
			Target:   d.Target,
			Line:     d.Line,
			Severity: diag.Severity(d.Severity),
			Message:  d.Message,
			Blocker:  d.Blocker,
		})
	}
	for _, e := range edges {
		entry.Edges.Add(e.Trigger, e.Target)
	}
	return entry, nil
}

// Write replaces the cached entry of a module.
func (s *Store) Write(e *build.CacheEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := writeEntryTx(tx, e, time.Now()); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete drops the cached entry of a module. Deleting a module that is
// not cached is not an error.
func (s *Store) Delete(id string) error {
	m, err := s.ModuleByName(id)
	if err != nil {
		return err
	}
	if m == nil {
		return nil
	}
	return s.DeleteModuleData(m.ID)
}
