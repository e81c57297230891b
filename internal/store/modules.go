package store

import (
	"database/sql"
	"fmt"
)

// --- Module operations ---

func (s *Store) InsertModule(m *Module) (int64, error) {
	return insertModuleTx(s.db, m)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertModuleTx(db execer, m *Module) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO modules (name, path, hash, mod_time, dependencies, last_checked)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.Name, m.Path, m.Hash, m.ModTime, marshalStrings(m.Dependencies), m.LastChecked,
	)
	if err != nil {
		return 0, fmt.Errorf("insert module: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	return id, nil
}

func scanModule(scanner interface{ Scan(...any) error }) (*Module, error) {
	m := &Module{}
	var deps string
	if err := scanner.Scan(&m.ID, &m.Name, &m.Path, &m.Hash, &m.ModTime, &deps, &m.LastChecked); err != nil {
		return nil, err
	}
	m.Dependencies = unmarshalStrings(deps)
	return m, nil
}

const moduleColumns = "id, name, path, hash, mod_time, dependencies, last_checked"

// ModuleByName returns the cached module, or nil if there is none.
func (s *Store) ModuleByName(name string) (*Module, error) {
	m, err := scanModule(s.db.QueryRow("SELECT "+moduleColumns+" FROM modules WHERE name = ?", name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("module by name: %w", err)
	}
	return m, nil
}

// Modules returns every cached module ordered by name.
func (s *Store) Modules() ([]*Module, error) {
	rows, err := s.db.Query("SELECT " + moduleColumns + " FROM modules ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("modules: %w", err)
	}
	defer rows.Close()
	var mods []*Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		mods = append(mods, m)
	}
	return mods, rows.Err()
}

// --- Diagnostic operations ---

func (s *Store) InsertDiagnostic(d *Diagnostic) (int64, error) {
	return insertDiagnosticTx(s.db, d)
}

func insertDiagnosticTx(db execer, d *Diagnostic) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO diagnostics (module_id, ordinal, path, module, target, line, severity, message, blocker)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ModuleID, d.Ordinal, d.Path, d.Module, d.Target, d.Line, d.Severity, d.Message, d.Blocker,
	)
	if err != nil {
		return 0, fmt.Errorf("insert diagnostic: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	d.ID = id
	return id, nil
}

// DiagnosticsByModule returns the diagnostics of a module in recording
// order.
func (s *Store) DiagnosticsByModule(moduleID int64) ([]*Diagnostic, error) {
	rows, err := s.db.Query(
		`SELECT id, module_id, ordinal, path, module, target, line, severity, message, blocker
		 FROM diagnostics WHERE module_id = ? ORDER BY ordinal`, moduleID,
	)
	if err != nil {
		return nil, fmt.Errorf("diagnostics by module: %w", err)
	}
	defer rows.Close()
	var out []*Diagnostic
	for rows.Next() {
		d := &Diagnostic{}
		if err := rows.Scan(&d.ID, &d.ModuleID, &d.Ordinal, &d.Path, &d.Module, &d.Target,
			&d.Line, &d.Severity, &d.Message, &d.Blocker); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- Edge operations ---

func (s *Store) InsertEdge(e *Edge) (int64, error) {
	return insertEdgeTx(s.db, e)
}

func insertEdgeTx(db execer, e *Edge) (int64, error) {
	res, err := db.Exec(
		"INSERT INTO dep_edges (module_id, trigger_name, target) VALUES (?, ?, ?)",
		e.ModuleID, e.Trigger, e.Target,
	)
	if err != nil {
		return 0, fmt.Errorf("insert edge: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	e.ID = id
	return id, nil
}

func (s *Store) queryEdges(query string, args ...any) ([]*Edge, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()
	var out []*Edge
	for rows.Next() {
		e := &Edge{}
		if err := rows.Scan(&e.ID, &e.ModuleID, &e.Trigger, &e.Target); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EdgesByModule returns the edges a module contributed.
func (s *Store) EdgesByModule(moduleID int64) ([]*Edge, error) {
	return s.queryEdges(
		"SELECT id, module_id, trigger_name, target FROM dep_edges WHERE module_id = ? ORDER BY trigger_name, target",
		moduleID,
	)
}

// EdgesByTrigger returns the cached edges of a trigger across modules.
func (s *Store) EdgesByTrigger(trigger string) ([]*Edge, error) {
	return s.queryEdges(
		"SELECT id, module_id, trigger_name, target FROM dep_edges WHERE trigger_name = ? ORDER BY target",
		trigger,
	)
}
