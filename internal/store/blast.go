package store

import "fmt"

// ModulesTriggeredBy returns the names of cached modules with an edge from
// any of the given triggers, sorted.
func (s *Store) ModulesTriggeredBy(triggers []string) ([]string, error) {
	if len(triggers) == 0 {
		return nil, nil
	}
	query := `SELECT DISTINCT m.name
		FROM dep_edges e
		JOIN modules m ON m.id = e.module_id
		WHERE e.trigger_name IN (` + placeholderList(len(triggers)) + `)
		ORDER BY m.name`
	rows, err := s.db.Query(query, stringsToArgs(triggers)...)
	if err != nil {
		return nil, fmt.Errorf("modules triggered by: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan module name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Counts returns the number of cached modules, diagnostics and edges.
func (s *Store) Counts() (modules, diagnostics, edges int, err error) {
	for _, q := range []struct {
		table string
		dst   *int
	}{
		{"modules", &modules},
		{"diagnostics", &diagnostics},
		{"dep_edges", &edges},
	} {
		if err = s.db.QueryRow("SELECT COUNT(*) FROM " + q.table).Scan(q.dst); err != nil {
			return 0, 0, 0, fmt.Errorf("count %s: %w", q.table, err)
		}
	}
	return modules, diagnostics, edges, nil
}
