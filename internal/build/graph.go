package build

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/jward/finegrain/internal/nodes"
	"github.com/jward/finegrain/internal/parse"
)

// LoadGraph adds sources, and breadth first every module they import that
// the graph does not hold yet, to the graph. Each frontier is parsed
// concurrently. The states added are returned even when a syntax error
// (a *diag.CompileError) stops the walk, so the caller can undo them.
func (m *Manager) LoadGraph(ctx context.Context, sources []Source) ([]*State, error) {
	var added []*State
	frontier := m.unknown(sources)
	for len(frontier) > 0 {
		m.logger.Debug("load graph", slog.Int("frontier", len(frontier)))
		states, err := m.parseAll(ctx, frontier)
		if err != nil {
			return added, err
		}
		var next []Source
		for _, st := range states {
			m.Graph[st.ID] = st
			added = append(added, st)
		}
		for _, st := range states {
			for _, id := range st.Dependencies {
				if path, ok := m.finder.Find(id); ok {
					next = append(next, Source{ID: id, Path: path})
				}
			}
		}
		frontier = m.unknown(next)
	}
	return added, nil
}

// unknown returns the sources not in the graph, deduplicated and sorted.
func (m *Manager) unknown(sources []Source) []Source {
	var out []Source
	seen := make(map[string]bool)
	for _, src := range sources {
		if _, ok := m.Graph[src.ID]; ok || seen[src.ID] {
			continue
		}
		seen[src.ID] = true
		out = append(out, src)
	}
	slices.SortFunc(out, func(a, b Source) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// parseAll parses every source. All files are parsed even if one fails so
// the error reported is always that of the first failing module.
func (m *Manager) parseAll(ctx context.Context, sources []Source) ([]*State, error) {
	states := make([]*State, len(sources))
	errs := make([]error, len(sources))
	var g errgroup.Group
	g.SetLimit(max(m.workers, 1))
	for i, src := range sources {
		g.Go(func() error {
			states[i], errs[i] = m.NewState(ctx, src)
			return nil
		})
	}
	_ = g.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return states, nil
}

// NewState reads and parses one module and resolves its imports.
func (m *Manager) NewState(ctx context.Context, src Source) (*State, error) {
	data, mtime, err := m.read(src.ID, src.Path)
	if err != nil {
		return nil, err
	}
	tree, err := parse.Parse(ctx, src.ID, src.Path, data)
	if err != nil {
		return nil, err
	}
	st := &State{
		ID:      src.ID,
		Path:    src.Path,
		Tree:    tree,
		Hash:    fmt.Sprintf("%016x", xxh3.Hash(data)),
		ModTime: mtime,
	}
	st.Dependencies, st.Ancestors = m.dependencies(tree)
	return st, nil
}

// dependencies returns the found modules mod imports (with the packages
// containing them) and the found packages containing mod. Every module
// other than the stubs depends on builtins.
func (m *Manager) dependencies(mod *nodes.Module) (deps, ancestors []string) {
	set := make(map[string]bool)
	addWithParents := func(id string) {
		parts := strings.Split(id, ".")
		for i := range parts {
			set[strings.Join(parts[:i+1], ".")] = true
		}
	}
	for _, imp := range mod.Imports {
		switch imp := imp.(type) {
		case *nodes.Import:
			for _, item := range imp.IDs {
				addWithParents(item.ID)
			}
		case *nodes.ImportFrom:
			addWithParents(imp.ID)
			for _, name := range imp.Names {
				if _, ok := m.finder.Find(imp.ID + "." + name.Name); ok {
					set[imp.ID+"."+name.Name] = true
				}
			}
		case *nodes.ImportAll:
			addWithParents(imp.ID)
		}
	}
	if !isStub(mod.ID) {
		set["builtins"] = true
	}
	parts := strings.Split(mod.ID, ".")
	for i := 1; i < len(parts); i++ {
		parent := strings.Join(parts[:i], ".")
		if _, ok := m.finder.Find(parent); ok {
			ancestors = append(ancestors, parent)
			set[parent] = true
		}
	}
	delete(set, mod.ID)
	for id := range set {
		if _, ok := m.finder.Find(id); ok {
			deps = append(deps, id)
		}
	}
	slices.Sort(deps)
	return deps, ancestors
}
