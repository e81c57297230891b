package build

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jward/finegrain/internal/deps"
	"github.com/jward/finegrain/internal/diag"
	"github.com/jward/finegrain/internal/nodes"
	"github.com/jward/finegrain/internal/semanal"
)

// CacheEntry holds the analysis results of one module.
type CacheEntry struct {
	ID           string
	Path         string
	ModTime      time.Time
	Hash         string
	Dependencies []string
	Errors       []diag.Info
	Edges        deps.Edges
}

// Cache stores analysis results between runs. The build only ever asks
// whether an entry is valid for a file, loads it, writes it or drops it.
type Cache interface {
	Valid(id, path string, mtime time.Time, hash string) (bool, error)
	Load(id string) (*CacheEntry, error)
	Write(entry *CacheEntry) error
	Delete(id string) error
}

// ProcessGraph analyzes every unloaded module of the graph one import
// cycle at a time, dependencies first. Cycles whose results are cached,
// and whose dependencies are all cached too, are not analyzed: their
// diagnostics and dependencies are restored and they stay unloaded.
//
// On a blocking error processing stops. The modules that were not
// processed are removed from the graph and returned.
func (m *Manager) ProcessGraph(ctx context.Context) ([]Source, error) {
	var pending []string
	for _, id := range GraphIDs(m.Graph) {
		if _, loaded := m.Modules[id]; !loaded {
			pending = append(pending, id)
		}
	}
	sccs := SortedSCCs(m.Graph, pending)
	stale := make(map[string]bool)
	for i, scc := range sccs {
		if m.cacheFresh(scc, stale) {
			err := m.restoreCached(scc)
			if err == nil {
				continue
			}
			m.logger.Warn("cache load failed", slog.Any("modules", scc), slog.Any("error", err))
		}
		for _, id := range scc {
			stale[id] = true
		}
		if err := m.EnsureTreesLoaded(ctx, m.dependenciesOf(scc)); err != nil {
			return m.dropUnprocessed(sccs[i:]), err
		}
		if err := m.processStale(ctx, scc, true); err != nil {
			return m.dropUnprocessed(sccs[i:]), err
		}
	}
	return nil, nil
}

// dropUnprocessed removes the modules of sccs from the graph and the
// module table, returning them as sources.
func (m *Manager) dropUnprocessed(sccs [][]string) []Source {
	var out []Source
	for _, scc := range sccs {
		for _, id := range scc {
			if st, ok := m.Graph[id]; ok {
				out = append(out, Source{ID: id, Path: st.Path})
			}
			delete(m.Graph, id)
			delete(m.Modules, id)
		}
	}
	return out
}

// cacheFresh reports whether every member of scc has a valid cache entry
// and none of its dependencies was reanalyzed in this build.
func (m *Manager) cacheFresh(scc []string, stale map[string]bool) bool {
	if m.cache == nil {
		return false
	}
	for _, id := range scc {
		st := m.Graph[id]
		if isStub(id) {
			return false
		}
		for _, dep := range st.Dependencies {
			if stale[dep] && !slices.Contains(scc, dep) {
				return false
			}
		}
		ok, err := m.cache.Valid(id, st.Path, st.ModTime, st.Hash)
		if err != nil {
			m.logger.Warn("cache lookup failed", slog.String("module", id), slog.Any("error", err))
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

func (m *Manager) restoreCached(scc []string) error {
	entries := make([]*CacheEntry, 0, len(scc))
	for _, id := range scc {
		entry, err := m.cache.Load(id)
		if err != nil {
			return fmt.Errorf("load %s: %w", id, err)
		}
		entries = append(entries, entry)
	}
	for _, entry := range entries {
		m.Errors.Restore(entry.Errors)
		m.Deps.Merge(entry.Edges)
		m.Graph[entry.ID].Fresh = true
	}
	m.logger.Debug("cached", slog.Any("modules", scc))
	return nil
}

func (m *Manager) dependenciesOf(scc []string) []string {
	var out []string
	for _, id := range scc {
		for _, dep := range m.Graph[id].Dependencies {
			if !slices.Contains(scc, dep) && !slices.Contains(out, dep) {
				out = append(out, dep)
			}
		}
	}
	slices.Sort(out)
	return out
}

// processStale runs the three semantic analysis passes, type checking and
// dependency extraction over one import cycle.
func (m *Manager) processStale(ctx context.Context, scc []string, writeCache bool) error {
	m.logger.Debug("process", slog.Any("modules", scc))
	trees := make([]*nodes.Module, 0, len(scc))
	for _, id := range scc {
		st := m.Graph[id]
		if st.Tree == nil {
			reparsed, err := m.NewState(ctx, Source{ID: id, Path: st.Path})
			if err != nil {
				return err
			}
			st.Tree = reparsed.Tree
		}
		m.Errors.ClearFile(st.Path)
		m.Modules[id] = st.Tree
		trees = append(trees, st.Tree)
	}
	for _, tree := range trees {
		m.Analyzer.Pass1(tree)
	}
	for _, tree := range trees {
		m.Analyzer.VisitFile(tree)
	}
	if err := m.Analyzer.Pass3(trees...); err != nil {
		for _, id := range scc {
			delete(m.Modules, id)
		}
		return err
	}
	for _, tree := range trees {
		m.TypeCheck(ctx, tree)
	}
	for _, id := range scc {
		semanal.LinkSubmodules(m.Modules, id)
		m.Graph[id].Fresh = false
	}
	if writeCache && m.cache != nil {
		m.writeCache(scc)
	}
	return nil
}

func (m *Manager) writeCache(scc []string) {
	for _, id := range scc {
		if isStub(id) {
			continue
		}
		st := m.Graph[id]
		entry := &CacheEntry{
			ID:           id,
			Path:         st.Path,
			ModTime:      st.ModTime,
			Hash:         st.Hash,
			Dependencies: st.Dependencies,
			Errors:       m.Errors.FileInfos(st.Path),
			Edges:        deps.OfModule(st.Tree, m.Types),
		}
		if err := m.cache.Write(entry); err != nil {
			m.logger.Warn("cache write failed", slog.String("module", id), slog.Any("error", err))
		}
	}
}

// EnsureTreesLoaded loads every unloaded module among ids and their
// transitive dependencies. A loaded module always has loaded
// dependencies, so the walk stops at loaded modules.
func (m *Manager) EnsureTreesLoaded(ctx context.Context, ids []string) error {
	unloaded := m.findUnloaded(ids)
	if len(unloaded) == 0 {
		return nil
	}
	m.logger.Debug("load fresh modules", slog.Int("count", len(unloaded)))
	return m.ProcessFreshModules(ctx, unloaded)
}

func (m *Manager) findUnloaded(initial []string) []string {
	worklist := slices.Clone(initial)
	seen := make(map[string]bool)
	var unloaded []string
	for len(worklist) > 0 {
		id := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		st, ok := m.Graph[id]
		if seen[id] || !ok {
			continue
		}
		seen[id] = true
		if _, loaded := m.Modules[id]; !loaded {
			worklist = append(worklist, st.Dependencies...)
			unloaded = append(unloaded, id)
		}
	}
	return unloaded
}

// ProcessFreshModules analyzes unloaded modules whose results were taken
// from the cache so their trees become available. Their diagnostics are
// recomputed in place of the cached ones.
func (m *Manager) ProcessFreshModules(ctx context.Context, ids []string) error {
	for _, scc := range SortedSCCs(m.Graph, ids) {
		if err := m.processStale(ctx, scc, false); err != nil {
			return err
		}
	}
	return nil
}
