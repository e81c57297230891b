package finegrain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/jward/finegrain/internal/astdiff"
	"github.com/jward/finegrain/internal/astmerge"
	"github.com/jward/finegrain/internal/build"
	"github.com/jward/finegrain/internal/nodes"
	"github.com/jward/finegrain/internal/semanal"
)

// Update brings the program up to date with changed and removed modules
// and returns the diagnostics of the whole program. Each changed module
// is reparsed and analyzed in full; every other target affected by the
// changes is reprocessed in place.
//
// A module whose file no longer exists, or that is named in removed, is
// deleted from the program. Without any changes Update returns the
// previous result.
//
// If a blocking error stops the update, its messages are the result. The
// blocked module is retried first by the next call, and the modules that
// were still pending are kept for it. A broken invariant is returned as
// an *InternalError.
func (e *Engine) Update(ctx context.Context, changed, removed []Source) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.closed:
		return nil, ErrEngineClosed
	case e.broken != nil:
		return nil, e.broken
	case !e.built:
		return nil, ErrNotBuilt
	}

	all := append(slices.Clone(changed), removed...)
	removedSet := make(map[string]struct{}, len(removed))
	for _, s := range removed {
		removedSet[s.ID] = struct{}{}
	}
	e.changedModules = all
	if len(all) == 0 {
		return slices.Clone(e.previousMessages), nil
	}

	e.triggered = nil
	e.updatedModules = nil
	updateID := uuid.NewString()
	logger := e.logger.With(slog.String("update", updateID))
	ctx, span := startUpdateSpan(ctx, updateID, len(changed), len(removed))
	start := time.Now()

	pending := dedupeModules(append(all, e.stale...))
	if e.blockingError != nil {
		logger.Debug("existing blocker", slog.String("module", e.blockingError.ID))
		pending = dedupeModules(append([]Source{*e.blockingError}, pending...))
		e.blockingError = nil
	}
	e.stale = nil
	initial := make(map[string]struct{}, len(pending))
	for _, s := range pending {
		initial[s.ID] = struct{}{}
	}
	logger.Debug("update", slog.Any("modules", sourceIDs(pending)))
	if len(e.previousTargetsWithErrors) > 0 {
		logger.Debug("previous targets with errors", slog.Any("targets", slices.Sorted(maps.Keys(e.previousTargetsWithErrors))))
	}

	var messages []string
	blocked := false
	for {
		remaining, next, blocker, err := e.updateOne(ctx, logger, pending, initial, removedSet)
		if err != nil {
			return nil, e.fail(span, err)
		}
		if blocker != nil {
			e.block(ctx, logger, next, remaining)
			messages = blocker
			blocked = true
			break
		}
		pending = remaining
		if len(pending) > 0 {
			continue
		}

		more, err := e.propagate(ctx, logger, nil, map[string]struct{}{next.ID: {}}, e.previousTargetsWithErrors)
		if ce, ok := asBlocker(err); ok {
			e.block(ctx, logger, e.sourceOf(ce.Module, nil), more)
			messages = slices.Clone(ce.Messages)
			blocked = true
			break
		} else if err != nil {
			return nil, e.fail(span, err)
		}
		pending = dedupeModules(more)
		if len(pending) == 0 {
			e.previousTargetsWithErrors = setOf(e.manager.Errors.Targets())
			messages = e.manager.Errors.Messages()
			break
		}
	}

	recordUpdate(ctx, time.Since(start), blocked)
	endSpan(span, nil)
	e.previousMessages = slices.Clone(messages)
	return messages, nil
}

// block remembers a blocking error in module next and the modules still
// pending.
func (e *Engine) block(ctx context.Context, logger *slog.Logger, next Source, remaining []Source) {
	logger.Debug("blocked", slog.String("module", next.ID), slog.Int("pending", len(remaining)))
	recordBlocker(ctx, next.ID)
	e.blockingError = &next
	e.stale = slices.DeleteFunc(slices.Clone(remaining), func(s Source) bool { return s.ID == next.ID })
}

// fail ends the update with err. An internal error breaks the engine.
func (e *Engine) fail(span trace.Span, err error) error {
	var ie *InternalError
	if errors.As(err, &ie) {
		e.broken = ie
		e.logger.Error("update failed", slog.Any("error", err))
	} else {
		err = fmt.Errorf("finegrain: update: %w", err)
	}
	endSpan(span, err)
	return err
}

// updateOne processes the first pending module. It returns the modules
// still pending, the module actually processed and, on a blocking error,
// its messages.
func (e *Engine) updateOne(ctx context.Context, logger *slog.Logger, pending []Source, initial, removed map[string]struct{}) ([]Source, Source, []string, error) {
	start := time.Now()
	next := pending[0]
	pending = pending[1:]
	_, known := e.previousModules[next.ID]
	_, requested := initial[next.ID]
	if !known && !requested {
		logger.Debug("skip module not in import graph", slog.String("module", next.ID))
		return pending, next, nil, nil
	}
	_, forceRemoved := removed[next.ID]
	remaining, processed, blocker, err := e.updateModule(ctx, logger, next.ID, next.Path, forceRemoved)
	if err != nil {
		return nil, processed, nil, err
	}
	for _, s := range remaining {
		// Newly imported modules left for a later step.
		initial[s.ID] = struct{}{}
	}
	pending = slices.DeleteFunc(pending, func(s Source) bool { return s.ID == processed.ID })
	pending = dedupeModules(append(remaining, pending...))

	logger.Debug("update once",
		slog.String("module", processed.ID),
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("left", len(pending)),
	)
	return pending, processed, blocker, nil
}

// updateModule updates one changed module and propagates the changes of
// its symbol table. If the module imports modules new to the program only
// one module is processed; the others are returned as remaining work.
func (e *Engine) updateModule(ctx context.Context, logger *slog.Logger, id, path string, forceRemoved bool) (remaining []Source, processed Source, blocker []string, err error) {
	logger.Debug("update single", slog.String("module", id))
	ctx, span := startModuleSpan(ctx, id)
	defer func() { endSpan(span, err) }()
	m := e.manager

	if err := m.EnsureTreesLoaded(ctx, []string{id}); err != nil {
		if ce, ok := asBlocker(err); ok {
			e.updatedModules = append(e.updatedModules, id)
			return nil, e.sourceOf(ce.Module, nil), ce.Messages, nil
		}
		return nil, Source{ID: id, Path: path}, nil, err
	}

	var oldSnapshot astdiff.Snapshot
	if tree, ok := m.Modules[id]; ok {
		oldSnapshot = astdiff.Of(id, tree.Names)
	}

	res, err := e.updateModuleIsolated(ctx, logger, id, path, forceRemoved)
	if err != nil {
		return nil, Source{ID: id, Path: path}, nil, err
	}
	e.updatedModules = append(e.updatedModules, res.source.ID)
	if res.blocked != nil {
		e.previousModules = m.ModulePaths()
		return res.remaining, res.source, res.blocked, nil
	}
	recordModuleUpdate(ctx, res.tree == nil)

	if res.source.ID != id {
		// A newly imported module was processed instead.
		oldSnapshot = nil
	}
	var table nodes.SymbolTable
	if res.tree != nil {
		table = res.tree.Names
	}
	triggered := astdiff.ActiveTriggers(res.source.ID, oldSnapshot, table)
	logger.Debug("triggered", slog.Any("triggers", withoutDunders(triggered)))
	recordTriggers(ctx, len(triggered))
	fired := setOf(triggered)
	e.triggered = append(e.triggered, slices.Sorted(maps.Keys(union(fired, e.previousTargetsWithErrors)))...)

	remaining = res.remaining
	more, err := e.propagate(ctx, logger, fired, map[string]struct{}{res.source.ID: {}}, nil)
	remaining = append(remaining, more...)
	if ce, ok := asBlocker(err); ok {
		e.previousModules = m.ModulePaths()
		return remaining, e.sourceOf(ce.Module, nil), slices.Clone(ce.Messages), nil
	} else if err != nil {
		return nil, res.source, nil, err
	}

	for _, target := range m.Errors.Targets() {
		e.previousTargetsWithErrors[target] = struct{}{}
	}
	e.previousModules = m.ModulePaths()
	return remaining, res.source, nil, nil
}

// moduleUpdate is the outcome of updating one module in isolation. tree
// is nil for a deleted module; blocked holds the messages of a blocking
// error.
type moduleUpdate struct {
	source    Source
	remaining []Source
	tree      *nodes.Module
	blocked   []string
}

// updateModuleIsolated builds a new version of one module without
// propagating anything. The module moves through parse, analysis, merge
// with the previous tree and type checking. A blocking error during parse
// or analysis restores every module touched to its previous state.
func (e *Engine) updateModuleIsolated(ctx context.Context, logger *slog.Logger, id, path string, forceRemoved bool) (moduleUpdate, error) {
	m := e.manager
	if _, ok := m.Graph[id]; !ok {
		logger.Debug("new module", slog.String("module", id))
	}
	if forceRemoved || !m.Exists(id, path) {
		e.deleteModule(logger, id)
		return moduleUpdate{source: Source{ID: id, Path: path}}, nil
	}

	origState := m.Graph[id]
	origTree := m.Modules[id]
	restore := func(ids []string) {
		for _, rid := range ids {
			if rid == id && origTree != nil {
				m.Modules[rid] = origTree
			} else {
				delete(m.Modules, rid)
			}
			if rid == id && origState != nil {
				m.Graph[rid] = origState
			} else {
				delete(m.Graph, rid)
			}
		}
	}

	// Parse.
	delete(m.Graph, id)
	added, err := m.LoadGraph(ctx, []Source{{ID: id, Path: path}})
	if err != nil {
		restore(append([]string{id}, stateIDs(added)...))
		if ce, ok := asBlocker(err); ok {
			return moduleUpdate{source: Source{ID: ce.Module, Path: e.blockerPath(ce.Module, id, path)}, blocked: slices.Clone(ce.Messages)}, nil
		}
		return moduleUpdate{}, err
	}

	newIDs := setOf(stateIDs(added))
	var loadedDeps []string
	for _, dep := range m.Graph[id].Dependencies {
		if _, isNew := newIDs[dep]; !isNew {
			loadedDeps = append(loadedDeps, dep)
		}
	}
	if err := m.EnsureTreesLoaded(ctx, loadedDeps); err != nil {
		restore(append([]string{id}, stateIDs(added)...))
		if ce, ok := asBlocker(err); ok {
			return moduleUpdate{source: e.sourceOf(ce.Module, nil), blocked: slices.Clone(ce.Messages)}, nil
		}
		return moduleUpdate{}, err
	}

	module := Source{ID: id, Path: path}
	var remaining []Source
	if len(added) > 1 {
		var candidates []Source
		for _, st := range added {
			// A module the program already held is not newly imported.
			if st.ID == id && origState != nil {
				continue
			}
			candidates = append(candidates, Source{ID: st.ID, Path: st.Path})
		}
		module = findRelativeLeafModule(candidates, m.Graph)
		for _, st := range added {
			if st.ID != module.ID {
				remaining = append(remaining, Source{ID: st.ID, Path: st.Path})
			}
		}
		restore(sourceIDs(remaining))
		logger.Debug("newly imported", slog.String("module", module.ID))
	}

	// Analyze.
	state := m.Graph[module.ID]
	tree := state.Tree
	saved := m.Errors.FileInfos(state.Path)
	m.Errors.ClearFile(state.Path)
	m.Modules[module.ID] = tree
	m.Analyzer.Pass1(tree)
	m.Analyzer.VisitFile(tree)
	if err := m.Analyzer.Pass3(tree); err != nil {
		restore([]string{module.ID})
		m.Errors.ClearFile(state.Path)
		m.Errors.Restore(saved)
		if ce, ok := asBlocker(err); ok {
			return moduleUpdate{source: module, remaining: remaining, blocked: slices.Clone(ce.Messages)}, nil
		}
		return moduleUpdate{}, err
	}

	// Merge.
	if module.ID == id && origTree != nil {
		astmerge.Merge(origTree, origTree.Names, tree, tree.Names)
		tree = origTree
		m.Modules[id] = tree
		state.Tree = tree
		if origState != nil && origState.Path != state.Path {
			m.Errors.ClearFile(origState.Path)
		}
	}

	// Type check.
	m.TypeCheck(ctx, tree)
	semanal.LinkSubmodules(m.Modules, module.ID)
	state.Fresh = false
	m.Graph[module.ID] = state
	return moduleUpdate{source: Source{ID: module.ID, Path: state.Path}, remaining: remaining, tree: tree}, nil
}

// blockerPath returns the path of the module a syntax error was found in
// while loading module id from path.
func (e *Engine) blockerPath(blocked, id, path string) string {
	if blocked == id {
		return path
	}
	return e.sourceOf(blocked, nil).Path
}

// deleteModule removes a module from the program, including the entry
// its parent package holds for it.
func (e *Engine) deleteModule(logger *slog.Logger, id string) {
	logger.Debug("delete module", slog.String("module", id))
	m := e.manager
	if st, ok := m.Graph[id]; ok {
		m.Errors.ClearFile(st.Path)
		delete(m.Graph, id)
	}
	delete(m.Modules, id)
	if i := strings.LastIndexByte(id, '.'); i >= 0 {
		if parent, ok := m.Modules[id[:i]]; ok {
			delete(parent.Names, id[i+1:])
		}
	}
}

// findRelativeLeafModule picks the module to process among newly imported
// ones: the first in id order that imports none of the others, or the
// first in id order if they all do.
func findRelativeLeafModule(modules []Source, graph map[string]*build.State) Source {
	sorted := slices.SortedFunc(slices.Values(modules), func(a, b Source) int { return strings.Compare(a.ID, b.ID) })
	ids := setOf(sourceIDs(sorted))
	for _, s := range sorted {
		leaf := true
		for _, dep := range graph[s.ID].Dependencies {
			if _, ok := ids[dep]; ok {
				leaf = false
				break
			}
		}
		if leaf {
			return s
		}
	}
	return sorted[0]
}

// dedupeModules drops repeated module ids, keeping the first occurrence.
func dedupeModules(modules []Source) []Source {
	seen := make(map[string]bool, len(modules))
	var out []Source
	for _, s := range modules {
		if !seen[s.ID] {
			seen[s.ID] = true
			out = append(out, s)
		}
	}
	return out
}

func sourceIDs(sources []Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.ID
	}
	return out
}

func stateIDs(states []*build.State) []string {
	out := make([]string, len(states))
	for i, st := range states {
		out[i] = st.ID
	}
	return out
}

func union(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	maps.Copy(out, a)
	maps.Copy(out, b)
	return out
}

// withoutDunders drops the triggers of implicit module attributes from a
// trace line.
func withoutDunders(triggers []string) []string {
	return slices.DeleteFunc(slices.Clone(triggers), func(t string) bool {
		return strings.HasSuffix(t, "__>")
	})
}
