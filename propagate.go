package finegrain

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"

	"github.com/jward/finegrain/internal/astdiff"
	"github.com/jward/finegrain/internal/astmerge"
	"github.com/jward/finegrain/internal/deps"
	"github.com/jward/finegrain/internal/strip"
	"github.com/jward/finegrain/internal/target"
)

// targetSet holds the deferred nodes to reprocess, per module.
type targetSet map[string]map[target.DeferredNode]struct{}

func (t targetSet) add(module string, nodes ...target.DeferredNode) {
	set, ok := t[module]
	if !ok {
		set = make(map[target.DeferredNode]struct{})
		t[module] = set
	}
	for _, n := range nodes {
		set[n] = struct{}{}
	}
}

// propagate rechecks, transitively, the targets that depend on triggered
// and the targets that held errors, until no more triggers fire. Modules
// in upToDate were just processed in full and are skipped in the first
// round.
//
// It returns the modules that hold affected targets but are not loaded;
// they must be processed in full. A blocking error stops propagation and
// is returned as a *diag.CompileError.
func (e *Engine) propagate(ctx context.Context, logger *slog.Logger, triggered, upToDate, withErrors map[string]struct{}) ([]Source, error) {
	var remaining []Source
	iterations := 0
	defer func() { recordIterations(ctx, iterations) }()

	for len(triggered) > 0 || len(withErrors) > 0 {
		iterations++
		if iterations > e.maxIter {
			return remaining, internalErrorf("propagate", "max number of iterations (%d) reached (endless loop?)", e.maxIter)
		}

		todo, unloaded := e.findTargetsRecursive(logger, triggered, upToDate)
		for _, t := range slices.Sorted(maps.Keys(withErrors)) {
			id, ok := target.ModulePrefix(e.manager.Graph, t)
			if !ok {
				continue
			}
			if _, done := upToDate[id]; done {
				continue
			}
			if _, loaded := e.manager.Modules[id]; !loaded {
				unloaded[id] = struct{}{}
				continue
			}
			logger.Debug("process target with error", slog.String("target", t))
			if found := e.lookupTarget(logger, t); len(found) > 0 {
				todo.add(id, found...)
			}
		}
		for _, id := range slices.Sorted(maps.Keys(unloaded)) {
			remaining = append(remaining, Source{ID: id, Path: e.manager.Graph[id].Path})
		}

		triggered = make(map[string]struct{})
		for _, id := range slices.Sorted(maps.Keys(todo)) {
			fired, err := e.reprocessNodes(ctx, logger, id, todo[id])
			if err != nil {
				return remaining, err
			}
			maps.Copy(triggered, fired)
		}
		recordTriggers(ctx, len(triggered))
		upToDate = nil
		withErrors = nil
		if len(triggered) > 0 {
			logger.Debug("triggered", slog.Any("triggers", slices.Sorted(maps.Keys(triggered))))
		}
	}
	return remaining, nil
}

// findTargetsRecursive expands triggers through the dependency map until
// only targets remain, and resolves them. Targets in modules that are not
// loaded are not resolved; their modules are returned instead.
func (e *Engine) findTargetsRecursive(logger *slog.Logger, triggers, upToDate map[string]struct{}) (targetSet, map[string]struct{}) {
	result := make(targetSet)
	unloaded := make(map[string]struct{})
	processed := make(map[string]struct{})
	worklist := maps.Clone(triggers)

	for len(worklist) > 0 {
		maps.Copy(processed, worklist)
		current := worklist
		worklist = make(map[string]struct{})
		for _, t := range slices.Sorted(maps.Keys(current)) {
			if deps.IsTrigger(t) {
				for _, next := range e.manager.Deps.Targets(t) {
					if _, seen := processed[next]; !seen {
						worklist[next] = struct{}{}
					}
				}
				continue
			}
			id, ok := target.ModulePrefix(e.manager.Graph, t)
			if !ok {
				continue
			}
			if _, done := upToDate[id]; done {
				continue
			}
			if _, loaded := e.manager.Modules[id]; !loaded {
				unloaded[id] = struct{}{}
				continue
			}
			logger.Debug("process", slog.String("target", t))
			result.add(id, e.lookupTarget(logger, t)...)
		}
	}
	return result, unloaded
}

// lookupTarget resolves a target name. A name that no longer resolves is
// a stale dependency and yields nothing.
func (e *Engine) lookupTarget(logger *slog.Logger, name string) []target.DeferredNode {
	found, err := target.Resolve(e.manager.Modules, name)
	if errors.Is(err, target.ErrNotFound) {
		logger.Debug("can't find matching target (stale dependency?)", slog.String("target", name))
		return nil
	}
	return found
}

// reprocessNodes strips and analyzes again a set of targets of one
// module, then type checks them and records their dependencies. It
// returns the triggers fired by changes to the module's symbol tables.
func (e *Engine) reprocessNodes(ctx context.Context, logger *slog.Logger, id string, nodeset map[target.DeferredNode]struct{}) (map[string]struct{}, error) {
	m := e.manager
	if _, ok := m.Graph[id]; !ok {
		logger.Debug("module not in graph (blocking errors or deleted?)", slog.String("module", id))
		return nil, nil
	}
	file, ok := m.Modules[id]
	if !ok {
		return nil, internalErrorf("reprocess", "module %s has targets but is not loaded", id)
	}

	oldTables := astmerge.Tables(id, file.Names)
	oldSnapshot := astdiff.Of(id, file.Names)

	nodes := slices.SortedFunc(maps.Keys(nodeset), func(a, b target.DeferredNode) int {
		return cmp.Or(cmp.Compare(a.Node.Line(), b.Node.Line()), cmp.Compare(a.Name(), b.Name()))
	})
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name())
	}
	recordTargets(ctx, id, len(nodes))
	m.Errors.ClearErrorsInTargets(file.Path, names)

	for _, n := range nodes {
		strip.Target(n.Node)
	}
	for _, n := range nodes {
		m.Analyzer.RefreshPartial(file, n.Node, n.ActiveClass)
	}
	for _, n := range nodes {
		if err := m.Analyzer.RefreshPass3(file, n.Node); err != nil {
			return nil, err
		}
	}

	newTables := astmerge.Tables(id, file.Names)
	for _, name := range slices.Sorted(maps.Keys(oldTables)) {
		if table, ok := newTables[name]; ok {
			astmerge.Merge(file, oldTables[name], file, table)
		}
	}

	for _, n := range nodes {
		m.Checker.CheckTarget(ctx, file, m.Types, n.Node)
	}

	changed := astdiff.Compare(id, oldSnapshot, astdiff.Of(id, file.Names))
	fired := make(map[string]struct{}, len(changed))
	for name := range changed {
		fired[deps.MakeTrigger(name)] = struct{}{}
	}

	for _, n := range nodes {
		m.Deps.Merge(deps.OfTarget(file, n.Node, m.Types))
	}
	return fired, nil
}
