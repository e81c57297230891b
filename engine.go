package finegrain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/jward/finegrain/internal/build"
	"github.com/jward/finegrain/internal/deps"
	"github.com/jward/finegrain/internal/diag"
	"github.com/jward/finegrain/internal/nodes"
	"github.com/jward/finegrain/internal/reach"
)

// Engine keeps a checked program in memory and brings it up to date with
// changed modules, reprocessing only the targets a change can affect.
//
// Calls are serialized. Update runs to completion, or to a blocking
// error, before any other call proceeds.
type Engine struct {
	mu      sync.Mutex
	manager *build.Manager
	logger  *slog.Logger
	cache   Cache
	maxIter int

	// configuration collected by options
	plugins     []Plugin
	searchPaths []string
	workers     int

	built  bool
	closed bool
	broken error

	previousModules           map[string]string
	previousTargetsWithErrors map[string]struct{}
	previousMessages          []string
	// blockingError is the module whose blocking error ended the last
	// call. It is retried first by the next update.
	blockingError *Source
	// stale holds the modules still pending when a blocking error hit.
	stale []Source

	triggered      []string
	changedModules []Source
	updatedModules []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for update tracing. Fine-grained steps are
// logged at debug level. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithCache makes the initial build reuse, and record, per-module results.
// A cache that also has a Flush method is flushed by Close.
func WithCache(c Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithPlugins registers plugins consulted for every checked function.
func WithPlugins(plugins ...Plugin) Option {
	return func(e *Engine) { e.plugins = append(e.plugins, plugins...) }
}

// WithSearchPaths sets the directories imports are resolved against, in
// priority order. The default is the root of the file system.
func WithSearchPaths(paths ...string) Option {
	return func(e *Engine) { e.searchPaths = paths }
}

// WithWorkers bounds the number of files parsed concurrently while loading
// the import graph.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithMaxIterations overrides MaxIterations.
func WithMaxIterations(n int) Option {
	return func(e *Engine) { e.maxIter = n }
}

// New returns an Engine reading sources from fsys. Call Build before
// Update.
func New(fsys fs.FS, opts ...Option) *Engine {
	e := &Engine{maxIter: MaxIterations}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	bopts := []build.Option{build.WithLogger(e.logger), build.WithPlugins(e.plugins...)}
	if e.cache != nil {
		bopts = append(bopts, build.WithCache(e.cache))
	}
	if len(e.searchPaths) > 0 {
		bopts = append(bopts, build.WithSearchPaths(e.searchPaths...))
	}
	if e.workers > 0 {
		bopts = append(bopts, build.WithWorkers(e.workers))
	}
	e.manager = build.New(fsys, bopts...)
	e.previousTargetsWithErrors = make(map[string]struct{})
	return e
}

// Build runs the initial full build of sources and everything they
// import, and returns the diagnostics of the whole program.
//
// A blocking error is not returned as an error: its messages are the
// result, and the blocked module is retried by the next Update together
// with the modules the build did not get to.
func (e *Engine) Build(ctx context.Context, sources []Source) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	if e.built {
		return nil, errors.New("finegrain: build called twice")
	}

	ctx, span := startBuildSpan(ctx, len(sources))
	stale, err := e.manager.Build(ctx, sources)
	if ce, ok := asBlocker(err); ok {
		blocked := e.sourceOf(ce.Module, stale)
		e.blockingError = &blocked
		e.stale = slices.DeleteFunc(stale, func(s Source) bool { return s.ID == blocked.ID })
		e.previousMessages = slices.Clone(ce.Messages)
		recordBlocker(ctx, ce.Module)
		e.logger.Debug("build blocked", slog.String("module", ce.Module), slog.Int("pending", len(e.stale)))
	} else if err != nil {
		endSpan(span, err)
		return nil, fmt.Errorf("finegrain: build: %w", err)
	} else {
		e.previousMessages = e.manager.Errors.Messages()
	}
	endSpan(span, nil)

	e.built = true
	e.previousModules = e.manager.ModulePaths()
	e.previousTargetsWithErrors = setOf(e.manager.Errors.Targets())
	return slices.Clone(e.previousMessages), nil
}

// Messages returns the result of the last Build or Update.
func (e *Engine) Messages() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.previousMessages)
}

// Diagnostics returns every recorded diagnostic of the program.
func (e *Engine) Diagnostics() []Diagnostic {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manager.Errors.Infos()
}

// Blocked returns the module whose blocking error ended the last call.
func (e *Engine) Blocked() (Source, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.blockingError == nil {
		return Source{}, false
	}
	return *e.blockingError, true
}

// Triggered returns the triggers fired by the last Update, together with
// the targets that held errors before it.
func (e *Engine) Triggered() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.triggered)
}

// UpdatedModules returns the modules the last Update processed in full,
// in processing order.
func (e *Engine) UpdatedModules() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.updatedModules)
}

// ChangedModules returns the changed and removed modules passed to the
// last Update.
func (e *Engine) ChangedModules() []Source {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.changedModules)
}

// Deps renders the dependency map one trigger per line, "<trigger> -> a,
// b". With prefixes only the triggers starting with one of them are
// included.
func (e *Engine) Deps(prefixes ...string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	lines := e.manager.Deps.Lines()
	if len(prefixes) == 0 {
		return lines
	}
	return deps.Filter(lines, prefixes...)
}

// ModulePaths returns the path of every module in the import graph.
func (e *Engine) ModulePaths() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manager.ModulePaths()
}

// LoadAll loads the tree of every module whose result was taken from
// the cache.
func (e *Engine) LoadAll(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if err := e.manager.EnsureTreesLoaded(ctx, slices.Sorted(maps.Keys(e.manager.Graph))); err != nil {
		return fmt.Errorf("finegrain: load: %w", err)
	}
	return nil
}

// ModuleStats counts the objects owned by one loaded module tree.
type ModuleStats struct {
	Module  string
	Path    string
	Objects int
	// Kinds counts the objects by Go type, e.g. "*nodes.FuncDef".
	Kinds map[string]int
}

// Stats walks the tree of every loaded module and counts the objects it
// owns. Definitions of other modules are counted where referenced but not
// entered. Stub modules are skipped.
func (e *Engine) Stats() ([]ModuleStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	var out []ModuleStats
	for _, id := range slices.Sorted(maps.Keys(e.manager.Modules)) {
		if st, ok := e.manager.Graph[id]; !ok || strings.HasSuffix(st.Path, ".pyi") {
			continue
		}
		tree := e.manager.Modules[id]
		g := reach.Walk(tree, reach.StopAt(foreign(id)))
		out = append(out, ModuleStats{
			Module:  id,
			Path:    tree.Path,
			Objects: g.Len(),
			Kinds:   reach.CountByKind(g.Reachable()),
		})
	}
	return out, nil
}

// foreign reports objects that belong to a module other than id.
func foreign(id string) func(any) bool {
	prefix := id + "."
	return func(obj any) bool {
		switch n := obj.(type) {
		case *nodes.Module:
			return n.ID != id
		case nodes.SymbolNode:
			full := n.Fullname()
			return strings.Contains(full, ".") && full != id && !strings.HasPrefix(full, prefix)
		}
		return false
	}
}

// Close releases the engine. Pending cache writes are flushed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if f, ok := e.cache.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("finegrain: flush cache: %w", err)
		}
	}
	return nil
}

// sourceOf returns the source of module id, looked up in candidates, the
// graph and the module finder in that order.
func (e *Engine) sourceOf(id string, candidates []Source) Source {
	for _, s := range candidates {
		if s.ID == id {
			return s
		}
	}
	if st, ok := e.manager.Graph[id]; ok {
		return Source{ID: id, Path: st.Path}
	}
	if path, ok := e.previousModules[id]; ok {
		return Source{ID: id, Path: path}
	}
	path, _ := e.manager.Finder().Find(id)
	return Source{ID: id, Path: path}
}

func asBlocker(err error) (*diag.CompileError, bool) {
	var ce *diag.CompileError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

func setOf(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		out[item] = struct{}{}
	}
	return out
}
