// Package build owns the whole-program state: the import graph, the
// analyzed module trees, the dependency map and the diagnostics. It
// performs the initial full build; fine-grained updates mutate the same
// state through the exported fields.
package build

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"slices"
	"time"

	"github.com/jward/finegrain/internal/checker"
	"github.com/jward/finegrain/internal/deps"
	"github.com/jward/finegrain/internal/diag"
	"github.com/jward/finegrain/internal/nodes"
	"github.com/jward/finegrain/internal/semanal"
)

// Source names a module to build.
type Source struct {
	ID   string
	Path string
}

// State is a module in the import graph. A state whose tree is not in the
// manager's module table is unloaded: it was parsed but its analysis was
// taken from the cache, or it was never analyzed.
type State struct {
	ID           string
	Path         string
	Tree         *nodes.Module
	Hash         string
	ModTime      time.Time
	Dependencies []string
	Ancestors    []string
	// Fresh is set when the cache held valid results for the module.
	Fresh bool
}

// Manager holds the program being checked.
type Manager struct {
	// Modules holds the loaded (analyzed) trees by module id.
	Modules map[string]*nodes.Module
	// Graph holds every module known to the build.
	Graph    map[string]*State
	Errors   *diag.Errors
	Deps     *deps.Map
	Types    checker.TypeMap
	Analyzer *semanal.Analyzer
	Checker  *checker.Checker

	fsys    fs.FS
	finder  *Finder
	cache   Cache
	logger  *slog.Logger
	plugins []checker.Plugin
	workers int
	roots   []string
}

// Option configures a Manager.
type Option func(*Manager)

// WithCache enables the module cache.
func WithCache(c Cache) Option {
	return func(m *Manager) { m.cache = c }
}

// WithLogger sets the logger for build tracing.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithPlugins registers checker plugins.
func WithPlugins(plugins ...checker.Plugin) Option {
	return func(m *Manager) { m.plugins = append(m.plugins, plugins...) }
}

// WithSearchPaths sets the directories of fsys imports are resolved
// against, in priority order. The default is the root of fsys.
func WithSearchPaths(roots ...string) Option {
	return func(m *Manager) { m.roots = roots }
}

// WithWorkers bounds the number of files parsed concurrently.
func WithWorkers(n int) Option {
	return func(m *Manager) { m.workers = n }
}

// New returns a manager reading sources from fsys.
func New(fsys fs.FS, opts ...Option) *Manager {
	m := &Manager{
		Modules: make(map[string]*nodes.Module),
		Graph:   make(map[string]*State),
		Errors:  diag.NewErrors(),
		Deps:    deps.NewMap(),
		Types:   make(checker.TypeMap),
		fsys:    fsys,
		workers: 8,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if len(m.roots) == 0 {
		m.roots = []string{"."}
	}
	m.finder = NewFinder(fsys, m.roots...)
	m.Analyzer = semanal.New(m.Modules, m.Errors)
	m.Checker = checker.New(m.Modules, m.Errors, checker.WithPlugins(m.plugins...), checker.WithLogger(m.logger))
	return m
}

// Logger returns the manager's logger.
func (m *Manager) Logger() *slog.Logger { return m.logger }

// Finder returns the module finder.
func (m *Manager) Finder() *Finder { return m.finder }

// Cache returns the configured cache, or nil.
func (m *Manager) Cache() Cache { return m.cache }

// Exists reports whether path names a source file. Stub modules always
// exist.
func (m *Manager) Exists(id, path string) bool {
	if isStub(id) {
		return true
	}
	info, err := fs.Stat(m.fsys, path)
	return err == nil && !info.IsDir()
}

// Build loads and processes the stub modules and sources. A blocking
// error stops the build. The sources left unprocessed are removed from
// the graph again and returned with the error.
func (m *Manager) Build(ctx context.Context, sources []Source) ([]Source, error) {
	stubs := make([]Source, 0, len(semanal.StubModules))
	for _, id := range semanal.StubModules {
		stubs = append(stubs, Source{ID: id, Path: stubPath(id)})
	}
	if _, err := m.LoadGraph(ctx, stubs); err != nil {
		return sources, fmt.Errorf("load stubs: %w", err)
	}
	if _, err := m.ProcessGraph(ctx); err != nil {
		return sources, fmt.Errorf("process stubs: %w", err)
	}
	added, err := m.LoadGraph(ctx, sources)
	if err != nil {
		for _, st := range added {
			delete(m.Graph, st.ID)
		}
		return sources, err
	}
	return m.ProcessGraph(ctx)
}

// ModulePaths returns the path of every module in the graph.
func (m *Manager) ModulePaths() map[string]string {
	out := make(map[string]string, len(m.Graph))
	for id, st := range m.Graph {
		out[id] = st.Path
	}
	return out
}

// TypeCheck checks one loaded module and records its dependencies.
func (m *Manager) TypeCheck(ctx context.Context, mod *nodes.Module) {
	m.Checker.CheckFile(ctx, mod, m.Types)
	m.Deps.Merge(deps.OfModule(mod, m.Types))
}

func isStub(id string) bool {
	return slices.Contains(semanal.StubModules, id)
}

func stubPath(id string) string {
	return id + ".pyi"
}

func (m *Manager) read(id, path string) ([]byte, time.Time, error) {
	if isStub(id) {
		data, err := fs.ReadFile(semanal.Stubs(), id+".py")
		return data, time.Time{}, err
	}
	info, err := fs.Stat(m.fsys, path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("stat %s: %w", path, err)
	}
	data, err := fs.ReadFile(m.fsys, path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read %s: %w", path, err)
	}
	return data, info.ModTime(), nil
}
