package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jward/finegrain"
	"github.com/jward/finegrain/internal/build"
	"github.com/jward/finegrain/internal/discover"
	"github.com/jward/finegrain/internal/plugin"
	"github.com/jward/finegrain/internal/store"
)

// workspace is an engine over one directory, with its cache and plugins.
type workspace struct {
	dir    string
	cfg    config
	fsys   fs.FS
	finder *build.Finder
	engine *finegrain.Engine
	store  *store.Store
}

// openWorkspace sets up an engine over dir. The engine is not built yet.
func openWorkspace(dir string, cfg config, stderr io.Writer) (*workspace, error) {
	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	w := &workspace{dir: dir, cfg: cfg, fsys: os.DirFS(dir)}
	w.finder = build.NewFinder(w.fsys, cfg.SearchPaths...)

	opts := []finegrain.Option{
		finegrain.WithLogger(logger),
		finegrain.WithSearchPaths(cfg.SearchPaths...),
	}
	if cfg.MaxIterations > 0 {
		opts = append(opts, finegrain.WithMaxIterations(cfg.MaxIterations))
	}
	if cfg.Workers > 0 {
		opts = append(opts, finegrain.WithWorkers(cfg.Workers))
	}

	if cfg.Plugins != "" {
		scripts, err := plugin.Load(os.DirFS(cfg.Plugins), ".", plugin.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		plugins := make([]finegrain.Plugin, len(scripts))
		for i, s := range scripts {
			plugins[i] = s
		}
		opts = append(opts, finegrain.WithPlugins(plugins...))
		logger.Debug("plugins loaded", slog.Int("count", len(plugins)))
	}

	if cfg.Cache != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Cache), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", filepath.Dir(cfg.Cache), err)
		}
		s, err := store.NewStore(cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("opening cache: %w", err)
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrating cache: %w", err)
		}
		w.store = s
		opts = append(opts, finegrain.WithCache(store.NewBatchedStore(s)))
	}

	w.engine = finegrain.New(w.fsys, opts...)
	return w, nil
}

// sources returns every module under the directory.
func (w *workspace) sources() ([]finegrain.Source, error) {
	return discover.Sources(w.fsys, w.finder, ".", w.cfg.Exclude)
}

// source maps a file path, absolute or relative to the directory, to its
// module.
func (w *workspace) source(p string) (finegrain.Source, error) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(w.dir, p)
		if err != nil {
			return finegrain.Source{}, fmt.Errorf("resolving %s: %w", p, err)
		}
		p = rel
	}
	p = filepath.ToSlash(filepath.Clean(p))
	id, ok := w.finder.ModuleID(p)
	if !ok {
		return finegrain.Source{}, fmt.Errorf("%s is not a module under the search paths", p)
	}
	return finegrain.Source{ID: id, Path: p}, nil
}

// Close flushes the cache and releases the workspace.
func (w *workspace) Close() error {
	err := w.engine.Close()
	if w.store != nil {
		err = errors.Join(err, w.store.Close())
	}
	return err
}
