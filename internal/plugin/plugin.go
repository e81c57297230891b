// Package plugin runs Risor scripts as checker plugins.
//
// A plugin script is evaluated once per checked function. It sees the
// function as the global map "function" and reports diagnostics with the
// "report" builtin:
//
//	if len(function["args"]) > 4 {
//	    report(function["line"], "too many parameters")
//	}
package plugin

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/finegrain/internal/checker"
)

// Extension is the file extension of plugin scripts.
const Extension = ".risor"

// Script is a checker plugin backed by Risor source.
type Script struct {
	name   string
	source string
	fsys   fs.FS
	logger *slog.Logger
}

// Compile-time check: *Script satisfies checker.Plugin.
var _ checker.Plugin = (*Script)(nil)

// Option configures a Script.
type Option func(*Script)

// WithFS lets the script import other scripts from fsys.
func WithFS(fsys fs.FS) Option {
	return func(s *Script) { s.fsys = fsys }
}

// WithLogger sets the logger behind the script's "log" global.
func WithLogger(l *slog.Logger) Option {
	return func(s *Script) { s.logger = l }
}

// New returns a plugin named name running source.
func New(name, source string, opts ...Option) *Script {
	s := &Script{name: name, source: source}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// Load reads every plugin script directly under dir of fsys, sorted by
// name. The plugin name is the file name without extension. Scripts can
// import the modules in dir/lib.
func Load(fsys fs.FS, dir string, opts ...Option) ([]*Script, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("plugin: reading %s: %w", dir, err)
	}
	lib, err := fs.Sub(fsys, path.Join(dir, "lib"))
	if err != nil {
		return nil, fmt.Errorf("plugin: %w", err)
	}
	var scripts []*Script
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		p := path.Join(dir, e.Name())
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("plugin: loading %s: %w", p, err)
		}
		name := strings.TrimSuffix(e.Name(), Extension)
		scripts = append(scripts, New(name, string(data), append([]Option{WithFS(lib)}, opts...)...))
	}
	return scripts, nil
}

// Name returns the plugin name.
func (s *Script) Name() string { return s.name }

// CheckFunction evaluates the script for fn and returns what it reported.
func (s *Script) CheckFunction(ctx context.Context, fn checker.Function) ([]checker.Report, error) {
	var (
		mu      sync.Mutex
		reports []checker.Report
	)
	globals := map[string]any{
		"function": functionObject(fn),
		"report": makeReportFn(fn.Line, func(r checker.Report) {
			mu.Lock()
			reports = append(reports, r)
			mu.Unlock()
		}),
		"log": mustProxy(&logObject{logger: s.logger.With(slog.String("plugin", s.name))}),
	}

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := s.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	if _, err := risor.Eval(ctx, s.source, opts...); err != nil {
		return nil, fmt.Errorf("plugin: script %s: %w", s.name, err)
	}
	return reports, nil
}

// buildImporter returns a Risor importer over the script's file system,
// or nil when it has none.
func (s *Script) buildImporter(globals map[string]any) importer.Importer {
	if s.fsys == nil {
		return nil
	}
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}
	slices.Sort(globalNames)
	return importer.NewFSImporter(importer.FSImporterOptions{
		GlobalNames: globalNames,
		SourceFS:    s.fsys,
		Extensions:  []string{Extension},
	})
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("plugin: proxy error: %v", err))
	}
	return p
}
