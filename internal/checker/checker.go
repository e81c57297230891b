// Package checker type checks semantically analyzed modules.
//
// Checking works per target, mirroring semantic analysis: the module top
// level (class bodies included) or a single function. Whole modules are
// checked top level first and then function by function in source order,
// so checking a module in one go and rechecking its targets one at a time
// produce the same diagnostics.
package checker

import (
	"context"
	"io"
	"log/slog"

	"github.com/jward/finegrain/internal/diag"
	"github.com/jward/finegrain/internal/nodes"
)

// TypeMap records the inferred type of every checked expression.
type TypeMap map[nodes.Expression]nodes.Type

// Checker type checks modules sharing one module table.
type Checker struct {
	modules map[string]*nodes.Module
	errs    *diag.Errors
	plugins []Plugin
	logger  *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithPlugins adds plugins consulted for every checked function.
func WithPlugins(plugins ...Plugin) Option {
	return func(c *Checker) { c.plugins = append(c.plugins, plugins...) }
}

// WithLogger sets the logger for plugin failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) { c.logger = l }
}

// New returns a checker over modules reporting into errs.
func New(modules map[string]*nodes.Module, errs *diag.Errors, opts ...Option) *Checker {
	c := &Checker{
		modules: modules,
		errs:    errs,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckFile checks every target of mod and fills types.
func (c *Checker) CheckFile(ctx context.Context, mod *nodes.Module, types TypeMap) {
	c.CheckTarget(ctx, mod, types, mod)
	for _, fn := range nodes.Functions(mod) {
		c.CheckTarget(ctx, mod, types, fn)
	}
}

// CheckTarget checks one target of mod: the module itself (top level only)
// or a function.
func (c *Checker) CheckTarget(ctx context.Context, mod *nodes.Module, types TypeMap, node nodes.Node) {
	c.errs.SetFile(mod.Path, mod.ID)
	s := &state{c: c, mod: mod, types: types}
	switch n := node.(type) {
	case *nodes.Module:
		s.block(n.Defs)
	case *nodes.FuncDef:
		defer c.errs.EnterTarget(n.FullName)()
		s.function(n)
		c.runPlugins(ctx, mod, n, types)
	}
}

// state is the traversal state of one target.
type state struct {
	c     *Checker
	mod   *nodes.Module
	types TypeMap
	// fn is the innermost function being checked; nil at top level.
	fn *nodes.FuncDef
}

func (s *state) fail(line int, format string, args ...any) {
	s.c.errs.Reportf(line, format, args...)
}

func (s *state) builtin(name string) nodes.Type {
	b, ok := s.c.modules["builtins"]
	if !ok {
		return &nodes.AnyType{}
	}
	sym, ok := b.Names[name]
	if !ok {
		return &nodes.AnyType{}
	}
	info, ok := sym.Node.(*nodes.TypeInfo)
	if !ok {
		return &nodes.AnyType{}
	}
	return &nodes.Instance{Info: info}
}
