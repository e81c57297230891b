// Package semanal binds names to definitions in three passes.
//
// Pass 1 creates the module symbol table and the class TypeInfos. Pass 2
// binds every name reference, analyzes annotations and function
// signatures, and processes imports. Pass 3 computes method resolution
// orders. Pass 2 and pass 3 can be rerun on a single target (the module
// top level or one function) after the target has been stripped.
package semanal

import (
	"strings"

	"github.com/jward/finegrain/internal/diag"
	"github.com/jward/finegrain/internal/nodes"
)

// Analyzer runs semantic analysis over modules that share one module table.
type Analyzer struct {
	modules map[string]*nodes.Module
	errs    *diag.Errors
}

// New returns an analyzer resolving imports against modules. The map is
// shared with the caller and read on every lookup.
func New(modules map[string]*nodes.Module, errs *diag.Errors) *Analyzer {
	return &Analyzer{modules: modules, errs: errs}
}

func (a *Analyzer) builtins() *nodes.Module {
	return a.modules["builtins"]
}

// Pass1 builds the symbol table of mod: module globals, classes with their
// member tables, and the implicit module attributes.
func (a *Analyzer) Pass1(mod *nodes.Module) {
	if mod.Names == nil {
		mod.Names = nodes.SymbolTable{}
	}
	for _, name := range nodes.ImplicitModuleAttrs() {
		mod.Names[name] = &nodes.SymbolTableNode{
			Kind:         nodes.GDEF,
			Node:         &nodes.Var{DefName: name, FullName: mod.ID + "." + name},
			ModulePublic: true,
		}
	}
	definePass1(mod.Defs, mod.Names, mod.ID, nil, mod.ID)
}

// VisitFile runs pass 2 over a whole module: the top level first, then
// every function and method in source order. Analyzing a module this way
// gives the same result as refreshing its targets one at a time.
func (a *Analyzer) VisitFile(mod *nodes.Module) {
	a.RefreshPartial(mod, mod, nil)
	for _, fn := range nodes.Functions(mod) {
		a.RefreshPartial(mod, fn, fn.Info)
	}
}

// RefreshPartial runs pass 2 on one target of mod: the module itself (its
// top level without function bodies) or a function. active is the class
// a method belongs to.
func (a *Analyzer) RefreshPartial(mod *nodes.Module, node nodes.Node, active *nodes.TypeInfo) {
	v, leave := a.fileContext(mod, active)
	defer leave()

	switch n := node.(type) {
	case *nodes.Module:
		v.topLevel()
	case *nodes.FuncDef:
		defer a.errs.EnterTarget(n.FullName)()
		v.function(n)
	}
}

// fileContext prepares a traversal of mod with the active class entered.
// The returned function leaves the class again.
func (a *Analyzer) fileContext(mod *nodes.Module, active *nodes.TypeInfo) (*visitor, func()) {
	a.errs.SetFile(mod.Path, mod.ID)
	v := &visitor{a: a, mod: mod, sc: newScope(mod)}
	if active == nil {
		return v, func() {}
	}
	return v, v.sc.push(&frame{kind: classFrame, info: active})
}

// LinkSubmodules makes the module id reachable as an attribute of its
// parent package, and its loaded direct submodules reachable from it.
// Existing entries are left alone.
func LinkSubmodules(modules map[string]*nodes.Module, id string) {
	mod, ok := modules[id]
	if !ok {
		return
	}
	if i := strings.LastIndex(id, "."); i >= 0 {
		link(modules[id[:i]], id[i+1:], mod)
	}
	prefix := id + "."
	for childID, child := range modules {
		rest, ok := strings.CutPrefix(childID, prefix)
		if !ok || strings.Contains(rest, ".") {
			continue
		}
		link(mod, rest, child)
	}
}

func link(parent *nodes.Module, name string, child *nodes.Module) {
	if parent == nil {
		return
	}
	if _, ok := parent.Names[name]; ok {
		return
	}
	parent.Names[name] = &nodes.SymbolTableNode{Kind: nodes.ModuleRef, Node: child, ModulePublic: true}
}
