// Package astmerge merges a freshly analyzed tree into the tree it
// replaces so that definitions keep their identity.
//
// Other modules hold pointers to the definitions of a module (through
// import bindings, resolved names and types). When a module is parsed and
// analyzed again its definitions are new objects. Merge copies the
// contents of each new definition into the old object that matches it by
// name, kind and full name, then rewrites every reference inside the
// merged module from the new object to the old one. Definitions without a
// counterpart keep their new identity; references other modules hold to
// removed definitions go stale and are caught by the triggers fired for
// their names.
package astmerge

import (
	"strings"

	"github.com/jward/finegrain/internal/nodes"
)

// Merge merges newRoot into oldRoot. newTable is matched against oldTable;
// for a module update these are the two modules' symbol tables. After the
// call oldRoot holds the contents of newRoot and newRoot must no longer be
// used. When oldRoot and newRoot are the same module only the definitions
// of the tables are merged: this preserves identities of definitions that
// re-analysis of a single target recreated.
func Merge(oldRoot *nodes.Module, oldTable nodes.SymbolTable, newRoot *nodes.Module, newTable nodes.SymbolTable) {
	repl := make(map[any]any)
	replacements(repl, oldRoot.ID, oldTable, newTable)
	for n, o := range repl {
		replaceState(o, n)
	}
	if oldRoot != newRoot {
		*oldRoot = *newRoot
	}
	r := &fixer{repl: repl, prefix: oldRoot.ID + ".", seen: make(map[any]bool)}
	r.module(oldRoot)
}

// Tables returns copies of table and of the tables of every class defined
// in it, keyed by full name. The copies are taken before re-analysis of a
// target so they can be merged with the tables re-analysis produced.
func Tables(prefix string, table nodes.SymbolTable) map[string]nodes.SymbolTable {
	out := make(map[string]nodes.SymbolTable)
	tables(out, prefix, table)
	return out
}

func tables(out map[string]nodes.SymbolTable, prefix string, table nodes.SymbolTable) {
	c := make(nodes.SymbolTable, len(table))
	for name, sym := range table {
		e := *sym
		c[name] = &e
		if info, ok := sym.Node.(*nodes.TypeInfo); ok && info.FullName == prefix+"."+name {
			tables(out, info.FullName, info.Names)
		}
	}
	out[prefix] = c
}

// replacements maps each new definition of newTable to the old definition
// it replaces. Only definitions owned by the module qualify, so foreign
// objects are never modified.
func replacements(repl map[any]any, prefix string, oldTable, newTable nodes.SymbolTable) {
	for name, o := range oldTable {
		n, ok := newTable[name]
		if !ok || o.Node == nil || n.Node == nil || o.Node == n.Node {
			continue
		}
		if o.Kind != nodes.MDEF && prefixOf(o.Node.Fullname()) != prefix {
			continue
		}
		if !sameDefinition(o, n) {
			continue
		}
		repl[n.Node] = o.Node
		switch oldNode := o.Node.(type) {
		case *nodes.TypeInfo:
			replacements(repl, prefix, oldNode.Names, n.Node.(*nodes.TypeInfo).Names)
		case *nodes.Decorator:
			if newFn := n.Node.(*nodes.Decorator).Func; newFn != oldNode.Func {
				repl[newFn] = oldNode.Func
			}
		}
	}
}

func sameDefinition(o, n *nodes.SymbolTableNode) bool {
	if o.Kind != n.Kind || o.Node.Fullname() != n.Node.Fullname() {
		return false
	}
	if _, ok := o.Node.(*nodes.Module); ok {
		return false
	}
	return o.EntryKind() == n.EntryKind() && sameType(o.Node, n.Node)
}

// sameType is stricter than EntryKind: a FuncDef never replaces a
// Decorator.
func sameType(a, b nodes.SymbolNode) bool {
	switch a.(type) {
	case *nodes.FuncDef:
		_, ok := b.(*nodes.FuncDef)
		return ok
	case *nodes.Decorator:
		_, ok := b.(*nodes.Decorator)
		return ok
	}
	return true
}

func replaceState(old, new any) {
	switch o := old.(type) {
	case *nodes.FuncDef:
		*o = *new.(*nodes.FuncDef)
	case *nodes.Decorator:
		*o = *new.(*nodes.Decorator)
	case *nodes.TypeInfo:
		*o = *new.(*nodes.TypeInfo)
	case *nodes.Var:
		*o = *new.(*nodes.Var)
	case *nodes.TypeAlias:
		*o = *new.(*nodes.TypeAlias)
	case *nodes.TypeVarExpr:
		*o = *new.(*nodes.TypeVarExpr)
	}
}

func prefixOf(fullname string) string {
	if i := strings.LastIndexByte(fullname, '.'); i >= 0 {
		return fullname[:i]
	}
	return ""
}
