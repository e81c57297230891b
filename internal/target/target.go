// Package target resolves the full names recorded in the dependency map to
// the definitions that must be reprocessed.
//
// A target is a module top level (named by the module id) or a function or
// method (named by its full name). A class name is also accepted: it
// stands for the top level that contains the class body together with each
// of its methods.
package target

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jward/finegrain/internal/nodes"
)

// ErrNotFound is returned for a target that no longer names a definition.
// The dependency map only ever grows, so this is expected and recoverable.
var ErrNotFound = errors.New("target not found")

// DeferredNode is a unit of reprocessing: a module top level or a function,
// with the class a method is defined in.
type DeferredNode struct {
	Node        nodes.Node
	ActiveClass *nodes.TypeInfo
}

// Name returns the target name of the node.
func (d DeferredNode) Name() string {
	return FromNode(d.Node)
}

// FromNode returns the target name of a module or function.
func FromNode(n nodes.Node) string {
	switch n := n.(type) {
	case *nodes.Module:
		return n.ID
	case *nodes.FuncDef:
		return n.FullName
	case *nodes.Decorator:
		return n.Func.FullName
	}
	return ""
}

// SplitTarget splits target into the longest module id known to modules
// and the dotted rest. ok is false if no prefix of target is a module.
func SplitTarget[M any](modules map[string]M, target string) (module, rest string, ok bool) {
	id := target
	for {
		if _, found := modules[id]; found {
			return id, strings.TrimPrefix(strings.TrimPrefix(target, id), "."), true
		}
		i := strings.LastIndexByte(id, '.')
		if i < 0 {
			return "", "", false
		}
		id = id[:i]
	}
}

// ModulePrefix returns the id of the module that owns target.
func ModulePrefix[M any](modules map[string]M, target string) (string, bool) {
	id, _, ok := SplitTarget(modules, target)
	return id, ok
}

// Resolve returns the nodes to reprocess for target. A stale target
// yields an error wrapping ErrNotFound.
func Resolve(modules map[string]*nodes.Module, target string) ([]DeferredNode, error) {
	id, rest, ok := SplitTarget(modules, target)
	if !ok {
		return nil, notFound(target)
	}
	mod := modules[id]
	if rest == "" {
		return []DeferredNode{{Node: mod}}, nil
	}

	var node nodes.SymbolNode = mod
	var active *nodes.TypeInfo
	for _, c := range strings.Split(rest, ".") {
		var table nodes.SymbolTable
		switch n := node.(type) {
		case *nodes.Module:
			table = n.Names
		case *nodes.TypeInfo:
			active = n
			table = n.Names
		default:
			return nil, notFound(target)
		}
		sym, ok := table[c]
		if !ok || sym.Node == nil {
			return nil, notFound(target)
		}
		node = sym.Node
	}
	if node.Fullname() != target {
		// Rebound to an unrelated definition since the edge was recorded.
		return nil, notFound(target)
	}

	switch n := node.(type) {
	case *nodes.TypeInfo:
		// Class bodies are processed as part of the enclosing module top
		// level.
		result := []DeferredNode{{Node: mod}}
		for _, name := range n.Names.Keys() {
			switch n.Names[name].Node.(type) {
			case *nodes.FuncDef, *nodes.Decorator:
				methods, err := Resolve(modules, target+"."+name)
				if err == nil {
					result = append(result, methods...)
				}
			}
		}
		return result, nil
	case *nodes.Decorator:
		return []DeferredNode{{Node: n.Func, ActiveClass: active}}, nil
	case *nodes.FuncDef:
		return []DeferredNode{{Node: n, ActiveClass: active}}, nil
	case *nodes.Module:
		return []DeferredNode{{Node: n}}, nil
	}
	// Variables and aliases are not targets of their own.
	return nil, notFound(target)
}

func notFound(target string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, target)
}
