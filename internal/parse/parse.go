// Package parse builds syntax trees from Python source using tree-sitter.
package parse

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/jward/finegrain/internal/diag"
	"github.com/jward/finegrain/internal/nodes"
)

// Parse parses src as module id. A syntax error is returned as a
// *diag.CompileError naming the first offending line.
func Parse(ctx context.Context, id, path string, src []byte) (*nodes.Module, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		line := firstErrorLine(root)
		return nil, &diag.CompileError{
			Messages: []string{diag.Info{Path: path, Line: line, Severity: diag.SeverityError, Message: "invalid syntax"}.String()},
			Module:   id,
		}
	}

	c := &converter{
		src:       src,
		id:        id,
		isPackage: IsPackagePath(path),
	}
	// The module node keeps line 0 so it sorts before its definitions.
	mod := &nodes.Module{
		ID:        id,
		Path:      path,
		Names:     nodes.SymbolTable{},
		IsPackage: c.isPackage,
	}
	mod.Defs = c.statements(root)
	mod.Imports = c.imports
	return mod, nil
}

// IsPackagePath reports whether path names a package's __init__ file.
func IsPackagePath(path string) bool {
	return strings.HasSuffix(path, "/__init__.py") || path == "__init__.py"
}

func firstErrorLine(n *sitter.Node) int {
	if n.IsError() || n.IsMissing() {
		return int(n.StartPoint().Row) + 1
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.HasError() || child.IsMissing() {
			return firstErrorLine(child)
		}
	}
	return int(n.StartPoint().Row) + 1
}

// ResolveRelative turns a relative import in module id into an absolute
// module id. rel is the number of leading dots.
func ResolveRelative(id string, isPackage bool, rel int, name string) string {
	if rel == 0 {
		return name
	}
	parts := strings.Split(id, ".")
	if isPackage {
		rel--
	}
	if rel > len(parts) {
		rel = len(parts)
	}
	base := strings.Join(parts[:len(parts)-rel], ".")
	switch {
	case base == "":
		return name
	case name == "":
		return base
	default:
		return base + "." + name
	}
}
