package semanal

import (
	"strings"

	"github.com/jward/finegrain/internal/nodes"
)

// typ analyzes an annotation expression. Anything outside the supported
// subset of type syntax becomes Any.
func (v *visitor) typ(e nodes.Expression) nodes.Type {
	switch e := e.(type) {
	case *nodes.NoneExpr:
		return &nodes.NoneType{}
	case *nodes.NameExpr, *nodes.MemberExpr:
		v.expr(e)
		node := boundNode(e)
		if node == nil {
			if name, ok := dottedName(e); ok && strings.Contains(name, ".") {
				v.fail(e.Line(), "Name '%s' is not defined", name)
			}
			return &nodes.AnyType{}
		}
		return v.typeOfNode(node, e.Line())
	case *nodes.StrExpr:
		return v.forwardRef(e)
	default:
		v.expr(e)
		return &nodes.AnyType{}
	}
}

func (v *visitor) typeOfNode(node nodes.SymbolNode, line int) nodes.Type {
	switch n := node.(type) {
	case *nodes.TypeInfo:
		if n.FullName == "typing.Any" {
			return &nodes.AnyType{}
		}
		return &nodes.Instance{Info: n}
	case *nodes.TypeAlias:
		return n.Target
	case *nodes.TypeVarExpr:
		return &nodes.TypeVarType{Name: n.DefName, Fullname: n.FullName}
	default:
		v.fail(line, "Invalid type \"%s\"", node.Fullname())
		return &nodes.AnyType{}
	}
}

// forwardRef resolves a quoted annotation such as "pkg.C" without binding
// any expression.
func (v *visitor) forwardRef(e *nodes.StrExpr) nodes.Type {
	parts := strings.Split(strings.TrimSpace(e.Value), ".")
	sym := v.sc.lookup(parts[0], v.a.builtins())
	for _, part := range parts[1:] {
		if sym == nil {
			break
		}
		switch n := sym.Node.(type) {
		case *nodes.Module:
			sym = n.Names[part]
			if sym == nil {
				if sub, ok := v.a.modules[n.ID+"."+part]; ok {
					sym = &nodes.SymbolTableNode{Kind: nodes.ModuleRef, Node: sub}
				}
			}
		case *nodes.TypeInfo:
			sym = n.Names[part]
		default:
			sym = nil
		}
	}
	if sym == nil || sym.Node == nil {
		v.fail(e.Line(), "Name '%s' is not defined", e.Value)
		return &nodes.AnyType{}
	}
	return v.typeOfNode(sym.Node, e.Line())
}
