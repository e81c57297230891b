package deps

import (
	"strings"

	"github.com/jward/finegrain/internal/nodes"
)

// OfModule returns the dependencies of every target of mod: the top level
// and each function and method.
func OfModule(mod *nodes.Module, types map[nodes.Expression]nodes.Type) Edges {
	edges := make(Edges)
	collect(edges, mod, mod, types)
	for _, fn := range nodes.Functions(mod) {
		collect(edges, mod, fn, types)
	}
	return edges
}

// OfTarget returns the dependencies of one target of mod.
func OfTarget(mod *nodes.Module, node nodes.Node, types map[nodes.Expression]nodes.Type) Edges {
	edges := make(Edges)
	collect(edges, mod, node, types)
	return edges
}

func collect(edges Edges, mod *nodes.Module, node nodes.Node, types map[nodes.Expression]nodes.Type) {
	v := &visitor{mod: mod, types: types, edges: edges}
	switch n := node.(type) {
	case *nodes.Module:
		v.target = n.ID
		v.block(n.Defs)
	case *nodes.FuncDef:
		v.target = n.FullName
		v.function(n)
	}
}

type visitor struct {
	mod    *nodes.Module
	types  map[nodes.Expression]nodes.Type
	edges  Edges
	target string
	depth  int // function nesting
}

// ignored names never change during a session.
func ignored(name string) bool {
	return name == "" || name == "builtins" || strings.HasPrefix(name, "builtins.")
}

func (v *visitor) add(name string) {
	if !ignored(name) {
		v.edges.Add(MakeTrigger(name), v.target)
	}
}

func (v *visitor) addType(t nodes.Type) {
	nodes.WalkType(t, func(t nodes.Type) {
		if inst, ok := t.(*nodes.Instance); ok {
			v.add(inst.Info.FullName)
		}
	})
}

func (v *visitor) block(stmts []nodes.Statement) {
	for _, s := range stmts {
		v.stmt(s)
	}
}

func (v *visitor) stmt(s nodes.Statement) {
	switch s := s.(type) {
	case *nodes.FuncDef:
		if v.depth > 0 {
			v.function(s)
		}
	case *nodes.Decorator:
		for _, d := range s.Decorators {
			v.expr(d)
		}
		if v.depth > 0 {
			v.function(s.Func)
		}
	case *nodes.ClassDef:
		v.class(s)
	case *nodes.AssignmentStmt:
		v.expr(s.Lvalue)
		if s.Rvalue != nil {
			v.expr(s.Rvalue)
		}
		v.addType(s.Type)
	case *nodes.ExpressionStmt:
		v.expr(s.Expr)
	case *nodes.ReturnStmt:
		if s.Expr != nil {
			v.expr(s.Expr)
		}
	case *nodes.IfStmt:
		for i, c := range s.Conds {
			v.expr(c)
			v.block(s.Bodies[i].Body)
		}
		if s.Else != nil {
			v.block(s.Else.Body)
		}
	case *nodes.WhileStmt:
		v.expr(s.Cond)
		v.block(s.Body.Body)
		if s.Else != nil {
			v.block(s.Else.Body)
		}
	case *nodes.ForStmt:
		v.expr(s.Index)
		v.expr(s.Iter)
		v.block(s.Body.Body)
		if s.Else != nil {
			v.block(s.Else.Body)
		}
	case *nodes.Block:
		v.block(s.Body)
	case *nodes.Import:
		for _, item := range s.IDs {
			parts := strings.Split(item.ID, ".")
			for i := range parts {
				v.add(strings.Join(parts[:i+1], "."))
			}
		}
	case *nodes.ImportFrom:
		v.add(s.ID)
		for _, n := range s.Names {
			v.add(s.ID + "." + n.Name)
		}
	case *nodes.ImportAll:
		v.add(s.ID)
		if !ignored(s.ID) {
			v.edges.Add(MakeTrigger(s.ID+WildcardTag), v.target)
		}
	}
}

// class records the dependencies of a class body. At module level the
// body is its own target; a change to a base class or to any member of an
// ancestor fires the corresponding trigger of this class too.
func (v *visitor) class(c *nodes.ClassDef) {
	info := c.Info
	if info == nil {
		return
	}
	if v.depth == 0 {
		prev := v.target
		v.target = info.FullName
		defer func() { v.target = prev }()
	}
	for _, b := range c.BaseExprs {
		v.expr(b)
	}
	own := MakeTrigger(info.FullName)
	for _, base := range info.Bases {
		if ignored(base.Info.FullName) {
			continue
		}
		v.add(base.Info.FullName)
		v.edges.Add(MakeTrigger(base.Info.FullName), own)
	}
	for _, base := range info.MRO {
		if base == info || ignored(base.FullName) {
			continue
		}
		for name := range base.Names {
			v.edges.Add(MakeTrigger(base.FullName+"."+name), MakeTrigger(info.FullName+"."+name))
		}
	}
	v.block(c.Defs.Body)
}

func (v *visitor) function(fn *nodes.FuncDef) {
	if fn.Type != nil {
		v.addType(fn.Type)
	}
	for _, arg := range fn.Args {
		if arg.Default != nil {
			v.expr(arg.Default)
		}
	}
	v.depth++
	defer func() { v.depth-- }()
	v.block(fn.Body.Body)
}

func (v *visitor) expr(e nodes.Expression) {
	switch e := e.(type) {
	case *nodes.NameExpr:
		if e.Node == nil || e.Kind == nodes.LDEF {
			return
		}
		v.add(e.Node.Fullname())
		if info, ok := e.Node.(*nodes.TypeInfo); ok {
			v.add(info.FullName + ".__init__")
		}
	case *nodes.MemberExpr:
		v.expr(e.Expr)
		v.member(e)
	case *nodes.CallExpr:
		v.expr(e.Callee)
		for _, a := range e.Args {
			v.expr(a)
		}
	case *nodes.OpExpr:
		v.expr(e.Left)
		v.expr(e.Right)
		if inst, ok := v.types[e.Left].(*nodes.Instance); ok {
			if method, ok := operatorMethods[e.Op]; ok {
				v.add(inst.Info.FullName + "." + method)
			}
		}
	case *nodes.OpaqueExpr:
		for _, c := range e.Children {
			v.expr(c)
		}
	}
}

var operatorMethods = map[string]string{
	"+": "__add__", "-": "__sub__", "*": "__mul__", "/": "__truediv__",
	"//": "__floordiv__", "%": "__mod__",
	"<": "__lt__", "<=": "__le__", ">": "__gt__", ">=": "__ge__",
}

func (v *visitor) member(e *nodes.MemberExpr) {
	if e.Node != nil {
		v.add(e.Node.Fullname())
		if info, ok := e.Node.(*nodes.TypeInfo); ok {
			v.add(info.FullName + ".__init__")
		}
		return
	}
	var base nodes.SymbolNode
	switch b := e.Expr.(type) {
	case *nodes.NameExpr:
		base = b.Node
	case *nodes.MemberExpr:
		base = b.Node
	}
	switch b := base.(type) {
	case *nodes.Module:
		// The attribute does not exist yet; depend on its creation.
		v.add(b.ID + "." + e.Name)
		return
	case *nodes.TypeInfo:
		v.add(b.FullName + "." + e.Name)
		return
	}
	if inst, ok := v.types[e.Expr].(*nodes.Instance); ok {
		v.add(inst.Info.FullName + "." + e.Name)
	}
}
