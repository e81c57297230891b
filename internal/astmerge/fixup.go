package astmerge

import (
	"strings"

	"github.com/jward/finegrain/internal/nodes"
)

// fixer rewrites references to replaced definitions throughout a merged
// module. Foreign definitions reachable through symbol tables are not
// entered.
type fixer struct {
	repl   map[any]any
	prefix string
	seen   map[any]bool
}

func (r *fixer) visit(n any) bool {
	if r.seen[n] {
		return false
	}
	r.seen[n] = true
	return true
}

func (r *fixer) owned(fullname string) bool {
	return strings.HasPrefix(fullname, r.prefix)
}

func (r *fixer) sym(n nodes.SymbolNode) nodes.SymbolNode {
	if n == nil {
		return nil
	}
	if o, ok := r.repl[n]; ok {
		return o.(nodes.SymbolNode)
	}
	return n
}

func (r *fixer) info(t *nodes.TypeInfo) *nodes.TypeInfo {
	if t == nil {
		return nil
	}
	if o, ok := r.repl[t]; ok {
		return o.(*nodes.TypeInfo)
	}
	return t
}

func (r *fixer) funcDef(f *nodes.FuncDef) *nodes.FuncDef {
	if o, ok := r.repl[f]; ok {
		return o.(*nodes.FuncDef)
	}
	return f
}

func (r *fixer) variable(v *nodes.Var) *nodes.Var {
	if v == nil {
		return nil
	}
	if o, ok := r.repl[v]; ok {
		return o.(*nodes.Var)
	}
	return v
}

func (r *fixer) module(m *nodes.Module) {
	r.stmts(m.Defs)
	r.table(m.Names)
}

func (r *fixer) table(t nodes.SymbolTable) {
	for _, sym := range t {
		sym.Node = r.sym(sym.Node)
		if sym.Node == nil || !r.owned(sym.Node.Fullname()) {
			continue
		}
		r.symbolNode(sym.Node)
	}
}

func (r *fixer) symbolNode(n nodes.SymbolNode) {
	switch n := n.(type) {
	case *nodes.FuncDef:
		r.function(n)
	case *nodes.Decorator:
		r.decorator(n)
	case *nodes.TypeInfo:
		r.typeInfo(n)
	case *nodes.Var:
		r.varNode(n)
	case *nodes.TypeAlias:
		if r.visit(n) {
			r.typ(n.Target)
		}
	}
}

func (r *fixer) typeInfo(t *nodes.TypeInfo) {
	if !r.visit(t) {
		return
	}
	for _, b := range t.Bases {
		r.typ(b)
	}
	for i, m := range t.MRO {
		t.MRO[i] = r.info(m)
	}
	r.table(t.Names)
}

func (r *fixer) function(f *nodes.FuncDef) {
	if !r.visit(f) {
		return
	}
	f.Info = r.info(f.Info)
	if f.Type != nil {
		r.typ(f.Type)
	}
	for _, a := range f.Args {
		r.expr(a.Annotation)
		r.expr(a.Default)
		if a.Var != nil {
			r.varNode(a.Var)
		}
	}
	r.expr(f.Returns)
	if f.Body != nil {
		r.stmts(f.Body.Body)
	}
}

func (r *fixer) decorator(d *nodes.Decorator) {
	if !r.visit(d) {
		return
	}
	d.Func = r.funcDef(d.Func)
	for _, e := range d.Decorators {
		r.expr(e)
	}
	if d.Var != nil {
		r.varNode(d.Var)
	}
	r.function(d.Func)
}

func (r *fixer) varNode(v *nodes.Var) {
	if !r.visit(v) {
		return
	}
	v.Info = r.info(v.Info)
	r.typ(v.Type)
}

func (r *fixer) typ(t nodes.Type) {
	nodes.WalkType(t, func(t nodes.Type) {
		if inst, ok := t.(*nodes.Instance); ok {
			inst.Info = r.info(inst.Info)
		}
	})
}

// stmts replaces statements that are themselves replaced definitions and
// fixes up every statement.
func (r *fixer) stmts(body []nodes.Statement) {
	for i, s := range body {
		if o, ok := r.repl[s]; ok {
			body[i] = o.(nodes.Statement)
		}
		r.stmt(body[i])
	}
}

func (r *fixer) stmt(s nodes.Statement) {
	switch s := s.(type) {
	case *nodes.FuncDef:
		r.function(s)
	case *nodes.Decorator:
		r.decorator(s)
	case *nodes.ClassDef:
		for _, b := range s.BaseExprs {
			r.expr(b)
		}
		s.Info = r.info(s.Info)
		if s.Info != nil {
			r.typeInfo(s.Info)
		}
		r.stmts(s.Defs.Body)
	case *nodes.AssignmentStmt:
		r.expr(s.Lvalue)
		r.expr(s.Rvalue)
		r.expr(s.Annotation)
		s.Var = r.variable(s.Var)
		if s.Var != nil {
			r.varNode(s.Var)
		}
		r.typ(s.Type)
	case *nodes.ExpressionStmt:
		r.expr(s.Expr)
	case *nodes.ReturnStmt:
		r.expr(s.Expr)
	case *nodes.IfStmt:
		for i, c := range s.Conds {
			r.expr(c)
			r.stmts(s.Bodies[i].Body)
		}
		if s.Else != nil {
			r.stmts(s.Else.Body)
		}
	case *nodes.WhileStmt:
		r.expr(s.Cond)
		r.stmts(s.Body.Body)
		if s.Else != nil {
			r.stmts(s.Else.Body)
		}
	case *nodes.ForStmt:
		r.expr(s.Index)
		r.expr(s.Iter)
		r.stmts(s.Body.Body)
		if s.Else != nil {
			r.stmts(s.Else.Body)
		}
	case *nodes.Block:
		r.stmts(s.Body)
	}
}

func (r *fixer) expr(e nodes.Expression) {
	switch e := e.(type) {
	case *nodes.NameExpr:
		e.Node = r.sym(e.Node)
	case *nodes.MemberExpr:
		r.expr(e.Expr)
		e.Node = r.sym(e.Node)
	case *nodes.CallExpr:
		r.expr(e.Callee)
		for _, a := range e.Args {
			r.expr(a)
		}
	case *nodes.OpExpr:
		r.expr(e.Left)
		r.expr(e.Right)
	case *nodes.OpaqueExpr:
		for _, c := range e.Children {
			r.expr(c)
		}
	}
}
