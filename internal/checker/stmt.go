package checker

import (
	"github.com/jward/finegrain/internal/nodes"
)

func (s *state) block(stmts []nodes.Statement) {
	for _, st := range stmts {
		s.stmt(st)
	}
}

func (s *state) stmt(st nodes.Statement) {
	switch st := st.(type) {
	case *nodes.FuncDef:
		// Module-level functions and methods are targets of their own.
		if s.fn != nil {
			s.function(st)
		}
	case *nodes.Decorator:
		for _, d := range st.Decorators {
			s.expr(d)
		}
		if s.fn != nil {
			s.function(st.Func)
		}
	case *nodes.ClassDef:
		s.block(st.Defs.Body)
	case *nodes.AssignmentStmt:
		s.assignment(st)
	case *nodes.ExpressionStmt:
		s.expr(st.Expr)
	case *nodes.ReturnStmt:
		s.returnStmt(st)
	case *nodes.IfStmt:
		for i, c := range st.Conds {
			s.expr(c)
			s.block(st.Bodies[i].Body)
		}
		if st.Else != nil {
			s.block(st.Else.Body)
		}
	case *nodes.WhileStmt:
		s.expr(st.Cond)
		s.block(st.Body.Body)
		if st.Else != nil {
			s.block(st.Else.Body)
		}
	case *nodes.ForStmt:
		s.expr(st.Iter)
		s.untypedTargets(st.Index)
		s.block(st.Body.Body)
		if st.Else != nil {
			s.block(st.Else.Body)
		}
	case *nodes.Block:
		s.block(st.Body)
	}
}

func (s *state) function(fn *nodes.FuncDef) {
	prev := s.fn
	s.fn = fn
	defer func() { s.fn = prev }()

	for i, arg := range fn.Args {
		if arg.Default == nil {
			continue
		}
		t := s.expr(arg.Default)
		if fn.Type == nil || arg.Annotation == nil {
			continue
		}
		if want := fn.Type.ArgTypes[i]; !nodes.IsSubtype(t, want) {
			s.fail(arg.Line(), "Incompatible default for argument \"%s\" (default has type \"%s\", argument has type \"%s\")",
				arg.Name, t, want)
		}
	}
	s.block(fn.Body.Body)
}

func (s *state) assignment(st *nodes.AssignmentStmt) {
	if st.IsAliasDef {
		return
	}
	var rt nodes.Type
	if st.Rvalue != nil {
		rt = s.expr(st.Rvalue)
	}
	switch lv := st.Lvalue.(type) {
	case *nodes.NameExpr:
		if v, ok := lv.Node.(*nodes.Var); ok {
			s.assignVar(lv.Line(), v, rt, st.Type)
			s.types[lv] = s.varType(v)
		}
	case *nodes.MemberExpr:
		s.memberAssignment(lv, rt, st.Type)
	case *nodes.OpaqueExpr:
		s.untypedTargets(lv)
	}
}

// assignVar checks or infers the type of v from an assigned value of type
// rt. declared is the annotation of the assignment, if any.
func (s *state) assignVar(line int, v *nodes.Var, rt, declared nodes.Type) {
	if rt == nil {
		return
	}
	if declared != nil {
		if !nodes.IsSubtype(rt, declared) {
			s.incompatibleAssignment(line, rt, declared)
		}
		return
	}
	if v.Type == nil || !v.IsReady {
		if v.IsInferred {
			v.Type = rt
			v.IsReady = true
		}
		return
	}
	if !nodes.IsSubtype(rt, v.Type) {
		s.incompatibleAssignment(line, rt, v.Type)
	}
}

func (s *state) incompatibleAssignment(line int, got, want nodes.Type) {
	s.fail(line, "Incompatible types in assignment (expression has type \"%s\", variable has type \"%s\")", got, want)
}

func (s *state) memberAssignment(lv *nodes.MemberExpr, rt, declared nodes.Type) {
	if v, ok := lv.Node.(*nodes.Var); ok {
		s.expr(lv.Expr)
		s.assignVar(lv.Line(), v, rt, declared)
		return
	}
	base := s.expr(lv.Expr)
	if _, ok := boundNode(lv.Expr).(*nodes.Module); ok {
		s.fail(lv.Line(), "Module has no attribute \"%s\"", lv.Name)
		return
	}
	inst, ok := base.(*nodes.Instance)
	if !ok {
		return
	}
	sym := inst.Info.Get(lv.Name)
	if sym == nil {
		s.fail(lv.Line(), "\"%s\" has no attribute \"%s\"", inst.Info.DefName, lv.Name)
		return
	}
	if v, ok := sym.Node.(*nodes.Var); ok {
		s.assignVar(lv.Line(), v, rt, declared)
	}
}

// untypedTargets gives the names bound by a tuple target or loop index the
// type Any.
func (s *state) untypedTargets(e nodes.Expression) {
	switch e := e.(type) {
	case *nodes.NameExpr:
		if v, ok := e.Node.(*nodes.Var); ok && (v.Type == nil || !v.IsReady) {
			v.Type = &nodes.AnyType{}
			v.IsReady = true
		}
	case *nodes.OpaqueExpr:
		for _, c := range e.Children {
			s.untypedTargets(c)
		}
	case nil:
	default:
		s.expr(e)
	}
}

func (s *state) returnStmt(st *nodes.ReturnStmt) {
	if s.fn == nil || s.fn.Type == nil {
		if st.Expr != nil {
			s.expr(st.Expr)
		}
		return
	}
	want := s.fn.Type.RetType
	if st.Expr == nil {
		if !isNoneOrAny(want) {
			s.fail(st.Line(), "Return value expected")
		}
		return
	}
	got := s.expr(st.Expr)
	if _, ok := want.(*nodes.NoneType); ok {
		if !isNoneOrAny(got) {
			s.fail(st.Line(), "No return value expected")
		}
		return
	}
	if !nodes.IsSubtype(got, want) {
		s.fail(st.Line(), "Incompatible return value type (got \"%s\", expected \"%s\")", got, want)
	}
}

func isNoneOrAny(t nodes.Type) bool {
	switch t.(type) {
	case *nodes.NoneType, *nodes.AnyType, nil:
		return true
	}
	return false
}
