// Package strip reverts a target to the state pass 1 of semantic analysis
// left it in, so passes 2 and 3 can be rerun on it in place.
package strip

import (
	"github.com/jward/finegrain/internal/nodes"
)

// Target strips a module top level or a single function. Function bodies
// are never touched when stripping a module; each function is a target of
// its own.
func Target(node nodes.Node) {
	switch n := node.(type) {
	case *nodes.Module:
		dropImported(n.Names)
		block(n.Defs, n.Names, nodes.GDEF)
	case *nodes.FuncDef:
		function(n)
	}
}

// dropImported removes the entries pass 2 bound for import statements.
func dropImported(table nodes.SymbolTable) {
	for name, sym := range table {
		if sym.Imported {
			delete(table, name)
		}
	}
}

// restore puts a pass 1 definition back unless the name is taken. Walking
// statements in source order reproduces first-definition-wins.
func restore(table nodes.SymbolTable, name string, kind nodes.Kind, node nodes.SymbolNode) {
	if _, ok := table[name]; ok {
		return
	}
	table[name] = &nodes.SymbolTableNode{Kind: kind, Node: node, ModulePublic: true}
}

func block(stmts []nodes.Statement, table nodes.SymbolTable, kind nodes.Kind) {
	for _, s := range stmts {
		switch s := s.(type) {
		case *nodes.FuncDef:
			restore(table, s.DefName, kind, s)
		case *nodes.Decorator:
			for _, d := range s.Decorators {
				unbind(d)
			}
			restore(table, s.Func.DefName, kind, s)
		case *nodes.ClassDef:
			for _, b := range s.BaseExprs {
				unbind(b)
			}
			info := s.Info
			info.Bases = nil
			info.MRO = nil
			restore(table, s.DefName, kind, info)
			dropImported(info.Names)
			block(s.Defs.Body, info.Names, nodes.MDEF)
		case *nodes.AssignmentStmt:
			unbind(s.Lvalue)
			unbind(s.Rvalue)
			unbind(s.Annotation)
			s.Type = nil
			if v := s.Var; v != nil {
				name := v.DefName
				if s.IsAliasDef {
					delete(table, name)
				}
				v.Type = nil
				v.IsReady = false
				restore(table, name, kind, v)
			}
			s.IsAliasDef = false
		case *nodes.ExpressionStmt:
			unbind(s.Expr)
		case *nodes.ReturnStmt:
			unbind(s.Expr)
		case *nodes.IfStmt:
			for i, c := range s.Conds {
				unbind(c)
				block(s.Bodies[i].Body, table, kind)
			}
			if s.Else != nil {
				block(s.Else.Body, table, kind)
			}
		case *nodes.WhileStmt:
			unbind(s.Cond)
			block(s.Body.Body, table, kind)
			if s.Else != nil {
				block(s.Else.Body, table, kind)
			}
		case *nodes.ForStmt:
			unbind(s.Index)
			unbind(s.Iter)
			block(s.Body.Body, table, kind)
			if s.Else != nil {
				block(s.Else.Body, table, kind)
			}
		case *nodes.Block:
			block(s.Body, table, kind)
		case *nodes.ImportAll:
			s.Bound = nil
		}
	}
}

// unbind clears every name binding inside an expression.
func unbind(e nodes.Expression) {
	if e == nil {
		return
	}
	nodes.Inspect(e, func(n nodes.Node) bool {
		switch n := n.(type) {
		case *nodes.NameExpr:
			n.Unbind()
		case *nodes.MemberExpr:
			n.Unbind()
		}
		return true
	})
}

func function(fn *nodes.FuncDef) {
	nodes.Inspect(fn, func(n nodes.Node) bool {
		switch n := n.(type) {
		case *nodes.FuncDef:
			n.Type = nil
		case *nodes.Argument:
			n.Var = nil
		case *nodes.NameExpr:
			n.Unbind()
		case *nodes.MemberExpr:
			if n.IsNewDef {
				removeAttribute(n)
			}
			n.Unbind()
		case *nodes.AssignmentStmt:
			n.Type = nil
		case *nodes.ClassDef:
			n.Info = nil
		case *nodes.ImportAll:
			n.Bound = nil
		}
		return true
	})
}

// removeAttribute deletes an attribute created by a self.name assignment.
func removeAttribute(m *nodes.MemberExpr) {
	v, ok := m.Node.(*nodes.Var)
	if !ok || v.Info == nil {
		return
	}
	if sym, ok := v.Info.Names[m.Name]; ok && sym.Node == m.Node {
		delete(v.Info.Names, m.Name)
	}
}
