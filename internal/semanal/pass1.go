package semanal

import (
	"github.com/jward/finegrain/internal/nodes"
)

// definePass1 adds the definitions of a module or class body to table.
// The first definition of a name wins; later ones are reported as
// redefinitions in pass 2.
func definePass1(stmts []nodes.Statement, table nodes.SymbolTable, prefix string, info *nodes.TypeInfo, moduleID string) {
	kind := nodes.GDEF
	if info != nil {
		kind = nodes.MDEF
	}
	define := func(name string, node nodes.SymbolNode) {
		if _, ok := table[name]; ok {
			return
		}
		table[name] = &nodes.SymbolTableNode{Kind: kind, Node: node, ModulePublic: true}
	}
	// defineVar returns the new variable, or nil when the name exists.
	defineVar := func(name *nodes.NameExpr, annotated bool) *nodes.Var {
		if _, ok := table[name.Name]; ok {
			return nil
		}
		v := &nodes.Var{
			Context:    nodes.Context{LineNo: name.Line()},
			DefName:    name.Name,
			FullName:   prefix + "." + name.Name,
			Info:       info,
			IsInferred: !annotated,
		}
		define(name.Name, v)
		return v
	}

	for _, s := range stmts {
		switch s := s.(type) {
		case *nodes.FuncDef:
			s.FullName = prefix + "." + s.DefName
			s.Info = info
			define(s.DefName, s)
		case *nodes.Decorator:
			s.Func.FullName = prefix + "." + s.Func.DefName
			s.Func.Info = info
			s.Var = &nodes.Var{
				Context:  s.Context,
				DefName:  s.Func.DefName,
				FullName: s.Func.FullName,
				Type:     &nodes.AnyType{},
				Info:     info,
				IsReady:  true,
			}
			define(s.Func.DefName, s)
		case *nodes.ClassDef:
			s.FullName = prefix + "." + s.DefName
			ti := &nodes.TypeInfo{
				Context:    s.Context,
				DefName:    s.DefName,
				FullName:   s.FullName,
				ModuleName: moduleID,
				Defn:       s,
				Names:      nodes.SymbolTable{},
			}
			s.Info = ti
			define(s.DefName, ti)
			definePass1(s.Defs.Body, ti.Names, s.FullName, ti, moduleID)
		case *nodes.AssignmentStmt:
			switch lv := s.Lvalue.(type) {
			case *nodes.NameExpr:
				if v := defineVar(lv, s.Annotation != nil); v != nil {
					s.Var = v
				}
			case *nodes.OpaqueExpr:
				for _, name := range targetNames(lv) {
					defineVar(name, false)
				}
			}
		case *nodes.ForStmt:
			for _, name := range targetNames(s.Index) {
				defineVar(name, false)
			}
			definePass1(s.Body.Body, table, prefix, info, moduleID)
			if s.Else != nil {
				definePass1(s.Else.Body, table, prefix, info, moduleID)
			}
		case *nodes.IfStmt:
			for _, b := range s.Bodies {
				definePass1(b.Body, table, prefix, info, moduleID)
			}
			if s.Else != nil {
				definePass1(s.Else.Body, table, prefix, info, moduleID)
			}
		case *nodes.WhileStmt:
			definePass1(s.Body.Body, table, prefix, info, moduleID)
			if s.Else != nil {
				definePass1(s.Else.Body, table, prefix, info, moduleID)
			}
		case *nodes.Block:
			definePass1(s.Body, table, prefix, info, moduleID)
		}
	}
}

// targetNames returns the plain names bound by an assignment target.
func targetNames(e nodes.Expression) []*nodes.NameExpr {
	switch e := e.(type) {
	case *nodes.NameExpr:
		return []*nodes.NameExpr{e}
	case *nodes.OpaqueExpr:
		var out []*nodes.NameExpr
		for _, c := range e.Children {
			out = append(out, targetNames(c)...)
		}
		return out
	}
	return nil
}
