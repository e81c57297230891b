package nodes

// Inspect traverses the tree rooted at n in depth-first order. If f
// returns false the children of the node are skipped.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	switch n := n.(type) {
	case *Module:
		for _, d := range n.Defs {
			Inspect(d, f)
		}
	case *Block:
		for _, s := range n.Body {
			Inspect(s, f)
		}
	case *FuncDef:
		for _, a := range n.Args {
			Inspect(a, f)
		}
		inspectExpr(n.Returns, f)
		if n.Body != nil {
			Inspect(n.Body, f)
		}
	case *Argument:
		inspectExpr(n.Annotation, f)
		inspectExpr(n.Default, f)
	case *Decorator:
		for _, d := range n.Decorators {
			inspectExpr(d, f)
		}
		Inspect(n.Func, f)
	case *ClassDef:
		for _, b := range n.BaseExprs {
			inspectExpr(b, f)
		}
		if n.Defs != nil {
			Inspect(n.Defs, f)
		}
	case *AssignmentStmt:
		inspectExpr(n.Lvalue, f)
		inspectExpr(n.Annotation, f)
		inspectExpr(n.Rvalue, f)
	case *ExpressionStmt:
		inspectExpr(n.Expr, f)
	case *ReturnStmt:
		inspectExpr(n.Expr, f)
	case *IfStmt:
		for i, c := range n.Conds {
			inspectExpr(c, f)
			Inspect(n.Bodies[i], f)
		}
		if n.Else != nil {
			Inspect(n.Else, f)
		}
	case *WhileStmt:
		inspectExpr(n.Cond, f)
		Inspect(n.Body, f)
		if n.Else != nil {
			Inspect(n.Else, f)
		}
	case *ForStmt:
		inspectExpr(n.Index, f)
		inspectExpr(n.Iter, f)
		Inspect(n.Body, f)
		if n.Else != nil {
			Inspect(n.Else, f)
		}
	case *MemberExpr:
		inspectExpr(n.Expr, f)
	case *CallExpr:
		inspectExpr(n.Callee, f)
		for _, a := range n.Args {
			inspectExpr(a, f)
		}
	case *OpExpr:
		inspectExpr(n.Left, f)
		inspectExpr(n.Right, f)
	case *OpaqueExpr:
		for _, c := range n.Children {
			inspectExpr(c, f)
		}
	}
}

func inspectExpr(e Expression, f func(Node) bool) {
	if e != nil {
		Inspect(e, f)
	}
}

// TopLevel traverses the module-level part of m: every statement outside
// function bodies, including class bodies. Function and method definitions
// themselves are passed to f but never entered.
func TopLevel(m *Module, f func(Node) bool) {
	for _, d := range m.Defs {
		inspectTopLevel(d, f)
	}
}

func inspectTopLevel(n Node, f func(Node) bool) {
	switch n := n.(type) {
	case *FuncDef, *Decorator:
		f(n)
	case *ClassDef:
		if !f(n) {
			return
		}
		for _, b := range n.BaseExprs {
			inspectExpr(b, f)
		}
		for _, s := range n.Defs.Body {
			inspectTopLevel(s, f)
		}
	case *Block:
		if !f(n) {
			return
		}
		for _, s := range n.Body {
			inspectTopLevel(s, f)
		}
	case *IfStmt:
		if !f(n) {
			return
		}
		for i, c := range n.Conds {
			inspectExpr(c, f)
			inspectTopLevel(n.Bodies[i], f)
		}
		if n.Else != nil {
			inspectTopLevel(n.Else, f)
		}
	case *WhileStmt:
		if !f(n) {
			return
		}
		inspectExpr(n.Cond, f)
		inspectTopLevel(n.Body, f)
		if n.Else != nil {
			inspectTopLevel(n.Else, f)
		}
	case *ForStmt:
		if !f(n) {
			return
		}
		inspectExpr(n.Index, f)
		inspectExpr(n.Iter, f)
		inspectTopLevel(n.Body, f)
		if n.Else != nil {
			inspectTopLevel(n.Else, f)
		}
	default:
		Inspect(n, f)
	}
}

// Functions returns every function definition reachable from m without
// entering another function: module-level functions and methods of
// module-level classes, in source order. Decorated functions are returned
// as their underlying FuncDef.
func Functions(m *Module) []*FuncDef {
	var out []*FuncDef
	TopLevel(m, func(n Node) bool {
		switch n := n.(type) {
		case *FuncDef:
			out = append(out, n)
		case *Decorator:
			out = append(out, n.Func)
		}
		return true
	})
	return out
}
