package parse

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/finegrain/internal/nodes"
)

// converter maps tree-sitter nodes onto the nodes package.
type converter struct {
	src       []byte
	id        string
	isPackage bool
	funcDepth int
	imports   []nodes.ImportBase
}

func line(n *sitter.Node) int { return int(n.StartPoint().Row) + 1 }

func ctxOf(n *sitter.Node) nodes.Context { return nodes.Context{LineNo: line(n)} }

func (c *converter) text(n *sitter.Node) string { return n.Content(c.src) }

// namedChildren returns the named children of n, skipping comments.
func namedChildren(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}

func field(n *sitter.Node, name string) *sitter.Node {
	child := n.ChildByFieldName(name)
	if child == nil || child.IsNull() {
		return nil
	}
	return child
}

// ============================================================================
// Statements
// ============================================================================

func (c *converter) statements(n *sitter.Node) []nodes.Statement {
	var out []nodes.Statement
	for _, child := range namedChildren(n) {
		out = append(out, c.statement(child)...)
	}
	return out
}

func (c *converter) block(n *sitter.Node) *nodes.Block {
	if n == nil {
		return &nodes.Block{}
	}
	return &nodes.Block{Context: ctxOf(n), Body: c.statements(n)}
}

func (c *converter) statement(n *sitter.Node) []nodes.Statement {
	switch n.Type() {
	case "expression_statement":
		return c.expressionStatement(n)
	case "function_definition":
		return []nodes.Statement{c.funcDef(n)}
	case "class_definition":
		return []nodes.Statement{c.classDef(n)}
	case "decorated_definition":
		return []nodes.Statement{c.decorated(n)}
	case "import_statement":
		return []nodes.Statement{c.importStmt(n)}
	case "import_from_statement":
		return []nodes.Statement{c.importFrom(n)}
	case "future_import_statement", "pass_statement", "break_statement", "continue_statement",
		"global_statement", "nonlocal_statement":
		return []nodes.Statement{&nodes.PassStmt{Context: ctxOf(n)}}
	case "return_statement":
		ret := &nodes.ReturnStmt{Context: ctxOf(n)}
		if kids := namedChildren(n); len(kids) > 0 {
			ret.Expr = c.expr(kids[0])
		}
		return []nodes.Statement{ret}
	case "if_statement":
		return []nodes.Statement{c.ifStmt(n)}
	case "while_statement":
		w := &nodes.WhileStmt{
			Context: ctxOf(n),
			Cond:    c.expr(field(n, "condition")),
			Body:    c.block(field(n, "body")),
		}
		if alt := field(n, "alternative"); alt != nil {
			w.Else = c.block(field(alt, "body"))
		}
		return []nodes.Statement{w}
	case "for_statement":
		f := &nodes.ForStmt{
			Context: ctxOf(n),
			Index:   c.expr(field(n, "left")),
			Iter:    c.expr(field(n, "right")),
			Body:    c.block(field(n, "body")),
		}
		if alt := field(n, "alternative"); alt != nil {
			f.Else = c.block(field(alt, "body"))
		}
		return []nodes.Statement{f}
	case "try_statement":
		return []nodes.Statement{c.tryStmt(n)}
	case "with_statement":
		return []nodes.Statement{c.withStmt(n)}
	default:
		return []nodes.Statement{&nodes.ExpressionStmt{Context: ctxOf(n), Expr: c.opaque(n)}}
	}
}

func (c *converter) expressionStatement(n *sitter.Node) []nodes.Statement {
	var out []nodes.Statement
	for _, child := range namedChildren(n) {
		switch child.Type() {
		case "assignment":
			out = append(out, c.assignment(child))
		case "augmented_assignment":
			lhs := c.expr(field(child, "left"))
			op := strings.TrimSuffix(c.text(field(child, "operator")), "=")
			out = append(out, &nodes.AssignmentStmt{
				Context: ctxOf(child),
				Lvalue:  lhs,
				Rvalue: &nodes.OpExpr{
					Context: ctxOf(child),
					Op:      op,
					Left:    c.expr(field(child, "left")),
					Right:   c.expr(field(child, "right")),
				},
			})
		default:
			out = append(out, &nodes.ExpressionStmt{Context: ctxOf(child), Expr: c.expr(child)})
		}
	}
	return out
}

func (c *converter) assignment(n *sitter.Node) nodes.Statement {
	s := &nodes.AssignmentStmt{
		Context: ctxOf(n),
		Lvalue:  c.expr(field(n, "left")),
	}
	if t := field(n, "type"); t != nil {
		s.Annotation = c.typeExpr(t)
	}
	if r := field(n, "right"); r != nil {
		if r.Type() == "assignment" {
			// Chained assignments are not modeled; the value is opaque.
			s.Rvalue = c.opaque(r)
		} else {
			s.Rvalue = c.expr(r)
		}
	}
	return s
}

func (c *converter) ifStmt(n *sitter.Node) *nodes.IfStmt {
	s := &nodes.IfStmt{Context: ctxOf(n)}
	s.Conds = append(s.Conds, c.expr(field(n, "condition")))
	s.Bodies = append(s.Bodies, c.block(field(n, "consequence")))
	for _, child := range namedChildren(n) {
		switch child.Type() {
		case "elif_clause":
			s.Conds = append(s.Conds, c.expr(field(child, "condition")))
			s.Bodies = append(s.Bodies, c.block(field(child, "consequence")))
		case "else_clause":
			s.Else = c.block(field(child, "body"))
		}
	}
	return s
}

// tryStmt flattens every clause body of a try statement into one block.
func (c *converter) tryStmt(n *sitter.Node) *nodes.Block {
	b := &nodes.Block{Context: ctxOf(n)}
	for _, child := range namedChildren(n) {
		switch child.Type() {
		case "block":
			b.Body = append(b.Body, c.statements(child)...)
		case "except_clause", "except_group_clause":
			for _, part := range namedChildren(child) {
				switch {
				case part.Type() == "block":
					b.Body = append(b.Body, c.statements(part)...)
				case part.Type() == "as_pattern":
					if alias := field(part, "alias"); alias != nil {
						b.Body = append(b.Body, c.anyBinding(alias))
					}
				}
			}
		case "else_clause", "finally_clause":
			for _, part := range namedChildren(child) {
				if part.Type() == "block" {
					b.Body = append(b.Body, c.statements(part)...)
				}
			}
		}
	}
	return b
}

// withStmt binds the as-targets to opaque values and inlines the body.
func (c *converter) withStmt(n *sitter.Node) *nodes.Block {
	b := &nodes.Block{Context: ctxOf(n)}
	for _, child := range namedChildren(n) {
		switch child.Type() {
		case "with_clause":
			for _, item := range namedChildren(child) {
				value := field(item, "value")
				if value == nil || value.Type() != "as_pattern" {
					continue
				}
				if alias := field(value, "alias"); alias != nil {
					b.Body = append(b.Body, c.anyBinding(alias))
				}
			}
		case "block":
			b.Body = append(b.Body, c.statements(child)...)
		}
	}
	return b
}

func (c *converter) anyBinding(target *sitter.Node) nodes.Statement {
	if target.Type() == "as_pattern_target" {
		if kids := namedChildren(target); len(kids) == 1 {
			target = kids[0]
		}
	}
	return &nodes.AssignmentStmt{
		Context: ctxOf(target),
		Lvalue:  c.expr(target),
		Rvalue:  &nodes.OpaqueExpr{Context: ctxOf(target), Kind: "binding"},
	}
}

// ============================================================================
// Definitions
// ============================================================================

func (c *converter) funcDef(n *sitter.Node) *nodes.FuncDef {
	f := &nodes.FuncDef{
		Context: ctxOf(n),
		DefName: c.text(field(n, "name")),
		EndLine: int(n.EndPoint().Row) + 1,
	}
	if params := field(n, "parameters"); params != nil {
		f.Args = c.parameters(params)
	}
	if ret := field(n, "return_type"); ret != nil {
		f.Returns = c.typeExpr(ret)
	}
	c.funcDepth++
	f.Body = c.block(field(n, "body"))
	c.funcDepth--
	return f
}

func (c *converter) parameters(n *sitter.Node) []*nodes.Argument {
	var args []*nodes.Argument
	for _, p := range namedChildren(n) {
		arg := &nodes.Argument{Context: ctxOf(p), Kind: nodes.ArgPos}
		switch p.Type() {
		case "identifier":
			arg.Name = c.text(p)
		case "typed_parameter":
			inner := namedChildren(p)[0]
			c.splatParam(arg, inner)
			arg.Annotation = c.typeExpr(field(p, "type"))
		case "default_parameter":
			arg.Name = c.text(field(p, "name"))
			arg.Default = c.expr(field(p, "value"))
			arg.Kind = nodes.ArgOpt
		case "typed_default_parameter":
			arg.Name = c.text(field(p, "name"))
			arg.Annotation = c.typeExpr(field(p, "type"))
			arg.Default = c.expr(field(p, "value"))
			arg.Kind = nodes.ArgOpt
		case "list_splat_pattern", "dictionary_splat_pattern":
			c.splatParam(arg, p)
		default:
			// keyword_separator and positional_separator carry no name.
			continue
		}
		args = append(args, arg)
	}
	return args
}

func (c *converter) splatParam(arg *nodes.Argument, n *sitter.Node) {
	switch n.Type() {
	case "list_splat_pattern":
		arg.Kind = nodes.ArgStar
		arg.Name = c.text(namedChildren(n)[0])
	case "dictionary_splat_pattern":
		arg.Kind = nodes.ArgStar2
		arg.Name = c.text(namedChildren(n)[0])
	default:
		arg.Name = c.text(n)
	}
}

func (c *converter) classDef(n *sitter.Node) *nodes.ClassDef {
	cls := &nodes.ClassDef{
		Context: ctxOf(n),
		DefName: c.text(field(n, "name")),
	}
	if supers := field(n, "superclasses"); supers != nil {
		for _, b := range namedChildren(supers) {
			if b.Type() == "keyword_argument" {
				continue
			}
			cls.BaseExprs = append(cls.BaseExprs, c.expr(b))
		}
	}
	cls.Defs = c.block(field(n, "body"))
	return cls
}

func (c *converter) decorated(n *sitter.Node) nodes.Statement {
	var decorators []nodes.Expression
	for _, child := range namedChildren(n) {
		if child.Type() == "decorator" {
			if kids := namedChildren(child); len(kids) > 0 {
				decorators = append(decorators, c.expr(kids[0]))
			}
		}
	}
	def := field(n, "definition")
	if def.Type() == "class_definition" {
		// Class decorators do not change the class.
		return c.classDef(def)
	}
	f := c.funcDef(def)
	f.IsDecorated = true
	return &nodes.Decorator{Context: ctxOf(n), Func: f, Decorators: decorators}
}

// ============================================================================
// Imports
// ============================================================================

func (c *converter) dottedName(n *sitter.Node) string {
	var parts []string
	for _, id := range namedChildren(n) {
		parts = append(parts, c.text(id))
	}
	return strings.Join(parts, ".")
}

func (c *converter) importStmt(n *sitter.Node) nodes.Statement {
	imp := &nodes.Import{Context: ctxOf(n), IsTopLevel: c.funcDepth == 0}
	for _, child := range namedChildren(n) {
		switch child.Type() {
		case "dotted_name":
			imp.IDs = append(imp.IDs, nodes.ImportedModule{ID: c.dottedName(child)})
		case "aliased_import":
			imp.IDs = append(imp.IDs, nodes.ImportedModule{
				ID: c.dottedName(field(child, "name")),
				As: c.text(field(child, "alias")),
			})
		}
	}
	c.imports = append(c.imports, imp)
	return imp
}

func (c *converter) importFrom(n *sitter.Node) nodes.Statement {
	moduleNode := field(n, "module_name")
	rel, name := 0, ""
	if moduleNode.Type() == "relative_import" {
		for _, part := range namedChildren(moduleNode) {
			switch part.Type() {
			case "import_prefix":
				rel = strings.Count(c.text(part), ".")
			case "dotted_name":
				name = c.dottedName(part)
			}
		}
	} else {
		name = c.dottedName(moduleNode)
	}
	id := ResolveRelative(c.id, c.isPackage, rel, name)
	top := c.funcDepth == 0

	var names []nodes.ImportedName
	wildcard := false
	for _, child := range namedChildren(n) {
		if child.StartByte() == moduleNode.StartByte() && child.EndByte() == moduleNode.EndByte() {
			continue
		}
		switch child.Type() {
		case "wildcard_import":
			wildcard = true
		case "dotted_name":
			names = append(names, nodes.ImportedName{Name: c.dottedName(child)})
		case "aliased_import":
			names = append(names, nodes.ImportedName{
				Name: c.dottedName(field(child, "name")),
				As:   c.text(field(child, "alias")),
			})
		}
	}

	var stmt nodes.ImportBase
	if wildcard {
		stmt = &nodes.ImportAll{Context: ctxOf(n), ID: id, Relative: rel, IsTopLevel: top}
	} else {
		stmt = &nodes.ImportFrom{Context: ctxOf(n), ID: id, Relative: rel, Names: names, IsTopLevel: top}
	}
	c.imports = append(c.imports, stmt)
	return stmt
}

// ============================================================================
// Expressions
// ============================================================================

// typeExpr unwraps a "type" node into the expression it holds.
func (c *converter) typeExpr(n *sitter.Node) nodes.Expression {
	if n == nil {
		return nil
	}
	if n.Type() == "type" {
		if kids := namedChildren(n); len(kids) == 1 {
			return c.expr(kids[0])
		}
	}
	return c.expr(n)
}

func (c *converter) expr(n *sitter.Node) nodes.Expression {
	if n == nil {
		return nil
	}
	ctx := ctxOf(n)
	switch n.Type() {
	case "identifier":
		return &nodes.NameExpr{Context: ctx, Name: c.text(n)}
	case "attribute":
		return &nodes.MemberExpr{
			Context: ctx,
			Expr:    c.expr(field(n, "object")),
			Name:    c.text(field(n, "attribute")),
		}
	case "call":
		call := &nodes.CallExpr{Context: ctx, Callee: c.expr(field(n, "function"))}
		args := field(n, "arguments")
		if args == nil || args.Type() != "argument_list" {
			// Generator argument: f(x for x in y).
			if args != nil {
				call.Args = append(call.Args, c.opaque(args))
				call.ArgNames = append(call.ArgNames, "")
			}
			return call
		}
		for _, a := range namedChildren(args) {
			switch a.Type() {
			case "keyword_argument":
				call.Args = append(call.Args, c.expr(field(a, "value")))
				call.ArgNames = append(call.ArgNames, c.text(field(a, "name")))
			case "list_splat", "dictionary_splat":
				// Splatted arguments make the call shape unknown.
				return &nodes.OpaqueExpr{Context: ctx, Kind: "call", Children: c.exprChildren(n)}
			default:
				call.Args = append(call.Args, c.expr(a))
				call.ArgNames = append(call.ArgNames, "")
			}
		}
		return call
	case "integer":
		v, err := strconv.ParseInt(strings.ReplaceAll(c.text(n), "_", ""), 0, 64)
		if err != nil {
			return &nodes.IntExpr{Context: ctx}
		}
		return &nodes.IntExpr{Context: ctx, Value: v}
	case "float":
		v, _ := strconv.ParseFloat(strings.ReplaceAll(c.text(n), "_", ""), 64)
		return &nodes.FloatExpr{Context: ctx, Value: v}
	case "string":
		return &nodes.StrExpr{Context: ctx, Value: c.stringContent(n)}
	case "concatenated_string":
		var b strings.Builder
		for _, part := range namedChildren(n) {
			b.WriteString(c.stringContent(part))
		}
		return &nodes.StrExpr{Context: ctx, Value: b.String()}
	case "true":
		return &nodes.BoolExpr{Context: ctx, Value: true}
	case "false":
		return &nodes.BoolExpr{Context: ctx, Value: false}
	case "none":
		return &nodes.NoneExpr{Context: ctx}
	case "parenthesized_expression":
		if kids := namedChildren(n); len(kids) == 1 {
			return c.expr(kids[0])
		}
	case "binary_operator":
		return &nodes.OpExpr{
			Context: ctx,
			Op:      c.text(field(n, "operator")),
			Left:    c.expr(field(n, "left")),
			Right:   c.expr(field(n, "right")),
		}
	case "boolean_operator":
		return &nodes.OpExpr{
			Context: ctx,
			Op:      c.text(field(n, "operator")),
			Left:    c.expr(field(n, "left")),
			Right:   c.expr(field(n, "right")),
		}
	case "comparison_operator":
		if n.ChildCount() == 3 {
			return &nodes.OpExpr{
				Context: ctx,
				Op:      c.text(n.Child(1)),
				Left:    c.expr(n.Child(0)),
				Right:   c.expr(n.Child(2)),
			}
		}
	case "unary_operator":
		operand := c.expr(field(n, "argument"))
		if c.text(field(n, "operator")) == "-" {
			switch v := operand.(type) {
			case *nodes.IntExpr:
				v.Value = -v.Value
				return v
			case *nodes.FloatExpr:
				v.Value = -v.Value
				return v
			}
		}
		return &nodes.OpaqueExpr{Context: ctx, Kind: n.Type(), Children: []nodes.Expression{operand}}
	}
	return c.opaque(n)
}

// opaque wraps an unsupported construct. Its named sub-expressions are kept
// so the names inside still get bound and recorded as dependencies.
func (c *converter) opaque(n *sitter.Node) nodes.Expression {
	return &nodes.OpaqueExpr{Context: ctxOf(n), Kind: n.Type(), Children: c.exprChildren(n)}
}

// exprChildren converts the expression-like named children of n. Nodes
// that introduce their own bindings (lambdas, comprehensions) are skipped.
func (c *converter) exprChildren(n *sitter.Node) []nodes.Expression {
	var out []nodes.Expression
	for _, child := range namedChildren(n) {
		switch child.Type() {
		case "lambda", "list_comprehension", "dictionary_comprehension",
			"set_comprehension", "generator_expression", "block":
			continue
		case "keyword_argument":
			out = append(out, c.expr(field(child, "value")))
		case "pair", "list_splat", "dictionary_splat", "expression_list",
			"argument_list", "assignment", "slice", "type", "as_pattern", "pattern_list",
			"tuple_pattern", "list_pattern":
			out = append(out, c.exprChildren(child)...)
		default:
			out = append(out, c.expr(child))
		}
	}
	return out
}

func (c *converter) stringContent(n *sitter.Node) string {
	var b strings.Builder
	for i := 0; i < int(n.NamedChildCount()); i++ {
		part := n.NamedChild(i)
		switch part.Type() {
		case "string_content", "escape_sequence":
			b.WriteString(c.text(part))
		}
	}
	return b.String()
}
