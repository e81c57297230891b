package semanal

import (
	"strings"

	"github.com/jward/finegrain/internal/nodes"
)

// visitor runs pass 2 over one target. It carries the scope stack of the
// traversal; nothing survives between targets except what is written into
// the tree and the symbol tables.
type visitor struct {
	a   *Analyzer
	mod *nodes.Module
	sc  *scope
}

func (v *visitor) fail(line int, format string, args ...any) {
	v.a.errs.Reportf(line, format, args...)
}

// topLevel analyzes everything outside function bodies.
func (v *visitor) topLevel() {
	str := v.builtinInstance("str")
	for _, name := range nodes.ImplicitModuleAttrs() {
		if str == nil {
			break
		}
		if sym, ok := v.mod.Names[name]; ok {
			if vr, ok := sym.Node.(*nodes.Var); ok && vr.Type == nil {
				vr.Type = str
				vr.IsReady = true
			}
		}
	}
	v.block(v.mod.Defs)
}

func (v *visitor) block(stmts []nodes.Statement) {
	for _, s := range stmts {
		v.stmt(s)
	}
}

func (v *visitor) stmt(s nodes.Statement) {
	switch s := s.(type) {
	case *nodes.FuncDef:
		if v.sc.inFunction() {
			v.localFunction(s, s)
			return
		}
		v.checkRedefinition(s.DefName, s, s.Line())
	case *nodes.Decorator:
		for _, d := range s.Decorators {
			v.expr(d)
		}
		if v.sc.inFunction() {
			v.localFunction(s.Func, s)
			return
		}
		v.checkRedefinition(s.Func.DefName, s, s.Line())
	case *nodes.ClassDef:
		if v.sc.inFunction() {
			v.localClass(s)
			return
		}
		v.checkRedefinition(s.DefName, s.Info, s.Line())
		v.classDef(s)
	case *nodes.AssignmentStmt:
		v.assignment(s)
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
		v.expr(s.Iter)
		v.lvalue(nil, s.Index, nil)
		v.block(s.Body.Body)
		if s.Else != nil {
			v.block(s.Else.Body)
		}
	case *nodes.Block:
		v.block(s.Body)
	case *nodes.Import:
		v.importModules(s)
	case *nodes.ImportFrom:
		v.importFrom(s)
	case *nodes.ImportAll:
		v.importAll(s)
	}
}

func (v *visitor) checkRedefinition(name string, node nodes.SymbolNode, line int) {
	table, _ := v.sc.table()
	if sym, ok := table[name]; ok && sym.Node != node {
		v.fail(line, "Name '%s' already defined", name)
	}
}

func (v *visitor) classDef(c *nodes.ClassDef) {
	info := c.Info
	info.Bases = nil
	for _, b := range c.BaseExprs {
		v.expr(b)
		base := v.baseClass(b)
		if base == nil {
			if boundNode(b) != nil {
				v.fail(b.Line(), "Invalid base class")
			}
			continue
		}
		info.Bases = append(info.Bases, &nodes.Instance{Info: base})
	}
	if len(info.Bases) == 0 && info.FullName != "builtins.object" {
		if obj := v.builtinInstance("object"); obj != nil {
			info.Bases = []*nodes.Instance{obj}
		}
	}

	defer v.sc.push(&frame{kind: classFrame, info: info})()
	v.block(c.Defs.Body)
}

// baseClass returns the class a base class expression refers to.
func (v *visitor) baseClass(e nodes.Expression) *nodes.TypeInfo {
	switch n := boundNode(e).(type) {
	case *nodes.TypeInfo:
		return n
	case *nodes.TypeAlias:
		if inst, ok := n.Target.(*nodes.Instance); ok {
			return inst.Info
		}
	}
	return nil
}

func (v *visitor) localClass(c *nodes.ClassDef) {
	c.FullName = c.DefName
	info := &nodes.TypeInfo{
		Context:    c.Context,
		DefName:    c.DefName,
		FullName:   c.DefName,
		ModuleName: v.mod.ID,
		Defn:       c,
		Names:      nodes.SymbolTable{},
	}
	c.Info = info
	definePass1(c.Defs.Body, info.Names, c.FullName, info, v.mod.ID)
	v.bind(c.DefName, nodes.LDEF, info, false)
	v.classDef(c)
	// Methods of local classes belong to the enclosing target.
	for _, fn := range classMethods(c) {
		v.function(fn)
	}
}

func classMethods(c *nodes.ClassDef) []*nodes.FuncDef {
	var out []*nodes.FuncDef
	for _, s := range c.Defs.Body {
		switch s := s.(type) {
		case *nodes.FuncDef:
			out = append(out, s)
		case *nodes.Decorator:
			out = append(out, s.Func)
		}
	}
	return out
}

func (v *visitor) localFunction(fn *nodes.FuncDef, node nodes.SymbolNode) {
	fn.FullName = fn.DefName
	if d, ok := node.(*nodes.Decorator); ok {
		d.Var = &nodes.Var{Context: d.Context, DefName: fn.DefName, FullName: fn.DefName, Type: &nodes.AnyType{}, IsReady: true}
	}
	v.bind(fn.DefName, nodes.LDEF, node, false)
	v.function(fn)
}

// function analyzes the signature of fn in the enclosing scope, then its
// body in a new function frame.
func (v *visitor) function(fn *nodes.FuncDef) {
	info := fn.Info
	if info == nil {
		if f := v.sc.top(); f != nil && f.kind == classFrame {
			info = f.info
		}
	}

	sig := &nodes.CallableType{Name: fn.DefName}
	if info != nil {
		sig.Owner = info.DefName
	}
	for i, arg := range fn.Args {
		var t nodes.Type
		switch {
		case arg.Annotation != nil:
			t = v.typ(arg.Annotation)
		case i == 0 && info != nil && !fn.IsDecorated:
			t = &nodes.Instance{Info: info}
		default:
			t = &nodes.AnyType{}
		}
		if arg.Default != nil {
			v.expr(arg.Default)
		}
		sig.ArgTypes = append(sig.ArgTypes, t)
		sig.ArgKinds = append(sig.ArgKinds, arg.Kind)
		sig.ArgNames = append(sig.ArgNames, arg.Name)
	}
	sig.RetType = &nodes.AnyType{}
	if fn.Returns != nil {
		sig.RetType = v.typ(fn.Returns)
	}
	fn.Type = sig

	f := &frame{kind: funcFrame, fn: fn, info: info, locals: nodes.SymbolTable{}}
	for i, arg := range fn.Args {
		t := sig.ArgTypes[i]
		if arg.Kind == nodes.ArgStar || arg.Kind == nodes.ArgStar2 {
			t = &nodes.AnyType{}
		}
		arg.Var = &nodes.Var{Context: arg.Context, DefName: arg.Name, FullName: arg.Name, Type: t, IsReady: true}
		f.locals[arg.Name] = &nodes.SymbolTableNode{Kind: nodes.LDEF, Node: arg.Var}
		if i == 0 && info != nil && !fn.IsDecorated {
			f.self = arg.Var
		}
	}
	defer v.sc.push(f)()
	v.block(fn.Body.Body)
}

func (v *visitor) assignment(s *nodes.AssignmentStmt) {
	if s.Rvalue != nil {
		v.expr(s.Rvalue)
	}
	var typ nodes.Type
	if s.Annotation != nil {
		typ = v.typ(s.Annotation)
		s.Type = typ
	}
	if s.Var != nil && s.Annotation == nil && v.aliasDef(s) {
		return
	}
	v.lvalue(s, s.Lvalue, typ)
}

// aliasDef turns a module-level X = SomeClass into a type alias and
// T = TypeVar('T') into a type variable.
func (v *visitor) aliasDef(s *nodes.AssignmentStmt) bool {
	lv, ok := s.Lvalue.(*nodes.NameExpr)
	if !ok || len(v.sc.frames) != 0 {
		return false
	}
	if sym, ok := v.mod.Names[lv.Name]; !ok || sym.Node != s.Var {
		return false
	}
	var node nodes.SymbolNode
	switch r := s.Rvalue.(type) {
	case *nodes.NameExpr, *nodes.MemberExpr:
		switch target := boundNode(r).(type) {
		case *nodes.TypeInfo:
			node = &nodes.TypeAlias{Context: s.Context, DefName: lv.Name, FullName: s.Var.FullName, Target: &nodes.Instance{Info: target}}
		case *nodes.TypeAlias:
			node = &nodes.TypeAlias{Context: s.Context, DefName: lv.Name, FullName: s.Var.FullName, Target: target.Target}
		}
	case *nodes.CallExpr:
		if n := boundNode(r.Callee); n != nil && n.Fullname() == "typing.TypeVar" {
			node = &nodes.TypeVarExpr{Context: s.Context, DefName: lv.Name, FullName: s.Var.FullName}
		}
	}
	if node == nil {
		return false
	}
	v.mod.Names[lv.Name] = &nodes.SymbolTableNode{Kind: nodes.GDEF, Node: node, ModulePublic: true}
	s.IsAliasDef = true
	lv.Kind, lv.Node, lv.Fullname = nodes.GDEF, node, node.Fullname()
	return true
}

// lvalue binds an assignment target. s is nil for loop indexes.
func (v *visitor) lvalue(s *nodes.AssignmentStmt, e nodes.Expression, typ nodes.Type) {
	switch lv := e.(type) {
	case *nodes.NameExpr:
		v.nameLvalue(s, lv, typ)
	case *nodes.MemberExpr:
		v.memberLvalue(s, lv, typ)
	case *nodes.OpaqueExpr:
		for _, c := range lv.Children {
			v.lvalue(nil, c, nil)
		}
	default:
		if e != nil {
			v.expr(e)
		}
	}
}

func (v *visitor) nameLvalue(s *nodes.AssignmentStmt, lv *nodes.NameExpr, typ nodes.Type) {
	table, kind := v.sc.table()
	sym, ok := table[lv.Name]
	if !ok {
		// Locals, and the rare global pass 1 could not see.
		vr := &nodes.Var{
			Context:    lv.Context,
			DefName:    lv.Name,
			FullName:   v.sc.qualify(lv.Name),
			Type:       typ,
			IsInferred: typ == nil,
			IsReady:    typ != nil,
		}
		if f := v.sc.top(); f != nil && f.kind == classFrame {
			vr.Info = f.info
		}
		sym = &nodes.SymbolTableNode{Kind: kind, Node: vr, ModulePublic: kind != nodes.LDEF}
		table[lv.Name] = sym
	}
	if typ != nil && s != nil && s.Var != nil && sym.Node == s.Var {
		s.Var.Type = typ
		s.Var.IsReady = true
	}
	lv.Kind, lv.Node, lv.Fullname = sym.Kind, sym.Node, sym.Fullname()
}

func (v *visitor) memberLvalue(s *nodes.AssignmentStmt, lv *nodes.MemberExpr, typ nodes.Type) {
	v.expr(lv.Expr)
	f := v.sc.function()
	if f == nil || f.self == nil || v.sc.classScope() {
		return
	}
	base, ok := lv.Expr.(*nodes.NameExpr)
	if !ok || base.Node != f.self {
		return
	}
	info := f.info
	if _, ok := info.Names[lv.Name]; ok {
		return
	}
	if typ == nil && s != nil {
		typ = v.literalType(s.Rvalue)
	}
	if typ == nil {
		typ = &nodes.AnyType{}
	}
	vr := &nodes.Var{
		Context:  lv.Context,
		DefName:  lv.Name,
		FullName: info.FullName + "." + lv.Name,
		Type:     typ,
		Info:     info,
		IsReady:  true,
	}
	info.Names[lv.Name] = &nodes.SymbolTableNode{Kind: nodes.MDEF, Node: vr, ModulePublic: true}
	lv.Kind, lv.Node, lv.Fullname, lv.IsNewDef = nodes.MDEF, vr, vr.FullName, true
}

// literalType is the type of a literal expression, or nil.
func (v *visitor) literalType(e nodes.Expression) nodes.Type {
	var name string
	switch e.(type) {
	case *nodes.IntExpr:
		name = "int"
	case *nodes.FloatExpr:
		name = "float"
	case *nodes.StrExpr:
		name = "str"
	case *nodes.BoolExpr:
		name = "bool"
	default:
		return nil
	}
	if inst := v.builtinInstance(name); inst != nil {
		return inst
	}
	return nil
}

func (v *visitor) builtinInstance(name string) *nodes.Instance {
	b := v.a.builtins()
	if b == nil {
		return nil
	}
	sym, ok := b.Names[name]
	if !ok {
		return nil
	}
	info, ok := sym.Node.(*nodes.TypeInfo)
	if !ok {
		return nil
	}
	return &nodes.Instance{Info: info}
}

// bind adds name to the innermost scope.
func (v *visitor) bind(name string, kind nodes.Kind, node nodes.SymbolNode, imported bool) {
	table, scopeKind := v.sc.table()
	if kind != nodes.ModuleRef {
		kind = scopeKind
	}
	table[name] = &nodes.SymbolTableNode{Kind: kind, Node: node, ModulePublic: true, Imported: imported}
}

// bindUnknown binds name to a variable of type Any so later references do
// not cascade into more errors.
func (v *visitor) bindUnknown(name string, line int) {
	vr := &nodes.Var{
		Context:  nodes.Context{LineNo: line},
		DefName:  name,
		FullName: v.sc.qualify(name),
		Type:     &nodes.AnyType{},
		IsReady:  true,
	}
	v.bind(name, nodes.GDEF, vr, true)
}

func (v *visitor) importModules(s *nodes.Import) {
	for _, item := range s.IDs {
		v.linkPackages(item.ID)
		mod, found := v.a.modules[item.ID]
		if !found {
			v.fail(s.Line(), "Cannot find module named '%s'", item.ID)
		}
		if item.As != "" {
			if found {
				v.bind(item.As, nodes.ModuleRef, mod, true)
			} else {
				v.bindUnknown(item.As, s.Line())
			}
			continue
		}
		top, _, _ := strings.Cut(item.ID, ".")
		if topMod, ok := v.a.modules[top]; ok {
			v.bind(top, nodes.ModuleRef, topMod, true)
		} else {
			v.bindUnknown(top, s.Line())
		}
	}
}

func (v *visitor) importFrom(s *nodes.ImportFrom) {
	v.linkPackages(s.ID)
	mod, ok := v.a.modules[s.ID]
	if !ok {
		v.fail(s.Line(), "Cannot find module named '%s'", s.ID)
		for _, n := range s.Names {
			v.bindUnknown(n.LocalName(), s.Line())
		}
		return
	}
	for _, n := range s.Names {
		if sym, ok := mod.Names[n.Name]; ok && sym.Node != nil {
			v.bind(n.LocalName(), sym.Kind, sym.Node, true)
			continue
		}
		if sub, ok := v.a.modules[s.ID+"."+n.Name]; ok {
			v.bind(n.LocalName(), nodes.ModuleRef, sub, true)
			continue
		}
		v.fail(s.Line(), "Module '%s' has no attribute '%s'", s.ID, n.Name)
		v.bindUnknown(n.LocalName(), s.Line())
	}
}

func (v *visitor) importAll(s *nodes.ImportAll) {
	s.Bound = nil
	mod, ok := v.a.modules[s.ID]
	if !ok {
		v.fail(s.Line(), "Cannot find module named '%s'", s.ID)
		return
	}
	for _, name := range mod.Names.Keys() {
		if strings.HasPrefix(name, "_") {
			continue
		}
		sym := mod.Names[name]
		v.bind(name, sym.Kind, sym.Node, true)
		s.Bound = append(s.Bound, name)
	}
}

// linkPackages makes every package prefix of id expose its loaded
// submodule, as the import system does when a submodule is imported.
func (v *visitor) linkPackages(id string) {
	parts := strings.Split(id, ".")
	for i := range parts {
		LinkSubmodules(v.a.modules, strings.Join(parts[:i+1], "."))
	}
}

func (v *visitor) expr(e nodes.Expression) {
	switch e := e.(type) {
	case *nodes.NameExpr:
		sym := v.sc.lookup(e.Name, v.a.builtins())
		if sym == nil {
			v.fail(e.Line(), "Name '%s' is not defined", e.Name)
			return
		}
		e.Kind, e.Node, e.Fullname = sym.Kind, sym.Node, sym.Fullname()
	case *nodes.MemberExpr:
		v.expr(e.Expr)
		mod, ok := boundNode(e.Expr).(*nodes.Module)
		if !ok {
			return
		}
		if sym, ok := mod.Names[e.Name]; ok && sym.Node != nil {
			e.Kind, e.Node, e.Fullname = sym.Kind, sym.Node, sym.Fullname()
			return
		}
		if sub, ok := v.a.modules[mod.ID+"."+e.Name]; ok {
			e.Kind, e.Node, e.Fullname = nodes.ModuleRef, sub, sub.ID
		}
	case *nodes.CallExpr:
		v.expr(e.Callee)
		for _, arg := range e.Args {
			v.expr(arg)
		}
	case *nodes.OpExpr:
		v.expr(e.Left)
		v.expr(e.Right)
	case *nodes.OpaqueExpr:
		for _, c := range e.Children {
			v.expr(c)
		}
	}
}

// boundNode returns the definition a name or member expression is bound to.
func boundNode(e nodes.Expression) nodes.SymbolNode {
	switch e := e.(type) {
	case *nodes.NameExpr:
		return e.Node
	case *nodes.MemberExpr:
		return e.Node
	}
	return nil
}

// dottedName renders a name or member expression as a.b.c.
func dottedName(e nodes.Expression) (string, bool) {
	switch e := e.(type) {
	case *nodes.NameExpr:
		return e.Name, true
	case *nodes.MemberExpr:
		base, ok := dottedName(e.Expr)
		if !ok {
			return "", false
		}
		return base + "." + e.Name, true
	}
	return "", false
}
