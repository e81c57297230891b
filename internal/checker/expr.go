package checker

import (
	"fmt"

	"github.com/jward/finegrain/internal/nodes"
)

var binaryMethods = map[string]string{
	"+":  "__add__",
	"-":  "__sub__",
	"*":  "__mul__",
	"/":  "__truediv__",
	"//": "__floordiv__",
	"%":  "__mod__",
	"<":  "__lt__",
	"<=": "__le__",
	">":  "__gt__",
	">=": "__ge__",
	"==": "__eq__",
	"!=": "__ne__",
}

// expr infers the type of e and records it.
func (s *state) expr(e nodes.Expression) nodes.Type {
	t := s.infer(e)
	if t == nil {
		t = &nodes.AnyType{}
	}
	s.types[e] = t
	return t
}

func (s *state) infer(e nodes.Expression) nodes.Type {
	switch e := e.(type) {
	case *nodes.IntExpr:
		return s.builtin("int")
	case *nodes.FloatExpr:
		return s.builtin("float")
	case *nodes.StrExpr:
		return s.builtin("str")
	case *nodes.BoolExpr:
		return s.builtin("bool")
	case *nodes.NoneExpr:
		return &nodes.NoneType{}
	case *nodes.NameExpr:
		return s.nodeType(e.Node)
	case *nodes.MemberExpr:
		return s.member(e)
	case *nodes.CallExpr:
		return s.call(e)
	case *nodes.OpExpr:
		return s.op(e)
	case *nodes.OpaqueExpr:
		for _, c := range e.Children {
			s.expr(c)
		}
	}
	return &nodes.AnyType{}
}

func (s *state) varType(v *nodes.Var) nodes.Type {
	if v.Type == nil || !v.IsReady {
		return &nodes.AnyType{}
	}
	return v.Type
}

// nodeType is the type of a reference to a definition used as a value.
func (s *state) nodeType(n nodes.SymbolNode) nodes.Type {
	switch n := n.(type) {
	case *nodes.Var:
		return s.varType(n)
	case *nodes.FuncDef:
		if n.Type != nil {
			return n.Type
		}
	case *nodes.TypeInfo:
		return constructor(n)
	case *nodes.TypeAlias:
		if inst, ok := n.Target.(*nodes.Instance); ok {
			return constructor(inst.Info)
		}
	}
	return &nodes.AnyType{}
}

// constructor is the type of a class object: its __init__ signature
// without self, returning an instance.
func constructor(info *nodes.TypeInfo) *nodes.CallableType {
	ret := &nodes.Instance{Info: info}
	if sym := info.Get("__init__"); sym != nil {
		if init, ok := sym.Node.(*nodes.FuncDef); ok && init.Type != nil && len(init.Type.ArgTypes) > 0 {
			c := bind(init.Type)
			c.RetType = ret
			c.Name = info.DefName
			c.Owner = ""
			c.IsConstructor = true
			return c
		}
	}
	return &nodes.CallableType{
		ArgTypes:      []nodes.Type{&nodes.AnyType{}, &nodes.AnyType{}},
		ArgKinds:      []nodes.ArgKind{nodes.ArgStar, nodes.ArgStar2},
		ArgNames:      []string{"args", "kwargs"},
		RetType:       ret,
		Name:          info.DefName,
		IsConstructor: true,
	}
}

// bind drops the self argument of a method signature.
func bind(c *nodes.CallableType) *nodes.CallableType {
	b := *c
	if len(c.ArgTypes) > 0 {
		b.ArgTypes = c.ArgTypes[1:]
		b.ArgKinds = c.ArgKinds[1:]
		b.ArgNames = c.ArgNames[1:]
	}
	return &b
}

// memberType is the type of a class member accessed through an instance
// (bound) or through the class object.
func (s *state) memberType(sym *nodes.SymbolTableNode, bound bool) nodes.Type {
	switch n := sym.Node.(type) {
	case *nodes.FuncDef:
		if n.Type == nil {
			return &nodes.AnyType{}
		}
		if bound {
			return bind(n.Type)
		}
		return n.Type
	default:
		return s.nodeType(n)
	}
}

func (s *state) member(e *nodes.MemberExpr) nodes.Type {
	base := s.expr(e.Expr)
	if e.Node != nil {
		return s.nodeType(e.Node)
	}
	switch n := boundNode(e.Expr).(type) {
	case *nodes.Module:
		s.fail(e.Line(), "Module has no attribute \"%s\"", e.Name)
		return &nodes.AnyType{}
	case *nodes.TypeInfo:
		sym := n.Get(e.Name)
		if sym == nil {
			s.fail(e.Line(), "\"Type[%s]\" has no attribute \"%s\"", n.DefName, e.Name)
			return &nodes.AnyType{}
		}
		return s.memberType(sym, false)
	}
	switch b := base.(type) {
	case *nodes.Instance:
		sym := b.Info.Get(e.Name)
		if sym == nil {
			s.fail(e.Line(), "\"%s\" has no attribute \"%s\"", b.Info.DefName, e.Name)
			return &nodes.AnyType{}
		}
		return s.memberType(sym, true)
	case *nodes.NoneType:
		s.fail(e.Line(), "\"None\" has no attribute \"%s\"", e.Name)
	}
	return &nodes.AnyType{}
}

func (s *state) call(e *nodes.CallExpr) nodes.Type {
	callee := s.expr(e.Callee)
	args := make([]nodes.Type, len(e.Args))
	for i, a := range e.Args {
		args[i] = s.expr(a)
	}
	switch c := callee.(type) {
	case *nodes.CallableType:
		s.checkCall(e, c, args)
		if c.RetType == nil {
			return &nodes.AnyType{}
		}
		return c.RetType
	case *nodes.Instance:
		if sym := c.Info.Get("__call__"); sym != nil {
			if t, ok := s.memberType(sym, true).(*nodes.CallableType); ok {
				s.checkCall(e, t, args)
				return t.RetType
			}
			return &nodes.AnyType{}
		}
		s.fail(e.Line(), "\"%s\" not callable", c.Info.DefName)
	case *nodes.NoneType:
		s.fail(e.Line(), "\"None\" not callable")
	}
	return &nodes.AnyType{}
}

func calleeName(c *nodes.CallableType) string {
	if c.Owner != "" && !c.IsConstructor {
		return fmt.Sprintf("%q of %q", c.Name, c.Owner)
	}
	return fmt.Sprintf("%q", c.Name)
}

// checkCall matches actual arguments to formal parameters.
func (s *state) checkCall(e *nodes.CallExpr, c *nodes.CallableType, args []nodes.Type) {
	name := calleeName(c)
	matched := make([]bool, len(c.ArgKinds))
	star, star2 := -1, -1
	for j, k := range c.ArgKinds {
		switch k {
		case nodes.ArgStar:
			star = j
		case nodes.ArgStar2:
			star2 = j
		}
	}

	pos := 0
	for i, at := range args {
		kw := ""
		if i < len(e.ArgNames) {
			kw = e.ArgNames[i]
		}
		if kw == "" {
			for pos < len(c.ArgKinds) && (c.ArgKinds[pos] == nodes.ArgPos || c.ArgKinds[pos] == nodes.ArgOpt) && matched[pos] {
				pos++
			}
			j := -1
			if pos < len(c.ArgKinds) && (c.ArgKinds[pos] == nodes.ArgPos || c.ArgKinds[pos] == nodes.ArgOpt) {
				j = pos
				matched[j] = true
				pos++
			} else if star >= 0 {
				j = star
			}
			if j < 0 {
				s.fail(e.Line(), "Too many arguments for %s", name)
				return
			}
			if !nodes.IsSubtype(at, c.ArgTypes[j]) {
				s.fail(e.Args[i].Line(), "Argument %d to %s has incompatible type \"%s\"; expected \"%s\"", i+1, name, at, c.ArgTypes[j])
			}
			continue
		}

		j := -1
		for k, n := range c.ArgNames {
			if n == kw && (c.ArgKinds[k] == nodes.ArgPos || c.ArgKinds[k] == nodes.ArgOpt) {
				j = k
				break
			}
		}
		switch {
		case j >= 0 && matched[j]:
			s.fail(e.Line(), "%s gets multiple values for keyword argument \"%s\"", name, kw)
			continue
		case j >= 0:
			matched[j] = true
		case star2 >= 0:
			j = star2
		default:
			s.fail(e.Line(), "Unexpected keyword argument \"%s\" for %s", kw, name)
			continue
		}
		if !nodes.IsSubtype(at, c.ArgTypes[j]) {
			s.fail(e.Args[i].Line(), "Argument \"%s\" to %s has incompatible type \"%s\"; expected \"%s\"", kw, name, at, c.ArgTypes[j])
		}
	}

	for j, k := range c.ArgKinds {
		if k == nodes.ArgPos && !matched[j] {
			s.fail(e.Line(), "Too few arguments for %s", name)
			return
		}
	}
}

func (s *state) op(e *nodes.OpExpr) nodes.Type {
	lt := s.expr(e.Left)
	rt := s.expr(e.Right)
	switch e.Op {
	case "in", "not in", "is", "is not":
		return s.builtin("bool")
	}
	method, ok := binaryMethods[e.Op]
	if !ok {
		return &nodes.AnyType{}
	}
	if isAny(lt) || isAny(rt) {
		return &nodes.AnyType{}
	}

	li, lok := lt.(*nodes.Instance)
	if lok {
		if ret, ok := operatorResult(li.Info.Get(method), rt); ok {
			return ret
		}
	}
	if ri, ok := rt.(*nodes.Instance); ok {
		if ret, ok := operatorResult(ri.Info.Get("__r"+method[2:]), lt); ok {
			return ret
		}
	}
	if !lok || li.Info.Get(method) == nil {
		s.fail(e.Line(), "Unsupported left operand type for %s (\"%s\")", e.Op, lt)
		return &nodes.AnyType{}
	}
	s.fail(e.Line(), "Unsupported operand types for %s (\"%s\" and \"%s\")", e.Op, lt, rt)
	return &nodes.AnyType{}
}

// operatorResult applies a binary operator method to an operand type.
func operatorResult(sym *nodes.SymbolTableNode, operand nodes.Type) (nodes.Type, bool) {
	if sym == nil {
		return nil, false
	}
	fn, ok := sym.Node.(*nodes.FuncDef)
	if !ok || fn.Type == nil {
		return &nodes.AnyType{}, true
	}
	if len(fn.Type.ArgTypes) < 2 {
		return nil, false
	}
	if !nodes.IsSubtype(operand, fn.Type.ArgTypes[1]) {
		return nil, false
	}
	if fn.Type.RetType == nil {
		return &nodes.AnyType{}, true
	}
	return fn.Type.RetType, true
}

func isAny(t nodes.Type) bool {
	_, ok := t.(*nodes.AnyType)
	return ok
}

// boundNode returns the definition a name or member expression refers to.
func boundNode(e nodes.Expression) nodes.SymbolNode {
	switch e := e.(type) {
	case *nodes.NameExpr:
		return e.Node
	case *nodes.MemberExpr:
		return e.Node
	}
	return nil
}
