package nodes

import (
	"strings"
)

// Type is an analyzed type.
type Type interface {
	String() string
	typeNode()
}

// AnyType is the dynamic type; compatible with everything.
type AnyType struct{}

func (*AnyType) String() string { return "Any" }
func (*AnyType) typeNode()      {}

// NoneType is the type of None.
type NoneType struct{}

func (*NoneType) String() string { return "None" }
func (*NoneType) typeNode()      {}

// Instance is an instance of a class. Info is a reference to the class
// definition and therefore subject to identity preservation.
type Instance struct {
	Info *TypeInfo
}

func (i *Instance) String() string { return i.Info.Name() }
func (*Instance) typeNode()        {}

// CallableType is the signature of a function, method or class constructor.
type CallableType struct {
	ArgTypes []Type
	ArgKinds []ArgKind
	ArgNames []string
	RetType  Type
	Name     string
	// Owner is the short name of the class defining a method.
	Owner string
	// IsConstructor is set for the type of a class object used as a value.
	IsConstructor bool
}

func (c *CallableType) String() string {
	var b strings.Builder
	b.WriteString("def (")
	for i, t := range c.ArgTypes {
		if i > 0 {
			b.WriteString(", ")
		}
		switch c.ArgKinds[i] {
		case ArgStar:
			b.WriteString("*")
		case ArgStar2:
			b.WriteString("**")
		}
		if c.ArgNames[i] != "" {
			b.WriteString(c.ArgNames[i])
			b.WriteString(": ")
		}
		b.WriteString(t.String())
		if c.ArgKinds[i] == ArgOpt {
			b.WriteString(" =")
		}
	}
	b.WriteString(") -> ")
	b.WriteString(c.RetType.String())
	return b.String()
}
func (*CallableType) typeNode() {}

// MinArgs returns the number of required positional arguments.
func (c *CallableType) MinArgs() int {
	n := 0
	for _, k := range c.ArgKinds {
		if k == ArgPos {
			n++
		}
	}
	return n
}

// MaxPositional returns the maximum number of positional arguments, or -1
// when *args makes it unbounded.
func (c *CallableType) MaxPositional() int {
	n := 0
	for _, k := range c.ArgKinds {
		switch k {
		case ArgPos, ArgOpt:
			n++
		case ArgStar:
			return -1
		}
	}
	return n
}

// AcceptsKeywords reports whether the callable has a **kwargs parameter.
func (c *CallableType) AcceptsKeywords() bool {
	for _, k := range c.ArgKinds {
		if k == ArgStar2 {
			return true
		}
	}
	return false
}

// TypeVarType is a reference to a type variable.
type TypeVarType struct {
	Name     string
	Fullname string
}

func (t *TypeVarType) String() string { return t.Name }
func (*TypeVarType) typeNode()        {}

// WalkType calls f for t and every type nested inside it.
func WalkType(t Type, f func(Type)) {
	if t == nil {
		return
	}
	f(t)
	if c, ok := t.(*CallableType); ok {
		for _, a := range c.ArgTypes {
			WalkType(a, f)
		}
		WalkType(c.RetType, f)
	}
}
