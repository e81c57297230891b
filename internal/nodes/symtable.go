package nodes

import (
	"fmt"
	"maps"
	"slices"
)

// Kind is the scope a symbol table entry (or a bound name) belongs to.
type Kind int

const (
	Unbound   Kind = iota
	LDEF           // local to a function
	GDEF           // module global
	MDEF           // class member
	ModuleRef      // reference to a module
)

// String returns the conventional short name of the kind.
func (k Kind) String() string {
	switch k {
	case LDEF:
		return "Ldef"
	case GDEF:
		return "Gdef"
	case MDEF:
		return "Mdef"
	case ModuleRef:
		return "ModuleRef"
	default:
		return "Unbound"
	}
}

// EntryKind is the variant of the definition a symbol table entry refers to.
type EntryKind int

const (
	EntryModule EntryKind = iota
	EntryClass
	EntryFunc
	EntryVar
	EntryAlias
	EntryTypeVar
)

// String returns the variant name.
func (k EntryKind) String() string {
	switch k {
	case EntryModule:
		return "module"
	case EntryClass:
		return "class"
	case EntryFunc:
		return "func"
	case EntryVar:
		return "var"
	case EntryAlias:
		return "alias"
	case EntryTypeVar:
		return "typevar"
	default:
		return fmt.Sprintf("EntryKind(%d)", int(k))
	}
}

// SymbolTableNode is one entry of a symbol table.
type SymbolTableNode struct {
	Kind         Kind
	Node         SymbolNode
	ModulePublic bool
	// Imported marks entries bound by an import statement during pass 2.
	Imported bool
}

// EntryKind classifies the referenced definition. It panics on a node
// type outside the closed SymbolNode set.
func (n *SymbolTableNode) EntryKind() EntryKind {
	switch n.Node.(type) {
	case *Module:
		return EntryModule
	case *TypeInfo:
		return EntryClass
	case *FuncDef, *Decorator:
		return EntryFunc
	case *Var:
		return EntryVar
	case *TypeAlias:
		return EntryAlias
	case *TypeVarExpr:
		return EntryTypeVar
	default:
		panic(fmt.Sprintf("nodes: unexpected symbol node %T", n.Node))
	}
}

// Fullname returns the fully qualified name of the referenced node.
func (n *SymbolTableNode) Fullname() string {
	if n.Node == nil {
		return ""
	}
	return n.Node.Fullname()
}

// SymbolTable maps unqualified names to entries.
type SymbolTable map[string]*SymbolTableNode

// Keys returns the names in sorted order.
func (t SymbolTable) Keys() []string {
	return slices.Sorted(maps.Keys(t))
}

// Copy returns a shallow copy: a new map holding the same entries.
func (t SymbolTable) Copy() SymbolTable {
	c := make(SymbolTable, len(t))
	maps.Copy(c, t)
	return c
}

// implicitModuleAttrs are bound in every module symbol table.
var implicitModuleAttrs = []string{"__name__", "__doc__", "__file__", "__package__"}

// ImplicitModuleAttrs returns the names every module defines implicitly.
func ImplicitModuleAttrs() []string {
	return slices.Clone(implicitModuleAttrs)
}

// IsImplicitModuleAttr reports whether name is implicitly defined in every
// module (or is the __builtins__ reference).
func IsImplicitModuleAttr(name string) bool {
	return name == "__builtins__" || slices.Contains(implicitModuleAttrs, name)
}
