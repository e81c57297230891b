// Package nodes defines the syntax tree, symbol tables and types shared by
// the parser, the semantic analyzer, the type checker and the fine-grained
// update machinery.
//
// # Identity
//
// Definition nodes (modules, functions, classes, variables) are referenced
// by pointer from other modules once semantic analysis binds a name to
// them. Those pointers are the identities the AST merge step preserves:
// after an update a changed definition keeps its address and only its
// contents are replaced.
//
// # Ownership
//
// A Module owns its statements and its symbol table. Symbol table entries
// may point at nodes owned by other modules (imports); such entries are
// cross references and are never mutated by the importing module.
package nodes

// Node is implemented by every syntax tree node.
type Node interface {
	Line() int
}

// Statement is a node that can appear in a block.
type Statement interface {
	Node
	stmtNode()
}

// Expression is a node that produces a value.
type Expression interface {
	Node
	exprNode()
}

// SymbolNode is a node a symbol table entry can refer to. The set of
// implementations is closed: Module, FuncDef, Decorator, TypeInfo, Var,
// TypeAlias and TypeVarExpr.
type SymbolNode interface {
	Node
	Name() string
	Fullname() string
	symbolNode()
}

// Context carries the source position of a node.
type Context struct {
	LineNo int
}

// Line returns the 1-based source line of the node.
func (c *Context) Line() int { return c.LineNo }

// Module is the root of a parsed source file.
type Module struct {
	Context
	ID        string
	Path      string
	Defs      []Statement
	Names     SymbolTable
	Imports   []ImportBase
	IsPackage bool
}

func (m *Module) Name() string     { return m.ID }
func (m *Module) Fullname() string { return m.ID }
func (*Module) symbolNode()        {}

// ArgKind describes how an argument is passed.
type ArgKind int

const (
	ArgPos   ArgKind = iota // positional, required
	ArgOpt                  // positional, has a default
	ArgStar                 // *args
	ArgStar2                // **kwargs
)

// Argument is a formal parameter of a function.
type Argument struct {
	Context
	Name       string
	Annotation Expression
	Default    Expression
	Kind       ArgKind
	Var        *Var
}

// FuncDef is a function or method definition.
type FuncDef struct {
	Context
	DefName     string
	FullName    string
	Args        []*Argument
	Returns     Expression
	Type        *CallableType
	Body        *Block
	Info        *TypeInfo
	IsDecorated bool
	EndLine     int
}

func (f *FuncDef) Name() string     { return f.DefName }
func (f *FuncDef) Fullname() string { return f.FullName }
func (*FuncDef) symbolNode()        {}
func (*FuncDef) stmtNode()          {}

// IsMethod reports whether the function is defined in a class body.
func (f *FuncDef) IsMethod() bool { return f.Info != nil }

// Decorator wraps a decorated function definition.
type Decorator struct {
	Context
	Func       *FuncDef
	Decorators []Expression
	Var        *Var
}

func (d *Decorator) Name() string     { return d.Func.Name() }
func (d *Decorator) Fullname() string { return d.Func.Fullname() }
func (*Decorator) symbolNode()        {}
func (*Decorator) stmtNode()          {}

// ClassDef is a class statement. Its semantic information lives in Info.
type ClassDef struct {
	Context
	DefName   string
	FullName  string
	BaseExprs []Expression
	Defs      *Block
	Info      *TypeInfo
}

func (*ClassDef) stmtNode() {}

// TypeInfo is the semantic representation of a class.
type TypeInfo struct {
	Context
	DefName    string
	FullName   string
	ModuleName string
	Defn       *ClassDef
	Names      SymbolTable
	Bases      []*Instance
	MRO        []*TypeInfo
}

func (t *TypeInfo) Name() string     { return t.DefName }
func (t *TypeInfo) Fullname() string { return t.FullName }
func (*TypeInfo) symbolNode()        {}

// Get looks a member up through the MRO. The class itself is consulted
// first even when the MRO has not been computed yet.
func (t *TypeInfo) Get(name string) *SymbolTableNode {
	if sym, ok := t.Names[name]; ok {
		return sym
	}
	for _, base := range t.MRO {
		if base == t {
			continue
		}
		if sym, ok := base.Names[name]; ok {
			return sym
		}
	}
	return nil
}

// HasBase reports whether fullname appears in the MRO.
func (t *TypeInfo) HasBase(fullname string) bool {
	if t.FullName == fullname {
		return true
	}
	for _, base := range t.MRO {
		if base.FullName == fullname {
			return true
		}
	}
	return false
}

// Var is a variable: module global, class attribute, local or argument.
type Var struct {
	Context
	DefName    string
	FullName   string
	Type       Type
	Info       *TypeInfo
	IsInferred bool
	IsReady    bool
}

func (v *Var) Name() string     { return v.DefName }
func (v *Var) Fullname() string { return v.FullName }
func (*Var) symbolNode()        {}

// TypeAlias is a module-level alias of a class: Alias = SomeClass.
type TypeAlias struct {
	Context
	DefName  string
	FullName string
	Target   Type
}

func (a *TypeAlias) Name() string     { return a.DefName }
func (a *TypeAlias) Fullname() string { return a.FullName }
func (*TypeAlias) symbolNode()        {}

// TypeVarExpr is a type variable declaration: T = TypeVar('T').
type TypeVarExpr struct {
	Context
	DefName  string
	FullName string
}

func (t *TypeVarExpr) Name() string     { return t.DefName }
func (t *TypeVarExpr) Fullname() string { return t.FullName }
func (*TypeVarExpr) symbolNode()        {}
