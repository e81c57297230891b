package nodes

// Block is a sequence of statements.
type Block struct {
	Context
	Body []Statement
}

func (*Block) stmtNode() {}

// AssignmentStmt is x = e, x: T = e or x: T.
type AssignmentStmt struct {
	Context
	Lvalue     Expression
	Rvalue     Expression
	Annotation Expression
	Type       Type
	// Var is the variable created for a simple name target in pass 1 of a
	// module or class body. Stripping restores it when pass 2 turned the
	// name into an alias or a type variable.
	Var *Var
	// IsAliasDef is set by pass 2 when the assignment defines a TypeAlias
	// or a TypeVarExpr.
	IsAliasDef bool
}

func (*AssignmentStmt) stmtNode() {}

// ExpressionStmt evaluates an expression for its side effects.
type ExpressionStmt struct {
	Context
	Expr Expression
}

func (*ExpressionStmt) stmtNode() {}

// ReturnStmt returns from a function. Expr is nil for a bare return.
type ReturnStmt struct {
	Context
	Expr Expression
}

func (*ReturnStmt) stmtNode() {}

// PassStmt does nothing.
type PassStmt struct {
	Context
}

func (*PassStmt) stmtNode() {}

// IfStmt is an if/elif chain. Conds[i] guards Bodies[i].
type IfStmt struct {
	Context
	Conds  []Expression
	Bodies []*Block
	Else   *Block
}

func (*IfStmt) stmtNode() {}

// WhileStmt is a while loop.
type WhileStmt struct {
	Context
	Cond Expression
	Body *Block
	Else *Block
}

func (*WhileStmt) stmtNode() {}

// ForStmt is a for loop.
type ForStmt struct {
	Context
	Index Expression
	Iter  Expression
	Body  *Block
	Else  *Block
}

func (*ForStmt) stmtNode() {}

// ImportBase is implemented by the three import statement forms.
type ImportBase interface {
	Statement
	// TopLevel reports whether the import appears at module level.
	TopLevel() bool
	importNode()
}

// ImportedModule is one item of an import statement.
type ImportedModule struct {
	ID string
	As string
}

// Import is import a.b [as c], ...
type Import struct {
	Context
	IDs        []ImportedModule
	IsTopLevel bool
}

func (*Import) stmtNode()        {}
func (*Import) importNode()      {}
func (i *Import) TopLevel() bool { return i.IsTopLevel }

// ImportedName is one name of a from-import.
type ImportedName struct {
	Name string
	As   string
}

// LocalName returns the name the import binds in the importing scope.
func (n ImportedName) LocalName() string {
	if n.As != "" {
		return n.As
	}
	return n.Name
}

// ImportFrom is from m import a [as b], ...
// ID is the absolute module id after relative imports are resolved.
type ImportFrom struct {
	Context
	ID         string
	Relative   int
	Names      []ImportedName
	IsTopLevel bool
}

func (*ImportFrom) stmtNode()        {}
func (*ImportFrom) importNode()      {}
func (i *ImportFrom) TopLevel() bool { return i.IsTopLevel }

// ImportAll is from m import *.
type ImportAll struct {
	Context
	ID         string
	Relative   int
	IsTopLevel bool
	// Bound lists the names the import added in pass 2, so stripping can
	// remove exactly those entries.
	Bound []string
}

func (*ImportAll) stmtNode()        {}
func (*ImportAll) importNode()      {}
func (i *ImportAll) TopLevel() bool { return i.IsTopLevel }
