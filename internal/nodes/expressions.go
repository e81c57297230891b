package nodes

// NameExpr is a bare name. Kind, Node and Fullname are filled in by
// semantic analysis and cleared by stripping.
type NameExpr struct {
	Context
	Name     string
	Kind     Kind
	Node     SymbolNode
	Fullname string
}

func (*NameExpr) exprNode() {}

// Unbind clears the semantic binding of the name.
func (n *NameExpr) Unbind() {
	n.Kind = Unbound
	n.Node = nil
	n.Fullname = ""
}

// MemberExpr is expr.name. For module attributes semantic analysis binds
// Node directly; attributes of instances are left to the type checker.
type MemberExpr struct {
	Context
	Expr     Expression
	Name     string
	Kind     Kind
	Node     SymbolNode
	Fullname string
	// IsNewDef is set on self.name targets that created an attribute.
	IsNewDef bool
}

func (*MemberExpr) exprNode() {}

// Unbind clears the semantic binding of the attribute.
func (m *MemberExpr) Unbind() {
	m.Kind = Unbound
	m.Node = nil
	m.Fullname = ""
	m.IsNewDef = false
}

// CallExpr is callee(args). ArgNames[i] is empty for positional arguments.
type CallExpr struct {
	Context
	Callee   Expression
	Args     []Expression
	ArgNames []string
}

func (*CallExpr) exprNode() {}

// OpExpr is a binary operation.
type OpExpr struct {
	Context
	Op    string
	Left  Expression
	Right Expression
}

func (*OpExpr) exprNode() {}

// IntExpr is an integer literal.
type IntExpr struct {
	Context
	Value int64
}

func (*IntExpr) exprNode() {}

// FloatExpr is a float literal.
type FloatExpr struct {
	Context
	Value float64
}

func (*FloatExpr) exprNode() {}

// StrExpr is a string literal.
type StrExpr struct {
	Context
	Value string
}

func (*StrExpr) exprNode() {}

// BoolExpr is True or False.
type BoolExpr struct {
	Context
	Value bool
}

func (*BoolExpr) exprNode() {}

// NoneExpr is None.
type NoneExpr struct {
	Context
}

func (*NoneExpr) exprNode() {}

// OpaqueExpr is any expression outside the supported subset. Its type is
// Any; Children are still analyzed so names inside it get bound.
type OpaqueExpr struct {
	Context
	Kind     string
	Children []Expression
}

func (*OpaqueExpr) exprNode() {}
