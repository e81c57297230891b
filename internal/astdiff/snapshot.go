// Package astdiff snapshots symbol tables and compares snapshots to find
// the fine-grained names whose externally visible shape changed.
//
// A snapshot is a pure value. It refers to other definitions only by full
// name, never by identity, so a snapshot taken before an update can be
// compared with one taken after the tree was merged or replaced.
package astdiff

import (
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/jward/finegrain/internal/nodes"
)

// Item is the snapshot of one symbol table entry. Members is set for
// classes only and holds the snapshot of the class body.
type Item struct {
	Kind        string
	Fingerprint uint64
	Members     Snapshot
}

// Equal reports whether two items are indistinguishable from outside.
func (i Item) Equal(o Item) bool {
	if i.Kind != o.Kind || i.Fingerprint != o.Fingerprint || len(i.Members) != len(o.Members) {
		return false
	}
	for name, m := range i.Members {
		om, ok := o.Members[name]
		if !ok || !m.Equal(om) {
			return false
		}
	}
	return true
}

// Snapshot maps the unqualified names of a table to their items.
type Snapshot map[string]Item

// Of snapshots table, whose definitions live under prefix (a module id or
// a class full name). The result is never nil.
func Of(prefix string, table nodes.SymbolTable) Snapshot {
	s := make(Snapshot, len(table))
	for name, sym := range table {
		s[name] = snapshotEntry(prefix, sym)
	}
	return s
}

func snapshotEntry(prefix string, sym *nodes.SymbolTableNode) Item {
	var e encoder
	e.field(sym.Kind.String())
	e.field(strconv.FormatBool(sym.ModulePublic))

	node := sym.Node
	if node == nil {
		e.field("unbound")
		return e.item("Unbound", nil)
	}
	if mod, ok := node.(*nodes.Module); ok {
		e.field(mod.ID)
		return e.item("Moduleref", nil)
	}
	// Defined elsewhere: only the identity of the target matters here.
	// Changes to it fire triggers in its own module.
	if full := node.Fullname(); full != "" && prefixOf(full) != prefix {
		e.field(full)
		return e.item("CrossRef", nil)
	}

	switch n := node.(type) {
	case *nodes.FuncDef:
		e.typ(n.Type)
		return e.item("Func", nil)
	case *nodes.Decorator:
		e.typ(n.Func.Type)
		for _, d := range n.Decorators {
			e.field(exprName(d))
		}
		return e.item("Decorator", nil)
	case *nodes.Var:
		e.typ(n.Type)
		return e.item("Var", nil)
	case *nodes.TypeInfo:
		for _, b := range n.Bases {
			e.field(b.Info.FullName)
		}
		e.field("|")
		for _, m := range n.MRO {
			e.field(m.FullName)
		}
		return e.item("TypeInfo", Of(n.FullName, n.Names))
	case *nodes.TypeAlias:
		e.typ(n.Target)
		return e.item("TypeAlias", nil)
	case *nodes.TypeVarExpr:
		e.field(n.FullName)
		return e.item("TypeVar", nil)
	}
	return e.item("Unknown", nil)
}

// prefixOf strips the last component of a dotted name.
func prefixOf(fullname string) string {
	if i := strings.LastIndexByte(fullname, '.'); i >= 0 {
		return fullname[:i]
	}
	return ""
}

// exprName is a stable name for a decorator expression.
func exprName(e nodes.Expression) string {
	switch e := e.(type) {
	case *nodes.NameExpr:
		if e.Node != nil {
			return e.Node.Fullname()
		}
		return e.Name
	case *nodes.MemberExpr:
		if e.Node != nil {
			return e.Node.Fullname()
		}
		return exprName(e.Expr) + "." + e.Name
	case *nodes.CallExpr:
		return exprName(e.Callee) + "()"
	}
	return "?"
}

type encoder struct {
	b strings.Builder
}

func (e *encoder) field(s string) {
	e.b.WriteString(s)
	e.b.WriteByte(0)
}

// typ encodes t structurally; class references are encoded by full name.
func (e *encoder) typ(t nodes.Type) {
	switch t := t.(type) {
	case nil:
		e.field("-")
	case *nodes.Instance:
		e.field("I:" + t.Info.FullName)
	case *nodes.TypeVarType:
		e.field("T:" + t.Fullname)
	case *nodes.CallableType:
		e.field("C(")
		for i, a := range t.ArgTypes {
			e.field(strconv.Itoa(int(t.ArgKinds[i])) + ":" + t.ArgNames[i])
			e.typ(a)
		}
		e.field(")")
		e.typ(t.RetType)
	default:
		e.field(t.String())
	}
}

func (e *encoder) item(kind string, members Snapshot) Item {
	return Item{Kind: kind, Fingerprint: xxh3.HashString(e.b.String()), Members: members}
}
