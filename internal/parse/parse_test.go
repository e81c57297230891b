package parse

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/finegrain/internal/diag"
	"github.com/jward/finegrain/internal/nodes"
)

func mustParse(t *testing.T, id, path, src string) *nodes.Module {
	t.Helper()
	mod, err := Parse(context.Background(), id, path, []byte(src))
	require.NoError(t, err)
	return mod
}

func TestParse_Definitions(t *testing.T) {
	mod := mustParse(t, "m", "m.py", `
def f(x: int, y=1, *args, **kw) -> str:
    return "s"

class C(Base):
    attr: int = 0

    def meth(self) -> None:
        pass
`)
	require.Len(t, mod.Defs, 2)

	f, ok := mod.Defs[0].(*nodes.FuncDef)
	require.True(t, ok)
	assert.Equal(t, "f", f.DefName)
	assert.Equal(t, 2, f.Line())
	require.Len(t, f.Args, 4)
	assert.Equal(t, "x", f.Args[0].Name)
	assert.Equal(t, nodes.ArgPos, f.Args[0].Kind)
	assert.IsType(t, &nodes.NameExpr{}, f.Args[0].Annotation)
	assert.Equal(t, nodes.ArgOpt, f.Args[1].Kind)
	assert.Equal(t, nodes.ArgStar, f.Args[2].Kind)
	assert.Equal(t, "args", f.Args[2].Name)
	assert.Equal(t, nodes.ArgStar2, f.Args[3].Kind)
	assert.Equal(t, "kw", f.Args[3].Name)
	require.IsType(t, &nodes.NameExpr{}, f.Returns)
	assert.Equal(t, "str", f.Returns.(*nodes.NameExpr).Name)

	cls, ok := mod.Defs[1].(*nodes.ClassDef)
	require.True(t, ok)
	assert.Equal(t, "C", cls.DefName)
	require.Len(t, cls.BaseExprs, 1)
	require.Len(t, cls.Defs.Body, 2)
	attr, ok := cls.Defs.Body[0].(*nodes.AssignmentStmt)
	require.True(t, ok)
	assert.NotNil(t, attr.Annotation)
	assert.IsType(t, &nodes.IntExpr{}, attr.Rvalue)
	assert.IsType(t, &nodes.FuncDef{}, cls.Defs.Body[1])
}

func TestParse_Imports(t *testing.T) {
	mod := mustParse(t, "pkg.mod", "pkg/mod.py", `
import a.b as c, d
from . import sibling
from ..up import thing as other
from e import *

def f():
    import g
`)
	require.Len(t, mod.Imports, 5)

	imp := mod.Imports[0].(*nodes.Import)
	assert.Equal(t, []nodes.ImportedModule{{ID: "a.b", As: "c"}, {ID: "d"}}, imp.IDs)
	assert.True(t, imp.TopLevel())

	rel := mod.Imports[1].(*nodes.ImportFrom)
	assert.Equal(t, "pkg", rel.ID)
	assert.Equal(t, []nodes.ImportedName{{Name: "sibling"}}, rel.Names)

	up := mod.Imports[2].(*nodes.ImportFrom)
	assert.Equal(t, "up", up.ID)
	assert.Equal(t, "other", up.Names[0].LocalName())

	all := mod.Imports[3].(*nodes.ImportAll)
	assert.Equal(t, "e", all.ID)

	nested := mod.Imports[4].(*nodes.Import)
	assert.False(t, nested.TopLevel())
}

func TestParse_Expressions(t *testing.T) {
	mod := mustParse(t, "m", "m.py", `x = obj.attr(1, name="v") + -2.5
`)
	require.Len(t, mod.Defs, 1)
	s := mod.Defs[0].(*nodes.AssignmentStmt)
	op, ok := s.Rvalue.(*nodes.OpExpr)
	require.True(t, ok)
	assert.Equal(t, "+", op.Op)

	call, ok := op.Left.(*nodes.CallExpr)
	require.True(t, ok)
	assert.Equal(t, []string{"", "name"}, call.ArgNames)
	member := call.Callee.(*nodes.MemberExpr)
	assert.Equal(t, "attr", member.Name)
	assert.Equal(t, "v", call.Args[1].(*nodes.StrExpr).Value)

	assert.Equal(t, -2.5, op.Right.(*nodes.FloatExpr).Value)
}

func TestParse_SyntaxErrorIsBlocking(t *testing.T) {
	_, err := Parse(context.Background(), "a", "a.py", []byte("def f(:\n    pass\n"))
	require.Error(t, err)

	var ce *diag.CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "a", ce.Module)
	require.Len(t, ce.Messages, 1)
	assert.Contains(t, ce.Messages[0], "a.py:1: error: invalid syntax")
}

func TestResolveRelative(t *testing.T) {
	tests := []struct {
		id        string
		isPackage bool
		rel       int
		name      string
		want      string
	}{
		{"pkg.mod", false, 0, "x", "x"},
		{"pkg.mod", false, 1, "", "pkg"},
		{"pkg.mod", false, 1, "other", "pkg.other"},
		{"pkg", true, 1, "sub", "pkg.sub"},
		{"pkg.sub.mod", false, 2, "", "pkg"},
		{"mod", false, 1, "x", "x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolveRelative(tt.id, tt.isPackage, tt.rel, tt.name), "%+v", tt)
	}
}

func TestIsPackagePath(t *testing.T) {
	assert.True(t, IsPackagePath("pkg/__init__.py"))
	assert.True(t, IsPackagePath("__init__.py"))
	assert.False(t, IsPackagePath("pkg/mod.py"))
}
