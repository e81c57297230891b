package semanal

import (
	"context"
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/finegrain/internal/diag"
	"github.com/jward/finegrain/internal/nodes"
	"github.com/jward/finegrain/internal/parse"
)

type source struct {
	id, text string
}

// analyze runs all three passes over the stubs followed by srcs, which
// must be listed dependencies first.
func analyze(t *testing.T, srcs ...source) (map[string]*nodes.Module, *diag.Errors, error) {
	t.Helper()
	modules := map[string]*nodes.Module{}
	errs := diag.NewErrors()
	a := New(modules, errs)

	var all []source
	for _, id := range StubModules {
		data, err := fs.ReadFile(Stubs(), id+".py")
		require.NoError(t, err)
		all = append(all, source{id: id, text: string(data)})
	}
	var order []*nodes.Module
	for _, src := range append(all, srcs...) {
		mod, err := parse.Parse(context.Background(), src.id, src.id+".py", []byte(src.text))
		require.NoError(t, err)
		modules[src.id] = mod
		order = append(order, mod)
	}
	for _, mod := range order {
		a.Pass1(mod)
	}
	for _, mod := range order {
		a.VisitFile(mod)
	}
	return modules, errs, a.Pass3(order...)
}

func TestAnalyze_BindsNames(t *testing.T) {
	modules, errs, err := analyze(t, source{"m", `
class C:
    attr = 1

    def meth(self) -> int:
        return self.attr

def f(c: C) -> C:
    y = len("abc")
    return c

x = f(C())
`})
	require.NoError(t, err)
	assert.Empty(t, errs.Messages())

	m := modules["m"]
	info, ok := m.Names["C"].Node.(*nodes.TypeInfo)
	require.True(t, ok)
	assert.Equal(t, "m.C", info.FullName)
	assert.Equal(t, []string{"m.C", "builtins.object"}, mroNames(info))
	assert.Equal(t, nodes.MDEF, info.Names["attr"].Kind)

	f := m.Names["f"].Node.(*nodes.FuncDef)
	require.NotNil(t, f.Type)
	assert.Equal(t, "def (c: C) -> C", f.Type.String())

	meth := info.Names["meth"].Node.(*nodes.FuncDef)
	assert.Equal(t, "m.C.meth", meth.FullName)
	assert.Equal(t, "C", meth.Type.Owner)
	assert.Same(t, info, meth.Type.ArgTypes[0].(*nodes.Instance).Info)

	assign := m.Defs[2].(*nodes.AssignmentStmt)
	call := assign.Rvalue.(*nodes.CallExpr)
	callee := call.Callee.(*nodes.NameExpr)
	assert.Equal(t, nodes.GDEF, callee.Kind)
	assert.Same(t, f, callee.Node)
	assert.Same(t, info, call.Args[0].(*nodes.CallExpr).Callee.(*nodes.NameExpr).Node)
}

func TestAnalyze_ReportsUndefinedNames(t *testing.T) {
	_, errs, err := analyze(t, source{"m", `
def f() -> None:
    missing()

def f() -> None:
    pass

y = also_missing
`})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"m.py:3: error: Name 'missing' is not defined",
		"m.py:5: error: Name 'f' already defined",
		"m.py:8: error: Name 'also_missing' is not defined",
	}, errs.Messages())
	assert.Equal(t, []string{"m", "m.f"}, errs.Targets())
}

func TestAnalyze_Imports(t *testing.T) {
	modules, errs, err := analyze(t,
		source{"b", `
def f(x: int) -> str:
    return "s"

_private = 1
public = 2
`},
		source{"a", `
import b
import nowhere
from b import f, g
from b import *
`})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"a.py:3: error: Cannot find module named 'nowhere'",
		"a.py:4: error: Module 'b' has no attribute 'g'",
	}, errs.Messages())

	a, b := modules["a"], modules["b"]
	assert.Equal(t, nodes.ModuleRef, a.Names["b"].Kind)
	assert.Same(t, b, a.Names["b"].Node)
	assert.Same(t, b.Names["f"].Node, a.Names["f"].Node)
	assert.True(t, a.Names["f"].Imported)

	unknown := a.Names["g"].Node.(*nodes.Var)
	assert.Equal(t, "a.g", unknown.FullName)
	assert.IsType(t, &nodes.AnyType{}, unknown.Type)

	assert.Contains(t, a.Names, "public")
	assert.NotContains(t, a.Names, "_private")
	star := a.Imports[3].(*nodes.ImportAll)
	assert.Contains(t, star.Bound, "public")
}

func TestAnalyze_SelfAttributes(t *testing.T) {
	modules, errs, err := analyze(t, source{"m", `
class C:
    def __init__(self) -> None:
        self.count = 0
        self.name: str = "n"
        self.other = make()

def make():
    return 1
`})
	require.NoError(t, err)
	assert.Empty(t, errs.Messages())

	info := modules["m"].Names["C"].Node.(*nodes.TypeInfo)
	count := info.Names["count"].Node.(*nodes.Var)
	assert.Equal(t, "m.C.count", count.FullName)
	assert.Equal(t, "int", count.Type.String())
	assert.Equal(t, "str", info.Names["name"].Node.(*nodes.Var).Type.String())
	assert.Equal(t, "Any", info.Names["other"].Node.(*nodes.Var).Type.String())

	init := info.Names["__init__"].Node.(*nodes.FuncDef)
	lv := init.Body.Body[0].(*nodes.AssignmentStmt).Lvalue.(*nodes.MemberExpr)
	assert.True(t, lv.IsNewDef)
	assert.Same(t, count, lv.Node)
}

func TestAnalyze_AliasesAndTypeVars(t *testing.T) {
	modules, errs, err := analyze(t, source{"m", `
from typing import TypeVar, Any

class C:
    pass

Alias = C
T = TypeVar('T')

def f(x: Alias, y: T, z: Any) -> None:
    pass
`})
	require.NoError(t, err)
	assert.Empty(t, errs.Messages())

	m := modules["m"]
	alias, ok := m.Names["Alias"].Node.(*nodes.TypeAlias)
	require.True(t, ok)
	assert.Equal(t, "C", alias.Target.String())
	assert.IsType(t, &nodes.TypeVarExpr{}, m.Names["T"].Node)

	f := m.Names["f"].Node.(*nodes.FuncDef)
	assert.Equal(t, "def (x: C, y: T, z: Any) -> None", f.Type.String())

	stmt := m.Defs[2].(*nodes.AssignmentStmt)
	assert.True(t, stmt.IsAliasDef)
	require.NotNil(t, stmt.Var)
}

func TestPass3_DiamondMRO(t *testing.T) {
	modules, _, err := analyze(t, source{"m", `
class A: pass
class B(A): pass
class C(A): pass
class D(B, C): pass
`})
	require.NoError(t, err)
	d := modules["m"].Names["D"].Node.(*nodes.TypeInfo)
	assert.Equal(t, []string{"m.D", "m.B", "m.C", "m.A", "builtins.object"}, mroNames(d))
}

func TestPass3_Blockers(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "cycle",
			src:  "class A(B): pass\nclass B(A): pass\n",
			want: "m.py:1: error: Cycle in inheritance hierarchy",
		},
		{
			name: "inconsistent",
			src:  "class A: pass\nclass B(A): pass\nclass C(A, B): pass\n",
			want: `m.py:3: error: Cannot determine consistent method resolution order (MRO) for "C"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := analyze(t, source{"m", tt.src})
			var ce *diag.CompileError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, "m", ce.Module)
			assert.Equal(t, []string{tt.want}, ce.Messages)
		})
	}
}

func TestRefreshPartial_RebindsFunction(t *testing.T) {
	modules, errs, err := analyze(t, source{"m", `
def g() -> int:
    return 1

def f() -> int:
    return g()
`})
	require.NoError(t, err)
	m := modules["m"]
	f := m.Names["f"].Node.(*nodes.FuncDef)
	ret := f.Body.Body[0].(*nodes.ReturnStmt).Expr.(*nodes.CallExpr).Callee.(*nodes.NameExpr)
	ret.Unbind()
	f.Type = nil

	a := New(modules, errs)
	a.RefreshPartial(m, f, nil)
	assert.Same(t, m.Names["g"].Node, ret.Node)
	require.NotNil(t, f.Type)
	assert.Equal(t, "int", f.Type.RetType.String())
}

func TestLinkSubmodules(t *testing.T) {
	pkg := &nodes.Module{ID: "pkg", Names: nodes.SymbolTable{}}
	sub := &nodes.Module{ID: "pkg.sub", Names: nodes.SymbolTable{}}
	deep := &nodes.Module{ID: "pkg.sub.deep", Names: nodes.SymbolTable{}}
	modules := map[string]*nodes.Module{"pkg": pkg, "pkg.sub": sub, "pkg.sub.deep": deep}

	LinkSubmodules(modules, "pkg.sub")
	require.Contains(t, pkg.Names, "sub")
	assert.Same(t, sub, pkg.Names["sub"].Node)
	assert.Equal(t, nodes.ModuleRef, pkg.Names["sub"].Kind)
	assert.False(t, pkg.Names["sub"].Imported)
	assert.Same(t, deep, sub.Names["deep"].Node)
}

func TestScope_UnbalancedLeavePanics(t *testing.T) {
	sc := newScope(&nodes.Module{ID: "m", Names: nodes.SymbolTable{}})
	leaveOuter := sc.push(&frame{kind: funcFrame, locals: nodes.SymbolTable{}})
	sc.push(&frame{kind: funcFrame, locals: nodes.SymbolTable{}})
	assert.Panics(t, leaveOuter)
}

func mroNames(info *nodes.TypeInfo) []string {
	var out []string
	for _, t := range info.MRO {
		out = append(out, t.FullName)
	}
	return out
}
