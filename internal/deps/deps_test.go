package deps

import (
	"context"
	"io/fs"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/finegrain/internal/checker"
	"github.com/jward/finegrain/internal/diag"
	"github.com/jward/finegrain/internal/nodes"
	"github.com/jward/finegrain/internal/parse"
	"github.com/jward/finegrain/internal/semanal"
)

// build analyzes and checks srcs (dependencies first) and returns the
// modules with the shared type map.
func build(t *testing.T, srcs map[string]string, order ...string) (map[string]*nodes.Module, checker.TypeMap) {
	t.Helper()
	modules := map[string]*nodes.Module{}
	errs := diag.NewErrors()
	a := semanal.New(modules, errs)
	for _, id := range semanal.StubModules {
		data, err := fs.ReadFile(semanal.Stubs(), id+".py")
		require.NoError(t, err)
		srcs[id] = string(data)
	}
	order = append(slices.Clone(semanal.StubModules), order...)

	var mods []*nodes.Module
	for _, id := range order {
		mod, err := parse.Parse(context.Background(), id, id+".py", []byte(srcs[id]))
		require.NoError(t, err)
		modules[id] = mod
		mods = append(mods, mod)
	}
	for _, mod := range mods {
		a.Pass1(mod)
	}
	for _, mod := range mods {
		a.VisitFile(mod)
	}
	require.NoError(t, a.Pass3(mods...))
	types := checker.TypeMap{}
	c := checker.New(modules, errs)
	for _, mod := range mods {
		c.CheckFile(context.Background(), mod, types)
	}
	return modules, types
}

func TestOfModule(t *testing.T) {
	modules, types := build(t, map[string]string{
		"b": `
class B:
    def meth(self) -> int:
        return 1

def g() -> int:
    return 1

x = 1
`,
		"a": `
import b
from b import g

class A(b.B):
    attr = b.x

def f(a: A) -> int:
    return a.meth() + g()

def make() -> A:
    return A()
`,
	}, "b", "a")

	m := NewMap()
	m.Merge(OfModule(modules["a"], types))

	edges := []struct{ trigger, target string }{
		{"<b>", "a"},
		{"<b.g>", "a"},
		{"<b.B>", "a.A"},
		{"<b.B>", "<a.A>"},
		{"<b.B.meth>", "<a.A.meth>"},
		{"<b.x>", "a.A"},
		{"<a.A>", "a.f"},
		{"<a.A.meth>", "a.f"},
		{"<b.g>", "a.f"},
		{"<a.A>", "a.make"},
		{"<a.A.__init__>", "a.make"},
	}
	for _, e := range edges {
		assert.True(t, m.Has(e.trigger, e.target), "missing %s -> %s", e.trigger, e.target)
	}
	for _, trigger := range m.Triggers() {
		assert.False(t, strings.HasPrefix(trigger, "<builtins"), trigger)
	}
}

func TestOfModule_ImportForms(t *testing.T) {
	modules, types := build(t, map[string]string{
		"pkg":     "",
		"pkg.sub": "y = 1\n",
		"c":       "z = 1\n",
		"m": `
import pkg.sub
from c import *

def f() -> None:
    pkg.sub.missing
`,
	}, "pkg", "pkg.sub", "c", "m")

	m := NewMap()
	m.Merge(OfModule(modules["m"], types))
	assert.True(t, m.Has("<pkg>", "m"))
	assert.True(t, m.Has("<pkg.sub>", "m"))
	assert.True(t, m.Has("<c>", "m"))
	assert.True(t, m.Has("<c[wildcard]>", "m"))
	assert.True(t, m.Has("<pkg.sub.missing>", "m.f"), "unresolved module attributes still fire on creation")
}

func TestOfTarget_OnlyThatTarget(t *testing.T) {
	modules, types := build(t, map[string]string{
		"m": `
def g() -> int:
    return 1

def f() -> int:
    return g()

y = g()
`,
	}, "m")
	f := modules["m"].Names["f"].Node.(*nodes.FuncDef)
	edges := OfTarget(modules["m"], f, types)
	assert.Equal(t, Edges{"<m.g>": {"m.f": {}}}, edges)
}

func TestMap_MonotonicAndLines(t *testing.T) {
	m := NewMap()
	m.Add("<a.f>", "b.g")
	m.Add("<a.f>", "b")
	m.Merge(Edges{"<a.f>": {"b": {}}, "<a.C>": {"<b.D>": {}}})

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []string{"b", "b.g"}, m.Targets("<a.f>"))
	assert.Equal(t, []string{
		"<a.C> -> <b.D>",
		"<a.f> -> b, b.g",
	}, m.Lines())
	assert.Equal(t, []string{"<a.f> -> b, b.g"}, Filter(m.Lines(), "a.f"))

	var seen []string
	m.Each(func(trigger, target string) { seen = append(seen, trigger+" "+target) })
	assert.Equal(t, []string{"<a.C> <b.D>", "<a.f> b", "<a.f> b.g"}, seen)
}

func TestTriggers(t *testing.T) {
	assert.Equal(t, "<m.f>", MakeTrigger("m.f"))
	assert.True(t, IsTrigger("<m.f>"))
	assert.False(t, IsTrigger("m.f"))
	assert.Equal(t, "<m[wildcard]>", MakeTrigger("m"+WildcardTag))
}
