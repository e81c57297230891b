package target_test

import (
	"context"
	"io/fs"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/finegrain/internal/diag"
	"github.com/jward/finegrain/internal/nodes"
	"github.com/jward/finegrain/internal/parse"
	"github.com/jward/finegrain/internal/semanal"
	"github.com/jward/finegrain/internal/target"
)

func analyze(t *testing.T, srcs ...string) map[string]*nodes.Module {
	t.Helper()
	modules := map[string]*nodes.Module{}
	a := semanal.New(modules, diag.NewErrors())
	var all []string
	for _, id := range slices.Clone(semanal.StubModules) {
		data, err := fs.ReadFile(semanal.Stubs(), id+".py")
		require.NoError(t, err)
		all = append(all, id, string(data))
	}
	all = append(all, srcs...)
	var mods []*nodes.Module
	for i := 0; i < len(all); i += 2 {
		mod, err := parse.Parse(context.Background(), all[i], all[i]+".py", []byte(all[i+1]))
		require.NoError(t, err)
		modules[all[i]] = mod
		mods = append(mods, mod)
	}
	for _, mod := range mods {
		a.Pass1(mod)
	}
	for _, mod := range mods {
		a.VisitFile(mod)
	}
	require.NoError(t, a.Pass3(mods...))
	return modules
}

func names(t *testing.T, deferred []target.DeferredNode) []string {
	t.Helper()
	var out []string
	for _, d := range deferred {
		out = append(out, d.Name())
	}
	return out
}

func TestSplitTarget(t *testing.T) {
	modules := map[string]int{"pkg": 0, "pkg.mod": 0, "other": 0}
	tests := []struct {
		target string
		module string
		rest   string
		ok     bool
	}{
		{"pkg", "pkg", "", true},
		{"pkg.mod", "pkg.mod", "", true},
		{"pkg.mod.C.meth", "pkg.mod", "C.meth", true},
		{"pkg.f", "pkg", "f", true},
		{"other.x", "other", "x", true},
		{"missing.f", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			module, rest, ok := target.SplitTarget(modules, tt.target)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.module, module)
			assert.Equal(t, tt.rest, rest)
		})
	}

	id, ok := target.ModulePrefix(modules, "pkg.mod.f")
	assert.True(t, ok)
	assert.Equal(t, "pkg.mod", id)
}

const source = `
import b

class C:
    attr = 1

    def meth(self) -> None:
        def inner() -> None:
            pass

    @staticmethod
    def static() -> None:
        pass

def f() -> None:
    pass

g = f
h = b.k
`

func TestResolve(t *testing.T) {
	modules := analyze(t, "b", "def k() -> None:\n    pass\n", "m", source)

	got, err := target.Resolve(modules, "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"m"}, names(t, got))

	got, err = target.Resolve(modules, "m.f")
	require.NoError(t, err)
	assert.Equal(t, []string{"m.f"}, names(t, got))
	assert.Nil(t, got[0].ActiveClass)

	got, err = target.Resolve(modules, "m.C.meth")
	require.NoError(t, err)
	require.Len(t, got, 1)
	info := modules["m"].Names["C"].Node.(*nodes.TypeInfo)
	assert.Same(t, info, got[0].ActiveClass)

	got, err = target.Resolve(modules, "m.C.static")
	require.NoError(t, err)
	require.Len(t, got, 1)
	_, isFunc := got[0].Node.(*nodes.FuncDef)
	assert.True(t, isFunc, "decorators are unwrapped")
}

func TestResolve_ClassCoversModuleAndMethods(t *testing.T) {
	modules := analyze(t, "b", "def k() -> None:\n    pass\n", "m", source)

	got, err := target.Resolve(modules, "m.C")
	require.NoError(t, err)
	assert.Equal(t, []string{"m", "m.C.meth", "m.C.static"}, names(t, got))
	_, isModule := got[0].Node.(*nodes.Module)
	assert.True(t, isModule)
}

func TestResolve_NotFound(t *testing.T) {
	modules := analyze(t, "b", "def k() -> None:\n    pass\n", "m", source)

	for _, name := range []string{
		"missing",
		"m.nothing",
		"m.C.nothing",
		"m.f.inner",      // functions have no table
		"m.C.meth.inner", // nested functions belong to the enclosing target
		"m.g",
		"m.h",
		"m.C.attr",
	} {
		_, err := target.Resolve(modules, name)
		assert.ErrorIs(t, err, target.ErrNotFound, name)
	}
}

func TestFromNode(t *testing.T) {
	modules := analyze(t, "m", "def f() -> None:\n    pass\n")
	m := modules["m"]
	assert.Equal(t, "m", target.FromNode(m))
	assert.Equal(t, "m.f", target.FromNode(m.Names["f"].Node))
	assert.Equal(t, "", target.FromNode(&nodes.Var{}))
}
