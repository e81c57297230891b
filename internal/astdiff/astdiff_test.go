package astdiff

import (
	"context"
	"io/fs"
	"maps"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/finegrain/internal/checker"
	"github.com/jward/finegrain/internal/diag"
	"github.com/jward/finegrain/internal/nodes"
	"github.com/jward/finegrain/internal/parse"
	"github.com/jward/finegrain/internal/semanal"
)

// analyze builds module m from src (after the stubs and optional helper
// module b) and returns it.
func analyze(t *testing.T, src string, b ...string) *nodes.Module {
	t.Helper()
	modules := map[string]*nodes.Module{}
	errs := diag.NewErrors()
	srcs := map[string]string{"m": src}
	order := slices.Clone(semanal.StubModules)
	for _, id := range semanal.StubModules {
		data, err := fs.ReadFile(semanal.Stubs(), id+".py")
		require.NoError(t, err)
		srcs[id] = string(data)
	}
	if len(b) > 0 {
		srcs["b"] = b[0]
		order = append(order, "b")
	}
	order = append(order, "m")

	var mods []*nodes.Module
	for _, id := range order {
		mod, err := parse.Parse(context.Background(), id, id+".py", []byte(srcs[id]))
		require.NoError(t, err)
		modules[id] = mod
		mods = append(mods, mod)
	}
	a := semanal.New(modules, errs)
	for _, mod := range mods {
		a.Pass1(mod)
	}
	for _, mod := range mods {
		a.VisitFile(mod)
	}
	require.NoError(t, a.Pass3(mods...))
	c := checker.New(modules, errs)
	types := checker.TypeMap{}
	for _, mod := range mods {
		c.CheckFile(context.Background(), mod, types)
	}
	return modules["m"]
}

func changedNames(t *testing.T, before, after string) []string {
	t.Helper()
	old := Of("m", analyze(t, before, helper).Names)
	new := Of("m", analyze(t, after, helper).Names)
	return slices.Sorted(maps.Keys(Compare("m", old, new)))
}

const helper = "def g() -> None:\n    pass\n"

const base = `
import b
from b import g

class C:
    attr = 1

    def meth(self, x: int) -> int:
        return x

def f(x: int) -> str:
    return ""

v = 1
`

func TestCompare_SameSourceIsEmpty(t *testing.T) {
	assert.Empty(t, changedNames(t, base, base))

	m := analyze(t, base, helper)
	s := Of("m", m.Names)
	assert.Empty(t, Compare("m", s, s))
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name  string
		after string
		want  []string
	}{
		{
			name: "body only",
			after: `
import b
from b import g

class C:
    attr = 1

    def meth(self, x: int) -> int:
        return x + 1

def f(x: int) -> str:
    return "changed"

v = 2
`,
			want: []string{},
		},
		{
			name: "function signature",
			after: `
import b
from b import g

class C:
    attr = 1

    def meth(self, x: int) -> int:
        return x

def f(x: str) -> str:
    return ""

v = 1
`,
			want: []string{"m.f"},
		},
		{
			name: "method signature",
			after: `
import b
from b import g

class C:
    attr = 1

    def meth(self, x: str) -> int:
        return 1

def f(x: int) -> str:
    return ""

v = 1
`,
			want: []string{"m.C.meth"},
		},
		{
			name: "variable type and removal",
			after: `
import b
from b import g

class C:
    attr = ""

    def meth(self, x: int) -> int:
        return x

def f(x: int) -> str:
    return ""
`,
			want: []string{"m.C.attr", "m.v"},
		},
		{
			name: "kind change",
			after: `
import b
from b import g

class C:
    attr = 1

    def meth(self, x: int) -> int:
        return x

class f:
    pass

v = 1
`,
			want: []string{"m.f"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := changedNames(t, base, tt.after)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompare_ClassBasesChange(t *testing.T) {
	got := changedNames(t, `
class A:
    pass

class C:
    def meth(self) -> None:
        pass
`, `
class A:
    pass

class C(A):
    def meth(self) -> None:
        pass
`)
	assert.Equal(t, []string{"m.C"}, got)
}

func TestCompare_RemovedClassReportsMembers(t *testing.T) {
	got := changedNames(t, `
class C:
    def meth(self) -> None:
        pass
`, "")
	assert.Equal(t, []string{"m.C", "m.C.meth"}, got)
}

func TestOf_CrossReferences(t *testing.T) {
	m := analyze(t, "from b import g\nimport b\n", "def g() -> int:\n    return 1\n")
	s := Of("m", m.Names)
	assert.Equal(t, "CrossRef", s["g"].Kind)
	assert.Equal(t, "Moduleref", s["b"].Kind)

	other := analyze(t, "from b import g\nimport b\n", "def g() -> str:\n    return ''\n")
	assert.Empty(t, Compare("m", s, Of("m", other.Names)), "a changed import target is reported by its own module")
}

func TestActiveTriggers(t *testing.T) {
	before := analyze(t, "x = 1\n\nclass C:\n    y = 1\n")
	after := analyze(t, "x = 1\n\nclass C:\n    y = ''\n")
	old := Of("m", before.Names)

	assert.Equal(t, []string{"<m.C.y>"}, ActiveTriggers("m", old, after.Names))

	changedGlobal := analyze(t, "x = ''\n\nclass C:\n    y = 1\n")
	assert.Equal(t, []string{"<m.x>", "<m[wildcard]>"}, ActiveTriggers("m", old, changedGlobal.Names))

	assert.Empty(t, ActiveTriggers("m", old, before.Names))
}

func TestActiveTriggers_CreatedAndDeleted(t *testing.T) {
	m := analyze(t, "def f() -> None:\n    pass\n")

	created := ActiveTriggers("m", nil, m.Names)
	assert.Contains(t, created, "<m>")
	assert.Contains(t, created, "<m.f>")
	assert.Contains(t, created, "<m[wildcard]>")
	assert.Contains(t, created, "<m.__name__>")

	deleted := ActiveTriggers("m", Of("m", m.Names), nil)
	assert.Contains(t, deleted, "<m>")
	assert.Contains(t, deleted, "<m.f>")
	assert.Contains(t, deleted, "<m[wildcard]>")
}

func TestItem_Equal(t *testing.T) {
	a := Item{Kind: "TypeInfo", Fingerprint: 1, Members: Snapshot{"x": {Kind: "Var", Fingerprint: 2}}}
	b := Item{Kind: "TypeInfo", Fingerprint: 1, Members: Snapshot{"x": {Kind: "Var", Fingerprint: 3}}}
	assert.True(t, a.Equal(a))
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(Item{Kind: "TypeInfo", Fingerprint: 1}))
}
