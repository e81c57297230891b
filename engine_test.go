package finegrain

import (
	"context"
	"maps"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/finegrain/internal/nodes"
	"github.com/jward/finegrain/internal/reach"
	"github.com/jward/finegrain/internal/store"
)

const (
	srcA = `def f(x: int) -> int:
    return x
`
	srcB = `from a import f

def g() -> int:
    return f(1)
`
	srcC = `x = 1
`
)

func mapFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, src := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(src)}
	}
	return fsys
}

func sources(ids ...string) []Source {
	out := make([]Source, len(ids))
	for i, id := range ids {
		out[i] = Source{ID: id, Path: id + ".py"}
	}
	return out
}

// newEngine builds an engine over files and returns it with its file
// system, which tests edit between updates.
func newEngine(t *testing.T, files map[string]string, opts ...Option) (*Engine, fstest.MapFS) {
	t.Helper()
	fsys := mapFS(files)
	e := New(fsys, opts...)
	t.Cleanup(func() { e.Close() })
	ids := make([]string, 0, len(files))
	for name := range files {
		ids = append(ids, name[:len(name)-len(filepath.Ext(name))])
	}
	slices.Sort(ids)
	_, err := e.Build(context.Background(), sources(ids...))
	require.NoError(t, err)
	return e, fsys
}

// rebuild returns the diagnostics of a full build of the current files.
func rebuild(t *testing.T, fsys fstest.MapFS, ids ...string) []string {
	t.Helper()
	msgs, err := New(maps.Clone(fsys)).Build(context.Background(), sources(ids...))
	require.NoError(t, err)
	return msgs
}

func edit(fsys fstest.MapFS, id, src string) {
	fsys[id+".py"] = &fstest.MapFile{Data: []byte(src)}
}

func TestBuild(t *testing.T) {
	e, _ := newEngine(t, map[string]string{"a.py": srcA, "b.py": srcB, "c.py": srcC})

	assert.Empty(t, e.Messages())
	assert.Equal(t, "b.py", e.ModulePaths()["b"])
	assert.Contains(t, e.Deps("a.f"), "<a.f> -> b, b.g")

	_, err := e.Build(context.Background(), sources("a"))
	assert.Error(t, err, "build twice")
}

func TestBuild_Blocked(t *testing.T) {
	fsys := mapFS(map[string]string{"a.py": "def f(:\n", "b.py": srcB})
	e := New(fsys)
	msgs, err := e.Build(context.Background(), sources("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py:1: error: invalid syntax"}, msgs)

	blocked, ok := e.Blocked()
	require.True(t, ok)
	assert.Equal(t, Source{ID: "a", Path: "a.py"}, blocked)

	edit(fsys, "a", srcA)
	msgs, err = e.Update(context.Background(), sources("a"), nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Contains(t, e.ModulePaths(), "b", "modules the build did not reach are processed")
	_, ok = e.Blocked()
	assert.False(t, ok)
}

func TestUpdate_SignatureChange(t *testing.T) {
	e, fsys := newEngine(t, map[string]string{"a.py": srcA, "b.py": srcB, "c.py": srcC})

	edit(fsys, "a", "def f(x: str) -> int:\n    return 1\n")
	msgs, err := e.Update(context.Background(), sources("a"), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		`b.py:4: error: Argument 1 to "f" has incompatible type "int"; expected "str"`,
	}, msgs)
	assert.Equal(t, rebuild(t, fsys, "a", "b", "c"), msgs)
	assert.Contains(t, e.Triggered(), "<a.f>")
	assert.Equal(t, []string{"a"}, e.UpdatedModules())
	assert.Equal(t, sources("a"), e.ChangedModules())

	edit(fsys, "a", srcA)
	msgs, err = e.Update(context.Background(), sources("a"), nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestUpdate_RemoveModule(t *testing.T) {
	e, fsys := newEngine(t, map[string]string{
		"a.py": srcA,
		"b.py": srcB,
		"c.py": "from b import g\n\ndef h() -> int:\n    return g()\n",
	})

	delete(fsys, "b.py")
	msgs, err := e.Update(context.Background(), nil, sources("b"))
	require.NoError(t, err)

	assert.Equal(t, []string{"c.py:1: error: Cannot find module named 'b'"}, msgs)
	assert.Equal(t, rebuild(t, fsys, "a", "c"), msgs)
	assert.NotContains(t, e.manager.Modules, "b")
	assert.NotContains(t, e.manager.Graph, "b")
	triggered := e.Triggered()
	for _, want := range []string{"<b.g>", "<b[wildcard]>", "<b>"} {
		assert.Contains(t, triggered, want)
	}
}

func TestUpdate_MissingFileIsDeleted(t *testing.T) {
	e, fsys := newEngine(t, map[string]string{"a.py": srcA, "b.py": srcB})

	delete(fsys, "a.py")
	msgs, err := e.Update(context.Background(), sources("a"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.py:1: error: Cannot find module named 'a'"}, msgs)
	assert.NotContains(t, e.ModulePaths(), "a")
}

func TestUpdate_AddModule(t *testing.T) {
	e, fsys := newEngine(t, map[string]string{"b.py": srcB})
	require.Equal(t, []string{"b.py:1: error: Cannot find module named 'a'"}, e.Messages())

	edit(fsys, "a", srcA)
	msgs, err := e.Update(context.Background(), sources("a"), nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, "a.py", e.ModulePaths()["a"])
}

func TestUpdate_NewImport(t *testing.T) {
	e, fsys := newEngine(t, map[string]string{"c.py": srcC})
	fsys["a.py"] = &fstest.MapFile{Data: []byte(srcA)}
	fsys["b.py"] = &fstest.MapFile{Data: []byte(srcB)}

	edit(fsys, "c", "import b\n\nx: str = b.g()\n")
	msgs, err := e.Update(context.Background(), sources("c"), nil)
	require.NoError(t, err)

	assert.Equal(t, rebuild(t, fsys, "c"), msgs)
	assert.Equal(t, []string{`c.py:3: error: Incompatible types in assignment (expression has type "int", variable has type "str")`}, msgs)
	assert.Equal(t, []string{"a", "b", "c"}, e.UpdatedModules(), "new modules are processed leaf first")
}

func TestUpdate_NewImportCycle(t *testing.T) {
	e, fsys := newEngine(t, map[string]string{"a.py": "x = 1\n"})
	edit(fsys, "n1", "import n2\n\ndef f() -> int:\n    return n2.g()\n")
	edit(fsys, "n2", "import n1\n\ndef g() -> str:\n    return ''\n")

	edit(fsys, "a", "import n1\n\nx: str = n1.f()\n")
	msgs, err := e.Update(context.Background(), sources("a"), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		`a.py:3: error: Incompatible types in assignment (expression has type "int", variable has type "str")`,
		`n1.py:4: error: Incompatible return value type (got "str", expected "int")`,
	}, msgs)
	assert.Equal(t, rebuild(t, fsys, "a"), msgs)
	assert.ElementsMatch(t, []string{"a", "n1", "n2"}, e.UpdatedModules())
	assert.Equal(t, "n1", e.UpdatedModules()[0], "a module already in the program is not a new import")
	assert.Contains(t, e.ModulePaths(), "n2")
}

func TestUpdate_SyntaxErrorBlocks(t *testing.T) {
	e, fsys := newEngine(t, map[string]string{"a.py": srcA, "b.py": srcB, "c.py": srcC})
	treeA := e.manager.Modules["a"]
	stateA := e.manager.Graph["a"]

	edit(fsys, "a", "def f(x: int) -> int\n    return x\n")
	msgs, err := e.Update(context.Background(), sources("a"), nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "a.py:")
	assert.Contains(t, msgs[0], "invalid syntax")

	assert.Same(t, treeA, e.manager.Modules["a"], "program is left as it was")
	assert.Same(t, stateA, e.manager.Graph["a"])
	blocked, ok := e.Blocked()
	require.True(t, ok)
	assert.Equal(t, "a", blocked.ID)

	edit(fsys, "c", "x = 2\n")
	msgs, err = e.Update(context.Background(), sources("c"), nil)
	require.NoError(t, err)
	require.NotEmpty(t, e.UpdatedModules())
	assert.Equal(t, "a", e.UpdatedModules()[0], "blocker is retried first")
	assert.Len(t, msgs, 1)

	edit(fsys, "a", srcA)
	msgs, err = e.Update(context.Background(), sources("a"), nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, rebuild(t, fsys, "a", "b", "c"), msgs)
}

func TestUpdate_InheritanceCycleBlocks(t *testing.T) {
	e, fsys := newEngine(t, map[string]string{"a.py": "class A: pass\nclass B(A): pass\n", "c.py": srcC})
	before := e.Messages()

	edit(fsys, "a", "class A(B): pass\nclass B(A): pass\n")
	msgs, err := e.Update(context.Background(), sources("a"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py:1: error: Cycle in inheritance hierarchy"}, msgs)

	edit(fsys, "a", "class A: pass\nclass B(A): pass\n")
	msgs, err = e.Update(context.Background(), sources("a"), nil)
	require.NoError(t, err)
	assert.Equal(t, before, msgs)
}

func TestUpdate_NoChanges(t *testing.T) {
	e, fsys := newEngine(t, map[string]string{"a.py": srcA, "b.py": srcB, "c.py": srcC})

	msgs, err := e.Update(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = e.Update(context.Background(), sources("a"), nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, e.Triggered(), "reparsing an unchanged module fires nothing")

	edit(fsys, "b", "from a import f\n\ndef g() -> str:\n    return f(1)\n")
	first, err := e.Update(context.Background(), sources("b"), nil)
	require.NoError(t, err)
	require.NotEmpty(t, first)
	again, err := e.Update(context.Background(), sources("b"), nil)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestUpdate_PreservesIdentity(t *testing.T) {
	e, fsys := newEngine(t, map[string]string{"a.py": srcA, "b.py": srcB})
	fOld := e.manager.Modules["a"].Names["f"].Node

	edit(fsys, "a", "def f(x: int) -> int:\n    return x + 1\n")
	_, err := e.Update(context.Background(), sources("a"), nil)
	require.NoError(t, err)

	assert.Same(t, fOld, e.manager.Modules["a"].Names["f"].Node)
	assert.NotContains(t, e.Triggered(), "<a.f>", "body changes fire nothing")

	g := reach.Walk(e.manager.Modules["b"])
	for _, obj := range g.Reachable() {
		fn, ok := obj.(*nodes.FuncDef)
		if !ok || fn.Fullname() != "a.f" {
			continue
		}
		path, _ := g.PathTo(fn)
		assert.Same(t, fOld, fn, "stale a.f reachable from b via %v", path)
	}
}

func TestUpdate_DepsOnlyGrow(t *testing.T) {
	e, fsys := newEngine(t, map[string]string{"a.py": srcA, "b.py": srcB, "c.py": srcC})
	type edge struct{ trigger, target string }
	var before []edge
	e.manager.Deps.Each(func(trigger, target string) {
		before = append(before, edge{trigger, target})
	})
	require.NotEmpty(t, before)

	edit(fsys, "b", "def g() -> int:\n    return 1\n")
	_, err := e.Update(context.Background(), sources("b"), nil)
	require.NoError(t, err)
	edit(fsys, "a", "v = 1\n")
	_, err = e.Update(context.Background(), sources("a"), nil)
	require.NoError(t, err)

	for _, ed := range before {
		assert.True(t, e.manager.Deps.Has(ed.trigger, ed.target), "%s -> %s", ed.trigger, ed.target)
	}
}

func TestUpdate_ErrorsInOtherTargetsAreKept(t *testing.T) {
	e, fsys := newEngine(t, map[string]string{
		"a.py": srcA,
		"b.py": srcB,
		"c.py": "def h() -> int:\n    return ''\n",
	})
	want := []string{`c.py:2: error: Incompatible return value type (got "str", expected "int")`}
	require.Equal(t, want, e.Messages())

	edit(fsys, "a", "def f(x: int) -> int:\n    return 2\n")
	msgs, err := e.Update(context.Background(), sources("a"), nil)
	require.NoError(t, err)
	assert.Equal(t, want, msgs)
	assert.Contains(t, e.Triggered(), "c.h", "targets with errors are reprocessed")

	diags := e.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, "c.h", diags[0].Target)
	assert.Equal(t, "c", diags[0].Module)
}

func TestUpdate_MatchesFullRebuild(t *testing.T) {
	variants := map[string][]string{
		"a": {
			"def f(x: int) -> int:\n    return x\n\nv = 1\n",
			"def f(x: str) -> int:\n    return 1\n\nv = 'a'\n",
			"def f(x: int, y: int) -> str:\n    return 'a'\n",
			"v = 2\n",
		},
		"b": {
			"from a import f\n\ndef g() -> int:\n    return f(1)\n",
			"import a\n\ndef g() -> int:\n    return a.f(1)\n",
			"from a import f, v\n\ndef g() -> str:\n    return f(v)\n",
		},
		"c": {
			"from b import g\n\ndef h() -> int:\n    return g()\n",
			"import b\n\nx: int = b.g()\n",
		},
	}
	ids := []string{"a", "b", "c"}
	files := make(map[string]string)
	for _, id := range ids {
		files[id+".py"] = variants[id][0]
	}
	e, fsys := newEngine(t, files)

	rng := rand.New(rand.NewPCG(1, 2))
	for step := range 40 {
		id := ids[rng.IntN(len(ids))]
		src := variants[id][rng.IntN(len(variants[id]))]
		edit(fsys, id, src)

		msgs, err := e.Update(context.Background(), sources(id), nil)
		require.NoError(t, err)
		require.Equal(t, rebuild(t, fsys, ids...), msgs, "step %d: %s =\n%s", step, id, src)
	}
}

func TestUpdate_FromCache(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())

	files := map[string]string{
		"a.py": srcA,
		"b.py": srcB,
		"c.py": "def h() -> int:\n    return ''\n",
	}
	first, _ := newEngine(t, files, WithCache(store.NewBatchedStore(s)))
	want := first.Messages()
	require.NoError(t, first.Close())

	e, fsys := newEngine(t, files, WithCache(store.NewBatchedStore(s)))
	assert.Equal(t, want, e.Messages())
	assert.True(t, e.manager.Graph["b"].Fresh)
	assert.NotContains(t, e.manager.Modules, "b")

	edit(fsys, "a", "def f(x: str) -> int:\n    return 1\n")
	msgs, err := e.Update(ctx, sources("a"), nil)
	require.NoError(t, err)
	assert.Equal(t, rebuild(t, fsys, "a", "b", "c"), msgs)
	assert.Contains(t, e.UpdatedModules(), "b", "affected module restored from cache is processed in full")

	require.NoError(t, e.LoadAll(ctx))
	assert.Contains(t, e.manager.Modules, "c")
	assert.Equal(t, msgs, e.Messages())
}

func TestUpdate_MaxIterations(t *testing.T) {
	e, fsys := newEngine(t, map[string]string{"a.py": srcA, "b.py": srcB}, WithMaxIterations(0))

	edit(fsys, "a", "def f(x: str) -> int:\n    return 1\n")
	_, err := e.Update(context.Background(), sources("a"), nil)
	var ie *InternalError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "propagate", ie.Op)

	_, err = e.Update(context.Background(), sources("a"), nil)
	assert.ErrorIs(t, err, ie, "engine stays broken")
}

func TestEngine_Lifecycle(t *testing.T) {
	e := New(mapFS(map[string]string{"a.py": srcA}))
	_, err := e.Update(context.Background(), sources("a"), nil)
	assert.ErrorIs(t, err, ErrNotBuilt)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	_, err = e.Build(context.Background(), sources("a"))
	assert.ErrorIs(t, err, ErrEngineClosed)
	_, err = e.Update(context.Background(), sources("a"), nil)
	assert.ErrorIs(t, err, ErrEngineClosed)
	_, err = e.Stats()
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestStats(t *testing.T) {
	e, _ := newEngine(t, map[string]string{"a.py": srcA, "b.py": srcB})

	stats, err := e.Stats()
	require.NoError(t, err)
	require.Len(t, stats, 2, "stubs are skipped")
	assert.Equal(t, "a", stats[0].Module)
	assert.Equal(t, "b", stats[1].Module)
	for _, st := range stats {
		assert.Positive(t, st.Objects)
	}
	assert.GreaterOrEqual(t, stats[0].Kinds["*nodes.FuncDef"], 1)
}
