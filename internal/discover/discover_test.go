package discover

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/finegrain/internal/build"
)

func tree(paths ...string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for _, p := range paths {
		fsys[p] = &fstest.MapFile{Data: []byte("pass\n")}
	}
	return fsys
}

func TestFiles(t *testing.T) {
	t.Parallel()
	fsys := tree(
		"main.py",
		"lib/util.py",
		"readme.txt",
		".hidden.py",
		"node_modules/pkg.py",
		"__pycache__/cached.py",
		".venv/site.py",
	)

	files, err := Files(fsys, ".", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/util.py", "main.py"}, files)
}

func TestFiles_Gitignore(t *testing.T) {
	t.Parallel()
	fsys := tree("main.py", "gen/out.py", "tmp_scratch.py", "src/keep.py")
	fsys[".gitignore"] = &fstest.MapFile{Data: []byte("# generated\ngen/\ntmp_*.py\n")}

	files, err := Files(fsys, ".", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"main.py", "src/keep.py"}, files)
}

func TestFiles_Exclude(t *testing.T) {
	t.Parallel()
	fsys := tree("app/main.py", "app/tests/test_main.py", "app/pkg/tests/test_pkg.py", "app/pkg/core.py")

	files, err := Files(fsys, "app", []string{"**/tests/**"})
	require.NoError(t, err)
	assert.Equal(t, []string{"app/main.py", "app/pkg/core.py"}, files)

	_, err = Files(fsys, "app", []string{"[unclosed"})
	require.Error(t, err)
}

func TestSources(t *testing.T) {
	t.Parallel()
	fsys := tree("src/pkg/__init__.py", "src/pkg/mod.py", "src/top.py", "tools/script.py")
	finder := build.NewFinder(fsys, "src")

	sources, err := Sources(fsys, finder, ".", nil)
	require.NoError(t, err)
	assert.Equal(t, []build.Source{
		{ID: "pkg", Path: "src/pkg/__init__.py"},
		{ID: "pkg.mod", Path: "src/pkg/mod.py"},
		{ID: "top", Path: "src/top.py"},
	}, sources)
}
