package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/finegrain/internal/store"
)

func TestFindRepoRoot_DirectGitDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	got := findRepoRoot(root)
	assert.Equal(t, root, got)
}

func TestFindRepoRoot_NestedSubdirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	deep := filepath.Join(root, "sub", "deep")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	got := findRepoRoot(deep)
	assert.Equal(t, root, got)
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.ErrorContains(t, validateFormat("xml"), `invalid format "xml"`)
}

func TestFormatMessagesText(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	formatMessagesText(&buf, nil, 3)
	assert.Equal(t, "Success: no issues found in 3 source files\n", buf.String())

	buf.Reset()
	formatMessagesText(&buf, []string{
		"a.py:1: error: x",
		"a.py:2: error: y",
		"b.py:1: error: z",
	}, 1)
	assert.Equal(t, "a.py:1: error: x\na.py:2: error: y\nb.py:1: error: z\nFound 3 errors in 2 files (checked 1 source file)\n", buf.String())
}

const (
	srcA = "def f(x: int) -> int:\n    return x\n"
	srcB = "from a import f\n\ndef g() -> int:\n    return f(1)\n"
)

// writeFiles creates files under a new directory and returns it.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(src), 0o644))
	}
	return dir
}

func builtWorkspace(t *testing.T, dir string, cfg config) *workspace {
	t.Helper()
	if len(cfg.SearchPaths) == 0 {
		cfg.SearchPaths = []string{"."}
	}
	w, err := openWorkspace(dir, cfg, io.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	sources, err := w.sources()
	require.NoError(t, err)
	_, err = w.engine.Build(context.Background(), sources)
	require.NoError(t, err)
	return w
}

func TestWorkspace_Source(t *testing.T) {
	dir := writeFiles(t, map[string]string{"src/pkg/__init__.py": "", "src/pkg/m.py": ""})
	w, err := openWorkspace(dir, config{SearchPaths: []string{"src"}}, io.Discard)
	require.NoError(t, err)
	defer w.Close()

	src, err := w.source(filepath.Join(dir, "src", "pkg", "m.py"))
	require.NoError(t, err)
	assert.Equal(t, "pkg.m", src.ID)
	assert.Equal(t, "src/pkg/m.py", src.Path)

	src, err = w.source("src/pkg/__init__.py")
	require.NoError(t, err)
	assert.Equal(t, "pkg", src.ID)

	_, err = w.source("other/x.py")
	assert.Error(t, err)
}

func TestSession_Text(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.py": srcA, "b.py": srcB})
	w := builtWorkspace(t, dir, config{})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("def f(x: str) -> int:\n    return 1\n"), 0o644))
	var out bytes.Buffer
	s := &session{w: w, out: &out, text: true}
	in := strings.NewReader("update a.py\n\ntriggered\nbogus\nquit\nmessages\n")
	require.NoError(t, s.run(context.Background(), in))

	got := out.String()
	assert.Contains(t, got, `b.py:4: error: Argument 1 to "f" has incompatible type "int"; expected "str"`+"\n")
	assert.Contains(t, got, "Found 1 error in 1 file (checked 2 source files)\n")
	assert.Contains(t, got, "<a.f>\n")
	assert.Contains(t, got, `Error: unknown command "bogus"`)
	assert.Equal(t, 1, strings.Count(got, "Found 1 error"), "nothing runs after quit")
}

func TestSession_JSON(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.py": srcA, "b.py": srcB})
	w := builtWorkspace(t, dir, config{})

	require.NoError(t, os.Remove(filepath.Join(dir, "a.py")))
	var out bytes.Buffer
	s := &session{w: w, out: &out}
	require.NoError(t, s.run(context.Background(), strings.NewReader("remove a.py\n")))

	var result checkResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, "remove", result.Command)
	assert.Equal(t, []string{"b.py:1: error: Cannot find module named 'a'"}, result.Messages)
	assert.Equal(t, []string{"a"}, result.Updated)
	assert.Contains(t, result.Triggered, "<a>")
	assert.Empty(t, result.Blocked)
}

func TestWorkspace_Cache(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.py": srcA, "b.py": srcB})
	cachePath := filepath.Join(dir, ".finegrain", "cache.db")
	w := builtWorkspace(t, dir, config{Cache: cachePath})
	require.NoError(t, w.Close())

	s, err := store.NewStore(cachePath)
	require.NoError(t, err)
	defer s.Close()
	modules, _, edges, err := s.Counts()
	require.NoError(t, err)
	assert.Equal(t, 2, modules)
	assert.Positive(t, edges)

	names, err := s.ModulesTriggeredBy([]string{"<a.f>"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names)
}

func TestLoadConfig_ResolvesPaths(t *testing.T) {
	t.Setenv("FINEGRAIN_CACHE", "state/cache.db")
	dir := t.TempDir()

	cfg, err := loadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "state", "cache.db"), cfg.Cache)
	assert.NotEmpty(t, cfg.SearchPaths)
}

func TestExecute_ReadsConfigFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"finegrain.yaml": "exclude:\n  - skip/**\n",
		"a.py":           "x = 1\n",
		"skip/bad.py":    "def f(:\n",
	})

	rootCmd.SetArgs([]string{"check", dir})
	require.NoError(t, rootCmd.Execute(), "excluded file is not checked")
	assert.Equal(t, []string{"skip/**"}, viper.GetStringSlice("exclude"))
}
