package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/finegrain/internal/build"
	"github.com/jward/finegrain/internal/deps"
	"github.com/jward/finegrain/internal/diag"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func testEntry(id string) *build.CacheEntry {
	edges := deps.Edges{}
	edges.Add("<b.g>", id+".f")
	edges.Add("<b>", id)
	return &build.CacheEntry{
		ID:           id,
		Path:         id + ".py",
		ModTime:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Hash:         "00000000deadbeef",
		Dependencies: []string{"b", "builtins"},
		Errors: []diag.Info{
			{Path: id + ".py", Module: id, Target: id + ".f", Line: 4, Severity: diag.SeverityError, Message: "second"},
			{Path: id + ".py", Module: id, Target: id, Line: 1, Severity: diag.SeverityNote, Message: "first"},
		},
		Edges: edges,
	}
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"modules", "diagnostics", "dep_edges"} {
		var name string
		err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

// =============================================================================
// Cache
// =============================================================================

func TestStore_WriteLoadRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	want := testEntry("a")
	require.NoError(t, s.Write(want))

	got, err := s.Load("a")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Path, got.Path)
	assert.Equal(t, want.Hash, got.Hash)
	assert.True(t, want.ModTime.Equal(got.ModTime))
	assert.Equal(t, want.Dependencies, got.Dependencies)
	assert.Equal(t, want.Errors, got.Errors, "diagnostics keep recording order")
	assert.Equal(t, want.Edges, got.Edges)
}

func TestStore_Valid(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Write(testEntry("a")))

	tests := []struct {
		name string
		id   string
		path string
		hash string
		want bool
	}{
		{"same contents", "a", "a.py", "00000000deadbeef", true},
		{"changed contents", "a", "a.py", "ffffffffffffffff", false},
		{"moved", "a", "pkg/a.py", "00000000deadbeef", false},
		{"not cached", "b", "b.py", "00000000deadbeef", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := s.Valid(tt.id, tt.path, time.Now(), tt.hash)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestStore_WriteReplaces(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Write(testEntry("a")))

	e := testEntry("a")
	e.Hash = "1111111111111111"
	e.Errors = nil
	e.Edges = deps.Edges{}
	require.NoError(t, s.Write(e))

	got, err := s.Load("a")
	require.NoError(t, err)
	assert.Equal(t, "1111111111111111", got.Hash)
	assert.Empty(t, got.Errors)
	assert.Empty(t, got.Edges)

	mods, diags, edges, err := s.Counts()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 0}, []int{mods, diags, edges})
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Write(testEntry("a")))
	require.NoError(t, s.Delete("a"))
	require.NoError(t, s.Delete("never-cached"))

	_, err := s.Load("a")
	assert.Error(t, err)
	mods, diags, edges, err := s.Counts()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0}, []int{mods, diags, edges})
}

func TestStore_ModulesTriggeredBy(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Write(testEntry("c")))
	require.NoError(t, s.Write(testEntry("a")))

	names, err := s.ModulesTriggeredBy([]string{"<b.g>", "<x>"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, names)

	names, err = s.ModulesTriggeredBy(nil)
	require.NoError(t, err)
	assert.Empty(t, names)

	mods, err := s.Modules()
	require.NoError(t, err)
	require.Len(t, mods, 2)
	assert.Equal(t, "a", mods[0].Name)
}

// =============================================================================
// Batched writes
// =============================================================================

func TestBatchedStore_BuffersUntilFlush(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	b := NewBatchedStore(s)

	require.NoError(t, b.Write(testEntry("a")))
	assert.Equal(t, 1, b.Pending())

	ok, err := b.Valid("a", "a.py", time.Now(), "00000000deadbeef")
	require.NoError(t, err)
	assert.True(t, ok, "buffered entries are visible")

	ok, err = s.Valid("a", "a.py", time.Now(), "00000000deadbeef")
	require.NoError(t, err)
	assert.False(t, ok, "nothing committed yet")

	require.NoError(t, b.Flush())
	assert.Zero(t, b.Pending())
	ok, err = s.Valid("a", "a.py", time.Now(), "00000000deadbeef")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBatchedStore_DeleteHidesCommitted(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Write(testEntry("a")))

	b := NewBatchedStore(s)
	require.NoError(t, b.Delete("a"))
	ok, err := b.Valid("a", "a.py", time.Now(), "00000000deadbeef")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = b.Load("a")
	assert.Error(t, err)

	require.NoError(t, b.Flush())
	m, err := s.ModuleByName("a")
	require.NoError(t, err)
	assert.Nil(t, m)
}
