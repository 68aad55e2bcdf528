package fillers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	return c
}

func TestGetRandomEmpty(t *testing.T) {
	c := newCache(t)
	path, ok := c.GetRandom()
	assert.False(t, ok)
	assert.Empty(t, path)
}

func TestSyncAddsAndRemoves(t *testing.T) {
	c := newCache(t)

	require.NoError(t, c.Sync([]Entry{
		{ID: "hmm", Audio: []byte("a")},
		{ID: "one-moment", Audio: []byte("b")},
	}))
	assert.Equal(t, []string{"hmm", "one-moment"}, c.IDs())

	// server drops one and adds another
	require.NoError(t, c.Sync([]Entry{
		{ID: "one-moment", Audio: []byte("b")},
		{ID: "let-me-think", Audio: []byte("c")},
	}))
	assert.Equal(t, []string{"let-me-think", "one-moment"}, c.IDs())

	_, err := os.Stat(filepath.Join(c.dir, "hmm.wav"))
	assert.True(t, os.IsNotExist(err))
}

func TestSyncRejectsPathEscapingIDs(t *testing.T) {
	c := newCache(t)
	outside := filepath.Join(filepath.Dir(c.dir), "escaped.wav")

	require.NoError(t, c.Sync([]Entry{
		{ID: "../escaped", Audio: []byte("evil")},
		{ID: "sub/dir", Audio: []byte("evil")},
		{ID: "..", Audio: []byte("evil")},
		{ID: "", Audio: []byte("evil")},
		{ID: "ok", Audio: []byte("fine")},
	}))

	assert.Equal(t, []string{"ok"}, c.IDs())
	_, err := os.Stat(outside)
	assert.True(t, os.IsNotExist(err), "no file may land outside the cache dir")
}

func TestSyncIdempotent(t *testing.T) {
	c := newCache(t)
	entries := []Entry{{ID: "a", Audio: []byte("x")}, {ID: "b", Audio: []byte("y")}}

	require.NoError(t, c.Sync(entries))
	before := mtimes(t, c.dir)

	require.NoError(t, c.Sync(entries))
	assert.Equal(t, before, mtimes(t, c.dir), "second sync with the same list must not touch the filesystem")
}

func TestSyncEmptyListEmptiesCache(t *testing.T) {
	c := newCache(t)
	require.NoError(t, c.Sync([]Entry{{ID: "a", Audio: []byte("x")}}))
	require.NoError(t, c.Sync(nil))

	assert.Empty(t, c.IDs())
	_, ok := c.GetRandom()
	assert.False(t, ok)
}

func TestSyncResultIndependentOfPriorState(t *testing.T) {
	c := newCache(t)

	// a stray local file not in the authoritative list gets removed
	require.NoError(t, os.WriteFile(filepath.Join(c.dir, "stray.wav"), []byte("z"), 0o644))
	require.NoError(t, c.Sync([]Entry{{ID: "a", Audio: []byte("x")}}))
	assert.Equal(t, []string{"a"}, c.IDs())
}

func TestGetRandomReturnsExistingPath(t *testing.T) {
	c := newCache(t)
	require.NoError(t, c.Sync([]Entry{{ID: "a", Audio: []byte("x")}}))

	path, ok := c.GetRandom()
	require.True(t, ok)
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func mtimes(t *testing.T, dir string) map[string]int64 {
	t.Helper()
	out := map[string]int64{}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		info, err := e.Info()
		require.NoError(t, err)
		out[e.Name()] = info.ModTime().UnixNano()
	}
	return out
}
