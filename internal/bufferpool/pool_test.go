package bufferpool

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/pagedb/internal/storage"
)

// newTestPool creates a pool over a temporary data directory.
func newTestPool(t *testing.T, capacity int) *Pool {
	t.Helper()

	pool, err := New(t.TempDir(), capacity)
	require.NoError(t, err)
	return pool
}

// writePages fills n pages with dummy records and flushes them, so the
// pool can later load them cleanly from disk.
func writePages(t *testing.T, dir string, n int) []string {
	t.Helper()

	ids := make([]string, 0, n)
	for i := range n {
		id, err := storage.CreatePageID(i + 10000)
		require.NoError(t, err)

		p, err := storage.Load(dir, id)
		require.NoError(t, err)
		for k := range storage.MaxRecords {
			_, err := p.AddRecord([]any{int32(k), "Test", true})
			require.NoError(t, err)
		}
		require.NoError(t, p.WriteData())
		ids = append(ids, id)
	}
	return ids
}

func TestNew_BootstrapsMetaPage(t *testing.T) {
	dir := t.TempDir()

	pool, err := New(dir, 4)
	require.NoError(t, err)
	assert.True(t, pool.Exists(MetaPageID))

	// first allocation after a fresh bootstrap
	id, err := pool.Allocate()
	require.NoError(t, err)
	assert.Equal(t, "00001", id)

	// reopening over the same directory keeps the flushed counter
	require.NoError(t, pool.FlushAll())
	pool2, err := New(dir, 4)
	require.NoError(t, err)
	id, err = pool2.Allocate()
	require.NoError(t, err)
	assert.Equal(t, "00002", id)
}

func TestPool_PinUnpinBalance(t *testing.T) {
	pool := newTestPool(t, 4)

	page, err := pool.Pin("00100")
	require.NoError(t, err)
	require.Equal(t, "00100", page.ID())

	// pin twice, unpin twice, third unpin fails
	_, err = pool.Pin("00100")
	require.NoError(t, err)

	require.NoError(t, pool.Unpin("00100"))
	require.NoError(t, pool.Unpin("00100"))
	assert.ErrorIs(t, pool.Unpin("00100"), ErrNotPinned)

	// unpinning an unknown page fails too
	assert.ErrorIs(t, pool.Unpin("00999"), ErrNotCached)
}

func TestPool_AllPinnedFails(t *testing.T) {
	dir := t.TempDir()
	ids := writePages(t, dir, 11)

	pool, err := New(dir, 10)
	require.NoError(t, err)

	// the bootstrap leaves bfmgr unpinned; make room deterministically
	require.NoError(t, pool.Erase(MetaPageID))

	for _, id := range ids[:10] {
		_, err := pool.Pin(id)
		require.NoError(t, err)
	}

	// capacity reached with every page pinned
	_, err = pool.Pin(ids[10])
	assert.ErrorIs(t, err, ErrAllPinned)

	// releasing one page frees a victim; the next pin evicts it
	require.NoError(t, pool.Unpin(ids[0]))
	_, err = pool.Pin(ids[10])
	require.NoError(t, err)

	// ids[0] left the cache but still exists on disk
	assert.True(t, pool.Exists(ids[0]))
	_, err = pool.Pin(ids[0])
	assert.ErrorIs(t, err, ErrAllPinned)
}

func TestPool_EvictsLeastRecentlyUnpinned(t *testing.T) {
	dir := t.TempDir()
	ids := writePages(t, dir, 4)

	pool, err := New(dir, 3)
	require.NoError(t, err)
	require.NoError(t, pool.Erase(MetaPageID))

	for _, id := range ids[:3] {
		_, err := pool.Pin(id)
		require.NoError(t, err)
	}

	// unpin in the order 1, 0, 2: page 1 becomes the eviction victim
	require.NoError(t, pool.Unpin(ids[1]))
	require.NoError(t, pool.Unpin(ids[0]))
	require.NoError(t, pool.Unpin(ids[2]))

	_, err = pool.Pin(ids[3])
	require.NoError(t, err)

	pool.mu.Lock()
	_, evicted := pool.cache[ids[1]]
	_, kept0 := pool.cache[ids[0]]
	_, kept2 := pool.cache[ids[2]]
	pool.mu.Unlock()

	assert.False(t, evicted)
	assert.True(t, kept0)
	assert.True(t, kept2)
}

func TestPool_RePinRemovesFromVictimQueue(t *testing.T) {
	dir := t.TempDir()
	ids := writePages(t, dir, 3)

	pool, err := New(dir, 2)
	require.NoError(t, err)
	require.NoError(t, pool.Erase(MetaPageID))

	_, err = pool.Pin(ids[0])
	require.NoError(t, err)
	_, err = pool.Pin(ids[1])
	require.NoError(t, err)

	require.NoError(t, pool.Unpin(ids[0]))
	require.NoError(t, pool.Unpin(ids[1]))

	// re-pinning ids[0] makes it immune again; ids[1] is the victim
	_, err = pool.Pin(ids[0])
	require.NoError(t, err)

	_, err = pool.Pin(ids[2])
	require.NoError(t, err)

	pool.mu.Lock()
	_, kept := pool.cache[ids[0]]
	_, evicted := pool.cache[ids[1]]
	pool.mu.Unlock()

	assert.True(t, kept)
	assert.False(t, evicted)
}

func TestPool_EvictionWritesDirtyPage(t *testing.T) {
	dir := t.TempDir()

	pool, err := New(dir, 1)
	require.NoError(t, err)
	require.NoError(t, pool.Erase(MetaPageID))

	page, err := pool.Pin("00200")
	require.NoError(t, err)
	rec, err := page.AddRecord([]any{int32(42), "dirty", true})
	require.NoError(t, err)
	require.NoError(t, pool.Unpin("00200"))

	// pinning another page evicts 00200 and must flush it first
	_, err = pool.Pin("00201")
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, "00200"))

	reloaded, err := storage.Load(dir, "00200")
	require.NoError(t, err)
	require.False(t, reloaded.IsDirty())

	got, err := reloaded.Record(rec.ID())
	require.NoError(t, err)
	n, err := got.IntAt(1)
	require.NoError(t, err)
	assert.Equal(t, int32(42), n)
}

func TestPool_AllocateMonotonic(t *testing.T) {
	pool := newTestPool(t, 4)

	prev := ""
	for range 5 {
		id, err := pool.Allocate()
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestPool_Erase(t *testing.T) {
	dir := t.TempDir()
	pool, err := New(dir, 4)
	require.NoError(t, err)

	page, err := pool.Pin("00300")
	require.NoError(t, err)
	require.NoError(t, page.WriteData())
	require.NoError(t, pool.Unpin("00300"))
	require.FileExists(t, filepath.Join(dir, "00300"))

	require.NoError(t, pool.Erase("00300"))
	assert.False(t, pool.Exists("00300"))
	assert.NoFileExists(t, filepath.Join(dir, "00300"))

	// erasing a page that is already gone is not an error
	require.NoError(t, pool.Erase("00300"))
}
