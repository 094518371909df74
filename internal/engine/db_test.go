package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/pagedb/internal/btree"
	"github.com/tuannm99/pagedb/internal/exec"
	"github.com/tuannm99/pagedb/internal/record"
	"github.com/tuannm99/pagedb/internal/storage"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()

	db, err := Open(&Config{DataDir: t.TempDir(), PoolCapacity: 16})
	require.NoError(t, err)
	return db
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pagedb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: /tmp/pages\npool_capacity: 32\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/pages", cfg.DataDir)
	assert.Equal(t, 32, cfg.PoolCapacity)
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pagedb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: elsewhere\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "elsewhere", cfg.DataDir)
	assert.Equal(t, DefaultPoolCapacity, cfg.PoolCapacity)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDatabase_InsertRowsSpansPages(t *testing.T) {
	db := newTestDB(t)

	rows := make([][]any, 3*storage.MaxRecords)
	for i := range rows {
		rows[i] = []any{int32(i), "Test", true}
	}

	pageIDs, err := db.InsertRows(rows)
	require.NoError(t, err)
	require.Len(t, pageIDs, 3)

	table := db.Scan(pageIDs)
	require.NoError(t, table.Open())
	defer table.Close()

	count := 0
	for {
		rec, err := table.Next()
		require.NoError(t, err)
		if rec == nil {
			break
		}
		n, err := rec.IntAt(1)
		require.NoError(t, err)
		require.Equal(t, int32(count), n)
		count++
	}
	assert.Equal(t, len(rows), count)
}

func TestDatabase_IndexAndLookup(t *testing.T) {
	db := newTestDB(t)

	rows := make([][]any, 2*storage.MaxRecords)
	for i := range rows {
		rows[i] = []any{int32(i), "Test", i%2 == 0}
	}
	pageIDs, err := db.InsertRows(rows)
	require.NoError(t, err)

	tree, err := db.BuildIndex(pageIDs, 1)
	require.NoError(t, err)

	for i := range int32(len(rows)) {
		rec, err := db.Lookup(tree, i)
		require.NoError(t, err)

		n, err := rec.IntAt(1)
		require.NoError(t, err)
		require.Equal(t, i, n)
	}

	_, err = db.Lookup(tree, int32(len(rows)))
	assert.ErrorIs(t, err, btree.ErrKeyNotFound)
}

func TestDatabase_ReopenAfterClose(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(&Config{DataDir: dir, PoolCapacity: 16})
	require.NoError(t, err)

	rows := [][]any{{int32(1), "one"}, {int32(2), "two"}}
	pageIDs, err := db.InsertRows(rows)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// a second engine over the same directory sees the data
	db2, err := Open(&Config{DataDir: dir, PoolCapacity: 16})
	require.NoError(t, err)

	table := db2.Scan(pageIDs)
	require.NoError(t, table.Open())
	defer table.Close()

	rec, err := table.Next()
	require.NoError(t, err)
	require.NotNil(t, rec)
	s, err := rec.StringAt(2)
	require.NoError(t, err)
	assert.Equal(t, "one", s)
}

func TestDatabase_PipelineThroughOperators(t *testing.T) {
	db := newTestDB(t)

	rows := make([][]any, storage.MaxRecords)
	for i := range rows {
		rows[i] = []any{int32(i % 8), "Test", true}
	}
	pageIDs, err := db.InsertRows(rows)
	require.NoError(t, err)

	proj := exec.NewProjection(db.Scan(pageIDs), []int{1}, []record.AttrType{record.AttrInt})
	distinct := exec.NewDistinct(db.Pool(), proj)

	require.NoError(t, distinct.Open())
	count := 0
	for {
		rec, err := distinct.Next()
		require.NoError(t, err)
		if rec == nil {
			break
		}
		count++
	}
	assert.Equal(t, 8, count)
	require.NoError(t, distinct.Close())
}
