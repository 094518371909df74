package engine

import (
	"log/slog"

	"github.com/tuannm99/pagedb/internal/btree"
	"github.com/tuannm99/pagedb/internal/bufferpool"
	"github.com/tuannm99/pagedb/internal/exec"
	"github.com/tuannm99/pagedb/internal/record"
	"github.com/tuannm99/pagedb/internal/storage"
)

// Database owns the buffer pool for one data directory and offers the
// glue a driver needs: appending rows into freshly allocated pages,
// scanning them, and indexing an integer attribute.
type Database struct {
	cfg  *Config
	pool *bufferpool.Pool
}

// Open wires a Database over cfg, bootstrapping the data directory and
// the allocation metadata page.
func Open(cfg *Config) (*Database, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	pool, err := bufferpool.New(cfg.DataDir, cfg.PoolCapacity)
	if err != nil {
		return nil, err
	}

	slog.Debug("engine.open", "dataDir", cfg.DataDir, "capacity", cfg.PoolCapacity)
	return &Database{cfg: cfg, pool: pool}, nil
}

// Pool exposes the shared buffer pool.
func (db *Database) Pool() *bufferpool.Pool {
	return db.pool
}

// InsertRows appends rows into newly allocated pages, filling each
// page before chaining the next one, and returns the page ids that now
// make up the table.
func (db *Database) InsertRows(rows [][]any) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	var pageIDs []string
	var currentID string

	for _, row := range rows {
		if currentID == "" {
			id, err := db.pool.Allocate()
			if err != nil {
				return nil, err
			}
			currentID = id
			pageIDs = append(pageIDs, id)
		}

		page, err := db.pool.Pin(currentID)
		if err != nil {
			return nil, err
		}
		_, err = page.AddRecord(row)
		if unpinErr := db.pool.Unpin(currentID); unpinErr != nil {
			return nil, unpinErr
		}

		if err == storage.ErrPageFull {
			// chain a fresh page and retry the row there
			id, allocErr := db.pool.Allocate()
			if allocErr != nil {
				return nil, allocErr
			}
			currentID = id
			pageIDs = append(pageIDs, id)

			page, err = db.pool.Pin(currentID)
			if err != nil {
				return nil, err
			}
			_, err = page.AddRecord(row)
			if unpinErr := db.pool.Unpin(currentID); unpinErr != nil {
				return nil, unpinErr
			}
		}
		if err != nil {
			return nil, err
		}
	}

	return pageIDs, nil
}

// Scan opens a table scan over the given pages.
func (db *Database) Scan(pageIDs []string) *exec.Table {
	return exec.NewTable(db.pool, pageIDs)
}

// BuildIndex scans a table and indexes the integer attribute at pos,
// mapping each key to the record id that carries it. The returned
// tree's root id can be persisted and reopened later via btree.New.
func (db *Database) BuildIndex(pageIDs []string, pos int) (*btree.Tree, error) {
	rootID, err := db.pool.Allocate()
	if err != nil {
		return nil, err
	}
	tree, err := btree.New(db.pool, rootID)
	if err != nil {
		return nil, err
	}

	table := exec.NewTable(db.pool, pageIDs)
	if err := table.Open(); err != nil {
		return nil, err
	}
	defer table.Close()

	for {
		rec, err := table.Next()
		if err != nil {
			return nil, err
		}
		if rec == nil {
			break
		}

		key, err := rec.IntAt(pos)
		if err != nil {
			return nil, err
		}
		if err := tree.Insert(key, rec.ID()); err != nil {
			return nil, err
		}
	}

	slog.Debug("engine.indexBuilt", "root", tree.RootID(), "pages", len(pageIDs))
	return tree, nil
}

// Lookup resolves an indexed key back to its record.
func (db *Database) Lookup(tree *btree.Tree, key int32) (*record.Record, error) {
	recordID, err := tree.Search(key)
	if err != nil {
		return nil, err
	}

	pageID, err := storage.ParsePageID(recordID)
	if err != nil {
		return nil, err
	}

	page, err := db.pool.Pin(pageID)
	if err != nil {
		return nil, err
	}
	defer db.pool.Unpin(pageID)

	rec, err := page.Record(recordID)
	if err != nil {
		return nil, err
	}
	// copy out: the page buffer may be evicted after the unpin
	return record.FromBytes(append([]byte(nil), rec.Bytes()...)), nil
}

// Close flushes every dirty resident page.
func (db *Database) Close() error {
	return db.pool.FlushAll()
}
