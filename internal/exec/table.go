package exec

import (
	"errors"
	"fmt"

	"github.com/tuannm99/pagedb/internal/bufferpool"
	"github.com/tuannm99/pagedb/internal/record"
	"github.com/tuannm99/pagedb/internal/storage"
)

// Table scans a fixed list of pages in (page, slot) order, skipping
// empty and tombstoned slots.
type Table struct {
	pool    *bufferpool.Pool
	pageIDs []string

	currentPage int
	currentSlot int
}

func NewTable(pool *bufferpool.Pool, pageIDs []string) *Table {
	return &Table{pool: pool, pageIDs: pageIDs}
}

func (t *Table) Open() error {
	t.currentPage = 0
	t.currentSlot = 0
	return nil
}

func (t *Table) Next() (*record.Record, error) {
	for t.currentPage < len(t.pageIDs) {
		pageID := t.pageIDs[t.currentPage]

		page, err := t.pool.Pin(pageID)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", pageID, err)
		}

		recordID, err := storage.CreateRecordID(pageID, t.currentSlot)
		if err != nil {
			t.pool.Unpin(pageID)
			return nil, err
		}

		rec, err := page.Record(recordID)
		if err != nil && !errors.Is(err, storage.ErrRecordNotFound) {
			t.pool.Unpin(pageID)
			return nil, err
		}
		if rec != nil {
			// detach from the page buffer before the pin is released
			rec = record.FromBytes(append([]byte(nil), rec.Bytes()...))
		}
		if err := t.pool.Unpin(pageID); err != nil {
			return nil, err
		}

		if t.currentSlot == storage.MaxRecords-1 {
			t.currentSlot = 0
			t.currentPage++
		} else {
			t.currentSlot++
		}

		if rec == nil {
			continue
		}
		return rec, nil
	}
	return nil, nil
}

func (t *Table) Close() error {
	t.currentPage = 0
	t.currentSlot = 0
	return nil
}
