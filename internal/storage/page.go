package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tuannm99/pagedb/internal/alias/bx"
	"github.com/tuannm99/pagedb/internal/record"
)

// Page is a fixed 4096-byte unit of storage:
//
//	+--------------------+ 0
//	| page id (5 bytes)  |
//	+--------------------+ 5
//	| slot directory     |  64 x int32: -1 unused, -2 tombstoned,
//	| (64 * 4 bytes)     |  otherwise start offset of the record
//	+--------------------+ 261
//	| records, appended  |
//	| in slot order      |
//	+--------------------+ 4096
//
// Records carry their own framing (see package record). A new record
// starts where the highest-indexed valid record before it ends; deleted
// records and shrinking updates leave zeroed bytes in place, since the
// data area is never compacted.
type Page struct {
	dir   string
	buf   []byte
	dirty bool
}

// Load reads the page file <dir>/<pageID>, or initializes a fresh
// zeroed page if no file exists yet. Fresh pages start dirty; loaded
// pages start clean. The data directory is created on demand.
func Load(dir, pageID string) (*Page, error) {
	if len(pageID) != PageIDSize {
		return nil, ErrBadPageID
	}

	if err := os.MkdirAll(dir, FileMode0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	p := &Page{dir: dir}

	buf, err := readPageFile(filepath.Join(dir, pageID))
	if err != nil {
		return nil, err
	}
	if buf != nil {
		p.buf = buf
		return p, nil
	}

	// fresh page: id header + all slots unused
	p.buf = make([]byte, PageSize)
	copy(p.buf, pageID)
	for i := range MaxRecords {
		bx.PutI32At(p.buf, slotDirOff+i*slotSize, slotUnused)
	}
	p.dirty = true
	return p, nil
}

func readPageFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open page file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, PageSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrShortRead, path)
	}
	return buf, nil
}

// ID returns the page id stored in the first five bytes.
func (p *Page) ID() string {
	return string(p.buf[:PageIDSize])
}

// IsDirty reports whether the page has unwritten modifications.
func (p *Page) IsDirty() bool {
	return p.dirty
}

func (p *Page) slot(i int) int32 {
	return bx.I32At(p.buf, slotDirOff+i*slotSize)
}

func (p *Page) setSlot(i int, v int32) {
	bx.PutI32At(p.buf, slotDirOff+i*slotSize, v)
}

// appendOffset is the end of the highest-indexed valid record before
// slot n, i.e. where the next record has to start. Tombstoned slots are
// skipped: their record bytes are zeroed, so only non-negative slots
// carry a usable size.
func (p *Page) appendOffset(n int) int {
	for i := n - 1; i >= 0; i-- {
		off := p.slot(i)
		if off < 0 {
			continue
		}
		size := int(bx.I32At(p.buf, int(off)))
		return int(off) + size
	}
	return recordStart
}

// AddRecord builds a record from attrs in the first never-used slot.
// Tombstoned slots are not reclaimed. Returns ErrPageFull when no slot
// or no byte space is left.
func (p *Page) AddRecord(attrs []any) (*record.Record, error) {
	slot := -1
	for i := range MaxRecords {
		if p.slot(i) == slotUnused {
			slot = i
			break
		}
	}
	if slot == -1 {
		return nil, ErrPageFull
	}

	recordID, err := CreateRecordID(p.ID(), slot)
	if err != nil {
		return nil, err
	}
	rec, err := record.New(recordID, attrs)
	if err != nil {
		return nil, err
	}

	start := p.appendOffset(slot)
	if start+rec.Size() > PageSize {
		return nil, ErrPageFull
	}

	copy(p.buf[start:], rec.Bytes())
	p.setSlot(slot, int32(start))
	p.dirty = true
	return rec, nil
}

// Record reads the record stored under recordID. The returned record
// aliases the page buffer.
func (p *Page) Record(recordID string) (*record.Record, error) {
	pageID, err := ParsePageID(recordID)
	if err != nil {
		return nil, err
	}
	if pageID != p.ID() {
		return nil, fmt.Errorf("%w: %s", ErrForeignRecordID, recordID)
	}

	slot, err := ParseSlotIndex(recordID)
	if err != nil {
		return nil, err
	}

	off := p.slot(slot)
	if off < 0 {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
	}

	size := int(bx.I32At(p.buf, int(off)))
	return record.FromBytes(p.buf[off : int(off)+size]), nil
}

// UpdateRecord overwrites the stored record carrying rec's id in place.
// The new serialization must fit into the span up to the next valid
// record (or the page end); otherwise ErrRecordTooLarge.
func (p *Page) UpdateRecord(rec *record.Record) error {
	recordID := rec.ID()

	pageID, err := ParsePageID(recordID)
	if err != nil {
		return err
	}
	if pageID != p.ID() {
		return fmt.Errorf("%w: %s", ErrForeignRecordID, recordID)
	}

	slot, err := ParseSlotIndex(recordID)
	if err != nil {
		return err
	}

	off := p.slot(slot)
	if off < 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
	}

	next := PageSize
	for i := slot + 1; i < MaxRecords; i++ {
		if o := p.slot(i); o >= 0 {
			next = int(o)
			break
		}
	}

	available := next - int(off)
	if rec.Size() > available {
		return fmt.Errorf("%w: %s", ErrRecordTooLarge, recordID)
	}

	span := p.buf[off:next]
	for i := range span {
		span[i] = 0
	}
	copy(span, rec.Bytes())
	p.dirty = true
	return nil
}

// DeleteRecord zeroes the record's bytes and tombstones its slot. The
// slot is never reused for later inserts.
func (p *Page) DeleteRecord(recordID string) error {
	pageID, err := ParsePageID(recordID)
	if err != nil {
		return err
	}
	if pageID != p.ID() {
		return fmt.Errorf("%w: %s", ErrForeignRecordID, recordID)
	}

	slot, err := ParseSlotIndex(recordID)
	if err != nil {
		return err
	}

	off := p.slot(slot)
	if off < 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
	}

	size := int(bx.I32At(p.buf, int(off)))
	span := p.buf[off : int(off)+size]
	for i := range span {
		span[i] = 0
	}
	p.setSlot(slot, slotTombstone)
	p.dirty = true
	return nil
}

// WriteData persists the full 4096-byte image to <dir>/<id> and clears
// the dirty flag.
func (p *Page) WriteData() error {
	path := filepath.Join(p.dir, p.ID())
	if err := os.WriteFile(path, p.buf, FileMode0644); err != nil {
		return fmt.Errorf("write page file: %w", err)
	}
	p.dirty = false
	return nil
}
