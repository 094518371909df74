package bufferpool

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/tuannm99/pagedb/internal/record"
	"github.com/tuannm99/pagedb/internal/storage"
)

const (
	DefaultCapacity = 128

	// MetaPageID names the bookkeeping page that stores the allocation
	// counter as a single integer record in slot 0.
	MetaPageID = "bfmgr"
)

var (
	ErrAllPinned  = errors.New("bufferpool: no unpinned page available (all pinned)")
	ErrNotPinned  = errors.New("bufferpool: cannot unpin a page without pins")
	ErrNotCached  = errors.New("bufferpool: page is not in cache")
	ErrMetaBroken = errors.New("bufferpool: allocation counter page is unusable")
)

type frame struct {
	page *storage.Page
	pins int
}

// Pool is a bounded cache of pages keyed by page id. Pages enter on
// Pin and leave only through eviction or Erase. Victims are taken from
// the front of the unpinned queue: the page that has been evictable
// the longest ("least recently unpinned"). Pinned pages are immune.
type Pool struct {
	dir      string
	capacity int

	mu       sync.Mutex
	cache    map[string]*frame
	unpinned []string // ids with zero pins, oldest first
}

// New creates a pool over dir holding at most capacity pages, and
// bootstraps the allocation counter page if it does not exist yet.
func New(dir string, capacity int) (*Pool, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	p := &Pool{
		dir:      dir,
		capacity: capacity,
		cache:    make(map[string]*frame),
	}

	if p.Exists(MetaPageID) {
		return p, nil
	}

	page, err := p.Pin(MetaPageID)
	if err != nil {
		return nil, fmt.Errorf("bootstrap %s: %w", MetaPageID, err)
	}
	if _, err := page.AddRecord([]any{int32(0)}); err != nil {
		return nil, fmt.Errorf("bootstrap %s: %w", MetaPageID, err)
	}
	if err := p.Unpin(MetaPageID); err != nil {
		return nil, err
	}
	return p, nil
}

// Pin loads the page into the cache (creating it on first use) and
// raises its pin count. Fails with ErrAllPinned when the pool is full
// and every resident page is pinned.
func (p *Pool) Pin(pageID string) (*storage.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if f, ok := p.cache[pageID]; ok {
		if f.pins == 0 {
			p.dropUnpinned(pageID)
		}
		f.pins++
		return f.page, nil
	}

	if len(p.cache) >= p.capacity {
		if err := p.evict(); err != nil {
			return nil, err
		}
	}

	page, err := storage.Load(p.dir, pageID)
	if err != nil {
		return nil, err
	}
	p.cache[pageID] = &frame{page: page, pins: 1}
	return page, nil
}

// evict removes the least recently unpinned page, writing it out first
// when dirty. Caller holds p.mu.
func (p *Pool) evict() error {
	if len(p.unpinned) == 0 {
		return ErrAllPinned
	}

	victimID := p.unpinned[0]
	p.unpinned = p.unpinned[1:]

	victim, ok := p.cache[victimID]
	if !ok {
		return ErrNotCached
	}
	if victim.page.IsDirty() {
		if err := victim.page.WriteData(); err != nil {
			return err
		}
	}
	delete(p.cache, victimID)

	slog.Debug("bufferpool.evict", "pageID", victimID)
	return nil
}

// Unpin lowers the pin count; it must pair with a previous Pin. When
// the count reaches zero the page id joins the tail of the unpinned
// queue (once: re-appending an id already present would reorder it).
func (p *Pool) Unpin(pageID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, ok := p.cache[pageID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotCached, pageID)
	}
	if f.pins == 0 {
		return fmt.Errorf("%w: %s", ErrNotPinned, pageID)
	}

	f.pins--
	if f.pins == 0 && !slices.Contains(p.unpinned, pageID) {
		p.unpinned = append(p.unpinned, pageID)
	}
	return nil
}

func (p *Pool) dropUnpinned(pageID string) {
	for i, id := range p.unpinned {
		if id == pageID {
			p.unpinned = append(p.unpinned[:i], p.unpinned[i+1:]...)
			return
		}
	}
}

// Exists reports whether the page is cached or already on disk.
func (p *Pool) Exists(pageID string) bool {
	p.mu.Lock()
	_, cached := p.cache[pageID]
	p.mu.Unlock()

	if cached {
		return true
	}
	_, err := os.Stat(filepath.Join(p.dir, pageID))
	return err == nil
}

// Allocate reserves a fresh page id by bumping the counter stored in
// the metadata page.
func (p *Pool) Allocate() (string, error) {
	page, err := p.Pin(MetaPageID)
	if err != nil {
		return "", err
	}
	defer p.Unpin(MetaPageID)

	recordID, err := storage.CreateRecordID(MetaPageID, 0)
	if err != nil {
		return "", err
	}
	rec, err := page.Record(recordID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMetaBroken, err)
	}
	n, err := rec.IntAt(1)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMetaBroken, err)
	}

	n++
	updated, err := record.New(recordID, []any{n})
	if err != nil {
		return "", err
	}
	if err := page.UpdateRecord(updated); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMetaBroken, err)
	}

	return storage.CreatePageID(int(n))
}

// Erase drops the page from the cache and deletes its file. Used to
// dispose of temporary pages built by the query operators.
func (p *Pool) Erase(pageID string) error {
	p.mu.Lock()
	delete(p.cache, pageID)
	p.dropUnpinned(pageID)
	p.mu.Unlock()

	err := os.Remove(filepath.Join(p.dir, pageID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("erase page file: %w", err)
	}
	return nil
}

// FlushAll writes every dirty resident page to disk.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, f := range p.cache {
		if !f.page.IsDirty() {
			continue
		}
		if err := f.page.WriteData(); err != nil {
			return err
		}
	}
	return nil
}
