package exec

import (
	"errors"
	"strings"

	"github.com/tuannm99/pagedb/internal/btree"
	"github.com/tuannm99/pagedb/internal/bufferpool"
	"github.com/tuannm99/pagedb/internal/record"
)

// Distinct drops records whose attribute payload was already seen,
// tracking hashes in a temporary B+-tree that is torn down on Close.
type Distinct struct {
	pool   *bufferpool.Pool
	source Operator
	seen   *btree.Tree
}

func NewDistinct(pool *bufferpool.Pool, source Operator) *Distinct {
	return &Distinct{pool: pool, source: source}
}

func (d *Distinct) Open() error {
	rootID, err := d.pool.Allocate()
	if err != nil {
		return err
	}
	d.seen, err = btree.New(d.pool, rootID)
	if err != nil {
		return err
	}
	return d.source.Open()
}

func (d *Distinct) Next() (*record.Record, error) {
	for {
		rec, err := d.source.Next()
		if err != nil || rec == nil {
			return nil, err
		}

		hash := rec.Hash()
		_, err = d.seen.Search(hash)
		if err == nil {
			continue // already emitted
		}
		if !errors.Is(err, btree.ErrKeyNotFound) {
			return nil, err
		}

		placeholder := strings.Repeat("-", record.IDSize)
		if err := d.seen.Insert(hash, placeholder); err != nil {
			return nil, err
		}
		return rec, nil
	}
}

func (d *Distinct) Close() error {
	if d.seen != nil {
		if err := d.seen.Erase(); err != nil {
			return err
		}
		d.seen = nil
	}
	return d.source.Close()
}
