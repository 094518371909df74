package exec

import (
	"errors"
	"fmt"

	"github.com/tuannm99/pagedb/internal/bufferpool"
	"github.com/tuannm99/pagedb/internal/record"
	"github.com/tuannm99/pagedb/internal/storage"
)

// Join runs a nested loop over outer x inner, materializing matching
// pairs into a chain of temporary pages during Open. The output record
// carries every attribute of the outer record followed by every
// attribute of the inner one, in outer-then-inner iteration order.
// Next and Close are served by a Table over the materialized chain;
// Close additionally erases the temporary pages.
type Join struct {
	pool       *bufferpool.Pool
	outer      Operator
	inner      Operator
	outerPos   int
	innerPos   int
	outerTypes []record.AttrType
	innerTypes []record.AttrType
	cmp        Comparator

	tmpIDs []string
	result *Table
}

func NewJoin(
	pool *bufferpool.Pool,
	outer, inner Operator,
	outerPos, innerPos int,
	outerTypes, innerTypes []record.AttrType,
	cmp Comparator,
) (*Join, error) {
	if outerTypes[outerPos] != innerTypes[innerPos] {
		return nil, fmt.Errorf("%w: %s vs %s", ErrJoinTypes, outerTypes[outerPos], innerTypes[innerPos])
	}
	if err := checkComparator(cmp, outerTypes[outerPos]); err != nil {
		return nil, err
	}
	return &Join{
		pool:       pool,
		outer:      outer,
		inner:      inner,
		outerPos:   outerPos,
		innerPos:   innerPos,
		outerTypes: outerTypes,
		innerTypes: innerTypes,
		cmp:        cmp,
	}, nil
}

func (j *Join) Open() error {
	j.tmpIDs = nil

	pageID, err := j.pool.Allocate()
	if err != nil {
		return err
	}
	j.tmpIDs = append(j.tmpIDs, pageID)

	if err := j.outer.Open(); err != nil {
		return err
	}

	for {
		outerRec, err := j.outer.Next()
		if err != nil {
			return err
		}
		if outerRec == nil {
			break
		}

		outerVal, err := attrAt(outerRec, j.outerPos, j.outerTypes[j.outerPos])
		if err != nil {
			return err
		}

		if err := j.inner.Open(); err != nil {
			return err
		}
		for {
			innerRec, err := j.inner.Next()
			if err != nil {
				return err
			}
			if innerRec == nil {
				break
			}

			innerVal, err := attrAt(innerRec, j.innerPos, j.innerTypes[j.innerPos])
			if err != nil {
				return err
			}
			if !compare(outerVal, innerVal, j.cmp) {
				continue
			}

			attrs, err := j.concatAttrs(outerRec, innerRec)
			if err != nil {
				return err
			}
			if err := j.appendResult(attrs); err != nil {
				return err
			}
		}
		if err := j.inner.Close(); err != nil {
			return err
		}
	}
	if err := j.outer.Close(); err != nil {
		return err
	}

	j.result = NewTable(j.pool, j.tmpIDs)
	return j.result.Open()
}

func (j *Join) concatAttrs(outerRec, innerRec *record.Record) ([]any, error) {
	attrs := make([]any, 0, len(j.outerTypes)+len(j.innerTypes))
	for i, typ := range j.outerTypes {
		v, err := attrAt(outerRec, i, typ)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, v)
	}
	for i, typ := range j.innerTypes {
		v, err := attrAt(innerRec, i, typ)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, v)
	}
	return attrs, nil
}

// appendResult adds one output row to the current temporary page,
// chaining a fresh page when the current one is full.
func (j *Join) appendResult(attrs []any) error {
	pageID := j.tmpIDs[len(j.tmpIDs)-1]

	page, err := j.pool.Pin(pageID)
	if err != nil {
		return err
	}
	_, err = page.AddRecord(attrs)
	if err == nil {
		return j.pool.Unpin(pageID)
	}
	if unpinErr := j.pool.Unpin(pageID); unpinErr != nil {
		return unpinErr
	}
	if !errors.Is(err, storage.ErrPageFull) {
		return err
	}

	pageID, err = j.pool.Allocate()
	if err != nil {
		return err
	}
	j.tmpIDs = append(j.tmpIDs, pageID)

	page, err = j.pool.Pin(pageID)
	if err != nil {
		return err
	}
	defer j.pool.Unpin(pageID)

	if _, err := page.AddRecord(attrs); err != nil {
		return err
	}
	return nil
}

func (j *Join) Next() (*record.Record, error) {
	if j.result == nil {
		return nil, nil
	}
	return j.result.Next()
}

func (j *Join) Close() error {
	for _, id := range j.tmpIDs {
		if err := j.pool.Erase(id); err != nil {
			return err
		}
	}
	j.tmpIDs = nil

	if j.result == nil {
		return nil
	}
	err := j.result.Close()
	j.result = nil
	return err
}
