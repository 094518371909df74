package exec

import (
	"github.com/tuannm99/pagedb/internal/record"
)

// Projection narrows every upstream record to the attributes named by
// (position, type) pairs, keeping the record id.
type Projection struct {
	source    Operator
	positions []int
	types     []record.AttrType
}

func NewProjection(source Operator, positions []int, types []record.AttrType) *Projection {
	return &Projection{source: source, positions: positions, types: types}
}

func (p *Projection) Open() error {
	return p.source.Open()
}

func (p *Projection) Next() (*record.Record, error) {
	rec, err := p.source.Next()
	if err != nil || rec == nil {
		return nil, err
	}

	attrs := make([]any, 0, len(p.positions))
	for i, pos := range p.positions {
		v, err := attrAt(rec, pos, p.types[i])
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, v)
	}

	return record.New(rec.ID(), attrs)
}

func (p *Projection) Close() error {
	return p.source.Close()
}
