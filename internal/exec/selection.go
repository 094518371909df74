package exec

import (
	"fmt"

	"github.com/tuannm99/pagedb/internal/record"
)

// Selection filters upstream records by comparing one attribute with a
// literal value.
type Selection struct {
	source   Operator
	position int
	typ      record.AttrType
	value    any
	cmp      Comparator
}

func NewSelection(source Operator, position int, typ record.AttrType, value any, cmp Comparator) (*Selection, error) {
	if err := checkComparator(cmp, typ); err != nil {
		return nil, err
	}
	if err := checkLiteral(typ, value); err != nil {
		return nil, err
	}
	return &Selection{
		source:   source,
		position: position,
		typ:      typ,
		value:    normalizeLiteral(value),
		cmp:      cmp,
	}, nil
}

func checkLiteral(typ record.AttrType, value any) error {
	ok := false
	switch typ {
	case record.AttrInt:
		_, isInt := value.(int)
		_, isInt32 := value.(int32)
		ok = isInt || isInt32
	case record.AttrString:
		_, ok = value.(string)
	case record.AttrBool:
		_, ok = value.(bool)
	}
	if !ok {
		return fmt.Errorf("%w: %T vs %s", ErrTypeMismatch, value, typ)
	}
	return nil
}

func normalizeLiteral(value any) any {
	if v, ok := value.(int); ok {
		return int32(v)
	}
	return value
}

func (s *Selection) Open() error {
	return s.source.Open()
}

func (s *Selection) Next() (*record.Record, error) {
	for {
		rec, err := s.source.Next()
		if err != nil || rec == nil {
			return nil, err
		}

		v, err := attrAt(rec, s.position, s.typ)
		if err != nil {
			return nil, err
		}
		if compare(v, s.value, s.cmp) {
			return rec, nil
		}
	}
}

func (s *Selection) Close() error {
	return s.source.Close()
}
