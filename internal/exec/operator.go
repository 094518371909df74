// Package exec implements the pull-based query operators: each
// operator is opened, drained record by record, and closed. Next
// returns (nil, nil) at end-of-stream.
package exec

import (
	"errors"
	"fmt"

	"github.com/tuannm99/pagedb/internal/record"
)

type Operator interface {
	Open() error
	Next() (*record.Record, error)
	Close() error
}

// Comparator names the predicate between an attribute and a literal
// (Selection) or between two attributes (Join).
type Comparator string

const (
	Eq Comparator = "=="
	Ne Comparator = "!="
	Lt Comparator = "<"
	Le Comparator = "<="
	Gt Comparator = ">"
	Ge Comparator = ">="
)

var (
	ErrBadComparator  = errors.New("exec: unknown comparator")
	ErrOrderedCompare = errors.New("exec: ordering comparators require the integer type")
	ErrTypeMismatch   = errors.New("exec: literal value does not match the attribute type")
	ErrJoinTypes      = errors.New("exec: join attribute types differ")
)

// checkComparator validates a comparator against the attribute type it
// will be applied to. Equality works for every type; ordering only for
// integers.
func checkComparator(cmp Comparator, typ record.AttrType) error {
	switch cmp {
	case Eq, Ne:
		return nil
	case Lt, Le, Gt, Ge:
		if typ != record.AttrInt {
			return fmt.Errorf("%w: %s on %s", ErrOrderedCompare, cmp, typ)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrBadComparator, cmp)
	}
}

// attrAt reads attribute pos of rec as the given type.
func attrAt(rec *record.Record, pos int, typ record.AttrType) (any, error) {
	switch typ {
	case record.AttrInt:
		return rec.IntAt(pos)
	case record.AttrString:
		return rec.StringAt(pos)
	case record.AttrBool:
		return rec.BoolAt(pos)
	default:
		return nil, fmt.Errorf("%w: %d", record.ErrUnsupportedAttr, typ)
	}
}

// compare applies cmp to two values of the same attribute type.
func compare(a, b any, cmp Comparator) bool {
	switch cmp {
	case Eq:
		return a == b
	case Ne:
		return a != b
	}

	// validated upfront: ordering implies integers
	x, _ := a.(int32)
	y, _ := b.(int32)
	switch cmp {
	case Lt:
		return x < y
	case Le:
		return x <= y
	case Gt:
		return x > y
	case Ge:
		return x >= y
	}
	return false
}
