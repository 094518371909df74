package record

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/tuannm99/pagedb/internal/alias/bx"
)

const (
	// IDSize is the fixed width of a record id: the 5-byte id of the
	// owning page followed by the zero-padded 5-digit slot index.
	IDSize = 10

	sizeFieldLen = 4
	offsetLen    = 4
)

// AttrType tags the variants a record attribute can take. The schema is
// not stored with the record; callers supply the tags positionally.
type AttrType uint8

const (
	AttrInt AttrType = iota
	AttrString
	AttrBool
)

func (t AttrType) String() string {
	switch t {
	case AttrInt:
		return "int"
	case AttrString:
		return "string"
	case AttrBool:
		return "bool"
	default:
		return "unknown"
	}
}

var (
	ErrBadRecordID     = errors.New("record: record id must be exactly 10 bytes long")
	ErrUnsupportedAttr = errors.New("record: unsupported attribute type")
	ErrBadAttrIndex    = errors.New("record: attribute index out of range")
)

// Record is a self-framed run of bytes:
//
//	[size:i32][offset_0 .. offset_n+1 : i32 each][payload_0 | payload_1 | ...]
//
// Attribute 0 is always the 10-byte record id. Attribute i occupies
// [offset_i, offset_i+1), so string lengths are implicit.
type Record struct {
	data []byte
}

// New serializes (recordID, attrs) into a fresh buffer. Attributes may
// be int, int32, string or bool.
func New(recordID string, attrs []any) (*Record, error) {
	if len(recordID) != IDSize {
		return nil, ErrBadRecordID
	}

	size := sizeFieldLen + (len(attrs)+2)*offsetLen + IDSize
	for _, a := range attrs {
		n, err := attrSize(a)
		if err != nil {
			return nil, err
		}
		size += n
	}

	buf := make([]byte, size)
	bx.PutI32(buf, int32(size))

	dirOff := sizeFieldLen
	off := sizeFieldLen + (len(attrs)+2)*offsetLen

	// record id is attribute 0
	bx.PutI32At(buf, dirOff, int32(off))
	copy(buf[off:], recordID)
	dirOff += offsetLen
	off += IDSize

	for _, a := range attrs {
		bx.PutI32At(buf, dirOff, int32(off))
		dirOff += offsetLen

		switch v := a.(type) {
		case int:
			bx.PutI32At(buf, off, int32(v))
			off += 4
		case int32:
			bx.PutI32At(buf, off, v)
			off += 4
		case string:
			copy(buf[off:], v)
			off += len(v)
		case bool:
			if v {
				buf[off] = 1
			}
			off++
		}
	}

	// sentinel offset == total size
	bx.PutI32At(buf, dirOff, int32(off))

	return &Record{data: buf}, nil
}

// FromBytes wraps an already-serialized record without copying.
func FromBytes(data []byte) *Record {
	return &Record{data: data}
}

func attrSize(a any) (int, error) {
	switch v := a.(type) {
	case int, int32:
		return 4, nil
	case string:
		return len(v), nil
	case bool:
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedAttr, a)
	}
}

// Size returns the total serialized size in bytes.
func (r *Record) Size() int {
	return int(bx.I32(r.data))
}

// NumAttrs returns the attribute count including the record id.
func (r *Record) NumAttrs() int {
	first := int(bx.I32At(r.data, sizeFieldLen))
	return (first-sizeFieldLen)/offsetLen - 1
}

// ID returns attribute 0, the record id.
func (r *Record) ID() string {
	id, _ := r.StringAt(0)
	return id
}

// Bytes exposes the underlying serialized form.
func (r *Record) Bytes() []byte {
	return r.data
}

func (r *Record) span(i int) (int, int, error) {
	if i < 0 || i >= r.NumAttrs() {
		return 0, 0, fmt.Errorf("%w: %d", ErrBadAttrIndex, i)
	}
	start := int(bx.I32At(r.data, sizeFieldLen+i*offsetLen))
	end := int(bx.I32At(r.data, sizeFieldLen+(i+1)*offsetLen))
	return start, end, nil
}

// IntAt reads attribute i as a 32-bit integer.
func (r *Record) IntAt(i int) (int32, error) {
	start, _, err := r.span(i)
	if err != nil {
		return 0, err
	}
	return bx.I32At(r.data, start), nil
}

// StringAt reads attribute i as a byte string, verbatim.
func (r *Record) StringAt(i int) (string, error) {
	start, end, err := r.span(i)
	if err != nil {
		return "", err
	}
	return string(r.data[start:end]), nil
}

// BoolAt reads attribute i as a boolean.
func (r *Record) BoolAt(i int) (bool, error) {
	start, _, err := r.span(i)
	if err != nil {
		return false, err
	}
	return r.data[start] != 0, nil
}

// Hash folds the user-attribute payload (everything after the record
// id) into a deterministic 32-bit value. The record id is deliberately
// excluded so that two records carrying identical attribute values hash
// alike regardless of where they are stored.
func (r *Record) Hash() int32 {
	start := int(bx.I32At(r.data, sizeFieldLen+offsetLen))
	h := xxhash.Sum64(r.data[start:])
	return int32(uint32(h) ^ uint32(h>>32))
}
