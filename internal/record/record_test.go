package record

import (
	"testing"

	"github.com/go-faker/faker/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_RoundTrip(t *testing.T) {
	id := "0000000001"
	rec, err := New(id, []any{int32(1), "Test", true})
	require.NoError(t, err)

	assert.Equal(t, id, rec.ID())
	assert.Equal(t, 4, rec.NumAttrs())

	i, err := rec.IntAt(1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), i)

	s, err := rec.StringAt(2)
	require.NoError(t, err)
	assert.Equal(t, "Test", s)

	b, err := rec.BoolAt(3)
	require.NoError(t, err)
	assert.True(t, b)

	// size = 4 (size field) + 5*4 (offsets) + 10 (id) + 4 + 4 + 1
	assert.Equal(t, 43, rec.Size())
	assert.Len(t, rec.Bytes(), 43)
}

func TestRecord_RoundTripRandomStrings(t *testing.T) {
	for range 32 {
		word := faker.Word()
		sentence := faker.Sentence()

		rec, err := New("0001200034", []any{word, int32(-7), sentence, false})
		require.NoError(t, err)

		// wrap the serialized form again, as the page does on read
		reread := FromBytes(rec.Bytes())

		w, err := reread.StringAt(1)
		require.NoError(t, err)
		assert.Equal(t, word, w)

		s, err := reread.StringAt(3)
		require.NoError(t, err)
		assert.Equal(t, sentence, s)

		n, err := reread.IntAt(2)
		require.NoError(t, err)
		assert.Equal(t, int32(-7), n)
	}
}

func TestRecord_BadID(t *testing.T) {
	_, err := New("short", []any{int32(1)})
	assert.ErrorIs(t, err, ErrBadRecordID)

	_, err = New("far too long to be a record id", nil)
	assert.ErrorIs(t, err, ErrBadRecordID)
}

func TestRecord_UnsupportedAttribute(t *testing.T) {
	_, err := New("0000000001", []any{3.14})
	assert.ErrorIs(t, err, ErrUnsupportedAttr)
}

func TestRecord_AttrIndexOutOfRange(t *testing.T) {
	rec, err := New("0000000001", []any{int32(1)})
	require.NoError(t, err)

	_, err = rec.IntAt(2)
	assert.ErrorIs(t, err, ErrBadAttrIndex)
	_, err = rec.StringAt(-1)
	assert.ErrorIs(t, err, ErrBadAttrIndex)
}

func TestRecord_HashIgnoresRecordID(t *testing.T) {
	a, err := New("0000000001", []any{int32(5), "Test", true})
	require.NoError(t, err)
	b, err := New("0004200017", []any{int32(5), "Test", true})
	require.NoError(t, err)
	c, err := New("0000000001", []any{int32(6), "Test", true})
	require.NoError(t, err)

	// same payload, different ids -> same hash
	assert.Equal(t, a.Hash(), b.Hash())
	// different payload -> different hash
	assert.NotEqual(t, a.Hash(), c.Hash())
	// deterministic
	assert.Equal(t, a.Hash(), a.Hash())
}
