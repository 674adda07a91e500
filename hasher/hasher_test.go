package hasher_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamedolphin/gafferchallenge/hasher"
)

func TestSum64Vectors(t *testing.T) {
	// Published FNV-1a 64-bit vectors.
	cases := []struct {
		in   string
		want uint64
	}{
		{"", 0xcbf29ce484222325},
		{"a", 0xaf63dc4c8601ec8c},
		{"foobar", 0x85944171f73967e8},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, hasher.Sum64([]byte(c.in)), "input %q", c.in)
	}
	assert.Equal(t, hasher.OffsetBasis, hasher.Sum64(nil))
}

func TestSum64Deterministic(t *testing.T) {
	p := []byte("hello")
	assert.Equal(t, hasher.Sum64(p), hasher.Sum64(append([]byte(nil), p...)))
	assert.NotEqual(t, hasher.Sum64([]byte("hello")), hasher.Sum64([]byte("hellp")))
}

func TestLittleEndianEncoding(t *testing.T) {
	h := hasher.Sum64([]byte("hello"))
	b := hasher.LittleEndian.Append(nil, h)
	require.Len(t, b, hasher.Size)
	assert.Equal(t, h, binary.LittleEndian.Uint64(b))

	got, err := hasher.LittleEndian.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, h, got)

	_, err = hasher.LittleEndian.Decode(b[:7])
	assert.Error(t, err)
}

func TestBigEndianEncoding(t *testing.T) {
	h := hasher.Sum64([]byte("hello"))
	b := hasher.BigEndian.Append(nil, h)
	require.Len(t, b, hasher.Size)
	assert.Equal(t, h, binary.BigEndian.Uint64(b))
	assert.NotEqual(t, hasher.LittleEndian.Append(nil, h), b)

	got, err := hasher.BigEndian.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, h, got)

	_, err = hasher.BigEndian.Decode(b[:3])
	assert.Error(t, err)
}

func TestDecimalEncoding(t *testing.T) {
	b := hasher.Decimal.Append([]byte("x="), hasher.OffsetBasis)
	assert.Equal(t, "x=14695981039346656037", string(b))

	got, err := hasher.Decimal.Decode([]byte("14695981039346656037"))
	require.NoError(t, err)
	assert.Equal(t, hasher.OffsetBasis, got)

	_, err = hasher.Decimal.Decode([]byte("12ab"))
	assert.Error(t, err)
}

func TestParseEncoding(t *testing.T) {
	e, err := hasher.ParseEncoding("decimal")
	require.NoError(t, err)
	assert.Equal(t, hasher.Decimal, e)

	e, err = hasher.ParseEncoding("")
	require.NoError(t, err)
	assert.Equal(t, hasher.LittleEndian, e)

	e, err = hasher.ParseEncoding("big-endian")
	require.NoError(t, err)
	assert.Equal(t, hasher.BigEndian, e)
	assert.Equal(t, "big-endian", e.String())

	_, err = hasher.ParseEncoding("hex")
	assert.Error(t, err)
}
