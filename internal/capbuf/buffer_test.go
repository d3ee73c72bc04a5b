package capbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferAppendAndTrim(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte("hello"))
	b.Append([]byte(" world"))
	require.Equal(t, uint64(0), b.Base())
	require.Equal(t, uint64(11), b.End())

	s, err := b.Slice(0, 11)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(s))

	b.Trim(6)
	assert.Equal(t, uint64(6), b.Base())
	s, err = b.Slice(6, 11)
	require.NoError(t, err)
	assert.Equal(t, "world", string(s))

	_, err = b.Slice(0, 11)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestBufferTrimIsNoopBelowBase(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte("0123456789"))
	b.Trim(4)
	b.Trim(2) // below current base: no-op
	assert.Equal(t, uint64(4), b.Base())
}

func TestReaderReadAcrossAppends(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte{0x00, 0x01})
	r := b.NewReader(0, 2)

	_, err := r.ReadU32BE()
	assert.ErrorIs(t, err, ErrEndOfStream)

	b.Append([]byte{0x02, 0x03})
	r2 := b.NewReader(0, 4)
	v, err := r2.ReadU32BE()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x00010203), v)
}

func TestReaderCRLFLine(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	r := b.NewReader(0, b.End())

	line, err := r.ReadCRLFLine()
	require.NoError(t, err)
	assert.Equal(t, "GET / HTTP/1.1", line)

	line, err = r.ReadCRLFLine()
	require.NoError(t, err)
	assert.Equal(t, "Host: x", line)

	line, err = r.ReadCRLFLine()
	require.NoError(t, err)
	assert.Equal(t, "", line)
}

func TestReaderSubReaderBounds(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte("abcdefgh"))
	r := b.NewReader(0, 8)

	sub, err := r.SubReader(4)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), sub.Left())

	data, err := sub.SliceN(4)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(data))

	rest, err := r.SliceN(4)
	require.NoError(t, err)
	assert.Equal(t, "efgh", string(rest))
}
