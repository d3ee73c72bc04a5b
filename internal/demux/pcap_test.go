package demux

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packwright/packwright/internal/capbuf"
)

func buildPcapGlobalHeader(order binary.ByteOrder, magic uint32, linkType uint32) []byte {
	h := make([]byte, pcapGlobalHeaderLen)
	order.PutUint32(h[0:4], magic)
	order.PutUint16(h[4:6], 2)
	order.PutUint16(h[6:8], 4)
	order.PutUint32(h[16:20], 65535)
	order.PutUint32(h[20:24], linkType)
	return h
}

func buildPcapRecord(order binary.ByteOrder, payload []byte) []byte {
	h := make([]byte, pcapRecordHeaderLen)
	order.PutUint32(h[0:4], 1)
	order.PutUint32(h[4:8], 0)
	order.PutUint32(h[8:12], uint32(len(payload)))
	order.PutUint32(h[12:16], uint32(len(payload)))
	return append(h, payload...)
}

func TestPcapDemuxBasicIteration(t *testing.T) {
	buf := capbuf.NewBuffer()
	buf.Append(buildPcapGlobalHeader(binary.BigEndian, pcapMagicBE, 1))
	buf.Append(buildPcapRecord(binary.BigEndian, []byte("hello")))
	buf.Append(buildPcapRecord(binary.BigEndian, nil)) // captured_len=0 boundary case

	d, err := New(buf)
	require.NoError(t, err)
	assert.Equal(t, "pcap", d.Meta().Format)
	assert.Equal(t, LinkTypeEthernet, d.Meta().Interfaces[0].LinkType)

	f1, err := d.Next()
	require.NoError(t, err)
	assert.EqualValues(t, 5, f1.CapturedLen)
	assert.EqualValues(t, 0, f1.Index)

	f2, err := d.Next()
	require.NoError(t, err)
	assert.EqualValues(t, 0, f2.CapturedLen)
	assert.EqualValues(t, 1, f2.Index)

	_, err = d.Next()
	assert.ErrorIs(t, err, capbuf.ErrEndOfStream)
	assert.Equal(t, d.Cursor(), buf.End())
}

func TestPcapDemuxTruncatedRecordStallsCursor(t *testing.T) {
	buf := capbuf.NewBuffer()
	buf.Append(buildPcapGlobalHeader(binary.LittleEndian, pcapMagicLE, 1))
	full := buildPcapRecord(binary.LittleEndian, []byte("a whole payload"))
	buf.Append(full[:len(full)-3]) // cut a few bytes off the end

	d, err := New(buf)
	require.NoError(t, err)

	_, err = d.Next()
	assert.ErrorIs(t, err, capbuf.ErrEndOfStream)
	assert.Less(t, d.Cursor(), buf.End())
}

func TestDemuxUnsupportedMagic(t *testing.T) {
	buf := capbuf.NewBuffer()
	buf.Append([]byte{0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 0})
	_, err := New(buf)
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
}

func TestDemuxResumeAfterAppend(t *testing.T) {
	buf := capbuf.NewBuffer()
	buf.Append(buildPcapGlobalHeader(binary.BigEndian, pcapMagicBE, 1))
	rec := buildPcapRecord(binary.BigEndian, []byte("resumed"))

	buf.Append(rec[:10])
	d, err := New(buf)
	require.NoError(t, err)

	_, err = d.Next()
	assert.ErrorIs(t, err, capbuf.ErrEndOfStream)
	cursorBefore := d.Cursor()

	buf.Append(rec[10:])
	f, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "resumed", string(mustSlice(t, buf, f.DataStart, f.DataEnd)))
	assert.Equal(t, cursorBefore, uint64(pcapGlobalHeaderLen))
}

func mustSlice(t *testing.T, buf *capbuf.Buffer, start, end uint64) []byte {
	t.Helper()
	b, err := buf.Slice(start, end)
	require.NoError(t, err)
	return b
}
