package demux

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packwright/packwright/internal/capbuf"
)

func blockWithTrailer(order binary.ByteOrder, blockType uint32, body []byte) []byte {
	total := 8 + len(body) + 4
	b := make([]byte, total)
	order.PutUint32(b[0:4], blockType)
	order.PutUint32(b[4:8], uint32(total))
	copy(b[8:], body)
	order.PutUint32(b[total-4:total], uint32(total))
	return b
}

func buildSHB(order binary.ByteOrder) []byte {
	body := make([]byte, 16)
	if order == binary.BigEndian {
		binary.BigEndian.PutUint32(body[0:4], pcapngByteOrderBE)
	} else {
		binary.LittleEndian.PutUint32(body[0:4], pcapngByteOrderBE)
	}
	return blockWithTrailer(order, blockTypeSHB, body)
}

func buildIDB(order binary.ByteOrder, linkType uint16, snaplen uint32) []byte {
	body := make([]byte, 8)
	order.PutUint16(body[0:2], linkType)
	order.PutUint32(body[4:8], snaplen)
	return blockWithTrailer(order, blockTypeIDB, body)
}

func buildEPB(order binary.ByteOrder, ifaceID uint32, payload []byte) []byte {
	body := make([]byte, 20+len(payload))
	order.PutUint32(body[0:4], ifaceID)
	order.PutUint32(body[4:8], 0)
	order.PutUint32(body[8:12], 1_000_000)
	order.PutUint32(body[12:16], uint32(len(payload)))
	order.PutUint32(body[16:20], uint32(len(payload)))
	copy(body[20:], payload)
	return blockWithTrailer(order, blockTypeEPB, body)
}

func TestPcapngDemuxBasicIteration(t *testing.T) {
	buf := capbuf.NewBuffer()
	buf.Append(buildSHB(binary.BigEndian))
	buf.Append(buildIDB(binary.BigEndian, 1, 65535))
	buf.Append(buildEPB(binary.BigEndian, 0, []byte("ngframe")))

	d, err := New(buf)
	require.NoError(t, err)
	assert.Equal(t, "pcapng", d.Meta().Format)

	f, err := d.Next()
	require.NoError(t, err)
	assert.EqualValues(t, 7, f.CapturedLen)
	assert.Equal(t, LinkTypeEthernet, f.LinkType)

	data, err := buf.Slice(f.DataStart, f.DataEnd)
	require.NoError(t, err)
	assert.Equal(t, "ngframe", string(data))

	_, err = d.Next()
	assert.ErrorIs(t, err, capbuf.ErrEndOfStream)
}

// TestPcapngDemuxTruncatedEPB models spec.md E6: a file ending mid-Enhanced
// Packet Block. Next must rewind to the block start and signal
// EndOfStream rather than misparsing a partial block.
func TestPcapngDemuxTruncatedEPB(t *testing.T) {
	buf := capbuf.NewBuffer()
	buf.Append(buildSHB(binary.BigEndian))
	buf.Append(buildIDB(binary.BigEndian, 1, 65535))

	full := buildEPB(binary.BigEndian, 0, []byte("a complete payload"))
	blockStart := buf.End()
	buf.Append(full[:len(full)-5])

	d, err := New(buf)
	require.NoError(t, err)

	_, err = d.Next()
	assert.ErrorIs(t, err, capbuf.ErrEndOfStream)
	assert.Equal(t, blockStart, d.Cursor())

	buf.Append(full[len(full)-5:])
	f, err := d.Next()
	require.NoError(t, err)
	assert.EqualValues(t, len("a complete payload"), f.CapturedLen)
}

func TestPcapngMinBlockLenRejected(t *testing.T) {
	buf := capbuf.NewBuffer()
	buf.Append(buildSHB(binary.BigEndian))

	bad := make([]byte, pcapngMinBlockLen)
	binary.BigEndian.PutUint32(bad[0:4], blockTypeISB)
	binary.BigEndian.PutUint32(bad[4:8], pcapngMinBlockLen-4) // below the 12-byte minimum
	buf.Append(bad)

	d, err := New(buf)
	require.NoError(t, err)
	_, err = d.Next()
	assert.ErrorIs(t, err, ErrFormatMismatch)
}
