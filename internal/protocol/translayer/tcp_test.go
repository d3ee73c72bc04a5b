package translayer

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/flow"
	"github.com/packwright/packwright/internal/store"
)

func u16(v uint16) []byte { return []byte{byte(v >> 8), byte(v)} }
func u32(v uint32) []byte { return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)} }

// buildTCPSegment assembles a minimal 20-byte-header TCP segment (no
// options) with the given flags/seq/ack and payload.
func buildTCPSegment(srcPort, dstPort uint16, seq, ack uint32, flags uint8, payload []byte) []byte {
	var b []byte
	b = append(b, u16(srcPort)...)
	b = append(b, u16(dstPort)...)
	b = append(b, u32(seq)...)
	b = append(b, u32(ack)...)
	b = append(b, 5<<4) // data offset = 5 words = 20 bytes
	b = append(b, flags)
	b = append(b, u16(2000)...) // window
	b = append(b, 0, 0)         // checksum
	b = append(b, 0, 0)         // urgent pointer
	b = append(b, payload...)
	return b
}

func newFrameWithAddress(ctx *store.Context, seg []byte) *store.Frame {
	start := ctx.Buffer().End()
	ctx.Buffer().Append(seg)
	f := &store.Frame{
		DataStart:  start,
		DataEnd:    start + uint64(len(seg)),
		Properties: map[string]string{},
		Address: &store.AddressField{
			Src: netip.MustParseAddr("10.0.0.1"),
			Dst: netip.MustParseAddr("10.0.0.2"),
		},
	}
	ctx.AppendFrame(f)
	return f
}

func TestParseTCPTracksHandshakeAndRoutesHTTP(t *testing.T) {
	buf := capbuf.NewBuffer()
	ctx := store.NewContext(buf)
	now := time.Unix(0, 0)

	// SYN
	synSeg := buildTCPSegment(4000, 80, 100, 0, wireSYN, nil)
	synFrame := newFrameWithAddress(ctx, synSeg)
	synFrame.Timestamp = now
	r := buf.NewReader(synFrame.DataStart, synFrame.DataEnd)
	_, err := parseTCP(ctx, synFrame, r)
	require.NoError(t, err)
	assert.NotNil(t, synFrame.TCP)

	// SYN+ACK from server
	synAckSeg := buildTCPSegment(80, 4000, 500, 101, wireSYN|wireACK, nil)
	synAckFrame := newFrameWithAddress(ctx, synAckSeg)
	synAckFrame.Address.Src, synAckFrame.Address.Dst = synAckFrame.Address.Dst, synAckFrame.Address.Src
	synAckFrame.Timestamp = now
	r = buf.NewReader(synAckFrame.DataStart, synAckFrame.DataEnd)
	_, err = parseTCP(ctx, synAckFrame, r)
	require.NoError(t, err)

	// final ACK completes the handshake
	ackSeg := buildTCPSegment(4000, 80, 101, 501, wireACK, nil)
	ackFrame := newFrameWithAddress(ctx, ackSeg)
	ackFrame.Timestamp = now
	r = buf.NewReader(ackFrame.DataStart, ackFrame.DataEnd)
	_, err = parseTCP(ctx, ackFrame, r)
	require.NoError(t, err)

	connID := ackFrame.ConnectionID
	require.GreaterOrEqual(t, connID, 0)

	// First payload segment looks like an HTTP request line; the bridge
	// should detect it and hand the bytes to phttp, producing an
	// HttpMessage without the test calling phttp.Feed itself.
	reqPayload := []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	reqSeg := buildTCPSegment(4000, 80, 101, 501, wireACK|wirePSH, reqPayload)
	reqFrame := newFrameWithAddress(ctx, reqSeg)
	reqFrame.Timestamp = now
	r = buf.NewReader(reqFrame.DataStart, reqFrame.DataEnd)
	_, err = parseTCP(ctx, reqFrame, r)
	require.NoError(t, err)

	require.Len(t, ctx.HttpMessages(), 1)
	assert.Equal(t, "GET", ctx.HttpMessage(0).Method)
	assert.Contains(t, reqFrame.ParsedProtocols, store.Tag("http"))
	assert.Equal(t, "NEXT", reqFrame.Properties["tcp.analysis"])
}

func TestDetectNextProtocolRecognizesTLSAndHTTPVerbs(t *testing.T) {
	assert.Equal(t, flow.ProtoTLS, detectNextProtocol([]byte{22, 3, 3, 0, 1}))
	assert.Equal(t, flow.ProtoHTTP, detectNextProtocol([]byte("POST /x HTTP/1.1\r\n")))
	assert.Equal(t, flow.ProtoHTTP, detectNextProtocol([]byte("HTTP/1.1 200 OK\r\n")))
	assert.Equal(t, flow.ProtoUnknown, detectNextProtocol([]byte{0x01, 0x02, 0x03}))
}
