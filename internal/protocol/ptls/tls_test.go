package ptls

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/flow"
	"github.com/packwright/packwright/internal/render"
	"github.com/packwright/packwright/internal/store"
)

func newTestContext() (*store.Context, int) {
	buf := capbuf.NewBuffer()
	ctx := store.NewContext(buf)

	cli := flow.Tuple{
		SrcIP:   netip.MustParseAddr("10.0.0.1"),
		DstIP:   netip.MustParseAddr("10.0.0.2"),
		SrcPort: 5000,
		DstPort: 443,
	}
	now := time.Unix(0, 0)
	r := ctx.Tracker().OnSegment(cli, 100, 0, flow.FlagSYN, flow.Segment{}, now)
	return ctx, r.ConnectionID
}

func appendSegment(ctx *store.Context, frameIdx uint32, b []byte) flow.Segment {
	start := ctx.Buffer().End()
	ctx.Buffer().Append(b)
	return flow.Segment{FrameIndex: frameIdx, Start: start, End: start + uint64(len(b))}
}

// u16 appends a big-endian uint16.
func u16(b []byte, v uint16) []byte { return append(b, byte(v>>8), byte(v)) }

// buildClientHelloBody constructs the handshake-message body (version,
// random, empty session id, one cipher suite, null compression, SNI
// extension) used by the ClientHello tests below.
func buildClientHelloBody(sni string) []byte {
	var b []byte
	b = u16(b, 0x0303) // TLS 1.2 legacy version
	b = append(b, make([]byte, 32)...)
	b = append(b, 0) // session id len
	b = u16(b, 2)    // cipher suites length
	b = u16(b, 0x1301)
	b = append(b, 1, 0) // compression methods: len=1, null

	var ext []byte
	var sniEntry []byte
	sniEntry = append(sniEntry, 0) // host_name
	sniEntry = u16(sniEntry, uint16(len(sni)))
	sniEntry = append(sniEntry, []byte(sni)...)
	var sniList []byte
	sniList = u16(sniList, uint16(len(sniEntry)))
	sniList = append(sniList, sniEntry...)

	ext = u16(ext, 0) // extension type: server_name
	ext = u16(ext, uint16(len(sniList)))
	ext = append(ext, sniList...)

	var out []byte
	out = append(out, b...)
	out = u16(out, uint16(len(ext)))
	out = append(out, ext...)
	return out
}

func buildHandshakeMessage(msgType byte, body []byte) []byte {
	hdr := []byte{msgType, byte(len(body) >> 16), byte(len(body) >> 8), byte(len(body))}
	return append(hdr, body...)
}

func buildRecord(recordType uint8, payload []byte) []byte {
	hdr := []byte{recordType, 0x03, 0x03, byte(len(payload) >> 8), byte(len(payload))}
	return append(hdr, payload...)
}

// TestFeedClientHelloSplitAcrossSegments mirrors spec.md E3: the SNI
// extension lands in a second segment after the record header and the
// start of the handshake body arrive in the first.
func TestFeedClientHelloSplitAcrossSegments(t *testing.T) {
	ctx, connID := newTestContext()
	now := time.Unix(0, 0)

	body := buildClientHelloBody("example.com")
	msg := buildHandshakeMessage(handshakeClientHello, body)
	record := buildRecord(recordHandshake, msg)

	split := 10
	seg1 := appendSegment(ctx, 1, record[:split])
	seg2 := appendSegment(ctx, 2, record[split:])

	Feed(ctx, connID, false, []flow.Segment{seg1}, now)
	Feed(ctx, connID, false, []flow.Segment{seg2}, now)

	require.Len(t, ctx.TlsConversations(), 1)
	tc := ctx.TlsConversations()[0]
	require.NotNil(t, tc.ClientHello)
	assert.Equal(t, "example.com", tc.ClientHello.SNI)
	assert.EqualValues(t, 0x0303, tc.ClientHello.Version)
	assert.Contains(t, tc.ClientHello.OfferedCiphers, uint16(0x1301))
}

// TestFeedRecordHeaderSplitAtFiveByteBoundary exercises the boundary case
// where the 5-byte record header itself is split across two segments.
func TestFeedRecordHeaderSplitAtFiveByteBoundary(t *testing.T) {
	ctx, connID := newTestContext()
	now := time.Unix(0, 0)

	body := buildClientHelloBody("a.example")
	msg := buildHandshakeMessage(handshakeClientHello, body)
	record := buildRecord(recordHandshake, msg)

	seg1 := appendSegment(ctx, 1, record[:3])
	seg2 := appendSegment(ctx, 2, record[3:])

	Feed(ctx, connID, false, []flow.Segment{seg1}, now)
	Feed(ctx, connID, false, []flow.Segment{seg2}, now)

	require.Len(t, ctx.TlsConversations(), 1)
	tc := ctx.TlsConversations()[0]
	require.NotNil(t, tc.ClientHello)
	assert.Equal(t, "a.example", tc.ClientHello.SNI)
}

func TestFeedApplicationDataCountsByDirection(t *testing.T) {
	ctx, connID := newTestContext()
	now := time.Unix(0, 0)

	appRecord := buildRecord(recordApplication, []byte("encrypted-bytes"))
	seg := appendSegment(ctx, 1, appRecord)
	Feed(ctx, connID, false, []flow.Segment{seg}, now)

	seg2 := appendSegment(ctx, 2, appRecord)
	Feed(ctx, connID, true, []flow.Segment{seg2}, now)

	require.Len(t, ctx.TlsConversations(), 1)
	tc := ctx.TlsConversations()[0]
	assert.Equal(t, 1, tc.ApplicationOut)
	assert.Equal(t, 1, tc.ApplicationIn)
}

// TestDetailOnlyAttachesHelloToOwningFrame guards against a regression
// where every frame on a connection rendered every ClientHello/ServerHello
// ever seen on it, rather than just the one it actually carried.
func TestDetailOnlyAttachesHelloToOwningFrame(t *testing.T) {
	ctx, connID := newTestContext()
	now := time.Unix(0, 0)

	body := buildClientHelloBody("example.com")
	msg := buildHandshakeMessage(handshakeClientHello, body)
	record := buildRecord(recordHandshake, msg)

	const owningFrame = 7
	seg := appendSegment(ctx, owningFrame, record)
	Feed(ctx, connID, false, []flow.Segment{seg}, now)

	require.Len(t, ctx.TlsConversations(), 1)
	tc := ctx.TlsConversations()[0]
	require.NotNil(t, tc.ClientHello)
	assert.EqualValues(t, owningFrame, tc.ClientHello.FrameIndex)

	owning := &store.Frame{Index: owningFrame, DataStart: seg.Start, DataEnd: seg.End}
	root := render.New("frame", 0, 0)
	detail(root, ctx, owning, nil)
	assert.Len(t, root.Children, 1)

	unrelated := &store.Frame{Index: owningFrame + 1, DataStart: seg.Start, DataEnd: seg.End}
	root2 := render.New("frame", 0, 0)
	detail(root2, ctx, unrelated, nil)
	assert.Empty(t, root2.Children)
}
