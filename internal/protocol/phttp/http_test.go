package phttp

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

func newTestContext() (*store.Context, int) {
	buf := capbuf.NewBuffer()
	ctx := store.NewContext(buf)

	cli := flow.Tuple{
		SrcIP:   netip.MustParseAddr("10.0.0.1"),
		DstIP:   netip.MustParseAddr("10.0.0.2"),
		SrcPort: 4000,
		DstPort: 80,
	}
	now := time.Unix(0, 0)
	r := ctx.Tracker().OnSegment(cli, 100, 0, flow.FlagSYN, flow.Segment{}, now)
	return ctx, r.ConnectionID
}

// appendSegment writes b to the buffer at its current end and returns the
// flow.Segment descriptor for it.
func appendSegment(ctx *store.Context, frameIdx uint32, b []byte) flow.Segment {
	start := ctx.Buffer().End()
	ctx.Buffer().Append(b)
	return flow.Segment{FrameIndex: frameIdx, Start: start, End: start + uint64(len(b))}
}

func TestFeedSimpleRequestResponse(t *testing.T) {
	ctx, connID := newTestContext()
	now := time.Unix(0, 0)

	req := "GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n"
	seg := appendSegment(ctx, 1, []byte(req))
	Feed(ctx, connID, false, []flow.Segment{seg}, now)

	require.Len(t, ctx.HttpMessages(), 1)
	reqMsg := ctx.HttpMessage(0)
	assert.True(t, reqMsg.IsRequest)
	assert.Equal(t, "GET", reqMsg.Method)
	assert.Equal(t, "/index.html", reqMsg.Path)
	assert.Equal(t, "example.com", reqMsg.Host)

	require.Len(t, ctx.HttpConnects(), 1)
	assert.False(t, ctx.HttpConnect(0).Closed)

	resp := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"
	seg2 := appendSegment(ctx, 2, []byte(resp))
	Feed(ctx, connID, true, []flow.Segment{seg2}, now.Add(time.Millisecond))

	require.Len(t, ctx.HttpMessages(), 2)
	respMsg := ctx.HttpMessage(1)
	assert.Equal(t, 200, respMsg.StatusCode)
	require.Len(t, respMsg.Body, 1)

	body, err := ctx.Buffer().Slice(respMsg.Body[0].Start, respMsg.Body[0].End)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	assert.True(t, ctx.HttpConnect(0).Closed)
}

// TestFeedChunkedBodyAcrossSegments mirrors spec.md E2: chunk framing split
// across three arriving segments must still commit exactly one response
// whose body is the concatenation of the chunk payloads.
func TestFeedChunkedBodyAcrossSegments(t *testing.T) {
	ctx, connID := newTestContext()
	now := time.Unix(0, 0)

	// Establish the request side so the connection/endpoints exist; body
	// content doesn't matter for this test.
	reqSeg := appendSegment(ctx, 1, []byte("GET / HTTP/1.1\r\n\r\n"))
	Feed(ctx, connID, false, []flow.Segment{reqSeg}, now)

	seg1 := appendSegment(ctx, 2, []byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\n"))
	seg2 := appendSegment(ctx, 3, []byte("hello\r\n6\r\nworld!"))
	seg3 := appendSegment(ctx, 4, []byte("\r\n0\r\n\r\n"))

	Feed(ctx, connID, true, []flow.Segment{seg1}, now)
	Feed(ctx, connID, true, []flow.Segment{seg2}, now)
	Feed(ctx, connID, true, []flow.Segment{seg3}, now)

	require.Len(t, ctx.HttpMessages(), 2)
	resp := ctx.HttpMessage(1)
	assert.True(t, resp.Chunked)

	var body []byte
	for _, rng := range resp.Body {
		b, err := ctx.Buffer().Slice(rng.Start, rng.End)
		require.NoError(t, err)
		body = append(body, b...)
	}
	assert.Equal(t, "helloworld!", string(body))

	conn := ctx.Tracker().Connection(connID)
	ep := conn.Endpoint(true)
	st := getState(ep)
	assert.Equal(t, phaseFirstLine, st.phase)
}

func TestFeedRetransmitDuplicateDoesNotDoubleCommit(t *testing.T) {
	ctx, connID := newTestContext()
	now := time.Unix(0, 0)

	req := "GET / HTTP/1.1\r\nHost: x\r\n\r\n"
	seg := appendSegment(ctx, 1, []byte(req))
	Feed(ctx, connID, false, []flow.Segment{seg}, now)
	require.Len(t, ctx.HttpMessages(), 1)

	// A second Feed call carrying no new segments (the tracker does not
	// re-emit a retransmitted segment) must not produce a second message.
	Feed(ctx, connID, false, nil, now)
	assert.Len(t, ctx.HttpMessages(), 1)
}
