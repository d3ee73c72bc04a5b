package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/store"
)

func newFrame(props map[string]string) *store.Frame {
	if props == nil {
		props = map[string]string{}
	}
	return &store.Frame{Properties: props}
}

func TestStatReportsCountsPerField(t *testing.T) {
	ctx := store.NewContext(capbuf.NewBuffer())
	ctx.AppendFrame(newFrame(nil))
	ctx.AppendFrame(newFrame(nil))
	ctx.AppendDnsRecord(&store.DnsRecord{Name: "a."})

	s := New(ctx, nil)

	n, err := s.Stat("frames")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Stat("dns_records")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Stat("bogus")
	assert.ErrorIs(t, err, ErrUnknownStat)
}

func TestFrameListFiltersByProperty(t *testing.T) {
	ctx := store.NewContext(capbuf.NewBuffer())
	ctx.AppendFrame(newFrame(map[string]string{"http.status": "200"}))
	ctx.AppendFrame(newFrame(map[string]string{"http.status": "404"}))
	ctx.AppendFrame(newFrame(map[string]string{"dns.qname": "x.test"}))

	s := New(ctx, nil)

	page, err := s.FrameList(0, 10, `http.status == 200`)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.EqualValues(t, 0, page.Items[0].Index)

	page, err = s.FrameList(0, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)

	page, err = s.FrameList(1, 10, "")
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.EqualValues(t, 1, page.Items[0].Index)
}

func TestHttpListOrdersByRequestTimeAndFiltersByHost(t *testing.T) {
	ctx := store.NewContext(capbuf.NewBuffer())

	earlier := time.Unix(100, 0)
	later := time.Unix(200, 0)

	reqA := &store.HttpMessage{IsRequest: true, Host: "a.example.com"}
	idxA := ctx.AppendHttpMessage(reqA)
	connA := ctx.OpenHttpConnect(1, idxA, earlier)
	respA := &store.HttpMessage{IsRequest: false, StatusCode: 200}
	idxRespA := ctx.AppendHttpMessage(respA)
	ctx.CloseOldestHttpConnect(1, idxRespA, earlier.Add(time.Millisecond))

	reqB := &store.HttpMessage{IsRequest: true, Host: "b.example.com"}
	idxB := ctx.AppendHttpMessage(reqB)
	ctx.OpenHttpConnect(2, idxB, later)
	respB := &store.HttpMessage{IsRequest: false, StatusCode: 500}
	idxRespB := ctx.AppendHttpMessage(respB)
	ctx.CloseOldestHttpConnect(2, idxRespB, later.Add(time.Millisecond))

	s := New(ctx, nil)

	page := s.HttpList(0, 10, "", false) // newest first
	require.Len(t, page.Items, 2)
	assert.Equal(t, "b.example.com", page.Items[0].Host)
	assert.Equal(t, 500, page.Items[0].StatusCode)
	assert.Equal(t, "a.example.com", page.Items[1].Host)

	page = s.HttpList(0, 10, "a.example.com", false)
	require.Len(t, page.Items, 1)
	assert.Equal(t, connA, page.Items[0].ConnectIndex)
}

func TestDnsRecordListOrdering(t *testing.T) {
	ctx := store.NewContext(capbuf.NewBuffer())
	ctx.AppendDnsRecord(&store.DnsRecord{Name: "first"})
	ctx.AppendDnsRecord(&store.DnsRecord{Name: "second"})

	s := New(ctx, nil)

	desc := s.DnsRecordList(0, 10, false)
	require.Len(t, desc.Items, 2)
	assert.Equal(t, "second", desc.Items[0].Name)

	asc := s.DnsRecordList(0, 10, true)
	assert.Equal(t, "first", asc.Items[0].Name)
}
