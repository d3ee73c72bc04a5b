package pdns

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/store"
)

func u16(b []byte, v uint16) []byte { return append(b, byte(v>>8), byte(v)) }
func u32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func encodeName(name string) []byte {
	var out []byte
	start := 0
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == '.' {
			out = append(out, byte(i-start))
			out = append(out, name[start:i]...)
			start = i + 1
		}
	}
	return append(out, 0)
}

// buildResponse assembles a minimal DNS response: one question for
// "www.example.com" A/IN, and one CNAME answer whose owner name is a
// compression pointer back to the question name, per spec.md E5.
func buildResponse(t *testing.T) ([]byte, uint64) {
	t.Helper()
	var msg []byte
	msg = u16(msg, 0x1234)  // id
	msg = u16(msg, 0x8180)  // flags: response, recursion available
	msg = u16(msg, 1)       // qdcount
	msg = u16(msg, 1)       // ancount
	msg = u16(msg, 0)       // nscount
	msg = u16(msg, 0)       // arcount

	qnameOffset := uint64(len(msg))
	msg = append(msg, encodeName("www.example.com")...)
	msg = u16(msg, typeA)
	msg = u16(msg, 1) // IN

	// Answer: name = pointer to qnameOffset, type CNAME, class IN, ttl, rdata = target name.
	ptr := uint16(0xC000) | uint16(qnameOffset)
	msg = u16(msg, ptr)
	msg = u16(msg, typeCNAME)
	msg = u16(msg, 1)
	msg = u32(msg, 300)

	rdata := encodeName("cdn.example.net")
	msg = u16(msg, uint16(len(rdata)))
	msg = append(msg, rdata...)

	return msg, qnameOffset
}

func TestParseResponseWithCompressedAnswerName(t *testing.T) {
	msg, _ := buildResponse(t)

	buf := capbuf.NewBuffer()
	buf.Append(msg)

	ctx := store.NewContext(buf)
	frame := &store.Frame{Properties: map[string]string{}}
	ctx.AppendFrame(frame)

	r := buf.NewReader(0, uint64(len(msg)))
	tag, err := parse(ctx, frame, r)
	require.NoError(t, err)
	assert.Equal(t, store.TagNone, tag)

	assert.Equal(t, "www.example.com", frame.Properties["dns.qname"])

	require.Len(t, ctx.DnsRecords(), 1)
	rec := ctx.DnsRecords()[0]
	assert.Equal(t, "www.example.com", rec.Name)
	assert.Equal(t, "CNAME", rec.Type)
	assert.Equal(t, "IN", rec.Class)
	assert.EqualValues(t, 300, rec.TTL)
	assert.Equal(t, "cdn.example.net", rec.Content)
}

func TestParseQueryStopsAfterQuestionSection(t *testing.T) {
	var msg []byte
	msg = u16(msg, 0xabcd)
	msg = u16(msg, 0x0100) // standard query, recursion desired
	msg = u16(msg, 1)
	msg = u16(msg, 0)
	msg = u16(msg, 0)
	msg = u16(msg, 0)
	msg = append(msg, encodeName("api.service.internal")...)
	msg = u16(msg, typeA)
	msg = u16(msg, 1)

	buf := capbuf.NewBuffer()
	buf.Append(msg)
	ctx := store.NewContext(buf)
	frame := &store.Frame{Timestamp: time.Unix(0, 0), Properties: map[string]string{}}
	ctx.AppendFrame(frame)

	r := buf.NewReader(0, uint64(len(msg)))
	_, err := parse(ctx, frame, r)
	require.NoError(t, err)

	assert.Equal(t, "api.service.internal", frame.Properties["dns.qname"])
	assert.Empty(t, ctx.DnsRecords())
	assert.Equal(t, "DNS query api.service.internal", frame.Info)
}
