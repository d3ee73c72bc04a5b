package picmp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/store"
)

// buildIGMPv2Report assembles an 8-byte IGMPv2 membership report for group.
func buildIGMPv2Report(group [4]byte) []byte {
	b := []byte{0x16, 0x00, 0x00, 0x00} // type, max resp time, checksum
	return append(b, group[:]...)
}

func TestParseIGMPReportsTypeAndGroup(t *testing.T) {
	buf := capbuf.NewBuffer()
	seg := buildIGMPv2Report([4]byte{224, 0, 0, 1})
	start := buf.End()
	buf.Append(seg)
	ctx := store.NewContext(buf)
	frame := &store.Frame{DataStart: start, DataEnd: start + uint64(len(seg)), Properties: map[string]string{}}

	r := buf.NewReader(frame.DataStart, frame.DataEnd)
	tag, err := parseIGMP(ctx, frame, r)
	require.NoError(t, err)
	assert.Equal(t, store.TagNone, tag)
	assert.Equal(t, "224.0.0.1", frame.Properties["igmp.group"])
	assert.NotEmpty(t, frame.Properties["igmp.type"])
	assert.Contains(t, frame.Info, "IGMP")
}
