// Copyright 2025 The packwright Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package flow

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tuple(srcPort, dstPort uint16) Tuple {
	return Tuple{
		SrcIP:   netip.MustParseAddr("10.0.0.1"),
		DstIP:   netip.MustParseAddr("10.0.0.2"),
		SrcPort: srcPort,
		DstPort: dstPort,
	}
}

func TestCanonicalizeIsDirectionIndependent(t *testing.T) {
	fwd := tuple(4000, 80)
	rev := fwd.Mirror()

	keyFwd, reverseFwd := Canonicalize(fwd)
	keyRev, reverseRev := Canonicalize(rev)

	assert.Equal(t, keyFwd, keyRev)
	assert.False(t, reverseFwd)
	assert.True(t, reverseRev)
}

func TestOnSegmentHandshakeReachesEstablished(t *testing.T) {
	tr := NewTracker()
	now := time.Unix(0, 0)
	cli := tuple(4000, 80)
	srv := cli.Mirror()

	r1 := tr.OnSegment(cli, 100, 0, FlagSYN, Segment{}, now)
	require.Equal(t, StateSynSent, r1.State)

	r2 := tr.OnSegment(srv, 500, 101, FlagSYN|FlagACK, Segment{}, now)
	require.Equal(t, StateSynRcvd, r2.State)
	assert.Equal(t, r1.ConnectionID, r2.ConnectionID)

	r3 := tr.OnSegment(cli, 101, 501, FlagACK, Segment{}, now)
	assert.Equal(t, StateEstablished, r3.State)
}

func TestOnSegmentNextAdvancesAndEmits(t *testing.T) {
	tr := NewTracker()
	now := time.Unix(0, 0)
	cli := tuple(4000, 80)

	tr.OnSegment(cli, 100, 0, FlagSYN, Segment{}, now)

	seg := Segment{FrameIndex: 3, Start: 1000, End: 1010}
	r := tr.OnSegment(cli, 101, 0, FlagACK, seg, now)
	require.Equal(t, SegNext, r.Class)
	require.Len(t, r.Emitted, 1)
	assert.Equal(t, seg, r.Emitted[0])

	conn := tr.Connection(r.ConnectionID)
	assert.Equal(t, uint32(111), conn.Primary.NextExpectedSeq)
}

func TestOnSegmentRetransmitDoesNotEmit(t *testing.T) {
	tr := NewTracker()
	now := time.Unix(0, 0)
	cli := tuple(4000, 80)

	tr.OnSegment(cli, 100, 0, FlagSYN, Segment{}, now)
	seg := Segment{FrameIndex: 3, Start: 1000, End: 1010}
	tr.OnSegment(cli, 101, 0, FlagACK, seg, now)

	r := tr.OnSegment(cli, 101, 0, FlagACK, seg, now)
	assert.Equal(t, SegRetransmit, r.Class)
	assert.Empty(t, r.Emitted)

	conn := tr.Connection(r.ConnectionID)
	assert.EqualValues(t, 1, conn.Primary.Retransmissions)
}

func TestOnSegmentOutOfOrderDrainsInOrder(t *testing.T) {
	tr := NewTracker()
	now := time.Unix(0, 0)
	cli := tuple(4000, 80)

	tr.OnSegment(cli, 100, 0, FlagSYN, Segment{}, now)

	segB := Segment{FrameIndex: 5, Start: 2010, End: 2020}
	rB := tr.OnSegment(cli, 111, 0, FlagACK, segB, now) // seq 111, expected 101: out of order
	assert.Equal(t, SegOutOfOrder, rB.Class)
	assert.Empty(t, rB.Emitted)

	segA := Segment{FrameIndex: 4, Start: 2000, End: 2010}
	rA := tr.OnSegment(cli, 101, 0, FlagACK, segA, now) // fills the gap
	assert.Equal(t, SegNext, rA.Class)
	require.Len(t, rA.Emitted, 2)
	assert.Equal(t, segA, rA.Emitted[0])
	assert.Equal(t, segB, rA.Emitted[1])
}

func TestOnSegmentFinThenFinClosesConnection(t *testing.T) {
	tr := NewTracker()
	now := time.Unix(0, 0)
	cli := tuple(4000, 80)
	srv := cli.Mirror()

	tr.OnSegment(cli, 100, 0, FlagSYN, Segment{}, now)
	tr.OnSegment(srv, 500, 101, FlagSYN|FlagACK, Segment{}, now)
	tr.OnSegment(cli, 101, 501, FlagACK, Segment{}, now)

	r := tr.OnSegment(cli, 101, 501, FlagFIN|FlagACK, Segment{}, now)
	assert.Equal(t, StateFinWait, r.State)

	r2 := tr.OnSegment(srv, 501, 102, FlagFIN|FlagACK, Segment{}, now)
	assert.Equal(t, StateClosed, r2.State)
}

func TestConversationGroupsBothConnections(t *testing.T) {
	tr := NewTracker()
	now := time.Unix(0, 0)

	tr.OnSegment(tuple(4000, 80), 1, 0, FlagSYN, Segment{}, now)
	tr.OnSegment(tuple(4001, 443), 1, 0, FlagSYN, Segment{}, now)

	require.Len(t, tr.Conversations(), 1)
	assert.Len(t, tr.Conversation(0).ConnectionIDs, 2)
}

func TestConversationAggregatesPacketsAndBytes(t *testing.T) {
	tr := NewTracker()
	now := time.Unix(0, 0)
	cli := tuple(4000, 80)
	srv := cli.Mirror()

	tr.OnSegment(cli, 100, 0, FlagSYN, Segment{}, now)
	tr.OnSegment(srv, 500, 101, FlagSYN|FlagACK, Segment{}, now)
	tr.OnSegment(cli, 101, 501, FlagACK, Segment{}, now)

	payload := Segment{FrameIndex: 3, Start: 1000, End: 1010} // 10 bytes
	r := tr.OnSegment(cli, 101, 501, FlagACK, payload, now)

	conv := tr.Conversation(tr.Connection(r.ConnectionID).ConversationID)
	assert.EqualValues(t, 4, conv.Packets)
	assert.EqualValues(t, 10, conv.Bytes)
}
