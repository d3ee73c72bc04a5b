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
	"time"
)

// Result is what OnSegment hands back to the transport dissector: the
// connection this segment belongs to, its classification, and any payload
// byte ranges now ready to feed to the application-layer reassemblers in
// strict stream order.
type Result struct {
	ConnectionID   int
	ConversationID int
	Reverse        bool
	Class          SegClass
	State          ConnState
	Emitted        []Segment
}

// Tracker is the Context-owned C5/C6 singleton: it canonicalizes
// endpoints, runs the TCP state machine, and classifies/reassembles
// sequence numbers. It holds no reference to captured bytes; callers pass
// in the Segment (frame index + absolute byte range) for each payload and
// receive back the ones now contiguous and ready to dissect further.
type Tracker struct {
	conversations   []*Conversation
	conversationIdx map[ConvKey]int

	connections []*Connection
	connByKey   map[ConnKey]int
}

// NewTracker returns an empty tracker, ready for a new capture file.
func NewTracker() *Tracker {
	return &Tracker{
		conversationIdx: make(map[ConvKey]int),
		connByKey:       make(map[ConnKey]int),
	}
}

// Connection returns the connection with the given id, or nil.
func (t *Tracker) Connection(id int) *Connection {
	if id < 0 || id >= len(t.connections) {
		return nil
	}
	return t.connections[id]
}

// Conversation returns the conversation with the given id, or nil.
func (t *Tracker) Conversation(id int) *Conversation {
	if id < 0 || id >= len(t.conversations) {
		return nil
	}
	return t.conversations[id]
}

// Conversations returns every conversation created so far, in creation
// (= first-seen) order.
func (t *Tracker) Conversations() []*Conversation { return t.conversations }

// Connections returns every connection created so far, in creation order.
func (t *Tracker) Connections() []*Connection { return t.connections }

func (t *Tracker) getOrCreateConversation(key ConvKey) int {
	if id, ok := t.conversationIdx[key]; ok {
		return id
	}
	id := len(t.conversations)
	t.conversations = append(t.conversations, &Conversation{ID: id, Key: key})
	t.conversationIdx[key] = id
	return id
}

func (t *Tracker) getOrCreateConnection(tuple Tuple, now time.Time) (*Connection, bool) {
	key, reverse := Canonicalize(tuple)
	if id, ok := t.connByKey[key]; ok {
		return t.connections[id], reverse
	}

	convID := t.getOrCreateConversation(ConversationKey(tuple))
	id := len(t.connections)
	conn := &Connection{
		ID:             id,
		ConversationID: convID,
		Key:            key,
		Primary:        newEndpoint(key.IPLo, key.PortLo),
		Second:         newEndpoint(key.IPHi, key.PortHi),
		State:          StateListen,
		ActiveAt:       now,
	}
	t.connections = append(t.connections, conn)
	t.connByKey[key] = id
	t.conversations[convID].ConnectionIDs = append(t.conversations[convID].ConnectionIDs, id)
	return conn, reverse
}

// SetNextProtocol records the heuristic next-protocol decision made by the
// transport dissector on the first non-empty ESTABLISHED payload. Once
// set it is never re-decided, per SPEC_FULL.md's Open Question ruling.
func (t *Tracker) SetNextProtocol(connID int, p NextProtocol) {
	if c := t.Connection(connID); c != nil && c.NextProtocol == ProtoUnknown {
		c.NextProtocol = p
	}
}

// OnSegment runs one TCP segment through the handshake state machine and
// sequence-number classifier, and returns the connection/classification
// plus any payload segments now ready for the application layer.
func (t *Tracker) OnSegment(tuple Tuple, seq, ack uint32, flags TCPFlags, payload Segment, now time.Time) Result {
	conn, reverse := t.getOrCreateConnection(tuple, now)
	conn.ActiveAt = now
	t.updateHandshake(conn, reverse, seq, flags, now)

	ep := conn.endpointFor(reverse)
	payloadLen := payload.Len()
	ep.Packets++
	ep.Bytes += payloadLen

	if conv := t.Conversation(conn.ConversationID); conv != nil {
		conv.Packets++
		conv.Bytes += payloadLen
	}

	class, emitted := t.classifyAndAdvance(ep, seq, flags, payload)

	switch class {
	case SegRetransmit:
		ep.Retransmissions++
	case SegInvalid:
		ep.Invalid++
	case SegOutOfOrder:
		t.holdPending(conn, ep, seq, payload)
	}

	t.updateTeardown(conn, reverse, flags)

	// Next-protocol detection needs the actual payload bytes, which the
	// tracker never holds; the caller inspects Emitted and calls
	// SetNextProtocol once it has decided.

	return Result{
		ConnectionID:   conn.ID,
		ConversationID: conn.ConversationID,
		Reverse:        reverse,
		Class:          class,
		State:          conn.State,
		Emitted:        emitted,
	}
}

func (t *Tracker) updateHandshake(conn *Connection, reverse bool, seq uint32, flags TCPFlags, now time.Time) {
	ep := conn.endpointFor(reverse)

	switch {
	case flags.Has(FlagRST):
		conn.State = StateClosed
		delete(t.connByKey, conn.Key)

	case flags.Has(FlagSYN) && !flags.Has(FlagACK) && conn.State == StateListen:
		ep.ISN, ep.ISNSet = seq, true
		ep.NextExpectedSeq = seq + 1
		ep.SeqInit = true
		conn.State = StateSynSent
		conn.synAt = now

	case flags.Has(FlagSYN) && flags.Has(FlagACK) && conn.State == StateSynSent:
		ep.ISN, ep.ISNSet = seq, true
		ep.NextExpectedSeq = seq + 1
		ep.SeqInit = true
		conn.State = StateSynRcvd
		if !conn.synAt.IsZero() {
			conn.rttFromHandshake = now.Sub(conn.synAt)
		}

	case !flags.Has(FlagSYN) && flags.Has(FlagACK) && conn.State == StateSynRcvd:
		conn.State = StateEstablished

	case conn.State == StateListen:
		// Mid-stream capture start: treat the first observed segment on
		// either side as already ESTABLISHED.
		conn.State = StateEstablished
	}
}

func (t *Tracker) updateTeardown(conn *Connection, reverse bool, flags TCPFlags) {
	if !flags.Has(FlagFIN) {
		return
	}
	if conn.State != StateClosed {
		conn.State = StateFinWait
	}
	if reverse {
		conn.secondFin = true
	} else {
		conn.primaryFin = true
	}
	if conn.primaryFin && conn.secondFin {
		conn.State = StateClosed
		delete(t.connByKey, conn.Key)
	}
}

// classifyAndAdvance implements §4.4 step 3-4: classify the segment
// relative to next_expected_seq, advance it on NEXT, and drain any
// contiguous pending out-of-order segments.
func (t *Tracker) classifyAndAdvance(ep *Endpoint, seq uint32, flags TCPFlags, payload Segment) (SegClass, []Segment) {
	payloadLen := payload.Len()

	if !ep.SeqInit {
		ep.NextExpectedSeq = seq
		ep.SeqInit = true
	}

	diff := int32(seq - ep.NextExpectedSeq)

	var class SegClass
	switch {
	case payloadLen == 0:
		switch {
		case diff == -1 && flags.Has(FlagACK):
			class = SegKeepalive
		case diff == 0:
			class = SegNext
		default:
			class = SegInvalid
		}
	case diff == 0:
		class = SegNext
	case diff < 0:
		class = SegRetransmit
	case diff > 0 && diff <= outOfOrderWindow:
		class = SegOutOfOrder
	default:
		class = SegInvalid
	}

	if class != SegNext || payloadLen == 0 {
		// Either not a NEXT segment, or a pure control/ACK segment already
		// accounted for by the handshake handling above: nothing to emit.
		return class, nil
	}

	ep.NextExpectedSeq += uint32(payloadLen)
	emitted := []Segment{payload}
	emitted = append(emitted, t.drainPending(ep)...)
	return class, emitted
}

func (t *Tracker) holdPending(conn *Connection, ep *Endpoint, seq uint32, payload Segment) {
	if ep.pending == nil {
		ep.pending = make(map[uint32]pendingSegment)
	}
	ep.pending[seq] = pendingSegment{seq: seq, payload: payload}
	if len(ep.pending) <= ep.maxPending {
		return
	}

	oldestSeq := seq
	first := true
	for s := range ep.pending {
		if first || int32(s-ep.NextExpectedSeq) < int32(oldestSeq-ep.NextExpectedSeq) {
			oldestSeq = s
			first = false
		}
	}
	delete(ep.pending, oldestSeq)
	conn.Lossy = true
}

func (t *Tracker) drainPending(ep *Endpoint) []Segment {
	var out []Segment
	for {
		seg, ok := ep.pending[ep.NextExpectedSeq]
		if !ok {
			break
		}
		delete(ep.pending, ep.NextExpectedSeq)
		out = append(out, seg.payload)
		ep.NextExpectedSeq += uint32(seg.payload.Len())
	}
	return out
}
