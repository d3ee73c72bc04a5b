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

import "net/netip"

// SegClass is the per-segment classification from §4.4 step 3.
type SegClass uint8

const (
	SegNext SegClass = iota
	SegRetransmit
	SegKeepalive
	SegOutOfOrder
	SegInvalid
)

func (c SegClass) String() string {
	switch c {
	case SegRetransmit:
		return "RETRANSMIT"
	case SegKeepalive:
		return "KEEPALIVE"
	case SegOutOfOrder:
		return "OUT_OF_ORDER"
	case SegInvalid:
		return "INVALID"
	default:
		return "NEXT"
	}
}

// ConnState is the TCP handshake/teardown state machine.
type ConnState uint8

const (
	StateListen ConnState = iota
	StateSynSent
	StateSynRcvd
	StateEstablished
	StateFinWait
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateSynSent:
		return "SYN_SENT"
	case StateSynRcvd:
		return "SYN_RCVD"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait:
		return "FIN_WAIT"
	case StateClosed:
		return "CLOSED"
	default:
		return "LISTEN"
	}
}

// NextProtocol is the application-layer guess made on ESTABLISHED once the
// first non-empty payload arrives.
type NextProtocol uint8

const (
	ProtoUnknown NextProtocol = iota
	ProtoHTTP
	ProtoTLS
)

// SegmentStatusKind is the per-endpoint application-reassembly phase
// carried in Endpoint.SegmentStatus.
type SegmentStatusKind uint8

const (
	SegStatusInit SegmentStatusKind = iota
	SegStatusTLSHead
	SegStatusTLSSegment
	SegStatusHTTPHeader
	SegStatusHTTPBody
)

// SegmentStatus is the opaque per-endpoint application reassembly state;
// the byte payload it carries (saved TLS header bytes, partial HTTP
// header bytes, chunk countdown) is owned by the protocol package that
// set it, reached via the Extra field.
type SegmentStatus struct {
	Kind  SegmentStatusKind
	Extra any
}

// Segment is a {frame_index, byte_range} reassembly-buffer descriptor: a
// window of payload bytes belonging to one endpoint's ordered stream.
type Segment struct {
	FrameIndex uint32
	Start, End uint64
}

// Len returns the payload length this segment descriptor spans.
func (s Segment) Len() uint64 { return s.End - s.Start }

type pendingSegment struct {
	seq     uint32
	payload Segment
}

// Endpoint is one side of a Connection, per spec §3.
type Endpoint struct {
	IP   netip.Addr
	Port uint16

	Packets         uint64
	Bytes           uint64
	Retransmissions uint64
	Invalid         uint64

	ISN             uint32
	ISNSet          bool
	NextExpectedSeq uint32
	SeqInit         bool

	SegmentStatus SegmentStatus

	pending    map[uint32]pendingSegment
	maxPending int
}

func newEndpoint(ip netip.Addr, port uint16) Endpoint {
	return Endpoint{
		IP:         ip,
		Port:       port,
		pending:    make(map[uint32]pendingSegment),
		maxPending: defaultMaxPending,
	}
}

const (
	// defaultMaxPending bounds the per-endpoint out-of-order holding map;
	// exceeding it drops the oldest pending segment and marks the
	// connection Lossy, per the Open Question decision in SPEC_FULL.md.
	defaultMaxPending = 64
	// outOfOrderWindow is how far ahead of next_expected_seq a segment may
	// sit before it is classified INVALID instead of OUT_OF_ORDER.
	outOfOrderWindow = 64 * 1024
)
