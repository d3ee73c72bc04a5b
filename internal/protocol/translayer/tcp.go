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

// Package translayer dissects TCP and UDP segments and is the bridge
// between the per-frame dissector chain (C3/C4) and the connection
// tracker / application reassemblers (C5-C8): it feeds each segment into
// flow.Tracker.OnSegment and routes whatever comes back out to phttp or
// ptls. Grounded on connstream/tcp.go and connstream/udp.go's split of
// "decode the wire header" from "hand payload to the stream", generalized
// from packetd's forward-only stream writer to flow.Tracker's full
// sequence-number reassembly.
package translayer

import (
	"fmt"

	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/flow"
	"github.com/packwright/packwright/internal/protocol"
	"github.com/packwright/packwright/internal/protocol/phttp"
	"github.com/packwright/packwright/internal/protocol/ptls"
	"github.com/packwright/packwright/internal/render"
	"github.com/packwright/packwright/internal/store"
)

func init() {
	protocol.Register("tcp", protocol.Dissector{Parse: parseTCP, Detail: detailTCP})
}

const (
	wireFIN = 0x01
	wireSYN = 0x02
	wireRST = 0x04
	wirePSH = 0x08
	wireACK = 0x10
	wireURG = 0x20
)

func wireFlagsToTCPFlags(b uint8) flow.TCPFlags {
	var f flow.TCPFlags
	if b&wireFIN != 0 {
		f |= flow.FlagFIN
	}
	if b&wireSYN != 0 {
		f |= flow.FlagSYN
	}
	if b&wireRST != 0 {
		f |= flow.FlagRST
	}
	if b&wireACK != 0 {
		f |= flow.FlagACK
	}
	return f
}

type tcpHeader struct {
	srcPort, dstPort uint16
	seq, ack         uint32
	flags            uint8
	dataOffset       int
}

func readTCPHeader(r *capbuf.Reader) (tcpHeader, error) {
	var h tcpHeader
	var err error
	if h.srcPort, err = r.ReadU16BE(); err != nil {
		return h, err
	}
	if h.dstPort, err = r.ReadU16BE(); err != nil {
		return h, err
	}
	if h.seq, err = r.ReadU32BE(); err != nil {
		return h, err
	}
	if h.ack, err = r.ReadU32BE(); err != nil {
		return h, err
	}
	offsetReserved, err := r.ReadU8()
	if err != nil {
		return h, err
	}
	h.dataOffset = int(offsetReserved>>4) * 4
	if h.flags, err = r.ReadU8(); err != nil {
		return h, err
	}
	if _, err := r.SliceN(2); err != nil { // window
		return h, err
	}
	if _, err := r.SliceN(2); err != nil { // checksum
		return h, err
	}
	if _, err := r.SliceN(2); err != nil { // urgent pointer
		return h, err
	}
	if h.dataOffset > 20 {
		if _, err := r.SliceN(uint64(h.dataOffset - 20)); err != nil {
			return h, err
		}
	}
	return h, nil
}

func parseTCP(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error) {
	h, err := readTCPHeader(r)
	if err != nil {
		return store.TagNone, err
	}
	payloadStart := r.Cursor()
	payloadEnd := r.End()

	tuple, ok := addressTuple(frame, h.srcPort, h.dstPort)
	if !ok {
		// No network-layer address recovered (e.g. unsupported L3): record
		// what we can and stop, this segment can't be tracked.
		frame.Info = fmt.Sprintf("TCP %d -> %d", h.srcPort, h.dstPort)
		return store.TagNone, nil
	}

	result := ctx.Tracker().OnSegment(tuple, h.seq, h.ack, wireFlagsToTCPFlags(h.flags),
		flow.Segment{FrameIndex: frame.Index, Start: payloadStart, End: payloadEnd}, frame.Timestamp)

	frame.ConnectionID = result.ConnectionID
	frame.TCP = &store.TCPInfo{
		SrcPort: h.srcPort, DstPort: h.dstPort,
		Seq: h.seq, Ack: h.ack, Flags: h.flags,
		Classification: result.Class,
	}
	frame.SetProperty("tcp.srcport", fmt.Sprintf("%d", h.srcPort))
	frame.SetProperty("tcp.dstport", fmt.Sprintf("%d", h.dstPort))
	frame.SetProperty("tcp.len", fmt.Sprintf("%d", payloadEnd-payloadStart))
	frame.SetProperty("tcp.analysis", result.Class.String())
	frame.Info = fmt.Sprintf("%d -> %d [%s] Seq=%d Ack=%d Len=%d",
		h.srcPort, h.dstPort, tcpFlagSummary(h.flags), h.seq, h.ack, payloadEnd-payloadStart)

	if conn := ctx.Tracker().Connection(result.ConnectionID); conn != nil {
		routeApplicationPayload(ctx, conn, result, frame)
	}
	return store.TagNone, nil
}

// routeApplicationPayload decides (once per connection) which application
// reassembler owns this stream, per spec §4.4's next-protocol heuristic,
// then feeds any newly-contiguous bytes to it. The decision is permanent:
// SPEC_FULL.md Open Question #2 leaves a later non-HTTP-shaped line on an
// HTTP connection undefined, so we never re-decide.
func routeApplicationPayload(ctx *store.Context, conn *flow.Connection, result flow.Result, frame *store.Frame) {
	if len(result.Emitted) == 0 {
		return
	}
	if conn.NextProtocol == flow.ProtoUnknown && result.State == flow.StateEstablished {
		if first, err := ctx.Buffer().Slice(result.Emitted[0].Start, result.Emitted[0].End); err == nil && len(first) > 0 {
			ctx.Tracker().SetNextProtocol(result.ConnectionID, detectNextProtocol(first))
		}
	}

	switch conn.NextProtocol {
	case flow.ProtoHTTP:
		phttp.Feed(ctx, result.ConnectionID, result.Reverse, result.Emitted, frame.Timestamp)
		appendTagOnce(frame, "http")
	case flow.ProtoTLS:
		ptls.Feed(ctx, result.ConnectionID, result.Reverse, result.Emitted, frame.Timestamp)
		appendTagOnce(frame, "tls")
	}
}

func appendTagOnce(frame *store.Frame, tag store.Tag) {
	for _, t := range frame.ParsedProtocols {
		if t == tag {
			return
		}
	}
	frame.ParsedProtocols = append(frame.ParsedProtocols, tag)
}

var httpMethods = []string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS", "CONNECT", "TRACE", "PATCH", "NOTIFY"}

// detectNextProtocol implements spec §4.4's heuristic over the first
// non-empty payload of an ESTABLISHED connection.
func detectNextProtocol(b []byte) flow.NextProtocol {
	if len(b) >= 3 {
		ct := b[0]
		major := b[1]
		if ct >= 20 && ct <= 24 && major == 3 {
			return flow.ProtoTLS
		}
	}
	line := b
	if idx := indexCRLF(b); idx >= 0 {
		line = b[:idx]
	}
	s := string(line)
	for _, m := range httpMethods {
		if len(s) > len(m) && s[:len(m)] == m && s[len(m)] == ' ' {
			return flow.ProtoHTTP
		}
	}
	if s == "HTTP/1.1" || (len(s) >= 5 && s[:5] == "HTTP/") {
		return flow.ProtoHTTP
	}
	return flow.ProtoUnknown
}

func indexCRLF(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' {
			return i
		}
	}
	return -1
}

func addressTuple(frame *store.Frame, srcPort, dstPort uint16) (flow.Tuple, bool) {
	if frame.Address == nil {
		return flow.Tuple{}, false
	}
	return flow.Tuple{
		SrcIP: frame.Address.Src, DstIP: frame.Address.Dst,
		SrcPort: srcPort, DstPort: dstPort,
	}, true
}

func tcpFlagSummary(b uint8) string {
	out := ""
	add := func(set bool, name string) {
		if set {
			if out != "" {
				out += ", "
			}
			out += name
		}
	}
	add(b&wireSYN != 0, "SYN")
	add(b&wireACK != 0, "ACK")
	add(b&wireFIN != 0, "FIN")
	add(b&wireRST != 0, "RST")
	add(b&wirePSH != 0, "PSH")
	add(b&wireURG != 0, "URG")
	if out == "" {
		return "."
	}
	return out
}

func detailTCP(parent *render.Field, ctx *store.Context, frame *store.Frame, r *capbuf.Reader) store.Tag {
	start := r.Cursor()
	h, err := readTCPHeader(r)
	if err != nil {
		return store.TagNone
	}
	f := parent.Addf(start, r.Cursor()-start, "Transmission Control Protocol, Src Port: %d, Dst Port: %d",
		h.srcPort, h.dstPort)
	f.Addf(start, 2, "Source Port: %d", h.srcPort)
	f.Addf(start+2, 2, "Destination Port: %d", h.dstPort)
	f.Addf(start+4, 4, "Sequence Number: %d", h.seq)
	f.Addf(start+8, 4, "Acknowledgment Number: %d", h.ack)
	f.Addf(start+13, 1, "Flags: %s", tcpFlagSummary(h.flags))

	if frame.TCP != nil {
		f.Addf(start, 0, "Classification: %s", frame.TCP.Classification.String())
	}
	return store.TagNone
}
