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

// Package ptls implements the TLS record-layer reassembler (C8): record
// boundary recovery across segments and ClientHello/ServerHello field
// extraction. Grounded on phttp's Feed/progress state-machine shape,
// generalized from HTTP's newline-delimited framing to TLS's fixed
// 5-byte record header plus length-prefixed handshake messages. It has no
// loss handling of its own: it consumes only the contiguous bytes
// flow.Tracker emits, never falls back to Init on a missing segment, and
// never searches for the next record header.
package ptls

import (
	"time"

	"github.com/packwright/packwright/internal/flow"
	"github.com/packwright/packwright/internal/protocol"
	"github.com/packwright/packwright/internal/render"
	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/store"
)

func init() {
	protocol.Register("tls", protocol.Dissector{Parse: passthroughParse, Detail: detail})
}

// passthroughParse exists only so "tls" has a registry entry for
// DetailTree to re-run; reassembly happens out of band in Feed.
func passthroughParse(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error) {
	return store.TagNone, nil
}

const (
	recordHandshake    = 22
	recordApplication  = 23
	recordChangeCipher = 20
	recordAlert        = 21

	handshakeClientHello = 1
	handshakeServerHello = 2
)

const (
	extServerName       = 0
	extALPN             = 16
	extSupportedVersion = 43
)

type tlsState struct {
	buf flow.SegmentBuffer

	// haveHeader is set once the current record's 5 header bytes have been
	// read into recordType/recordVer/recordLen, and cleared when that
	// record completes.
	haveHeader bool
	recordType uint8
	recordVer  uint16
	recordLen  uint16

	firstFrame uint32
	haveFirst  bool
}

func (s *tlsState) noteFrame(seg flow.Segment) {
	if !s.haveFirst {
		s.firstFrame = seg.FrameIndex
		s.haveFirst = true
	}
}

func getState(ep *flow.Endpoint) *tlsState {
	if ep.SegmentStatus.Extra == nil {
		ep.SegmentStatus = flow.SegmentStatus{Kind: flow.SegStatusInit, Extra: &tlsState{}}
	}
	st, ok := ep.SegmentStatus.Extra.(*tlsState)
	if !ok {
		st = &tlsState{}
		ep.SegmentStatus = flow.SegmentStatus{Kind: flow.SegStatusInit, Extra: st}
	}
	return st
}

// Feed appends newly-reassembled segments to connID's reverse-side TLS
// record state machine, committing any completed handshake records it
// recognizes along the way.
func Feed(ctx *store.Context, connID int, reverse bool, segs []flow.Segment, now time.Time) {
	conn := ctx.Tracker().Connection(connID)
	if conn == nil {
		return
	}
	ep := conn.Endpoint(reverse)
	st := getState(ep)

	for _, seg := range segs {
		b, err := ctx.Buffer().Slice(seg.Start, seg.End)
		if err != nil {
			continue
		}
		st.noteFrame(seg)
		st.buf.Append(seg, b)
	}

	for progress(ctx, connID, reverse, st) {
	}
}

func progress(ctx *store.Context, connID int, reverse bool, st *tlsState) bool {
	if !st.haveHeader {
		if st.buf.Len() < 5 {
			return false
		}
		hdr := st.buf.Bytes()[:5]
		st.recordType = hdr[0]
		st.recordVer = uint16(hdr[1])<<8 | uint16(hdr[2])
		st.recordLen = uint16(hdr[3])<<8 | uint16(hdr[4])
		st.buf.Consume(5)
		st.haveHeader = true
	}

	if st.buf.Len() < int(st.recordLen) {
		return false
	}
	ranges := st.buf.Consume(int(st.recordLen))
	payload := gatherBytes(ctx, ranges)
	handleRecord(ctx, connID, reverse, st, payload)

	st.haveHeader = false
	st.firstFrame = 0
	st.haveFirst = false
	return true
}

func gatherBytes(ctx *store.Context, ranges []flow.Segment) []byte {
	out := make([]byte, 0, 256)
	for _, rg := range ranges {
		b, err := ctx.Buffer().Slice(rg.Start, rg.End)
		if err != nil {
			continue
		}
		out = append(out, b...)
	}
	return out
}

func handleRecord(ctx *store.Context, connID int, reverse bool, st *tlsState, payload []byte) {
	tc := ctx.GetOrCreateTlsConversation(connID)

	switch st.recordType {
	case recordApplication:
		if reverse {
			tc.ApplicationIn++
		} else {
			tc.ApplicationOut++
		}
	case recordHandshake:
		parseHandshake(tc, payload, st.firstFrame)
	}

	if f := ctx.Frame(st.firstFrame); f != nil {
		switch st.recordType {
		case recordHandshake:
			f.SetProperty("tls.record", "handshake")
		case recordApplication:
			f.SetProperty("tls.record", "application_data")
		case recordAlert:
			f.SetProperty("tls.record", "alert")
		case recordChangeCipher:
			f.SetProperty("tls.record", "change_cipher_spec")
		}
	}
}

// parseHandshake dispatches on the first handshake-message byte inside a
// (possibly multi-message) handshake record; only that first message is
// examined, and only ClientHello/ServerHello are decoded. Certificate and
// key-exchange messages are neither decoded nor recorded, so
// TlsConversation.Certificates stays empty.
func parseHandshake(tc *store.TlsConversation, payload []byte, frameIndex uint32) {
	if len(payload) < 4 {
		return
	}
	msgType := payload[0]
	msgLen := int(payload[1])<<16 | int(payload[2])<<8 | int(payload[3])
	body := payload[4:]
	if len(body) > msgLen {
		body = body[:msgLen]
	}

	switch msgType {
	case handshakeClientHello:
		if ch := parseClientHello(body); ch != nil {
			ch.FrameIndex = frameIndex
			tc.ClientHello = ch
		}
	case handshakeServerHello:
		if sh := parseServerHello(body); sh != nil {
			sh.FrameIndex = frameIndex
			tc.ServerHello = sh
		}
	}
}

func parseClientHello(b []byte) *store.TlsClientHello {
	ch := &store.TlsClientHello{}
	pos := 0
	if len(b) < pos+2 {
		return nil
	}
	ch.Version = uint16(b[pos])<<8 | uint16(b[pos+1])
	pos += 2

	if len(b) < pos+32 {
		return nil
	}
	copy(ch.Random[:], b[pos:pos+32])
	pos += 32

	if len(b) < pos+1 {
		return nil
	}
	sidLen := int(b[pos])
	pos++
	if len(b) < pos+sidLen {
		return nil
	}
	pos += sidLen

	if len(b) < pos+2 {
		return nil
	}
	csLen := int(b[pos])<<8 | int(b[pos+1])
	pos += 2
	if len(b) < pos+csLen {
		return nil
	}
	for i := 0; i+1 < csLen; i += 2 {
		ch.OfferedCiphers = append(ch.OfferedCiphers, uint16(b[pos+i])<<8|uint16(b[pos+i+1]))
	}
	pos += csLen

	if len(b) < pos+1 {
		return ch
	}
	cmLen := int(b[pos])
	pos++
	if len(b) < pos+cmLen {
		return ch
	}
	pos += cmLen

	if len(b) < pos+2 {
		return ch
	}
	extTotal := int(b[pos])<<8 | int(b[pos+1])
	pos += 2
	end := pos + extTotal
	if end > len(b) {
		end = len(b)
	}
	for pos+4 <= end {
		extType := uint16(b[pos])<<8 | uint16(b[pos+1])
		extLen := int(b[pos+2])<<8 | int(b[pos+3])
		pos += 4
		if pos+extLen > end {
			break
		}
		data := b[pos : pos+extLen]
		switch extType {
		case extServerName:
			ch.SNI = parseSNI(data)
		case extSupportedVersion:
			for i := 1; i+1 < len(data); i += 2 {
				ch.OfferedVersions = append(ch.OfferedVersions, uint16(data[i])<<8|uint16(data[i+1]))
			}
		case extALPN:
			ch.OfferedALPN = parseALPN(data)
		}
		pos += extLen
	}
	return ch
}

func parseSNI(data []byte) string {
	// server_name_list: 2-byte list length, then {type(1), len(2), name}.
	if len(data) < 5 {
		return ""
	}
	nameType := data[2]
	if nameType != 0 { // host_name
		return ""
	}
	nameLen := int(data[3])<<8 | int(data[4])
	if len(data) < 5+nameLen {
		return ""
	}
	return string(data[5 : 5+nameLen])
}

func parseALPN(data []byte) []string {
	if len(data) < 2 {
		return nil
	}
	var out []string
	pos := 2 // skip protocol_name_list length
	for pos < len(data) {
		l := int(data[pos])
		pos++
		if pos+l > len(data) {
			break
		}
		out = append(out, string(data[pos:pos+l]))
		pos += l
	}
	return out
}

func parseServerHello(b []byte) *store.TlsServerHello {
	sh := &store.TlsServerHello{}
	pos := 0
	if len(b) < pos+2 {
		return nil
	}
	sh.Version = uint16(b[pos])<<8 | uint16(b[pos+1])
	pos += 2

	if len(b) < pos+32 {
		return nil
	}
	copy(sh.Random[:], b[pos:pos+32])
	pos += 32

	if len(b) < pos+1 {
		return sh
	}
	sidLen := int(b[pos])
	pos++
	if len(b) < pos+sidLen {
		return sh
	}
	pos += sidLen

	if len(b) < pos+2 {
		return sh
	}
	sh.SelectedCipher = uint16(b[pos])<<8 | uint16(b[pos+1])
	pos += 2

	if len(b) < pos+1 {
		return sh
	}
	pos++ // compression method

	if len(b) < pos+2 {
		return sh
	}
	extTotal := int(b[pos])<<8 | int(b[pos+1])
	pos += 2
	end := pos + extTotal
	if end > len(b) {
		end = len(b)
	}
	for pos+4 <= end {
		extType := uint16(b[pos])<<8 | uint16(b[pos+1])
		extLen := int(b[pos+2])<<8 | int(b[pos+3])
		pos += 4
		if pos+extLen > end {
			break
		}
		if extType == extALPN {
			if alpn := parseALPN(b[pos : pos+extLen]); len(alpn) > 0 {
				sh.SelectedALPN = alpn[0]
			}
		}
		pos += extLen
	}
	return sh
}

func detail(parent *render.Field, ctx *store.Context, frame *store.Frame, r *capbuf.Reader) store.Tag {
	for _, tc := range ctx.TlsConversations() {
		conn := ctx.Tracker().Connection(tc.ConnectionID)
		if conn == nil {
			continue
		}
		if tc.ClientHello != nil && tc.ClientHello.FrameIndex == frame.Index {
			f := parent.Addf(frame.DataStart, frame.DataEnd-frame.DataStart,
				"Transport Layer Security, Client Hello")
			f.Addf(frame.DataStart, 0, "Version: 0x%04x", tc.ClientHello.Version)
			if tc.ClientHello.SNI != "" {
				f.Addf(frame.DataStart, 0, "Server Name: %s", tc.ClientHello.SNI)
			}
		}
		if tc.ServerHello != nil && tc.ServerHello.FrameIndex == frame.Index {
			f := parent.Addf(frame.DataStart, frame.DataEnd-frame.DataStart,
				"Transport Layer Security, Server Hello")
			f.Addf(frame.DataStart, 0, "Cipher Suite: 0x%04x", tc.ServerHello.SelectedCipher)
		}
	}
	return store.TagNone
}
