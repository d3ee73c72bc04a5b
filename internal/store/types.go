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

// Package store holds the per-file Context singleton (C10's data model):
// the frames vector, the connection tracker with its conversation and
// connection indexes, and the HTTP/DNS/TLS collections. The paged/filtered
// query surface over it lives in package query.
package store

import (
	"net/netip"
	"time"

	"github.com/packwright/packwright/internal/demux"
	"github.com/packwright/packwright/internal/flow"
)

// Tag is the symbolic string C3/C4 dispatch on: "ethernet", "ipv4", "tcp",
// "http", "none", and so on.
type Tag string

const TagNone Tag = "none"

// Status reflects how far a frame's dissector chain made it.
type Status uint8

const (
	StatusOK Status = iota
	StatusWarn
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusWarn:
		return "WARN"
	case StatusError:
		return "ERROR"
	default:
		return "OK"
	}
}

// AddressField carries whichever of IPv4/IPv6 the network layer found.
type AddressField struct {
	IsIPv6  bool
	Src     netip.Addr
	Dst     netip.Addr
	HashKey uint64 // populated for IPv6 pairs, see Context.IPv6PairHash
}

// TCPInfo is a display-oriented summary of the transport layer's view of
// one segment; it doesn't duplicate flow.Tracker's authoritative state.
type TCPInfo struct {
	SrcPort, DstPort uint16
	Seq, Ack         uint32
	Flags            uint8
	Classification   flow.SegClass
}

// Frame is the per-packet record. Created once by the driver, fields are
// filled in by successive dissectors and never mutated once the chain for
// that frame completes.
type Frame struct {
	Index            uint32
	Timestamp        time.Time
	CapturedLen      uint32
	OriginalLen      uint32
	DataStart        uint64
	DataEnd          uint64
	LinkType         demux.LinkType
	ParsedProtocols  []Tag
	Address          *AddressField
	TCP              *TCPInfo
	UDPPorts         *struct{ Src, Dst uint16 }
	IPLen            uint32
	Info             string
	Status           Status
	Properties       map[string]string // filter-predicate side table, see §4.7
	ConnectionID     int               // -1 if not attached to a connection
	Warnings         []string
}

// NewFrame seeds a Frame from the container record emitted by C2.
func NewFrame(raw demux.Frame) *Frame {
	return &Frame{
		Index:        raw.Index,
		Timestamp:    raw.Timestamp,
		CapturedLen:  raw.CapturedLen,
		OriginalLen:  raw.OriginalLen,
		DataStart:    raw.DataStart,
		DataEnd:      raw.DataEnd,
		LinkType:     raw.LinkType,
		Properties:   make(map[string]string, 4),
		ConnectionID: -1,
	}
}

// SetProperty records a filter-predicate key/value, consulted by the
// frame-list filter grammar in Store.FrameList.
func (f *Frame) SetProperty(key, value string) {
	f.Properties[key] = value
}

// ByteRange is a {frame_index, byte_range} descriptor: how HttpMessage
// bodies and TLS record payloads reference buffer bytes without copying.
type ByteRange struct {
	FrameIndex uint32
	Start, End uint64
}

// HttpMessage is one request or response, per spec §3.
type HttpMessage struct {
	Index          int
	FrameIndex     uint32
	ConnectionID   int
	IsRequest      bool
	FirstLine      string
	Method, Path   string
	StatusCode     int
	Host           string
	ContentLength  int64
	HasContentLen  bool
	Chunked        bool
	ContentType    string
	Headers        []ByteRange
	Body           []ByteRange
	PairIndex      int // index into Context.HttpConnects, -1 if unpaired
	Timestamp      time.Time
}

// HttpConnect pairs a request and response and records latency.
type HttpConnect struct {
	Index        int
	ConnectionID int
	RequestIdx   int
	ResponseIdx  int // -1 while open
	RequestAt    time.Time
	ResponseAt   time.Time
	Latency      time.Duration
	Closed       bool
}

// DnsRecord is one parsed Answer RR.
type DnsRecord struct {
	Index      int
	FrameIndex uint32
	Name       string
	Type       string
	Class      string
	TTL        uint32
	Content    string
}

// TlsClientHello and TlsServerHello hold the handshake fields named in §4.6.
// FrameIndex names the frame whose TLS record carried this handshake
// message, so a per-frame detail view can tell its own hello apart from
// another frame's on the same conversation.
type TlsClientHello struct {
	FrameIndex      uint32
	Version         uint16
	Random          [32]byte
	SNI             string
	OfferedCiphers  []uint16
	OfferedVersions []uint16
	OfferedALPN     []string
}

type TlsServerHello struct {
	FrameIndex     uint32
	Version        uint16
	Random         [32]byte
	SelectedCipher uint16
	SelectedALPN   string
}

// TlsConversation is per spec §3.
type TlsConversation struct {
	Index          int
	ConnectionID   int
	ClientHello    *TlsClientHello
	ServerHello    *TlsServerHello
	Certificates   []ByteRange
	ApplicationIn  int // count of application_data records seen
	ApplicationOut int
}
