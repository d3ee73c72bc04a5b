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

// Package demux recognizes PCAP and PCAP-NG capture containers and emits
// per-frame records incrementally as bytes are appended to the backing
// capbuf.Buffer.
package demux

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"

	"github.com/packwright/packwright/internal/capbuf"
)

// LinkType identifies what sits at the start of each frame.
type LinkType uint32

const (
	LinkTypeLoopback  LinkType = 0
	LinkTypeEthernet  LinkType = 1
	LinkTypeRaw       LinkType = 101
	LinkTypeLinuxSLL  LinkType = 113
	LinkTypeIEEE80211 LinkType = 105
	LinkTypeRadiotap  LinkType = 127
)

// StartTag maps a link type to the C4 chain's starting dissector tag.
// Unrecognized link types are treated as Ethernet, per §6.
func (lt LinkType) StartTag() string {
	switch lt {
	case LinkTypeLoopback:
		return "loopback"
	case LinkTypeLinuxSLL:
		return "linux_sll"
	case LinkTypeRadiotap:
		return "radiotap"
	case LinkTypeIEEE80211:
		return "ieee802.11"
	default:
		return "ethernet"
	}
}

var (
	ErrUnsupportedFileType = errors.New("demux: unsupported file type")
	ErrFormatMismatch      = capbuf.ErrFormatMismatch
	// ErrTruncated is returned by a one-shot caller (the whole file already
	// read into the Buffer) when the demuxer's cursor stalls short of the
	// Buffer's end: bytes remain that never assembled into a full record,
	// and no further Append is coming to complete them.
	ErrTruncated = errors.New("demux: truncated capture")
)

// Cursor returns the absolute buffer offset the demuxer will resume
// reading from on the next Next call. Comparing it against the backing
// Buffer's End lets a one-shot (whole-file-in-memory) caller distinguish
// a clean end-of-container from a mid-record truncation: if Cursor is
// short of End, unconsumed bytes remain that didn't add up to a full
// record.
func (d *Demuxer) Cursor() uint64 { return d.cursor }

// Frame is the container-level record C2 hands to the driver. Timestamps
// are normalized to microseconds regardless of source precision.
type Frame struct {
	Index        uint32
	Timestamp    time.Time
	CapturedLen  uint32
	OriginalLen  uint32
	DataStart    uint64
	DataEnd      uint64
	LinkType     LinkType
	InterfaceIdx int
}

// FileMeta carries file-level metadata recovered from the container
// header(s): version, snaplen, and per-interface link types.
type FileMeta struct {
	Format        string // "pcap" or "pcapng"
	VersionMajor  uint16
	VersionMinor  uint16
	Snaplen       uint32
	Interfaces    []InterfaceInfo
	NanoPrecision bool
}

// InterfaceInfo mirrors a PCAP-NG Interface Description Block (a classic
// PCAP file is modeled as exactly one synthetic interface).
type InterfaceInfo struct {
	LinkType LinkType
	Snaplen  uint32
	Name     string
}

// Demuxer incrementally parses frame records out of a capbuf.Buffer. Next
// is called repeatedly by the driver; when the buffer doesn't yet hold a
// complete header or record, Next rewinds its internal cursor to the
// start of that record and returns capbuf.ErrEndOfStream so the caller can
// Append more bytes and retry.
type Demuxer struct {
	buf    *capbuf.Buffer
	cursor uint64
	meta   FileMeta
	impl   demuxImpl
	nextIx uint32
}

type demuxImpl interface {
	// next parses one frame starting at the demuxer's cursor. It returns
	// the frame and advances d.cursor, or returns capbuf.ErrEndOfStream
	// having left d.cursor unchanged.
	next(d *Demuxer) (Frame, error)
}

// New sniffs the magic at the current buffer head and builds the matching
// format implementation. Buffer must already hold at least 4 bytes.
func New(buf *capbuf.Buffer) (*Demuxer, error) {
	d := &Demuxer{buf: buf, cursor: buf.Base()}
	magic, err := d.peekU32(binary.BigEndian)
	if err != nil {
		return nil, capbuf.ErrEndOfStream
	}

	switch magic {
	case pcapMagicBE, pcapMagicLE, pcapNsMagicBE, pcapNsMagicLE:
		impl, err := newPcapDemux(d)
		if err != nil {
			return nil, err
		}
		d.impl = impl
		d.meta.Format = "pcap"
	case pcapngSHBMagic:
		impl, err := newPcapngDemux(d)
		if err != nil {
			return nil, err
		}
		d.impl = impl
		d.meta.Format = "pcapng"
	default:
		return nil, ErrUnsupportedFileType
	}
	return d, nil
}

// Meta returns file-level metadata gathered so far (populated further as
// PCAP-NG Interface Description Blocks stream in).
func (d *Demuxer) Meta() FileMeta { return d.meta }

// Next returns the next frame, or capbuf.ErrEndOfStream if the buffer
// doesn't yet hold a full record (the caller should Append and retry).
func (d *Demuxer) Next() (Frame, error) {
	f, err := d.impl.next(d)
	if err != nil {
		return Frame{}, err
	}
	f.Index = d.nextIx
	f.Timestamp = f.Timestamp.Truncate(time.Microsecond)
	d.nextIx++
	return f, nil
}

func (d *Demuxer) peekU32(order binary.ByteOrder) (uint32, error) {
	b, err := d.buf.Slice(d.cursor, d.cursor+4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(b), nil
}
