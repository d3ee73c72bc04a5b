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

package demux

import (
	"encoding/binary"
	"time"

	"github.com/packwright/packwright/internal/capbuf"
)

const (
	pcapMagicBE   uint32 = 0xA1B2C3D4
	pcapMagicLE   uint32 = 0xD4C3B2A1
	pcapNsMagicBE uint32 = 0xA1B23C4D
	pcapNsMagicLE uint32 = 0x4D3CB2A1

	pcapGlobalHeaderLen = 24
	pcapRecordHeaderLen = 16
)

type pcapDemux struct {
	order    binary.ByteOrder
	nanos    bool
	linkType LinkType
}

func newPcapDemux(d *Demuxer) (*pcapDemux, error) {
	hdr, err := d.buf.Slice(d.cursor, d.cursor+pcapGlobalHeaderLen)
	if err != nil {
		return nil, capbuf.ErrEndOfStream
	}

	magic := binary.BigEndian.Uint32(hdr[0:4])
	var order binary.ByteOrder
	var nanos bool
	switch magic {
	case pcapMagicBE:
		order = binary.BigEndian
	case pcapMagicLE:
		order = binary.LittleEndian
	case pcapNsMagicBE:
		order, nanos = binary.BigEndian, true
	case pcapNsMagicLE:
		order, nanos = binary.LittleEndian, true
	default:
		return nil, ErrUnsupportedFileType
	}

	versionMajor := order.Uint16(hdr[4:6])
	versionMinor := order.Uint16(hdr[6:8])
	snaplen := order.Uint32(hdr[16:20])
	linkType := LinkType(order.Uint32(hdr[20:24]))

	d.meta.VersionMajor = versionMajor
	d.meta.VersionMinor = versionMinor
	d.meta.Snaplen = snaplen
	d.meta.NanoPrecision = nanos
	d.meta.Interfaces = []InterfaceInfo{{LinkType: linkType, Snaplen: snaplen}}
	d.cursor += pcapGlobalHeaderLen

	return &pcapDemux{order: order, nanos: nanos, linkType: linkType}, nil
}

func (p *pcapDemux) next(d *Demuxer) (Frame, error) {
	start := d.cursor
	hdr, err := d.buf.Slice(start, start+pcapRecordHeaderLen)
	if err != nil {
		d.cursor = start
		return Frame{}, capbuf.ErrEndOfStream
	}

	tsSec := p.order.Uint32(hdr[0:4])
	tsSubsec := p.order.Uint32(hdr[4:8])
	capLen := p.order.Uint32(hdr[8:12])
	origLen := p.order.Uint32(hdr[12:16])

	bodyStart := start + pcapRecordHeaderLen
	bodyEnd := bodyStart + uint64(capLen)
	if _, err := d.buf.Slice(bodyStart, bodyEnd); err != nil {
		d.cursor = start
		return Frame{}, capbuf.ErrEndOfStream
	}

	var ts time.Time
	if p.nanos {
		ts = time.Unix(int64(tsSec), int64(tsSubsec)).UTC()
	} else {
		ts = time.Unix(int64(tsSec), int64(tsSubsec)*1000).UTC()
	}

	d.cursor = bodyEnd
	return Frame{
		Timestamp:   ts,
		CapturedLen: capLen,
		OriginalLen: origLen,
		DataStart:   bodyStart,
		DataEnd:     bodyEnd,
		LinkType:    p.linkType,
	}, nil
}
