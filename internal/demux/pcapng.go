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
	"math"
	"time"

	"github.com/packwright/packwright/internal/capbuf"
)

const (
	pcapngSHBMagic      uint32 = 0x0A0D0D0A
	pcapngByteOrderBE   uint32 = 0x1A2B3C4D
	pcapngMinBlockLen          = 12

	blockTypeSHB       uint32 = 0x0A0D0D0A
	blockTypeIDB       uint32 = 0x00000001
	blockTypeSPB       uint32 = 0x00000003
	blockTypeISB       uint32 = 0x00000005
	blockTypeEPB       uint32 = 0x00000006
)

type pcapngIface struct {
	linkType LinkType
	snaplen  uint32
	tsresol  uint8 // power-of-ten (if high bit clear) exponent; default 6 (microseconds)
}

type pcapngDemux struct {
	order binary.ByteOrder
	ifs   []pcapngIface
}

func newPcapngDemux(d *Demuxer) (*pcapngDemux, error) {
	p := &pcapngDemux{order: binary.BigEndian}
	d.meta.Interfaces = nil
	return p, nil
}

// next parses exactly one PCAP-NG block, looping internally over
// non-packet blocks (SHB/IDB/ISB) until it finds a packet block or runs
// out of buffered bytes.
func (p *pcapngDemux) next(d *Demuxer) (Frame, error) {
	for {
		start := d.cursor
		bt, totalLen, body, err := p.readBlockHeader(d, start)
		if err != nil {
			d.cursor = start
			return Frame{}, err
		}

		switch bt {
		case blockTypeSHB:
			if err := p.parseSHB(body); err != nil {
				return Frame{}, err
			}
			d.cursor = start + uint64(totalLen)
			continue

		case blockTypeIDB:
			iface := p.parseIDB(body)
			p.ifs = append(p.ifs, iface)
			d.meta.Interfaces = append(d.meta.Interfaces, InterfaceInfo{LinkType: iface.linkType, Snaplen: iface.snaplen})
			d.cursor = start + uint64(totalLen)
			continue

		case blockTypeISB:
			// Interface statistics: informational only, skip.
			d.cursor = start + uint64(totalLen)
			continue

		case blockTypeEPB:
			f, err := p.parseEPB(body, start+8)
			if err != nil {
				d.cursor = start
				return Frame{}, err
			}
			d.cursor = start + uint64(totalLen)
			return f, nil

		case blockTypeSPB:
			f, err := p.parseSPB(body, start+8)
			if err != nil {
				d.cursor = start
				return Frame{}, err
			}
			d.cursor = start + uint64(totalLen)
			return f, nil

		default:
			// Unknown block type: skip it (forward compatibility).
			d.cursor = start + uint64(totalLen)
			continue
		}
	}
}

// readBlockHeader reads type + both length fields and returns the body
// slice [start+8, start+totalLen-4). It validates the trailing length
// matches the leading one.
func (p *pcapngDemux) readBlockHeader(d *Demuxer, start uint64) (uint32, uint32, []byte, error) {
	hdr, err := d.buf.Slice(start, start+8)
	if err != nil {
		return 0, 0, nil, capbuf.ErrEndOfStream
	}
	bt := p.order.Uint32(hdr[0:4])
	totalLen := p.order.Uint32(hdr[4:8])
	if totalLen < pcapngMinBlockLen {
		return 0, 0, nil, ErrFormatMismatch
	}

	full, err := d.buf.Slice(start, start+uint64(totalLen))
	if err != nil {
		return 0, 0, nil, capbuf.ErrEndOfStream
	}
	trailer := p.order.Uint32(full[totalLen-4 : totalLen])
	if trailer != totalLen {
		return 0, 0, nil, ErrFormatMismatch
	}
	body := full[8 : totalLen-4]
	return bt, totalLen, body, nil
}

func (p *pcapngDemux) parseSHB(body []byte) error {
	if len(body) < 16 {
		return ErrFormatMismatch
	}
	switch {
	case binary.BigEndian.Uint32(body[0:4]) == pcapngByteOrderBE:
		p.order = binary.BigEndian
	case binary.LittleEndian.Uint32(body[0:4]) == pcapngByteOrderBE:
		p.order = binary.LittleEndian
	default:
		return ErrFormatMismatch
	}
	return nil
}

func (p *pcapngDemux) parseIDB(body []byte) pcapngIface {
	iface := pcapngIface{tsresol: 6}
	if len(body) < 8 {
		return iface
	}
	iface.linkType = LinkType(p.order.Uint16(body[0:2]))
	iface.snaplen = p.order.Uint32(body[4:8])
	opts := body[8:]
	for len(opts) >= 4 {
		code := p.order.Uint16(opts[0:2])
		optLen := p.order.Uint16(opts[2:4])
		padded := int(optLen+3) / 4 * 4
		if len(opts) < 4+padded {
			break
		}
		val := opts[4 : 4+int(optLen)]
		if code == 0 { // opt_endofopt
			break
		}
		if code == 9 && len(val) >= 1 { // if_tsresol
			iface.tsresol = val[0]
		}
		opts = opts[4+padded:]
	}
	return iface
}

func (p *pcapngDemux) ifaceFor(id uint32) pcapngIface {
	if int(id) < len(p.ifs) {
		return p.ifs[id]
	}
	return pcapngIface{tsresol: 6}
}

func (p *pcapngDemux) timestamp(ifaceID uint32, high, low uint32) time.Time {
	iface := p.ifaceFor(ifaceID)
	raw := uint64(high)<<32 | uint64(low)

	var divisor float64
	if iface.tsresol&0x80 != 0 {
		divisor = math.Pow(2, float64(iface.tsresol&0x7F))
	} else {
		res := iface.tsresol
		if res == 0 {
			res = 6
		}
		divisor = math.Pow(10, float64(res))
	}
	seconds := float64(raw) / divisor
	sec := int64(seconds)
	nsec := int64((seconds - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// parseEPB parses an Enhanced Packet Block body; bodyStart is the absolute
// buffer offset of body[0].
func (p *pcapngDemux) parseEPB(body []byte, bodyStart uint64) (Frame, error) {
	if len(body) < 20 {
		return Frame{}, ErrFormatMismatch
	}
	ifaceID := p.order.Uint32(body[0:4])
	tsHigh := p.order.Uint32(body[4:8])
	tsLow := p.order.Uint32(body[8:12])
	capLen := p.order.Uint32(body[12:16])
	origLen := p.order.Uint32(body[16:20])

	if uint64(20+capLen) > uint64(len(body)) {
		return Frame{}, ErrFormatMismatch
	}
	dataStart := bodyStart + 20

	return Frame{
		Timestamp:    p.timestamp(ifaceID, tsHigh, tsLow),
		CapturedLen:  capLen,
		OriginalLen:  origLen,
		DataStart:    dataStart,
		DataEnd:      dataStart + uint64(capLen),
		LinkType:     p.ifaceFor(ifaceID).linkType,
		InterfaceIdx: int(ifaceID),
	}, nil
}

// parseSPB parses a Simple Packet Block body; bodyStart is the absolute
// buffer offset of body[0]. Simple Packet Blocks carry no timestamp and
// are always attributed to interface 0.
func (p *pcapngDemux) parseSPB(body []byte, bodyStart uint64) (Frame, error) {
	if len(body) < 4 {
		return Frame{}, ErrFormatMismatch
	}
	origLen := p.order.Uint32(body[0:4])
	capLen := origLen
	if uint64(capLen) > uint64(len(body)-4) {
		capLen = uint32(len(body) - 4)
	}
	dataStart := bodyStart + 4
	return Frame{
		LinkType:    p.ifaceFor(0).linkType,
		CapturedLen: capLen,
		OriginalLen: origLen,
		DataStart:   dataStart,
		DataEnd:     dataStart + uint64(capLen),
	}, nil
}
