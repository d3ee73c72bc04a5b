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

// Package pdns decodes DNS messages (RFC 1035): the fixed 12-byte header
// followed by Question/Answer/Authority/Additional sections, each RR
// parsed far enough to populate the DnsRecord fields spec.md §3 names
// (A/AAAA/CNAME/PTR/SOA/SRV). mDNS (UDP 5353) is wire-compatible and
// shares this decoder, per SPEC_FULL.md §4. Name decompression is owned
// by capbuf.Reader.ReadDNSName, not re-implemented here, since that's a
// spec'd C1 primitive rather than a DNS-specific concern. Grounded on
// packetd's protocol/pdns/decoder.go four-section decode loop and RR-type
// switch, hand-rolled over capbuf.Reader instead of
// golang.org/x/net/dns/dnsmessage per DESIGN.md.
package pdns

import (
	"fmt"
	"net/netip"

	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/protocol"
	"github.com/packwright/packwright/internal/render"
	"github.com/packwright/packwright/internal/store"
)

func init() {
	d := protocol.Dissector{Parse: parse, Detail: detail}
	protocol.Register("dns", d)
	protocol.Register("mdns", d)
}

const (
	typeA     = 1
	typeCNAME = 5
	typeSOA   = 6
	typePTR   = 12
	typeSRV   = 33
	typeAAAA  = 28
)

var typeNames = map[uint16]string{
	typeA: "A", 2: "NS", typeCNAME: "CNAME", typeSOA: "SOA",
	typePTR: "PTR", 15: "MX", 16: "TXT", typeAAAA: "AAAA", typeSRV: "SRV",
}

func typeName(t uint16) string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("TYPE%d", t)
}

var classNames = map[uint16]string{1: "IN", 3: "CH", 4: "HS"}

func className(c uint16) string {
	if n, ok := classNames[c]; ok {
		return n
	}
	return fmt.Sprintf("CLASS%d", c)
}

type header struct {
	id                                       uint16
	flags                                    uint16
	qdCount, anCount, nsCount, arCount       uint16
}

func (h header) isResponse() bool { return h.flags&0x8000 != 0 }

func readHeader(r *capbuf.Reader) (header, error) {
	var h header
	var err error
	if h.id, err = r.ReadU16BE(); err != nil {
		return h, err
	}
	if h.flags, err = r.ReadU16BE(); err != nil {
		return h, err
	}
	if h.qdCount, err = r.ReadU16BE(); err != nil {
		return h, err
	}
	if h.anCount, err = r.ReadU16BE(); err != nil {
		return h, err
	}
	if h.nsCount, err = r.ReadU16BE(); err != nil {
		return h, err
	}
	if h.arCount, err = r.ReadU16BE(); err != nil {
		return h, err
	}
	return h, nil
}

// readQuestion reads one Question entry and returns its decoded name,
// qtype and qclass; the name matters because Answer RR names frequently
// reuse it via a compression pointer (spec E5).
func readQuestion(r *capbuf.Reader, anchor uint64) (name string, qtype, qclass uint16, err error) {
	name, err = r.ReadDNSName(anchor)
	if err != nil {
		return "", 0, 0, err
	}
	if qtype, err = r.ReadU16BE(); err != nil {
		return "", 0, 0, err
	}
	if qclass, err = r.ReadU16BE(); err != nil {
		return "", 0, 0, err
	}
	return name, qtype, qclass, nil
}

type rr struct {
	name       string
	typ, class uint16
	ttl        uint32
	rdStart    uint64
	rdLen      uint16
}

func readRR(r *capbuf.Reader, anchor uint64) (rr, error) {
	var out rr
	var err error
	if out.name, err = r.ReadDNSName(anchor); err != nil {
		return out, err
	}
	if out.typ, err = r.ReadU16BE(); err != nil {
		return out, err
	}
	if out.class, err = r.ReadU16BE(); err != nil {
		return out, err
	}
	if out.ttl, err = r.ReadU32BE(); err != nil {
		return out, err
	}
	if out.rdLen, err = r.ReadU16BE(); err != nil {
		return out, err
	}
	out.rdStart = r.Cursor()
	if _, err := r.SliceN(uint64(out.rdLen)); err != nil {
		return out, err
	}
	return out, nil
}

// rdataContent decodes the resource-record-type-specific payload named
// in spec.md §3's DnsRecord.content: A/AAAA/CNAME/PTR/SOA/SRV. Any other
// type is left as a length note; this engine never decodes unrecognized
// DNS RR types further.
func rdataContent(buf *capbuf.Buffer, rec rr, anchor uint64) string {
	switch rec.typ {
	case typeA:
		b, err := buf.Slice(rec.rdStart, rec.rdStart+4)
		if err != nil || len(b) != 4 {
			return ""
		}
		return netip.AddrFrom4([4]byte(b)).String()
	case typeAAAA:
		b, err := buf.Slice(rec.rdStart, rec.rdStart+16)
		if err != nil || len(b) != 16 {
			return ""
		}
		return netip.AddrFrom16([16]byte(b)).String()
	case typeCNAME, typePTR:
		r := buf.NewReader(rec.rdStart, rec.rdStart+uint64(rec.rdLen))
		name, err := r.ReadDNSName(anchor)
		if err != nil {
			return ""
		}
		return name
	case typeSRV:
		r := buf.NewReader(rec.rdStart, rec.rdStart+uint64(rec.rdLen))
		priority, _ := r.ReadU16BE()
		weight, _ := r.ReadU16BE()
		port, _ := r.ReadU16BE()
		target, _ := r.ReadDNSName(anchor)
		return fmt.Sprintf("%d %d %d %s", priority, weight, port, target)
	case typeSOA:
		r := buf.NewReader(rec.rdStart, rec.rdStart+uint64(rec.rdLen))
		mname, _ := r.ReadDNSName(anchor)
		rname, _ := r.ReadDNSName(anchor)
		serial, _ := r.ReadU32BE()
		return fmt.Sprintf("%s %s serial=%d", mname, rname, serial)
	default:
		return fmt.Sprintf("%d bytes", rec.rdLen)
	}
}

func parse(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error) {
	anchor := r.Cursor()
	h, err := readHeader(r)
	if err != nil {
		return store.TagNone, err
	}

	var qname string
	for i := uint16(0); i < h.qdCount; i++ {
		name, qtype, _, err := readQuestion(r, anchor)
		if err != nil {
			return store.TagNone, err
		}
		if i == 0 {
			qname = name
			frame.SetProperty("dns.qname", qname)
			frame.SetProperty("dns.qtype", typeName(qtype))
		}
	}

	kind := "query"
	if h.isResponse() {
		kind = "response"
	}
	frame.Info = fmt.Sprintf("DNS %s %s", kind, qname)

	if !h.isResponse() {
		// A query carries no Answer RRs worth indexing; stop after the
		// question section, leaving the reader's remaining cursor (if
		// any Authority/Additional bytes exist) unconsumed but harmless
		// since this is a terminal dissector.
		return store.TagNone, nil
	}

	for i := uint16(0); i < h.anCount; i++ {
		rec, err := readRR(r, anchor)
		if err != nil {
			return store.TagNone, err
		}
		content := rdataContent(ctx.Buffer(), rec, anchor)
		ctx.AppendDnsRecord(&store.DnsRecord{
			FrameIndex: frame.Index,
			Name:       ctx.Intern(rec.name),
			Type:       typeName(rec.typ),
			Class:      className(rec.class),
			TTL:        rec.ttl,
			Content:    content,
		})
	}
	return store.TagNone, nil
}

func detail(parent *render.Field, ctx *store.Context, frame *store.Frame, r *capbuf.Reader) store.Tag {
	start := r.Cursor()
	anchor := start
	h, err := readHeader(r)
	if err != nil {
		return store.TagNone
	}
	f := parent.Addf(start, 12, "Domain Name System, id: 0x%04x", h.id)
	f.Addf(start+2, 2, "Flags: 0x%04x", h.flags)
	f.Addf(start+4, 2, "Questions: %d", h.qdCount)
	f.Addf(start+6, 2, "Answer RRs: %d", h.anCount)

	for i := uint16(0); i < h.qdCount; i++ {
		qStart := r.Cursor()
		name, qtype, qclass, err := readQuestion(r, anchor)
		if err != nil {
			return store.TagNone
		}
		f.Addf(qStart, r.Cursor()-qStart, "Query: %s %s %s", name, className(qclass), typeName(qtype))
	}
	if !h.isResponse() {
		return store.TagNone
	}
	for i := uint16(0); i < h.anCount; i++ {
		rStart := r.Cursor()
		rec, err := readRR(r, anchor)
		if err != nil {
			return store.TagNone
		}
		content := rdataContent(ctx.Buffer(), rec, anchor)
		f.Addf(rStart, r.Cursor()-rStart, "Answer: %s %s %s TTL=%d %s",
			rec.name, className(rec.class), typeName(rec.typ), rec.ttl, content)
	}
	return store.TagNone
}
