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

package pdns

import (
	"fmt"

	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/protocol"
	"github.com/packwright/packwright/internal/render"
	"github.com/packwright/packwright/internal/store"
)

func init() {
	protocol.Register("nbns", protocol.Dissector{Parse: parseNBNS, Detail: detailNBNS})
}

// NBNS (RFC 1002 §4.2) reuses the DNS Header/Question/RR-section loop but
// encodes names with the 32-byte half-nibble NetBIOS scheme from C1
// instead of length-prefixed labels, so it gets its own question/RR
// readers rather than sharing readQuestion/readRR.
func readNBNSQuestion(r *capbuf.Reader) (name string, qtype, qclass uint16, err error) {
	name, err = r.ReadNetBIOSName()
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

func readNBNSRR(r *capbuf.Reader) (rr, error) {
	var out rr
	var err error
	if out.name, err = r.ReadNetBIOSName(); err != nil {
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

func parseNBNS(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error) {
	h, err := readHeader(r)
	if err != nil {
		return store.TagNone, err
	}

	var qname string
	for i := uint16(0); i < h.qdCount; i++ {
		name, _, _, err := readNBNSQuestion(r)
		if err != nil {
			return store.TagNone, err
		}
		if i == 0 {
			qname = name
			frame.SetProperty("nbns.name", qname)
		}
	}

	kind := "query"
	if h.isResponse() {
		kind = "response"
	}
	frame.Info = fmt.Sprintf("NBNS %s %s", kind, qname)

	if !h.isResponse() {
		return store.TagNone, nil
	}
	for i := uint16(0); i < h.anCount; i++ {
		rec, err := readNBNSRR(r)
		if err != nil {
			return store.TagNone, err
		}
		content := nbnsRdataContent(ctx, rec)
		ctx.AppendDnsRecord(&store.DnsRecord{
			FrameIndex: frame.Index,
			Name:       ctx.Intern(rec.name),
			Type:       nbnsTypeName(rec.typ),
			Class:      className(rec.class),
			TTL:        rec.ttl,
			Content:    content,
		})
	}
	return store.TagNone, nil
}

const (
	nbnsTypeNB     = 0x20
	nbnsTypeNBSTAT = 0x21
)

func nbnsTypeName(t uint16) string {
	switch t {
	case nbnsTypeNB:
		return "NB"
	case nbnsTypeNBSTAT:
		return "NBSTAT"
	default:
		return fmt.Sprintf("TYPE%d", t)
	}
}

// nbnsRdataContent decodes the one RR shape worth surfacing: an NB
// record's IPv4 address list. NBSTAT's node-name-table rdata is left as
// an opaque length note, same as any unrecognized DNS RR type.
func nbnsRdataContent(ctx *store.Context, rec rr) string {
	if rec.typ != nbnsTypeNB || rec.rdLen < 6 {
		return fmt.Sprintf("%d bytes", rec.rdLen)
	}
	b, err := ctx.Buffer().Slice(rec.rdStart+2, rec.rdStart+6)
	if err != nil || len(b) != 4 {
		return fmt.Sprintf("%d bytes", rec.rdLen)
	}
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}

func detailNBNS(parent *render.Field, ctx *store.Context, frame *store.Frame, r *capbuf.Reader) store.Tag {
	start := r.Cursor()
	h, err := readHeader(r)
	if err != nil {
		return store.TagNone
	}
	f := parent.Addf(start, 12, "NetBIOS Name Service, id: 0x%04x", h.id)
	for i := uint16(0); i < h.qdCount; i++ {
		qStart := r.Cursor()
		name, qtype, _, err := readNBNSQuestion(r)
		if err != nil {
			return store.TagNone
		}
		f.Addf(qStart, r.Cursor()-qStart, "Query: %s %s", name, nbnsTypeName(qtype))
	}
	if !h.isResponse() {
		return store.TagNone
	}
	for i := uint16(0); i < h.anCount; i++ {
		rStart := r.Cursor()
		rec, err := readNBNSRR(r)
		if err != nil {
			return store.TagNone
		}
		content := nbnsRdataContent(ctx, rec)
		f.Addf(rStart, r.Cursor()-rStart, "Answer: %s %s %s", rec.name, nbnsTypeName(rec.typ), content)
	}
	return store.TagNone
}
