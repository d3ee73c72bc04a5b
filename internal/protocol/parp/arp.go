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

// Package parp dissects ARP (RFC 826), a terminal protocol in this
// chain: it carries no further encapsulated layer.
package parp

import (
	"net/netip"

	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/protocol"
	"github.com/packwright/packwright/internal/render"
	"github.com/packwright/packwright/internal/store"
)

func init() {
	protocol.Register("arp", protocol.Dissector{Parse: parse, Detail: detail})
}

const (
	opRequest = 1
	opReply   = 2
)

func opName(op uint16) string {
	switch op {
	case opRequest:
		return "request"
	case opReply:
		return "reply"
	default:
		return "unknown"
	}
}

func parse(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error) {
	if _, err := r.SliceN(2); err != nil { // hardware type
		return store.TagNone, err
	}
	if _, err := r.SliceN(2); err != nil { // protocol type
		return store.TagNone, err
	}
	hlen, err := r.ReadU8()
	if err != nil {
		return store.TagNone, err
	}
	plen, err := r.ReadU8()
	if err != nil {
		return store.TagNone, err
	}
	op, err := r.ReadU16BE()
	if err != nil {
		return store.TagNone, err
	}
	senderHW, err := r.SliceN(uint64(hlen))
	if err != nil {
		return store.TagNone, err
	}
	senderProto, err := r.SliceN(uint64(plen))
	if err != nil {
		return store.TagNone, err
	}
	if _, err := r.SliceN(uint64(hlen)); err != nil { // target hw addr
		return store.TagNone, err
	}
	targetProto, err := r.SliceN(uint64(plen))
	if err != nil {
		return store.TagNone, err
	}

	frame.Info = "ARP " + opName(op)
	frame.SetProperty("arp.op", opName(op))
	frame.SetProperty("arp.sender.hw", macString(senderHW))
	frame.SetProperty("arp.sender.proto", ipString(senderProto))
	frame.SetProperty("arp.target.proto", ipString(targetProto))
	return store.TagNone, nil
}

func detail(parent *render.Field, ctx *store.Context, frame *store.Frame, r *capbuf.Reader) store.Tag {
	start := r.Cursor()
	r.SliceN(4)
	hlen, _ := r.ReadU8()
	plen, _ := r.ReadU8()
	op, err := r.ReadU16BE()
	if err != nil {
		return store.TagNone
	}
	senderHW, _ := r.SliceN(uint64(hlen))
	senderProto, _ := r.SliceN(uint64(plen))
	r.SliceN(uint64(hlen))
	targetProto, _ := r.SliceN(uint64(plen))

	f := parent.Addf(start, r.Cursor()-start, "Address Resolution Protocol (%s)", opName(op))
	f.Addf(start+8, uint64(hlen), "Sender MAC: %s", macString(senderHW))
	f.Addf(start+8+uint64(hlen), uint64(plen), "Sender IP: %s", ipString(senderProto))
	f.Addf(start+8+2*uint64(hlen)+2*uint64(plen)-uint64(plen), uint64(plen), "Target IP: %s", ipString(targetProto))
	return store.TagNone
}

func macString(b []byte) string {
	if len(b) != 6 {
		return ""
	}
	const hex = "0123456789abcdef"
	out := make([]byte, 0, 17)
	for i, c := range b {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, hex[c>>4], hex[c&0xF])
	}
	return string(out)
}

func ipString(b []byte) string {
	if len(b) != 4 {
		return ""
	}
	return netip.AddrFrom4([4]byte(b)).String()
}
