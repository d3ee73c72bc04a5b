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

package netlayer

import (
	"github.com/gopacket/gopacket/layers"

	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/protocol"
	"github.com/packwright/packwright/internal/render"
	"github.com/packwright/packwright/internal/store"
)

func init() {
	protocol.Register("ipv6", protocol.Dissector{Parse: parseIPv6, Detail: detailIPv6})
}

func parseIPv6(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error) {
	if _, err := r.SliceN(4); err != nil { // version/traffic class/flow label
		return store.TagNone, err
	}
	payloadLen, err := r.ReadU16BE()
	if err != nil {
		return store.TagNone, err
	}
	nextHdr, err := r.ReadU8()
	if err != nil {
		return store.TagNone, err
	}
	if _, err := r.SliceN(1); err != nil { // hop limit
		return store.TagNone, err
	}
	src, err := r.ReadIPv6()
	if err != nil {
		return store.TagNone, err
	}
	dst, err := r.ReadIPv6()
	if err != nil {
		return store.TagNone, err
	}

	hash := ctx.IPv6PairHash(src, dst)
	frame.Address = &store.AddressField{IsIPv6: true, Src: src, Dst: dst, HashKey: hash}
	frame.IPLen = uint32(payloadLen) + 40
	frame.SetProperty("ip.src", src.String())
	frame.SetProperty("ip.dst", dst.String())
	// IPv6 extension headers (hop-by-hop, routing, fragment) are not
	// unwound: a capture using them falls through to TagNone here.
	return tagForIPProtocol(layers.IPProtocol(nextHdr)), nil
}

func detailIPv6(parent *render.Field, ctx *store.Context, frame *store.Frame, r *capbuf.Reader) store.Tag {
	start := r.Cursor()
	r.SliceN(4)
	payloadLen, _ := r.ReadU16BE()
	nextHdr, _ := r.ReadU8()
	r.SliceN(1)
	src, _ := r.ReadIPv6()
	dst, err := r.ReadIPv6()
	if err != nil {
		return store.TagNone
	}
	f := parent.Addf(start, 40, "Internet Protocol Version 6, Src: %s, Dst: %s", src, dst)
	f.Addf(start+4, 2, "Payload Length: %d", payloadLen)
	f.Addf(start+6, 1, "Next Header: %d", nextHdr)
	f.Addf(start+8, 16, "Source: %s", src)
	f.Addf(start+24, 16, "Destination: %s", dst)
	return tagForIPProtocol(layers.IPProtocol(nextHdr))
}
