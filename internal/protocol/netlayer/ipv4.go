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
	protocol.Register("ipv4", protocol.Dissector{Parse: parseIPv4, Detail: detailIPv4})
}

func parseIPv4(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error) {
	verIHL, err := r.ReadU8()
	if err != nil {
		return store.TagNone, err
	}
	ihl := int(verIHL&0x0F) * 4
	if _, err := r.SliceN(1); err != nil { // DSCP/ECN
		return store.TagNone, err
	}
	totalLen, err := r.ReadU16BE()
	if err != nil {
		return store.TagNone, err
	}
	if _, err := r.SliceN(4); err != nil { // identification, flags, frag offset
		return store.TagNone, err
	}
	if _, err := r.SliceN(1); err != nil { // TTL
		return store.TagNone, err
	}
	proto, err := r.ReadU8()
	if err != nil {
		return store.TagNone, err
	}
	if _, err := r.SliceN(2); err != nil { // header checksum
		return store.TagNone, err
	}
	src, err := r.ReadIPv4()
	if err != nil {
		return store.TagNone, err
	}
	dst, err := r.ReadIPv4()
	if err != nil {
		return store.TagNone, err
	}
	if ihl > 20 {
		if _, err := r.SliceN(uint64(ihl - 20)); err != nil {
			return store.TagNone, err
		}
	}

	frame.Address = &store.AddressField{Src: src, Dst: dst}
	frame.IPLen = uint32(totalLen)
	frame.SetProperty("ip.src", src.String())
	frame.SetProperty("ip.dst", dst.String())
	return tagForIPProtocol(layers.IPProtocol(proto)), nil
}

func detailIPv4(parent *render.Field, ctx *store.Context, frame *store.Frame, r *capbuf.Reader) store.Tag {
	start := r.Cursor()
	verIHL, err := r.ReadU8()
	if err != nil {
		return store.TagNone
	}
	ihl := int(verIHL&0x0F) * 4
	r.SliceN(1)
	totalLen, _ := r.ReadU16BE()
	r.SliceN(4)
	r.SliceN(1)
	proto, _ := r.ReadU8()
	r.SliceN(2)
	src, _ := r.ReadIPv4()
	dst, _ := r.ReadIPv4()
	if ihl > 20 {
		r.SliceN(uint64(ihl - 20))
	}
	f := parent.Addf(start, uint64(ihl), "Internet Protocol Version 4, Src: %s, Dst: %s", src, dst)
	f.Addf(start+2, 2, "Total Length: %d", totalLen)
	f.Addf(start+9, 1, "Protocol: %d", proto)
	f.Addf(start+12, 4, "Source: %s", src)
	f.Addf(start+16, 4, "Destination: %s", dst)
	return tagForIPProtocol(layers.IPProtocol(proto))
}
