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

package linklayer

import (
	"github.com/gopacket/gopacket/layers"

	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/protocol"
	"github.com/packwright/packwright/internal/render"
	"github.com/packwright/packwright/internal/store"
)

func init() {
	protocol.Register("ethernet", protocol.Dissector{Parse: parseEthernet, Detail: detailEthernet})
}

func parseEthernet(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error) {
	dst, err := r.ReadMAC()
	if err != nil {
		return store.TagNone, err
	}
	src, err := r.ReadMAC()
	if err != nil {
		return store.TagNone, err
	}
	et, err := r.ReadU16BE()
	if err != nil {
		return store.TagNone, err
	}

	// Strip any 802.1Q/802.1ad VLAN tags before reaching the real
	// ethertype; at most two levels (QinQ) are unwound.
	for i := 0; i < 2 && et == ethertypeVLAN; i++ {
		if _, err := r.SliceN(2); err != nil { // TCI
			return store.TagNone, err
		}
		et, err = r.ReadU16BE()
		if err != nil {
			return store.TagNone, err
		}
	}

	frame.SetProperty("eth.src", src.String())
	frame.SetProperty("eth.dst", dst.String())
	return tagForEthertype(layers.EthernetType(et)), nil
}

func detailEthernet(parent *render.Field, ctx *store.Context, frame *store.Frame, r *capbuf.Reader) store.Tag {
	start := r.Cursor()
	dst, _ := r.ReadMAC()
	src, _ := r.ReadMAC()
	et, _ := r.ReadU16BE()
	for i := 0; i < 2 && et == ethertypeVLAN; i++ {
		r.SliceN(2)
		et, _ = r.ReadU16BE()
	}
	f := parent.Addf(start, r.Cursor()-start, "Ethernet II, Src: %s, Dst: %s", src, dst)
	f.Addf(start, 6, "Destination: %s", dst)
	f.Addf(start+6, 6, "Source: %s", src)
	f.Addf(r.Cursor()-2, 2, "Type: 0x%04x", et)
	return tagForEthertype(layers.EthernetType(et))
}
