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

// Linux cooked capture (DLT_LINUX_SLL): a fixed 16-byte header replacing
// the real link-layer header, ending in a protocol field that carries the
// same EtherType space as Ethernet.
func init() {
	protocol.Register("linux_sll", protocol.Dissector{Parse: parseSLL, Detail: detailSLL})
}

func parseSLL(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error) {
	if _, err := r.SliceN(2); err != nil { // packet type
		return store.TagNone, err
	}
	if _, err := r.SliceN(2); err != nil { // ARPHRD type
		return store.TagNone, err
	}
	if _, err := r.SliceN(2); err != nil { // link-layer addr length
		return store.TagNone, err
	}
	if _, err := r.SliceN(8); err != nil { // link-layer addr, padded to 8
		return store.TagNone, err
	}
	et, err := r.ReadU16BE()
	if err != nil {
		return store.TagNone, err
	}
	return tagForEthertype(layers.EthernetType(et)), nil
}

func detailSLL(parent *render.Field, ctx *store.Context, frame *store.Frame, r *capbuf.Reader) store.Tag {
	start := r.Cursor()
	r.SliceN(14)
	et, err := r.ReadU16BE()
	if err != nil {
		return store.TagNone
	}
	parent.Addf(start, 16, "Linux cooked capture, protocol: 0x%04x", et)
	return tagForEthertype(layers.EthernetType(et))
}
