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

package picmp

import (
	"fmt"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/protocol"
	"github.com/packwright/packwright/internal/render"
	"github.com/packwright/packwright/internal/store"
)

func init() {
	protocol.Register("igmp", protocol.Dissector{Parse: parseIGMP, Detail: detailIGMP})
}

type igmpFields struct {
	typ   layers.IGMPType
	group string
}

// decodeIGMP hands the remaining bytes to gopacket/gopacket/layers, which
// picks IGMPv1/v2 vs IGMPv3 framing by message length the same way
// layers.decodeIGMP does internally; we just read back whichever of the
// two layer types it produced.
func decodeIGMP(b []byte) (igmpFields, error) {
	pkt := gopacket.NewPacket(b, layers.LayerTypeIGMP, gopacket.NoCopy)
	if errLayer := pkt.ErrorLayer(); errLayer != nil {
		return igmpFields{}, errLayer.Error()
	}
	switch l := pkt.Layer(layers.LayerTypeIGMP).(type) {
	case *layers.IGMP:
		return igmpFields{typ: l.Type, group: l.GroupAddress.String()}, nil
	case *layers.IGMPv1or2:
		return igmpFields{typ: l.Type, group: l.GroupAddress.String()}, nil
	default:
		return igmpFields{}, fmt.Errorf("igmp: no IGMP layer decoded")
	}
}

func parseIGMP(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error) {
	b, err := r.SliceN(r.Left())
	if err != nil {
		return store.TagNone, err
	}
	f, err := decodeIGMP(b)
	if err != nil {
		return store.TagNone, err
	}
	frame.Info = "IGMP " + f.typ.String()
	frame.SetProperty("igmp.type", f.typ.String())
	if f.group != "" {
		frame.SetProperty("igmp.group", f.group)
	}
	return store.TagNone, nil
}

func detailIGMP(parent *render.Field, ctx *store.Context, frame *store.Frame, r *capbuf.Reader) store.Tag {
	start := r.Cursor()
	b, err := r.SliceN(r.Left())
	if err != nil {
		return store.TagNone
	}
	f, err := decodeIGMP(b)
	if err != nil {
		return store.TagNone
	}
	field := parent.Addf(start, uint64(len(b)), "Internet Group Management Protocol, %s", f.typ.String())
	field.Addf(start, 1, "Type: %s", f.typ.String())
	if f.group != "" {
		field.Addf(start, 0, "Multicast Group Address: %s", f.group)
	}
	return store.TagNone
}
