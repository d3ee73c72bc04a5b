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

package translayer

import (
	"fmt"

	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/protocol"
	"github.com/packwright/packwright/internal/render"
	"github.com/packwright/packwright/internal/store"
)

func init() {
	protocol.Register("udp", protocol.Dissector{Parse: parseUDP, Detail: detailUDP})
}

const (
	portDNS   = 53
	portMDNS  = 5353
	portNBNS  = 137
	portDHCP1 = 67
	portDHCP2 = 68
)

// udpNextTag applies spec §4.3's UDP port dispatch: DNS and its
// wire-compatible mDNS sibling share one decoder; NBNS and DHCP get
// their own.
func udpNextTag(srcPort, dstPort uint16) store.Tag {
	switch portDNS {
	case srcPort, dstPort:
		return "dns"
	}
	switch portMDNS {
	case srcPort, dstPort:
		return "mdns"
	}
	switch portNBNS {
	case srcPort, dstPort:
		return "nbns"
	}
	if srcPort == portDHCP1 || dstPort == portDHCP1 || srcPort == portDHCP2 || dstPort == portDHCP2 {
		return "dhcp"
	}
	return store.TagNone
}

func parseUDP(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error) {
	srcPort, err := r.ReadU16BE()
	if err != nil {
		return store.TagNone, err
	}
	dstPort, err := r.ReadU16BE()
	if err != nil {
		return store.TagNone, err
	}
	length, err := r.ReadU16BE()
	if err != nil {
		return store.TagNone, err
	}
	if _, err := r.SliceN(2); err != nil { // checksum
		return store.TagNone, err
	}

	frame.UDPPorts = &struct{ Src, Dst uint16 }{Src: srcPort, Dst: dstPort}
	frame.SetProperty("udp.srcport", fmt.Sprintf("%d", srcPort))
	frame.SetProperty("udp.dstport", fmt.Sprintf("%d", dstPort))
	frame.Info = fmt.Sprintf("%d -> %d Len=%d", srcPort, dstPort, length)

	return udpNextTag(srcPort, dstPort), nil
}

func detailUDP(parent *render.Field, ctx *store.Context, frame *store.Frame, r *capbuf.Reader) store.Tag {
	start := r.Cursor()
	srcPort, err := r.ReadU16BE()
	if err != nil {
		return store.TagNone
	}
	dstPort, _ := r.ReadU16BE()
	length, _ := r.ReadU16BE()
	r.SliceN(2)
	f := parent.Addf(start, 8, "User Datagram Protocol, Src Port: %d, Dst Port: %d", srcPort, dstPort)
	f.Addf(start, 2, "Source Port: %d", srcPort)
	f.Addf(start+2, 2, "Destination Port: %d", dstPort)
	f.Addf(start+4, 2, "Length: %d", length)
	return udpNextTag(srcPort, dstPort)
}
