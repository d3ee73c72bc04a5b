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

// Package pdhcp dissects DHCPv4 (RFC 2131) datagrams. A terminal leaf,
// same as picmp/parp: nothing further rides on a DHCP payload. Unlike its
// siblings, the DHCP option space is wide enough (fifty-odd well-known
// option codes, vendor-specific extensions) that hand-rolling it gains
// nothing gopacket/gopacket/layers.DHCPv4 doesn't already give for free,
// so this leaf decodes through that library rather than capbuf primitives
// alone.
package pdhcp

import (
	"fmt"
	"net"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/protocol"
	"github.com/packwright/packwright/internal/render"
	"github.com/packwright/packwright/internal/store"
)

func init() {
	protocol.Register("dhcp", protocol.Dissector{Parse: parse, Detail: detail})
}

func decode(r *capbuf.Reader) (*layers.DHCPv4, []byte, error) {
	b, err := r.SliceN(r.Left())
	if err != nil {
		return nil, nil, err
	}
	d := &layers.DHCPv4{}
	if err := d.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
		return nil, nil, err
	}
	return d, b, nil
}

func messageType(d *layers.DHCPv4) layers.DHCPMsgType {
	for _, opt := range d.Options {
		if opt.Type == layers.DHCPOptMessageType && len(opt.Data) == 1 {
			return layers.DHCPMsgType(opt.Data[0])
		}
	}
	return layers.DHCPMsgTypeUnspecified
}

func requestedIP(d *layers.DHCPv4) string {
	for _, opt := range d.Options {
		if opt.Type == layers.DHCPOptRequestIP && len(opt.Data) == 4 {
			return fmt.Sprintf("%d.%d.%d.%d", opt.Data[0], opt.Data[1], opt.Data[2], opt.Data[3])
		}
	}
	return ""
}

func leaseSeconds(d *layers.DHCPv4) (uint32, bool) {
	for _, opt := range d.Options {
		if opt.Type == layers.DHCPOptLeaseTime && len(opt.Data) == 4 {
			return uint32(opt.Data[0])<<24 | uint32(opt.Data[1])<<16 | uint32(opt.Data[2])<<8 | uint32(opt.Data[3]), true
		}
	}
	return 0, false
}

func parse(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error) {
	d, _, err := decode(r)
	if err != nil {
		return store.TagNone, err
	}

	mt := messageType(d)
	frame.SetProperty("dhcp.op", fmt.Sprintf("%d", d.Operation))
	frame.SetProperty("dhcp.type", mt.String())
	frame.SetProperty("dhcp.xid", fmt.Sprintf("0x%x", d.Xid))
	if ip := requestedIP(d); ip != "" {
		frame.SetProperty("dhcp.requested_ip", ip)
	}
	frame.Info = fmt.Sprintf("DHCP %s", mt.String())
	return store.TagNone, nil
}

func detail(parent *render.Field, ctx *store.Context, frame *store.Frame, r *capbuf.Reader) store.Tag {
	start := r.Cursor()
	d, b, err := decode(r)
	if err != nil {
		return store.TagNone
	}
	mt := messageType(d)
	f := parent.Addf(start, uint64(len(b)), "Dynamic Host Configuration Protocol (%s)", mt.String())
	f.Addf(start, 1, "Message type: %s", opName(d.Operation))
	f.Addf(start+4, 4, "Transaction ID: 0x%x", d.Xid)
	if !d.ClientIP.Equal(zeroIP) {
		f.Addf(start+12, 4, "Client IP address: %s", d.ClientIP)
	}
	if !d.YourClientIP.Equal(zeroIP) {
		f.Addf(start+16, 4, "Your (client) IP address: %s", d.YourClientIP)
	}
	if ip := requestedIP(d); ip != "" {
		f.Addf(start, 0, "Requested IP address: %s", ip)
	}
	if lease, ok := leaseSeconds(d); ok {
		f.Addf(start, 0, "IP address lease time: %d seconds", lease)
	}
	return store.TagNone
}

func opName(op layers.DHCPOp) string {
	switch op {
	case layers.DHCPOpRequest:
		return "Boot Request"
	case layers.DHCPOpReply:
		return "Boot Reply"
	default:
		return fmt.Sprintf("op %d", op)
	}
}

var zeroIP = net.IPv4zero
