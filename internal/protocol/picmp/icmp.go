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

// Package picmp dissects ICMPv4 and ICMPv6 header fields. Both are
// terminal: no application-layer protocol rides on an ICMP payload that
// this engine follows.
package picmp

import (
	"fmt"

	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/protocol"
	"github.com/packwright/packwright/internal/render"
	"github.com/packwright/packwright/internal/store"
)

func init() {
	protocol.Register("icmp", protocol.Dissector{Parse: parseICMPv4, Detail: detailICMPv4(false)})
	protocol.Register("icmpv6", protocol.Dissector{Parse: parseICMPv6, Detail: detailICMPv4(true)})
}

var icmpv4Types = map[uint8]string{
	0: "Echo Reply", 3: "Destination Unreachable", 5: "Redirect",
	8: "Echo Request", 11: "Time Exceeded",
}

var icmpv6Types = map[uint8]string{
	1: "Destination Unreachable", 2: "Packet Too Big", 3: "Time Exceeded",
	128: "Echo Request", 129: "Echo Reply",
	133: "Router Solicitation", 134: "Router Advertisement",
	135: "Neighbor Solicitation", 136: "Neighbor Advertisement",
}

func parseICMPv4(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error) {
	return parseCommon(frame, r, icmpv4Types)
}

func parseICMPv6(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error) {
	return parseCommon(frame, r, icmpv6Types)
}

func parseCommon(frame *store.Frame, r *capbuf.Reader, names map[uint8]string) (store.Tag, error) {
	typ, err := r.ReadU8()
	if err != nil {
		return store.TagNone, err
	}
	code, err := r.ReadU8()
	if err != nil {
		return store.TagNone, err
	}
	name, ok := names[typ]
	if !ok {
		name = fmt.Sprintf("type %d", typ)
	}
	frame.Info = "ICMP " + name
	frame.SetProperty("icmp.type", fmt.Sprintf("%d", typ))
	frame.SetProperty("icmp.code", fmt.Sprintf("%d", code))
	return store.TagNone, nil
}

func detailICMPv4(v6 bool) func(*render.Field, *store.Context, *store.Frame, *capbuf.Reader) store.Tag {
	names := icmpv4Types
	label := "Internet Control Message Protocol"
	if v6 {
		names = icmpv6Types
		label = "Internet Control Message Protocol v6"
	}
	return func(parent *render.Field, ctx *store.Context, frame *store.Frame, r *capbuf.Reader) store.Tag {
		start := r.Cursor()
		typ, err := r.ReadU8()
		if err != nil {
			return store.TagNone
		}
		code, _ := r.ReadU8()
		r.SliceN(2) // checksum
		name, ok := names[typ]
		if !ok {
			name = fmt.Sprintf("type %d", typ)
		}
		f := parent.Addf(start, r.Cursor()-start, "%s, %s", label, name)
		f.Addf(start, 1, "Type: %d", typ)
		f.Addf(start+1, 1, "Code: %d", code)
		return store.TagNone
	}
}
