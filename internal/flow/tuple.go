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

// Package flow implements the connection tracker and TCP reassembler
// (C5/C6): canonical endpoint ordering, the TCP handshake state machine,
// sequence-number classification, and per-endpoint reassembly bookkeeping.
package flow

import (
	"net/netip"
)

// Tuple identifies one direction of one segment as observed on the wire,
// before canonicalization.
type Tuple struct {
	SrcIP   netip.Addr
	DstIP   netip.Addr
	SrcPort uint16
	DstPort uint16
}

// Mirror swaps source and destination.
func (t Tuple) Mirror() Tuple {
	return Tuple{SrcIP: t.DstIP, DstIP: t.SrcIP, SrcPort: t.DstPort, DstPort: t.SrcPort}
}

// side is one (ip,port) half of a tuple, used only for canonical ordering.
type side struct {
	ip   netip.Addr
	port uint16
}

func (s side) less(o side) bool {
	if c := s.ip.Compare(o.ip); c != 0 {
		return c < 0
	}
	return s.port < o.port
}

// ConnKey is the canonical 4-tuple a Connection is uniquely identified by:
// the lexicographically smaller (ip,port) pair first, per spec §4.4.
type ConnKey struct {
	IPLo   netip.Addr
	PortLo uint16
	IPHi   netip.Addr
	PortHi uint16
}

// ConvKey is the canonical, unordered IP pair a Conversation is keyed by.
type ConvKey struct {
	IPLo netip.Addr
	IPHi netip.Addr
}

// Canonicalize returns the connection key for t plus whether t, as given,
// represents the "reverse" (non-initiator-ordered) direction.
func Canonicalize(t Tuple) (ConnKey, bool) {
	a := side{t.SrcIP, t.SrcPort}
	b := side{t.DstIP, t.DstPort}
	if a.less(b) {
		return ConnKey{IPLo: a.ip, PortLo: a.port, IPHi: b.ip, PortHi: b.port}, false
	}
	return ConnKey{IPLo: b.ip, PortLo: b.port, IPHi: a.ip, PortHi: a.port}, true
}

// ConversationKey returns the canonical, unordered IP-pair key for t.
func ConversationKey(t Tuple) ConvKey {
	if t.SrcIP.Compare(t.DstIP) <= 0 {
		return ConvKey{IPLo: t.SrcIP, IPHi: t.DstIP}
	}
	return ConvKey{IPLo: t.DstIP, IPHi: t.SrcIP}
}
