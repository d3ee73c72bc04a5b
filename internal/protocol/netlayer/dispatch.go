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

// Package netlayer dissects IPv4 and IPv6 and dispatches to the
// transport/ICMP dissectors by IP protocol number, grounded on
// gopacket/gopacket/layers.IPProtocol for the numbering.
package netlayer

import (
	"github.com/gopacket/gopacket/layers"

	"github.com/packwright/packwright/internal/store"
)

func tagForIPProtocol(p layers.IPProtocol) store.Tag {
	switch p {
	case layers.IPProtocolTCP:
		return "tcp"
	case layers.IPProtocolUDP:
		return "udp"
	case layers.IPProtocolICMPv4:
		return "icmp"
	case layers.IPProtocolICMPv6:
		return "icmpv6"
	case layers.IPProtocolIGMP:
		return "igmp"
	default:
		// ESP/AH and anything else end the chain here: spec §4 scopes
		// dissection to TCP/UDP/ICMP/IGMP transport and their
		// application-layer riders.
		return store.TagNone
	}
}
