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

// Package linklayer dissects the frame's outermost envelope (Ethernet,
// BSD loopback, Linux cooked capture) and hands off to netlayer by
// ethertype, grounded on gopacket/gopacket/layers' EthernetType table.
package linklayer

import (
	"github.com/gopacket/gopacket/layers"

	"github.com/packwright/packwright/internal/store"
)

// tagForEthertype maps an EtherType to the netlayer/arp dissector tag
// that should run next. Unrecognized types end the chain.
func tagForEthertype(et layers.EthernetType) store.Tag {
	switch et {
	case layers.EthernetTypeIPv4:
		return "ipv4"
	case layers.EthernetTypeIPv6:
		return "ipv6"
	case layers.EthernetTypeARP:
		return "arp"
	case layers.EthernetTypePPPoEDiscovery:
		return "pppoe_discovery"
	case layers.EthernetTypePPPoESession:
		return "pppoe_session"
	case layers.EthernetTypeEAPOL:
		return "eapol"
	default:
		return store.TagNone
	}
}

const ethertypeVLAN = 0x8100
