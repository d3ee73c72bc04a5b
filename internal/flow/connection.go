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

package flow

import "time"

// TCPFlags is the subset of TCP control bits the tracker inspects.
type TCPFlags uint8

const (
	FlagFIN TCPFlags = 1 << iota
	FlagSYN
	FlagRST
	FlagACK
)

func (f TCPFlags) Has(bit TCPFlags) bool { return f&bit != 0 }

// Connection is a single TCP 4-tuple within a Conversation, per spec §3.
// Primary is always the canonical-smaller side (Endpoint ordering is
// fixed for the life of the connection, regardless of which side sent
// the opening SYN).
type Connection struct {
	ID             int
	ConversationID int
	Key            ConnKey

	Primary Endpoint
	Second  Endpoint

	State        ConnState
	NextProtocol NextProtocol
	Lossy        bool

	synAt            time.Time
	rttFromHandshake time.Duration
	primaryFin       bool
	secondFin        bool

	ActiveAt time.Time
}

// Conversation groups every Connection between one unordered IP pair.
type Conversation struct {
	ID            int
	Key           ConvKey
	ConnectionIDs []int
	Packets       uint64
	Bytes         uint64
}

// Endpoint returns the side that sent a segment marked with the given
// reverse flag.
func (c *Connection) Endpoint(reverse bool) *Endpoint { return c.endpointFor(reverse) }

// PeerEndpoint returns the side opposite Endpoint(reverse).
func (c *Connection) PeerEndpoint(reverse bool) *Endpoint { return c.otherEndpoint(reverse) }

// endpointFor returns a pointer to the Primary or Second endpoint
// depending on reverse, so callers can mutate sequence/counters in place.
func (c *Connection) endpointFor(reverse bool) *Endpoint {
	if reverse {
		return &c.Second
	}
	return &c.Primary
}

// otherEndpoint returns the endpoint opposite the one reverse designates.
func (c *Connection) otherEndpoint(reverse bool) *Endpoint {
	if reverse {
		return &c.Primary
	}
	return &c.Second
}
