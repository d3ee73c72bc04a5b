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

package store

import (
	"net/netip"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/valyala/bytebufferpool"

	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/demux"
	"github.com/packwright/packwright/internal/flow"
)

// Context is the process-wide, single-threaded singleton owning every
// per-file entity (§3): the Buffer, the frames vector, the connection
// tracker, and the HTTP/DNS/TLS collections. Its lifetime is the lifetime
// of one open capture file. All cross-entity references are integer
// indexes, never pointers, keeping the object graph acyclic.
type Context struct {
	buf     *capbuf.Buffer
	demuxer *demux.Demuxer
	tracker *flow.Tracker

	frames []*Frame

	httpMessages []*HttpMessage
	httpConnects []*HttpConnect
	// openHTTP is a per-connection FIFO of indexes into httpConnects still
	// awaiting a response, supporting pipelined requests (oldest request
	// pairs with the next response), grounded on packetd's
	// protocol/role.ListMatcher queueing pattern.
	openHTTP map[int][]int

	dnsRecords []*DnsRecord

	tlsConversations  []*TlsConversation
	tlsByConnectionID map[int]int

	intern map[string]string

	ipv6HashCache map[uint64][2]netip.Addr

	meta demux.FileMeta
}

// NewContext constructs an empty Context over buf. The demultiplexer is
// attached once its container magic has been recognized (see Open).
func NewContext(buf *capbuf.Buffer) *Context {
	return &Context{
		buf:               buf,
		tracker:           flow.NewTracker(),
		openHTTP:          make(map[int][]int),
		tlsByConnectionID: make(map[int]int),
		intern:            make(map[string]string),
		ipv6HashCache:     make(map[uint64][2]netip.Addr),
	}
}

func (c *Context) Buffer() *capbuf.Buffer { return c.buf }
func (c *Context) Tracker() *flow.Tracker { return c.tracker }

// AttachDemuxer records the demultiplexer chosen once the container
// magic bytes were available.
func (c *Context) AttachDemuxer(d *demux.Demuxer) {
	c.demuxer = d
	c.meta = d.Meta()
}

func (c *Context) Demuxer() *demux.Demuxer { return c.demuxer }

func (c *Context) RefreshMeta() {
	if c.demuxer != nil {
		c.meta = c.demuxer.Meta()
	}
}

func (c *Context) FileMeta() demux.FileMeta { return c.meta }

// AppendFrame commits a frame at the next index. Frames are committed in
// the order they're read from the capture file (§5 Ordering guarantees).
func (c *Context) AppendFrame(f *Frame) {
	f.Index = uint32(len(c.frames))
	c.frames = append(c.frames, f)
}

func (c *Context) Frames() []*Frame { return c.frames }

func (c *Context) Frame(index uint32) *Frame {
	if int(index) >= len(c.frames) {
		return nil
	}
	return c.frames[index]
}

// Intern bounds memory for frequently repeated hostnames/protocol labels.
func (c *Context) Intern(s string) string {
	if v, ok := c.intern[s]; ok {
		return v
	}
	c.intern[s] = s
	return s
}

// IPv6PairHash returns a 64-bit hash for an (src,dst) IPv6 address pair,
// verifying full address equality on lookup so a hash collision can never
// produce a false cache hit (§9 Open Question).
func (c *Context) IPv6PairHash(src, dst netip.Addr) uint64 {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	a16 := src.As16()
	b16 := dst.As16()
	bb.Write(a16[:])
	bb.Write(b16[:])
	h := xxhash.Sum64(bb.B)

	for {
		cur, ok := c.ipv6HashCache[h]
		if !ok {
			c.ipv6HashCache[h] = [2]netip.Addr{src, dst}
			return h
		}
		if cur[0] == src && cur[1] == dst {
			return h
		}
		// Collision on a 64-bit hash: perturb and retry. Exceptionally
		// rare in practice, per §9.
		h++
	}
}

// --- HTTP ---------------------------------------------------------------

// OpenHttpConnect creates a new HttpConnect for a committed request and
// queues it for the connection, supporting HTTP pipelining.
func (c *Context) OpenHttpConnect(connectionID, requestIdx int, at time.Time) int {
	idx := len(c.httpConnects)
	c.httpConnects = append(c.httpConnects, &HttpConnect{
		Index:        idx,
		ConnectionID: connectionID,
		RequestIdx:   requestIdx,
		ResponseIdx:  -1,
		RequestAt:    at,
	})
	c.openHTTP[connectionID] = append(c.openHTTP[connectionID], idx)
	return idx
}

// CloseOldestHttpConnect pairs a committed response with the oldest still
// open HttpConnect on connectionID, if any.
func (c *Context) CloseOldestHttpConnect(connectionID, responseIdx int, at time.Time) (int, bool) {
	q := c.openHTTP[connectionID]
	if len(q) == 0 {
		return -1, false
	}
	idx := q[0]
	c.openHTTP[connectionID] = q[1:]

	hc := c.httpConnects[idx]
	hc.ResponseIdx = responseIdx
	hc.ResponseAt = at
	hc.Latency = at.Sub(hc.RequestAt)
	hc.Closed = true
	return idx, true
}

func (c *Context) AppendHttpMessage(m *HttpMessage) int {
	m.Index = len(c.httpMessages)
	c.httpMessages = append(c.httpMessages, m)
	return m.Index
}

func (c *Context) HttpMessages() []*HttpMessage    { return c.httpMessages }
func (c *Context) HttpConnects() []*HttpConnect     { return c.httpConnects }
func (c *Context) HttpMessage(i int) *HttpMessage {
	if i < 0 || i >= len(c.httpMessages) {
		return nil
	}
	return c.httpMessages[i]
}
func (c *Context) HttpConnect(i int) *HttpConnect {
	if i < 0 || i >= len(c.httpConnects) {
		return nil
	}
	return c.httpConnects[i]
}

// --- DNS ------------------------------------------------------------------

func (c *Context) AppendDnsRecord(r *DnsRecord) int {
	r.Index = len(c.dnsRecords)
	c.dnsRecords = append(c.dnsRecords, r)
	return r.Index
}

func (c *Context) DnsRecords() []*DnsRecord { return c.dnsRecords }

// --- TLS --------------------------------------------------------------

// GetOrCreateTlsConversation returns the TlsConversation for a connection,
// creating it on first reference.
func (c *Context) GetOrCreateTlsConversation(connectionID int) *TlsConversation {
	if idx, ok := c.tlsByConnectionID[connectionID]; ok {
		return c.tlsConversations[idx]
	}
	idx := len(c.tlsConversations)
	tc := &TlsConversation{Index: idx, ConnectionID: connectionID}
	c.tlsConversations = append(c.tlsConversations, tc)
	c.tlsByConnectionID[connectionID] = idx
	return tc
}

func (c *Context) TlsConversations() []*TlsConversation { return c.tlsConversations }
