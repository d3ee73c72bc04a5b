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

// Package phttp implements the HTTP/1.1 reassembler (C7): boundary
// detection over an endpoint's reassembled byte stream, request/response
// correlation (with pipelining), and content-length/chunked body
// accumulation. Grounded on packetd's protocol/phttp/decoder.go state
// machine (stateDecodeProtocol/Header/Body), generalized from packetd's
// single-pass export pipeline to this engine's byte-range-preserving,
// query-on-demand store.
package phttp

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/flow"
	"github.com/packwright/packwright/internal/protocol"
	"github.com/packwright/packwright/internal/render"
	"github.com/packwright/packwright/internal/store"
)

func init() {
	protocol.Register("http", protocol.Dissector{Parse: passthroughParse, Detail: detail})
}

// passthroughParse exists only so "http" has a registry entry for
// DetailTree to re-run; actual reassembly happens out of band in Feed,
// driven by translayer once it classifies a connection as HTTP.
func passthroughParse(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error) {
	return store.TagNone, nil
}

type phase uint8

const (
	phaseFirstLine phase = iota
	phaseHeaders
	phaseBodyLen
	phaseBodyChunk
)

type chunkPhase uint8

const (
	chunkReadSize chunkPhase = iota
	chunkReadData
	chunkTrailer
)

type httpState struct {
	buf   flow.SegmentBuffer
	phase phase

	isRequest  bool
	method     string
	path       string
	statusCode int
	host       string
	contentLen int64
	hasLen     bool
	chunked    bool
	contentTyp string

	remaining   int64
	chunkPhase  chunkPhase
	chunkRemain int64

	headerRanges []store.ByteRange
	bodyRanges   []store.ByteRange
	firstFrame   uint32
	haveFirst    bool
}

func (s *httpState) noteFrame(seg flow.Segment) {
	if !s.haveFirst {
		s.firstFrame = seg.FrameIndex
		s.haveFirst = true
	}
}

func getState(ep *flow.Endpoint) *httpState {
	if ep.SegmentStatus.Extra == nil {
		ep.SegmentStatus = flow.SegmentStatus{Kind: flow.SegStatusInit, Extra: &httpState{}}
	}
	st, _ := ep.SegmentStatus.Extra.(*httpState)
	return st
}

// Feed appends newly-reassembled segments to connID's reverse-side HTTP
// state machine and commits any messages that complete as a result.
func Feed(ctx *store.Context, connID int, reverse bool, segs []flow.Segment, now time.Time) {
	conn := ctx.Tracker().Connection(connID)
	if conn == nil {
		return
	}
	ep := conn.Endpoint(reverse)
	st := getState(ep)

	for _, seg := range segs {
		b, err := ctx.Buffer().Slice(seg.Start, seg.End)
		if err != nil {
			continue
		}
		st.noteFrame(seg)
		st.buf.Append(seg, b)
	}

	for progress(ctx, conn, connID, st, now) {
	}
}

func progress(ctx *store.Context, conn *flow.Connection, connID int, st *httpState, now time.Time) bool {
	switch st.phase {
	case phaseFirstLine:
		idx := bytes.Index(st.buf.Bytes(), []byte("\r\n"))
		if idx < 0 {
			return false
		}
		line := string(st.buf.Bytes()[:idx])
		st.buf.Consume(idx + 2)
		parseFirstLine(st, line)
		st.phase = phaseHeaders
		return true

	case phaseHeaders:
		var headerBlock string
		if bytes.HasPrefix(st.buf.Bytes(), []byte("\r\n")) {
			st.buf.Consume(2) // no header lines: blank line follows the first line
		} else {
			idx := bytes.Index(st.buf.Bytes(), []byte("\r\n\r\n"))
			if idx < 0 {
				return false
			}
			headerBlock = string(st.buf.Bytes()[:idx])
			st.headerRanges = st.buf.Consume(idx + 2)
			st.buf.Consume(2) // blank line
		}
		parseHeaders(st, headerBlock)

		switch {
		case st.chunked:
			st.phase = phaseBodyChunk
			st.chunkPhase = chunkReadSize
		case st.hasLen && st.contentLen > 0:
			st.phase = phaseBodyLen
			st.remaining = st.contentLen
		default:
			commit(ctx, conn, connID, st, now)
			*st = httpState{}
		}
		return true

	case phaseBodyLen:
		avail := int64(st.buf.Len())
		if avail == 0 && st.remaining > 0 {
			return false
		}
		take := st.remaining
		if avail < take {
			take = avail
		}
		if take > 0 {
			st.bodyRanges = append(st.bodyRanges, st.buf.Consume(int(take))...)
			st.remaining -= take
		}
		if st.remaining > 0 {
			return false
		}
		commit(ctx, conn, connID, st, now)
		*st = httpState{}
		return true

	case phaseBodyChunk:
		return progressChunk(ctx, conn, connID, st, now)
	}
	return false
}

func progressChunk(ctx *store.Context, conn *flow.Connection, connID int, st *httpState, now time.Time) bool {
	switch st.chunkPhase {
	case chunkReadSize:
		idx := bytes.Index(st.buf.Bytes(), []byte("\r\n"))
		if idx < 0 {
			return false
		}
		line := string(st.buf.Bytes()[:idx])
		st.buf.Consume(idx + 2)
		if semi := strings.IndexByte(line, ';'); semi >= 0 {
			line = line[:semi]
		}
		size, err := strconv.ParseInt(strings.TrimSpace(line), 16, 64)
		if err != nil {
			// Desynced chunk stream: stop here rather than loop forever.
			commit(ctx, conn, connID, st, now)
			*st = httpState{}
			return false
		}
		if size == 0 {
			st.chunkPhase = chunkTrailer
		} else {
			st.chunkRemain = size
			st.chunkPhase = chunkReadData
		}
		return true

	case chunkReadData:
		avail := int64(st.buf.Len())
		take := st.chunkRemain
		if avail < take {
			take = avail
		}
		if take > 0 {
			st.bodyRanges = append(st.bodyRanges, st.buf.Consume(int(take))...)
			st.chunkRemain -= take
		}
		if st.chunkRemain > 0 {
			return false
		}
		if st.buf.Len() < 2 {
			return false
		}
		st.buf.Consume(2) // chunk-trailing CRLF
		st.chunkPhase = chunkReadSize
		return true

	case chunkTrailer:
		idx := bytes.Index(st.buf.Bytes(), []byte("\r\n\r\n"))
		if idx < 0 {
			if st.buf.Len() >= 2 && bytes.HasPrefix(st.buf.Bytes(), []byte("\r\n")) {
				st.buf.Consume(2)
				commit(ctx, conn, connID, st, now)
				*st = httpState{}
				return true
			}
			return false
		}
		st.buf.Consume(idx + 4)
		commit(ctx, conn, connID, st, now)
		*st = httpState{}
		return true
	}
	return false
}

func parseFirstLine(st *httpState, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	if strings.HasPrefix(strings.ToUpper(fields[0]), "HTTP/") {
		st.isRequest = false
		if len(fields) >= 2 {
			st.statusCode, _ = strconv.Atoi(fields[1])
		}
		return
	}
	st.isRequest = true
	st.method = fields[0]
	if len(fields) >= 2 {
		st.path = fields[1]
	}
}

func parseHeaders(st *httpState, block string) {
	for _, line := range strings.Split(block, "\r\n") {
		kv := strings.SplitN(line, ":", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.TrimSpace(kv[1])
		switch key {
		case "host":
			st.host = val
		case "content-length":
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				st.contentLen, st.hasLen = n, true
			}
		case "transfer-encoding":
			st.chunked = strings.EqualFold(val, "chunked") || strings.Contains(strings.ToLower(val), "chunked")
		case "content-type":
			st.contentTyp = val
		}
	}
}

func commit(ctx *store.Context, conn *flow.Connection, connID int, st *httpState, now time.Time) {
	m := &store.HttpMessage{
		FrameIndex:    st.firstFrame,
		ConnectionID:  connID,
		IsRequest:     st.isRequest,
		Method:        st.method,
		Path:          st.path,
		StatusCode:    st.statusCode,
		Host:          st.host,
		ContentLength: st.contentLen,
		HasContentLen: st.hasLen,
		Chunked:       st.chunked,
		ContentType:   st.contentTyp,
		Headers:       toByteRanges(st.headerRanges),
		Body:          toByteRanges(st.bodyRanges),
		PairIndex:     -1,
		Timestamp:     now,
	}
	idx := ctx.AppendHttpMessage(m)

	var connectIdx int
	if m.IsRequest {
		connectIdx = ctx.OpenHttpConnect(connID, idx, now)
	} else {
		var ok bool
		connectIdx, ok = ctx.CloseOldestHttpConnect(connID, idx, now)
		if !ok {
			return
		}
	}
	m.PairIndex = connectIdx

	if f := ctx.Frame(st.firstFrame); f != nil {
		if m.IsRequest {
			f.SetProperty("http.method", m.Method)
			f.SetProperty("http.path", m.Path)
			f.SetProperty("http.host", m.Host)
		} else {
			f.SetProperty("http.status", strconv.Itoa(m.StatusCode))
		}
	}
}

func toByteRanges(segs []flow.Segment) []store.ByteRange {
	out := make([]store.ByteRange, 0, len(segs))
	for _, s := range segs {
		out = append(out, store.ByteRange{FrameIndex: s.FrameIndex, Start: s.Start, End: s.End})
	}
	return out
}

func detail(parent *render.Field, ctx *store.Context, frame *store.Frame, r *capbuf.Reader) store.Tag {
	for _, hc := range ctx.HttpConnects() {
		if req := ctx.HttpMessage(hc.RequestIdx); req != nil && req.FrameIndex == frame.Index {
			parent.Addf(frame.DataStart, frame.DataEnd-frame.DataStart, "HTTP Request: %s %s", req.Method, req.Path)
		}
		if hc.ResponseIdx >= 0 {
			if resp := ctx.HttpMessage(hc.ResponseIdx); resp != nil && resp.FrameIndex == frame.Index {
				parent.Addf(frame.DataStart, frame.DataEnd-frame.DataStart, "HTTP Response: %d", resp.StatusCode)
			}
		}
	}
	return store.TagNone
}
