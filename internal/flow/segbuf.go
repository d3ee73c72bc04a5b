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

// SegmentBuffer is one endpoint's ordered reassembly buffer (§3's
// Endpoint.reassembly buffer): a scratch copy of not-yet-consumed bytes
// kept alongside the Segment descriptors they came from, so a consumer
// can scan with ordinary byte operations while still handing back
// exact {frame_index, byte_range} provenance for what it consumed.
type SegmentBuffer struct {
	segs []Segment
	raw  []byte
}

// Append adds one emitted segment's bytes to the tail of the buffer.
func (b *SegmentBuffer) Append(seg Segment, data []byte) {
	b.segs = append(b.segs, seg)
	b.raw = append(b.raw, data...)
}

// Len returns the number of unconsumed bytes.
func (b *SegmentBuffer) Len() int { return len(b.raw) }

// Bytes returns the unconsumed bytes for scanning. The caller must not
// retain the slice past the next Consume.
func (b *SegmentBuffer) Bytes() []byte { return b.raw }

// Consume removes the first n bytes and returns the Segment descriptors
// spanning exactly those bytes, splitting the leading segment if it
// straddles the boundary. Panics if n exceeds Len(), a caller bug.
func (b *SegmentBuffer) Consume(n int) []Segment {
	if n > len(b.raw) {
		panic("flow: SegmentBuffer.Consume: n exceeds buffered length")
	}
	var out []Segment
	remaining := n
	for remaining > 0 {
		s := b.segs[0]
		segLen := int(s.Len())
		if segLen <= remaining {
			out = append(out, s)
			b.segs = b.segs[1:]
			remaining -= segLen
			continue
		}
		out = append(out, Segment{FrameIndex: s.FrameIndex, Start: s.Start, End: s.Start + uint64(remaining)})
		b.segs[0] = Segment{FrameIndex: s.FrameIndex, Start: s.Start + uint64(remaining), End: s.End}
		remaining = 0
	}
	b.raw = b.raw[n:]
	return out
}
