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

// Package capbuf implements the append-only byte buffer and bounded
// sub-readers that every dissector reads capture bytes through.
package capbuf

import (
	"github.com/pkg/errors"
)

// Errors returned by Buffer/Reader operations. Dissectors branch on these
// with errors.Is rather than string matching.
var (
	ErrEndOfStream    = errors.New("capbuf: end of stream")
	ErrOutOfRange     = errors.New("capbuf: out of range")
	ErrInvalidLength  = errors.New("capbuf: invalid length")
	ErrUTF8           = errors.New("capbuf: invalid utf8")
	ErrFormatMismatch = errors.New("capbuf: format mismatch")
)

// Buffer is an append-only sequence of bytes addressed by an absolute,
// monotonically advancing offset range [base, base+len(data)). Trim drops
// a prefix and advances base; offsets already handed to readers stay valid
// until a Trim cuts past them.
type Buffer struct {
	base uint64
	data []byte
}

// NewBuffer returns an empty buffer starting at absolute offset 0.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append extends the backing sequence. base is unchanged.
func (b *Buffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.data = append(b.data, chunk...)
}

// Base returns the lowest valid absolute offset.
func (b *Buffer) Base() uint64 { return b.base }

// End returns one past the highest valid absolute offset.
func (b *Buffer) End() uint64 { return b.base + uint64(len(b.data)) }

// Len returns the number of live bytes currently held.
func (b *Buffer) Len() uint64 { return uint64(len(b.data)) }

// Trim discards every byte below offset and advances base to offset. A
// no-op if offset <= base. Callers must never trim past an offset still
// referenced by an active Reader or a stored byte-range descriptor that
// will be read again.
func (b *Buffer) Trim(offset uint64) {
	if offset <= b.base {
		return
	}
	if offset > b.End() {
		offset = b.End()
	}
	drop := offset - b.base
	b.data = b.data[drop:]
	b.base = offset
}

// Slice returns a borrowed view of [start,end) against the live data. The
// caller must not retain it past the next Append/Trim.
func (b *Buffer) Slice(start, end uint64) ([]byte, error) {
	if end < start || start < b.base || end > b.End() {
		return nil, errors.Wrapf(ErrOutOfRange, "[%d,%d) outside [%d,%d)", start, end, b.base, b.End())
	}
	lo := start - b.base
	hi := end - b.base
	return b.data[lo:hi], nil
}

// NewReader carves a bounded [start,end) sub-view with its own cursor.
func (b *Buffer) NewReader(start, end uint64) *Reader {
	return &Reader{buf: b, start: start, end: end, cursor: start}
}
