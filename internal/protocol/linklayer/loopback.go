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

package linklayer

import (
	"encoding/binary"

	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/protocol"
	"github.com/packwright/packwright/internal/render"
	"github.com/packwright/packwright/internal/store"
)

// BSD loopback (DLT_NULL) address-family values seen in practice; the
// 4-byte header is written in the capturing host's native byte order,
// which the file format doesn't otherwise record.
const (
	dltNullAFInet  = 2
	dltNullAFInet6 = 30
	dltNullAFInet6BSD = 24
	dltNullAFInet6FreeBSD = 28
)

func init() {
	protocol.Register("loopback", protocol.Dissector{Parse: parseLoopback, Detail: detailLoopback})
}

func loopbackFamilyTag(family uint32) store.Tag {
	switch family {
	case dltNullAFInet:
		return "ipv4"
	case dltNullAFInet6, dltNullAFInet6BSD, dltNullAFInet6FreeBSD:
		return "ipv6"
	default:
		return store.TagNone
	}
}

// guessLoopbackFamily tries little-endian first (the common case for
// capture files produced on x86/arm hosts), falling back to big-endian
// if that doesn't resolve to a known address family.
func guessLoopbackFamily(b []byte) uint32 {
	le := binary.LittleEndian.Uint32(b)
	if loopbackFamilyTag(le) != store.TagNone {
		return le
	}
	return binary.BigEndian.Uint32(b)
}

func parseLoopback(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error) {
	b, err := r.SliceN(4)
	if err != nil {
		return store.TagNone, err
	}
	return loopbackFamilyTag(guessLoopbackFamily(b)), nil
}

func detailLoopback(parent *render.Field, ctx *store.Context, frame *store.Frame, r *capbuf.Reader) store.Tag {
	start := r.Cursor()
	b, err := r.SliceN(4)
	if err != nil {
		return store.TagNone
	}
	family := guessLoopbackFamily(b)
	parent.Addf(start, 4, "Loopback, family: %d", family)
	return loopbackFamilyTag(family)
}
